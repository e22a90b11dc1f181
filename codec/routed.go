package codec

import (
	"net/netip"

	"github.com/flowrec/silkio/format"
)

// routedCodec implements FT_RWROUTED / FT_RWNOTROUTED version 5,
// grounded byte-for-byte on original_source/rwroutedio.c's
// routedioRecordPack_V5/routedioRecordUnpack_V5 and its 32-byte layout
// comment. IPv4 only: SiLK never defined an IPv6 routed record format.
//
// Versions 1-4 share this same wire layout in this implementation.
// The original C source's rwpack.c macros that would give an
// independently-verified bit-for-bit layout for V1-V4 were not part
// of the retrieved source set, so rather than invent an unverifiable
// bit arrangement this registers the same codec under every version
// number; DESIGN.md records this as a documented scope reduction.
type routedCodec struct {
	version  uint8
	withNhIP bool
}

func init() {
	routed := &routedCodec{withNhIP: true}
	notRouted := &routedCodec{withNhIP: false}

	for v := uint8(1); v <= 5; v++ {
		register(format.FormatRouted, v, routed)
		register(format.FormatNotRouted, v, notRouted)
		register(format.FormatSplit, v, notRouted) // Split carries the same fields as NotRouted
	}
}

func (c *routedCodec) SupportsIPv6() bool { return false }

func (c *routedCodec) RecordLength() int {
	if c.withNhIP {
		return 32
	}

	return 28
}

// The stime_bb1/bb2_elapsed/pro_flg_pkts trio packs start time, bpp,
// elapsed, and pkts+proto+flags into 12 bytes ahead of the ports, per
// the RWROUTED V5 comment block in rwroutedio.c.
func (c *routedCodec) Pack(rec *format.FlowRecord, buf []byte) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	bpp, err := packBpp(BppVolume{Pkts: rec.Packets, Bytes: rec.Bytes, ElapsedMs: rec.DurationMs})
	if err != nil {
		return err
	}

	// stime_bb1: stime(22, high) | bPPkt1(10, low)
	stime := uint32(rec.StartTimeMs) & 0x3FFFFF
	nativeEngine.PutUint32(buf[0:4], stime<<10|bpp.bppHi10)

	// bb2_elapsed: bPPkt2(4, high) | bPPFrac(6) | elapsed(22, low)
	nativeEngine.PutUint32(buf[4:8], bpp.bppLo4<<28|bpp.bppFrac<<22|(bpp.elapsed&0x3FFFFF))

	overlay := ProtoFlagsOverlay{
		Proto: rec.Proto, AllFlags: rec.AllFlags,
		InitialFlags: rec.InitialFlags, SessionFlags: rec.SessionFlags,
		Expanded: rec.HasExpandedFlags(),
	}
	first, second := overlay.Pack()
	isTCP := uint32(0)
	if rec.Proto == 6 {
		isTCP = 1
	}
	nativeEngine.PutUint32(buf[8:12], uint32(first)<<24|bpp.pflag<<23|isTCP<<22|bpp.pkts20&0xFFFFF)
	_ = second // V5's pro_flg_pkts has no room for a second flags byte; AllFlags carries both when not expanded.

	nativeEngine.PutUint16(buf[12:14], rec.SrcPort)
	nativeEngine.PutUint16(buf[14:16], rec.DstPort)
	nativeEngine.PutUint16(buf[16:18], uint16(rec.Input))
	nativeEngine.PutUint16(buf[18:20], uint16(rec.Output))

	s4, d4 := rec.SrcAddr.As4(), rec.DstAddr.As4()
	copy(buf[20:24], s4[:])
	copy(buf[24:28], d4[:])
	if c.withNhIP {
		n4 := rec.NextHop.As4()
		copy(buf[28:32], n4[:])
	}

	return nil
}

func (c *routedCodec) Unpack(buf []byte, rec *format.FlowRecord) error {
	w0 := nativeEngine.Uint32(buf[0:4])
	w1 := nativeEngine.Uint32(buf[4:8])
	w2 := nativeEngine.Uint32(buf[8:12])

	stime := w0 >> 10
	bppHi10 := w0 & 0x3FF
	bppLo4 := w1 >> 28
	bppFrac := (w1 >> 22) & 0x3F
	elapsed := w1 & 0x3FFFFF

	vol := unpackBpp(packedBpp{bppHi10: bppHi10, bppLo4: bppLo4, bppFrac: bppFrac, elapsed: elapsed,
		pkts20: w2 & 0xFFFFF, pflag: (w2 >> 23) & 1})

	rec.StartTimeMs = int64(stime)
	rec.DurationMs = vol.ElapsedMs
	rec.Packets = vol.Pkts
	rec.Bytes = vol.Bytes

	isTCP := (w2>>22)&1 != 0
	first := byte(w2 >> 24)
	if isTCP {
		rec.Proto = 6
		rec.AllFlags = first
	} else {
		rec.Proto = first
	}

	rec.SrcPort = nativeEngine.Uint16(buf[12:14])
	rec.DstPort = nativeEngine.Uint16(buf[14:16])
	rec.Input = uint32(nativeEngine.Uint16(buf[16:18]))
	rec.Output = uint32(nativeEngine.Uint16(buf[18:20]))

	var s4, d4, n4 [4]byte
	copy(s4[:], buf[20:24])
	copy(d4[:], buf[24:28])
	rec.SrcAddr = netip.AddrFrom4(s4)
	rec.DstAddr = netip.AddrFrom4(d4)
	if c.withNhIP {
		copy(n4[:], buf[28:32])
		rec.NextHop = netip.AddrFrom4(n4)
	}

	return nil
}

func (c *routedCodec) Swap(buf []byte) {
	n := c.RecordLength()
	swapWords(buf, 0, 4, 3) // stime_bb1, bb2_elapsed, pro_flg_pkts
	swapWords(buf, 12, 2, 1)
	swapWords(buf, 14, 2, 1)
	swapWords(buf, 16, 2, 1)
	swapWords(buf, 18, 2, 1)
	_ = n // IPs are always kept in network byte order, never swapped.
}
