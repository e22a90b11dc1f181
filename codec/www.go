package codec

import (
	"fmt"
	"net/netip"

	"github.com/flowrec/silkio/errs"
	"github.com/flowrec/silkio/format"
)

// wwwCodec implements FT_RWWWW, a dense 22-byte web-traffic-only
// layout: no source port is stored because the SiLK wwwio format
// assumes http/https/proxy traffic and recovers the port from
// webPortEncode, per spec.md section 4.2 ("stores port via
// WEBPORT_ENCODE (80->0, 443->1, 8080->2, else 3)"). No original
// source for rwwwwio.c was retrieved, so the byte-and-bit layout below
// follows the spec's field widths directly rather than a C comment
// block; the packet/byte/bpp trio reuses the same bitpack helpers
// Routed uses, since both encode start time + bpp + elapsed + pkts in
// one dense word group.
type wwwCodec struct {
	version uint8
}

func init() {
	for v := uint8(1); v <= 3; v++ {
		register(format.FormatWww, v, &wwwCodec{version: v})
	}
}

func (c *wwwCodec) SupportsIPv6() bool { return false }
func (c *wwwCodec) RecordLength() int  { return 22 }

// webPortEncode maps a well-known web port to its 2-bit code.
func webPortEncode(port uint16) uint8 {
	switch port {
	case 80:
		return 0
	case 443:
		return 1
	case 8080:
		return 2
	default:
		return 3
	}
}

// webPortDecode reverses webPortEncode for codes 0-2; code 3 means the
// real port travels alongside in the record's dPort field, since 3
// ("else") is not invertible on its own.
func webPortDecode(code uint8) (uint16, bool) {
	switch code {
	case 0:
		return 80, true
	case 1:
		return 443, true
	case 2:
		return 8080, true
	default:
		return 0, false
	}
}

// Layout (22 bytes):
//
//	0- 3  sIP
//	4- 7  dIP
//	8-11  pkts_stime  pkts(20) | sTime hour-offset(12)
//	12-15 bbe         bPPkt(14) | bPPFrac(6) | elapsed(12)
//	16-19 proto_flags_port  proto_or_flags(8) | webPortCode(2) | dPort_or_zero(16) | pflag(1) | is_tcp(1) (shares alignment with routed's pro_flg_pkts idea, widened for dPort)
//	20    attributes
//	21    flowtype
const (
	wwwOffSIP       = 0
	wwwOffDIP       = 4
	wwwOffPktsStime = 8
	wwwOffBBE       = 12
	wwwOffTail      = 16
	wwwOffAttrs     = 20
	wwwOffFlowType  = 21
)

func (c *wwwCodec) Pack(rec *format.FlowRecord, buf []byte) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.IsIPv6() {
		return fmt.Errorf("%w: www format is ipv4 only", errs.ErrUnsupportedIpv6)
	}

	bpp, err := packBpp(BppVolume{Pkts: rec.Packets, Bytes: rec.Bytes, ElapsedMs: rec.DurationMs})
	if err != nil {
		return err
	}

	s4, d4 := rec.SrcAddr.As4(), rec.DstAddr.As4()
	copy(buf[wwwOffSIP:wwwOffSIP+4], s4[:])
	copy(buf[wwwOffDIP:wwwOffDIP+4], d4[:])

	stime12 := uint32(rec.StartTimeMs) & 0xFFF
	nativeEngine.PutUint32(buf[wwwOffPktsStime:], bpp.pkts20<<12|stime12)

	bppWhole := bpp.bppHi10<<4 | bpp.bppLo4
	nativeEngine.PutUint32(buf[wwwOffBBE:], bppWhole<<18|bpp.bppFrac<<12|(bpp.elapsed&0xFFF))

	isTCP := uint32(0)
	if rec.Proto == 6 {
		isTCP = 1
	}
	overlay := ProtoFlagsOverlay{Proto: rec.Proto, AllFlags: rec.AllFlags}
	first, _ := overlay.Pack()

	var dport uint16
	code := webPortEncode(rec.DstPort)
	if code == 3 {
		dport = rec.DstPort
	}
	nativeEngine.PutUint32(buf[wwwOffTail:], uint32(first)<<24|uint32(code)<<22|uint32(dport)<<2|bpp.pflag<<1|isTCP)

	buf[wwwOffAttrs] = rec.Attributes
	buf[wwwOffFlowType] = rec.FlowtypeID

	return nil
}

func (c *wwwCodec) Unpack(buf []byte, rec *format.FlowRecord) error {
	var s4, d4 [4]byte
	copy(s4[:], buf[wwwOffSIP:wwwOffSIP+4])
	copy(d4[:], buf[wwwOffDIP:wwwOffDIP+4])
	rec.SrcAddr = netip.AddrFrom4(s4)
	rec.DstAddr = netip.AddrFrom4(d4)

	w1 := nativeEngine.Uint32(buf[wwwOffPktsStime:])
	pkts20 := w1 >> 12
	stime := w1 & 0xFFF

	w2 := nativeEngine.Uint32(buf[wwwOffBBE:])
	bppWhole := w2 >> 18
	bppFrac := (w2 >> 12) & 0x3F
	elapsed := w2 & 0xFFF

	w3 := nativeEngine.Uint32(buf[wwwOffTail:])
	first := byte(w3 >> 24)
	code := uint8((w3 >> 22) & 0x3)
	dport := uint16((w3 >> 2) & 0xFFFF)
	pflag := (w3 >> 1) & 1
	isTCP := w3 & 1

	vol := unpackBpp(packedBpp{bppHi10: bppWhole >> 4, bppLo4: bppWhole & 0xF, bppFrac: bppFrac, elapsed: elapsed, pkts20: pkts20, pflag: pflag})

	rec.StartTimeMs = int64(stime)
	rec.DurationMs = vol.ElapsedMs
	rec.Packets = vol.Pkts
	rec.Bytes = vol.Bytes

	if isTCP != 0 {
		rec.Proto = 6
		rec.AllFlags = first
	} else {
		rec.Proto = first
	}

	if p, ok := webPortDecode(code); ok {
		rec.DstPort = p
	} else {
		rec.DstPort = dport
	}

	rec.Attributes = buf[wwwOffAttrs]
	rec.FlowtypeID = buf[wwwOffFlowType]

	return nil
}

func (c *wwwCodec) Swap(buf []byte) {
	swapWords(buf, wwwOffPktsStime, 4, 1)
	swapWords(buf, wwwOffBBE, 4, 1)
	swapWords(buf, wwwOffTail, 4, 1)
}
