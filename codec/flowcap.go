package codec

import (
	"net/netip"

	"github.com/flowrec/silkio/errs"
	"github.com/flowrec/silkio/format"
)

// flowcapCodec implements FT_FLOWCAP versions 2-6, the format flowcap
// collectors write ahead of rwflowpack converting them to a routed
// format. Grounded byte-for-byte on
// original_source/flowcapio.c's per-version comment blocks and
// flowcapioRecordPack_V{2,3,4,5}/flowcapioRecordUnpack_V{2,3,4,5,6}:
// unlike the Augmented family, this file's full C source was part of
// the retrieved set, so every version gets its own real layout rather
// than collapsing onto the generic codec.
type flowcapCodec struct {
	version uint8
}

func init() {
	for v := uint8(2); v <= 6; v++ {
		register(format.FormatFlowcap, v, &flowcapCodec{version: v})
	}
}

func (c *flowcapCodec) SupportsIPv6() bool { return false }

func (c *flowcapCodec) RecordLength() int {
	switch {
	case c.version == 2:
		return 30
	case c.version == 3:
		return 36
	case c.version == 4:
		return 40
	default: // 5, 6
		return 38
	}
}

// packTCPState writes the flags/first_flags/tcp_state trio shared by
// every flowcap version at offsets (flagsOff, flagsOff+1, flagsOff+2).
func packTCPState(rec *format.FlowRecord, buf []byte, flagsOff int) {
	buf[flagsOff+2] = rec.Attributes
	if rec.Attributes&format.AttrExpanded != 0 {
		buf[flagsOff] = rec.SessionFlags
		buf[flagsOff+1] = rec.InitialFlags
	} else {
		buf[flagsOff] = rec.AllFlags
		buf[flagsOff+1] = 0
	}
}

func unpackTCPState(rec *format.FlowRecord, buf []byte, flagsOff int) {
	rec.Attributes = buf[flagsOff+2]
	if rec.Attributes&format.AttrExpanded != 0 {
		rec.SessionFlags = buf[flagsOff]
		rec.InitialFlags = buf[flagsOff+1]
		rec.AllFlags = buf[flagsOff] | buf[flagsOff+1]
	} else {
		rec.AllFlags = buf[flagsOff]
	}
}

func (c *flowcapCodec) Pack(rec *format.FlowRecord, buf []byte) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.IsIPv6() {
		return errs.ErrUnsupportedIpv6
	}

	s4, d4 := rec.SrcAddr.As4(), rec.DstAddr.As4()
	copy(buf[0:4], s4[:])
	copy(buf[4:8], d4[:])

	if rec.Bytes > 0xFFFFFFFF {
		for i := 8; i < 12; i++ {
			buf[i] = 0xFF
		}
	} else {
		nativeEngine.PutUint32(buf[8:12], uint32(rec.Bytes))
	}

	startSec := uint32(rec.StartTimeMs / 1000)
	startFracMs := uint16(rec.StartTimeMs % 1000)
	nativeEngine.PutUint32(buf[12:16], startSec)

	elapsedSec := rec.DurationMs / 1000
	elapsedFracMs := uint16(rec.DurationMs % 1000)
	if elapsedSec > 0xFFFF {
		nativeEngine.PutUint16(buf[16:18], 0xFFFF)
	} else {
		nativeEngine.PutUint16(buf[16:18], uint16(elapsedSec))
	}

	nativeEngine.PutUint16(buf[18:20], rec.SrcPort)
	nativeEngine.PutUint16(buf[20:22], rec.DstPort)

	frac := PackFractionalTime3(startFracMs, elapsedFracMs)

	switch c.version {
	case 2:
		buf[22] = PackSNMP8(rec.Input)
		buf[23] = PackSNMP8(rec.Output)
		nativeEngine.PutUint32(buf[24:28], PackPktsProto(rec.Packets, rec.Proto))
		buf[28] = rec.AllFlags
		buf[29] = 0

	case 3, 4:
		nativeEngine.PutUint16(buf[22:24], rec.Application)
		buf[24] = PackSNMP8(rec.Input)
		buf[25] = PackSNMP8(rec.Output)
		nativeEngine.PutUint32(buf[26:30], PackPktsProto(rec.Packets, rec.Proto))
		packTCPState(rec, buf, 30)
		copy(buf[33:36], frac[:])
		if c.version == 4 {
			n4 := rec.NextHop.As4()
			copy(buf[36:40], n4[:])
		}

	default: // 5, 6
		nativeEngine.PutUint16(buf[22:24], rec.Application)
		nativeEngine.PutUint16(buf[24:26], uint16(rec.Input))
		nativeEngine.PutUint16(buf[26:28], uint16(rec.Output))
		nativeEngine.PutUint32(buf[28:32], PackPktsProto(rec.Packets, rec.Proto))
		packTCPState(rec, buf, 32)
		copy(buf[35:38], frac[:])
	}

	return nil
}

func (c *flowcapCodec) Unpack(buf []byte, rec *format.FlowRecord) error {
	var s4, d4 [4]byte
	copy(s4[:], buf[0:4])
	copy(d4[:], buf[4:8])
	rec.SrcAddr = netip.AddrFrom4(s4)
	rec.DstAddr = netip.AddrFrom4(d4)
	rec.Bytes = uint64(nativeEngine.Uint32(buf[8:12]))

	startSec := int64(nativeEngine.Uint32(buf[12:16]))
	elapsedSec := uint32(nativeEngine.Uint16(buf[16:18]))
	rec.SrcPort = nativeEngine.Uint16(buf[18:20])
	rec.DstPort = nativeEngine.Uint16(buf[20:22])

	var startFracMs, elapsedFracMs uint16

	switch c.version {
	case 2:
		rec.Input = uint32(buf[22])
		rec.Output = uint32(buf[23])
		pkts, proto := UnpackPktsProto(nativeEngine.Uint32(buf[24:28]))
		rec.Packets, rec.Proto = pkts, proto
		rec.AllFlags = buf[28]
		rec.Attributes = 0

	case 3, 4:
		rec.Application = nativeEngine.Uint16(buf[22:24])
		rec.Input = uint32(buf[24])
		rec.Output = uint32(buf[25])
		pkts, proto := UnpackPktsProto(nativeEngine.Uint32(buf[26:30]))
		rec.Packets, rec.Proto = pkts, proto
		unpackTCPState(rec, buf, 30)
		var frac [3]byte
		copy(frac[:], buf[33:36])
		startFracMs, elapsedFracMs = UnpackFractionalTime3(frac)
		if c.version == 4 {
			var n4 [4]byte
			copy(n4[:], buf[36:40])
			rec.NextHop = netip.AddrFrom4(n4)
		}

	default: // 5, 6
		rec.Application = nativeEngine.Uint16(buf[22:24])
		rec.Input = uint32(nativeEngine.Uint16(buf[24:26]))
		rec.Output = uint32(nativeEngine.Uint16(buf[26:28]))
		pkts, proto := UnpackPktsProto(nativeEngine.Uint32(buf[28:32]))
		rec.Packets, rec.Proto = pkts, proto
		unpackTCPState(rec, buf, 32)
		var frac [3]byte
		copy(frac[:], buf[35:38])
		startFracMs, elapsedFracMs = UnpackFractionalTime3(frac)
		if c.version == 6 {
			rec.Application = 0
		}
	}

	rec.StartTimeMs = startSec*1000 + int64(startFracMs)
	rec.DurationMs = elapsedSec*1000 + uint32(elapsedFracMs)

	return nil
}

func (c *flowcapCodec) Swap(buf []byte) {
	swapWords(buf, 0, 4, 1)
	swapWords(buf, 4, 4, 1)
	swapWords(buf, 8, 4, 1)
	swapWords(buf, 12, 4, 1)
	swapWords(buf, 16, 2, 1)
	swapWords(buf, 18, 2, 1)
	swapWords(buf, 20, 2, 1)

	switch c.version {
	case 2:
		swapWords(buf, 24, 4, 1)
	case 3, 4:
		swapWords(buf, 22, 2, 1)
		swapWords(buf, 26, 4, 1)
		if c.version == 4 {
			swapWords(buf, 36, 4, 1)
		}
	default: // 5, 6
		swapWords(buf, 22, 2, 1)
		swapWords(buf, 24, 2, 1)
		swapWords(buf, 26, 2, 1)
		swapWords(buf, 28, 4, 1)
	}
}
