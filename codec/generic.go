package codec

import (
	"fmt"
	"net/netip"

	"github.com/flowrec/silkio/errs"
	"github.com/flowrec/silkio/format"
)

// genericCodec implements the reference FT_RWGENERIC layout: plain
// (non-bit-packed) fields in a fixed order, 52 bytes for versions 0-4
// (IPv4 only) and 88 bytes for version 5 (IPv6-capable, using the same
// always-16-byte-address-plus-top-bit-shadow scheme as Ipv6Routing).
// Grounded on the field ordering and tcp_state/is_ipv6 convention
// shared with original_source/rwipv6routingio.c, since RWGENERIC's own
// C source wasn't part of the retrieved set; this is the "reference"
// layout spec.md section 4.2 calls out, so it reuses the clearest,
// least bit-packed format this package has real source grounding for.
type genericCodec struct {
	version uint8
	ipv6    bool
}

func init() {
	v6 := &genericCodec{version: 5, ipv6: true}
	for v := uint8(0); v <= 4; v++ {
		register(format.FormatGeneric, v, &genericCodec{version: v, ipv6: false})
	}
	register(format.FormatGeneric, 5, v6)

	// Filter (FT_RWFILTER, the record rwfilter writes) reuses
	// RWGENERIC's layout in real SiLK; no dedicated struct needed.
	for v := uint8(0); v <= 5; v++ {
		register(format.FormatFilter, v, registry[familyKey{format.FormatGeneric, v}])
	}
	register(format.FormatFilter, 6, v6)

	// Flowcap (flowcap.go) and AugSnmpOut (augsnmpout.go) get their own
	// codecs grounded on original_source/flowcapio.c and
	// original_source/rwaugsnmpoutio.c respectively. Augmented, AugWeb
	// and AugRouting have no retrieved C source of their own — no
	// rwaugio.c/rwaugwebio.c/rwaugrouterio.c file was part of the
	// retrieval pack — so they remain registered against the v4 (IPv4,
	// 52-byte) generic layout: a documented scope reduction, not a
	// claim that their web-port-compression/extra-routing fields are
	// implemented.
	v4 := registry[familyKey{format.FormatGeneric, 4}]
	for v := uint8(1); v <= 6; v++ {
		register(format.FormatAugmented, v, v4)
		register(format.FormatAugWeb, v, v4)
		register(format.FormatAugRouting, v, v4)
	}
}

func (c *genericCodec) SupportsIPv6() bool { return c.ipv6 }

func (c *genericCodec) RecordLength() int {
	if c.ipv6 {
		return 88
	}

	return 52
}

const (
	genOffStartTime = 0
	genOffElapsed   = 8
	genOffSPort     = 12
	genOffDPort     = 14
	genOffProto     = 16
	genOffFlowType  = 17
	genOffSensor    = 18
	genOffFlags     = 20
	genOffInitFlags = 21
	genOffRestFlags = 22
	genOffTCPState  = 23
	genOffApp       = 24
	genOffMemo      = 26
	genOffInput     = 28
	genOffOutput    = 32
)

func (c *genericCodec) Pack(rec *format.FlowRecord, buf []byte) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	nativeEngine.PutUint64(buf[genOffStartTime:], uint64(rec.StartTimeMs))
	nativeEngine.PutUint32(buf[genOffElapsed:], rec.DurationMs)
	nativeEngine.PutUint16(buf[genOffSPort:], rec.SrcPort)
	nativeEngine.PutUint16(buf[genOffDPort:], rec.DstPort)
	buf[genOffProto] = rec.Proto
	buf[genOffFlowType] = rec.FlowtypeID
	nativeEngine.PutUint16(buf[genOffSensor:], rec.SensorID)
	buf[genOffFlags] = rec.AllFlags
	buf[genOffInitFlags] = rec.InitialFlags
	buf[genOffRestFlags] = rec.SessionFlags
	buf[genOffTCPState] = rec.Attributes
	nativeEngine.PutUint16(buf[genOffApp:], rec.Application)
	nativeEngine.PutUint16(buf[genOffMemo:], rec.Memo)
	nativeEngine.PutUint32(buf[genOffInput:], rec.Input)
	nativeEngine.PutUint32(buf[genOffOutput:], rec.Output)

	if !c.ipv6 {
		if rec.IsIPv6() {
			return fmt.Errorf("%w: version %d", errs.ErrUnsupportedIpv6, c.version)
		}
		if rec.Packets > 0xFFFFFFFF {
			return errs.ErrPktsOverflow
		}
		if rec.Bytes > 0xFFFFFFFF {
			return errs.ErrBytesOverflow
		}
		nativeEngine.PutUint32(buf[36:40], uint32(rec.Packets))
		nativeEngine.PutUint32(buf[40:44], uint32(rec.Bytes))
		s4, d4 := rec.SrcAddr.As4(), rec.DstAddr.As4()
		copy(buf[44:48], s4[:])
		copy(buf[48:52], d4[:])

		return nil
	}

	isV6 := rec.IsIPv6()
	if isV6 {
		buf[genOffTCPState] |= 0x80
	}

	var sIP, dIP [16]byte
	if isV6 {
		sIP, dIP = rec.SrcAddr.As16(), rec.DstAddr.As16()
	} else {
		EmbedIPv4In16(sIP[:], rec.SrcAddr.As4())
		EmbedIPv4In16(dIP[:], rec.DstAddr.As4())
	}

	nativeEngine.PutUint64(buf[36:], rec.Packets)
	nativeEngine.PutUint64(buf[44:], rec.Bytes)
	copy(buf[52:68], sIP[:])
	copy(buf[68:84], dIP[:])
	nativeEngine.PutUint32(buf[84:], 0) // reserved/padding to reach 88 bytes

	return nil
}

func (c *genericCodec) Unpack(buf []byte, rec *format.FlowRecord) error {
	rec.StartTimeMs = int64(nativeEngine.Uint64(buf[genOffStartTime:]))
	rec.DurationMs = nativeEngine.Uint32(buf[genOffElapsed:])
	rec.SrcPort = nativeEngine.Uint16(buf[genOffSPort:])
	rec.DstPort = nativeEngine.Uint16(buf[genOffDPort:])
	rec.Proto = buf[genOffProto]
	rec.FlowtypeID = buf[genOffFlowType]
	rec.SensorID = nativeEngine.Uint16(buf[genOffSensor:])
	rec.AllFlags = buf[genOffFlags]
	rec.InitialFlags = buf[genOffInitFlags]
	rec.SessionFlags = buf[genOffRestFlags]
	rec.Application = nativeEngine.Uint16(buf[genOffApp:])
	rec.Memo = nativeEngine.Uint16(buf[genOffMemo:])
	rec.Input = nativeEngine.Uint32(buf[genOffInput:])
	rec.Output = nativeEngine.Uint32(buf[genOffOutput:])

	if !c.ipv6 {
		rec.Attributes = buf[genOffTCPState]
		rec.Packets = uint64(nativeEngine.Uint32(buf[36:40]))
		rec.Bytes = uint64(nativeEngine.Uint32(buf[40:44]))
		var s4, d4 [4]byte
		copy(s4[:], buf[44:48])
		copy(d4[:], buf[48:52])
		rec.SrcAddr = netip.AddrFrom4(s4)
		rec.DstAddr = netip.AddrFrom4(d4)

		return nil
	}

	rec.Attributes = buf[genOffTCPState] &^ 0x80
	isV6 := buf[genOffTCPState]&0x80 != 0
	rec.Packets = nativeEngine.Uint64(buf[36:])
	rec.Bytes = nativeEngine.Uint64(buf[44:])

	var sIP, dIP [16]byte
	copy(sIP[:], buf[52:68])
	copy(dIP[:], buf[68:84])

	if isV6 {
		rec.SrcAddr = netip.AddrFrom16(sIP)
		rec.DstAddr = netip.AddrFrom16(dIP)
	} else {
		var s4, d4 [4]byte
		copy(s4[:], sIP[12:16])
		copy(d4[:], dIP[12:16])
		rec.SrcAddr = netip.AddrFrom4(s4)
		rec.DstAddr = netip.AddrFrom4(d4)
	}

	return nil
}

func (c *genericCodec) Swap(buf []byte) {
	swapWords(buf, genOffStartTime, 8, 1)
	swapWords(buf, genOffElapsed, 4, 1)
	swapWords(buf, genOffSPort, 2, 1)
	swapWords(buf, genOffDPort, 2, 1)
	swapWords(buf, genOffSensor, 2, 1)
	swapWords(buf, genOffApp, 2, 1)
	swapWords(buf, genOffMemo, 2, 1)
	swapWords(buf, genOffInput, 4, 1)
	swapWords(buf, genOffOutput, 4, 1)

	if !c.ipv6 {
		swapWords(buf, 36, 4, 1)
		swapWords(buf, 40, 4, 1)

		return
	}

	swapWords(buf, 36, 8, 1)
	swapWords(buf, 44, 8, 1)
}
