package codec

import (
	"net/netip"

	"github.com/flowrec/silkio/errs"
	"github.com/flowrec/silkio/format"
)

// ipv6Codec implements the FT_RWIPV6ROUTING wire layouts from
// original_source/rwipv6routingio.c: plain (non-bit-packed) fields,
// always 16-byte addresses with ::ffff:0:0/96 embedding for IPv4
// records, and the top bit of the tcp_state byte marking a record as
// genuinely IPv6 (spec.md section 4.2, "IPv4-in-IPv6 embedding").
//
// The Ipv6 family (FT_RWIPV6) is registered against the same codec
// values, so an Ipv6 file stores and reads back the next-hop address
// exactly as Ipv6Routing does. No narrower non-routing layout is
// implemented, since no original_source file for rwipv6io.c was
// retrieved to confirm one.
type ipv6Codec struct {
	version    uint8
	withNhIP   bool
	wideCounts bool // V3: 64-bit pkts/bytes, 32-bit input/output/elapsed; V1/V2: narrower
}

func init() {
	v1 := &ipv6Codec{version: 1, withNhIP: true, wideCounts: false}
	v2 := &ipv6Codec{version: 2, withNhIP: true, wideCounts: false}
	v3 := &ipv6Codec{version: 3, withNhIP: true, wideCounts: true}

	register(format.FormatIpv6Routing, 1, v1)
	register(format.FormatIpv6Routing, 2, v2)
	register(format.FormatIpv6Routing, 3, v3)

	// Ipv6 (non-routing) shares the routing codecs, nhIP field included.
	register(format.FormatIpv6, 1, v1)
	register(format.FormatIpv6, 2, v2)
	register(format.FormatIpv6, 3, v3)
}

func (c *ipv6Codec) SupportsIPv6() bool { return true }

func (c *ipv6Codec) RecordLength() int {
	if c.wideCounts {
		return 100
	}

	return 88
}

// offsets, shared by V1-V3; only the pkts/bytes/input/output widths
// and the presence of the output field at the tail change with wideCounts.
const (
	ipv6OffStartTime = 0
	ipv6OffElapsed   = 8
	ipv6OffSPort     = 12
	ipv6OffDPort     = 14
	ipv6OffProto     = 16
	ipv6OffFlowType  = 17
	ipv6OffSensor    = 18
	ipv6OffFlags     = 20
	ipv6OffInitFlags = 21
	ipv6OffRestFlags = 22
	ipv6OffTCPState  = 23
	ipv6OffApp       = 24
	ipv6OffMemo      = 26
	ipv6OffInput     = 28
)

func (c *ipv6Codec) Pack(rec *format.FlowRecord, buf []byte) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	nativeEngine.PutUint64(buf[ipv6OffStartTime:], uint64(rec.StartTimeMs))
	nativeEngine.PutUint32(buf[ipv6OffElapsed:], rec.DurationMs)
	nativeEngine.PutUint16(buf[ipv6OffSPort:], rec.SrcPort)
	nativeEngine.PutUint16(buf[ipv6OffDPort:], rec.DstPort)
	buf[ipv6OffProto] = rec.Proto
	buf[ipv6OffFlowType] = rec.FlowtypeID
	nativeEngine.PutUint16(buf[ipv6OffSensor:], rec.SensorID)
	buf[ipv6OffFlags] = rec.AllFlags
	buf[ipv6OffInitFlags] = rec.InitialFlags
	buf[ipv6OffRestFlags] = rec.SessionFlags
	buf[ipv6OffTCPState] = rec.Attributes
	nativeEngine.PutUint16(buf[ipv6OffApp:], rec.Application)
	nativeEngine.PutUint16(buf[ipv6OffMemo:], rec.Memo)

	var sIP, dIP, nhIP [16]byte
	isV6 := rec.IsIPv6()
	if isV6 {
		buf[ipv6OffTCPState] |= 0x80
		sIP, dIP, nhIP = rec.SrcAddr.As16(), rec.DstAddr.As16(), rec.NextHop.As16()
	} else {
		EmbedIPv4In16(sIP[:], rec.SrcAddr.As4())
		EmbedIPv4In16(dIP[:], rec.DstAddr.As4())
		if c.withNhIP {
			EmbedIPv4In16(nhIP[:], rec.NextHop.As4())
		}
	}

	if c.wideCounts {
		nativeEngine.PutUint32(buf[ipv6OffInput:], rec.Input)
		nativeEngine.PutUint64(buf[32:], rec.Packets)
		nativeEngine.PutUint64(buf[40:], rec.Bytes)
		copy(buf[48:64], sIP[:])
		copy(buf[64:80], dIP[:])
		copy(buf[80:96], nhIP[:])
		nativeEngine.PutUint32(buf[96:], rec.Output)
	} else {
		nativeEngine.PutUint16(buf[ipv6OffInput:], uint16(rec.Input))
		nativeEngine.PutUint16(buf[30:], uint16(rec.Output))
		if rec.Packets > 0xFFFFFFFF {
			return errs.ErrPktsOverflow
		}
		if rec.Bytes > 0xFFFFFFFF {
			return errs.ErrBytesOverflow
		}
		nativeEngine.PutUint32(buf[32:], uint32(rec.Packets))
		nativeEngine.PutUint32(buf[36:], uint32(rec.Bytes))
		copy(buf[40:56], sIP[:])
		copy(buf[56:72], dIP[:])
		if c.withNhIP {
			copy(buf[72:88], nhIP[:])
		}
	}

	return nil
}

func (c *ipv6Codec) Unpack(buf []byte, rec *format.FlowRecord) error {
	rec.StartTimeMs = int64(nativeEngine.Uint64(buf[ipv6OffStartTime:]))
	rec.DurationMs = nativeEngine.Uint32(buf[ipv6OffElapsed:])
	rec.SrcPort = nativeEngine.Uint16(buf[ipv6OffSPort:])
	rec.DstPort = nativeEngine.Uint16(buf[ipv6OffDPort:])
	rec.Proto = buf[ipv6OffProto]
	rec.FlowtypeID = buf[ipv6OffFlowType]
	rec.SensorID = nativeEngine.Uint16(buf[ipv6OffSensor:])
	rec.AllFlags = buf[ipv6OffFlags]
	rec.InitialFlags = buf[ipv6OffInitFlags]
	rec.SessionFlags = buf[ipv6OffRestFlags]
	rec.Attributes = buf[ipv6OffTCPState] &^ 0x80
	rec.Application = nativeEngine.Uint16(buf[ipv6OffApp:])
	rec.Memo = nativeEngine.Uint16(buf[ipv6OffMemo:])

	isV6 := buf[ipv6OffTCPState]&0x80 != 0

	var sIP, dIP, nhIP [16]byte
	if c.wideCounts {
		rec.Input = nativeEngine.Uint32(buf[ipv6OffInput:])
		rec.Packets = nativeEngine.Uint64(buf[32:])
		rec.Bytes = nativeEngine.Uint64(buf[40:])
		copy(sIP[:], buf[48:64])
		copy(dIP[:], buf[64:80])
		copy(nhIP[:], buf[80:96])
		rec.Output = nativeEngine.Uint32(buf[96:])
	} else {
		rec.Input = uint32(nativeEngine.Uint16(buf[ipv6OffInput:]))
		rec.Output = uint32(nativeEngine.Uint16(buf[30:]))
		rec.Packets = uint64(nativeEngine.Uint32(buf[32:]))
		rec.Bytes = uint64(nativeEngine.Uint32(buf[36:]))
		copy(sIP[:], buf[40:56])
		copy(dIP[:], buf[56:72])
		if c.withNhIP {
			copy(nhIP[:], buf[72:88])
		}
	}

	if isV6 {
		rec.SrcAddr = netip.AddrFrom16(sIP)
		rec.DstAddr = netip.AddrFrom16(dIP)
		rec.NextHop = netip.AddrFrom16(nhIP)
	} else {
		var s4, d4, n4 [4]byte
		copy(s4[:], sIP[12:16])
		copy(d4[:], dIP[12:16])
		copy(n4[:], nhIP[12:16])
		rec.SrcAddr = netip.AddrFrom4(s4)
		rec.DstAddr = netip.AddrFrom4(d4)
		rec.NextHop = netip.AddrFrom4(n4)
	}

	return nil
}

func (c *ipv6Codec) Swap(buf []byte) {
	swapWords(buf, ipv6OffStartTime, 8, 1)
	swapWords(buf, ipv6OffElapsed, 4, 1)
	swapWords(buf, ipv6OffSPort, 2, 1)
	swapWords(buf, ipv6OffDPort, 2, 1)
	swapWords(buf, ipv6OffSensor, 2, 1)
	swapWords(buf, ipv6OffApp, 2, 1)
	swapWords(buf, ipv6OffMemo, 2, 1)

	if c.wideCounts {
		swapWords(buf, ipv6OffInput, 4, 1)
		swapWords(buf, 32, 8, 1)
		swapWords(buf, 40, 8, 1)
		swapWords(buf, 96, 4, 1)
	} else {
		swapWords(buf, ipv6OffInput, 2, 1)
		swapWords(buf, 30, 2, 1)
		swapWords(buf, 32, 4, 1)
		swapWords(buf, 36, 4, 1)
	}
}
