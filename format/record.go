// Package format holds the logical FlowRecord data model and the small
// enums (compression method, file format id) that the header, codec,
// and schema packages all need a shared vocabulary for.
package format

import (
	"fmt"
	"net/netip"

	"github.com/flowrec/silkio/errs"
)

// Attribute bits, low 7 bits per spec.md section 3. The top bit (0x80)
// is reserved as a codec-private is_ipv6 shadow and is never exposed
// through Attributes.
const (
	AttrExpanded           uint8 = 1 << 0 // initial/session flags are valid
	AttrFinFollowedNotAck  uint8 = 1 << 1
	AttrUniformPktSize     uint8 = 1 << 2
	AttrTimeoutKilled      uint8 = 1 << 3
	AttrTimeoutStarted     uint8 = 1 << 4

	attrReservedMask uint8 = 0x60
	attrIsIPv6Shadow uint8 = 1 << 7
)

// FlowRecord is the logical flow record every record codec packs into
// and unpacks out of its historical on-disk layout, and the unit a
// FlowStream reads and writes.
type FlowRecord struct {
	SrcAddr  netip.Addr
	DstAddr  netip.Addr
	NextHop  netip.Addr

	SrcPort  uint16
	DstPort  uint16 // carries ICMP type<<8|code when Proto is 1 or 58
	Proto    uint8

	StartTimeMs int64  // ms since Unix epoch
	DurationMs  uint32 // end = StartTimeMs + DurationMs

	Packets uint64
	Bytes   uint64

	AllFlags     uint8 // OR of all packets' TCP flags
	InitialFlags uint8 // first packet only, valid iff AttrExpanded
	SessionFlags uint8 // non-initial packets, valid iff AttrExpanded

	Attributes uint8 // low 7 bits, see Attr* constants

	Application uint16
	SensorID    uint16
	FlowtypeID  uint8
	Input       uint32
	Output      uint32
	Memo        uint16

	Sidecar []byte // opaque, optional
}

// IsICMP reports whether Proto carries ICMP(v4) or ICMPv6 semantics,
// in which case DstPort holds (type<<8)|code rather than a real port.
func (r *FlowRecord) IsICMP() bool {
	return r.Proto == 1 || r.Proto == 58
}

// IsIPv6 reports whether the record's addresses should be treated as
// IPv6. A FlowRecord carries this as a derived property of SrcAddr
// rather than a separate stored bit; codecs that need the historical
// on-disk shadow bit compute it with this method.
func (r *FlowRecord) IsIPv6() bool {
	return r.SrcAddr.Is6() && !r.SrcAddr.Is4In6()
}

// HasExpandedFlags reports whether InitialFlags/SessionFlags are valid
// per the AttrExpanded invariant in spec.md section 3: EXPANDED may
// only be set for TCP with at least one of the split flags non-zero.
func (r *FlowRecord) HasExpandedFlags() bool {
	return r.Attributes&AttrExpanded != 0
}

// NormalizeExpanded clears AttrExpanded when the invariant it asserts
// doesn't hold, tolerating legacy data that set the bit incorrectly.
func (r *FlowRecord) NormalizeExpanded() {
	if r.Attributes&AttrExpanded == 0 {
		return
	}

	if r.Proto != 6 || (r.InitialFlags == 0 && r.SessionFlags == 0) {
		r.Attributes &^= AttrExpanded
	}
}

// Validate checks the write-time invariants from spec.md section 3
// that every codec's Pack must enforce before touching the wire
// format: packets must be at least 1.
func (r *FlowRecord) Validate() error {
	if r.Packets == 0 {
		return fmt.Errorf("flow record: %w", errs.ErrPktsZero)
	}

	return nil
}
