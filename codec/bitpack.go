package codec

import (
	"fmt"

	"github.com/flowrec/silkio/errs"
)

// PktsDivisor is the packet-count scale-down factor applied when a
// 20-bit packet count field would otherwise overflow, per spec.md
// section 4.2 ("Bytes/packets with bpp").
const PktsDivisor = 64

// PackPktsProto encodes the 24-bit-packets + 8-bit-protocol word used
// by the older flowcap-style layouts (spec.md section 4.2, "Packets-
// and-protocol (32 bits)"): three little-endian bytes of packet count,
// saturating at 0xFFFFFF, followed by the protocol byte.
func PackPktsProto(pkts uint64, proto uint8) uint32 {
	p := pkts
	if p > 0xFFFFFF {
		p = 0xFFFFFF
	}

	return uint32(p) | uint32(proto)<<24
}

// UnpackPktsProto reverses PackPktsProto.
func UnpackPktsProto(word uint32) (pkts uint64, proto uint8) {
	return uint64(word & 0xFFFFFF), uint8(word >> 24)
}

// BppVolume is the packed form of the "bytes/packets with bpp"
// encoding: a 20-bit packet count (optionally divided by 64 and
// flagged when it would otherwise overflow), an elapsed-time field of
// configurable width, a pflag bit, and a 14.6 fixed-point
// bytes-per-packet ratio (spec.md section 4.2).
type BppVolume struct {
	Pkts      uint64
	Bytes     uint64
	ElapsedMs uint32
}

// packedBpp holds the three encoded sub-fields prior to their caller-
// specific placement into a format's particular word layout (formats
// differ in which bits of which 32-bit word hold each piece, but never
// in the arithmetic itself).
type packedBpp struct {
	pkts20  uint32 // 20-bit, possibly divided packet count
	pflag   uint32 // 1 if pkts20 must be multiplied by PktsScaleDivisor
	bppLo4  uint32 // low 4 bits of the 14-bit whole part
	bppHi10 uint32 // high 10 bits of the 14-bit whole part
	bppFrac uint32 // 6-bit fractional part
	elapsed uint32
}

// PktsScaleDivisor is applied to the packet count when it doesn't fit
// in 20 bits, per spec.md section 4.2.
const PktsScaleDivisor = 64

func packBpp(v BppVolume) (packedBpp, error) {
	if v.Pkts == 0 {
		return packedBpp{}, errs.ErrPktsZero
	}

	pkts := v.Pkts
	pflag := uint32(0)
	if pkts >= 1<<20 {
		pkts /= PktsScaleDivisor
		pflag = 1
		if pkts >= 1<<20 {
			return packedBpp{}, fmt.Errorf("%w: %d packets", errs.ErrPktsOverflow, v.Pkts)
		}
	}

	// bpp is a 20-bit fixed-point value, 14 bits whole + 6 bits
	// fractional, computed from the *unscaled* byte/packet ratio with
	// round-half-up, per spec.md section 4.2.
	bpp := (v.Bytes<<6 + v.Pkts/2) / v.Pkts
	if bpp >= 1<<20 {
		return packedBpp{}, fmt.Errorf("%w: bytes-per-packet ratio", errs.ErrBppOverflow)
	}

	return packedBpp{
		pkts20:  uint32(pkts),
		pflag:   pflag,
		bppHi10: uint32(bpp>>10) & 0x3FF,
		bppLo4:  uint32(bpp>>6) & 0xF,
		bppFrac: uint32(bpp) & 0x3F,
		elapsed: v.ElapsedMs,
	}, nil
}

func unpackBpp(p packedBpp) BppVolume {
	pkts := uint64(p.pkts20)
	if p.pflag != 0 {
		pkts *= PktsScaleDivisor
	}

	bpp := uint64(p.bppHi10)<<10 | uint64(p.bppLo4)<<6 | uint64(p.bppFrac)
	bytes := (bpp * pkts) >> 6

	return BppVolume{Pkts: pkts, Bytes: bytes, ElapsedMs: p.elapsed}
}

// StartTimeOffset converts an absolute start time into an hour-
// relative offset validated against a bucket count, per spec.md
// section 4.2 ("Start time ... Range check: 0 <= start_offset <
// 3600_000 * BUCKETS").
func StartTimeOffset(startMs, hourBoundaryMs int64, buckets int64) (uint32, error) {
	offset := startMs - hourBoundaryMs
	if offset < 0 {
		return 0, fmt.Errorf("%w: %dms before hour boundary", errs.ErrStartTimeUnderflow, -offset)
	}
	if offset >= 3600_000*buckets {
		return 0, fmt.Errorf("%w: %dms past %d-hour window", errs.ErrStartTimeOverflow, offset, buckets)
	}

	return uint32(offset), nil
}

// ProtoFlagsOverlay packs the shared proto/TCP-flags byte pair
// described in spec.md section 4.2: a single bit selects whether the
// pair holds plain protocol+reported-flags or expanded initial/session
// TCP flags.
type ProtoFlagsOverlay struct {
	Proto        uint8
	AllFlags     uint8
	InitialFlags uint8
	SessionFlags uint8
	Expanded     bool
}

// Pack returns the (firstByte, secondByte) on-disk pair.
func (o ProtoFlagsOverlay) Pack() (first, second byte) {
	if o.Proto != 6 {
		return o.Proto, o.AllFlags
	}
	if o.Expanded {
		return o.InitialFlags, o.SessionFlags
	}

	return o.AllFlags, o.AllFlags
}

// UnpackProtoFlagsOverlay reverses Pack given whether the record's
// protocol is TCP and whether expanded flags are in effect.
func UnpackProtoFlagsOverlay(first, second byte, isTCP, expanded bool) ProtoFlagsOverlay {
	if !isTCP {
		return ProtoFlagsOverlay{Proto: first, AllFlags: second}
	}
	if expanded {
		return ProtoFlagsOverlay{Proto: 6, InitialFlags: first, SessionFlags: second, Expanded: true, AllFlags: first | second}
	}

	return ProtoFlagsOverlay{Proto: 6, AllFlags: first}
}

// PackFractionalTime3 hand-encodes a 10-bit start-millis value and a
// 10-bit elapsed-millis value across 3 bytes, per spec.md section 4.2.
func PackFractionalTime3(startMs, elapsedMs uint16) [3]byte {
	s := startMs & 0x3FF
	e := elapsedMs & 0x3FF

	var ar [3]byte
	ar[0] = byte(s >> 2)
	ar[1] = byte((s&0x3)<<6) | byte(e>>4)
	ar[2] = byte((e & 0xF) << 4)

	return ar
}

// UnpackFractionalTime3 reverses PackFractionalTime3.
func UnpackFractionalTime3(ar [3]byte) (startMs, elapsedMs uint16) {
	startMs = uint16(ar[0])<<2 | uint16(ar[1]>>6)
	elapsedMs = uint16(ar[1]&0x3F)<<4 | uint16(ar[2]>>4)

	return startMs, elapsedMs
}

// PackSNMP8 saturates an SNMP interface index to fit 8 bits.
func PackSNMP8(v uint32) uint8 {
	if v > 0xFF {
		return 0xFF
	}

	return uint8(v)
}

// PackSNMP16 fails rather than silently truncate past 16 bits, per
// spec.md section 4.2 ("must fail with SnmpOverflow on values > 0xFFFF").
func PackSNMP16(v uint32) (uint16, error) {
	if v > 0xFFFF {
		return 0, fmt.Errorf("%w: %d", errs.ErrSnmpOverflow, v)
	}

	return uint16(v), nil
}

// IP4in6Prefix is the 12-byte ::ffff:0:0/96 prefix used to embed an
// IPv4 address in a 16-byte IPv6-width field, per spec.md section 4.2.
var IP4in6Prefix = [12]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xFF, 0xFF}

// EmbedIPv4In16 writes a 4-byte IPv4 address into a 16-byte buffer
// using the IP4in6Prefix.
func EmbedIPv4In16(dst []byte, v4 [4]byte) {
	copy(dst[0:12], IP4in6Prefix[:])
	copy(dst[12:16], v4[:])
}

// IsMappedV4 reports whether a 16-byte buffer holds an IPv4 address
// embedded via EmbedIPv4In16.
func IsMappedV4(b [16]byte) bool {
	for i := 0; i < 12; i++ {
		if b[i] != IP4in6Prefix[i] {
			return false
		}
	}

	return true
}
