package format

// CompressionMethod identifies how block payloads (or, for legacy
// files, the whole record stream) are compressed. The enum and its
// String() follow the teacher's small-enum-with-stringer package
// shape (format.EncodingType/CompressionType in arloliu-mebo).
type CompressionMethod uint8

const (
	CompressionNone CompressionMethod = iota + 1
	CompressionZlib
	CompressionLzo1x
	CompressionSnappy
)

func (c CompressionMethod) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZlib:
		return "zlib"
	case CompressionLzo1x:
		return "lzo1x"
	case CompressionSnappy:
		return "snappy"
	default:
		return "unknown"
	}
}

// FileVersion selects the on-disk record framing: a plain sequence of
// fixed-length records, or the block-framed layout from spec.md
// section 4.3.
type FileVersion uint8

const (
	FileVersionLegacy      FileVersion = 0
	FileVersionBlockHeader FileVersion = 16
)

// FormatID identifies a record codec family (spec.md section 4.2's
// table). Values are stable on-disk identifiers.
type FormatID uint8

const (
	FormatFlowcap FormatID = iota + 1
	FormatRouted
	FormatNotRouted
	FormatSplit
	FormatAugmented
	FormatAugWeb
	FormatAugRouting
	FormatAugSnmpOut
	FormatGeneric
	FormatIpv6
	FormatIpv6Routing
	FormatFilter
	FormatWww
)

func (f FormatID) String() string {
	switch f {
	case FormatFlowcap:
		return "flowcap"
	case FormatRouted:
		return "routed"
	case FormatNotRouted:
		return "notrouted"
	case FormatSplit:
		return "split"
	case FormatAugmented:
		return "augmented"
	case FormatAugWeb:
		return "aug-web"
	case FormatAugRouting:
		return "aug-routing"
	case FormatAugSnmpOut:
		return "aug-snmpout"
	case FormatGeneric:
		return "generic"
	case FormatIpv6:
		return "ipv6"
	case FormatIpv6Routing:
		return "ipv6routing"
	case FormatFilter:
		return "filter"
	case FormatWww:
		return "www"
	default:
		return "unknown"
	}
}

// IOMode selects how a stream is opened, per spec.md section 4.1.
type IOMode uint8

const (
	IOModeRead IOMode = iota
	IOModeWrite
	IOModeAppend
)

// Content selects what the stream carries.
type Content uint8

const (
	ContentText Content = iota
	ContentOtherBinary
	ContentSilk
	ContentSilkFlow
)

func (c Content) String() string {
	switch c {
	case ContentText:
		return "text"
	case ContentOtherBinary:
		return "other-binary"
	case ContentSilk:
		return "silk"
	case ContentSilkFlow:
		return "silk-flow"
	default:
		return "unknown"
	}
}

// IPv6Policy controls how a reader reconciles a record's address
// family with the caller's container limits (spec.md section 4.1).
type IPv6Policy uint8

const (
	IPv6PolicyMix IPv6Policy = iota
	IPv6PolicyIgnore
	IPv6PolicyAsV4
	IPv6PolicyForce
	IPv6PolicyOnly
)
