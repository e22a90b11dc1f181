// Package endian provides the byte-order engine shared by every binary
// section of silkio: the file header, block headers, and every record
// codec's pack/unpack pair.
//
// It combines encoding/binary's ByteOrder and AppendByteOrder into one
// interface so callers that build up a growing buffer (block payloads,
// record buffers) can use the faster Append* path without a throwaway
// allocation.
package endian

import (
	"encoding/binary"
	"unsafe"
)

// Engine is satisfied by binary.LittleEndian and binary.BigEndian.
type Engine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Little and Big are the two engines a silkio stream can select. The
// file header records which one was used to write a file; silkio never
// converts between them on write (spec.md Non-goals), only swaps bytes
// on read when the header's byte order differs from the host's.
var (
	Little Engine = binary.LittleEndian
	Big    Engine = binary.BigEndian
)

// HeaderByte is the single-byte on-disk encoding of a byte order: 'B'
// for big-endian, 'L' for little-endian, matching the file header
// layout in spec.md section 6.
type HeaderByte byte

const (
	ByteOrderBig    HeaderByte = 'B'
	ByteOrderLittle HeaderByte = 'L'
)

// checkHostOrder probes the host's native byte order once at init.
func checkHostOrder() Engine {
	var i uint16 = 0x0100

	b := (*[2]byte)(unsafe.Pointer(&i))
	if b[0] == 0x01 {
		return Big
	}

	return Little
}

var hostOrder = checkHostOrder()

// Native returns the host's byte order.
func Native() Engine { return hostOrder }

// IsNative reports whether e matches the host's byte order.
func IsNative(e Engine) bool { return e == hostOrder }

// FromHeaderByte maps a file header's byte-order flag to an Engine.
func FromHeaderByte(b HeaderByte) (Engine, bool) {
	switch b {
	case ByteOrderLittle:
		return Little, true
	case ByteOrderBig:
		return Big, true
	default:
		return nil, false
	}
}

// ToHeaderByte maps an Engine back to its on-disk byte-order flag.
func ToHeaderByte(e Engine) HeaderByte {
	if e == Little {
		return ByteOrderLittle
	}

	return ByteOrderBig
}
