package wire

import (
	"encoding/binary"
	"errors"
)

var ErrMalformedHeader = errors.New("wire: malformed header")

// PutU16 writes v little-endian at buf[off:] and returns the next offset.
func PutU16(buf []byte, off int, v uint16) int {
	binary.LittleEndian.PutUint16(buf[off:], v)
	return off + 2
}

// PutU32 writes v little-endian at buf[off:] and returns the next offset.
func PutU32(buf []byte, off int, v uint32) int {
	binary.LittleEndian.PutUint32(buf[off:], v)
	return off + 4
}

// PutU64 writes v little-endian at buf[off:] and returns the next offset.
func PutU64(buf []byte, off int, v uint64) int {
	binary.LittleEndian.PutUint64(buf[off:], v)
	return off + 8
}

func U16(buf []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(buf[off:])
}

func U32(buf []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(buf[off:])
}

func U64(buf []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(buf[off:])
}
