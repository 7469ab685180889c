package fragment

import (
	"errors"
	"fmt"

	"github.com/danmuck/scanlink/internal/wire"
)

// Magic tags every fragment datagram.
const Magic uint32 = 0xD7E01234

// Wire layout, little-endian: magic(4) | frame_id(4) | fragment_index(4) |
// fragment_count(4) | timestamp_ns(8) | rows(4) | cols(4) | crc16(2) |
// reserved(2). The CRC covers the 32 header bytes that precede it.
const (
	HeaderSize = 36
	crcOffset  = 32
)

var (
	ErrShortHeader   = errors.New("fragment: buffer shorter than header")
	ErrBadMagic      = errors.New("fragment: bad magic")
	ErrHeaderCRC     = errors.New("fragment: header crc mismatch")
	ErrIndexRange    = errors.New("fragment: fragment_index not below fragment_count")
	ErrBadMaxPayload = errors.New("fragment: max payload must be positive")
	ErrEmptyFrame    = errors.New("fragment: empty frame")
)

// Header is the fixed preamble of every fragment datagram.
type Header struct {
	FrameID     uint32
	Index       uint32
	Count       uint32
	TimestampNS uint64
	Rows        uint32
	Cols        uint32
}

// Fragment is one bounded-size piece of a frame.
type Fragment struct {
	Header
	Payload []byte
}

// Encode serializes f with a freshly computed header CRC.
func Encode(f Fragment) []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	off := wire.PutU32(buf, 0, Magic)
	off = wire.PutU32(buf, off, f.FrameID)
	off = wire.PutU32(buf, off, f.Index)
	off = wire.PutU32(buf, off, f.Count)
	off = wire.PutU64(buf, off, f.TimestampNS)
	off = wire.PutU32(buf, off, f.Rows)
	off = wire.PutU32(buf, off, f.Cols)
	wire.PutU16(buf, off, wire.CRC16(buf[:crcOffset]))
	copy(buf[HeaderSize:], f.Payload)
	return buf
}

// Decode parses and validates one fragment datagram. The header CRC
// must verify before the fragment is accepted.
func Decode(buf []byte) (Fragment, error) {
	if len(buf) < HeaderSize {
		return Fragment{}, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(buf))
	}
	if wire.U32(buf, 0) != Magic {
		return Fragment{}, fmt.Errorf("%w: %#x", ErrBadMagic, wire.U32(buf, 0))
	}
	if !wire.VerifyCRC16(buf[:crcOffset], wire.U16(buf, crcOffset)) {
		return Fragment{}, ErrHeaderCRC
	}
	f := Fragment{
		Header: Header{
			FrameID:     wire.U32(buf, 4),
			Index:       wire.U32(buf, 8),
			Count:       wire.U32(buf, 12),
			TimestampNS: wire.U64(buf, 16),
			Rows:        wire.U32(buf, 24),
			Cols:        wire.U32(buf, 28),
		},
	}
	if f.Count == 0 || f.Index >= f.Count {
		return Fragment{}, fmt.Errorf("%w: index %d count %d", ErrIndexRange, f.Index, f.Count)
	}
	if len(buf) > HeaderSize {
		f.Payload = make([]byte, len(buf)-HeaderSize)
		copy(f.Payload, buf[HeaderSize:])
	}
	return f, nil
}
