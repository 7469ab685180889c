package csi

import (
	"fmt"

	"github.com/danmuck/scanlink/internal/wire"
)

// Kind discriminates the three packet types of one frame sequence.
type Kind uint8

const (
	KindFrameStart Kind = 0x01
	KindLineData   Kind = 0x02
	KindFrameEnd   Kind = 0x03
)

func (k Kind) String() string {
	switch k {
	case KindFrameStart:
		return "frame_start"
	case KindLineData:
		return "line_data"
	case KindFrameEnd:
		return "frame_end"
	default:
		return fmt.Sprintf("kind(%#x)", uint8(k))
	}
}

// MaxVirtualChannel is the highest addressable virtual channel.
const MaxVirtualChannel = 3

// Wire layout per packet: kind(1) | virtual_channel(1) | payload_len(2) |
// payload(var) | crc16(2). All multi-byte fields little-endian.
const (
	packetHeaderSize  = 4
	packetTrailerSize = 2
)

// Packet is one framed unit of the image transport. Integrity is the
// CRC-16 of Payload as carried on the wire; it is not re-verified at
// decode time so parse-side policy can keep mismatched lines.
type Packet struct {
	Kind           Kind
	VirtualChannel uint8
	Payload        []byte
	Integrity      uint16
}

// Verify reports whether the carried integrity check matches Payload.
func (p Packet) Verify() bool {
	return wire.VerifyCRC16(p.Payload, p.Integrity)
}

// LineIndex returns the row index carried by a LineData payload.
func (p Packet) LineIndex() int {
	if p.Kind != KindLineData || len(p.Payload) < lineIndexSize {
		return -1
	}
	return int(wire.U16(p.Payload, 0))
}

// LineBytes returns the raw row bytes of a LineData payload.
func (p Packet) LineBytes() []byte {
	if p.Kind != KindLineData || len(p.Payload) < lineIndexSize {
		return nil
	}
	return p.Payload[lineIndexSize:]
}

// EncodePacket serializes pkt, computing the integrity check over the
// payload.
func EncodePacket(pkt Packet) ([]byte, error) {
	if pkt.VirtualChannel > MaxVirtualChannel {
		return nil, ErrBadVirtualChannel
	}
	if len(pkt.Payload) > int(^uint16(0)) {
		return nil, ErrTruncatedPayload
	}
	buf := make([]byte, packetHeaderSize+len(pkt.Payload)+packetTrailerSize)
	buf[0] = byte(pkt.Kind)
	buf[1] = pkt.VirtualChannel
	wire.PutU16(buf, 2, uint16(len(pkt.Payload)))
	copy(buf[packetHeaderSize:], pkt.Payload)
	wire.PutU16(buf, packetHeaderSize+len(pkt.Payload), wire.CRC16(pkt.Payload))
	return buf, nil
}

// DecodePacket parses one packet from the front of buf and returns it
// along with the number of bytes consumed.
func DecodePacket(buf []byte) (Packet, int, error) {
	if len(buf) < packetHeaderSize+packetTrailerSize {
		return Packet{}, 0, ErrShortPacket
	}
	kind := Kind(buf[0])
	switch kind {
	case KindFrameStart, KindLineData, KindFrameEnd:
	default:
		return Packet{}, 0, fmt.Errorf("%w: %#x", ErrUnknownKind, buf[0])
	}
	vc := buf[1]
	if vc > MaxVirtualChannel {
		return Packet{}, 0, fmt.Errorf("%w: %d", ErrBadVirtualChannel, vc)
	}
	payloadLen := int(wire.U16(buf, 2))
	total := packetHeaderSize + payloadLen + packetTrailerSize
	if len(buf) < total {
		return Packet{}, 0, ErrTruncatedPayload
	}
	payload := make([]byte, payloadLen)
	copy(payload, buf[packetHeaderSize:packetHeaderSize+payloadLen])
	return Packet{
		Kind:           kind,
		VirtualChannel: vc,
		Payload:        payload,
		Integrity:      wire.U16(buf, packetHeaderSize+payloadLen),
	}, total, nil
}
