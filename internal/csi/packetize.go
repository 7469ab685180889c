package csi

import "github.com/danmuck/scanlink/internal/wire"

const lineIndexSize = 2

// Packetize converts one frame into its ordered packet sequence:
// FrameStart carrying the geometry, one LineData per row prefixed with
// the little-endian row index, then FrameEnd.
func Packetize(frame *Frame, virtualChannel uint8) ([]Packet, error) {
	if virtualChannel > MaxVirtualChannel {
		return nil, ErrBadVirtualChannel
	}
	if frame == nil || frame.Rows <= 0 || frame.Cols <= 0 {
		return nil, ErrBadGeometry
	}

	packets := make([]Packet, 0, frame.Rows+2)

	start := make([]byte, 4)
	wire.PutU16(start, 0, uint16(frame.Rows))
	wire.PutU16(start, 2, uint16(frame.Cols))
	packets = append(packets, Packet{
		Kind:           KindFrameStart,
		VirtualChannel: virtualChannel,
		Payload:        start,
		Integrity:      wire.CRC16(start),
	})

	for r := range frame.Rows {
		row := frame.Row(r)
		payload := make([]byte, lineIndexSize+len(row))
		wire.PutU16(payload, 0, uint16(r))
		copy(payload[lineIndexSize:], row)
		packets = append(packets, Packet{
			Kind:           KindLineData,
			VirtualChannel: virtualChannel,
			Payload:        payload,
			Integrity:      wire.CRC16(payload),
		})
	}

	packets = append(packets, Packet{
		Kind:           KindFrameEnd,
		VirtualChannel: virtualChannel,
		Integrity:      wire.CRC16(nil),
	})
	return packets, nil
}

// StartGeometry decodes the rows/cols carried by a FrameStart payload.
func StartGeometry(pkt Packet) (rows, cols int, err error) {
	if pkt.Kind != KindFrameStart || len(pkt.Payload) < 4 {
		return 0, 0, ErrShortPacket
	}
	rows = int(wire.U16(pkt.Payload, 0))
	cols = int(wire.U16(pkt.Payload, 2))
	if rows == 0 || cols == 0 {
		return 0, 0, ErrBadGeometry
	}
	return rows, cols, nil
}
