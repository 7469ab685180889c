package csi

import "fmt"

// ParseResult is the outcome of parsing one packet sequence. Corrupted
// lines are retained in the frame and declared here so consumers can
// count them per frame instead of losing the whole frame.
type ParseResult struct {
	Frame          *Frame
	CorruptedLines []int
}

// ParseFrame validates and decodes one complete packet sequence in
// production order: FrameStart first, FrameEnd last, line indexes
// strictly sequential in between. Ordering violations indicate a
// source-side framing bug and are reported as ErrOutOfOrderPacket;
// integrity mismatches are transport noise and are declared on the
// result instead.
func ParseFrame(packets []Packet) (ParseResult, error) {
	if len(packets) < 2 {
		return ParseResult{}, fmt.Errorf("%w: sequence of %d packets", ErrOutOfOrderPacket, len(packets))
	}
	if packets[0].Kind != KindFrameStart {
		return ParseResult{}, fmt.Errorf("%w: expected frame_start, got %s", ErrOutOfOrderPacket, packets[0].Kind)
	}
	rows, cols, err := StartGeometry(packets[0])
	if err != nil {
		return ParseResult{}, err
	}

	frame, err := NewFrame(rows, cols)
	if err != nil {
		return ParseResult{}, err
	}

	result := ParseResult{Frame: frame}
	next := 0
	for _, pkt := range packets[1 : len(packets)-1] {
		if pkt.Kind != KindLineData {
			return ParseResult{}, fmt.Errorf("%w: expected line_data, got %s", ErrOutOfOrderPacket, pkt.Kind)
		}
		idx := pkt.LineIndex()
		if idx != next {
			return ParseResult{}, fmt.Errorf("%w: line index %d, expected %d", ErrOutOfOrderPacket, idx, next)
		}
		if idx >= rows {
			return ParseResult{}, fmt.Errorf("%w: line index %d beyond %d rows", ErrOutOfOrderPacket, idx, rows)
		}
		line := pkt.LineBytes()
		if len(line) != frame.RowSize() {
			return ParseResult{}, fmt.Errorf("%w: line %d is %d bytes, expected %d", ErrOutOfOrderPacket, idx, len(line), frame.RowSize())
		}
		if !pkt.Verify() {
			result.CorruptedLines = append(result.CorruptedLines, idx)
		}
		copy(frame.Row(idx), line)
		next++
	}

	last := packets[len(packets)-1]
	if last.Kind != KindFrameEnd {
		return ParseResult{}, fmt.Errorf("%w: expected frame_end, got %s", ErrOutOfOrderPacket, last.Kind)
	}
	if next != rows {
		return ParseResult{}, fmt.Errorf("%w: %d line packets for %d rows", ErrOutOfOrderPacket, next, rows)
	}
	return result, nil
}
