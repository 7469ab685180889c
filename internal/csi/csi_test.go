package csi

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/scanlink/internal/wire"
)

func testFrame(t *testing.T, rows, cols int) *Frame {
	t.Helper()
	frame, err := NewFrame(rows, cols)
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	for r := range rows {
		for c := range cols {
			frame.SetSample(r, c, uint16(r*cols+c))
		}
	}
	return frame
}

func TestPacketizeShape(t *testing.T) {
	frame := testFrame(t, 8, 16)
	packets, err := Packetize(frame, 1)
	if err != nil {
		t.Fatalf("packetize: %v", err)
	}
	if len(packets) != 10 {
		t.Fatalf("expected 10 packets, got %d", len(packets))
	}
	if packets[0].Kind != KindFrameStart {
		t.Fatalf("first packet is %s", packets[0].Kind)
	}
	if packets[len(packets)-1].Kind != KindFrameEnd {
		t.Fatalf("last packet is %s", packets[len(packets)-1].Kind)
	}
	for i, pkt := range packets[1:9] {
		if pkt.Kind != KindLineData {
			t.Fatalf("packet %d is %s", i+1, pkt.Kind)
		}
		if pkt.LineIndex() != i {
			t.Fatalf("packet %d carries line index %d", i+1, pkt.LineIndex())
		}
		if !pkt.Verify() {
			t.Fatalf("packet %d fails integrity", i+1)
		}
	}
}

func TestPacketizeParseRoundTrip(t *testing.T) {
	frame := testFrame(t, 12, 20)
	packets, err := Packetize(frame, 0)
	if err != nil {
		t.Fatalf("packetize: %v", err)
	}
	result, err := ParseFrame(packets)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(result.CorruptedLines) != 0 {
		t.Fatalf("unexpected corrupted lines: %v", result.CorruptedLines)
	}
	if !bytes.Equal(result.Frame.Pix, frame.Pix) {
		t.Fatalf("pixel data not bit-identical after round trip")
	}
}

func TestPacketCodecRoundTrip(t *testing.T) {
	in := Packet{
		Kind:           KindLineData,
		VirtualChannel: 2,
		Payload:        []byte{0x03, 0x00, 0xAA, 0xBB, 0xCC, 0xDD},
	}
	in.Integrity = wire.CRC16(in.Payload)
	buf, err := EncodePacket(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, n, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d of %d bytes", n, len(buf))
	}
	if out.Kind != in.Kind || out.VirtualChannel != in.VirtualChannel {
		t.Fatalf("header mismatch: %+v", out)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("payload mismatch")
	}
	if !out.Verify() {
		t.Fatalf("integrity check failed after round trip")
	}
}

func TestDecodePacketShortBuffer(t *testing.T) {
	_, _, err := DecodePacket([]byte{byte(KindLineData), 0, 4})
	if !errors.Is(err, ErrShortPacket) {
		t.Fatalf("expected ErrShortPacket, got %v", err)
	}
}

func TestDecodePacketTruncatedPayload(t *testing.T) {
	buf := []byte{byte(KindLineData), 0, 0xFF, 0x00, 1, 2, 3}
	_, _, err := DecodePacket(buf)
	if !errors.Is(err, ErrTruncatedPayload) {
		t.Fatalf("expected ErrTruncatedPayload, got %v", err)
	}
}

func TestParseRejectsMissingStart(t *testing.T) {
	frame := testFrame(t, 4, 4)
	packets, _ := Packetize(frame, 0)
	_, err := ParseFrame(packets[1:])
	if !errors.Is(err, ErrOutOfOrderPacket) {
		t.Fatalf("expected ErrOutOfOrderPacket, got %v", err)
	}
}

func TestParseRejectsSkippedLineIndex(t *testing.T) {
	frame := testFrame(t, 4, 4)
	packets, _ := Packetize(frame, 0)
	// Drop line 1 to break the sequential index invariant.
	broken := append([]Packet{packets[0]}, packets[2:]...)
	_, err := ParseFrame(broken)
	if !errors.Is(err, ErrOutOfOrderPacket) {
		t.Fatalf("expected ErrOutOfOrderPacket, got %v", err)
	}
}

func TestParseRetainsCorruptedLine(t *testing.T) {
	frame := testFrame(t, 4, 4)
	packets, _ := Packetize(frame, 0)
	packets[2].Payload[3] ^= 0x40

	result, err := ParseFrame(packets)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(result.CorruptedLines) != 1 || result.CorruptedLines[0] != 1 {
		t.Fatalf("expected corrupted line 1, got %v", result.CorruptedLines)
	}
	// The corrupted bytes are kept, not zeroed.
	if !bytes.Equal(result.Frame.Row(1), packets[2].LineBytes()) {
		t.Fatalf("corrupted line not retained")
	}
}

func TestPacketizeRejectsBadVirtualChannel(t *testing.T) {
	frame := testFrame(t, 2, 2)
	if _, err := Packetize(frame, MaxVirtualChannel+1); !errors.Is(err, ErrBadVirtualChannel) {
		t.Fatalf("expected ErrBadVirtualChannel, got %v", err)
	}
}
