package command

import (
	"errors"
	"fmt"

	"github.com/danmuck/scanlink/internal/wire"
)

const (
	CommandMagic  uint32 = 0xBEEFCAFE
	ResponseMagic uint32 = 0xCAFEBEEF
)

// Wire layout, little-endian: magic(4) | sequence(4) | command_id or
// status(2) | payload_len(2) | mac(32) | payload(var). The MAC covers
// the 12 header bytes that precede it plus the payload.
const (
	HeaderSize = 44
	macOffset  = 12

	// MaxPayload is the largest payload the 2-byte length field can
	// carry.
	MaxPayload = int(^uint16(0))
)

// Recognized command ids.
const (
	CmdStartScan uint16 = 0x01
	CmdStopScan  uint16 = 0x02
	CmdGetStatus uint16 = 0x10
	CmdSetConfig uint16 = 0x20
)

// Response status codes.
const (
	StatusOK             uint16 = 0x00
	StatusUnknownCommand uint16 = 0x01
	StatusBadPayload     uint16 = 0x02
	StatusRejected       uint16 = 0x03
)

var (
	ErrShortFrame      = errors.New("command: frame shorter than header")
	ErrBadMagic        = errors.New("command: bad magic")
	ErrLengthMismatch  = errors.New("command: payload length mismatch")
	ErrBadMAC          = errors.New("command: mac verification failed")
	ErrPayloadTooLarge = errors.New("command: payload exceeds length field")
)

// Command is one decoded request frame.
type Command struct {
	Sequence  uint32
	CommandID uint16
	Payload   []byte
}

// Response is one decoded response frame. Sequence always echoes the
// command it answers.
type Response struct {
	Sequence uint32
	Status   uint16
	Payload  []byte
}

func encodeFrame(magic, sequence uint32, id uint16, payload, key []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	buf := make([]byte, HeaderSize+len(payload))
	off := wire.PutU32(buf, 0, magic)
	off = wire.PutU32(buf, off, sequence)
	off = wire.PutU16(buf, off, id)
	wire.PutU16(buf, off, uint16(len(payload)))
	copy(buf[HeaderSize:], payload)

	mac := wire.SignMAC(signedRegion(buf), key)
	copy(buf[macOffset:HeaderSize], mac[:])
	return buf, nil
}

// signedRegion returns the bytes covered by the MAC: the header up to
// the MAC field, then the payload.
func signedRegion(buf []byte) []byte {
	region := make([]byte, 0, macOffset+len(buf)-HeaderSize)
	region = append(region, buf[:macOffset]...)
	return append(region, buf[HeaderSize:]...)
}

func decodeFrame(buf []byte, wantMagic uint32, key []byte) (sequence uint32, id uint16, payload []byte, err error) {
	if len(buf) < HeaderSize {
		return 0, 0, nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(buf))
	}
	if wire.U32(buf, 0) != wantMagic {
		return 0, 0, nil, fmt.Errorf("%w: %#x", ErrBadMagic, wire.U32(buf, 0))
	}
	payloadLen := int(wire.U16(buf, 10))
	if len(buf) != HeaderSize+payloadLen {
		return 0, 0, nil, fmt.Errorf("%w: header says %d, frame carries %d", ErrLengthMismatch, payloadLen, len(buf)-HeaderSize)
	}
	if !wire.VerifyMAC(signedRegion(buf), key, buf[macOffset:HeaderSize]) {
		return 0, 0, nil, ErrBadMAC
	}
	payload = make([]byte, payloadLen)
	copy(payload, buf[HeaderSize:])
	return wire.U32(buf, 4), wire.U16(buf, 8), payload, nil
}

// EncodeCommand serializes and signs one command frame under key.
func EncodeCommand(cmd Command, key []byte) ([]byte, error) {
	return encodeFrame(CommandMagic, cmd.Sequence, cmd.CommandID, cmd.Payload, key)
}

// DecodeCommand validates and parses one command frame.
func DecodeCommand(buf, key []byte) (Command, error) {
	seq, id, payload, err := decodeFrame(buf, CommandMagic, key)
	if err != nil {
		return Command{}, err
	}
	return Command{Sequence: seq, CommandID: id, Payload: payload}, nil
}

// EncodeResponse serializes and signs one response frame under key.
func EncodeResponse(resp Response, key []byte) ([]byte, error) {
	return encodeFrame(ResponseMagic, resp.Sequence, resp.Status, resp.Payload, key)
}

// DecodeResponse validates and parses one response frame.
func DecodeResponse(buf, key []byte) (Response, error) {
	seq, status, payload, err := decodeFrame(buf, ResponseMagic, key)
	if err != nil {
		return Response{}, err
	}
	return Response{Sequence: seq, Status: status, Payload: payload}, nil
}
