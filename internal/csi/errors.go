package csi

import "errors"

var (
	ErrShortPacket       = errors.New("csi: packet shorter than fixed header")
	ErrTruncatedPayload  = errors.New("csi: payload length exceeds buffer")
	ErrUnknownKind       = errors.New("csi: unknown packet kind")
	ErrBadVirtualChannel = errors.New("csi: virtual channel out of range")
	ErrOutOfOrderPacket  = errors.New("csi: out-of-order packet")
	ErrBadGeometry       = errors.New("csi: invalid frame geometry")
)
