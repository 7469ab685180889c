package fragment

import (
	"time"

	"github.com/danmuck/scanlink/internal/csi"
)

// DefaultMaxPayload bounds fragment payloads to fit a common UDP MTU
// alongside the fragment header.
const DefaultMaxPayload = 1400

// Split fragments one reassembled frame into count = ceil(bytes /
// maxPayload) fragments with monotonically increasing indexes. Every
// fragment carries the frame geometry so a receiver can size buffers
// from any arrival.
func Split(frame *csi.Frame, frameID uint32, maxPayload int, now time.Time) ([]Fragment, error) {
	if maxPayload <= 0 {
		return nil, ErrBadMaxPayload
	}
	if frame == nil || len(frame.Pix) == 0 {
		return nil, ErrEmptyFrame
	}

	total := len(frame.Pix)
	count := (total + maxPayload - 1) / maxPayload
	ts := uint64(now.UnixNano())

	fragments := make([]Fragment, 0, count)
	for i := range count {
		lo := i * maxPayload
		hi := min(lo+maxPayload, total)
		payload := make([]byte, hi-lo)
		copy(payload, frame.Pix[lo:hi])
		fragments = append(fragments, Fragment{
			Header: Header{
				FrameID:     frameID,
				Index:       uint32(i),
				Count:       uint32(count),
				TimestampNS: ts,
				Rows:        uint32(frame.Rows),
				Cols:        uint32(frame.Cols),
			},
			Payload: payload,
		})
	}
	return fragments, nil
}
