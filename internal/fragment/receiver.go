package fragment

import (
	"sync"
	"time"

	"github.com/danmuck/scanlink/internal/csi"
)

// DefaultTimeout is how long a reassembly context may go without new
// fragments before a sweep evicts it.
const DefaultTimeout = 2 * time.Second

// Counters is an immutable snapshot of receiver activity.
type Counters struct {
	Accepted   uint64
	Duplicates uint64
	Rejected   uint64 // malformed or failed header CRC
	Evicted    uint64
	Completed  uint64
}

// Incomplete reports one evicted reassembly context.
type Incomplete struct {
	FrameID  uint32
	Received int
	Expected int
	Missing  int
}

type context struct {
	count    uint32
	rows     uint32
	cols     uint32
	payloads [][]byte
	received int
	lastSeen time.Time
}

// Receiver reassembles fragments into frames, one context per active
// frame id. Safe for concurrent use.
type Receiver struct {
	mu       sync.Mutex
	timeout  time.Duration
	contexts map[uint32]*context
	ctr      Counters
}

// NewReceiver creates a receiver that evicts contexts idle longer than
// timeout. A non-positive timeout falls back to DefaultTimeout.
func NewReceiver(timeout time.Duration) *Receiver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Receiver{timeout: timeout, contexts: make(map[uint32]*context)}
}

// Accept consumes one raw datagram. It returns the completed frame when
// the datagram supplies the final missing fragment, or nil. Malformed
// or integrity-failing datagrams are counted and do not fail the frame;
// the decode error is returned for diagnostics only.
func (rx *Receiver) Accept(datagram []byte, now time.Time) (*csi.Frame, error) {
	frag, err := Decode(datagram)
	if err != nil {
		rx.mu.Lock()
		rx.ctr.Rejected++
		rx.mu.Unlock()
		return nil, err
	}
	return rx.AcceptFragment(frag, now)
}

// AcceptFragment consumes one already-decoded fragment.
func (rx *Receiver) AcceptFragment(frag Fragment, now time.Time) (*csi.Frame, error) {
	rx.mu.Lock()
	defer rx.mu.Unlock()

	ctx, ok := rx.contexts[frag.FrameID]
	if !ok {
		ctx = &context{
			count:    frag.Count,
			rows:     frag.Rows,
			cols:     frag.Cols,
			payloads: make([][]byte, frag.Count),
		}
		rx.contexts[frag.FrameID] = ctx
	}
	if frag.Count != ctx.count || frag.Rows != ctx.rows || frag.Cols != ctx.cols {
		rx.ctr.Rejected++
		return nil, ErrIndexRange
	}
	if int(frag.Index) >= len(ctx.payloads) {
		rx.ctr.Rejected++
		return nil, ErrIndexRange
	}

	ctx.lastSeen = now
	if ctx.payloads[frag.Index] != nil {
		rx.ctr.Duplicates++
		return nil, nil
	}
	ctx.payloads[frag.Index] = frag.Payload
	ctx.received++
	rx.ctr.Accepted++

	if ctx.received < int(ctx.count) {
		return nil, nil
	}

	delete(rx.contexts, frag.FrameID)
	rx.ctr.Completed++
	return assemble(ctx)
}

func assemble(ctx *context) (*csi.Frame, error) {
	frame, err := csi.NewFrame(int(ctx.rows), int(ctx.cols))
	if err != nil {
		return nil, err
	}
	off := 0
	for _, payload := range ctx.payloads {
		off += copy(frame.Pix[off:], payload)
	}
	return frame, nil
}

// Sweep evicts every context whose last fragment is older than the
// receiver timeout and reports each as incomplete. Intended to be
// called on each orchestrator poll.
func (rx *Receiver) Sweep(now time.Time) []Incomplete {
	rx.mu.Lock()
	defer rx.mu.Unlock()

	var evicted []Incomplete
	for id, ctx := range rx.contexts {
		if now.Sub(ctx.lastSeen) <= rx.timeout {
			continue
		}
		evicted = append(evicted, Incomplete{
			FrameID:  id,
			Received: ctx.received,
			Expected: int(ctx.count),
			Missing:  int(ctx.count) - ctx.received,
		})
		delete(rx.contexts, id)
		rx.ctr.Evicted++
	}
	return evicted
}

// Pending returns the number of active reassembly contexts.
func (rx *Receiver) Pending() int {
	rx.mu.Lock()
	defer rx.mu.Unlock()
	return len(rx.contexts)
}

// Counters returns a snapshot of cumulative receiver activity.
func (rx *Receiver) Counters() Counters {
	rx.mu.Lock()
	defer rx.mu.Unlock()
	return rx.ctr
}
