package ring

import (
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/scanlink/internal/csi"
)

// DefaultDepth is the slot count used when none is configured.
const DefaultDepth = 4

var (
	ErrBadDepth     = errors.New("ring: depth must be positive")
	ErrNoActiveSlot = errors.New("ring: line or end packet with no frame in progress")
	ErrLineRange    = errors.New("ring: line index outside frame geometry")
	ErrStaleHandle  = errors.New("ring: handle refers to a reclaimed slot")
)

// SlotState is the lifecycle state of one buffer slot.
type SlotState uint8

const (
	SlotFree SlotState = iota
	SlotFilling
	SlotReady
	SlotSending
)

func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "free"
	case SlotFilling:
		return "filling"
	case SlotReady:
		return "ready"
	case SlotSending:
		return "sending"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

type slot struct {
	state     SlotState
	gen       uint64 // acquisition order, lowest is oldest
	frame     *csi.Frame
	present   []bool
	filled    int
	corrupted []int
	partial   bool
	missing   int
}

// Counters is an immutable snapshot of ring activity.
type Counters struct {
	Acquired  uint64
	Completed uint64
	Partial   uint64
	Drops     uint64
}

// Reassembler consumes image packets and reconstructs frames into a
// fixed slot ring. Safe for concurrent use.
type Reassembler struct {
	mu      sync.Mutex
	slots   []slot
	active  int // index of the single Filling slot, -1 when none
	nextGen uint64
	ctr     Counters
}

// New creates a reassembler with the given slot count.
func New(depth int) (*Reassembler, error) {
	if depth <= 0 {
		return nil, ErrBadDepth
	}
	return &Reassembler{slots: make([]slot, depth), active: -1}, nil
}

// Ingest consumes one image packet in arrival order. FrameStart
// acquires a slot (reclaiming the oldest when none is Free), LineData
// writes at the packet's declared line index, FrameEnd finalizes the
// slot as Ready (partial when lines are missing).
func (r *Reassembler) Ingest(pkt csi.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch pkt.Kind {
	case csi.KindFrameStart:
		return r.startFrame(pkt)
	case csi.KindLineData:
		return r.writeLine(pkt)
	case csi.KindFrameEnd:
		return r.endFrame()
	default:
		return fmt.Errorf("%w: %s", csi.ErrUnknownKind, pkt.Kind)
	}
}

func (r *Reassembler) startFrame(pkt csi.Packet) error {
	rows, cols, err := csi.StartGeometry(pkt)
	if err != nil {
		return err
	}

	// A new start while a frame is in progress finalizes the previous
	// slot as partial rather than silently overwriting it.
	if r.active >= 0 {
		r.finalize(r.active)
	}

	idx := r.acquire()
	frame, err := csi.NewFrame(rows, cols)
	if err != nil {
		return err
	}
	s := &r.slots[idx]
	s.state = SlotFilling
	s.gen = r.nextGen
	s.frame = frame
	s.present = make([]bool, rows)
	s.filled = 0
	s.corrupted = nil
	s.partial = false
	s.missing = 0
	r.nextGen++
	r.active = idx
	r.ctr.Acquired++
	return nil
}

// acquire returns the index of a Free slot, reclaiming the oldest
// non-Free slot when the ring is saturated. Never blocks.
func (r *Reassembler) acquire() int {
	for i := range r.slots {
		if r.slots[i].state == SlotFree {
			return i
		}
	}
	oldest := 0
	for i := range r.slots {
		if r.slots[i].gen < r.slots[oldest].gen {
			oldest = i
		}
	}
	if r.active == oldest {
		r.active = -1
	}
	r.slots[oldest] = slot{}
	r.ctr.Drops++
	return oldest
}

func (r *Reassembler) writeLine(pkt csi.Packet) error {
	if r.active < 0 {
		return ErrNoActiveSlot
	}
	s := &r.slots[r.active]
	idx := pkt.LineIndex()
	if idx < 0 || idx >= s.frame.Rows {
		return fmt.Errorf("%w: %d of %d rows", ErrLineRange, idx, s.frame.Rows)
	}
	line := pkt.LineBytes()
	if len(line) != s.frame.RowSize() {
		return fmt.Errorf("%w: line %d is %d bytes, expected %d", ErrLineRange, idx, len(line), s.frame.RowSize())
	}
	if !pkt.Verify() {
		s.corrupted = append(s.corrupted, idx)
	}
	copy(s.frame.Row(idx), line)
	if !s.present[idx] {
		s.present[idx] = true
		s.filled++
	}
	return nil
}

func (r *Reassembler) endFrame() error {
	if r.active < 0 {
		return ErrNoActiveSlot
	}
	r.finalize(r.active)
	return nil
}

// finalize moves a Filling slot to Ready, marking it partial when lines
// are missing. Caller holds the lock.
func (r *Reassembler) finalize(idx int) {
	s := &r.slots[idx]
	s.state = SlotReady
	s.missing = s.frame.Rows - s.filled
	s.partial = s.missing > 0
	if s.partial {
		r.ctr.Partial++
	} else {
		r.ctr.Completed++
	}
	if r.active == idx {
		r.active = -1
	}
}

// Handle exposes one Ready frame to a consumer while the slot is in the
// Sending state. Release returns the slot to Free.
type Handle struct {
	r         *Reassembler
	idx       int
	gen       uint64
	Frame     *csi.Frame
	Partial   bool
	Missing   int
	Corrupted []int
}

// NextReady transitions the oldest Ready slot to Sending and returns a
// handle to it. Returns false when no slot is Ready.
func (r *Reassembler) NextReady() (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	best := -1
	for i := range r.slots {
		if r.slots[i].state != SlotReady {
			continue
		}
		if best < 0 || r.slots[i].gen < r.slots[best].gen {
			best = i
		}
	}
	if best < 0 {
		return nil, false
	}
	s := &r.slots[best]
	s.state = SlotSending
	return &Handle{
		r:         r,
		idx:       best,
		gen:       s.gen,
		Frame:     s.frame,
		Partial:   s.partial,
		Missing:   s.missing,
		Corrupted: append([]int(nil), s.corrupted...),
	}, true
}

// Release returns the consumed slot to Free. A handle whose slot was
// reclaimed by oldest-wins in the meantime reports ErrStaleHandle and
// leaves the slot untouched.
func (h *Handle) Release() error {
	h.r.mu.Lock()
	defer h.r.mu.Unlock()

	s := &h.r.slots[h.idx]
	if s.gen != h.gen || s.state != SlotSending {
		return ErrStaleHandle
	}
	h.r.slots[h.idx] = slot{gen: s.gen}
	return nil
}

// States returns the current state of every slot, for diagnostics.
func (r *Reassembler) States() []SlotState {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]SlotState, len(r.slots))
	for i := range r.slots {
		states[i] = r.slots[i].state
	}
	return states
}

// Counters returns a snapshot of cumulative ring activity.
func (r *Reassembler) Counters() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctr
}
