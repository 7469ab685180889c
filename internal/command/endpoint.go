package command

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/scanlink/internal/observability"
)

var ErrNoKey = errors.New("command: empty authentication key")

// Handler executes one dispatched command and produces the response
// status and payload. A handler runs after the replay record has been
// updated, so protocol traffic it emits cannot re-enter dispatch via a
// nested replay.
type Handler func(cmd Command, from string) (status uint16, payload []byte)

// Counters is an immutable snapshot of endpoint activity.
type Counters struct {
	Accepted         uint64
	AuthFailures     uint64 // short frame, bad magic, or failed MAC
	ReplayRejections uint64
}

// Endpoint validates, gates, and dispatches inbound command frames and
// signs the resulting responses. One endpoint owns its replay table and
// counters; construct one per protocol-stack instance. Safe for
// concurrent use.
type Endpoint struct {
	key    []byte
	replay *ReplayTable

	mu       sync.RWMutex
	handlers map[uint16]Handler

	accepted         atomic.Uint64
	authFailures     atomic.Uint64
	replayRejections atomic.Uint64
}

// NewEndpoint creates an endpoint authenticating with key and tracking
// at most maxPeers replay records.
func NewEndpoint(key []byte, maxPeers int) (*Endpoint, error) {
	if len(key) == 0 {
		return nil, ErrNoKey
	}
	table, err := NewReplayTable(maxPeers)
	if err != nil {
		return nil, err
	}
	return &Endpoint{
		key:      key,
		replay:   table,
		handlers: make(map[uint16]Handler),
	}, nil
}

// Handle registers the handler for one command id, replacing any
// previous registration.
func (e *Endpoint) Handle(commandID uint16, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[commandID] = h
}

// Process consumes one inbound datagram from the identified peer and
// returns the signed response frame. A nil response means the frame was
// silently discarded: too short, wrong magic, failed MAC, or replayed.
func (e *Endpoint) Process(datagram []byte, from string) []byte {
	cmd, err := DecodeCommand(datagram, e.key)
	if err != nil {
		e.authFailures.Add(1)
		observability.RecordAuthFailures(1)
		return nil
	}

	if !e.replay.Accept(from, cmd.Sequence) {
		e.replayRejections.Add(1)
		observability.RecordReplayRejections(1)
		return nil
	}
	e.accepted.Add(1)

	e.mu.RLock()
	h, ok := e.handlers[cmd.CommandID]
	e.mu.RUnlock()

	resp := Response{Sequence: cmd.Sequence, Status: StatusUnknownCommand}
	if ok {
		resp.Status, resp.Payload = h(cmd, from)
	}
	buf, err := EncodeResponse(resp, e.key)
	if err != nil {
		// A handler produced a payload the length field cannot carry.
		resp = Response{Sequence: cmd.Sequence, Status: StatusBadPayload}
		buf, _ = EncodeResponse(resp, e.key)
	}
	return buf
}

// Counters returns a snapshot of cumulative endpoint activity.
func (e *Endpoint) Counters() Counters {
	return Counters{
		Accepted:         e.accepted.Load(),
		AuthFailures:     e.authFailures.Load(),
		ReplayRejections: e.replayRejections.Load(),
	}
}

// Requester builds signed command frames with a monotonic sequence, one
// instance per sending peer. Safe for concurrent use.
type Requester struct {
	key []byte
	seq atomic.Uint32
}

// NewRequester creates a requester whose first command carries
// sequence 1.
func NewRequester(key []byte) (*Requester, error) {
	if len(key) == 0 {
		return nil, ErrNoKey
	}
	return &Requester{key: key}, nil
}

// Next signs a command frame with the next sequence number and returns
// both the datagram and the sequence it carries. An oversized payload
// fails before a sequence number is consumed.
func (r *Requester) Next(commandID uint16, payload []byte) (datagram []byte, sequence uint32, err error) {
	if len(payload) > MaxPayload {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	sequence = r.seq.Add(1)
	cmd := Command{Sequence: sequence, CommandID: commandID, Payload: payload}
	datagram, err = EncodeCommand(cmd, r.key)
	if err != nil {
		return nil, 0, err
	}
	return datagram, sequence, nil
}
