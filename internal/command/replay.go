package command

import (
	"errors"
	"sync"
)

// DefaultMaxPeers bounds the replay table when no size is configured.
const DefaultMaxPeers = 32

var ErrBadMaxPeers = errors.New("command: max peers must be positive")

type peerRecord struct {
	lastSequence uint32
	touched      uint64 // monotonic tick for oldest-eviction
}

// ReplayTable tracks the last accepted sequence number per peer
// identity in a bounded table. Records are created lazily on first
// valid contact and never explicitly destroyed; when the table is full
// the least-recently-touched record is evicted. Safe for concurrent
// use.
type ReplayTable struct {
	mu    sync.Mutex
	max   int
	tick  uint64
	peers map[string]*peerRecord
}

// NewReplayTable creates a table holding at most maxPeers records.
func NewReplayTable(maxPeers int) (*ReplayTable, error) {
	if maxPeers <= 0 {
		return nil, ErrBadMaxPeers
	}
	return &ReplayTable{max: maxPeers, peers: make(map[string]*peerRecord, maxPeers)}, nil
}

// Accept reports whether sequence advances past the peer's last
// accepted sequence and, if so, records it atomically in the same
// critical section.
func (t *ReplayTable) Accept(identity string, sequence uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tick++
	rec, ok := t.peers[identity]
	if !ok {
		if len(t.peers) >= t.max {
			t.evictOldest()
		}
		t.peers[identity] = &peerRecord{lastSequence: sequence, touched: t.tick}
		return true
	}
	if sequence <= rec.lastSequence {
		return false
	}
	rec.lastSequence = sequence
	rec.touched = t.tick
	return true
}

// evictOldest removes the least-recently-touched record. Caller holds
// the lock.
func (t *ReplayTable) evictOldest() {
	var victim string
	var oldest uint64
	first := true
	for id, rec := range t.peers {
		if first || rec.touched < oldest {
			victim = id
			oldest = rec.touched
			first = false
		}
	}
	delete(t.peers, victim)
}

// Peers returns the number of tracked identities.
func (t *ReplayTable) Peers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}
