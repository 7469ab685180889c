package transport

import (
	"context"
	"fmt"
	"sync"
)

type envelope struct {
	from string
	data []byte
}

// Loopback is an in-memory datagram network for tests and the
// simulator. Endpoints are named; Send copies the datagram into the
// destination's bounded inbox and drops silently when the inbox is
// full, matching datagram semantics.
type Loopback struct {
	mu        sync.Mutex
	endpoints map[string]*LoopbackEndpoint
}

func NewLoopback() *Loopback {
	return &Loopback{endpoints: make(map[string]*LoopbackEndpoint)}
}

// Endpoint registers (or returns) the endpoint with the given identity.
func (l *Loopback) Endpoint(identity string) *LoopbackEndpoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ep, ok := l.endpoints[identity]; ok {
		return ep
	}
	ep := &LoopbackEndpoint{
		net:      l,
		identity: identity,
		inbox:    make(chan envelope, 1024),
	}
	l.endpoints[identity] = ep
	return ep
}

func (l *Loopback) lookup(identity string) (*LoopbackEndpoint, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ep, ok := l.endpoints[identity]
	return ep, ok
}

// LoopbackEndpoint is one named party on a Loopback network.
type LoopbackEndpoint struct {
	net      *Loopback
	identity string
	inbox    chan envelope
}

func (e *LoopbackEndpoint) Identity() string { return e.identity }

func (e *LoopbackEndpoint) Send(peer string, datagram []byte) error {
	if len(datagram) > MaxDatagram {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(datagram))
	}
	dst, ok := e.net.lookup(peer)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPeer, peer)
	}
	data := make([]byte, len(datagram))
	copy(data, datagram)
	select {
	case dst.inbox <- envelope{from: e.identity, data: data}:
	default:
		// Inbox full: datagram semantics, drop.
	}
	return nil
}

func (e *LoopbackEndpoint) Receive(ctx context.Context) (string, []byte, error) {
	select {
	case env := <-e.inbox:
		return env.from, env.data, nil
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

func (e *LoopbackEndpoint) Close() error {
	return nil
}
