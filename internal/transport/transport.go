// Package transport owns the datagram transport collaborator: sending
// opaque byte buffers to a named peer and receiving them tagged with
// the sender's identity. The protocol stack never interprets transport
// internals; it only sees bytes and identities.
package transport

import (
	"context"
	"errors"
)

var (
	ErrClosed      = errors.New("transport: closed")
	ErrUnknownPeer = errors.New("transport: unknown peer")
	ErrTooLarge    = errors.New("transport: datagram exceeds limit")
)

// MaxDatagram bounds a single datagram on every implementation.
const MaxDatagram = 64 * 1024

// Transport moves opaque datagrams between identified peers.
type Transport interface {
	Send(peer string, datagram []byte) error
	Receive(ctx context.Context) (from string, datagram []byte, err error)
	Close() error
}
