package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// UDP is a Transport over a single net.UDPConn. Peer identity is the
// remote "host:port" string.
type UDP struct {
	conn *net.UDPConn
}

// ListenUDP binds a UDP transport on addr ("host:port"; empty host
// means all interfaces).
func ListenUDP(addr string) (*UDP, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", addr, err)
	}
	return &UDP{conn: conn}, nil
}

// LocalAddr returns the bound address, for peers to dial.
func (u *UDP) LocalAddr() string {
	return u.conn.LocalAddr().String()
}

func (u *UDP) Send(peer string, datagram []byte) error {
	if len(datagram) > MaxDatagram {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(datagram))
	}
	addr, err := net.ResolveUDPAddr("udp", peer)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrUnknownPeer, peer, err)
	}
	if _, err := u.conn.WriteToUDP(datagram, addr); err != nil {
		return fmt.Errorf("transport: send to %q: %w", peer, err)
	}
	return nil
}

// Receive blocks for the next datagram. The context is honored by
// polling with short read deadlines, so a cancelled context returns
// promptly without tearing down the socket.
func (u *UDP) Receive(ctx context.Context) (string, []byte, error) {
	buf := make([]byte, MaxDatagram)
	for {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		if err := u.conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond)); err != nil {
			return "", nil, fmt.Errorf("transport: set deadline: %w", err)
		}
		n, addr, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return "", nil, fmt.Errorf("transport: receive: %w", err)
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		return addr.String(), data, nil
	}
}

func (u *UDP) Close() error {
	return u.conn.Close()
}
