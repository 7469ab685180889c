package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoopbackSendReceive(t *testing.T) {
	net := NewLoopback()
	bridge := net.Endpoint("bridge")
	host := net.Endpoint("host")

	if err := bridge.Send("host", []byte("frame fragment")); err != nil {
		t.Fatalf("send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	from, data, err := host.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if from != "bridge" {
		t.Fatalf("source identity %q", from)
	}
	if !bytes.Equal(data, []byte("frame fragment")) {
		t.Fatalf("payload mismatch: %q", data)
	}
}

func TestLoopbackUnknownPeer(t *testing.T) {
	net := NewLoopback()
	ep := net.Endpoint("only")
	if err := ep.Send("nobody", []byte("x")); !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("expected ErrUnknownPeer, got %v", err)
	}
}

func TestLoopbackCopiesDatagram(t *testing.T) {
	net := NewLoopback()
	a := net.Endpoint("a")
	b := net.Endpoint("b")

	payload := []byte{1, 2, 3}
	if err := a.Send("b", payload); err != nil {
		t.Fatalf("send: %v", err)
	}
	payload[0] = 0xFF

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, data, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if data[0] != 1 {
		t.Fatalf("datagram aliases sender buffer")
	}
}

func TestLoopbackReceiveHonorsContext(t *testing.T) {
	net := NewLoopback()
	ep := net.Endpoint("idle")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := ep.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestUDPSendReceive(t *testing.T) {
	rx, err := ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen rx: %v", err)
	}
	defer rx.Close()
	tx, err := ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen tx: %v", err)
	}
	defer tx.Close()

	if err := tx.Send(rx.LocalAddr(), []byte("datagram")); err != nil {
		t.Fatalf("send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	from, data, err := rx.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if from != tx.LocalAddr() {
		t.Fatalf("source identity %q, expected %q", from, tx.LocalAddr())
	}
	if !bytes.Equal(data, []byte("datagram")) {
		t.Fatalf("payload mismatch: %q", data)
	}
}
