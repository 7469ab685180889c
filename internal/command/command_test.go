package command

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danmuck/scanlink/internal/tlv"
)

var testKey = []byte("scanlink-test-shared-secret")

func mustEncodeCommand(t *testing.T, cmd Command) []byte {
	t.Helper()
	buf, err := EncodeCommand(cmd, testKey)
	if err != nil {
		t.Fatalf("encode command: %v", err)
	}
	return buf
}

func TestCommandCodecRoundTrip(t *testing.T) {
	in := Command{Sequence: 9, CommandID: CmdSetConfig, Payload: []byte{1, 2, 3}}
	out, err := DecodeCommand(mustEncodeCommand(t, in), testKey)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Sequence != in.Sequence || out.CommandID != in.CommandID || !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestResponseCodecRoundTrip(t *testing.T) {
	in := Response{Sequence: 42, Status: StatusOK, Payload: []byte("armed")}
	buf, err := EncodeResponse(in, testKey)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeResponse(buf, testKey)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Sequence != 42 || out.Status != StatusOK || string(out.Payload) != "armed" {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestDecodeCommandRejectsTampering(t *testing.T) {
	buf := mustEncodeCommand(t, Command{Sequence: 1, CommandID: CmdStartScan, Payload: []byte("payload")})

	short := buf[:HeaderSize-1]
	if _, err := DecodeCommand(short, testKey); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got %v", err)
	}

	badMagic := append([]byte(nil), buf...)
	badMagic[0] ^= 0xFF
	if _, err := DecodeCommand(badMagic, testKey); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}

	// Any single byte of the signed region invalidates the MAC.
	tampered := append([]byte(nil), buf...)
	tampered[HeaderSize] ^= 0x01
	if _, err := DecodeCommand(tampered, testKey); !errors.Is(err, ErrBadMAC) {
		t.Fatalf("expected ErrBadMAC, got %v", err)
	}

	wrongKey := append([]byte(nil), buf...)
	if _, err := DecodeCommand(wrongKey, []byte("other-key")); !errors.Is(err, ErrBadMAC) {
		t.Fatalf("expected ErrBadMAC under wrong key, got %v", err)
	}
}

func TestReplayTableMonotonicAcceptance(t *testing.T) {
	table, err := NewReplayTable(8)
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	for seq := uint32(1); seq <= 50; seq++ {
		if !table.Accept("peer-a", seq) {
			t.Fatalf("monotonic sequence %d rejected", seq)
		}
	}
	for _, seq := range []uint32{50, 49, 25, 1} {
		if table.Accept("peer-a", seq) {
			t.Fatalf("stale sequence %d accepted", seq)
		}
	}
	// Independent peer state.
	if !table.Accept("peer-b", 1) {
		t.Fatalf("fresh peer rejected")
	}
}

func TestReplayTableEvictsOldestWhenFull(t *testing.T) {
	table, _ := NewReplayTable(2)
	table.Accept("peer-1", 5)
	table.Accept("peer-2", 5)
	table.Accept("peer-3", 5) // evicts peer-1
	if table.Peers() != 2 {
		t.Fatalf("expected 2 peers, got %d", table.Peers())
	}
	// peer-1 was evicted, so its old sequence is accepted as first contact.
	if !table.Accept("peer-1", 5) {
		t.Fatalf("evicted peer not re-admitted")
	}
}

func TestEndpointDispatchAndResponse(t *testing.T) {
	e, err := NewEndpoint(testKey, DefaultMaxPeers)
	if err != nil {
		t.Fatalf("new endpoint: %v", err)
	}
	e.Handle(CmdGetStatus, func(cmd Command, from string) (uint16, []byte) {
		return StatusOK, tlv.EncodeFields([]tlv.Field{tlv.StringField(1, "idle")})
	})

	req, _ := NewRequester(testKey)
	datagram, seq, err := req.Next(CmdGetStatus, nil)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	respBuf := e.Process(datagram, "host")
	if respBuf == nil {
		t.Fatalf("no response emitted")
	}
	resp, err := DecodeResponse(respBuf, testKey)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Sequence != seq {
		t.Fatalf("response sequence %d does not echo command sequence %d", resp.Sequence, seq)
	}
	if resp.Status != StatusOK {
		t.Fatalf("unexpected status %#x", resp.Status)
	}
	fields, err := tlv.DecodeFields(resp.Payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if f, ok := tlv.GetField(fields, 1); !ok || string(f.Value) != "idle" {
		t.Fatalf("unexpected status payload: %+v", fields)
	}
}

func TestEndpointUnknownCommand(t *testing.T) {
	e, _ := NewEndpoint(testKey, DefaultMaxPeers)
	req, _ := NewRequester(testKey)
	datagram, seq, err := req.Next(0x7F, nil)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	respBuf := e.Process(datagram, "host")
	resp, err := DecodeResponse(respBuf, testKey)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != StatusUnknownCommand || resp.Sequence != seq {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestEndpointReplayedSequenceSilentlyRejected(t *testing.T) {
	e, _ := NewEndpoint(testKey, DefaultMaxPeers)
	e.Handle(CmdStartScan, func(Command, string) (uint16, []byte) { return StatusOK, nil })

	datagram := mustEncodeCommand(t, Command{Sequence: 5, CommandID: CmdStartScan})
	if e.Process(datagram, "host") == nil {
		t.Fatalf("first delivery rejected")
	}
	// Captured-and-resent legitimate traffic: same bytes, same peer.
	if e.Process(datagram, "host") != nil {
		t.Fatalf("replayed command produced a response")
	}
	ctr := e.Counters()
	if ctr.ReplayRejections != 1 || ctr.AuthFailures != 0 {
		t.Fatalf("unexpected counters: %+v", ctr)
	}
}

func TestEndpointTamperedPayloadSilentlyDiscarded(t *testing.T) {
	e, _ := NewEndpoint(testKey, DefaultMaxPeers)
	e.Handle(CmdStartScan, func(Command, string) (uint16, []byte) { return StatusOK, nil })

	datagram := mustEncodeCommand(t, Command{Sequence: 1, CommandID: CmdStartScan, Payload: []byte("args")})
	datagram[HeaderSize+2] ^= 0x08
	if e.Process(datagram, "host") != nil {
		t.Fatalf("tampered command produced a response")
	}
	ctr := e.Counters()
	if ctr.AuthFailures != 1 {
		t.Fatalf("expected 1 auth failure, got %d", ctr.AuthFailures)
	}
	if ctr.ReplayRejections != 0 {
		t.Fatalf("MAC failure miscounted as replay: %+v", ctr)
	}
}

func TestEndpointReplayUpdatedBeforeHandler(t *testing.T) {
	e, _ := NewEndpoint(testKey, DefaultMaxPeers)
	datagram := mustEncodeCommand(t, Command{Sequence: 3, CommandID: CmdStopScan})

	// A handler that re-injects the triggering datagram must see it
	// rejected as a replay, not double-processed.
	var nested []byte
	e.Handle(CmdStopScan, func(cmd Command, from string) (uint16, []byte) {
		nested = e.Process(datagram, from)
		return StatusOK, nil
	})

	if e.Process(datagram, "host") == nil {
		t.Fatalf("command rejected")
	}
	if nested != nil {
		t.Fatalf("nested replay was processed")
	}
	if ctr := e.Counters(); ctr.Accepted != 1 || ctr.ReplayRejections != 1 {
		t.Fatalf("unexpected counters: %+v", ctr)
	}
}

func TestEndpointConcurrentPeers(t *testing.T) {
	e, _ := NewEndpoint(testKey, DefaultMaxPeers)
	e.Handle(CmdGetStatus, func(Command, string) (uint16, []byte) { return StatusOK, nil })

	var wg sync.WaitGroup
	for p := range 8 {
		wg.Add(1)
		go func(peer string) {
			defer wg.Done()
			req, _ := NewRequester(testKey)
			for range 100 {
				datagram, _, err := req.Next(CmdGetStatus, nil)
				if err != nil {
					t.Errorf("peer %s next: %v", peer, err)
					return
				}
				if e.Process(datagram, peer) == nil {
					t.Errorf("peer %s command rejected", peer)
					return
				}
			}
		}(fmt.Sprintf("peer-%d", p))
	}
	wg.Wait()
	if ctr := e.Counters(); ctr.Accepted != 800 {
		t.Fatalf("expected 800 accepted, got %d", ctr.Accepted)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	huge := make([]byte, MaxPayload+1)

	if _, err := EncodeCommand(Command{Sequence: 1, CommandID: CmdSetConfig, Payload: huge}, testKey); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if _, err := EncodeResponse(Response{Sequence: 1, Status: StatusOK, Payload: huge}, testKey); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}

	// A rejected payload must not burn a sequence number.
	req, _ := NewRequester(testKey)
	if _, _, err := req.Next(CmdSetConfig, huge); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	_, seq, err := req.Next(CmdGetStatus, nil)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if seq != 1 {
		t.Fatalf("rejected payload consumed a sequence: next is %d", seq)
	}
}

func TestEndpointOversizedHandlerPayloadDegradesToBadPayload(t *testing.T) {
	e, _ := NewEndpoint(testKey, DefaultMaxPeers)
	e.Handle(CmdGetStatus, func(Command, string) (uint16, []byte) {
		return StatusOK, make([]byte, MaxPayload+1)
	})

	respBuf := e.Process(mustEncodeCommand(t, Command{Sequence: 1, CommandID: CmdGetStatus}), "host")
	if respBuf == nil {
		t.Fatalf("no response emitted")
	}
	resp, err := DecodeResponse(respBuf, testKey)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != StatusBadPayload || len(resp.Payload) != 0 {
		t.Fatalf("unexpected degraded response: %+v", resp)
	}
}

func metricValue(t *testing.T, name string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestEndpointFailureCountersReachMetrics(t *testing.T) {
	e, _ := NewEndpoint(testKey, DefaultMaxPeers)
	e.Handle(CmdStartScan, func(Command, string) (uint16, []byte) { return StatusOK, nil })

	authBefore := metricValue(t, "scanlink_command_auth_failures_total")
	replayBefore := metricValue(t, "scanlink_command_replay_rejections_total")

	tampered := mustEncodeCommand(t, Command{Sequence: 1, CommandID: CmdStartScan, Payload: []byte("args")})
	tampered[HeaderSize] ^= 0x01
	if e.Process(tampered, "host") != nil {
		t.Fatalf("tampered command produced a response")
	}

	replayed := mustEncodeCommand(t, Command{Sequence: 2, CommandID: CmdStartScan})
	if e.Process(replayed, "host") == nil {
		t.Fatalf("first delivery rejected")
	}
	if e.Process(replayed, "host") != nil {
		t.Fatalf("replayed command produced a response")
	}

	if got := metricValue(t, "scanlink_command_auth_failures_total") - authBefore; got != 1 {
		t.Fatalf("auth failure not exported: delta %v", got)
	}
	if got := metricValue(t, "scanlink_command_replay_rejections_total") - replayBefore; got != 1 {
		t.Fatalf("replay rejection not exported: delta %v", got)
	}
}
