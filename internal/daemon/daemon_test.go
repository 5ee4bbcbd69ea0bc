package daemon

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"testing"
	"time"
)

// fakeServer accepts one connection and echoes back a canned response for
// every request it receives, matching sequence numbers so Client.Request
// resolves correctly.
func fakeServer(t *testing.T, ln net.Listener, respond func(ProtocolMessage) ProtocolMessage) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		var lenBuf [4]byte
		if _, err := readFull(r, lenBuf[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		frame := make([]byte, n)
		if _, err := readFull(r, frame); err != nil {
			return
		}
		var msg ProtocolMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			return
		}
		resp := respond(msg)
		out, _ := json.Marshal(resp)
		var outLen [4]byte
		binary.BigEndian.PutUint32(outLen[:], uint32(len(out)))
		conn.Write(outLen[:])
		conn.Write(out)
	}
}

func TestRequestResponseRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go fakeServer(t, ln, func(req ProtocolMessage) ProtocolMessage {
		return ProtocolMessage{MessageType: "ack", Sequence: req.Sequence, Payload: json.RawMessage(`{"ok":true}`)}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	resp, err := c.Request(ctx, MessageTypeHealthCheck, map[string]string{"ping": "pong"})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.MessageType != "ack" {
		t.Fatalf("unexpected response type: %q", resp.MessageType)
	}
}

func TestRequestTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Never respond.
		select {}
	}()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dialCancel()
	c, err := Dial(dialCtx, ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer reqCancel()
	if _, err := c.Request(reqCtx, MessageTypeMetrics, nil); err != ErrRequestTimeout {
		t.Fatalf("expected ErrRequestTimeout, got %v", err)
	}
}

func TestCompositeNeuralStateWeightedAverage(t *testing.T) {
	states := []WeightedNeuralState{
		{Weight: 1, Values: map[string]float64{"a": 10}},
		{Weight: 3, Values: map[string]float64{"a": 2}},
	}
	got := CompositeNeuralState(states)
	want := (10*1 + 2*3) / 4.0
	if got["a"] != want {
		t.Fatalf("expected weighted average %f, got %f", want, got["a"])
	}
}

func TestCompositeNeuralStateEmpty(t *testing.T) {
	got := CompositeNeuralState(nil)
	if len(got) != 0 {
		t.Fatalf("expected empty result for no states, got %v", got)
	}
}
