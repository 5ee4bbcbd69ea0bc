package broadcast

import (
	"fmt"
	"testing"
)

func TestAddClientRejectsOverCapacity(t *testing.T) {
	h := NewHub()
	for i := 0; i < MaxClients; i++ {
		if _, err := h.AddClient(fmt.Sprintf("c%d", i)); err != nil {
			t.Fatalf("AddClient %d: %v", i, err)
		}
	}
	if _, err := h.AddClient("overflow"); err != ErrTooManyClients {
		t.Fatalf("expected ErrTooManyClients, got %v", err)
	}
}

func TestClientCountMetric(t *testing.T) {
	h := NewHub()
	h.AddClient("a")
	h.AddClient("b")
	if got := h.MetricsSnapshot().ClientCount; got != 2 {
		t.Fatalf("expected client count 2, got %d", got)
	}
	h.RemoveClient("a")
	if got := h.MetricsSnapshot().ClientCount; got != 1 {
		t.Fatalf("expected client count 1 after remove, got %d", got)
	}
}

func TestSendToClientRoutesCorrectly(t *testing.T) {
	h := NewHub()
	sink, _ := h.AddClient("a")
	h.AddClient("b")

	if err := h.SendToClient("a", []byte("hi")); err != nil {
		t.Fatalf("SendToClient: %v", err)
	}
	select {
	case msg := <-sink.Receive():
		if string(msg) != "hi" {
			t.Fatalf("unexpected message: %q", msg)
		}
	default:
		t.Fatalf("expected message on client a's channel")
	}
}

func TestSendToClientNotFound(t *testing.T) {
	h := NewHub()
	if err := h.SendToClient("missing", []byte("x")); err != ErrClientNotFound {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
}

func TestBroadcastIncrementsTotal(t *testing.T) {
	h := NewHub()
	h.AddClient("a")
	h.Broadcast([]byte("x"))
	h.Broadcast([]byte("y"))
	if got := h.MetricsSnapshot().TotalBroadcasts; got != 2 {
		t.Fatalf("expected 2 total broadcasts, got %d", got)
	}
}

func TestBroadcastBackpressureDropsWhenQueueNearlyFull(t *testing.T) {
	h := NewHub()
	sink, _ := h.AddClient("a")
	// Fill the channel past the backpressure threshold headroom.
	for len(sink.tx) < MaxQueueSize-BackpressureThreshold+1 {
		sink.tx <- []byte("filler")
	}
	before := h.MetricsSnapshot().BackpressureDrops
	h.Broadcast([]byte("dropped"))
	after := h.MetricsSnapshot().BackpressureDrops
	if after != before+1 {
		t.Fatalf("expected backpressure drop count to increment by 1, got delta %d", after-before)
	}
}

func TestRemoveClientTwiceErrors(t *testing.T) {
	h := NewHub()
	h.AddClient("a")
	if err := h.RemoveClient("a"); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := h.RemoveClient("a"); err != ErrClientNotFound {
		t.Fatalf("expected ErrClientNotFound on second remove, got %v", err)
	}
}

func TestShutdownClearsClients(t *testing.T) {
	h := NewHub()
	h.AddClient("a")
	h.AddClient("b")
	h.Shutdown()
	if got := h.MetricsSnapshot().ClientCount; got != 0 {
		t.Fatalf("expected 0 clients after shutdown, got %d", got)
	}
}
