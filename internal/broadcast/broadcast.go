// Package broadcast implements a bounded multi-client fan-out hub: a
// capacity-limited client table, per-client bounded channels with
// backpressure detection, stale-client cleanup, and metrics. Grounded
// directly on the teacher pack's broadcast.rs NeuralBroadcast.
//
// The hub itself is transport-agnostic (it fans out []byte messages onto
// Go channels); internal/broadcast/ws.go wires a concrete
// gorilla/websocket transport on top of it.
package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Tunables matching the teacher module's constants.
const (
	MaxClients            = 100
	MaxQueueSize           = 1000
	BackpressureThreshold = 100
	CleanupInterval        = 30 * time.Second
	StaleTimeout           = 300 * time.Second
)

var (
	ErrTooManyClients = errors.New("broadcast: too many clients")
	ErrClientNotFound = errors.New("broadcast: client not found")
	ErrChannelClosed  = errors.New("broadcast: channel closed")
)

// ClientSink is one connected client's outbound mailbox.
type ClientSink struct {
	ID           string
	tx           chan []byte
	lastActivity atomic.Int64
}

func newClientSink(id string) *ClientSink {
	c := &ClientSink{ID: id, tx: make(chan []byte, MaxQueueSize)}
	c.updateActivity()
	return c
}

func (c *ClientSink) updateActivity() {
	c.lastActivity.Store(time.Now().Unix())
}

func (c *ClientSink) isStale(now time.Time) bool {
	last := c.lastActivity.Load()
	return now.Unix()-last > int64(StaleTimeout.Seconds())
}

// Send pushes a message onto this client's channel without blocking.
func (c *ClientSink) Send(msg []byte) error {
	select {
	case c.tx <- msg:
		c.updateActivity()
		return nil
	default:
		return ErrChannelClosed
	}
}

// Receive returns this client's outbound channel for the transport layer to
// drain (e.g. a websocket write pump).
func (c *ClientSink) Receive() <-chan []byte { return c.tx }

// Metrics tracks hub-wide counters.
type Metrics struct {
	TotalBroadcasts   uint64
	BackpressureDrops uint64
	Disconnections    uint64
	ClientCount       int
}

// Hub is the bounded multi-client broadcast fan-out.
type Hub struct {
	mu       sync.Mutex
	clients  map[string]*ClientSink
	metrics  Metrics
	logger   *slog.Logger
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*ClientSink),
		logger:  slog.Default(),
		stopCh:  make(chan struct{}),
	}
}

// SetLogger overrides the hub's logger.
func (h *Hub) SetLogger(l *slog.Logger) {
	if l != nil {
		h.logger = l
	}
}

// AddClient registers a new client, returning its sink. Returns
// ErrTooManyClients if the hub is already at MaxClients.
func (h *Hub) AddClient(id string) (*ClientSink, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) >= MaxClients {
		return nil, ErrTooManyClients
	}
	c := newClientSink(id)
	h.clients[id] = c
	h.metrics.ClientCount = len(h.clients)
	return c, nil
}

// RemoveClient disconnects and forgets a client.
func (h *Hub) RemoveClient(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return ErrClientNotFound
	}
	close(c.tx)
	delete(h.clients, id)
	h.metrics.ClientCount = len(h.clients)
	h.metrics.Disconnections++
	return nil
}

// Broadcast fans msg out to every client, skipping (and counting as a
// backpressure drop) any client whose channel has less headroom than
// BackpressureThreshold or is full at send time. Closed channels are not
// detected here; a client leaves the table only through RemoveClient or the
// stale sweep.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	clients := make([]*ClientSink, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.metrics.TotalBroadcasts++
	h.mu.Unlock()

	for _, c := range clients {
		if cap(c.tx)-len(c.tx) < BackpressureThreshold {
			h.mu.Lock()
			h.metrics.BackpressureDrops++
			h.mu.Unlock()
			continue
		}
		select {
		case c.tx <- msg:
			c.updateActivity()
		default:
			h.mu.Lock()
			h.metrics.BackpressureDrops++
			h.mu.Unlock()
		}
	}
}

// SendToClient routes msg to exactly one client by id.
func (h *Hub) SendToClient(id string, msg []byte) error {
	h.mu.Lock()
	c, ok := h.clients[id]
	h.mu.Unlock()
	if !ok {
		return ErrClientNotFound
	}
	return c.Send(msg)
}

// BroadcastHeartbeat sends a {"type":"heartbeat","timestamp":<ms>} frame to
// all clients.
func (h *Hub) BroadcastHeartbeat(nowUnixMilli int64) {
	h.Broadcast([]byte(fmt.Sprintf(`{"type":"heartbeat","timestamp":%d}`, nowUnixMilli)))
}

// MetricsSnapshot returns a copy of the current metrics.
func (h *Hub) MetricsSnapshot() Metrics {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.metrics
}

// StartCleanup launches a background goroutine that periodically removes
// stale clients (no activity for StaleTimeout). Stop by calling Shutdown.
func (h *Hub) StartCleanup() {
	go func() {
		ticker := time.NewTicker(CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.sweepStale()
			case <-h.stopCh:
				return
			}
		}
	}()
}

func (h *Hub) sweepStale() {
	now := time.Now()
	h.mu.Lock()
	var stale []string
	for id, c := range h.clients {
		if c.isStale(now) {
			stale = append(stale, id)
		}
	}
	h.mu.Unlock()
	for _, id := range stale {
		h.logger.Info("removing stale broadcast client", "client_id", id)
		_ = h.RemoveClient(id)
	}
}

// Shutdown closes every client channel and stops the cleanup goroutine.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() { close(h.stopCh) })
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.tx)
		delete(h.clients, id)
	}
	h.metrics.ClientCount = 0
}
