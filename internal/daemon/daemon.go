// Package daemon implements a length-framed JSON protocol client for
// talking to the external evolution daemon: request/response multiplexing
// by sequence number, a single background reader goroutine, at-most-once
// send semantics, and explicit reconnection via Reconnect. Grounded directly on the
// teacher pack's lawl/pulseaudio client.go packet-channel design.
package daemon

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// maxFrameSize bounds a single frame to guard against a corrupt or hostile
// length prefix causing an unbounded allocation.
const maxFrameSize = 16 * 1024 * 1024

var (
	ErrClosed        = errors.New("daemon: connection closed")
	ErrRequestTimeout = errors.New("daemon: request timed out")
)

// ProtocolMessage is the wire envelope for every request and response.
type ProtocolMessage struct {
	MessageType string          `json:"message_type"`
	Sequence    uint32          `json:"sequence"`
	Payload     json.RawMessage `json:"payload"`
}

// Client maintains one connection to a daemon instance, dispatching
// responses back to their originating request by sequence number.
type Client struct {
	mu       sync.Mutex
	conn     net.Conn
	addr     string
	seq      atomic.Uint32
	pending  map[uint32]chan ProtocolMessage
	closed   chan struct{}
	logger   *slog.Logger
}

// Dial connects to addr (host:port) and starts the background reader.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("daemon: dial %s: %w", addr, err)
	}
	c := &Client{
		conn:    conn,
		addr:    addr,
		pending: make(map[uint32]chan ProtocolMessage),
		closed:  make(chan struct{}),
		logger:  slog.Default(),
	}
	go c.readLoop()
	return c, nil
}

// SetLogger overrides the client's logger.
func (c *Client) SetLogger(l *slog.Logger) {
	if l != nil {
		c.logger = l
	}
}

// readLoop is the single background goroutine that owns all reads from the
// connection, dispatching each frame to its pending request's channel.
func (c *Client) readLoop() {
	defer close(c.closed)
	r := bufio.NewReader(c.conn)
	for {
		var lenBuf [4]byte
		if _, err := readFull(r, lenBuf[:]); err != nil {
			c.logger.Debug("daemon: read loop ending", "err", err)
			c.failPending(err)
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		if n > maxFrameSize {
			c.failPending(fmt.Errorf("daemon: frame size %d exceeds limit", n))
			return
		}
		frame := make([]byte, n)
		if _, err := readFull(r, frame); err != nil {
			c.failPending(err)
			return
		}
		var msg ProtocolMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			c.logger.Warn("daemon: malformed frame", "err", err)
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[msg.Sequence]
		if ok {
			delete(c.pending, msg.Sequence)
		}
		c.mu.Unlock()
		if ok {
			ch <- msg
			close(ch)
		}
	}
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for seq, ch := range c.pending {
		close(ch)
		delete(c.pending, seq)
	}
	if err != nil {
		c.logger.Debug("daemon: failing pending requests", "err", err, "count", len(c.pending))
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Request sends a message and waits (at most once - no automatic retry) for
// its matching response by sequence number, or ctx's deadline.
func (c *Client) Request(ctx context.Context, messageType string, payload any) (ProtocolMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ProtocolMessage{}, fmt.Errorf("daemon: marshal payload: %w", err)
	}
	seq := c.seq.Add(1)
	msg := ProtocolMessage{MessageType: messageType, Sequence: seq, Payload: raw}

	respCh := make(chan ProtocolMessage, 1)
	c.mu.Lock()
	c.pending[seq] = respCh
	c.mu.Unlock()

	if err := c.send(msg); err != nil {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return ProtocolMessage{}, err
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return ProtocolMessage{}, ErrClosed
		}
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return ProtocolMessage{}, ErrRequestTimeout
	case <-c.closed:
		return ProtocolMessage{}, ErrClosed
	}
}

func (c *Client) send(msg ProtocolMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("daemon: marshal message: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(raw)))

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.conn.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("daemon: write length prefix: %w", err)
	}
	if _, err := c.conn.Write(raw); err != nil {
		return fmt.Errorf("daemon: write frame: %w", err)
	}
	return nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Reconnect replaces the client's connection, restarting the reader
// goroutine. Any requests pending against the old connection are failed.
func (c *Client) Reconnect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("daemon: reconnect to %s: %w", c.addr, err)
	}
	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.closed = make(chan struct{})
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}
	go c.readLoop()
	return nil
}

// The MessageType* constants are the message types this client's
// counterpart daemon understands, matching the
// vocabulary exposed by the Python daemon wrapper in the teacher pack
// (get_metrics / get_neural_state / get_cognitive_state).
const (
	MessageTypeMetrics        = "get_metrics"
	MessageTypeNeuralState    = "get_neural_state"
	MessageTypeCognitiveState = "get_cognitive_state"
	MessageTypeIntent         = "send_intent"
	MessageTypeHealthCheck    = "health_check"
)

// Intent mirrors the teacher's IntentMessage: an action with optional
// description and payload, forwarded to the daemon as a request.
type Intent struct {
	Action      string          `json:"action"`
	Description string          `json:"description,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// SendIntent posts an intent and returns the daemon's acknowledgement.
func (c *Client) SendIntent(ctx context.Context, intent Intent) (ProtocolMessage, error) {
	return c.Request(ctx, MessageTypeIntent, intent)
}

// GetMetrics fetches the daemon's current evolution metrics as a raw
// payload for the caller to unmarshal into its own metrics type.
func (c *Client) GetMetrics(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.Request(ctx, MessageTypeMetrics, nil)
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// CompositeNeuralState blends neural-state payloads from multiple daemons,
// weighted by each daemon's reported confidence/strength field, matching
// spec.md's requirement that multi-daemon state be combined rather than
// simply concatenated.
func CompositeNeuralState(states []WeightedNeuralState) map[string]float64 {
	totals := make(map[string]float64)
	var weightSum float64
	for _, ws := range states {
		weightSum += ws.Weight
		for k, v := range ws.Values {
			totals[k] += v * ws.Weight
		}
	}
	if weightSum == 0 {
		return totals
	}
	for k := range totals {
		totals[k] /= weightSum
	}
	return totals
}

// WeightedNeuralState is one daemon's contribution to a composite blend.
type WeightedNeuralState struct {
	Weight float64
	Values map[string]float64
}

// pollInterval is the default pacing used by a caller that polls metrics
// continuously (2 Hz, matching spec.md's default daemon poll rate).
const pollInterval = 500 * time.Millisecond

// DefaultPollInterval returns the default poll pacing for periodic metrics
// requests.
func DefaultPollInterval() time.Duration { return pollInterval }
