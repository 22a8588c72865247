package transport

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/benchlab/benchcore/internal/types"
)

// Responder produces synthetic responses for a simulated instrument.
// Device packages supply one per supported model.
type Responder interface {
	// Query returns the response for one query command. ok=false means
	// the command shape is unknown to the responder.
	Query(cmd string) (resp string, ok bool)

	// Apply records a set command so later queries read it back.
	Apply(cmd string)
}

// FakeConn satisfies Conn without any network I/O. It exhibits the same
// locking, closed and disconnected behavior as the real transports so
// the synchronizer and the tests cannot tell them apart.
type FakeConn struct {
	resource  Resource
	responder Responder
	logger    *zap.Logger

	mu        sync.Mutex
	pending   []string
	connected bool
	closing   bool

	// Log of every command accepted, in order. Tests assert wire
	// traffic against it.
	sent []string
}

func NewFakeConn(res Resource, responder Responder, logger *zap.Logger) *FakeConn {
	return &FakeConn{
		resource:  res,
		responder: responder,
		logger:    logger,
	}
}

func (c *FakeConn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return types.ErrInstrumentClosed
	}
	c.connected = true
	return nil
}

func (c *FakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.pending = nil
	return nil
}

func (c *FakeConn) BeginClose() {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()
}

func (c *FakeConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *FakeConn) Resource() string {
	return c.resource.Raw
}

func (c *FakeConn) Write(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(line)
}

func (c *FakeConn) Read() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked()
}

func (c *FakeConn) Query(line string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writeLocked(line); err != nil {
		return "", err
	}
	return c.readLocked()
}

func (c *FakeConn) writeLocked(line string) error {
	if c.closing {
		return types.ErrInstrumentClosed
	}
	if !c.connected {
		return types.ErrNotConnected
	}

	c.sent = append(c.sent, line)
	// Queries carry the '?' on the command word, which is not always
	// the end of the line (":LIST:LEVEL? 3").
	if strings.Contains(line, "?") {
		resp, ok := c.responder.Query(line)
		if !ok {
			resp = "0"
		}
		c.pending = append(c.pending, resp)
	} else {
		c.responder.Apply(line)
	}
	return nil
}

func (c *FakeConn) readLocked() (string, error) {
	if c.closing {
		return "", types.ErrInstrumentClosed
	}
	if !c.connected {
		return "", types.ErrNotConnected
	}
	if len(c.pending) == 0 {
		return "", types.ErrConnectionLost
	}
	resp := c.pending[0]
	c.pending = c.pending[1:]
	return resp, nil
}

// Sent returns a copy of the accepted command log.
func (c *FakeConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

// ClearSent resets the command log between test phases.
func (c *FakeConn) ClearSent() {
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()
}

// TableResponder answers queries from a command→value table and records
// plain "CMD value" writes back into it. Special, when set, is tried
// before the table; models use it for randomized measurement readings.
type TableResponder struct {
	mu      sync.Mutex
	values  map[string]string
	Special func(cmd string) (string, bool)

	// OnApply, when set, gets first claim on set commands whose shape
	// the plain table cannot store (indexed row writes).
	OnApply func(cmd string) bool
}

func NewTableResponder(defaults map[string]string) *TableResponder {
	values := make(map[string]string, len(defaults))
	for k, v := range defaults {
		values[k] = v
	}
	return &TableResponder{values: values}
}

func (t *TableResponder) Query(cmd string) (string, bool) {
	if t.Special != nil {
		if resp, ok := t.Special(cmd); ok {
			return resp, true
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	resp, ok := t.values[strings.TrimSuffix(cmd, "?")]
	return resp, ok
}

func (t *TableResponder) Apply(cmd string) {
	if t.OnApply != nil && t.OnApply(cmd) {
		return
	}
	key, value, found := strings.Cut(cmd, " ")
	if !found {
		return
	}
	t.mu.Lock()
	t.values[key] = value
	t.mu.Unlock()
}

// Set seeds or overrides one table entry.
func (t *TableResponder) Set(cmd, value string) {
	t.mu.Lock()
	t.values[cmd] = value
	t.mu.Unlock()
}
