package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/benchlab/benchcore/internal/monitor"
	"github.com/benchlab/benchcore/internal/types"
)

// TCPConn drives one instrument over a raw TCP socket.
type TCPConn struct {
	resource Resource
	timeout  time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	conn      net.Conn
	reader    *bufio.Reader
	connected bool
	closing   atomic.Bool
}

func NewTCPConn(res Resource, timeout time.Duration, logger *zap.Logger) *TCPConn {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &TCPConn{
		resource: res,
		timeout:  timeout,
		logger:   logger,
	}
}

func (c *TCPConn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing.Load() {
		return types.ErrInstrumentClosed
	}
	if c.connected {
		return nil
	}

	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.resource.Address())
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", types.ErrNotConnected, c.resource.Address(), err)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.connected = true

	c.logger.Info("instrument connected",
		zap.String("resource", c.resource.Raw))

	return nil
}

func (c *TCPConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked()
}

func (c *TCPConn) dropLocked() error {
	if !c.connected {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	c.connected = false
	return err
}

func (c *TCPConn) BeginClose() {
	c.closing.Store(true)
	// Unblock a pending read so the close is not held hostage by a
	// response that never arrives.
	c.mu.Lock()
	if c.connected {
		c.conn.SetReadDeadline(time.Now())
	}
	c.mu.Unlock()
}

func (c *TCPConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *TCPConn) Resource() string {
	return c.resource.Raw
}

func (c *TCPConn) Write(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(line)
}

func (c *TCPConn) Read() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked()
}

// Query holds the I/O lock across the write+read pair so no other
// exchange can interleave with it.
func (c *TCPConn) Query(line string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	if err := c.writeLocked(line); err != nil {
		return "", err
	}
	resp, err := c.readLocked()
	if err != nil {
		return "", err
	}
	monitor.QueryDuration.Observe(time.Since(start).Seconds())

	return resp, nil
}

func (c *TCPConn) writeLocked(line string) error {
	if c.closing.Load() {
		return types.ErrInstrumentClosed
	}
	if !c.connected {
		return types.ErrNotConnected
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.dropLocked()
		monitor.CommandErrors.WithLabelValues(c.resource.Raw).Inc()
		return fmt.Errorf("%w: write: %v", types.ErrConnectionLost, err)
	}
	if c.closing.Load() {
		return types.ErrInstrumentClosed
	}

	monitor.CommandsTotal.WithLabelValues(c.resource.Raw, commandKind(line)).Inc()
	return nil
}

func (c *TCPConn) readLocked() (string, error) {
	if c.closing.Load() {
		return "", types.ErrInstrumentClosed
	}
	if !c.connected {
		return "", types.ErrNotConnected
	}

	c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	line, err := c.reader.ReadString('\n')
	if err != nil {
		if c.closing.Load() {
			c.dropLocked()
			return "", types.ErrInstrumentClosed
		}
		c.dropLocked()
		monitor.CommandErrors.WithLabelValues(c.resource.Raw).Inc()
		return "", fmt.Errorf("%w: read: %v", types.ErrConnectionLost, err)
	}
	if c.closing.Load() {
		return "", types.ErrInstrumentClosed
	}

	return strings.Trim(line, " \t\r\n"), nil
}

func commandKind(line string) string {
	if strings.HasSuffix(line, "?") {
		return "query"
	}
	return "write"
}
