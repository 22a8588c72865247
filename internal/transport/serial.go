package transport

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/benchlab/benchcore/internal/types"
)

// SerialConn carries the same line protocol over a serial port, for
// instruments attached through a serial-to-LAN bridge or bench USB
// adapter. 8N1 framing, baud rate from the resource identifier.
type SerialConn struct {
	resource Resource
	logger   *zap.Logger

	mu        sync.Mutex
	port      serial.Port
	reader    *bufio.Reader
	connected bool
	closing   atomic.Bool
}

func NewSerialConn(res Resource, logger *zap.Logger) *SerialConn {
	return &SerialConn{
		resource: res,
		logger:   logger,
	}
}

func (c *SerialConn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing.Load() {
		return types.ErrInstrumentClosed
	}
	if c.connected {
		return nil
	}

	mode := &serial.Mode{
		BaudRate: c.resource.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(c.resource.Dev, mode)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", types.ErrNotConnected, c.resource.Dev, err)
	}
	port.SetReadTimeout(DefaultConnectTimeout)

	c.port = port
	c.reader = bufio.NewReader(port)
	c.connected = true

	c.logger.Info("instrument connected",
		zap.String("resource", c.resource.Raw))

	return nil
}

func (c *SerialConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked()
}

func (c *SerialConn) dropLocked() error {
	if !c.connected {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	c.reader = nil
	c.connected = false
	return err
}

func (c *SerialConn) BeginClose() {
	c.closing.Store(true)
}

func (c *SerialConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *SerialConn) Resource() string {
	return c.resource.Raw
}

func (c *SerialConn) Write(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(line)
}

func (c *SerialConn) Read() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked()
}

func (c *SerialConn) Query(line string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writeLocked(line); err != nil {
		return "", err
	}
	return c.readLocked()
}

func (c *SerialConn) writeLocked(line string) error {
	if c.closing.Load() {
		return types.ErrInstrumentClosed
	}
	if !c.connected {
		return types.ErrNotConnected
	}

	if _, err := c.port.Write([]byte(line + "\n")); err != nil {
		c.dropLocked()
		return fmt.Errorf("%w: write: %v", types.ErrConnectionLost, err)
	}
	if c.closing.Load() {
		return types.ErrInstrumentClosed
	}
	return nil
}

func (c *SerialConn) readLocked() (string, error) {
	if c.closing.Load() {
		return "", types.ErrInstrumentClosed
	}
	if !c.connected {
		return "", types.ErrNotConnected
	}

	line, err := c.reader.ReadString('\n')
	if err != nil {
		c.dropLocked()
		return "", fmt.Errorf("%w: read: %v", types.ErrConnectionLost, err)
	}
	if c.closing.Load() {
		return "", types.ErrInstrumentClosed
	}

	return strings.Trim(line, " \t\r\n"), nil
}
