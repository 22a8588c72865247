package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is the protocol-mandated raw socket port for the
// supported instrument families.
const DefaultPort = 5025

// DefaultConnectTimeout bounds a connect attempt.
const DefaultConnectTimeout = 3 * time.Second

// Conn is one bidirectional line-oriented connection to one instrument.
// All operations are serialized through the connection's internal lock:
// the wire protocol carries no request identifiers, so a write and the
// read of its response must never interleave with another pair.
type Conn interface {
	// Connect opens the underlying stream. Operations invoked before a
	// successful Connect fail with types.ErrNotConnected.
	Connect(ctx context.Context) error

	// Disconnect tears the connection down. Safe to call twice.
	Disconnect() error

	// Write sends one command line, appending the line terminator.
	Write(line string) error

	// Read blocks until one terminated line arrives and returns it with
	// trailing whitespace and terminators stripped.
	Read() (string, error)

	// Query performs Write immediately followed by Read while holding
	// the I/O lock across the pair.
	Query(line string) (string, error)

	// BeginClose arms the ready-to-close flag. Any operation in flight
	// or issued afterwards fails with types.ErrInstrumentClosed at the
	// next protocol boundary.
	BeginClose()

	Connected() bool
	Resource() string
}

// ResourceKind discriminates how a resource identifier is carried.
type ResourceKind int

const (
	ResourceTCP ResourceKind = iota
	ResourceSerial
	ResourceFake
)

// Resource is a parsed resource identifier.
// Accepted forms:
//
//	TCPIP::<host>            (default port 5025)
//	TCPIP::<host>::<port>
//	SERIAL::<device>         (default 9600 baud)
//	SERIAL::<device>::<baud>
//	FAKE::<model>
type Resource struct {
	Kind  ResourceKind
	Raw   string
	Host  string
	Port  int
	Dev   string
	Baud  int
	Model string
}

func ParseResource(raw string) (Resource, error) {
	parts := strings.Split(raw, "::")
	res := Resource{Raw: raw}

	switch strings.ToUpper(parts[0]) {
	case "TCPIP":
		if len(parts) < 2 || len(parts) > 3 || parts[1] == "" {
			return res, fmt.Errorf("malformed resource %q", raw)
		}
		res.Kind = ResourceTCP
		res.Host = parts[1]
		res.Port = DefaultPort
		if len(parts) == 3 {
			port, err := strconv.Atoi(parts[2])
			if err != nil {
				return res, fmt.Errorf("malformed port in resource %q: %w", raw, err)
			}
			res.Port = port
		}
	case "SERIAL":
		if len(parts) < 2 || len(parts) > 3 || parts[1] == "" {
			return res, fmt.Errorf("malformed resource %q", raw)
		}
		res.Kind = ResourceSerial
		res.Dev = parts[1]
		res.Baud = 9600
		if len(parts) == 3 {
			baud, err := strconv.Atoi(parts[2])
			if err != nil {
				return res, fmt.Errorf("malformed baud rate in resource %q: %w", raw, err)
			}
			res.Baud = baud
		}
	case "FAKE":
		if len(parts) != 2 || parts[1] == "" {
			return res, fmt.Errorf("malformed resource %q", raw)
		}
		res.Kind = ResourceFake
		res.Model = parts[1]
	default:
		return res, fmt.Errorf("unsupported resource %q", raw)
	}

	return res, nil
}

// Address returns the dial target for TCP resources.
func (r Resource) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
