package instrument

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/benchlab/benchcore/internal/device/sdl1000"
	"github.com/benchlab/benchcore/internal/device/sdm3000"
	"github.com/benchlab/benchcore/internal/device/spd3303"
	"github.com/benchlab/benchcore/internal/params"
	"github.com/benchlab/benchcore/internal/transport"
	"github.com/benchlab/benchcore/internal/types"
)

// Kind is the instrument family.
type Kind string

const (
	KindLoad        Kind = "load"
	KindMultimeter  Kind = "multimeter"
	KindPowerSupply Kind = "power-supply"
)

// Driver is the surface every device driver exposes to the manager.
type Driver interface {
	Model() string
	Conn() transport.Conn
	Setup() error
	Teardown() error
	Refresh() error
	ExportConfig() map[string]any
	ImportConfig(flat map[string]any) error
}

// Identity is a parsed *IDN? response. The power supplies report five
// fields, everything else the standard four.
type Identity struct {
	Manufacturer    string
	Model           string
	SerialNumber    string
	FirmwareVersion string
	HardwareVersion string // supplies only
}

// ParseIdentity splits a raw *IDN? response.
func ParseIdentity(raw string) (Identity, error) {
	fields := strings.Split(strings.TrimSpace(raw), ",")
	if len(fields) != 4 && len(fields) != 5 {
		return Identity{}, fmt.Errorf("malformed identification %q", raw)
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	id := Identity{
		Manufacturer:    fields[0],
		Model:           fields[1],
		SerialNumber:    fields[2],
		FirmwareVersion: fields[3],
	}
	if len(fields) == 5 {
		id.HardwareVersion = fields[4]
	}
	return id, nil
}

// KindForModel maps a model number to its instrument family.
func KindForModel(model string) (Kind, error) {
	for _, m := range sdl1000.Models {
		if m == model {
			return KindLoad, nil
		}
	}
	for _, m := range sdm3000.Models {
		if m == model {
			return KindMultimeter, nil
		}
	}
	for _, m := range spd3303.Models {
		if m == model {
			return KindPowerSupply, nil
		}
	}
	return "", fmt.Errorf("%w: model %q", types.ErrUnknownInstrumentType, model)
}

// newDriver constructs the family driver for a model.
func newDriver(conn transport.Conn, model string, logger *zap.Logger) (Driver, Kind, error) {
	kind, err := KindForModel(model)
	if err != nil {
		return nil, "", err
	}
	switch kind {
	case KindLoad:
		d, err := sdl1000.New(conn, model, logger)
		return d, kind, err
	case KindMultimeter:
		d, err := sdm3000.New(conn, model, logger)
		return d, kind, err
	default:
		d, err := spd3303.New(conn, model, logger)
		return d, kind, err
	}
}

// fakeResponder builds the simulated-instrument response table for a
// model, for FAKE:: resources.
func fakeResponder(model string) (transport.Responder, error) {
	kind, err := KindForModel(model)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindLoad:
		return sdl1000.NewFakeResponder(model)
	case KindMultimeter:
		return sdm3000.NewFakeResponder(model)
	default:
		return spd3303.NewFakeResponder(model), nil
	}
}

// Synchronized is implemented by drivers built around the parameter
// synchronizer; the REST surface uses it for snapshot and set/commit
// access on the load and the multimeter.
type Synchronized interface {
	Sync() *params.Synchronizer
}
