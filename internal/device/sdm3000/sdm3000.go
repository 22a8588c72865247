// Package sdm3000 drives the SDM3000-series bench multimeters.
//
// The meter has a single measurement channel but the driver maintains
// several parameter sets, each holding a complete configuration
// (function, range, speed). A measurement sweep rotates the channel
// through the enabled sets, writing only the wire difference between
// consecutive configurations before each reading.
package sdm3000

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/benchlab/benchcore/internal/convert"
	"github.com/benchlab/benchcore/internal/params"
	"github.com/benchlab/benchcore/internal/scpi"
	"github.com/benchlab/benchcore/internal/transport"
)

// Models supported by this driver.
var Models = []string{"SDM3045X", "SDM3055", "SDM3065X"}

// NumParamSets is the number of rotating parameter sets. Set 1 is
// always enabled; sets 2..NumParamSets are opt-in.
const NumParamSets = 4

// OverloadSentinel is the reading the meter reports when the input
// exceeds the selected range.
const OverloadSentinel = 9.9e37

// Speed is the operator-facing integration speed. On the wire it is an
// NPLC count.
type Speed string

const (
	SpeedSlow   Speed = "SLOW"   // 10 PLC
	SpeedMedium Speed = "MEDIUM" // 1 PLC
	SpeedFast   Speed = "FAST"   // 0.3 PLC
)

func speedToNPLC(s Speed) (float64, error) {
	switch s {
	case SpeedSlow:
		return 10, nil
	case SpeedMedium:
		return 1, nil
	case SpeedFast:
		return 0.3, nil
	}
	return 0, fmt.Errorf("unknown speed %q", s)
}

func nplcToSpeed(nplc float64) Speed {
	switch {
	case nplc >= 10:
		return SpeedSlow
	case nplc >= 1:
		return SpeedMedium
	default:
		return SpeedFast
	}
}

// Reading is one measurement taken during a sweep.
type Reading struct {
	Set      int
	Mode     string
	Label    string
	Unit     string
	Value    float64
	Overload bool
}

type Driver struct {
	dev     *scpi.Device
	conn    transport.Conn
	logger  *zap.Logger
	model   string
	profile *params.Profile
	sync    *params.Synchronizer

	mu      sync.Mutex
	sets    [NumParamSets + 1]params.Snapshot
	modes   [NumParamSets + 1]string
	enabled [NumParamSets + 1]bool
}

func New(conn transport.Conn, model string, logger *zap.Logger) (*Driver, error) {
	supported := false
	for _, m := range Models {
		if m == model {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("unsupported multimeter model %q", model)
	}
	profile := buildProfile(model)
	d := &Driver{
		dev:     scpi.NewDevice(conn),
		conn:    conn,
		logger:  logger.With(zap.String("model", model)),
		model:   model,
		profile: profile,
		sync:    params.NewSynchronizer(conn, profile, logger),
	}
	for i := range d.sets {
		d.sets[i] = params.Snapshot{}
	}
	d.enabled[1] = true
	return d, nil
}

func (d *Driver) Model() string              { return d.model }
func (d *Driver) Conn() transport.Conn       { return d.conn }
func (d *Driver) Sync() *params.Synchronizer { return d.sync }

// Setup claims the instrument after a connect.
func (d *Driver) Setup() error {
	if err := d.dev.ClearStatus(); err != nil {
		return err
	}
	return d.Refresh()
}

func (d *Driver) Teardown() error { return nil }

// Refresh pulls the full wire state and rebuilds the parameter sets:
// the global set 0 keeps the shared trigger configuration, set 1 takes
// the instrument's live configuration, and sets 2..N are seeded from
// set 1 since the instrument has no storage of its own for them.
func (d *Driver) Refresh() error {
	if err := d.sync.Refresh(); err != nil {
		return err
	}

	raw, err := d.conn.Query(":FUNCTION?")
	if err != nil {
		return err
	}
	mode, ok := normalizeFunction(raw)
	if !ok {
		return fmt.Errorf("unrecognized measurement function %q", raw)
	}
	d.sync.SetWireMode(mode)

	snap := d.sync.Snapshot()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.sets[0] = params.Snapshot{}
	for i := range d.profile.Global.Params {
		path := d.profile.Global.Params[i].Path
		if v, ok := snap[path]; ok {
			d.sets[0][path] = v
		}
	}
	d.sets[1] = snap.Clone()
	d.modes[1] = mode
	for i := 2; i <= NumParamSets; i++ {
		d.sets[i] = d.sets[1].Clone()
		d.modes[i] = mode
	}
	return nil
}

// SetEnabled turns a parameter set on or off for the sweep. Set 1 is
// always measured.
func (d *Driver) SetEnabled(set int, on bool) error {
	if set < 2 || set > NumParamSets {
		return fmt.Errorf("parameter set %d cannot be toggled", set)
	}
	d.mu.Lock()
	d.enabled[set] = on
	d.mu.Unlock()
	return nil
}

func (d *Driver) Enabled(set int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return set == 1 || (set >= 2 && set <= NumParamSets && d.enabled[set])
}

// SetFunction selects a parameter set's measurement function.
func (d *Driver) SetFunction(set int, mode string) error {
	if d.profile.Mode(mode) == nil {
		return fmt.Errorf("unknown measurement function %q", mode)
	}
	if err := checkSet(set); err != nil {
		return err
	}
	d.mu.Lock()
	d.modes[set] = mode
	d.mu.Unlock()
	return nil
}

func (d *Driver) Function(set int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if set < 1 || set > NumParamSets {
		return ""
	}
	return d.modes[set]
}

// Set stages one parameter change on one set. Global paths (set 0) are
// shared across the sweep. Range tokens are validated against the
// model's conversion table.
func (d *Driver) Set(set int, path string, v params.Value) (params.Value, error) {
	if set < 0 || set > NumParamSets {
		return params.Value{}, fmt.Errorf("parameter set %d out of range", set)
	}
	spec := d.profile.Find(path)
	if spec == nil {
		return params.Value{}, fmt.Errorf("unknown parameter path %q", path)
	}
	switch spec.Kind {
	case params.Enum, params.Range:
		v.Str = strings.ToUpper(v.Str)
	case params.Float:
		d.mu.Lock()
		v = params.FloatValue(d.profile.Clamp(spec, v.Float, d.sets[set]))
		d.mu.Unlock()
	}
	if spec.Kind == params.Range {
		table, err := convert.ForModel(d.model, spec.Family)
		if err != nil {
			return params.Value{}, err
		}
		if _, err := table.FromWrite(v.Str); err != nil {
			return params.Value{}, err
		}
	}
	d.mu.Lock()
	d.sets[set][path] = v
	d.mu.Unlock()
	return v, nil
}

// Get reads one staged value from a set.
func (d *Driver) Get(set int, path string) (params.Value, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if set < 0 || set > NumParamSets {
		return params.Value{}, false
	}
	v, ok := d.sets[set][path]
	return v, ok
}

// SetSpeed stages the integration speed of a set's current function.
// Functions without a speed setting reject it.
func (d *Driver) SetSpeed(set int, speed Speed) error {
	if err := checkSet(set); err != nil {
		return err
	}
	nplc, err := speedToNPLC(speed)
	if err != nil {
		return err
	}
	d.mu.Lock()
	mode := d.modes[set]
	d.mu.Unlock()
	path := ":" + mode + ":NPLC"
	if d.profile.Find(path) == nil {
		return fmt.Errorf("function %s has no integration speed", mode)
	}
	_, err = d.Set(set, path, params.FloatValue(nplc))
	return err
}

func (d *Driver) Speed(set int) (Speed, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if set < 1 || set > NumParamSets {
		return "", false
	}
	v, ok := d.sets[set][":"+d.modes[set]+":NPLC"]
	if !ok {
		return "", false
	}
	return nplcToSpeed(v.Float), true
}

// limited reduces one set to the paths that must be on the wire for its
// function: the shared global paths plus the function's own parameters,
// leaving out a manual range selection while auto-ranging is active.
func (d *Driver) limited(set int) (params.Snapshot, string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	mode := d.modes[set]
	out := params.Snapshot{}
	for path, v := range d.sets[0] {
		out[path] = v
	}
	m := d.profile.Mode(mode)
	if m == nil {
		return out, mode
	}
	for i := range m.Params {
		spec := &m.Params[i]
		v, ok := d.sets[set][spec.Path]
		if !ok {
			continue
		}
		if spec.Kind == params.Range && d.sets[set].Bool(spec.Path+":AUTO") {
			continue
		}
		out[spec.Path] = v
	}
	return out, mode
}

// Measure rotates the channel through every enabled set, reconfiguring
// the wire with the minimal diff before each READ?. A reading at the
// overload sentinel is flagged rather than reported as a value.
func (d *Driver) Measure() ([]Reading, error) {
	var out []Reading
	for set := 1; set <= NumParamSets; set++ {
		if !d.Enabled(set) {
			continue
		}
		desired, mode := d.limited(set)
		if err := d.sync.ApplySnapshot(desired, mode); err != nil {
			return out, err
		}
		raw, err := d.conn.Query("READ?")
		if err != nil {
			return out, err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return out, fmt.Errorf("malformed reading %q: %w", raw, err)
		}
		r := Reading{
			Set:   set,
			Mode:  mode,
			Label: ModeLabel(mode),
			Unit:  ModeUnit(mode),
		}
		if v == OverloadSentinel || v == -OverloadSentinel {
			r.Overload = true
		} else {
			r.Value = v
		}
		out = append(out, r)
	}
	return out, nil
}

func checkSet(set int) error {
	if set < 1 || set > NumParamSets {
		return fmt.Errorf("parameter set %d out of range", set)
	}
	return nil
}
