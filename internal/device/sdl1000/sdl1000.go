// Package sdl1000 drives the SDL1000X family of electronic loads.
package sdl1000

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/benchlab/benchcore/internal/params"
	"github.com/benchlab/benchcore/internal/scpi"
	"github.com/benchlab/benchcore/internal/transport"
)

// Models supported by this driver, with their power ceiling.
var Models = []string{"SDL1020X", "SDL1020X-E", "SDL1030X", "SDL1030X-E"}

type Driver struct {
	dev     *scpi.Device
	conn    transport.Conn
	logger  *zap.Logger
	model   string
	power   float64
	profile *params.Profile
	sync    *params.Synchronizer
	list    *ListProgram
}

func New(conn transport.Conn, model string, logger *zap.Logger) (*Driver, error) {
	power, err := modelPower(model)
	if err != nil {
		return nil, err
	}
	profile := buildProfile(model, power)
	d := &Driver{
		dev:     scpi.NewDevice(conn),
		conn:    conn,
		logger:  logger.With(zap.String("model", model)),
		model:   model,
		power:   power,
		profile: profile,
		sync:    params.NewSynchronizer(conn, profile, logger),
	}
	d.list = newListProgram(d)
	return d, nil
}

func (d *Driver) Model() string                 { return d.model }
func (d *Driver) MaxPower() float64             { return d.power }
func (d *Driver) Conn() transport.Conn          { return d.conn }
func (d *Driver) Sync() *params.Synchronizer    { return d.sync }
func (d *Driver) List() *ListProgram            { return d.list }

// Setup claims the instrument after a connect: clear status, lock the
// front panel, then pull the full state.
func (d *Driver) Setup() error {
	if err := d.dev.ClearStatus(); err != nil {
		return err
	}
	if err := d.conn.Write(":SYST:REMOTE:STATE 1"); err != nil {
		return err
	}
	return d.Refresh()
}

// Teardown releases the front panel before a disconnect.
func (d *Driver) Teardown() error {
	return d.conn.Write(":SYST:REMOTE:STATE 0")
}

// Refresh pulls the canonical state from the wire, decodes the current
// operating mode, coerces a MANUAL trigger source to BUS (manual
// triggering is pointless under remote control) and reloads the list
// step table.
func (d *Driver) Refresh() error {
	if err := d.sync.Refresh(); err != nil {
		return err
	}

	snap := d.sync.Snapshot()
	mode, err := decodeMode(snap)
	if err != nil {
		return err
	}
	d.sync.SetWireMode(mode)

	if snap.Str(":TRIGGER:SOURCE") == "MANUAL" {
		if _, err := d.sync.Set(":TRIGGER:SOURCE", params.EnumValue("BUS")); err != nil {
			return err
		}
		if err := d.conn.Write(":TRIGGER:SOURCE BUS"); err != nil {
			return err
		}
	}

	return d.list.reload(snap.Int(":LIST:STEP"))
}

// decodeMode reconstructs the driver mode key from the raw state. The
// instrument splits the answer across several queries.
func decodeMode(snap params.Snapshot) (string, error) {
	if snap.Str(":EXT:MODE") != "INT" {
		if snap.Str(":EXT:MODE") == "EXTV" {
			return modeKey(ModeExt, ConstVoltage), nil
		}
		return modeKey(ModeExt, ConstCurrent), nil
	}

	constMode := func(fn string) string {
		switch fn {
		case "VOLTAGE":
			return ConstVoltage
		case "CURRENT":
			return ConstCurrent
		case "POWER":
			return ConstPower
		case "RESISTANCE":
			return ConstResistance
		}
		return ConstCurrent
	}

	switch fm := snap.Str(":FUNCTION:MODE"); fm {
	case "BASIC":
		if snap.Str(":FUNCTION") == "LED" {
			return ModeLED, nil
		}
		return modeKey(ModeBasic, constMode(snap.Str(":FUNCTION"))), nil
	case "TRAN":
		cm := constMode(snap.Str(":FUNCTION:TRANSIENT"))
		dyn := DynContinuous
		switch snap.Str(":" + strings.ToUpper(cm) + ":TRANSIENT:MODE") {
		case "PULSE":
			dyn = DynPulse
		case "TOGGLE":
			dyn = DynToggle
		}
		return modeKey(ModeDynamic, cm, dyn), nil
	case "BATTERY":
		switch snap.Str(":BATTERY:MODE") {
		case "POWER":
			return modeKey(ModeBattery, ConstPower), nil
		case "RESISTANCE":
			return modeKey(ModeBattery, ConstResistance), nil
		}
		return modeKey(ModeBattery, ConstCurrent), nil
	case "OCP":
		return ModeOCPT, nil
	case "OPP":
		return ModeOPPT, nil
	case "LIST":
		return modeKey(ModeList, constMode(snap.Str(":FUNCTION"))), nil
	case "PROGRAM":
		return ModeProgram, nil
	default:
		return "", fmt.Errorf("unrecognized function mode %q", fm)
	}
}

// Set stages one canonical parameter change; range selections re-clamp
// the list table.
func (d *Driver) Set(path string, v params.Value) (params.Value, error) {
	stored, err := d.sync.Set(path, v)
	if err != nil {
		return stored, err
	}
	if strings.HasSuffix(path, "IRANGE") || strings.HasSuffix(path, "VRANGE") {
		d.list.clamp()
	}
	return stored, nil
}

// Commit writes the staged diff, keeping the instrument in its current
// mode, and returns the authoritative snapshot.
func (d *Driver) Commit() (params.Snapshot, error) {
	snap, err := d.sync.Commit(d.sync.WireMode())
	if err != nil {
		return nil, err
	}
	if err := d.list.flush(); err != nil {
		return nil, err
	}
	return snap, nil
}

// SetMode switches the instrument into another operating mode and
// re-reads the state, since some transitions force the input off.
func (d *Driver) SetMode(key string) error {
	mode := d.profile.Mode(key)
	if mode == nil {
		return fmt.Errorf("unknown mode %q", key)
	}
	wasOn := d.sync.Snapshot().Bool(":INPUT:STATE")
	for _, cmd := range mode.Switch {
		if err := d.conn.Write(cmd); err != nil {
			return err
		}
	}
	d.sync.SetWireMode(key)
	if err := d.Refresh(); err != nil {
		return err
	}
	// A transition that turned the input off as a safety behavior must
	// not look like a silent success.
	if wasOn && !d.sync.Snapshot().Bool(":INPUT:STATE") {
		d.logger.Warn("mode switch turned the input off", zap.String("mode", key))
	}
	return nil
}

func (d *Driver) Mode() string { return d.sync.WireMode() }

// SetInputState turns the load on or off. Turning it off drops the list
// position estimate to unknown.
func (d *Driver) SetInputState(on bool) error {
	wire := "0"
	if on {
		wire = "1"
	}
	if err := d.conn.Write(":INPUT:STATE " + wire); err != nil {
		return err
	}
	if _, err := d.sync.Set(":INPUT:STATE", params.BoolValue(on)); err != nil {
		return err
	}
	if !on {
		d.list.estimator.Reset()
	}
	return nil
}

// Trigger issues a bus trigger; in list mode it also starts or stops
// the local step estimate.
func (d *Driver) Trigger() error {
	if err := d.dev.Trigger(); err != nil {
		return err
	}
	d.list.onTrigger()
	return nil
}

func (d *Driver) measureFloat(q string) (float64, error) {
	raw, err := d.conn.Query(q)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed measurement %q for %s: %w", raw, q, err)
	}
	return v, nil
}

func (d *Driver) MeasureVoltage() (float64, error) { return d.measureFloat("MEAS:VOLT?") }
func (d *Driver) MeasureCurrent() (float64, error) { return d.measureFloat("MEAS:CURR?") }
func (d *Driver) MeasurePower() (float64, error)   { return d.measureFloat("MEAS:POW?") }
func (d *Driver) MeasureResistance() (float64, error) {
	return d.measureFloat("MEAS:RES?")
}
func (d *Driver) MeasureTRise() (float64, error) { return d.measureFloat("TIME:TEST:RISE?") }
func (d *Driver) MeasureTFall() (float64, error) { return d.measureFloat("TIME:TEST:FALL?") }

// Battery discharge bookkeeping, only meaningful in battery mode.
func (d *Driver) MeasureBatteryTime() (float64, error) {
	return d.measureFloat(":BATTERY:DISCHA:TIMER?")
}

// MeasureBatteryCapacity returns the discharged capacity in Ah (the
// instrument reports mAh).
func (d *Driver) MeasureBatteryCapacity() (float64, error) {
	v, err := d.measureFloat(":BATTERY:DISCHA:CAP?")
	return v / 1000, err
}

func (d *Driver) MeasureBatteryAddCapacity() (float64, error) {
	v, err := d.measureFloat(":BATTERY:ADDCAP?")
	return v / 1000, err
}
