// Package spd3303 drives the SPD3303 dual-channel bench power
// supplies. Unlike the load and the multimeter this family has a tiny
// command surface and no mode machinery, so the driver keeps its own
// channel state instead of a declarative parameter profile.
package spd3303

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/benchlab/benchcore/internal/scpi"
	"github.com/benchlab/benchcore/internal/sequence"
	"github.com/benchlab/benchcore/internal/transport"
)

// Models supported by this driver.
var Models = []string{"SPD3303X", "SPD3303X-E"}

const (
	// NumChannels counts the programmable channels. The third, fixed
	// rail has no remote control at all.
	NumChannels = 2

	// TimerSteps is the fixed length of each channel's timer table.
	TimerSteps = 5

	MaxVoltage = 32.0
	MaxCurrent = 3.2
)

// Presets are the front-panel quick voltage/current settings, offered
// through the API for one-tap channel setup.
var Presets = [][2]float64{
	{2.5, 3.2}, {3.3, 3.2}, {5, 3.2}, {12, 3.2}, {13.8, 3.2}, {24, 3.2},
}

// TrackMode is the channel coupling.
type TrackMode int

const (
	TrackIndependent TrackMode = iota
	TrackSeries
	TrackParallel
)

func (m TrackMode) String() string {
	switch m {
	case TrackSeries:
		return "series"
	case TrackParallel:
		return "parallel"
	}
	return "independent"
}

// Status is the decoded SYST:STATUS? register.
type Status struct {
	CC     [NumChannels]bool // constant-current (vs constant-voltage)
	Track  TrackMode
	Output [NumChannels]bool
	Timer  [NumChannels]bool
}

// decodeStatus parses the hex status register. Bits 0-1 are the CC
// flags, bits 2-3 the track mode (01 independent, 10 parallel, 11
// series), bits 4-5 the output states, bits 6-7 the timer states.
func decodeStatus(raw string) (Status, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	bits, err := strconv.ParseUint(raw, 16, 32)
	if err != nil {
		return Status{}, fmt.Errorf("malformed status register %q", raw)
	}
	var st Status
	st.CC[0] = bits&0x01 != 0
	st.CC[1] = bits&0x02 != 0
	switch bits & 0x0c {
	case 0x08:
		st.Track = TrackParallel
	case 0x0c:
		st.Track = TrackSeries
	default:
		st.Track = TrackIndependent
	}
	st.Output[0] = bits&0x10 != 0
	st.Output[1] = bits&0x20 != 0
	st.Timer[0] = bits&0x40 != 0
	st.Timer[1] = bits&0x80 != 0
	return st, nil
}

// TimerStep is one row of a channel's timer table.
type TimerStep struct {
	Voltage  float64
	Current  float64
	Duration float64 // seconds
}

type Driver struct {
	dev    *scpi.Device
	conn   transport.Conn
	logger *zap.Logger
	model  string

	mu     sync.Mutex
	volt   [NumChannels]float64
	curr   [NumChannels]float64
	timers [NumChannels][TimerSteps]TimerStep
	status Status

	estimators [NumChannels]*sequence.Estimator
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
		return nil, fmt.Errorf("unsupported power supply model %q", model)
	}
	d := &Driver{
		dev:    scpi.NewDevice(conn),
		conn:   conn,
		logger: logger.With(zap.String("model", model)),
		model:  model,
	}
	for ch := 0; ch < NumChannels; ch++ {
		d.estimators[ch] = sequence.New(nil, false)
	}
	return d, nil
}

func (d *Driver) Model() string           { return d.model }
func (d *Driver) Conn() transport.Conn    { return d.conn }

func (d *Driver) Setup() error {
	if err := d.dev.ClearStatus(); err != nil {
		return err
	}
	return d.Refresh()
}

// Teardown leaves the supply exactly as configured; there is no remote
// lock to release on this family.
func (d *Driver) Teardown() error { return nil }

// Refresh pulls the setpoints, the status register and both timer
// tables from the wire.
func (d *Driver) Refresh() error {
	raw, err := d.conn.Query("SYST:STATUS?")
	if err != nil {
		return err
	}
	status, err := decodeStatus(raw)
	if err != nil {
		return err
	}

	var volt, curr [NumChannels]float64
	var timers [NumChannels][TimerSteps]TimerStep
	for ch := 0; ch < NumChannels; ch++ {
		if volt[ch], err = d.queryFloat(fmt.Sprintf("CH%d:VOLT?", ch+1)); err != nil {
			return err
		}
		if curr[ch], err = d.queryFloat(fmt.Sprintf("CH%d:CURR?", ch+1)); err != nil {
			return err
		}
		for i := 0; i < TimerSteps; i++ {
			step, err := d.queryTimerStep(ch, i)
			if err != nil {
				return err
			}
			timers[ch][i] = step
		}
	}

	d.mu.Lock()
	d.status = status
	d.volt = volt
	d.curr = curr
	d.timers = timers
	for ch := 0; ch < NumChannels; ch++ {
		d.estimators[ch].SetSteps(timerSequence(timers[ch]))
		if !status.Timer[ch] {
			d.estimators[ch].Reset()
		}
	}
	d.mu.Unlock()
	return nil
}

// queryTimerStep reads one timer row. The instrument answers
// "v,c,t," with a trailing comma.
func (d *Driver) queryTimerStep(ch, i int) (TimerStep, error) {
	raw, err := d.conn.Query(fmt.Sprintf("TIMER:SET? CH%d,%d", ch+1, i+1))
	if err != nil {
		return TimerStep{}, err
	}
	fields := strings.Split(strings.TrimSuffix(strings.TrimSpace(raw), ","), ",")
	if len(fields) != 3 {
		return TimerStep{}, fmt.Errorf("malformed timer row %q", raw)
	}
	var vals [3]float64
	for j, f := range fields {
		if vals[j], err = strconv.ParseFloat(strings.TrimSpace(f), 64); err != nil {
			return TimerStep{}, fmt.Errorf("malformed timer row %q: %w", raw, err)
		}
	}
	return TimerStep{Voltage: vals[0], Current: vals[1], Duration: vals[2]}, nil
}

func timerSequence(steps [TimerSteps]TimerStep) []sequence.Step {
	out := make([]sequence.Step, TimerSteps)
	for i, st := range steps {
		out[i] = sequence.Step{Level: st.Voltage, Duration: st.Duration}
	}
	return out
}

// Status returns the last refreshed status register.
func (d *Driver) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func checkChannel(ch int) error {
	if ch < 0 || ch >= NumChannels {
		return fmt.Errorf("channel %d out of range", ch+1)
	}
	return nil
}

// SetVoltage programs one channel's voltage setpoint, clamped to the
// supply's span.
func (d *Driver) SetVoltage(ch int, v float64) (float64, error) {
	if err := checkChannel(ch); err != nil {
		return 0, err
	}
	v = clamp(v, 0, MaxVoltage)
	if err := d.conn.Write(fmt.Sprintf("CH%d:VOLT %.3f", ch+1, v)); err != nil {
		return 0, err
	}
	d.mu.Lock()
	d.volt[ch] = v
	d.mu.Unlock()
	return v, nil
}

func (d *Driver) SetCurrent(ch int, v float64) (float64, error) {
	if err := checkChannel(ch); err != nil {
		return 0, err
	}
	v = clamp(v, 0, MaxCurrent)
	if err := d.conn.Write(fmt.Sprintf("CH%d:CURR %.3f", ch+1, v)); err != nil {
		return 0, err
	}
	d.mu.Lock()
	d.curr[ch] = v
	d.mu.Unlock()
	return v, nil
}

func (d *Driver) Voltage(ch int) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch < 0 || ch >= NumChannels {
		return 0
	}
	return d.volt[ch]
}

func (d *Driver) Current(ch int) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch < 0 || ch >= NumChannels {
		return 0
	}
	return d.curr[ch]
}

// ApplyPreset programs one of the front-panel quick settings.
func (d *Driver) ApplyPreset(ch, preset int) error {
	if preset < 0 || preset >= len(Presets) {
		return fmt.Errorf("preset %d out of range", preset)
	}
	if _, err := d.SetVoltage(ch, Presets[preset][0]); err != nil {
		return err
	}
	_, err := d.SetCurrent(ch, Presets[preset][1])
	return err
}

// SetOutput switches one channel's output relay. Turning the output
// off freezes the timer estimate rather than dropping it.
func (d *Driver) SetOutput(ch int, on bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	arg := "OFF"
	if on {
		arg = "ON"
	}
	if err := d.conn.Write(fmt.Sprintf("OUTPUT CH%d,%s", ch+1, arg)); err != nil {
		return err
	}
	d.mu.Lock()
	d.status.Output[ch] = on
	d.mu.Unlock()
	return nil
}

// SetTrack selects the channel coupling. The instrument forces both
// outputs off when the coupling changes.
func (d *Driver) SetTrack(mode TrackMode) error {
	var arg string
	switch mode {
	case TrackIndependent:
		arg = "0"
	case TrackSeries:
		arg = "1"
	case TrackParallel:
		arg = "2"
	default:
		return fmt.Errorf("unknown track mode %d", mode)
	}
	if err := d.conn.Write("OUTPUT:TRACK " + arg); err != nil {
		return err
	}
	d.mu.Lock()
	d.status.Track = mode
	d.status.Output[0] = false
	d.status.Output[1] = false
	d.mu.Unlock()
	return nil
}

// SetTimerStep programs one timer table row (0-based step index).
func (d *Driver) SetTimerStep(ch, i int, step TimerStep) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if i < 0 || i >= TimerSteps {
		return fmt.Errorf("timer step %d out of range", i+1)
	}
	step.Voltage = clamp(step.Voltage, 0, MaxVoltage)
	step.Current = clamp(step.Current, 0, MaxCurrent)
	if step.Duration < 0 {
		step.Duration = 0
	}
	line := fmt.Sprintf("TIMER:SET CH%d,%d,%.3f,%.3f,%.1f",
		ch+1, i+1, step.Voltage, step.Current, step.Duration)
	if err := d.conn.Write(line); err != nil {
		return err
	}
	d.mu.Lock()
	d.timers[ch][i] = step
	d.estimators[ch].SetSteps(timerSequence(d.timers[ch]))
	d.mu.Unlock()
	return nil
}

func (d *Driver) TimerSteps(ch int) [TimerSteps]TimerStep {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch < 0 || ch >= NumChannels {
		return [TimerSteps]TimerStep{}
	}
	return d.timers[ch]
}

// SetTimer starts or stops one channel's timer program. The table runs
// once through its five steps and finishes; there is no wrap-around.
func (d *Driver) SetTimer(ch int, on bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	arg := "OFF"
	if on {
		arg = "ON"
	}
	if err := d.conn.Write(fmt.Sprintf("TIMER CH%d,%s", ch+1, arg)); err != nil {
		return err
	}
	d.mu.Lock()
	d.status.Timer[ch] = on
	if on {
		d.estimators[ch].Start(time.Now())
	} else {
		d.estimators[ch].Reset()
	}
	d.mu.Unlock()
	return nil
}

// Heartbeat advances both timer estimates. A timer only progresses
// while its output is actually delivering power.
func (d *Driver) Heartbeat(now time.Time) [NumChannels]sequence.Position {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out [NumChannels]sequence.Position
	for ch := 0; ch < NumChannels; ch++ {
		active := d.status.Timer[ch] && d.status.Output[ch]
		out[ch] = d.estimators[ch].Heartbeat(now, active)
		if !out[ch].Running && d.status.Timer[ch] && out[ch].Step >= 0 {
			// The program ran off the end of its table.
			d.status.Timer[ch] = false
		}
	}
	return out
}

func (d *Driver) TimerPosition(ch int) sequence.Position {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch < 0 || ch >= NumChannels {
		return sequence.Position{Step: -1}
	}
	return d.estimators[ch].Position()
}

func (d *Driver) queryFloat(q string) (float64, error) {
	raw, err := d.conn.Query(q)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed response %q for %s: %w", raw, q, err)
	}
	return v, nil
}

func (d *Driver) MeasureVoltage(ch int) (float64, error) {
	if err := checkChannel(ch); err != nil {
		return 0, err
	}
	return d.queryFloat(fmt.Sprintf("MEAS:VOLT? CH%d", ch+1))
}

func (d *Driver) MeasureCurrent(ch int) (float64, error) {
	if err := checkChannel(ch); err != nil {
		return 0, err
	}
	return d.queryFloat(fmt.Sprintf("MEAS:CURR? CH%d", ch+1))
}

func (d *Driver) MeasurePower(ch int) (float64, error) {
	if err := checkChannel(ch); err != nil {
		return 0, err
	}
	return d.queryFloat(fmt.Sprintf("MEAS:POWE? CH%d", ch+1))
}
