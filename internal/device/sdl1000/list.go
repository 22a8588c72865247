package sdl1000

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/benchlab/benchcore/internal/sequence"
)

// HeartbeatInterval is how often the list position estimate advances.
const HeartbeatInterval = 250 * time.Millisecond

// ListProgram mirrors the instrument's list step table and fakes the
// progress of its steps: there is no query for the current step, so the
// position is reconstructed from elapsed wall-clock time and has to be
// re-clamped whenever a range selection changes.
type ListProgram struct {
	d *Driver

	levels []float64
	widths []float64
	slews  []float64
	dirty  map[int]bool // 1-based rows pending a write

	estimator *sequence.Estimator
}

func newListProgram(d *Driver) *ListProgram {
	return &ListProgram{
		d:         d,
		dirty:     map[int]bool{},
		estimator: sequence.New(nil, true),
	}
}

// reload pulls rows from the instrument up to the current step count.
// Rows beyond the count are kept so shrinking and re-growing the table
// does not refetch them.
func (l *ListProgram) reload(steps int) error {
	for i := len(l.levels) + 1; i <= steps; i++ {
		level, err := l.queryRow(":LIST:LEVEL?", i)
		if err != nil {
			return err
		}
		width, err := l.queryRow(":LIST:WIDTH?", i)
		if err != nil {
			return err
		}
		slew, err := l.queryRow(":LIST:SLEW?", i)
		if err != nil {
			return err
		}
		l.levels = append(l.levels, level)
		l.widths = append(l.widths, width)
		l.slews = append(l.slews, slew)
	}
	l.dirty = map[int]bool{}
	l.clamp()
	l.pushSteps()
	return nil
}

func (l *ListProgram) queryRow(q string, row int) (float64, error) {
	raw, err := l.d.conn.Query(fmt.Sprintf("%s %d", q, row))
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed list row %q: %w", raw, err)
	}
	return v, nil
}

// Steps returns the active rows as sequence steps.
func (l *ListProgram) Steps() []sequence.Step {
	snap := l.d.sync.Snapshot()
	n := snap.Int(":LIST:STEP")
	if n > len(l.levels) {
		n = len(l.levels)
	}
	out := make([]sequence.Step, n)
	for i := 0; i < n; i++ {
		out[i] = sequence.Step{Level: l.levels[i], Duration: l.widths[i], Slew: l.slews[i]}
	}
	return out
}

// SetRow stages one row edit (1-based). Values are clamped to the
// active ranges before anything reaches the wire.
func (l *ListProgram) SetRow(row int, level, width, slew float64) error {
	if row < 1 || row > len(l.levels) {
		return fmt.Errorf("list row %d out of range", row)
	}
	l.levels[row-1] = level
	l.widths[row-1] = width
	l.slews[row-1] = slew
	l.dirty[row] = true
	l.clamp()
	l.pushSteps()
	return nil
}

// clamp re-validates the table against the active range selections.
func (l *ListProgram) clamp() {
	snap := l.d.sync.Snapshot()
	mode := l.d.sync.WireMode()
	if !strings.HasPrefix(mode, ModeList+":") {
		return
	}
	constMode := strings.TrimPrefix(mode, ModeList+":")

	vrange, _ := strconv.ParseFloat(snap.Str(":LIST:VRANGE"), 64)
	irange, _ := strconv.ParseFloat(snap.Str(":LIST:IRANGE"), 64)

	levelMin, levelMax := 0.0, 0.0
	slewMax := 2.5
	if irange == 5 {
		slewMax = 0.5
	}
	switch constMode {
	case ConstVoltage:
		levelMax = vrange
	case ConstCurrent:
		levelMax = irange
	case ConstPower:
		levelMax = l.d.power
	case ConstResistance:
		levelMin, levelMax = 0.03, 10000
	}

	clip := func(vals []float64, min, max float64) {
		for i, v := range vals {
			c := v
			if c < min {
				c = min
			}
			if c > max {
				c = max
			}
			if c != v {
				vals[i] = c
				l.dirty[i+1] = true
			}
		}
	}
	clip(l.levels, levelMin, levelMax)
	clip(l.widths, 0.001, 999)
	clip(l.slews, 0.001, slewMax)
}

// flush writes dirty rows, three decimals each.
func (l *ListProgram) flush() error {
	snap := l.d.sync.Applied()
	steps := snap.Int(":LIST:STEP")
	for row := 1; row <= steps; row++ {
		if !l.dirty[row] {
			continue
		}
		if err := l.d.conn.Write(fmt.Sprintf(":LIST:LEVEL %d,%.3f", row, l.levels[row-1])); err != nil {
			return err
		}
		if err := l.d.conn.Write(fmt.Sprintf(":LIST:WIDTH %d,%.3f", row, l.widths[row-1])); err != nil {
			return err
		}
		if err := l.d.conn.Write(fmt.Sprintf(":LIST:SLEW %d,%.3f", row, l.slews[row-1])); err != nil {
			return err
		}
		delete(l.dirty, row)
	}
	return nil
}

func (l *ListProgram) pushSteps() {
	l.estimator.SetSteps(l.Steps())
}

// onTrigger mirrors the instrument's own trigger behavior: a trigger
// starts the sequence, a second one arms a stop that takes effect after
// the in-flight step.
func (l *ListProgram) onTrigger() {
	if !strings.HasPrefix(l.d.sync.WireMode(), ModeList+":") {
		return
	}
	if !l.estimator.Running() {
		if l.estimator.ResumeWarning() {
			// The instrument executes an extra unindexed step when a
			// sequence stopped on its final step is resumed. The
			// estimate cannot track that step.
			l.d.logger.Warn("resuming a list stopped on its final step runs one extra unindexed step")
		}
		if l.estimator.Position().Step < 0 {
			l.estimator.Start(time.Now())
		} else {
			l.estimator.Resume(time.Now())
		}
	} else {
		l.estimator.RequestStop()
	}
}

// Heartbeat advances the position estimate; the manager's poller calls
// it every HeartbeatInterval.
func (l *ListProgram) Heartbeat(now time.Time) sequence.Position {
	active := l.d.sync.Snapshot().Bool(":INPUT:STATE")
	return l.estimator.Heartbeat(now, active)
}

func (l *ListProgram) Position() sequence.Position {
	return l.estimator.Position()
}

// ResumeWarning reports the final-step resume hazard so a collaborator
// can warn before re-triggering.
func (l *ListProgram) ResumeWarning() bool {
	return l.estimator.ResumeWarning()
}

// exportRows contributes the synthetic per-row keys to a configuration
// export.
func (l *ListProgram) exportRows(out map[string]any) {
	steps := l.d.sync.Snapshot().Int(":LIST:STEP")
	for i := 0; i < steps && i < len(l.levels); i++ {
		out[fmt.Sprintf(":LIST:LEVEL %d", i+1)] = l.levels[i]
		out[fmt.Sprintf(":LIST:WIDTH %d", i+1)] = l.widths[i]
		out[fmt.Sprintf(":LIST:SLEW %d", i+1)] = l.slews[i]
	}
}

// importRows restores rows from a configuration import and marks them
// all dirty so the next commit writes them back.
func (l *ListProgram) importRows(flat map[string]any) {
	for key, raw := range flat {
		var kind string
		switch {
		case strings.HasPrefix(key, ":LIST:LEVEL "):
			kind = "level"
		case strings.HasPrefix(key, ":LIST:WIDTH "):
			kind = "width"
		case strings.HasPrefix(key, ":LIST:SLEW "):
			kind = "slew"
		default:
			continue
		}
		row, err := strconv.Atoi(key[strings.LastIndex(key, " ")+1:])
		if err != nil || row < 1 {
			continue
		}
		val, ok := toFloat(raw)
		if !ok {
			continue
		}
		for len(l.levels) < row {
			l.levels = append(l.levels, 0)
			l.widths = append(l.widths, 0.001)
			l.slews = append(l.slews, 0.001)
		}
		switch kind {
		case "level":
			l.levels[row-1] = val
		case "width":
			l.widths[row-1] = val
		case "slew":
			l.slews[row-1] = val
		}
		l.dirty[row] = true
	}
	l.clamp()
	l.pushSteps()
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	}
	return 0, false
}
