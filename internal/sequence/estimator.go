// Package sequence estimates the position of an instrument-autonomous
// timed program. Once triggered, the instrument walks its step table on
// its own and offers no query for "which step is running", so the only
// available model is wall-clock reconstruction from known per-step
// durations.
package sequence

import "time"

// Step is one row of a timed program.
type Step struct {
	Level    float64
	Duration float64 // seconds
	Slew     float64 // optional, 0 when the program has no slew column
}

// Position is the estimator's ephemeral output. Step is -1 while the
// position is unknown (before a start, or after the output went off).
type Position struct {
	Running bool
	Step    int
	Elapsed float64 // seconds into the current step
}

// Estimator tracks one sequence. Not safe for concurrent use; each
// owning poller drives its own instance.
type Estimator struct {
	steps []Step
	wrap  bool // list programs wrap to step 0, timer programs stop

	running  bool
	stopping bool
	step     int
	elapsed  float64
	last     time.Time

	stoppedAtFinal bool
}

// New builds an estimator. wrap selects whether the program restarts at
// step 0 after the final step or finishes.
func New(steps []Step, wrap bool) *Estimator {
	return &Estimator{steps: steps, wrap: wrap, step: -1}
}

// SetSteps replaces the step table (rows edited or reloaded). The
// estimated position is kept; callers reset if the table shrank.
func (e *Estimator) SetSteps(steps []Step) {
	e.steps = steps
	if e.step >= len(steps) {
		e.Reset()
	}
}

// Start seeds the estimate at the first step with a non-zero duration,
// so a zero-width leading step never shows up as a visible glitch.
func (e *Estimator) Start(now time.Time) {
	e.running = len(e.steps) > 0
	e.stopping = false
	e.stoppedAtFinal = false
	e.elapsed = 0
	e.last = now
	e.step = 0
	for e.step < len(e.steps)-1 && e.steps[e.step].Duration == 0 {
		e.step++
	}
	if !e.running {
		e.step = -1
	}
}

// Heartbeat advances the estimate by the wall-clock delta since the
// previous call. active=false freezes the clock without losing the
// position (a supply whose output is off does not advance its timer).
// A heartbeat gap spanning several steps crosses them all in one call.
func (e *Estimator) Heartbeat(now time.Time, active bool) Position {
	delta := now.Sub(e.last).Seconds()
	e.last = now
	if !e.running || !active || delta < 0 {
		return e.Position()
	}
	total := 0.0
	for _, st := range e.steps {
		total += st.Duration
	}
	if total <= 0 {
		return e.Position()
	}

	e.elapsed += delta
	for e.running && e.elapsed >= e.steps[e.step].Duration {
		e.elapsed -= e.steps[e.step].Duration
		if e.stopping {
			// The instrument finishes the in-flight step before
			// honoring a stop; the index stays on the boundary step.
			e.stopping = false
			e.running = false
			e.stoppedAtFinal = e.step == len(e.steps)-1
			e.elapsed = 0
			break
		}
		if e.step == len(e.steps)-1 && !e.wrap {
			e.running = false
			e.elapsed = 0
			break
		}
		e.step = (e.step + 1) % len(e.steps)
	}
	return e.Position()
}

// RequestStop arms a stop that takes effect at the next step boundary,
// matching the instrument's own semantics.
func (e *Estimator) RequestStop() {
	if e.running {
		e.stopping = true
	}
}

// Reset drops the position to unknown. Called when the owning output is
// turned off or the mode changes.
func (e *Estimator) Reset() {
	e.running = false
	e.stopping = false
	e.stoppedAtFinal = false
	e.step = -1
	e.elapsed = 0
}

// ResumeWarning reports whether resuming now would make the real
// instrument execute one extra, unindexed step: that happens when the
// previous stop landed on the final step. The estimator cannot model
// that extra step; callers must surface the warning before allowing the
// resume.
func (e *Estimator) ResumeWarning() bool {
	return e.stoppedAtFinal
}

// Resume restarts the clock from the stopped position.
func (e *Estimator) Resume(now time.Time) {
	if e.step < 0 || e.running {
		return
	}
	e.running = true
	e.stopping = false
	e.stoppedAtFinal = false
	e.last = now
}

func (e *Estimator) Position() Position {
	return Position{Running: e.running, Step: e.step, Elapsed: e.elapsed}
}

func (e *Estimator) Running() bool { return e.running }

// Stopping reports whether a stop is armed but not yet consumed.
func (e *Estimator) Stopping() bool { return e.stopping }
