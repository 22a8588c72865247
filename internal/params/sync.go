package params

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/benchlab/benchcore/internal/convert"
	"github.com/benchlab/benchcore/internal/transport"
	"github.com/benchlab/benchcore/internal/types"
)

// Synchronizer keeps one paramset's canonical state consistent with the
// instrument's wire-level representation. All mutation goes through it:
// user actions call Set, the wire is only touched by Refresh and
// Commit/ApplySnapshot.
type Synchronizer struct {
	conn    transport.Conn
	profile *Profile
	logger  *zap.Logger

	mu       sync.Mutex
	state    State
	snap     Snapshot
	applied  Snapshot
	wireMode string
}

func NewSynchronizer(conn transport.Conn, profile *Profile, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		conn:    conn,
		profile: profile,
		logger:  logger,
		state:   Uninitialized,
		snap:    Snapshot{},
		applied: Snapshot{},
	}
}

func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Synchronizer) Profile() *Profile {
	return s.profile
}

// Snapshot returns a copy of the canonical state.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Applied returns a copy of the last state known to be on the wire.
func (s *Synchronizer) Applied() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied.Clone()
}

// WireMode is the instrument's last known operating mode.
func (s *Synchronizer) WireMode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wireMode
}

// SetWireMode records the mode the driver detected on the instrument.
func (s *Synchronizer) SetWireMode(key string) {
	s.mu.Lock()
	s.wireMode = key
	s.mu.Unlock()
}

// Refresh replaces the canonical state with what the instrument
// reports: one query per reachable path under the global descriptor
// plus every mode descriptor, skipping paths already resolved (modes
// legitimately share wire storage). A transport failure aborts the
// whole refresh and leaves the previous snapshot untouched; per-path
// parse failures are collected and reported together.
func (s *Synchronizer) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = Refreshing
	fresh := Snapshot{}
	var parseErrs error

	readMode := func(m *ModeSpec) error {
		for i := range m.Params {
			spec := &m.Params[i]
			if _, done := fresh[spec.Path]; done {
				continue
			}
			if err := s.readParam(spec, fresh); err != nil {
				var lookupErr *types.LookupError
				if isTransportErr(err) || errors.As(err, &lookupErr) {
					return err
				}
				parseErrs = multierr.Append(parseErrs, err)
			}
		}
		return nil
	}

	if err := readMode(&s.profile.Global); err != nil {
		s.state = Errored
		return err
	}
	for i := range s.profile.Modes {
		if err := readMode(&s.profile.Modes[i]); err != nil {
			s.state = Errored
			return err
		}
	}

	if err := s.healSentinels(fresh); err != nil {
		s.state = Errored
		return err
	}

	s.snap = fresh
	s.applied = fresh.Clone()
	s.state = Synchronized
	return parseErrs
}

// readParam queries one path and stores the canonical value.
func (s *Synchronizer) readParam(spec *Spec, into Snapshot) error {
	raw, err := s.conn.Query(spec.Path + "?")
	if err != nil {
		return err
	}
	v, err := s.parse(spec, raw)
	if err != nil {
		return fmt.Errorf("%s: %w", spec.Path, err)
	}
	into[spec.Path] = v

	if spec.Flag != "" {
		if _, done := into[spec.Flag]; !done {
			fraw, err := s.conn.Query(spec.Flag + "?")
			if err != nil {
				return err
			}
			b, err := parseBool(strings.TrimPrefix(fraw, "+"))
			if err != nil {
				return fmt.Errorf("%s: %w", spec.Flag, err)
			}
			into[spec.Flag] = BoolValue(b)
		}
	}
	return nil
}

// healSentinels enforces the inactive-implies-sentinel invariant: any
// parameter whose activation flag reads off but whose value is not the
// zero sentinel gets the sentinel locally and a corrective write on the
// instrument.
func (s *Synchronizer) healSentinels(snap Snapshot) error {
	heal := func(m *ModeSpec) error {
		for i := range m.Params {
			spec := &m.Params[i]
			if spec.Flag == "" {
				continue
			}
			v, ok := snap[spec.Path]
			if !ok || snap.Bool(spec.Flag) || v.IsZero() {
				continue
			}
			zero := Value{Kind: v.Kind}
			snap[spec.Path] = zero
			if err := s.writeParam(spec, zero); err != nil {
				return err
			}
		}
		return nil
	}
	if err := heal(&s.profile.Global); err != nil {
		return err
	}
	for i := range s.profile.Modes {
		if err := heal(&s.profile.Modes[i]); err != nil {
			return err
		}
	}
	return nil
}

// Set stages one canonical change. Floats are clamped against the
// spec's bounds resolved on the current snapshot. Turning an activation
// flag off forces its parameter to the sentinel; staging a non-sentinel
// value on a flagged parameter turns the flag on.
func (s *Synchronizer) Set(path string, v Value) (Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	spec := s.profile.Find(path)
	var owners []*Spec
	if spec == nil {
		// The path may be an activation flag rather than a parameter.
		owners = s.flagOwners(path)
		if len(owners) == 0 {
			return Value{}, fmt.Errorf("unknown parameter path %q", path)
		}
		if v.Kind != Bool {
			return Value{}, fmt.Errorf("flag %q takes a boolean", path)
		}
	}

	if spec != nil {
		switch spec.Kind {
		case Float:
			v = FloatValue(s.profile.Clamp(spec, v.Float, s.snap))
		case Int:
			if min, ok := s.profile.Resolve(spec.Min, s.snap); ok && float64(v.Int) < min {
				v = IntValue(int(min))
			}
			if max, ok := s.profile.Resolve(spec.Max, s.snap); ok && float64(v.Int) > max {
				v = IntValue(int(max))
			}
		case Enum, Range:
			v.Str = strings.ToUpper(v.Str)
		}
		s.snap[path] = v
		if spec.Flag != "" && !v.IsZero() {
			s.snap[spec.Flag] = BoolValue(true)
		}
		return v, nil
	}

	// Flag write.
	s.snap[path] = v
	if !v.Bool {
		for _, owner := range owners {
			if cur, ok := s.snap[owner.Path]; ok {
				s.snap[owner.Path] = Value{Kind: cur.Kind}
			}
		}
	}
	return v, nil
}

func (s *Synchronizer) flagOwners(flagPath string) []*Spec {
	var out []*Spec
	scan := func(m *ModeSpec) {
		for i := range m.Params {
			if m.Params[i].Flag == flagPath {
				out = append(out, &m.Params[i])
			}
		}
	}
	scan(&s.profile.Global)
	for i := range s.profile.Modes {
		scan(&s.profile.Modes[i])
	}
	return out
}

// Commit applies the staged canonical state to the wire and returns the
// authoritative post-commit snapshot. Only changed paths are written;
// before the first write belonging to a mode the instrument is not in,
// that mode's switch sequence goes out first, and the instrument is
// left in targetMode afterwards. Commit is best effort: the snapshot,
// not the requested values, is the source of truth afterwards (the next
// Refresh picks up anything the instrument clamped on its side).
func (s *Synchronizer) Commit(targetMode string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.applyLocked(s.snap, targetMode); err != nil {
		return nil, err
	}
	return s.applied.Clone(), nil
}

// ApplySnapshot diffs an externally-held desired snapshot against the
// last-applied wire state and writes the difference. Multi-set devices
// use this to rotate the physical channel through their paramsets.
func (s *Synchronizer) ApplySnapshot(desired Snapshot, targetMode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(desired, targetMode)
}

func (s *Synchronizer) applyLocked(desired Snapshot, targetMode string) error {
	s.state = Committing

	written := map[string]bool{}

	writeChanged := func(m *ModeSpec) error {
		modal := len(m.Switch) > 0
		for i := range m.Params {
			spec := &m.Params[i]
			if written[spec.Path] {
				continue
			}
			v, ok := desired[spec.Path]
			if !ok {
				continue
			}
			if prev, ok := s.applied[spec.Path]; ok && prev.Equal(v) {
				continue
			}
			if modal && s.wireMode != m.Key {
				if err := s.enterMode(m); err != nil {
					s.state = Errored
					return err
				}
			}
			if err := s.writeParam(spec, v); err != nil {
				s.state = Errored
				return err
			}
			written[spec.Path] = true

			if spec.Flag != "" && !written[spec.Flag] {
				if fv, ok := desired[spec.Flag]; ok {
					if prev, ok := s.applied[spec.Flag]; !ok || !prev.Equal(fv) {
						if err := s.writeFlag(spec.Flag, fv); err != nil {
							s.state = Errored
							return err
						}
						written[spec.Flag] = true
					}
				}
			}
		}
		// Flags whose owning parameter did not change still need their
		// own diff pass.
		for i := range m.Params {
			spec := &m.Params[i]
			if spec.Flag == "" || written[spec.Flag] {
				continue
			}
			fv, ok := desired[spec.Flag]
			if !ok {
				continue
			}
			if prev, ok := s.applied[spec.Flag]; ok && prev.Equal(fv) {
				continue
			}
			if modal && s.wireMode != m.Key {
				if err := s.enterMode(m); err != nil {
					s.state = Errored
					return err
				}
			}
			if err := s.writeFlag(spec.Flag, fv); err != nil {
				s.state = Errored
				return err
			}
			written[spec.Flag] = true
		}
		return nil
	}

	if err := writeChanged(&s.profile.Global); err != nil {
		return err
	}
	// The target mode's parameters are attributed to it first so shared
	// paths do not drag the instrument through an unrelated mode.
	if target := s.profile.Mode(targetMode); target != nil {
		if err := writeChanged(target); err != nil {
			return err
		}
	}
	for i := range s.profile.Modes {
		if s.profile.Modes[i].Key == targetMode {
			continue
		}
		if err := writeChanged(&s.profile.Modes[i]); err != nil {
			return err
		}
	}

	if target := s.profile.Mode(targetMode); target != nil && s.wireMode != targetMode {
		if err := s.enterMode(target); err != nil {
			s.state = Errored
			return err
		}
	}

	s.state = Synchronized
	return nil
}

func (s *Synchronizer) enterMode(m *ModeSpec) error {
	for _, cmd := range m.Switch {
		if err := s.conn.Write(cmd); err != nil {
			return err
		}
	}
	s.wireMode = m.Key
	s.logger.Debug("mode switch", zap.String("mode", m.Key))
	return nil
}

func (s *Synchronizer) writeParam(spec *Spec, v Value) error {
	line := spec.Path + " " + s.format(spec, v)
	if err := s.conn.Write(line); err != nil {
		return err
	}
	s.applied[spec.Path] = v
	return nil
}

func (s *Synchronizer) writeFlag(path string, v Value) error {
	wire := "0"
	if v.Bool {
		wire = "1"
	}
	if err := s.conn.Write(path + " " + wire); err != nil {
		return err
	}
	s.applied[path] = v
	return nil
}

func (s *Synchronizer) format(spec *Spec, v Value) string {
	switch spec.Kind {
	case Bool:
		if v.Bool {
			return "1"
		}
		return "0"
	case Int:
		return strconv.Itoa(v.Int)
	case Float:
		format := "%.6f"
		if s.profile.FloatFormat != nil {
			if f := s.profile.FloatFormat(spec.Path); f != "" {
				format = f
			}
		}
		return fmt.Sprintf(format, v.Float)
	default:
		return strings.ToUpper(v.Str)
	}
}

func (s *Synchronizer) parse(spec *Spec, raw string) (Value, error) {
	raw = strings.TrimSpace(raw)
	switch spec.Kind {
	case Bool:
		b, err := parseBool(strings.TrimPrefix(raw, "+"))
		if err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	case Int:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, fmt.Errorf("malformed integer %q", raw)
		}
		return IntValue(int(f)), nil
	case Float:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, fmt.Errorf("malformed float %q", raw)
		}
		return FloatValue(f), nil
	case Enum:
		return EnumValue(strings.Trim(raw, `"`)), nil
	case Range:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, fmt.Errorf("malformed range %q", raw)
		}
		table, err := convert.ForModel(s.profile.Model, spec.Family)
		if err != nil {
			return Value{}, err
		}
		entry, err := table.FromRead(f)
		if err != nil {
			return Value{}, err
		}
		return RangeValue(entry.Write), nil
	}
	return Value{}, fmt.Errorf("unsupported parameter kind %d", spec.Kind)
}

func isTransportErr(err error) bool {
	return errors.Is(err, types.ErrNotConnected) ||
		errors.Is(err, types.ErrConnectionLost) ||
		errors.Is(err, types.ErrInstrumentClosed)
}
