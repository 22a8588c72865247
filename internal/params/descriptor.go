package params

import (
	"github.com/benchlab/benchcore/internal/convert"
)

// BoundKind says how a numeric limit is expressed.
type BoundKind int

const (
	// BoundNone leaves the side unconstrained.
	BoundNone BoundKind = iota
	// BoundLit is a literal constant.
	BoundLit
	// BoundLimit names a physical device constant (a power ceiling, a
	// range ampacity) resolved by the driver's LimitResolver.
	BoundLimit
	// BoundParam references another parameter's current value in the
	// same snapshot.
	BoundParam
)

// Bound is one side of a dependent min/max constraint. Resolution
// happens against the current snapshot, never a stale one.
type Bound struct {
	Kind BoundKind
	Lit  float64
	Ref  string // limit name or parameter path
}

func NoBound() Bound            { return Bound{Kind: BoundNone} }
func Lit(v float64) Bound       { return Bound{Kind: BoundLit, Lit: v} }
func Limit(name string) Bound   { return Bound{Kind: BoundLimit, Ref: name} }
func ParamRef(path string) Bound { return Bound{Kind: BoundParam, Ref: path} }

// LimitResolver resolves a named physical device constant. Drivers
// implement it over their model data and the live snapshot (a slew
// ceiling depends on the selected current range, for example).
type LimitResolver func(name string, snap Snapshot) (float64, bool)

// Spec describes one parameter of one operating mode.
type Spec struct {
	// Path is the wire command, which doubles as the canonical
	// parameter key. Queries append "?".
	Path string

	Kind Kind

	// Flag, when set, is the path of the paired activation boolean
	// (the ":STATE" command). When the flag is off the parameter value
	// must equal its zero sentinel; a non-sentinel reading with the
	// flag off is corrected on the instrument during refresh.
	Flag string

	Min Bound
	Max Bound

	// Family selects the conversion table for Range parameters.
	Family convert.Family
}

// ModeSpec groups the parameters legal in one operating mode, together
// with the wire commands that enter that mode. The zero Key with no
// Switch is used for globally-applicable parameters.
type ModeSpec struct {
	// Key identifies the mode; drivers use their mode enum's string
	// form.
	Key string

	// Switch is the ordered command sequence that puts the instrument
	// into this mode. It must be issued before any parameter write
	// belonging to this mode when the instrument is in another mode.
	Switch []string

	Params []Spec
}

// Profile is a device's complete declarative parameter model: the
// authoritative source of which parameters exist, where, with what
// types and bounds. Immutable at run time.
type Profile struct {
	// Model is the instrument model, used for conversion-table lookups.
	Model string

	Global ModeSpec
	Modes  []ModeSpec

	Limits LimitResolver

	// FloatFormat overrides the wire rendering of float parameters for
	// specific paths. Default is "%.6f".
	FloatFormat func(path string) string
}

// Mode returns the ModeSpec for a key, or nil.
func (p *Profile) Mode(key string) *ModeSpec {
	for i := range p.Modes {
		if p.Modes[i].Key == key {
			return &p.Modes[i]
		}
	}
	return nil
}

// Find locates a parameter spec by path, searching global then modal
// descriptors.
func (p *Profile) Find(path string) *Spec {
	for i := range p.Global.Params {
		if p.Global.Params[i].Path == path {
			return &p.Global.Params[i]
		}
	}
	for m := range p.Modes {
		for i := range p.Modes[m].Params {
			if p.Modes[m].Params[i].Path == path {
				return &p.Modes[m].Params[i]
			}
		}
	}
	return nil
}

// Resolve evaluates one bound against the live snapshot. ok=false when
// the bound is absent or cannot be resolved.
func (p *Profile) Resolve(b Bound, snap Snapshot) (float64, bool) {
	switch b.Kind {
	case BoundLit:
		return b.Lit, true
	case BoundLimit:
		if p.Limits == nil {
			return 0, false
		}
		return p.Limits(b.Ref, snap)
	case BoundParam:
		v, ok := snap[b.Ref]
		if !ok {
			return 0, false
		}
		switch v.Kind {
		case Float:
			return v.Float, true
		case Int:
			return float64(v.Int), true
		}
		return 0, false
	}
	return 0, false
}

// Clamp restricts a float to the Spec's resolved bounds.
func (p *Profile) Clamp(spec *Spec, v float64, snap Snapshot) float64 {
	if min, ok := p.Resolve(spec.Min, snap); ok && v < min {
		v = min
	}
	if max, ok := p.Resolve(spec.Max, snap); ok && v > max {
		v = max
	}
	return v
}
