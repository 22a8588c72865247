// Package convert holds the per-model range conversion tables.
//
// The supported multimeters are inconsistent about range values: a
// "RANGE?" query returns a float like "+7.50000000E+02", but setting the
// same range takes a compact token like "750V", and the operator-facing
// label is a third form ("750 V"). Each (model, quantity family) pair
// therefore carries a three-way table. Lookups never fall back to a
// default: an unknown value means the instrument reported a range the
// table does not know about, which has to surface as an error.
package convert

import (
	"strconv"

	"github.com/benchlab/benchcore/internal/types"
)

type Family string

const (
	VoltageDC   Family = "voltage-dc"
	VoltageAC   Family = "voltage-ac"
	CurrentDC   Family = "current-dc"
	CurrentAC   Family = "current-ac"
	Resistance  Family = "resistance"
	Capacitance Family = "capacitance"
)

// Entry ties together the three representations of one range setting.
type Entry struct {
	Read  float64 // value parsed from a RANGE? response
	Write string  // token sent to set the range
	Label string  // operator-facing label
}

type Table struct {
	model   string
	family  Family
	entries []Entry
}

// ForModel returns the table for one (model, family) pair.
func ForModel(model string, family Family) (*Table, error) {
	byFamily, ok := tables[model]
	if !ok {
		return nil, &types.LookupError{Model: model, Family: string(family), Value: "model"}
	}
	entries, ok := byFamily[family]
	if !ok {
		return nil, &types.LookupError{Model: model, Family: string(family), Value: "family"}
	}
	return &Table{model: model, family: family, entries: entries}, nil
}

func (t *Table) FromRead(v float64) (Entry, error) {
	for _, e := range t.entries {
		if e.Read == v {
			return e, nil
		}
	}
	return Entry{}, &types.LookupError{
		Model:  t.model,
		Family: string(t.family),
		Value:  strconv.FormatFloat(v, 'g', -1, 64),
	}
}

func (t *Table) FromWrite(token string) (Entry, error) {
	for _, e := range t.entries {
		if e.Write == token {
			return e, nil
		}
	}
	return Entry{}, &types.LookupError{Model: t.model, Family: string(t.family), Value: token}
}

func (t *Table) FromLabel(label string) (Entry, error) {
	for _, e := range t.entries {
		if e.Label == label {
			return e, nil
		}
	}
	return Entry{}, &types.LookupError{Model: t.model, Family: string(t.family), Value: label}
}

// Entries exposes the table rows in range order, smallest first.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}
