package sdl1000

import (
	"fmt"
	"strings"

	"github.com/benchlab/benchcore/internal/params"
)

// ExportConfig captures the full canonical state plus the list step
// table as a flat path→value map, the shape the configuration files
// round-trip through.
func (d *Driver) ExportConfig() map[string]any {
	out := map[string]any{}
	snap := d.sync.Snapshot()
	for _, path := range snap.Paths() {
		out[path] = snap[path].Native()
	}
	d.list.exportRows(out)
	return out
}

// ImportConfig stages a previously exported state and commits it. The
// load is forced off, the front panel stays locked and a MANUAL trigger
// source is coerced to BUS: restoring a file must never surprise the
// bench electrically.
func (d *Driver) ImportConfig(flat map[string]any) error {
	for path, raw := range flat {
		if strings.ContainsRune(path, ' ') {
			// Synthetic per-row keys, restored below.
			continue
		}
		spec := d.profile.Find(path)
		if spec == nil && !strings.HasSuffix(path, ":STATE") {
			continue
		}
		v, err := coerceValue(spec, raw)
		if err != nil {
			return fmt.Errorf("config key %s: %w", path, err)
		}
		if _, err := d.sync.Set(path, v); err != nil {
			return fmt.Errorf("config key %s: %w", path, err)
		}
	}
	d.list.importRows(flat)

	if _, err := d.sync.Set(":INPUT:STATE", params.BoolValue(false)); err != nil {
		return err
	}
	if _, err := d.sync.Set(":SYST:REMOTE:STATE", params.BoolValue(true)); err != nil {
		return err
	}
	if d.sync.Snapshot().Str(":TRIGGER:SOURCE") == "MANUAL" {
		if _, err := d.sync.Set(":TRIGGER:SOURCE", params.EnumValue("BUS")); err != nil {
			return err
		}
	}

	target, err := decodeMode(d.sync.Snapshot())
	if err != nil {
		return err
	}
	if _, err := d.sync.Commit(target); err != nil {
		return err
	}
	return d.list.flush()
}

func coerceValue(spec *params.Spec, raw any) (params.Value, error) {
	kind := params.Bool
	if spec != nil {
		kind = spec.Kind
	}
	switch kind {
	case params.Bool:
		switch x := raw.(type) {
		case bool:
			return params.BoolValue(x), nil
		case float64:
			return params.BoolValue(x != 0), nil
		case int:
			return params.BoolValue(x != 0), nil
		}
	case params.Int:
		if f, ok := toFloat(raw); ok {
			return params.IntValue(int(f)), nil
		}
	case params.Float:
		if f, ok := toFloat(raw); ok {
			return params.FloatValue(f), nil
		}
	case params.Enum, params.Range:
		if s, ok := raw.(string); ok {
			return params.EnumValue(s), nil
		}
	}
	return params.Value{}, fmt.Errorf("unexpected value %v", raw)
}
