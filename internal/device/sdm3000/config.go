package sdm3000

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/benchlab/benchcore/internal/params"
)

// Per-set keys in the flat configuration format carry a "SETn:" prefix;
// bare paths belong to the shared global set.
const setKeyPrefix = "SET"

func setKey(set int, path string) string {
	return fmt.Sprintf("%s%d:%s", setKeyPrefix, set, path)
}

// ExportConfig captures every parameter set as a flat path→value map.
func (d *Driver) ExportConfig() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := map[string]any{}
	for _, path := range d.sets[0].Paths() {
		out[path] = d.sets[0][path].Native()
	}
	for set := 1; set <= NumParamSets; set++ {
		out[setKey(set, "FUNCTION")] = d.modes[set]
		out[setKey(set, "ENABLE")] = boolNative(set == 1 || d.enabled[set])
		for _, path := range d.sets[set].Paths() {
			out[setKey(set, path)] = d.sets[set][path].Native()
		}
	}
	return out
}

// ImportConfig stages a previously exported state, then puts set 1's
// configuration on the wire so the meter matches what the next sweep
// expects.
func (d *Driver) ImportConfig(flat map[string]any) error {
	for key, raw := range flat {
		set, path, err := splitConfigKey(key)
		if err != nil {
			return err
		}
		switch path {
		case "FUNCTION":
			mode, ok := raw.(string)
			if !ok {
				return fmt.Errorf("config key %s: unexpected value %v", key, raw)
			}
			if err := d.SetFunction(set, strings.ToUpper(mode)); err != nil {
				return fmt.Errorf("config key %s: %w", key, err)
			}
		case "ENABLE":
			if set == 1 {
				continue
			}
			f, ok := toFloat(raw)
			if !ok {
				return fmt.Errorf("config key %s: unexpected value %v", key, raw)
			}
			if err := d.SetEnabled(set, f != 0); err != nil {
				return fmt.Errorf("config key %s: %w", key, err)
			}
		default:
			spec := d.profile.Find(path)
			if spec == nil {
				continue
			}
			v, err := coerceValue(spec, raw)
			if err != nil {
				return fmt.Errorf("config key %s: %w", key, err)
			}
			if _, err := d.Set(set, path, v); err != nil {
				return fmt.Errorf("config key %s: %w", key, err)
			}
		}
	}

	desired, mode := d.limited(1)
	return d.sync.ApplySnapshot(desired, mode)
}

// splitConfigKey resolves a flat key to (set, path). Bare paths map to
// the global set 0.
func splitConfigKey(key string) (int, string, error) {
	if !strings.HasPrefix(key, setKeyPrefix) {
		return 0, key, nil
	}
	rest := strings.TrimPrefix(key, setKeyPrefix)
	numStr, path, found := strings.Cut(rest, ":")
	if !found {
		return 0, "", fmt.Errorf("malformed config key %q", key)
	}
	set, err := strconv.Atoi(numStr)
	if err != nil || set < 1 || set > NumParamSets {
		return 0, "", fmt.Errorf("malformed config key %q", key)
	}
	return set, path, nil
}

func coerceValue(spec *params.Spec, raw any) (params.Value, error) {
	switch spec.Kind {
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
	case params.Enum:
		if s, ok := raw.(string); ok {
			return params.EnumValue(s), nil
		}
	case params.Range:
		if s, ok := raw.(string); ok {
			return params.RangeValue(s), nil
		}
	}
	return params.Value{}, fmt.Errorf("unexpected value %v", raw)
}

func toFloat(raw any) (float64, bool) {
	switch x := raw.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	}
	return 0, false
}

func boolNative(b bool) int {
	if b {
		return 1
	}
	return 0
}
