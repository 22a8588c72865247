package spd3303

import (
	"fmt"
	"strconv"
	"strings"
)

// ExportConfig captures the setpoints, the coupling and both timer
// tables as a flat path→value map. Timer rows use the synthetic key
// form "TIMER:SET CHn,m" with the wire's "v,c,t" payload.
func (d *Driver) ExportConfig() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := map[string]any{
		"OUTPUT:TRACK": int(d.status.Track),
	}
	for ch := 0; ch < NumChannels; ch++ {
		out[fmt.Sprintf("CH%d:VOLT", ch+1)] = d.volt[ch]
		out[fmt.Sprintf("CH%d:CURR", ch+1)] = d.curr[ch]
		for i, st := range d.timers[ch] {
			key := fmt.Sprintf("TIMER:SET CH%d,%d", ch+1, i+1)
			out[key] = fmt.Sprintf("%.3f,%.3f,%.1f", st.Voltage, st.Current, st.Duration)
		}
	}
	return out
}

// ImportConfig restores a previously exported state. Both outputs and
// timers are forced off first so a file load never energizes the bench
// by itself.
func (d *Driver) ImportConfig(flat map[string]any) error {
	for ch := 0; ch < NumChannels; ch++ {
		if err := d.SetTimer(ch, false); err != nil {
			return err
		}
		if err := d.SetOutput(ch, false); err != nil {
			return err
		}
	}

	if raw, ok := flat["OUTPUT:TRACK"]; ok {
		f, ok := toFloat(raw)
		if !ok {
			return fmt.Errorf("config key OUTPUT:TRACK: unexpected value %v", raw)
		}
		if err := d.SetTrack(TrackMode(int(f))); err != nil {
			return err
		}
	}

	for key, raw := range flat {
		switch {
		case strings.HasPrefix(key, "TIMER:SET "):
			ch, i, err := parseTimerKey(key)
			if err != nil {
				return err
			}
			payload, ok := raw.(string)
			if !ok {
				return fmt.Errorf("config key %s: unexpected value %v", key, raw)
			}
			step, err := parseTimerPayload(payload)
			if err != nil {
				return fmt.Errorf("config key %s: %w", key, err)
			}
			if err := d.SetTimerStep(ch, i, step); err != nil {
				return err
			}
		case strings.HasSuffix(key, ":VOLT"), strings.HasSuffix(key, ":CURR"):
			ch, err := parseChannelKey(key)
			if err != nil {
				return err
			}
			f, ok := toFloat(raw)
			if !ok {
				return fmt.Errorf("config key %s: unexpected value %v", key, raw)
			}
			if strings.HasSuffix(key, ":VOLT") {
				_, err = d.SetVoltage(ch, f)
			} else {
				_, err = d.SetCurrent(ch, f)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func parseChannelKey(key string) (int, error) {
	if !strings.HasPrefix(key, "CH") {
		return 0, fmt.Errorf("malformed config key %q", key)
	}
	numStr, _, found := strings.Cut(strings.TrimPrefix(key, "CH"), ":")
	if !found {
		return 0, fmt.Errorf("malformed config key %q", key)
	}
	ch, err := strconv.Atoi(numStr)
	if err != nil || ch < 1 || ch > NumChannels {
		return 0, fmt.Errorf("malformed config key %q", key)
	}
	return ch - 1, nil
}

func parseTimerKey(key string) (ch, step int, err error) {
	rest := strings.TrimPrefix(key, "TIMER:SET CH")
	chStr, stepStr, found := strings.Cut(rest, ",")
	if !found {
		return 0, 0, fmt.Errorf("malformed config key %q", key)
	}
	c, err1 := strconv.Atoi(chStr)
	s, err2 := strconv.Atoi(stepStr)
	if err1 != nil || err2 != nil || c < 1 || c > NumChannels || s < 1 || s > TimerSteps {
		return 0, 0, fmt.Errorf("malformed config key %q", key)
	}
	return c - 1, s - 1, nil
}

func parseTimerPayload(raw string) (TimerStep, error) {
	fields := strings.Split(strings.TrimSuffix(strings.TrimSpace(raw), ","), ",")
	if len(fields) != 3 {
		return TimerStep{}, fmt.Errorf("malformed timer payload %q", raw)
	}
	var vals [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return TimerStep{}, fmt.Errorf("malformed timer payload %q: %w", raw, err)
		}
		vals[i] = v
	}
	return TimerStep{Voltage: vals[0], Current: vals[1], Duration: vals[2]}, nil
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
