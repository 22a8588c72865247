package sdl1000

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/benchlab/benchcore/internal/params"
	"github.com/benchlab/benchcore/internal/transport"
)

// FakeIdentification is the *IDN? response served for simulated loads.
func FakeIdentification(model string) string {
	return fmt.Sprintf("Siglent Technologies,%s,SDL00000000000,1.1.1.22", model)
}

// NewFakeResponder builds the canned response table for one simulated
// load. Configuration queries answer from a mutable table seeded with
// power-on defaults; measurement queries return pseudo-random values.
func NewFakeResponder(model string) (*transport.TableResponder, error) {
	power, err := modelPower(model)
	if err != nil {
		return nil, err
	}
	profile := buildProfile(model, power)

	defaults := map[string]string{
		"*IDN":               FakeIdentification(model),
		":FUNCTION":          "CURRENT",
		":FUNCTION:TRANSIENT": "CURRENT",
		":FUNCTION:MODE":     "BASIC",
		":EXT:MODE":          "INT",
		":TRIGGER:SOURCE":    "BUS",
		":BATTERY:MODE":      "CURRENT",
		":LIST:MODE":         "CURRENT",
		":LIST:STEP":         "5",
		":LIST:COUNT":        "1",
		":SENSE:AVERAGE:COUNT": "6",
	}

	seed := func(m *params.ModeSpec) {
		for _, spec := range m.Params {
			if _, done := defaults[spec.Path]; done {
				continue
			}
			switch {
			case strings.HasSuffix(spec.Path, "IRANGE"):
				defaults[spec.Path] = "5"
			case strings.HasSuffix(spec.Path, "VRANGE"):
				defaults[spec.Path] = "36"
			case strings.HasSuffix(spec.Path, "TRANSIENT:MODE"):
				defaults[spec.Path] = "CONTINUOUS"
			case spec.Kind == params.Bool:
				defaults[spec.Path] = "0"
			case spec.Kind == params.Int:
				defaults[spec.Path] = "0"
			case spec.Kind == params.Float:
				defaults[spec.Path] = "0.000000"
			default:
				defaults[spec.Path] = ""
			}
			if spec.Flag != "" {
				if _, done := defaults[spec.Flag]; !done {
					defaults[spec.Flag] = "0"
				}
			}
		}
	}
	seed(&profile.Global)
	for i := range profile.Modes {
		seed(&profile.Modes[i])
	}

	rng := rand.New(rand.NewSource(0x5d1))
	rows := map[string]string{}

	responder := transport.NewTableResponder(defaults)
	responder.Special = func(cmd string) (string, bool) {
		switch {
		case strings.HasPrefix(cmd, "MEAS:VOLT"):
			return fmt.Sprintf("%.6f", rng.Float64()*36), true
		case strings.HasPrefix(cmd, "MEAS:CURR"):
			return fmt.Sprintf("%.6f", rng.Float64()*5), true
		case strings.HasPrefix(cmd, "MEAS:POW"):
			return fmt.Sprintf("%.6f", rng.Float64()*power), true
		case strings.HasPrefix(cmd, "MEAS:RES"):
			return fmt.Sprintf("%.6f", rng.Float64()*10000), true
		case strings.HasPrefix(cmd, "TIME:TEST:"):
			return fmt.Sprintf("%.6f", rng.Float64()), true
		case strings.HasPrefix(cmd, ":BATTERY:DISCHA:") || strings.HasPrefix(cmd, ":BATTERY:ADDCAP"):
			return fmt.Sprintf("%.3f", rng.Float64()*1000), true
		case strings.HasPrefix(cmd, ":LIST:LEVEL? "), strings.HasPrefix(cmd, ":LIST:WIDTH? "),
			strings.HasPrefix(cmd, ":LIST:SLEW? "):
			key := strings.Replace(cmd, "? ", " ", 1)
			if v, ok := rows[key]; ok {
				return v, true
			}
			if strings.HasPrefix(cmd, ":LIST:LEVEL") {
				return "1.000", true
			}
			return "0.100", true
		}
		return "", false
	}
	// Row writes arrive as ":LIST:LEVEL 3,1.500"; keep them queryable
	// under ":LIST:LEVEL? 3".
	responder.OnApply = func(cmd string) bool {
		for _, prefix := range []string{":LIST:LEVEL ", ":LIST:WIDTH ", ":LIST:SLEW "} {
			if !strings.HasPrefix(cmd, prefix) {
				continue
			}
			row, value, found := strings.Cut(strings.TrimPrefix(cmd, prefix), ",")
			if !found {
				return false
			}
			rows[strings.TrimSuffix(prefix, " ")+" "+row] = value
			return true
		}
		return false
	}
	return responder, nil
}
