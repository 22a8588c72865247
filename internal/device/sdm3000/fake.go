package sdm3000

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/benchlab/benchcore/internal/convert"
	"github.com/benchlab/benchcore/internal/params"
	"github.com/benchlab/benchcore/internal/transport"
)

// FakeIdentification is the *IDN? response served for simulated meters.
func FakeIdentification(model string) string {
	return fmt.Sprintf("Siglent Technologies,%s,SDM00000123456,1.01.01.25", model)
}

// NewFakeResponder builds the canned response table for one simulated
// multimeter. Range defaults are the lowest range of each family so
// every refresh resolves through the conversion tables.
func NewFakeResponder(model string) (*transport.TableResponder, error) {
	profile := buildProfile(model)

	defaults := map[string]string{
		"*IDN":            FakeIdentification(model),
		":FUNCTION":       `"DIOD"`,
		":TRIGGER:SOURCE": "IMM",
	}

	seed := func(m *params.ModeSpec) error {
		for _, spec := range m.Params {
			if _, done := defaults[spec.Path]; done {
				continue
			}
			switch spec.Kind {
			case params.Range:
				table, err := convert.ForModel(model, spec.Family)
				if err != nil {
					return err
				}
				defaults[spec.Path] = fmt.Sprintf("%+.8E", table.Entries()[0].Read)
			case params.Bool:
				if strings.HasSuffix(spec.Path, ":AUTO") {
					defaults[spec.Path] = "1"
				} else {
					defaults[spec.Path] = "0"
				}
			case params.Float:
				if strings.HasSuffix(spec.Path, ":NPLC") {
					defaults[spec.Path] = "+1.00000000E+01"
				} else {
					defaults[spec.Path] = "+0.00000000E+00"
				}
			case params.Enum:
				if strings.HasSuffix(spec.Path, ":IMP") {
					defaults[spec.Path] = "10M"
				} else {
					defaults[spec.Path] = ""
				}
			default:
				defaults[spec.Path] = "0"
			}
		}
		return nil
	}
	if err := seed(&profile.Global); err != nil {
		return nil, err
	}
	for i := range profile.Modes {
		if err := seed(&profile.Modes[i]); err != nil {
			return nil, err
		}
	}

	rng := rand.New(rand.NewSource(0x5d2))

	responder := transport.NewTableResponder(defaults)
	responder.Special = func(cmd string) (string, bool) {
		if cmd == "READ?" {
			return fmt.Sprintf("%+.8E", rng.Float64()*10), true
		}
		return "", false
	}
	return responder, nil
}
