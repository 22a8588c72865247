package spd3303

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/benchlab/benchcore/internal/transport"
)

// FakeIdentification is the *IDN? response served for simulated
// supplies. This family reports five fields, the extra one being the
// hardware revision.
func FakeIdentification(model string) string {
	return fmt.Sprintf("Siglent Technologies,%s,SPD00001234567,1.01.01.02.05,V3.0", model)
}

// NewFakeResponder builds the canned response table for one simulated
// supply.
func NewFakeResponder(model string) *transport.TableResponder {
	defaults := map[string]string{
		"*IDN":        FakeIdentification(model),
		"SYST:STATUS": "0x04",
		"CH1:VOLT":    "0.000",
		"CH2:VOLT":    "0.000",
		"CH1:CURR":    "3.200",
		"CH2:CURR":    "3.200",
	}

	rng := rand.New(rand.NewSource(0x5d3))
	rows := map[string]string{}

	responder := transport.NewTableResponder(defaults)
	responder.Special = func(cmd string) (string, bool) {
		switch {
		case strings.HasPrefix(cmd, "MEAS:VOLT?"):
			return fmt.Sprintf("%.3f", rng.Float64()*MaxVoltage), true
		case strings.HasPrefix(cmd, "MEAS:CURR?"):
			return fmt.Sprintf("%.3f", rng.Float64()*MaxCurrent), true
		case strings.HasPrefix(cmd, "MEAS:POWE?"):
			return fmt.Sprintf("%.3f", rng.Float64()*MaxVoltage*MaxCurrent), true
		case strings.HasPrefix(cmd, "TIMER:SET? "):
			key := strings.Replace(cmd, "? ", " ", 1)
			if v, ok := rows[key]; ok {
				return v, true
			}
			// Unprogrammed rows answer zeros, trailing comma included.
			return "0.000,0.000,0.0,", true
		}
		return "", false
	}
	// Timer row writes arrive as "TIMER:SET CH1,3,v,c,t"; keep them
	// queryable under "TIMER:SET CH1,3" with the trailing comma the
	// real instrument appends. Output and timer switches use a comma
	// argument the plain table would mis-key, so they are dropped here.
	responder.OnApply = func(cmd string) bool {
		if strings.HasPrefix(cmd, "TIMER:SET CH") {
			rest := strings.TrimPrefix(cmd, "TIMER:SET CH")
			parts := strings.SplitN(rest, ",", 3)
			if len(parts) != 3 {
				return false
			}
			key := "TIMER:SET CH" + parts[0] + "," + parts[1]
			rows[key] = parts[2] + ","
			return true
		}
		if strings.HasPrefix(cmd, "OUTPUT CH") || strings.HasPrefix(cmd, "TIMER CH") {
			return true
		}
		return false
	}
	return responder
}
