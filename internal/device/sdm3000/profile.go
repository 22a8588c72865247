package sdm3000

import (
	"strings"

	"github.com/benchlab/benchcore/internal/convert"
	"github.com/benchlab/benchcore/internal/params"
)

// Measurement function keys. The key doubles as the SCPI command prefix
// and as the argument of the ":FUNCTION" switch command.
const (
	ModeVoltDC      = "VOLT:DC"
	ModeVoltAC      = "VOLT:AC"
	ModeCurrDC      = "CURR:DC"
	ModeCurrAC      = "CURR:AC"
	ModeRes2W       = "RES"
	ModeRes4W       = "FRES"
	ModeCapacitance = "CAP"
	ModeContinuity  = "CONT"
	ModeDiode       = "DIOD"
	ModeFrequency   = "FREQ"
	ModePeriod      = "PER"
	ModeTemperature = "TEMP"
)

// ModeKeys lists every measurement function in display order.
var ModeKeys = []string{
	ModeVoltDC, ModeVoltAC, ModeCurrDC, ModeCurrAC,
	ModeRes2W, ModeRes4W, ModeCapacitance, ModeContinuity,
	ModeDiode, ModeFrequency, ModePeriod, ModeTemperature,
}

// ModeLabel is the operator-facing name of a measurement function.
func ModeLabel(key string) string {
	switch key {
	case ModeVoltDC:
		return "DC Voltage"
	case ModeVoltAC:
		return "AC Voltage"
	case ModeCurrDC:
		return "DC Current"
	case ModeCurrAC:
		return "AC Current"
	case ModeRes2W:
		return "2-W Resistance"
	case ModeRes4W:
		return "4-W Resistance"
	case ModeCapacitance:
		return "Capacitance"
	case ModeContinuity:
		return "Continuity"
	case ModeDiode:
		return "Diode"
	case ModeFrequency:
		return "Frequency"
	case ModePeriod:
		return "Period"
	case ModeTemperature:
		return "Temperature"
	}
	return key
}

// ModeUnit is the measurement unit of a function's READ? result.
func ModeUnit(key string) string {
	switch key {
	case ModeVoltDC, ModeVoltAC, ModeDiode:
		return "V"
	case ModeCurrDC, ModeCurrAC:
		return "A"
	case ModeRes2W, ModeRes4W, ModeContinuity:
		return "Ω"
	case ModeCapacitance:
		return "F"
	case ModeFrequency:
		return "Hz"
	case ModePeriod:
		return "s"
	case ModeTemperature:
		return "K"
	}
	return ""
}

// normalizeFunction canonicalizes a ":FUNCTION?" response. The
// instrument wraps the token in double quotes and is loose about
// abbreviations: a meter in DC voltage mode may answer VOLT, VOLTAGE or
// VOLT:DC depending on firmware.
func normalizeFunction(raw string) (string, bool) {
	tok := strings.ToUpper(strings.Trim(strings.TrimSpace(raw), `"`))
	switch tok {
	case "VOLT", "VOLTAGE", "VOLT:DC", "VOLTAGE:DC":
		return ModeVoltDC, true
	case "VOLT:AC", "VOLTAGE:AC":
		return ModeVoltAC, true
	case "CURR", "CURRENT", "CURR:DC", "CURRENT:DC":
		return ModeCurrDC, true
	case "CURR:AC", "CURRENT:AC":
		return ModeCurrAC, true
	case "RES", "RESISTANCE":
		return ModeRes2W, true
	case "FRES", "FRESISTANCE":
		return ModeRes4W, true
	case "CAP", "CAPACITANCE":
		return ModeCapacitance, true
	case "CONT", "CONTINUITY":
		return ModeContinuity, true
	case "DIOD", "DIODE":
		return ModeDiode, true
	case "FREQ", "FREQUENCY":
		return ModeFrequency, true
	case "PER", "PERIOD":
		return ModePeriod, true
	case "TEMP", "TEMPERATURE":
		return ModeTemperature, true
	}
	return "", false
}

// switchCmd is the write that puts the meter into a function. The
// argument must be quoted on the way in even though it comes back
// quoted anyway.
func switchCmd(key string) string {
	return `:FUNCTION "` + key + `"`
}

// buildProfile assembles the declarative parameter model for one meter.
// The auto-zero switch exists only on the SDM3065X; the DC filter only
// on the SDM3045X and SDM3055.
func buildProfile(model string) *params.Profile {
	hasAZ := model == "SDM3065X"
	hasFilter := model == "SDM3045X" || model == "SDM3055"

	rangeSpecs := func(prefix string, family convert.Family) []params.Spec {
		return []params.Spec{
			{Path: ":" + prefix + ":RANGE", Kind: params.Range, Family: family},
			{Path: ":" + prefix + ":RANGE:AUTO", Kind: params.Bool},
		}
	}
	nplc := func(prefix string) params.Spec {
		return params.Spec{
			Path: ":" + prefix + ":NPLC",
			Kind: params.Float,
			Min:  params.Lit(0.3),
			Max:  params.Lit(10),
		}
	}

	vdc := rangeSpecs("VOLT:DC", convert.VoltageDC)
	vdc = append(vdc, nplc("VOLT:DC"))
	vdc = append(vdc, params.Spec{Path: ":VOLT:DC:IMP", Kind: params.Enum})
	if hasAZ {
		vdc = append(vdc, params.Spec{Path: ":VOLT:DC:AZ:STATE", Kind: params.Bool})
	}
	if hasFilter {
		vdc = append(vdc, params.Spec{Path: ":VOLT:DC:FILTER:STATE", Kind: params.Bool})
	}

	idc := rangeSpecs("CURR:DC", convert.CurrentDC)
	idc = append(idc, nplc("CURR:DC"))
	if hasAZ {
		idc = append(idc, params.Spec{Path: ":CURR:DC:AZ:STATE", Kind: params.Bool})
	}
	if hasFilter {
		idc = append(idc, params.Spec{Path: ":CURR:DC:FILTER:STATE", Kind: params.Bool})
	}

	res := rangeSpecs("RES", convert.Resistance)
	res = append(res, nplc("RES"))
	fres := rangeSpecs("FRES", convert.Resistance)
	fres = append(fres, nplc("FRES"))
	if hasAZ {
		res = append(res, params.Spec{Path: ":RES:AZ:STATE", Kind: params.Bool})
		fres = append(fres, params.Spec{Path: ":FRES:AZ:STATE", Kind: params.Bool})
	}

	modes := []params.ModeSpec{
		{Key: ModeVoltDC, Switch: []string{switchCmd(ModeVoltDC)}, Params: vdc},
		{Key: ModeVoltAC, Switch: []string{switchCmd(ModeVoltAC)},
			Params: rangeSpecs("VOLT:AC", convert.VoltageAC)},
		{Key: ModeCurrDC, Switch: []string{switchCmd(ModeCurrDC)}, Params: idc},
		{Key: ModeCurrAC, Switch: []string{switchCmd(ModeCurrAC)},
			Params: rangeSpecs("CURR:AC", convert.CurrentAC)},
		{Key: ModeRes2W, Switch: []string{switchCmd(ModeRes2W)}, Params: res},
		{Key: ModeRes4W, Switch: []string{switchCmd(ModeRes4W)}, Params: fres},
		{Key: ModeCapacitance, Switch: []string{switchCmd(ModeCapacitance)},
			Params: rangeSpecs("CAP", convert.Capacitance)},
		{Key: ModeContinuity, Switch: []string{switchCmd(ModeContinuity)}},
		{Key: ModeDiode, Switch: []string{switchCmd(ModeDiode)}},
		// Frequency and period measure the amplitude on the AC voltage
		// ranges, under their own command prefix.
		{Key: ModeFrequency, Switch: []string{switchCmd(ModeFrequency)},
			Params: []params.Spec{
				{Path: ":FREQ:VOLT:RANGE", Kind: params.Range, Family: convert.VoltageAC},
				{Path: ":FREQ:VOLT:RANGE:AUTO", Kind: params.Bool},
			}},
		{Key: ModePeriod, Switch: []string{switchCmd(ModePeriod)},
			Params: []params.Spec{
				{Path: ":PER:VOLT:RANGE", Kind: params.Range, Family: convert.VoltageAC},
				{Path: ":PER:VOLT:RANGE:AUTO", Kind: params.Bool},
			}},
		{Key: ModeTemperature, Switch: []string{switchCmd(ModeTemperature)}},
	}

	return &params.Profile{
		Model: model,
		Global: params.ModeSpec{
			Params: []params.Spec{
				{Path: ":TRIGGER:SOURCE", Kind: params.Enum},
			},
		},
		Modes: modes,
		FloatFormat: func(path string) string {
			if strings.HasSuffix(path, ":NPLC") {
				return "%.1f"
			}
			return ""
		},
	}
}
