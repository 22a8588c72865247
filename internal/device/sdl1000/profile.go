package sdl1000

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/benchlab/benchcore/internal/params"
)

// Mode keys. An overall operating mode plus, where applicable, a
// constant-X submode and a dynamic waveform submode, joined by ':'.
const (
	ModeBasic   = "Basic"
	ModeDynamic = "Dynamic"
	ModeLED     = "LED"
	ModeBattery = "Battery"
	ModeList    = "List"
	ModeProgram = "Program"
	ModeOCPT    = "OCPT"
	ModeOPPT    = "OPPT"
	ModeExt     = "Ext"
)

const (
	ConstVoltage    = "Voltage"
	ConstCurrent    = "Current"
	ConstPower      = "Power"
	ConstResistance = "Resistance"
)

const (
	DynContinuous = "Continuous"
	DynPulse      = "Pulse"
	DynToggle     = "Toggle"
)

// Named physical limits resolved against the live snapshot.
const (
	limitMaxPower = "max-power"
)

// cmd builds the full wire path: commands starting with ':' are
// absolute, everything else is scoped under the mode's wire prefix.
func cmd(prefix, c string) string {
	if strings.HasPrefix(c, ":") {
		return c
	}
	return ":" + prefix + ":" + c
}

func modeKey(parts ...string) string {
	return strings.Join(parts, ":")
}

// switchSeq returns the command sequence that places the load in one
// overall/const mode. Sending a mode-scoped parameter while the
// instrument is in a different mode is a protocol violation, so these
// always go out first.
func switchSeq(overall, constMode string) []string {
	switch overall {
	case ModeBasic:
		return []string{":FUNCTION " + strings.ToUpper(constMode)}
	case ModeDynamic:
		return []string{":FUNCTION:TRANSIENT " + strings.ToUpper(constMode)}
	case ModeLED:
		return []string{":FUNCTION LED"}
	case ModeBattery:
		return []string{":FUNCTION BATTERY", ":BATTERY:MODE " + strings.ToUpper(constMode)}
	case ModeOCPT:
		return []string{":OCP:FUNC"}
	case ModeOPPT:
		return []string{":OPP:FUNC"}
	case ModeExt:
		if constMode == ConstVoltage {
			return []string{":EXT:MODE EXTV"}
		}
		return []string{":EXT:MODE EXTI"}
	case ModeList:
		return []string{":LIST:STATE:ON"}
	case ModeProgram:
		return []string{":PROGRAM:STATE:ON"}
	}
	return nil
}

// rangeRef encodes a bound that tracks a range selection or the model's
// slew window; buildProfile's resolver decodes them.
func irangeBound(prefix string) params.Bound {
	return params.Limit("irange@" + cmd(prefix, "IRANGE"))
}

func vrangeBound(prefix string) params.Bound {
	return params.Limit("vrange@" + cmd(prefix, "VRANGE"))
}

func slewMin(prefix, irangeCmd string) params.Bound {
	return params.Limit("slew-min@" + cmd(prefix, irangeCmd))
}

func slewMax(prefix, irangeCmd string) params.Bound {
	return params.Limit("slew-max@" + cmd(prefix, irangeCmd))
}

func maxPower() params.Bound {
	return params.Limit(limitMaxPower)
}

// buildProfile assembles the full declarative parameter model for one
// SDL model. maxPowerW is 200 or 300 depending on the model.
func buildProfile(model string, maxPowerW float64) *params.Profile {
	p := &params.Profile{
		Model:  model,
		Global: globalSpec(maxPowerW),
	}

	for _, cm := range []string{ConstVoltage, ConstCurrent, ConstPower, ConstResistance} {
		p.Modes = append(p.Modes, basicMode(cm))
	}
	p.Modes = append(p.Modes, ledMode())
	for _, cm := range []string{ConstCurrent, ConstPower, ConstResistance} {
		p.Modes = append(p.Modes, batteryMode(cm))
	}
	for _, cm := range []string{ConstVoltage, ConstCurrent, ConstPower, ConstResistance} {
		for _, dm := range []string{DynContinuous, DynPulse, DynToggle} {
			p.Modes = append(p.Modes, dynamicMode(cm, dm))
		}
	}
	p.Modes = append(p.Modes, ocptMode(), opptMode())
	for _, cm := range []string{ConstVoltage, ConstCurrent} {
		p.Modes = append(p.Modes, extMode(cm))
	}
	for _, cm := range []string{ConstVoltage, ConstCurrent, ConstPower, ConstResistance} {
		p.Modes = append(p.Modes, listMode(cm))
	}
	p.Modes = append(p.Modes, params.ModeSpec{
		Key:    ModeProgram,
		Switch: switchSeq(ModeProgram, ""),
	})

	p.Limits = func(name string, snap params.Snapshot) (float64, bool) {
		kind, path, _ := strings.Cut(name, "@")
		switch kind {
		case limitMaxPower:
			return maxPowerW, true
		case "irange", "vrange":
			v, err := strconv.ParseFloat(snap.Str(path), 64)
			if err != nil {
				return 0, false
			}
			return v, true
		case "slew-min":
			return 0.001, true
		case "slew-max":
			// The slew ceiling depends on the selected current range.
			if snap.Str(path) == "5" {
				return 0.5, true
			}
			return 2.5, true
		}
		return 0, false
	}

	// The instrument's display shows three decimals for most values;
	// writes use six so high-resolution dynamic widths survive.
	p.FloatFormat = func(path string) string { return "%.6f" }

	return p
}

func globalSpec(maxPowerW float64) params.ModeSpec {
	return params.ModeSpec{
		Params: []params.Spec{
			// SYST:REMOTE:STATE is undocumented: locks the keyboard and
			// shows the remote access icon.
			{Path: ":SYST:REMOTE:STATE", Kind: params.Bool},
			{Path: ":INPUT:STATE", Kind: params.Bool},
			{Path: ":SHORT:STATE", Kind: params.Bool},
			{Path: ":FUNCTION", Kind: params.Enum},
			{Path: ":FUNCTION:TRANSIENT", Kind: params.Enum},
			// FUNCtion:MODE is undocumented. Possible values:
			// BASIC, TRAN, BATTERY, OCP, OPP, LIST, PROGRAM.
			{Path: ":FUNCTION:MODE", Kind: params.Enum},
			{Path: ":BATTERY:MODE", Kind: params.Enum},
			{Path: ":LIST:MODE", Kind: params.Enum},
			{Path: ":TRIGGER:SOURCE", Kind: params.Enum},
			{Path: ":SENSE:AVERAGE:COUNT", Kind: params.Int, Min: params.Lit(6), Max: params.Lit(14)},
			{Path: ":SYSTEM:SENSE:STATE", Kind: params.Bool},
			{Path: ":SYSTEM:IMONITOR:STATE", Kind: params.Bool},
			{Path: ":SYSTEM:VMONITOR:STATE", Kind: params.Bool},
			{Path: ":EXT:INPUT:STATE", Kind: params.Bool},
			{Path: ":EXT:MODE", Kind: params.Enum},
			{Path: ":TIME:TEST:STATE", Kind: params.Bool},
			{Path: ":VOLTAGE:LEVEL:ON", Kind: params.Float, Min: params.Lit(0), Max: params.Lit(150)},
			{Path: ":VOLTAGE:LATCH:STATE", Kind: params.Bool},
			{Path: ":CURRENT:PROTECTION:LEVEL", Kind: params.Float, Flag: ":CURRENT:PROTECTION:STATE",
				Min: params.Lit(0), Max: params.Lit(30)},
			{Path: ":CURRENT:PROTECTION:DELAY", Kind: params.Float, Min: params.Lit(0), Max: params.Lit(60)},
			{Path: ":POWER:PROTECTION:LEVEL", Kind: params.Float, Flag: ":POWER:PROTECTION:STATE",
				Min: params.Lit(0), Max: params.Lit(maxPowerW)},
			{Path: ":POWER:PROTECTION:DELAY", Kind: params.Float, Min: params.Lit(0), Max: params.Lit(60)},
		},
	}
}

func rangeSpecs(prefix string) []params.Spec {
	return []params.Spec{
		{Path: cmd(prefix, "IRANGE"), Kind: params.Enum},
		{Path: cmd(prefix, "VRANGE"), Kind: params.Enum},
	}
}

func timeTestSpecs() []params.Spec {
	return []params.Spec{
		{Path: ":TIME:TEST:VOLTAGE:LOW", Kind: params.Float,
			Min: params.Lit(0), Max: params.ParamRef(":TIME:TEST:VOLTAGE:HIGH")},
		{Path: ":TIME:TEST:VOLTAGE:HIGH", Kind: params.Float,
			Min: params.ParamRef(":TIME:TEST:VOLTAGE:LOW"), Max: params.Lit(150)},
	}
}

func basicMode(constMode string) params.ModeSpec {
	prefix := strings.ToUpper(constMode)
	specs := rangeSpecs(prefix)

	level := params.Spec{Path: cmd(prefix, "LEVEL:IMMEDIATE"), Kind: params.Float}
	switch constMode {
	case ConstVoltage:
		level.Min, level.Max = params.Lit(0), vrangeBound(prefix)
	case ConstCurrent:
		level.Min, level.Max = params.Lit(0), irangeBound(prefix)
	case ConstPower:
		level.Min, level.Max = params.Lit(0), maxPower()
	case ConstResistance:
		level.Min, level.Max = params.Lit(0.030), params.Lit(10000)
	}
	specs = append(specs, level)
	specs = append(specs, timeTestSpecs()...)

	if constMode == ConstCurrent {
		specs = append(specs,
			params.Spec{Path: cmd(prefix, "SLEW:POSITIVE"), Kind: params.Float,
				Min: slewMin(prefix, "IRANGE"), Max: slewMax(prefix, "IRANGE")},
			params.Spec{Path: cmd(prefix, "SLEW:NEGATIVE"), Kind: params.Float,
				Min: slewMin(prefix, "IRANGE"), Max: slewMax(prefix, "IRANGE")},
		)
	}

	return params.ModeSpec{
		Key:    modeKey(ModeBasic, constMode),
		Switch: switchSeq(ModeBasic, constMode),
		Params: specs,
	}
}

func ledMode() params.ModeSpec {
	prefix := "LED"
	return params.ModeSpec{
		Key:    ModeLED,
		Switch: switchSeq(ModeLED, ""),
		Params: append(rangeSpecs(prefix),
			params.Spec{Path: cmd(prefix, "VOLTAGE"), Kind: params.Float,
				Min: params.Lit(0.010), Max: vrangeBound(prefix)},
			params.Spec{Path: cmd(prefix, "CURRENT"), Kind: params.Float,
				Min: params.Lit(0), Max: irangeBound(prefix)},
			params.Spec{Path: cmd(prefix, "RCONF"), Kind: params.Float,
				Min: params.Lit(0.01), Max: params.Lit(1)},
		),
	}
}

func batteryMode(constMode string) params.ModeSpec {
	prefix := "BATTERY"
	level := params.Spec{Path: cmd(prefix, "LEVEL"), Kind: params.Float}
	switch constMode {
	case ConstCurrent:
		level.Min, level.Max = params.Lit(0), irangeBound(prefix)
	case ConstPower:
		level.Min, level.Max = params.Lit(0), maxPower()
	case ConstResistance:
		level.Min, level.Max = params.Lit(0.030), params.Lit(10000)
	}
	return params.ModeSpec{
		Key:    modeKey(ModeBattery, constMode),
		Switch: switchSeq(ModeBattery, constMode),
		Params: append(rangeSpecs(prefix),
			level,
			params.Spec{Path: cmd(prefix, "VOLTAGE"), Kind: params.Float, Flag: cmd(prefix, "VOLTAGE:STATE"),
				Min: params.Lit(0), Max: vrangeBound(prefix)},
			params.Spec{Path: cmd(prefix, "CAP"), Kind: params.Int, Flag: cmd(prefix, "CAP:STATE"),
				Min: params.Lit(0), Max: params.Lit(999999)},
			params.Spec{Path: cmd(prefix, "TIMER"), Kind: params.Int, Flag: cmd(prefix, "TIMER:STATE"),
				Min: params.Lit(0), Max: params.Lit(86400)},
		),
	}
}

func dynamicMode(constMode, dynMode string) params.ModeSpec {
	prefix := strings.ToUpper(constMode)
	specs := []params.Spec{
		{Path: cmd(prefix, "TRANSIENT:IRANGE"), Kind: params.Enum},
		{Path: cmd(prefix, "TRANSIENT:VRANGE"), Kind: params.Enum},
		{Path: cmd(prefix, "TRANSIENT:MODE"), Kind: params.Enum},
	}

	aLevel := params.Spec{Path: cmd(prefix, "TRANSIENT:ALEVEL"), Kind: params.Float}
	bLevel := params.Spec{Path: cmd(prefix, "TRANSIENT:BLEVEL"), Kind: params.Float}
	var widthMin float64
	switch constMode {
	case ConstVoltage:
		aLevel.Min, aLevel.Max = params.Lit(0), vrangeBound(prefix)
		bLevel.Min, bLevel.Max = params.Lit(0), vrangeBound(prefix)
		widthMin = 1
	case ConstCurrent:
		aLevel.Min, aLevel.Max = params.Lit(0), irangeBound(prefix)
		bLevel.Min, bLevel.Max = params.Lit(0), irangeBound(prefix)
		widthMin = 0.000020
	case ConstPower:
		aLevel.Min, aLevel.Max = params.Lit(0), maxPower()
		bLevel.Min, bLevel.Max = params.Lit(0), maxPower()
		widthMin = 0.000040
	case ConstResistance:
		aLevel.Min, aLevel.Max = params.Lit(0.030), params.Lit(10000)
		bLevel.Min, bLevel.Max = params.Lit(0.030), params.Lit(10000)
		widthMin = 0.001
	}
	specs = append(specs, aLevel, bLevel)

	switch dynMode {
	case DynContinuous:
		specs = append(specs,
			params.Spec{Path: cmd(prefix, "TRANSIENT:AWIDTH"), Kind: params.Float,
				Min: params.Lit(widthMin), Max: params.Lit(999)},
			params.Spec{Path: cmd(prefix, "TRANSIENT:BWIDTH"), Kind: params.Float,
				Min: params.Lit(widthMin), Max: params.Lit(999)},
		)
	case DynPulse:
		specs = append(specs,
			params.Spec{Path: cmd(prefix, "TRANSIENT:BWIDTH"), Kind: params.Float,
				Min: params.Lit(widthMin), Max: params.Lit(999)},
		)
	}

	if constMode == ConstCurrent {
		specs = append(specs,
			params.Spec{Path: cmd(prefix, "TRANSIENT:SLEW:POSITIVE"), Kind: params.Float,
				Min: slewMin(prefix, "TRANSIENT:IRANGE"), Max: slewMax(prefix, "TRANSIENT:IRANGE")},
			params.Spec{Path: cmd(prefix, "TRANSIENT:SLEW:NEGATIVE"), Kind: params.Float,
				Min: slewMin(prefix, "TRANSIENT:IRANGE"), Max: slewMax(prefix, "TRANSIENT:IRANGE")},
		)
	}

	return params.ModeSpec{
		Key:    modeKey(ModeDynamic, constMode, dynMode),
		Switch: switchSeq(ModeDynamic, constMode),
		Params: specs,
	}
}

func ocptMode() params.ModeSpec {
	prefix := "OCP"
	return params.ModeSpec{
		Key:    ModeOCPT,
		Switch: switchSeq(ModeOCPT, ""),
		Params: append(rangeSpecs(prefix),
			params.Spec{Path: cmd(prefix, "VOLTAGE"), Kind: params.Float,
				Min: params.Lit(0), Max: vrangeBound(prefix)},
			params.Spec{Path: cmd(prefix, "START"), Kind: params.Float,
				Min: params.Lit(0), Max: params.ParamRef(cmd(prefix, "END"))},
			params.Spec{Path: cmd(prefix, "END"), Kind: params.Float,
				Min: params.ParamRef(cmd(prefix, "START")), Max: irangeBound(prefix)},
			params.Spec{Path: cmd(prefix, "STEP"), Kind: params.Float,
				Min: params.Lit(0), Max: irangeBound(prefix)},
			params.Spec{Path: cmd(prefix, "STEP:DELAY"), Kind: params.Float,
				Min: params.Lit(0.001), Max: params.Lit(999)},
			params.Spec{Path: cmd(prefix, "MIN"), Kind: params.Float,
				Min: params.Lit(0), Max: params.ParamRef(cmd(prefix, "MAX"))},
			params.Spec{Path: cmd(prefix, "MAX"), Kind: params.Float,
				Min: params.ParamRef(cmd(prefix, "MIN")), Max: irangeBound(prefix)},
		),
	}
}

func opptMode() params.ModeSpec {
	prefix := "OPP"
	return params.ModeSpec{
		Key:    ModeOPPT,
		Switch: switchSeq(ModeOPPT, ""),
		Params: append(rangeSpecs(prefix),
			params.Spec{Path: cmd(prefix, "VOLTAGE"), Kind: params.Float,
				Min: params.Lit(0), Max: vrangeBound(prefix)},
			params.Spec{Path: cmd(prefix, "START"), Kind: params.Float,
				Min: params.Lit(0), Max: params.ParamRef(cmd(prefix, "END"))},
			params.Spec{Path: cmd(prefix, "END"), Kind: params.Float,
				Min: params.ParamRef(cmd(prefix, "START")), Max: maxPower()},
			params.Spec{Path: cmd(prefix, "STEP"), Kind: params.Float,
				Min: params.Lit(0), Max: maxPower()},
			params.Spec{Path: cmd(prefix, "STEP:DELAY"), Kind: params.Float,
				Min: params.Lit(0.001), Max: params.Lit(999)},
			params.Spec{Path: cmd(prefix, "MIN"), Kind: params.Float,
				Min: params.Lit(0), Max: params.ParamRef(cmd(prefix, "MAX"))},
			params.Spec{Path: cmd(prefix, "MAX"), Kind: params.Float,
				Min: params.ParamRef(cmd(prefix, "MIN")), Max: maxPower()},
		),
	}
}

func extMode(constMode string) params.ModeSpec {
	return params.ModeSpec{
		Key:    modeKey(ModeExt, constMode),
		Switch: switchSeq(ModeExt, constMode),
		Params: rangeSpecs("EXT"),
	}
}

func listMode(constMode string) params.ModeSpec {
	prefix := "LIST"
	return params.ModeSpec{
		Key:    modeKey(ModeList, constMode),
		Switch: switchSeq(ModeList, constMode),
		Params: append(rangeSpecs(prefix),
			params.Spec{Path: cmd(prefix, "STEP"), Kind: params.Int,
				Min: params.Lit(1), Max: params.Lit(100)},
			params.Spec{Path: cmd(prefix, "COUNT"), Kind: params.Int,
				Min: params.Lit(0), Max: params.Lit(255)},
		),
	}
}

// modelPower maps a model number to its power ceiling.
func modelPower(model string) (float64, error) {
	switch model {
	case "SDL1020X", "SDL1020X-E":
		return 200, nil
	case "SDL1030X", "SDL1030X-E":
		return 300, nil
	}
	return 0, fmt.Errorf("unsupported load model %q", model)
}
