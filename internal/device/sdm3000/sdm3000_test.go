package sdm3000

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/benchlab/benchcore/internal/params"
	"github.com/benchlab/benchcore/internal/transport"
)

func newTestDriver(t *testing.T, model string) (*Driver, *transport.FakeConn, *transport.TableResponder) {
	t.Helper()
	responder, err := NewFakeResponder(model)
	if err != nil {
		t.Fatal(err)
	}
	responder.Set(":FUNCTION", `"VOLT:DC"`)

	res, err := transport.ParseResource("FAKE::" + model)
	if err != nil {
		t.Fatal(err)
	}
	conn := transport.NewFakeConn(res, responder, zap.NewNop())
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	d, err := New(conn, model, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Setup(); err != nil {
		t.Fatal(err)
	}
	conn.ClearSent()
	return d, conn, responder
}

func TestNormalizeFunction(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{`"VOLT:DC"`, ModeVoltDC, true},
		{"VOLT", ModeVoltDC, true},
		{"VOLTAGE", ModeVoltDC, true},
		{`"VOLT:AC"`, ModeVoltAC, true},
		{"CURR", ModeCurrDC, true},
		{"CURRENT:AC", ModeCurrAC, true},
		{"RESISTANCE", ModeRes2W, true},
		{`"FRES"`, ModeRes4W, true},
		{"FRESISTANCE", ModeRes4W, true},
		{"CAP", ModeCapacitance, true},
		{"CONTINUITY", ModeContinuity, true},
		{"DIOD", ModeDiode, true},
		{"FREQ", ModeFrequency, true},
		{"PERIOD", ModePeriod, true},
		{"temp", ModeTemperature, true},
		{"SQUIRREL", "", false},
	}
	for _, c := range cases {
		got, ok := normalizeFunction(c.raw)
		if ok != c.ok || got != c.want {
			t.Errorf("normalizeFunction(%q) = %q,%v, want %q,%v", c.raw, got, ok, c.want, c.ok)
		}
	}
}

func TestRefreshSeedsParamSets(t *testing.T) {
	d, _, _ := newTestDriver(t, "SDM3065X")

	for set := 1; set <= NumParamSets; set++ {
		if got := d.Function(set); got != ModeVoltDC {
			t.Errorf("set %d function = %q, want %q", set, got, ModeVoltDC)
		}
	}
	if !d.Enabled(1) {
		t.Error("set 1 must always be enabled")
	}
	if d.Enabled(2) {
		t.Error("set 2 enabled after refresh")
	}

	v, ok := d.Get(1, ":VOLT:DC:NPLC")
	if !ok || v.Float != 10 {
		t.Errorf("NPLC = %v %v, want 10", v, ok)
	}
	if speed, ok := d.Speed(1); !ok || speed != SpeedSlow {
		t.Errorf("speed = %v %v, want slow", speed, ok)
	}
	if v, ok := d.Get(0, ":TRIGGER:SOURCE"); !ok || v.Str != "IMM" {
		t.Errorf("trigger source = %v %v, want IMM", v, ok)
	}
}

func TestMeasureSingleSetNoReconfiguration(t *testing.T) {
	d, conn, _ := newTestDriver(t, "SDM3055")

	readings, err := d.Measure()
	if err != nil {
		t.Fatal(err)
	}
	if len(readings) != 1 || readings[0].Set != 1 || readings[0].Mode != ModeVoltDC {
		t.Fatalf("readings = %+v", readings)
	}
	// The wire already matches set 1's configuration after refresh: the
	// sweep must not rewrite it.
	sent := conn.Sent()
	if len(sent) != 1 || sent[0] != "READ?" {
		t.Errorf("sent = %v, want just READ?", sent)
	}
}

func TestMeasureRotatesWithMinimalDiff(t *testing.T) {
	d, conn, _ := newTestDriver(t, "SDM3065X")

	if err := d.SetEnabled(2, true); err != nil {
		t.Fatal(err)
	}
	if err := d.SetFunction(2, ModeCurrDC); err != nil {
		t.Fatal(err)
	}

	if _, err := d.Measure(); err != nil {
		t.Fatal(err)
	}
	want := []string{"READ?", `:FUNCTION "CURR:DC"`, "READ?"}
	sent := conn.Sent()
	if len(sent) != len(want) {
		t.Fatalf("sent = %v, want %v", sent, want)
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Fatalf("sent[%d] = %q, want %q", i, sent[i], want[i])
		}
	}

	// The next sweep has to switch back for set 1 and forward again for
	// set 2, still without touching unchanged parameters.
	conn.ClearSent()
	if _, err := d.Measure(); err != nil {
		t.Fatal(err)
	}
	want = []string{`:FUNCTION "VOLT:DC"`, "READ?", `:FUNCTION "CURR:DC"`, "READ?"}
	sent = conn.Sent()
	if len(sent) != len(want) {
		t.Fatalf("sent = %v, want %v", sent, want)
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Fatalf("sent[%d] = %q, want %q", i, sent[i], want[i])
		}
	}
}

func TestManualRangeWrittenOnlyWithoutAutoRange(t *testing.T) {
	d, conn, _ := newTestDriver(t, "SDM3065X")

	// Auto-range is on after refresh: a staged manual range stays off
	// the wire.
	if _, err := d.Set(1, ":VOLT:DC:RANGE", params.RangeValue("20V")); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Measure(); err != nil {
		t.Fatal(err)
	}
	for _, line := range conn.Sent() {
		if line == ":VOLT:DC:RANGE 20V" {
			t.Fatal("range written while auto-range active")
		}
	}

	conn.ClearSent()
	if _, err := d.Set(1, ":VOLT:DC:RANGE:AUTO", params.BoolValue(false)); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Measure(); err != nil {
		t.Fatal(err)
	}
	var sawAuto, sawRange bool
	for _, line := range conn.Sent() {
		switch line {
		case ":VOLT:DC:RANGE:AUTO 0":
			sawAuto = true
		case ":VOLT:DC:RANGE 20V":
			sawRange = true
		}
	}
	if !sawAuto || !sawRange {
		t.Errorf("sent = %v, want auto-range off and manual range", conn.Sent())
	}
}

func TestSetRejectsUnknownRangeToken(t *testing.T) {
	d, _, _ := newTestDriver(t, "SDM3045X")

	if _, err := d.Set(1, ":VOLT:DC:RANGE", params.RangeValue("7V")); err == nil {
		t.Fatal("expected lookup error for unknown range token")
	}
}

func TestMeasureFlagsOverload(t *testing.T) {
	d, _, responder := newTestDriver(t, "SDM3055")

	responder.Special = func(cmd string) (string, bool) {
		if cmd == "READ?" {
			return "+9.90000000E+37", true
		}
		return "", false
	}
	readings, err := d.Measure()
	if err != nil {
		t.Fatal(err)
	}
	if len(readings) != 1 || !readings[0].Overload {
		t.Fatalf("readings = %+v, want one overload", readings)
	}
}

func TestSpeedMapping(t *testing.T) {
	d, _, _ := newTestDriver(t, "SDM3065X")

	if err := d.SetSpeed(1, SpeedFast); err != nil {
		t.Fatal(err)
	}
	if speed, ok := d.Speed(1); !ok || speed != SpeedFast {
		t.Errorf("speed = %v %v, want fast", speed, ok)
	}
	v, _ := d.Get(1, ":VOLT:DC:NPLC")
	if v.Float != 0.3 {
		t.Errorf("NPLC = %v, want 0.3", v.Float)
	}

	// Functions without an integration time reject a speed.
	if err := d.SetFunction(2, ModeDiode); err != nil {
		t.Fatal(err)
	}
	if err := d.SetSpeed(2, SpeedSlow); err == nil {
		t.Error("expected error setting speed on diode function")
	}
}

func TestConfigRoundTrip(t *testing.T) {
	d, _, _ := newTestDriver(t, "SDM3065X")

	if err := d.SetEnabled(3, true); err != nil {
		t.Fatal(err)
	}
	if err := d.SetFunction(3, ModeRes2W); err != nil {
		t.Fatal(err)
	}
	if err := d.SetSpeed(3, SpeedMedium); err != nil {
		t.Fatal(err)
	}
	flat := d.ExportConfig()

	d2, _, _ := newTestDriver(t, "SDM3065X")
	if err := d2.ImportConfig(flat); err != nil {
		t.Fatal(err)
	}
	if !d2.Enabled(3) {
		t.Error("set 3 not enabled after import")
	}
	if got := d2.Function(3); got != ModeRes2W {
		t.Errorf("set 3 function = %q, want %q", got, ModeRes2W)
	}
	if speed, ok := d2.Speed(3); !ok || speed != SpeedMedium {
		t.Errorf("set 3 speed = %v %v, want medium", speed, ok)
	}
}
