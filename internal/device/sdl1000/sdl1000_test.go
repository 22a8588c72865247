package sdl1000

import (
	"context"
	"testing"
	"time"

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

// enterListMode flips the fake instrument into list mode so the driver's
// next refresh decodes it, the way a real mode switch would.
func enterListMode(t *testing.T, d *Driver, responder *transport.TableResponder) {
	t.Helper()
	responder.Set(":FUNCTION:MODE", "LIST")
	responder.Set(":FUNCTION", "CURRENT")
	if err := d.Refresh(); err != nil {
		t.Fatal(err)
	}
	if got := d.Mode(); got != "List:Current" {
		t.Fatalf("mode = %q, want List:Current", got)
	}
}

func TestNewRejectsUnknownModel(t *testing.T) {
	res, _ := transport.ParseResource("FAKE::SDL9999")
	conn := transport.NewFakeConn(res, transport.NewTableResponder(nil), zap.NewNop())
	if _, err := New(conn, "SDL9999", zap.NewNop()); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestDecodeMode(t *testing.T) {
	base := func(over map[string]string) params.Snapshot {
		snap := params.Snapshot{
			":EXT:MODE":      params.EnumValue("INT"),
			":FUNCTION:MODE": params.EnumValue("BASIC"),
			":FUNCTION":      params.EnumValue("CURRENT"),
		}
		for k, v := range over {
			snap[k] = params.EnumValue(v)
		}
		return snap
	}

	cases := []struct {
		name string
		snap params.Snapshot
		want string
	}{
		{"basic current", base(nil), "Basic:Current"},
		{"basic voltage", base(map[string]string{":FUNCTION": "VOLTAGE"}), "Basic:Voltage"},
		{"led", base(map[string]string{":FUNCTION": "LED"}), "LED"},
		{"dynamic pulse", base(map[string]string{
			":FUNCTION:MODE":          "TRAN",
			":FUNCTION:TRANSIENT":     "VOLTAGE",
			":VOLTAGE:TRANSIENT:MODE": "PULSE",
		}), "Dynamic:Voltage:Pulse"},
		{"dynamic continuous", base(map[string]string{
			":FUNCTION:MODE":          "TRAN",
			":FUNCTION:TRANSIENT":     "CURRENT",
			":CURRENT:TRANSIENT:MODE": "CONTINUOUS",
		}), "Dynamic:Current:Continuous"},
		{"battery power", base(map[string]string{
			":FUNCTION:MODE": "BATTERY", ":BATTERY:MODE": "POWER",
		}), "Battery:Power"},
		{"ocpt", base(map[string]string{":FUNCTION:MODE": "OCP"}), "OCPT"},
		{"oppt", base(map[string]string{":FUNCTION:MODE": "OPP"}), "OPPT"},
		{"list power", base(map[string]string{
			":FUNCTION:MODE": "LIST", ":FUNCTION": "POWER",
		}), "List:Power"},
		{"program", base(map[string]string{":FUNCTION:MODE": "PROGRAM"}), "Program"},
		{"external voltage", base(map[string]string{":EXT:MODE": "EXTV"}), "Ext:Voltage"},
		{"external current", base(map[string]string{":EXT:MODE": "EXTI"}), "Ext:Current"},
	}
	for _, c := range cases {
		got, err := decodeMode(c.snap)
		if err != nil {
			t.Errorf("%s: %v", c.name, err)
			continue
		}
		if got != c.want {
			t.Errorf("%s: decodeMode = %q, want %q", c.name, got, c.want)
		}
	}

	if _, err := decodeMode(base(map[string]string{":FUNCTION:MODE": "BOGUS"})); err == nil {
		t.Error("expected error for unrecognized function mode")
	}
}

func TestSetupCoercesManualTriggerToBus(t *testing.T) {
	responder, err := NewFakeResponder("SDL1020X")
	if err != nil {
		t.Fatal(err)
	}
	responder.Set(":TRIGGER:SOURCE", "MANUAL")

	res, _ := transport.ParseResource("FAKE::SDL1020X")
	conn := transport.NewFakeConn(res, responder, zap.NewNop())
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	d, err := New(conn, "SDL1020X", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Setup(); err != nil {
		t.Fatal(err)
	}

	if got := d.Sync().Snapshot().Str(":TRIGGER:SOURCE"); got != "BUS" {
		t.Errorf("trigger source = %q, want BUS", got)
	}
	coerced := false
	for _, line := range conn.Sent() {
		if line == ":TRIGGER:SOURCE BUS" {
			coerced = true
		}
	}
	if !coerced {
		t.Errorf("expected trigger coercion on the wire, sent: %v", conn.Sent())
	}
}

func TestModeSwitchSendsSwitchSequence(t *testing.T) {
	d, conn, responder := newTestDriver(t, "SDL1020X")

	responder.Set(":FUNCTION:MODE", "BATTERY")
	responder.Set(":BATTERY:MODE", "POWER")
	if err := d.SetMode("Battery:Power"); err != nil {
		t.Fatal(err)
	}
	if got := d.Mode(); got != "Battery:Power" {
		t.Errorf("mode = %q, want Battery:Power", got)
	}

	sent := conn.Sent()
	if len(sent) < 2 || sent[0] != ":FUNCTION BATTERY" || sent[1] != ":BATTERY:MODE POWER" {
		t.Errorf("switch sequence missing, sent: %v", sent)
	}

	if err := d.SetMode("NoSuchMode"); err == nil {
		t.Error("expected error for unknown mode key")
	}
}

func TestCommitFlushesStagedListRows(t *testing.T) {
	d, conn, responder := newTestDriver(t, "SDL1020X")
	enterListMode(t, d, responder)
	conn.ClearSent()

	if err := d.List().SetRow(2, 3.0, 1.0, 0.3); err != nil {
		t.Fatal(err)
	}
	if len(conn.Sent()) != 0 {
		t.Fatalf("row edit reached the wire before commit: %v", conn.Sent())
	}

	if _, err := d.Commit(); err != nil {
		t.Fatal(err)
	}
	want := []string{":LIST:LEVEL 2,3.000", ":LIST:WIDTH 2,1.000", ":LIST:SLEW 2,0.300"}
	sent := conn.Sent()
	if len(sent) != len(want) {
		t.Fatalf("sent = %v, want %v", sent, want)
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Fatalf("sent[%d] = %q, want %q", i, sent[i], want[i])
		}
	}

	// A clean commit has nothing left to write.
	conn.ClearSent()
	if _, err := d.Commit(); err != nil {
		t.Fatal(err)
	}
	if len(conn.Sent()) != 0 {
		t.Errorf("second commit wrote %v", conn.Sent())
	}

	if err := d.List().SetRow(99, 1, 1, 0.1); err == nil {
		t.Error("expected error for out-of-range row")
	}
}

func TestRangeChangeReclampsListRows(t *testing.T) {
	d, conn, responder := newTestDriver(t, "SDL1020X")
	enterListMode(t, d, responder)

	// Open up the 30 A range so a tall row is legal, then shrink back.
	if _, err := d.Set(":LIST:IRANGE", params.EnumValue("30")); err != nil {
		t.Fatal(err)
	}
	if err := d.List().SetRow(1, 20, 0.5, 2.0); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Commit(); err != nil {
		t.Fatal(err)
	}

	conn.ClearSent()
	if _, err := d.Set(":LIST:IRANGE", params.EnumValue("5")); err != nil {
		t.Fatal(err)
	}
	steps := d.List().Steps()
	if steps[0].Level != 5 {
		t.Errorf("level = %v, want clamped to 5", steps[0].Level)
	}
	if steps[0].Slew != 0.5 {
		t.Errorf("slew = %v, want clamped to 0.5", steps[0].Slew)
	}

	if _, err := d.Commit(); err != nil {
		t.Fatal(err)
	}
	var sawRange, sawLevel, sawSlew bool
	for _, line := range conn.Sent() {
		switch line {
		case ":LIST:IRANGE 5":
			sawRange = true
		case ":LIST:LEVEL 1,5.000":
			sawLevel = true
		case ":LIST:SLEW 1,0.500":
			sawSlew = true
		}
	}
	if !sawRange || !sawLevel || !sawSlew {
		t.Errorf("reclamped rows not rewritten, sent: %v", conn.Sent())
	}
}

func TestTriggerStartsAndStopsListEstimate(t *testing.T) {
	d, conn, responder := newTestDriver(t, "SDL1020X")
	enterListMode(t, d, responder)
	if err := d.SetInputState(true); err != nil {
		t.Fatal(err)
	}
	conn.ClearSent()

	if err := d.Trigger(); err != nil {
		t.Fatal(err)
	}
	if sent := conn.Sent(); len(sent) != 1 || sent[0] != "*TRG" {
		t.Fatalf("sent = %v, want *TRG", sent)
	}
	pos := d.List().Position()
	if !pos.Running || pos.Step != 0 {
		t.Fatalf("position after trigger = %+v", pos)
	}

	// A second trigger arms a stop that fires at the step boundary. The
	// fake rows are 100 ms wide.
	if err := d.Trigger(); err != nil {
		t.Fatal(err)
	}
	pos = d.List().Heartbeat(time.Now().Add(250 * time.Millisecond))
	if pos.Running {
		t.Fatalf("position after armed stop crossed a boundary = %+v", pos)
	}

	// Turning the input off drops the estimate to unknown.
	if err := d.SetInputState(false); err != nil {
		t.Fatal(err)
	}
	if pos := d.List().Position(); pos.Step != -1 {
		t.Errorf("position after input off = %+v, want unknown", pos)
	}
}

func TestConfigRoundTripForcesLoadOff(t *testing.T) {
	d, _, responder := newTestDriver(t, "SDL1020X")
	enterListMode(t, d, responder)

	if _, err := d.Set(":CURRENT:LEVEL:IMMEDIATE", params.FloatValue(2.5)); err != nil {
		t.Fatal(err)
	}
	if err := d.List().SetRow(1, 4.0, 2.0, 0.2); err != nil {
		t.Fatal(err)
	}
	if err := d.SetInputState(true); err != nil {
		t.Fatal(err)
	}
	flat := d.ExportConfig()

	if v, ok := flat[":CURRENT:LEVEL:IMMEDIATE"]; !ok || v.(float64) != 2.5 {
		t.Fatalf("exported level = %v", v)
	}
	if v, ok := flat[":LIST:LEVEL 1"]; !ok || v.(float64) != 4.0 {
		t.Fatalf("exported row level = %v", v)
	}

	d2, _, _ := newTestDriver(t, "SDL1020X")
	if err := d2.ImportConfig(flat); err != nil {
		t.Fatal(err)
	}
	snap := d2.Sync().Snapshot()
	if snap.Float(":CURRENT:LEVEL:IMMEDIATE") != 2.5 {
		t.Errorf("level = %v after import", snap.Float(":CURRENT:LEVEL:IMMEDIATE"))
	}
	if snap.Bool(":INPUT:STATE") {
		t.Error("import must leave the load off")
	}
	if !snap.Bool(":SYST:REMOTE:STATE") {
		t.Error("import must keep the front panel locked")
	}
	if d2.List().Steps()[0].Level != 4.0 {
		t.Errorf("row level = %v after import", d2.List().Steps()[0].Level)
	}
}
