package spd3303

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/benchlab/benchcore/internal/transport"
)

func newTestDriver(t *testing.T) (*Driver, *transport.FakeConn, *transport.TableResponder) {
	t.Helper()
	responder := NewFakeResponder("SPD3303X")
	res, err := transport.ParseResource("FAKE::SPD3303X")
	if err != nil {
		t.Fatal(err)
	}
	conn := transport.NewFakeConn(res, responder, zap.NewNop())
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	d, err := New(conn, "SPD3303X", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Setup(); err != nil {
		t.Fatal(err)
	}
	conn.ClearSent()
	return d, conn, responder
}

func TestDecodeStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want Status
	}{
		{"0x04", Status{Track: TrackIndependent}},
		{"0x0C", Status{Track: TrackSeries}},
		{"0x08", Status{Track: TrackParallel}},
		{"0x05", Status{CC: [2]bool{true, false}, Track: TrackIndependent}},
	}
	for _, c := range cases {
		got, err := decodeStatus(c.raw)
		if err != nil {
			t.Fatalf("decodeStatus(%q): %v", c.raw, err)
		}
		if got != c.want {
			t.Errorf("decodeStatus(%q) = %+v, want %+v", c.raw, got, c.want)
		}
	}

	got, err := decodeStatus("0x34")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Output[0] || !got.Output[1] {
		t.Errorf("outputs = %v, want both on", got.Output)
	}
	got, err = decodeStatus("0xC4")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Timer[0] || !got.Timer[1] {
		t.Errorf("timers = %v, want both on", got.Timer)
	}

	if _, err := decodeStatus("xyzzy"); err == nil {
		t.Error("expected error for malformed register")
	}
}

func TestSetpointsClamped(t *testing.T) {
	d, conn, _ := newTestDriver(t)

	v, err := d.SetVoltage(0, 99)
	if err != nil {
		t.Fatal(err)
	}
	if v != MaxVoltage {
		t.Errorf("voltage = %v, want clamped to %v", v, MaxVoltage)
	}
	c, err := d.SetCurrent(1, -1)
	if err != nil {
		t.Fatal(err)
	}
	if c != 0 {
		t.Errorf("current = %v, want clamped to 0", c)
	}

	sent := conn.Sent()
	if len(sent) != 2 || sent[0] != "CH1:VOLT 32.000" || sent[1] != "CH2:CURR 0.000" {
		t.Errorf("sent = %v", sent)
	}
}

func TestApplyPreset(t *testing.T) {
	d, conn, _ := newTestDriver(t)

	if err := d.ApplyPreset(1, 3); err != nil {
		t.Fatal(err)
	}
	sent := conn.Sent()
	if len(sent) != 2 || sent[0] != "CH2:VOLT 12.000" || sent[1] != "CH2:CURR 3.200" {
		t.Errorf("sent = %v", sent)
	}
	if err := d.ApplyPreset(0, len(Presets)); err == nil {
		t.Error("expected error for preset index out of range")
	}
}

func TestTimerRowRoundTrip(t *testing.T) {
	d, conn, _ := newTestDriver(t)

	step := TimerStep{Voltage: 5, Current: 1.5, Duration: 30}
	if err := d.SetTimerStep(0, 2, step); err != nil {
		t.Fatal(err)
	}
	sent := conn.Sent()
	if len(sent) != 1 || sent[0] != "TIMER:SET CH1,3,5.000,1.500,30.0" {
		t.Fatalf("sent = %v", sent)
	}

	// A refresh reads the row back through the trailing-comma format.
	if err := d.Refresh(); err != nil {
		t.Fatal(err)
	}
	got := d.TimerSteps(0)[2]
	if got != step {
		t.Errorf("timer step = %+v, want %+v", got, step)
	}
}

func TestTimerRunsOnlyWhileOutputOn(t *testing.T) {
	d, _, _ := newTestDriver(t)

	for i := 0; i < TimerSteps; i++ {
		if err := d.SetTimerStep(0, i, TimerStep{Voltage: 1, Current: 1, Duration: 10}); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.SetTimer(0, true); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	// Output off: the clock must freeze at step 0.
	pos := d.Heartbeat(now.Add(15 * time.Second))
	if pos[0].Step != 0 || pos[0].Elapsed != 0 {
		t.Fatalf("position advanced with output off: %+v", pos[0])
	}

	if err := d.SetOutput(0, true); err != nil {
		t.Fatal(err)
	}
	pos = d.Heartbeat(now.Add(30 * time.Second))
	if pos[0].Step != 1 || !pos[0].Running {
		t.Fatalf("position = %+v, want step 1 running", pos[0])
	}
}

func TestTimerFinishesWithoutWrapping(t *testing.T) {
	d, _, _ := newTestDriver(t)

	for i := 0; i < TimerSteps; i++ {
		if err := d.SetTimerStep(1, i, TimerStep{Voltage: 1, Current: 1, Duration: 1}); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.SetOutput(1, true); err != nil {
		t.Fatal(err)
	}
	if err := d.SetTimer(1, true); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	pos := d.Heartbeat(now.Add(100 * time.Second))
	if pos[1].Running {
		t.Fatalf("timer still running after table end: %+v", pos[1])
	}
	if d.Status().Timer[1] {
		t.Error("timer flag still set after table end")
	}
}

func TestConfigRoundTrip(t *testing.T) {
	d, _, _ := newTestDriver(t)

	if _, err := d.SetVoltage(0, 12); err != nil {
		t.Fatal(err)
	}
	if _, err := d.SetCurrent(0, 2); err != nil {
		t.Fatal(err)
	}
	if err := d.SetTrack(TrackSeries); err != nil {
		t.Fatal(err)
	}
	if err := d.SetTimerStep(1, 0, TimerStep{Voltage: 3.3, Current: 1, Duration: 60}); err != nil {
		t.Fatal(err)
	}
	flat := d.ExportConfig()

	d2, conn2, _ := newTestDriver(t)
	if err := d2.ImportConfig(flat); err != nil {
		t.Fatal(err)
	}
	if d2.Voltage(0) != 12 || d2.Current(0) != 2 {
		t.Errorf("setpoints = %v/%v, want 12/2", d2.Voltage(0), d2.Current(0))
	}
	if d2.Status().Track != TrackSeries {
		t.Errorf("track = %v, want series", d2.Status().Track)
	}
	if got := d2.TimerSteps(1)[0]; got != (TimerStep{Voltage: 3.3, Current: 1, Duration: 60}) {
		t.Errorf("timer step = %+v", got)
	}

	// A restore must never energize anything on its own.
	for _, line := range conn2.Sent() {
		if line == "OUTPUT CH1,ON" || line == "OUTPUT CH2,ON" {
			t.Errorf("import turned an output on: %v", conn2.Sent())
		}
	}
	if d2.Status().Output[0] || d2.Status().Output[1] {
		t.Error("outputs on after import")
	}
}
