package params

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/benchlab/benchcore/internal/convert"
	"github.com/benchlab/benchcore/internal/transport"
	"github.com/benchlab/benchcore/internal/types"
)

func testProfile() *Profile {
	return &Profile{
		Model: "SDM3045X",
		Global: ModeSpec{
			Params: []Spec{
				{Path: ":TRIGGER:SOURCE", Kind: Enum},
			},
		},
		Modes: []ModeSpec{
			{
				Key:    "CC",
				Switch: []string{":FUNCTION CC"},
				Params: []Spec{
					{Path: ":CURRENT:LEVEL", Kind: Float, Min: Lit(0), Max: Lit(30)},
					{Path: ":CURRENT:PROT:LEVEL", Kind: Float, Flag: ":CURRENT:PROT:STATE", Min: Lit(0), Max: Lit(30)},
				},
			},
			{
				Key:    "CV",
				Switch: []string{":FUNCTION CV"},
				Params: []Spec{
					{Path: ":VOLT:LEVEL", Kind: Float, Min: Lit(0), Max: Lit(150)},
					{Path: ":VOLT:RANGE", Kind: Range, Family: convert.VoltageDC},
				},
			},
		},
	}
}

func testDefaults() map[string]string {
	return map[string]string{
		":TRIGGER:SOURCE":     "BUS",
		":CURRENT:LEVEL":      "1.000000",
		":CURRENT:PROT:LEVEL": "0.000000",
		":CURRENT:PROT:STATE": "0",
		":VOLT:LEVEL":         "5.000000",
		":VOLT:RANGE":         "+6.00000000E+00",
	}
}

func newTestSync(t *testing.T, defaults map[string]string) (*Synchronizer, *transport.FakeConn, *transport.TableResponder) {
	t.Helper()
	res, err := transport.ParseResource("FAKE::SDM3045X")
	if err != nil {
		t.Fatalf("ParseResource: %v", err)
	}
	responder := transport.NewTableResponder(defaults)
	conn := transport.NewFakeConn(res, responder, zap.NewNop())
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return NewSynchronizer(conn, testProfile(), zap.NewNop()), conn, responder
}

func TestRefreshReadsEachPathOnce(t *testing.T) {
	sync, conn, _ := newTestSync(t, testDefaults())

	if err := sync.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if sync.State() != Synchronized {
		t.Fatalf("expected Synchronized, got %v", sync.State())
	}

	counts := map[string]int{}
	for _, line := range conn.Sent() {
		counts[line]++
	}
	for _, q := range []string{
		":TRIGGER:SOURCE?", ":CURRENT:LEVEL?", ":CURRENT:PROT:LEVEL?",
		":CURRENT:PROT:STATE?", ":VOLT:LEVEL?", ":VOLT:RANGE?",
	} {
		if counts[q] != 1 {
			t.Errorf("expected %s exactly once, got %d", q, counts[q])
		}
	}

	snap := sync.Snapshot()
	if snap.Str(":TRIGGER:SOURCE") != "BUS" {
		t.Errorf("trigger source: %q", snap.Str(":TRIGGER:SOURCE"))
	}
	if snap.Float(":CURRENT:LEVEL") != 1.0 {
		t.Errorf("current level: %v", snap.Float(":CURRENT:LEVEL"))
	}
	if snap.Str(":VOLT:RANGE") != "6V" {
		t.Errorf("range token: %q", snap.Str(":VOLT:RANGE"))
	}
}

func TestRefreshHealsSentinelViolation(t *testing.T) {
	defaults := testDefaults()
	defaults[":CURRENT:PROT:LEVEL"] = "2.000000" // flag reads off below
	sync, conn, _ := newTestSync(t, defaults)

	if err := sync.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if got := sync.Snapshot().Float(":CURRENT:PROT:LEVEL"); got != 0 {
		t.Fatalf("expected healed sentinel, got %v", got)
	}

	healed := false
	for _, line := range conn.Sent() {
		if line == ":CURRENT:PROT:LEVEL 0.000000" {
			healed = true
		}
	}
	if !healed {
		t.Fatalf("expected corrective write, wire log: %v", conn.Sent())
	}
}

func TestRefreshAbortsOnUnknownRange(t *testing.T) {
	defaults := testDefaults()
	defaults[":VOLT:RANGE"] = "+7.00000000E+00"
	sync, _, _ := newTestSync(t, defaults)

	if err := sync.Refresh(); err == nil {
		t.Fatal("expected refresh to fail on unknown range value")
	}
	if sync.State() != Errored {
		t.Fatalf("expected Errored, got %v", sync.State())
	}
	if len(sync.Snapshot()) != 0 {
		t.Fatal("failed refresh must not publish a partial snapshot")
	}
}

func TestSetClampsFloats(t *testing.T) {
	sync, _, _ := newTestSync(t, testDefaults())
	if err := sync.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	stored, err := sync.Set(":CURRENT:LEVEL", FloatValue(99))
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if stored.Float != 30 {
		t.Fatalf("expected clamp to 30, got %v", stored.Float)
	}

	stored, err = sync.Set(":CURRENT:LEVEL", FloatValue(-5))
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if stored.Float != 0 {
		t.Fatalf("expected clamp to 0, got %v", stored.Float)
	}
}

func TestSetUnknownPath(t *testing.T) {
	sync, _, _ := newTestSync(t, testDefaults())
	if _, err := sync.Set(":NO:SUCH:PATH", FloatValue(1)); err == nil {
		t.Fatal("expected error for unknown path")
	}
}

func TestFlagCoupling(t *testing.T) {
	sync, _, _ := newTestSync(t, testDefaults())
	if err := sync.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// A non-sentinel value turns the activation flag on.
	if _, err := sync.Set(":CURRENT:PROT:LEVEL", FloatValue(2.5)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !sync.Snapshot().Bool(":CURRENT:PROT:STATE") {
		t.Fatal("expected flag to turn on with a non-sentinel value")
	}

	// Turning the flag off forces the value back to the sentinel.
	if _, err := sync.Set(":CURRENT:PROT:STATE", BoolValue(false)); err != nil {
		t.Fatalf("Set flag: %v", err)
	}
	if got := sync.Snapshot().Float(":CURRENT:PROT:LEVEL"); got != 0 {
		t.Fatalf("expected sentinel after flag off, got %v", got)
	}
}

func TestCommitWritesOnlyTheDiff(t *testing.T) {
	sync, conn, _ := newTestSync(t, testDefaults())
	if err := sync.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	sync.SetWireMode("CC")
	conn.ClearSent()

	if _, err := sync.Set(":CURRENT:LEVEL", FloatValue(2)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := sync.Commit("CC"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	want := []string{":CURRENT:LEVEL 2.000000"}
	got := conn.Sent()
	if len(got) != len(want) || got[0] != want[0] {
		t.Fatalf("expected %v, got %v", want, got)
	}

	// A second commit with nothing staged writes nothing.
	conn.ClearSent()
	if _, err := sync.Commit("CC"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(conn.Sent()) != 0 {
		t.Fatalf("expected empty diff, got %v", conn.Sent())
	}
}

func TestCommitVisitsTargetModeFirstAndReturns(t *testing.T) {
	sync, conn, _ := newTestSync(t, testDefaults())
	if err := sync.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	sync.SetWireMode("CC")
	conn.ClearSent()

	if _, err := sync.Set(":CURRENT:LEVEL", FloatValue(3)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := sync.Set(":VOLT:LEVEL", FloatValue(12)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := sync.Commit("CV"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	want := []string{
		":FUNCTION CV",
		":VOLT:LEVEL 12.000000",
		":FUNCTION CC",
		":CURRENT:LEVEL 3.000000",
		":FUNCTION CV",
	}
	got := conn.Sent()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d: expected %q, got %q (full: %v)", i, want[i], got[i], got)
		}
	}
	if sync.WireMode() != "CV" {
		t.Fatalf("expected instrument left in CV, got %q", sync.WireMode())
	}
}

func TestCommitFormatsRangeTokens(t *testing.T) {
	sync, conn, _ := newTestSync(t, testDefaults())
	if err := sync.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	sync.SetWireMode("CV")
	conn.ClearSent()

	if _, err := sync.Set(":VOLT:RANGE", RangeValue("60v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := sync.Commit("CV"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got := conn.Sent()
	if len(got) != 1 || got[0] != ":VOLT:RANGE 60V" {
		t.Fatalf("expected uppercase range write, got %v", got)
	}
}

func TestTransportFailureMarksErrored(t *testing.T) {
	sync, conn, _ := newTestSync(t, testDefaults())
	if err := sync.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	conn.Disconnect()
	if err := sync.Refresh(); err == nil {
		t.Fatal("expected refresh failure after disconnect")
	}
	if sync.State() != Errored {
		t.Fatalf("expected Errored, got %v", sync.State())
	}
}

func TestTransportErrClassification(t *testing.T) {
	if !isTransportErr(types.ErrConnectionLost) || !isTransportErr(types.ErrNotConnected) ||
		!isTransportErr(types.ErrInstrumentClosed) {
		t.Fatal("sentinels must classify as transport errors")
	}
	if isTransportErr(&types.LookupError{}) {
		t.Fatal("lookup errors are data errors, not transport errors")
	}
}
