package instrument

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func writeInventory(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bench.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadInventory(t *testing.T) {
	path := writeInventory(t, `
instruments:
  - resource: FAKE::SDL1020X
    name: load
    poll_interval: 500ms
  - resource: FAKE::SPD3303X
    poll: false
`)
	inv, err := LoadInventory(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(inv.Instruments) != 2 {
		t.Fatalf("entries = %d, want 2", len(inv.Instruments))
	}
	if inv.Instruments[0].PollInterval != 500*time.Millisecond {
		t.Errorf("poll_interval = %v", inv.Instruments[0].PollInterval)
	}
	if inv.Instruments[1].Poll == nil || *inv.Instruments[1].Poll {
		t.Error("poll: false not parsed")
	}
}

func TestLoadInventoryRejectsMissingResource(t *testing.T) {
	path := writeInventory(t, `
instruments:
  - name: unnamed
`)
	if _, err := LoadInventory(path); err == nil {
		t.Fatal("expected error for entry without a resource")
	}

	if _, err := LoadInventory(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestConnectInventorySkipsFailingEntries(t *testing.T) {
	path := writeInventory(t, `
instruments:
  - resource: FAKE::SDL1020X
  - resource: FAKE::SDS1204X-E
  - resource: FAKE::SPD3303X
    poll: false
`)
	inv, err := LoadInventory(path)
	if err != nil {
		t.Fatal(err)
	}

	m := NewManager(zap.NewNop())
	m.ConnectInventory(context.Background(), inv, 250*time.Millisecond)
	defer m.StopAll(context.Background())

	insts := m.List()
	if len(insts) != 2 {
		t.Fatalf("instruments = %d, want 2 (unknown model skipped)", len(insts))
	}
	for _, inst := range insts {
		polling := m.Polling(inst.ID)
		wantPolling := inst.Kind == KindLoad
		if polling != wantPolling {
			t.Errorf("%s: polling = %v, want %v", inst.Identity.Model, polling, wantPolling)
		}
	}
}
