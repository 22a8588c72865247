package rest

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/benchlab/benchcore/internal/instrument"
)

func TestInstrumentSummaryCarriesIdentity(t *testing.T) {
	m := instrument.NewManager(zap.NewNop())
	inst, err := m.Connect(context.Background(), "FAKE::SDL1020X")
	if err != nil {
		t.Fatal(err)
	}

	summary := instrumentSummary(inst, true)
	if summary["vendor"] != "Siglent Technologies" {
		t.Errorf("vendor = %v", summary["vendor"])
	}
	if summary["model"] != "SDL1020X" {
		t.Errorf("model = %v", summary["model"])
	}
	if summary["serial"] != "SDL00000000000" {
		t.Errorf("serial = %v", summary["serial"])
	}
	if summary["resource"] != "FAKE::SDL1020X" {
		t.Errorf("resource = %v", summary["resource"])
	}
	if summary["polling"] != true {
		t.Errorf("polling = %v", summary["polling"])
	}
}
