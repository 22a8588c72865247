package convert

import (
	"errors"
	"testing"

	"github.com/benchlab/benchcore/internal/types"
)

func TestThreeWayLookup(t *testing.T) {
	table, err := ForModel("SDM3045X", VoltageDC)
	if err != nil {
		t.Fatalf("ForModel: %v", err)
	}

	entry, err := table.FromRead(60.0)
	if err != nil {
		t.Fatalf("FromRead: %v", err)
	}
	if entry.Write != "60V" || entry.Label != "60 V" {
		t.Fatalf("unexpected entry %+v", entry)
	}

	entry, err = table.FromWrite("600MV")
	if err != nil {
		t.Fatalf("FromWrite: %v", err)
	}
	if entry.Read != 0.6 {
		t.Fatalf("unexpected entry %+v", entry)
	}

	entry, err = table.FromLabel("1000 V")
	if err != nil {
		t.Fatalf("FromLabel: %v", err)
	}
	if entry.Write != "1000V" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestUnknownValueSurfacesLookupError(t *testing.T) {
	table, err := ForModel("SDM3055", CurrentDC)
	if err != nil {
		t.Fatalf("ForModel: %v", err)
	}

	_, err = table.FromRead(123.0)
	if err == nil {
		t.Fatal("expected lookup error for unknown range value")
	}
	var lookupErr *types.LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("expected LookupError, got %T", err)
	}
	if lookupErr.Model != "SDM3055" {
		t.Fatalf("unexpected model in error: %+v", lookupErr)
	}

	if _, err := table.FromWrite("7A"); err == nil {
		t.Fatal("expected lookup error for unknown write token")
	}
}

func TestUnknownModelAndFamily(t *testing.T) {
	if _, err := ForModel("SDS1204X-E", VoltageDC); err == nil {
		t.Fatal("expected error for unknown model")
	}

	// Known model, family it does not carry a table for.
	if _, err := ForModel("SDM3045X", Family("inductance")); err == nil {
		t.Fatal("expected error for unknown family")
	}
}

func TestEntriesAreCopies(t *testing.T) {
	table, err := ForModel("SDM3065X", VoltageDC)
	if err != nil {
		t.Fatalf("ForModel: %v", err)
	}

	entries := table.Entries()
	if len(entries) == 0 {
		t.Fatal("expected entries")
	}
	entries[0].Write = "MUTATED"

	again, _ := table.FromRead(entries[0].Read)
	if again.Write == "MUTATED" {
		t.Fatal("Entries must not alias the internal table")
	}
}
