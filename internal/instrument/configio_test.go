package instrument

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func newValidator(t *testing.T) *ConfigValidator {
	t.Helper()
	v, err := NewConfigValidator()
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestConfigExportImportRoundTrip(t *testing.T) {
	m := NewManager(zap.NewNop())
	inst, err := m.Connect(context.Background(), "FAKE::SDL1020X")
	if err != nil {
		t.Fatal(err)
	}

	data, err := ExportConfig(inst, "smoke test")
	if err != nil {
		t.Fatal(err)
	}
	v := newValidator(t)
	if err := v.Validate(data); err != nil {
		t.Fatalf("exported config fails its own schema: %v", err)
	}
	if err := v.ImportConfig(inst, data); err != nil {
		t.Fatalf("ImportConfig: %v", err)
	}
}

func TestImportRejectsModelMismatch(t *testing.T) {
	m := NewManager(zap.NewNop())
	load, err := m.Connect(context.Background(), "FAKE::SDL1020X")
	if err != nil {
		t.Fatal(err)
	}
	meter, err := m.Connect(context.Background(), "FAKE::SDM3055")
	if err != nil {
		t.Fatal(err)
	}

	data, err := ExportConfig(load, "")
	if err != nil {
		t.Fatal(err)
	}
	err = newValidator(t).ImportConfig(meter, data)
	if err == nil || !strings.Contains(err.Error(), "cannot be applied") {
		t.Fatalf("err = %v, want model mismatch", err)
	}
}

func TestValidateRejectsMalformedDocuments(t *testing.T) {
	v := newValidator(t)
	cases := []struct {
		name string
		doc  string
	}{
		{"not json", "{"},
		{"missing model", `{"config": {}}`},
		{"missing config", `{"model": "SDL1020X"}`},
		{"nested config value", `{"model": "SDL1020X", "config": {":X": {"a": 1}}}`},
		{"unknown top-level key", `{"model": "SDL1020X", "config": {}, "extra": 1}`},
	}
	for _, c := range cases {
		if err := v.Validate([]byte(c.doc)); err == nil {
			t.Errorf("%s: expected validation error", c.name)
		}
	}

	ok := `{"model": "SDL1020X", "name": "n", "config": {":INPUT:STATE": false, ":LIST:STEP": 5}}`
	if err := v.Validate([]byte(ok)); err != nil {
		t.Errorf("valid document rejected: %v", err)
	}
}
