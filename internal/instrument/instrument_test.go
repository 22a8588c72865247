package instrument

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/benchlab/benchcore/internal/types"
)

func TestParseIdentity(t *testing.T) {
	id, err := ParseIdentity("Siglent Technologies,SDL1020X,SDL00000000000,1.1.1.22")
	if err != nil {
		t.Fatal(err)
	}
	if id.Model != "SDL1020X" || id.HardwareVersion != "" {
		t.Errorf("identity = %+v", id)
	}

	id, err = ParseIdentity("Siglent Technologies,SPD3303X,SPD00001234567,1.01.01.02.05,V3.0")
	if err != nil {
		t.Fatal(err)
	}
	if id.Model != "SPD3303X" || id.HardwareVersion != "V3.0" {
		t.Errorf("identity = %+v", id)
	}

	if _, err := ParseIdentity("nonsense"); err == nil {
		t.Error("expected error for malformed identification")
	}
}

func TestKindForModel(t *testing.T) {
	cases := []struct {
		model string
		kind  Kind
	}{
		{"SDL1030X-E", KindLoad},
		{"SDM3065X", KindMultimeter},
		{"SPD3303X-E", KindPowerSupply},
	}
	for _, c := range cases {
		kind, err := KindForModel(c.model)
		if err != nil || kind != c.kind {
			t.Errorf("KindForModel(%q) = %v, %v", c.model, kind, err)
		}
	}

	_, err := KindForModel("SDS1204X-E")
	if !errors.Is(err, types.ErrUnknownInstrumentType) {
		t.Errorf("err = %v, want ErrUnknownInstrumentType", err)
	}
}

func TestConnectFakeInstruments(t *testing.T) {
	m := NewManager(zap.NewNop())
	ctx := context.Background()

	for _, c := range []struct {
		resource string
		kind     Kind
	}{
		{"FAKE::SDL1020X", KindLoad},
		{"FAKE::SDM3055", KindMultimeter},
		{"FAKE::SPD3303X", KindPowerSupply},
	} {
		inst, err := m.Connect(ctx, c.resource)
		if err != nil {
			t.Fatalf("Connect(%s): %v", c.resource, err)
		}
		if inst.Kind != c.kind {
			t.Errorf("%s: kind = %v, want %v", c.resource, inst.Kind, c.kind)
		}
	}
	if len(m.List()) != 3 {
		t.Fatalf("instruments = %d, want 3", len(m.List()))
	}

	if err := m.StopAll(ctx); err != nil {
		t.Fatal(err)
	}
	if len(m.List()) != 0 {
		t.Errorf("instruments left after StopAll: %d", len(m.List()))
	}
}

func TestConnectUnknownModel(t *testing.T) {
	m := NewManager(zap.NewNop())
	_, err := m.Connect(context.Background(), "FAKE::SDS1204X-E")
	if !errors.Is(err, types.ErrUnknownInstrumentType) {
		t.Errorf("err = %v, want ErrUnknownInstrumentType", err)
	}
}

func TestPollerCollectsMeasurements(t *testing.T) {
	m := NewManager(zap.NewNop())
	var got []Measurement
	m.OnMeasurement = func(meas Measurement) { got = append(got, meas) }

	inst, err := m.Connect(context.Background(), "FAKE::SPD3303X")
	if err != nil {
		t.Fatal(err)
	}

	poller := NewPoller(inst, time.Second, m.logger, m.OnMeasurement, m.OnPosition)
	poller.poll(time.Now())

	// Two channels, three kinds each.
	if len(got) != 6 {
		t.Fatalf("measurements = %d, want 6", len(got))
	}
	for _, meas := range got {
		if meas.InstrumentID != inst.ID || meas.Slot < 1 || meas.Slot > 2 {
			t.Errorf("measurement = %+v", meas)
		}
	}
}

func TestDisconnectUnknownInstrument(t *testing.T) {
	m := NewManager(zap.NewNop())
	inst, err := m.Connect(context.Background(), "FAKE::SDM3045X")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Disconnect(inst.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.Disconnect(inst.ID); err == nil {
		t.Error("expected error disconnecting twice")
	}
}
