package transport

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/benchlab/benchcore/internal/types"
)

func TestParseResource(t *testing.T) {
	cases := []struct {
		raw  string
		want Resource
		bad  bool
	}{
		{raw: "TCPIP::192.168.1.5", want: Resource{Kind: ResourceTCP, Host: "192.168.1.5", Port: 5025}},
		{raw: "TCPIP::load.lab.local::5555", want: Resource{Kind: ResourceTCP, Host: "load.lab.local", Port: 5555}},
		{raw: "tcpip::10.0.0.1", want: Resource{Kind: ResourceTCP, Host: "10.0.0.1", Port: 5025}},
		{raw: "SERIAL::/dev/ttyUSB0", want: Resource{Kind: ResourceSerial, Dev: "/dev/ttyUSB0", Baud: 9600}},
		{raw: "SERIAL::/dev/ttyUSB1::115200", want: Resource{Kind: ResourceSerial, Dev: "/dev/ttyUSB1", Baud: 115200}},
		{raw: "FAKE::SDL1020X", want: Resource{Kind: ResourceFake, Model: "SDL1020X"}},
		{raw: "TCPIP::", bad: true},
		{raw: "TCPIP::host::notaport", bad: true},
		{raw: "SERIAL::/dev/ttyUSB0::fast", bad: true},
		{raw: "FAKE::", bad: true},
		{raw: "GPIB::7", bad: true},
		{raw: "", bad: true},
	}

	for _, tc := range cases {
		res, err := ParseResource(tc.raw)
		if tc.bad {
			if err == nil {
				t.Errorf("%q: expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tc.raw, err)
			continue
		}
		if res.Kind != tc.want.Kind || res.Host != tc.want.Host || res.Port != tc.want.Port ||
			res.Dev != tc.want.Dev || res.Baud != tc.want.Baud || res.Model != tc.want.Model {
			t.Errorf("%q: got %+v", tc.raw, res)
		}
	}
}

func newFake(t *testing.T) *FakeConn {
	t.Helper()
	res, err := ParseResource("FAKE::SDL1020X")
	if err != nil {
		t.Fatalf("ParseResource: %v", err)
	}
	responder := NewTableResponder(map[string]string{"*IDN": "a,b,c,d"})
	return NewFakeConn(res, responder, zap.NewNop())
}

func TestOperationsBeforeConnect(t *testing.T) {
	conn := newFake(t)

	if err := conn.Write("*CLS"); !errors.Is(err, types.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if _, err := conn.Query("*IDN?"); !errors.Is(err, types.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestQueryReadsBackAppliedWrite(t *testing.T) {
	conn := newFake(t)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := conn.Write(":CURRENT:IRANGE 5"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	resp, err := conn.Query(":CURRENT:IRANGE?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp != "5" {
		t.Fatalf("expected readback 5, got %q", resp)
	}
}

func TestMidLineQuestionMarkIsAQuery(t *testing.T) {
	conn := newFake(t)
	responder := NewTableResponder(nil)
	responder.Special = func(cmd string) (string, bool) {
		if cmd == ":LIST:LEVEL? 3" {
			return "1.500", true
		}
		return "", false
	}
	conn.responder = responder
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	resp, err := conn.Query(":LIST:LEVEL? 3")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp != "1.500" {
		t.Fatalf("expected row response, got %q", resp)
	}
}

func TestReadWithoutPendingResponse(t *testing.T) {
	conn := newFake(t)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if _, err := conn.Read(); !errors.Is(err, types.ErrConnectionLost) {
		t.Fatalf("expected ErrConnectionLost, got %v", err)
	}
}

func TestBeginCloseRejectsEverything(t *testing.T) {
	conn := newFake(t)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	conn.BeginClose()

	if err := conn.Write("*CLS"); !errors.Is(err, types.ErrInstrumentClosed) {
		t.Fatalf("expected ErrInstrumentClosed, got %v", err)
	}
	if _, err := conn.Query("*IDN?"); !errors.Is(err, types.ErrInstrumentClosed) {
		t.Fatalf("expected ErrInstrumentClosed, got %v", err)
	}
	if err := conn.Connect(context.Background()); !errors.Is(err, types.ErrInstrumentClosed) {
		t.Fatalf("reconnect after BeginClose: %v", err)
	}
}

func TestSentLogRecordsOrder(t *testing.T) {
	conn := newFake(t)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	conn.Write("*CLS")
	conn.Query("*IDN?")

	sent := conn.Sent()
	if len(sent) != 2 || sent[0] != "*CLS" || sent[1] != "*IDN?" {
		t.Fatalf("unexpected wire log %v", sent)
	}

	conn.ClearSent()
	if len(conn.Sent()) != 0 {
		t.Fatal("ClearSent must empty the log")
	}
}
