package instrument

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benchlab/benchcore/internal/monitor"
	"github.com/benchlab/benchcore/internal/scpi"
	"github.com/benchlab/benchcore/internal/sequence"
	"github.com/benchlab/benchcore/internal/transport"
)

// Instrument is one connected device: its connection, its parsed
// identity and the family driver operating it.
type Instrument struct {
	ID       uuid.UUID
	Kind     Kind
	Identity Identity
	Driver   Driver
}

func (i *Instrument) Resource() string {
	return i.Driver.Conn().Resource()
}

// Measurement is one reading fanned out to storage and the live
// stream.
type Measurement struct {
	InstrumentID uuid.UUID `json:"instrument_id"`
	Resource     string    `json:"resource"`
	Slot         int       `json:"slot"`
	Kind         string    `json:"kind"`
	Unit         string    `json:"unit"`
	Value        float64   `json:"value"`
	Overload     bool      `json:"overload"`
	TakenAt      time.Time `json:"taken_at"`
}

// PositionUpdate reports a sequence position estimate.
type PositionUpdate struct {
	InstrumentID uuid.UUID         `json:"instrument_id"`
	Channel      int               `json:"channel"`
	Position     sequence.Position `json:"position"`
}

// Manager owns every connected instrument and its poller.
type Manager struct {
	logger *zap.Logger

	mu          sync.RWMutex
	instruments map[uuid.UUID]*Instrument
	pollers     map[uuid.UUID]*Poller

	// Fan-out targets, set once at wiring time.
	OnMeasurement func(Measurement)
	OnPosition    func(PositionUpdate)
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger:      logger,
		instruments: make(map[uuid.UUID]*Instrument),
		pollers:     make(map[uuid.UUID]*Poller),
	}
}

// Connect opens a resource, identifies the device behind it and brings
// the matching driver up. Unknown models disconnect cleanly and
// surface ErrUnknownInstrumentType.
func (m *Manager) Connect(ctx context.Context, resource string) (*Instrument, error) {
	res, err := transport.ParseResource(resource)
	if err != nil {
		return nil, err
	}

	var conn transport.Conn
	switch res.Kind {
	case transport.ResourceFake:
		responder, err := fakeResponder(res.Model)
		if err != nil {
			return nil, err
		}
		conn = transport.NewFakeConn(res, responder, m.logger)
	case transport.ResourceSerial:
		conn = transport.NewSerialConn(res, m.logger)
	default:
		conn = transport.NewTCPConn(res, transport.DefaultConnectTimeout, m.logger)
	}

	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}

	raw, err := scpi.NewDevice(conn).Identify()
	if err != nil {
		conn.Disconnect()
		return nil, err
	}
	identity, err := ParseIdentity(raw)
	if err != nil {
		conn.Disconnect()
		return nil, err
	}

	driver, kind, err := newDriver(conn, identity.Model, m.logger)
	if err != nil {
		conn.Disconnect()
		return nil, err
	}
	if err := driver.Setup(); err != nil {
		conn.Disconnect()
		return nil, err
	}

	inst := &Instrument{
		ID:       uuid.New(),
		Kind:     kind,
		Identity: identity,
		Driver:   driver,
	}

	m.mu.Lock()
	m.instruments[inst.ID] = inst
	m.mu.Unlock()

	monitor.ConnectedInstruments.Inc()
	m.logger.Info("Instrument connected",
		zap.String("id", inst.ID.String()),
		zap.String("model", identity.Model),
		zap.String("resource", resource))
	return inst, nil
}

// Disconnect releases one instrument: poller down, remote lock off,
// pending I/O cancelled, socket closed.
func (m *Manager) Disconnect(id uuid.UUID) error {
	m.mu.Lock()
	inst, exists := m.instruments[id]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("instrument not found: %s", id)
	}
	poller := m.pollers[id]
	delete(m.instruments, id)
	delete(m.pollers, id)
	m.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
	if err := inst.Driver.Teardown(); err != nil {
		m.logger.Warn("Teardown failed",
			zap.String("id", id.String()), zap.Error(err))
	}
	conn := inst.Driver.Conn()
	conn.BeginClose()
	err := conn.Disconnect()

	monitor.ConnectedInstruments.Dec()
	m.logger.Info("Instrument disconnected", zap.String("id", id.String()))
	return err
}

// StartPoller begins periodic measurement and sequence-position
// collection for one instrument.
func (m *Manager) StartPoller(id uuid.UUID, interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, exists := m.instruments[id]
	if !exists {
		return fmt.Errorf("instrument not found: %s", id)
	}
	if _, running := m.pollers[id]; running {
		return nil
	}
	poller := NewPoller(inst, interval, m.logger, m.OnMeasurement, m.OnPosition)
	poller.Start()
	m.pollers[id] = poller
	return nil
}

// StopPoller halts collection without disconnecting.
func (m *Manager) StopPoller(id uuid.UUID) {
	m.mu.Lock()
	poller := m.pollers[id]
	delete(m.pollers, id)
	m.mu.Unlock()
	if poller != nil {
		poller.Stop()
	}
}

// Polling reports whether a poller is collecting from the instrument.
func (m *Manager) Polling(id uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.pollers[id]
	return exists
}

// Get returns one instrument by ID.
func (m *Manager) Get(id uuid.UUID) (*Instrument, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, exists := m.instruments[id]
	return inst, exists
}

// List returns all connected instruments.
func (m *Manager) List() []*Instrument {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Instrument, 0, len(m.instruments))
	for _, inst := range m.instruments {
		out = append(out, inst)
	}
	return out
}

// StopAll stops every poller and disconnects every instrument. Used on
// shutdown.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]uuid.UUID, 0, len(m.instruments))
	for id := range m.instruments {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Disconnect(id); err != nil {
			m.logger.Error("Failed to disconnect instrument",
				zap.String("id", id.String()), zap.Error(err))
		}
	}
	return nil
}
