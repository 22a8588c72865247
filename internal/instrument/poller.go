package instrument

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/benchlab/benchcore/internal/device/sdl1000"
	"github.com/benchlab/benchcore/internal/device/sdm3000"
	"github.com/benchlab/benchcore/internal/device/spd3303"
	"github.com/benchlab/benchcore/internal/monitor"
	"github.com/benchlab/benchcore/internal/types"
)

// Poller drives periodic measurement collection and sequence-position
// heartbeats for one instrument.
type Poller struct {
	inst     *Instrument
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex

	onMeasurement func(Measurement)
	onPosition    func(PositionUpdate)
}

// DefaultPollInterval is used when no interval is configured.
const DefaultPollInterval = 250 * time.Millisecond

func NewPoller(inst *Instrument, interval time.Duration, logger *zap.Logger,
	onMeasurement func(Measurement), onPosition func(PositionUpdate)) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		inst:          inst,
		interval:      interval,
		logger:        logger,
		stopChan:      make(chan struct{}),
		onMeasurement: onMeasurement,
		onPosition:    onPosition,
	}
}

func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.wg.Add(1)

	go p.pollLoop()

	p.logger.Info("Poller started",
		zap.String("instrument", p.inst.ID.String()),
		zap.Duration("interval", p.interval))
}

func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("Poller stopped", zap.String("instrument", p.inst.ID.String()))
}

func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.poll(time.Now())
		}
	}
}

// poll runs one collection cycle. A lost connection ends the loop
// quietly; the manager notices on the next API touch.
func (p *Poller) poll(now time.Time) {
	var err error
	switch d := p.inst.Driver.(type) {
	case *sdl1000.Driver:
		err = p.pollLoad(d, now)
	case *sdm3000.Driver:
		err = p.pollMultimeter(d)
	case *spd3303.Driver:
		err = p.pollSupply(d, now)
	}
	if err != nil {
		monitor.CommandErrors.WithLabelValues(p.inst.Resource()).Inc()
		if errors.Is(err, types.ErrConnectionLost) ||
			errors.Is(err, types.ErrInstrumentClosed) ||
			errors.Is(err, types.ErrNotConnected) {
			return
		}
		p.logger.Error("Poll failed",
			zap.String("instrument", p.inst.ID.String()),
			zap.Error(err))
	}
}

func (p *Poller) emit(slot int, kind, unit string, value float64, overload bool) {
	monitor.MeasurementsTotal.WithLabelValues(p.inst.Resource()).Inc()
	if p.onMeasurement == nil {
		return
	}
	p.onMeasurement(Measurement{
		InstrumentID: p.inst.ID,
		Resource:     p.inst.Resource(),
		Slot:         slot,
		Kind:         kind,
		Unit:         unit,
		Value:        value,
		Overload:     overload,
		TakenAt:      time.Now(),
	})
}

func (p *Poller) emitPosition(update PositionUpdate) {
	if p.onPosition != nil {
		p.onPosition(update)
	}
}

func (p *Poller) pollLoad(d *sdl1000.Driver, now time.Time) error {
	pos := d.List().Heartbeat(now)
	p.emitPosition(PositionUpdate{InstrumentID: p.inst.ID, Position: pos})

	kinds := []struct {
		kind    string
		unit    string
		measure func() (float64, error)
	}{
		{"voltage", "V", d.MeasureVoltage},
		{"current", "A", d.MeasureCurrent},
		{"power", "W", d.MeasurePower},
		{"resistance", "Ω", d.MeasureResistance},
	}
	for _, k := range kinds {
		v, err := k.measure()
		if err != nil {
			return err
		}
		p.emit(0, k.kind, k.unit, v, false)
	}
	return nil
}

func (p *Poller) pollMultimeter(d *sdm3000.Driver) error {
	readings, err := d.Measure()
	for _, r := range readings {
		p.emit(r.Set, r.Label, r.Unit, r.Value, r.Overload)
	}
	return err
}

func (p *Poller) pollSupply(d *spd3303.Driver, now time.Time) error {
	positions := d.Heartbeat(now)
	for ch := range positions {
		p.emitPosition(PositionUpdate{
			InstrumentID: p.inst.ID,
			Channel:      ch + 1,
			Position:     positions[ch],
		})
	}
	for ch := 0; ch < spd3303.NumChannels; ch++ {
		v, err := d.MeasureVoltage(ch)
		if err != nil {
			return err
		}
		c, err := d.MeasureCurrent(ch)
		if err != nil {
			return err
		}
		w, err := d.MeasurePower(ch)
		if err != nil {
			return err
		}
		p.emit(ch+1, "voltage", "V", v, false)
		p.emit(ch+1, "current", "A", c, false)
		p.emit(ch+1, "power", "W", w, false)
	}
	return nil
}
