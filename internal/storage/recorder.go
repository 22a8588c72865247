package storage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	recorderBuffer   = 1024
	recorderBatchMax = 128
	recorderFlush    = time.Second
)

// Recorder batches measurement rows from the pollers into the
// measurements table. Rows are dropped, not blocked on, when the
// database cannot keep up: losing history must never stall polling.
type Recorder struct {
	client *PostgresClient
	logger *zap.Logger

	rows     chan MeasurementRow
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewRecorder(client *PostgresClient, logger *zap.Logger) *Recorder {
	return &Recorder{
		client:   client,
		logger:   logger,
		rows:     make(chan MeasurementRow, recorderBuffer),
		stopChan: make(chan struct{}),
	}
}

// Add queues one row for insertion.
func (r *Recorder) Add(row MeasurementRow) {
	select {
	case r.rows <- row:
	default:
		r.logger.Warn("Measurement recorder buffer full, row dropped")
	}
}

func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.run()
	r.logger.Info("Measurement recorder started")
}

// Stop flushes pending rows and halts the recorder.
func (r *Recorder) Stop() {
	close(r.stopChan)
	r.wg.Wait()
	r.logger.Info("Measurement recorder stopped")
}

func (r *Recorder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(recorderFlush)
	defer ticker.Stop()

	batch := make([]MeasurementRow, 0, recorderBatchMax)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.client.InsertMeasurements(ctx, batch); err != nil {
			r.logger.Error("Failed to insert measurement batch",
				zap.Int("rows", len(batch)), zap.Error(err))
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case row := <-r.rows:
			batch = append(batch, row)
			if len(batch) >= recorderBatchMax {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.stopChan:
			for {
				select {
				case row := <-r.rows:
					batch = append(batch, row)
				default:
					flush()
					return
				}
			}
		}
	}
}
