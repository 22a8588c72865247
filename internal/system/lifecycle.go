package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benchlab/benchcore/internal/api/rest"
	"github.com/benchlab/benchcore/internal/api/websocket"
	"github.com/benchlab/benchcore/internal/auth"
	"github.com/benchlab/benchcore/internal/config"
	"github.com/benchlab/benchcore/internal/instrument"
	"github.com/benchlab/benchcore/internal/storage"
	"go.uber.org/zap"
)

// LifecycleManager owns the component graph and brings it up and down
// in order: hub, recorder, bench inventory, REST server.
type LifecycleManager struct {
	config      *config.Config
	storage     *storage.PostgresClient
	manager     *instrument.Manager
	authService *auth.Service
	wsHub       *websocket.Hub
	recorder    *storage.Recorder
	restServer  *rest.Server
	logger      *zap.Logger

	stateMu      sync.RWMutex
	currentState SystemState

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewLifecycleManager(store *storage.PostgresClient, cfg *config.Config, logger *zap.Logger) *LifecycleManager {
	authService := auth.NewService(cfg.Auth)
	wsHub := websocket.NewHub(logger, authService)
	manager := instrument.NewManager(logger)

	lm := &LifecycleManager{
		config:       cfg,
		storage:      store,
		manager:      manager,
		authService:  authService,
		wsHub:        wsHub,
		logger:       logger,
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}

	if store != nil {
		lm.recorder = storage.NewRecorder(store, logger)
	}

	manager.OnMeasurement = lm.onMeasurement
	manager.OnPosition = lm.onPosition

	return lm
}

func (lm *LifecycleManager) onMeasurement(m instrument.Measurement) {
	lm.wsHub.Broadcast(websocket.NewMessage(websocket.MessageTypeMeasurement, m))

	if lm.recorder != nil {
		lm.recorder.Add(storage.MeasurementRow{
			InstrumentID: m.InstrumentID,
			Resource:     m.Resource,
			Slot:         m.Slot,
			Kind:         m.Kind,
			Unit:         m.Unit,
			Value:        m.Value,
			Overload:     m.Overload,
			TakenAt:      m.TakenAt,
		})
	}
}

func (lm *LifecycleManager) onPosition(p instrument.PositionUpdate) {
	lm.wsHub.Broadcast(websocket.NewMessage(websocket.MessageTypeSequencePosition, p))
}

// Start brings the system up.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting benchcore")
	lm.setState(StateInitializing)

	go lm.wsHub.Run()

	if lm.recorder != nil {
		lm.recorder.Start()
	}

	if path := lm.config.Instruments.Inventory; path != "" {
		inv, err := instrument.LoadInventory(path)
		if err != nil {
			// A broken inventory file should not keep the server from
			// serving manual connects.
			lm.logger.Warn("Failed to load instrument inventory", zap.Error(err))
		} else {
			lm.manager.ConnectInventory(context.Background(), inv, lm.config.Instruments.PollInterval)
		}
	}

	restServer, err := rest.NewServer(lm.config, lm.manager, lm.storage,
		lm.logger, lm.wsHub, lm.authService)
	if err != nil {
		lm.setError(err)
		return fmt.Errorf("failed to create REST server: %w", err)
	}
	lm.restServer = restServer
	if err := lm.restServer.Start(); err != nil {
		lm.setError(err)
		return fmt.Errorf("failed to start REST API: %w", err)
	}

	lm.setState(StateRunning)
	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Int("instruments", len(lm.manager.List())))

	return nil
}

// Shutdown gracefully shuts down the system.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	// 1. Stop pollers and disconnect instruments
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := lm.manager.StopAll(ctx); err != nil {
			errChan <- fmt.Errorf("instrument manager stop failed: %w", err)
		}
	}()

	// 2. REST API Server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		return fmt.Errorf("shutdown timeout exceeded")
	case err := <-errChan:
		return err
	}

	// The recorder goes last so in-flight measurements still land.
	if lm.recorder != nil {
		lm.recorder.Stop()
	}

	lm.logger.Info("Graceful shutdown completed")
	return nil
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	if state == lm.currentState {
		return
	}
	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("State transition rejected", zap.Error(err))
		return
	}
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.logger.Error("System entering error state", zap.Error(err))
	lm.currentState = StateError
}

// GetCurrentStatus returns current system status.
func (lm *LifecycleManager) GetCurrentStatus() SystemStatus {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()

	instruments := lm.manager.List()
	polling := 0
	for _, inst := range instruments {
		if lm.manager.Polling(inst.ID) {
			polling++
		}
	}

	return SystemStatus{
		State:       lm.currentState.String(),
		Instruments: len(instruments),
		Polling:     polling,
		Timestamp:   time.Now().Unix(),
	}
}

// InstrumentManager returns the instrument manager.
func (lm *LifecycleManager) InstrumentManager() *instrument.Manager {
	return lm.manager
}

// Storage returns the storage client, nil when no database is configured.
func (lm *LifecycleManager) Storage() *storage.PostgresClient {
	return lm.storage
}

// Config returns the configuration.
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}
