package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/benchlab/benchcore/internal/api/websocket"
	"github.com/benchlab/benchcore/internal/auth"
	"github.com/benchlab/benchcore/internal/config"
	"github.com/benchlab/benchcore/internal/instrument"
	"github.com/benchlab/benchcore/internal/monitor"
	"github.com/benchlab/benchcore/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	manager     *instrument.Manager
	store       *storage.PostgresClient
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.Service
	validator   *instrument.ConfigValidator
}

func NewServer(cfg *config.Config, manager *instrument.Manager, store *storage.PostgresClient,
	logger *zap.Logger, wsHub *websocket.Hub, authService *auth.Service) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	validator, err := instrument.NewConfigValidator()
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:      gin.New(),
		manager:     manager,
		store:       store,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
		validator:   validator,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", monitor.Handler())

	v1 := s.router.Group("/api/v1")
	{
		authPublic := v1.Group("/auth")
		{
			authPublic.POST("/login", s.login)
			authPublic.POST("/refresh", s.refreshToken)
		}

		authProtected := v1.Group("/auth")
		authProtected.Use(s.authService.Middleware())
		{
			authProtected.POST("/logout", s.logout)
			authProtected.GET("/me", s.getCurrentUser)
		}

		instruments := v1.Group("/instruments")
		instruments.Use(s.authService.Middleware())
		{
			instruments.GET("", s.listInstruments)
			instruments.POST("/connect", s.connectInstrument)
			instruments.GET("/:id", s.getInstrument)
			instruments.DELETE("/:id", s.disconnectInstrument)

			instruments.GET("/:id/snapshot", s.getSnapshot)
			instruments.POST("/:id/refresh", s.refreshInstrument)
			instruments.POST("/:id/parameters", s.setParameter)
			instruments.POST("/:id/commit", s.commitInstrument)

			instruments.GET("/:id/sequence", s.getSequence)
			instruments.PUT("/:id/sequence/:row", s.setSequenceRow)
			instruments.POST("/:id/sequence/start", s.startSequence)
			instruments.POST("/:id/sequence/stop", s.stopSequence)

			instruments.POST("/:id/poller/start", s.startPoller)
			instruments.POST("/:id/poller/stop", s.stopPoller)

			instruments.GET("/:id/config", s.exportConfig)
			instruments.POST("/:id/config", s.importConfig)
		}

		measurements := v1.Group("/measurements")
		measurements.Use(s.authService.Middleware())
		{
			measurements.GET("", s.queryMeasurements)
		}

		configs := v1.Group("/configs")
		configs.Use(s.authService.Middleware())
		{
			configs.GET("", s.listSavedConfigs)
			configs.POST("", s.saveConfig)
			configs.GET("/:id", s.getSavedConfig)
			configs.DELETE("/:id", s.deleteSavedConfig)
		}

		// WebSocket (auth via first message)
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.authService.Middleware(), s.wsStatus)
		}
	}
}

func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"timestamp":   time.Now().Unix(),
		"instruments": len(s.manager.List()),
	})
}
