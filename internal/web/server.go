package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vzahanych/gesture-guard/internal/config"
	"github.com/vzahanych/gesture-guard/internal/health"
	"github.com/vzahanych/gesture-guard/internal/logger"
	"github.com/vzahanych/gesture-guard/internal/monitor"
	"github.com/vzahanych/gesture-guard/internal/service"
	"github.com/vzahanych/gesture-guard/internal/state"
)

// Server represents the web server service
type Server struct {
	*service.ServiceBase
	config     *config.WebConfig
	logger     *logger.Logger
	httpServer *http.Server
	listener   net.Listener
	router     *gin.Engine
	configSvc  *config.Service    // camera slots
	cameras    CameraController   // Optional camera manager
	statuses   StatusSource       // Optional status aggregator
	history    EventHistory       // Optional alarm history store
	streams    StreamProvider     // Optional MJPEG preview
	healthMgr  HealthReporter     // Optional health manager
	version    string
	startTime  time.Time
}

// CameraController is satisfied by the monitor manager
type CameraController interface {
	StartCamera(id int) error
	StopCamera(id int) error
	StopAll()
	Running() []int
	PauseAll() int
	ResetAll() int
	UpdateROI(ctx context.Context, id int, roi config.ROI) (config.ROI, error)
}

// StatusSource is satisfied by the monitor aggregator
type StatusSource interface {
	Snapshot() []*monitor.CameraStatus
}

// EventHistory is satisfied by the state store
type EventHistory interface {
	ListAlarmEvents(ctx context.Context, filter state.AlarmEventFilter) ([]state.AlarmEvent, int, error)
}

// StreamProvider serves a per-camera MJPEG stream
type StreamProvider interface {
	Handler(cameraID int) http.Handler
}

// HealthReporter is satisfied by the health manager
type HealthReporter interface {
	Check(ctx context.Context) health.HealthReport
}

// NewServer creates a new web server service
func NewServer(cfg *config.WebConfig, configSvc *config.Service, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	s := &Server{
		ServiceBase: service.NewServiceBase("web-server", log),
		config:      cfg,
		logger:      log,
		router:      router,
		configSvc:   configSvc,
		version:     "dev",
		startTime:   time.Now(),
	}
	s.setupRoutes()
	return s
}

// SetVersion sets the application version
func (s *Server) SetVersion(version string) {
	s.version = version
}

// SetDependencies sets the camera manager and status aggregator
func (s *Server) SetDependencies(cameras CameraController, statuses StatusSource) {
	s.cameras = cameras
	s.statuses = statuses
}

// SetEventHistory sets the alarm history store
func (s *Server) SetEventHistory(history EventHistory) {
	s.history = history
}

// SetStreamProvider sets the MJPEG preview source
func (s *Server) SetStreamProvider(streams StreamProvider) {
	s.streams = streams
}

// SetHealthReporter sets the health manager
func (s *Server) SetHealthReporter(h HealthReporter) {
	s.healthMgr = h
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start starts the web server
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.LogInfo("Web server is disabled")
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln

	// MJPEG streams are long-lived, so no write or idle timeout.
	s.httpServer = &http.Server{
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.LogError("Web server error", err, "address", ln.Addr().String())
			s.GetStatus().SetError(err)
		}
	}()

	s.GetStatus().SetStatus(service.StatusRunning)
	s.LogInfo("Web server started", "address", ln.Addr().String())
	return nil
}

// Stop stops the web server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.LogInfo("Stopping web server")
	err := s.httpServer.Shutdown(ctx)
	s.GetStatus().SetStatus(service.StatusStopped)
	return err
}

// setupRoutes sets up all API routes
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/status", s.handleStatus)

		cameras := api.Group("/cameras")
		{
			cameras.GET("", s.handleListCameras)
			cameras.POST("/stop", s.handleStopAll)
			cameras.GET("/:id", s.handleGetCamera)
			cameras.POST("/:id/start", s.handleStartCamera)
			cameras.POST("/:id/stop", s.handleStopCamera)
			cameras.POST("/:id/restart", s.handleRestartCamera)
			cameras.PUT("/:id/roi", s.handleUpdateROI)
			cameras.GET("/:id/stream", s.handleMJPEGStream)
		}

		alarms := api.Group("/alarms")
		{
			alarms.POST("/pause", s.handlePauseAlarms)
			alarms.POST("/reset", s.handleResetAlarms)
		}

		api.GET("/events", s.handleListEvents)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
}

// ginLogger creates a Gin middleware for logging
func ginLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// corsMiddleware creates a CORS middleware for local network access
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
