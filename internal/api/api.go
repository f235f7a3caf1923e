// Package api provides the HTTP API for the web scanner service.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/callback"
	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/config"
	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/scanner"
)

// Server represents the HTTP API server.
type Server struct {
	defaults config.ScannerConfig
	scanner  *scanner.Scanner
	metrics  http.Handler
	logger   *zap.SugaredLogger
	router   *gin.Engine
}

// New creates a new API server. metrics may be nil.
func New(defaults config.ScannerConfig, scan *scanner.Scanner, metrics http.Handler, logger *zap.SugaredLogger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		defaults: defaults,
		scanner:  scan,
		metrics:  metrics,
		logger:   logger,
		router:   gin.New(),
	}

	s.setupRoutes()
	return s
}

// Router returns the gin router.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	// Health endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/ready", s.readyHandler)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/scanners", s.scannersHandler)

		// Synchronous scan
		v1.POST("/scan", s.scanHandler)

		// Asynchronous batch control
		v1.POST("/scan/start", s.startScanHandler)
		v1.POST("/scan/stop", s.stopScanHandler)
		v1.GET("/scan/status", s.scanStatusHandler)
	}

	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics))
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		s.logger.Debugw("Request completed",
			"path", path,
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Health check handler
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": callback.CollectorName,
	})
}

// Readiness requires at least one usable capability.
func (s *Server) readyHandler(c *gin.Context) {
	available := 0
	for _, info := range s.scanner.Orchestrator().Scanners() {
		if info.Available {
			available++
		}
	}
	if available == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not_ready",
			"service": callback.CollectorName,
			"reason":  "no scanner available",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":             "ready",
		"service":            callback.CollectorName,
		"available_scanners": available,
	})
}

func (s *Server) scannersHandler(c *gin.Context) {
	scanners := s.scanner.Orchestrator().Scanners()
	c.JSON(http.StatusOK, gin.H{
		"scanners": scanners,
		"count":    len(scanners),
	})
}

// Synchronous scan handler; the request context cancels the batch if the
// client goes away.
func (s *Server) scanHandler(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	batch, err := s.batchRequest(req, "")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start := time.Now()
	results, err := s.scanner.Run(c.Request.Context(), batch)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ScanResponse{
		BatchID: batch.ID,
		Results: results,
		Summary: Summarize(results, time.Since(start)),
	})
}

func (s *Server) startScanHandler(c *gin.Context) {
	var req StartScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	batch, err := s.batchRequest(req.ScanRequest, req.ScanID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reporter := callback.NewReporter(callback.Config{
		ScanID:      batch.ID,
		ProgressURL: req.ProgressURL,
		CompleteURL: req.CompleteURL,
		APIKey:      c.GetHeader("X-Internal-API-Key"),
	}, s.logger)

	if err := s.scanner.Start(batch, reporter); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":   "started",
		"message":  "Web scan batch started",
		"scan_id":  batch.ID,
		"jobs":     len(batch.Targets) * len(batch.Scanners),
		"scanners": batch.Scanners,
	})
}

func (s *Server) stopScanHandler(c *gin.Context) {
	var req StopScanRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.ScanID != "" {
		s.logger.Infow("Stop scan requested", "scan_id", req.ScanID)
	}

	if !s.scanner.IsRunning() {
		c.JSON(http.StatusOK, gin.H{
			"status":  "idle",
			"message": "No scan batch running",
		})
		return
	}

	s.scanner.Stop()
	c.JSON(http.StatusOK, gin.H{
		"status":  "stopped",
		"message": "Web scan batch stopped",
	})
}

func (s *Server) scanStatusHandler(c *gin.Context) {
	st := s.scanner.Status()

	resp := StatusResponse{
		Status:        "idle",
		Running:       st.Running,
		BatchID:       st.BatchID,
		TotalJobs:     st.TotalJobs,
		CompletedJobs: st.CompletedJobs,
		ElapsedMs:     st.Elapsed.Milliseconds(),
	}
	if !st.StartedAt.IsZero() {
		started := st.StartedAt
		resp.StartedAt = &started
	}
	switch {
	case st.Running:
		resp.Status = "running"
	case st.BatchID != "":
		resp.Status = "finished"
		summary := Summarize(st.Results, st.Elapsed)
		resp.Summary = &summary
		resp.Results = st.Results
	}

	c.JSON(http.StatusOK, resp)
}

// batchRequest applies configured defaults and validates scanner names.
func (s *Server) batchRequest(req ScanRequest, id string) (scanner.BatchRequest, error) {
	if id == "" {
		id = uuid.New().String()
	}

	names := req.Scanners
	if len(names) == 0 {
		names = s.defaults.Enabled
	}
	types := make([]scanner.CapabilityType, 0, len(names))
	for _, n := range names {
		t, err := scanner.ParseCapabilityType(n)
		if err != nil {
			return scanner.BatchRequest{}, err
		}
		types = append(types, t)
	}
	if len(types) == 0 {
		return scanner.BatchRequest{}, errors.New("no scanners selected")
	}

	targets := make([]scanner.Target, 0, len(req.Domains))
	for _, d := range req.Domains {
		t := scanner.NewTarget(d)
		if t.Domain == "" {
			return scanner.BatchRequest{}, fmt.Errorf("invalid domain %q", d)
		}
		targets = append(targets, t)
	}

	opts := s.defaults.Options()
	if req.MaxConcurrent != nil {
		opts.MaxConcurrent = *req.MaxConcurrent
	}
	if req.TimeoutSeconds != nil {
		opts.Timeout = time.Duration(*req.TimeoutSeconds) * time.Second
	}
	if req.Parallel != nil {
		opts.Parallel = *req.Parallel
	}

	return scanner.BatchRequest{
		ID:       id,
		Targets:  targets,
		Scanners: types,
		Options:  opts,
	}, nil
}

func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, scanner.ErrInvalidConcurrency):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, scanner.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.logger.Errorw("Scan request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
