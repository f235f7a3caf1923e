// Package main is the entry point for the web scanner service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/api"
	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/capability/headers"
	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/capability/sslgrade"
	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/capability/vulndaemon"
	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/config"
	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/httpclient"
	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/loadtest"
	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/metrics"
	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/publisher"
	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/scanner"
)

func main() {
	// Load configuration before the logger so its level and format apply
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	sugar := logger.Sugar()
	sugar.Info("Starting web scanner service")

	if err := cfg.Validate(); err != nil {
		sugar.Fatalf("Invalid configuration: %v", err)
	}

	sugar.Infow("Configuration loaded",
		"port", cfg.Server.Port,
		"max_concurrent", cfg.Scanner.MaxConcurrent,
		"job_timeout", cfg.Scanner.JobTimeout().String(),
		"enabled_scanners", cfg.Scanner.Enabled,
	)

	recorder := metrics.New()

	caps, err := buildCapabilities(cfg, recorder, sugar)
	if err != nil {
		sugar.Fatalf("Failed to initialize scanners: %v", err)
	}
	orch := scanner.NewOrchestrator(sugar, recorder, caps...)

	// Initialize RabbitMQ publisher; results are still returned over HTTP
	// when the broker is unreachable.
	var pub scanner.ResultPublisher
	if cfg.RabbitMQ.Enabled {
		p, err := publisher.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, sugar)
		if err != nil {
			sugar.Warnw("RabbitMQ unavailable, results will not be published", "error", err)
		} else {
			defer func() { _ = p.Close() }()
			pub = p
		}
	}

	scan := scanner.New(orch, pub, sugar)
	server := api.New(cfg.Scanner, scan, recorder.Handler(), sugar)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infof("HTTP server listening on port %d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sugar.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	scan.Stop()

	if err := httpServer.Shutdown(ctx); err != nil {
		sugar.Errorf("Server forced to shutdown: %v", err)
	}

	sugar.Info("Server stopped")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// buildCapabilities registers every scan type. Each external service gets
// its own client so one tripped breaker does not block the others.
func buildCapabilities(cfg *config.Config, recorder *metrics.Recorder, logger *zap.SugaredLogger) ([]scanner.Capability, error) {
	clientCfg := cfg.Resilience.HTTPClient()

	headerScanner := headers.New(
		httpclient.New("headers", clientCfg, logger),
		net.DefaultResolver,
		logger,
	)

	gradeScanner := sslgrade.New(sslgrade.Config{
		BaseURL:      cfg.SSLLabs.BaseURL,
		PollInterval: time.Duration(cfg.SSLLabs.PollIntervalSeconds) * time.Second,
		MaxWait:      time.Duration(cfg.SSLLabs.MaxWaitSeconds) * time.Second,
	}, httpclient.New("ssl_labs", clientCfg, logger), logger)

	daemonScanner := vulndaemon.New(vulndaemon.Config{
		BaseURL:      cfg.VulnDaemon.BaseURL,
		APIKey:       cfg.VulnDaemon.APIKey,
		PollInterval: time.Duration(cfg.VulnDaemon.PollIntervalSeconds) * time.Second,
		MaxWait:      time.Duration(cfg.VulnDaemon.MaxWaitSeconds) * time.Second,
		ActiveScan:   cfg.VulnDaemon.ActiveScan,
	}, httpclient.New("zap", clientCfg, logger), logger)

	// The load generator bypasses retries and the breaker so every sample is
	// one real request.
	loadCfg := cfg.LoadTest.ToLoadTest()
	loadClientCfg := clientCfg
	loadClientCfg.MaxIdleConnsPerHost = loadCfg.MaxConcurrentRequests
	loadScanner, err := loadtest.New(
		loadCfg,
		httpclient.NewHTTPClient(loadClientCfg),
		recorder,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("load test: %w", err)
	}

	return []scanner.Capability{headerScanner, gradeScanner, daemonScanner, loadScanner}, nil
}
