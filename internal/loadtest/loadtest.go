// Package loadtest implements the load-test capability: a rate-controlled,
// optionally ramping HTTP load generator with latency statistics and
// threshold-based findings.
package loadtest

import (
	"context"

	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/scanner"
	"go.uber.org/zap"
)

// Version of the load-test capability.
const Version = "1.0.0"

// Scanner exposes the load generator as a scanner.Capability.
type Scanner struct {
	cfg      Config
	client   Doer
	observer RequestObserver
	logger   *zap.SugaredLogger
}

var _ scanner.Capability = (*Scanner)(nil)

// New validates cfg and returns the capability. observer may be nil.
func New(cfg Config, client Doer, observer RequestObserver, logger *zap.SugaredLogger) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scanner{cfg: cfg, client: client, observer: observer, logger: logger}, nil
}

func (s *Scanner) Name() string                 { return "Load Test" }
func (s *Scanner) Type() scanner.CapabilityType { return scanner.TypeLoadTest }
func (s *Scanner) IsAvailable() bool            { return s.client != nil }
func (s *Scanner) Version() string              { return Version }

// Scan runs one load test against target.URL.
func (s *Scanner) Scan(ctx context.Context, target scanner.Target) (*scanner.ScanResult, error) {
	engine, err := NewEngine(s.cfg, s.client, s.observer, s.logger.With("domain", target.Domain))
	if err != nil {
		return nil, err
	}

	res := scanner.NewResult(target, s.Name(), s.Type())
	run, err := engine.Run(ctx, target.URL)
	if err != nil {
		return nil, err
	}

	for _, f := range DeriveFindings(run.Summary) {
		res.AddFinding(f)
	}
	res.Data["config"] = run.Config
	res.Data["summary"] = run.Summary
	if len(run.Errors) > 0 {
		res.Data["sample_errors"] = firstN(run.Errors, 10)
	}
	return res, nil
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
