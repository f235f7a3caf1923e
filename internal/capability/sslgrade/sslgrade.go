// Package sslgrade grades a target's TLS deployment through an SSL Labs
// compatible assessment API. The assessment is asynchronous on the remote
// side, so the capability starts it and polls until it settles.
package sslgrade

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/httpclient"
	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/scanner"
)

// Version of the certificate grading capability.
const Version = "1.0.0"

// DefaultBaseURL is the public SSL Labs v3 endpoint.
const DefaultBaseURL = "https://api.ssllabs.com/api/v3"

// ErrAssessment is returned when the remote assessment ends in ERROR.
var ErrAssessment = errors.New("sslgrade: assessment failed")

// Assessment statuses reported by the API.
const (
	StatusDNS        = "DNS"
	StatusInProgress = "IN_PROGRESS"
	StatusReady      = "READY"
	StatusError      = "ERROR"
)

// JSONGetter fetches and decodes a JSON document.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, v any) error
}

// Config controls the polling loop.
type Config struct {
	BaseURL      string
	PollInterval time.Duration
	MaxWait      time.Duration
}

// Host is the subset of the API's host report that is used.
type Host struct {
	Host          string     `json:"host"`
	Status        string     `json:"status"`
	StatusMessage string     `json:"statusMessage,omitempty"`
	Endpoints     []Endpoint `json:"endpoints"`
}

// Endpoint is one assessed IP address.
type Endpoint struct {
	IPAddress     string `json:"ipAddress"`
	ServerName    string `json:"serverName,omitempty"`
	StatusMessage string `json:"statusMessage"`
	Grade         string `json:"grade"`
	HasWarnings   bool   `json:"hasWarnings"`
}

// Scanner is the certificate grading capability.
type Scanner struct {
	cfg    Config
	client JSONGetter
	logger *zap.SugaredLogger
}

var _ scanner.Capability = (*Scanner)(nil)

// New returns the capability, filling unset config with defaults.
func New(cfg Config, client JSONGetter, logger *zap.SugaredLogger) *Scanner {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 5 * time.Minute
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Scanner{cfg: cfg, client: client, logger: logger}
}

func (s *Scanner) Name() string                 { return "SSL Labs" }
func (s *Scanner) Type() scanner.CapabilityType { return scanner.TypeCertificateGrading }
func (s *Scanner) IsAvailable() bool            { return s.client != nil }
func (s *Scanner) Version() string              { return Version }

// Scan starts a fresh assessment of target.Domain and waits for it.
func (s *Scanner) Scan(ctx context.Context, target scanner.Target) (*scanner.ScanResult, error) {
	host, err := s.assess(ctx, target.Domain)
	if err != nil {
		return nil, err
	}

	res := scanner.NewResult(target, s.Name(), s.Type())
	grades := make(map[string]string, len(host.Endpoints))
	for _, ep := range host.Endpoints {
		grades[ep.IPAddress] = ep.Grade
		if f, ok := gradeFinding(ep); ok {
			res.AddFinding(f)
		}
	}
	res.Data["grades"] = grades
	res.Data["endpoints"] = host.Endpoints
	return res, nil
}

func (s *Scanner) assess(ctx context.Context, domain string) (*Host, error) {
	deadline := time.Now().Add(s.cfg.MaxWait)
	startNew := true
	for {
		var host Host
		if err := s.client.GetJSON(ctx, s.analyzeURL(domain, startNew), &host); err != nil {
			return nil, fmt.Errorf("analyze %s: %w", domain, err)
		}
		startNew = false

		switch host.Status {
		case StatusReady:
			return &host, nil
		case StatusError:
			return nil, fmt.Errorf("%w: %s", ErrAssessment, host.StatusMessage)
		}

		s.logger.Debugw("Waiting for SSL assessment",
			"domain", domain,
			"status", host.Status,
		)
		if time.Now().Add(s.cfg.PollInterval).After(deadline) {
			return nil, fmt.Errorf("analyze %s: still %s after %s", domain, host.Status, s.cfg.MaxWait)
		}
		if err := httpclient.Sleep(ctx, s.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
}

func (s *Scanner) analyzeURL(domain string, startNew bool) string {
	q := url.Values{}
	q.Set("host", domain)
	q.Set("all", "done")
	if startNew {
		q.Set("startNew", "on")
	}
	return s.cfg.BaseURL + "/analyze?" + q.Encode()
}

// GradeSeverity maps an SSL Labs letter grade to a finding severity.
func GradeSeverity(grade string) scanner.Severity {
	switch strings.ToUpper(grade) {
	case "A+", "A", "A-":
		return scanner.SeverityInfo
	case "B":
		return scanner.SeverityLow
	case "C":
		return scanner.SeverityMedium
	case "D", "E":
		return scanner.SeverityHigh
	default:
		// F, T (untrusted) and M (name mismatch).
		return scanner.SeverityCritical
	}
}

func gradeFinding(ep Endpoint) (scanner.Finding, bool) {
	if ep.Grade == "" {
		return scanner.Finding{}, false
	}
	sev := GradeSeverity(ep.Grade)
	f := scanner.Finding{
		ID:          "SSL-GRADE",
		Name:        fmt.Sprintf("TLS Grade %s", ep.Grade),
		Severity:    sev,
		Category:    "TLS",
		Description: fmt.Sprintf("Endpoint %s received grade %s.", ep.IPAddress, ep.Grade),
		Evidence:    fmt.Sprintf("grade=%s warnings=%t", ep.Grade, ep.HasWarnings),
	}
	if sev != scanner.SeverityInfo {
		f.Remedy = "Disable legacy protocols and weak ciphers and serve a complete, trusted certificate chain."
	}
	return f, true
}
