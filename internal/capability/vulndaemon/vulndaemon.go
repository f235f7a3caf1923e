// Package vulndaemon drives a running OWASP ZAP daemon through its JSON API:
// spider the target, actively scan it, then collect the raised alerts.
package vulndaemon

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/httpclient"
	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/scanner"
)

// Version of the vulnerability daemon capability.
const Version = "1.0.0"

// JSONGetter fetches and decodes a JSON document.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, v any) error
}

// Config points at the daemon.
type Config struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	MaxWait      time.Duration
	ActiveScan   bool
}

// Alert is one raised ZAP alert.
type Alert struct {
	PluginID    string `json:"pluginId"`
	Name        string `json:"alert"`
	Risk        string `json:"risk"`
	Confidence  string `json:"confidence"`
	URL         string `json:"url"`
	Param       string `json:"param,omitempty"`
	Evidence    string `json:"evidence,omitempty"`
	Description string `json:"description"`
	Solution    string `json:"solution"`
	CWEID       string `json:"cweid,omitempty"`
}

type scanResponse struct {
	Scan string `json:"scan"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type alertsResponse struct {
	Alerts []Alert `json:"alerts"`
}

type versionResponse struct {
	Version string `json:"version"`
}

// Scanner is the vulnerability daemon capability.
type Scanner struct {
	cfg    Config
	client JSONGetter
	logger *zap.SugaredLogger
}

var _ scanner.Capability = (*Scanner)(nil)

// New returns the capability, filling unset config with defaults.
func New(cfg Config, client JSONGetter, logger *zap.SugaredLogger) *Scanner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 30 * time.Minute
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Scanner{cfg: cfg, client: client, logger: logger}
}

func (s *Scanner) Name() string                 { return "OWASP ZAP" }
func (s *Scanner) Type() scanner.CapabilityType { return scanner.TypeVulnerabilityDaemon }
func (s *Scanner) Version() string              { return Version }

// IsAvailable pings the daemon's version endpoint.
func (s *Scanner) IsAvailable() bool {
	if s.client == nil || s.cfg.BaseURL == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.DaemonVersion(ctx)
	return err == nil
}

// DaemonVersion returns the version reported by the daemon.
func (s *Scanner) DaemonVersion(ctx context.Context) (string, error) {
	var v versionResponse
	if err := s.client.GetJSON(ctx, s.endpoint("core/view/version", nil), &v); err != nil {
		return "", err
	}
	return v.Version, nil
}

// Scan spiders and, when enabled, actively scans target.URL.
func (s *Scanner) Scan(ctx context.Context, target scanner.Target) (*scanner.ScanResult, error) {
	log := s.logger.With("domain", target.Domain)

	spiderID, err := s.start(ctx, "spider", target.URL)
	if err != nil {
		return nil, err
	}
	if err := s.waitFor(ctx, "spider", spiderID); err != nil {
		return nil, err
	}
	log.Debugw("Spider finished", "scan_id", spiderID)

	if s.cfg.ActiveScan {
		ascanID, err := s.start(ctx, "ascan", target.URL)
		if err != nil {
			return nil, err
		}
		if err := s.waitFor(ctx, "ascan", ascanID); err != nil {
			return nil, err
		}
		log.Debugw("Active scan finished", "scan_id", ascanID)
	}

	var alerts alertsResponse
	if err := s.client.GetJSON(ctx, s.endpoint("core/view/alerts", url.Values{"baseurl": {target.URL}}), &alerts); err != nil {
		return nil, fmt.Errorf("fetch alerts: %w", err)
	}

	res := scanner.NewResult(target, s.Name(), s.Type())
	for _, f := range alertFindings(alerts.Alerts) {
		res.AddFinding(f)
	}
	res.Data["alert_count"] = len(alerts.Alerts)
	return res, nil
}

func (s *Scanner) start(ctx context.Context, component, targetURL string) (string, error) {
	params := url.Values{"url": {targetURL}}
	if component == "ascan" {
		params.Set("recurse", "true")
	}
	var resp scanResponse
	if err := s.client.GetJSON(ctx, s.endpoint(component+"/action/scan", params), &resp); err != nil {
		return "", fmt.Errorf("start %s: %w", component, err)
	}
	return resp.Scan, nil
}

// waitFor polls the component's status until it reports 100 percent.
func (s *Scanner) waitFor(ctx context.Context, component, scanID string) error {
	deadline := time.Now().Add(s.cfg.MaxWait)
	for {
		var st statusResponse
		if err := s.client.GetJSON(ctx, s.endpoint(component+"/view/status", url.Values{"scanId": {scanID}}), &st); err != nil {
			return fmt.Errorf("%s status: %w", component, err)
		}
		pct, err := strconv.Atoi(st.Status)
		if err != nil {
			return fmt.Errorf("%s status: unexpected value %q", component, st.Status)
		}
		if pct >= 100 {
			return nil
		}
		if time.Now().Add(s.cfg.PollInterval).After(deadline) {
			return fmt.Errorf("%s still at %d%% after %s", component, pct, s.cfg.MaxWait)
		}
		if err := httpclient.Sleep(ctx, s.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func (s *Scanner) endpoint(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	if s.cfg.APIKey != "" {
		params.Set("apikey", s.cfg.APIKey)
	}
	u := s.cfg.BaseURL + "/JSON/" + path + "/"
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// RiskSeverity maps a ZAP risk label to a finding severity.
func RiskSeverity(risk string) scanner.Severity {
	switch strings.ToLower(risk) {
	case "high":
		return scanner.SeverityHigh
	case "medium":
		return scanner.SeverityMedium
	case "low":
		return scanner.SeverityLow
	default:
		return scanner.SeverityInfo
	}
}

// alertFindings folds alerts of the same rule into one finding.
func alertFindings(alerts []Alert) []scanner.Finding {
	type group struct {
		first Alert
		urls  int
	}
	groups := make(map[string]*group)
	var order []string
	for _, a := range alerts {
		key := a.PluginID + "|" + a.Name
		g, ok := groups[key]
		if !ok {
			g = &group{first: a}
			groups[key] = g
			order = append(order, key)
		}
		g.urls++
	}

	findings := make([]scanner.Finding, 0, len(order))
	for _, key := range order {
		g := groups[key]
		evidence := fmt.Sprintf("%s (%d occurrence(s))", g.first.URL, g.urls)
		if g.first.Evidence != "" {
			evidence = fmt.Sprintf("%s: %s", evidence, g.first.Evidence)
		}
		findings = append(findings, scanner.Finding{
			ID:          "ZAP-" + g.first.PluginID,
			Name:        g.first.Name,
			Severity:    RiskSeverity(g.first.Risk),
			Category:    "Vulnerability",
			Description: g.first.Description,
			Remedy:      g.first.Solution,
			Evidence:    evidence,
		})
	}
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity.Score() > findings[j].Severity.Score()
	})
	return findings
}
