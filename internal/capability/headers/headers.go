// Package headers checks a target's HTTP response for missing security
// headers and for version-revealing server banners.
package headers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/scanner"
)

// Version of the headers capability.
const Version = "1.0.0"

// Doer sends an HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type headerRule struct {
	header      string
	id          string
	name        string
	severity    scanner.Severity
	description string
	remedy      string
	httpsOnly   bool
}

var rules = []headerRule{
	{
		header:      "Strict-Transport-Security",
		id:          "HEADERS-MISSING-HSTS",
		name:        "Missing HTTP Strict Transport Security",
		severity:    scanner.SeverityHigh,
		description: "Browsers may be downgraded to plain HTTP on later visits.",
		remedy:      "Send Strict-Transport-Security: max-age=31536000; includeSubDomains.",
		httpsOnly:   true,
	},
	{
		header:      "Content-Security-Policy",
		id:          "HEADERS-MISSING-CSP",
		name:        "Missing Content Security Policy",
		severity:    scanner.SeverityMedium,
		description: "Without a CSP the browser will run any injected script.",
		remedy:      "Define a Content-Security-Policy restricting script and object sources.",
	},
	{
		header:      "X-Frame-Options",
		id:          "HEADERS-MISSING-XFO",
		name:        "Missing Clickjacking Protection",
		severity:    scanner.SeverityMedium,
		description: "The page can be framed by another origin.",
		remedy:      "Send X-Frame-Options: DENY or a frame-ancestors CSP directive.",
	},
	{
		header:      "X-Content-Type-Options",
		id:          "HEADERS-MISSING-XCTO",
		name:        "Missing MIME Sniffing Protection",
		severity:    scanner.SeverityLow,
		description: "Browsers may sniff responses into an executable content type.",
		remedy:      "Send X-Content-Type-Options: nosniff.",
	},
	{
		header:      "Referrer-Policy",
		id:          "HEADERS-MISSING-REFERRER-POLICY",
		name:        "Missing Referrer Policy",
		severity:    scanner.SeverityLow,
		description: "Full URLs may leak to third parties through the Referer header.",
		remedy:      "Send Referrer-Policy: strict-origin-when-cross-origin.",
	},
	{
		header:      "Permissions-Policy",
		id:          "HEADERS-MISSING-PERMISSIONS-POLICY",
		name:        "Missing Permissions Policy",
		severity:    scanner.SeverityLow,
		description: "Powerful browser features are not restricted for this origin.",
		remedy:      "Send a Permissions-Policy that disables unused features.",
	},
}

var bannerHeaders = []string{"Server", "X-Powered-By", "X-AspNet-Version"}

// Scanner is the headers capability.
type Scanner struct {
	client   Doer
	resolver Resolver
	fp       *Fingerprinter
	hosting  *HostingDetector
	logger   *zap.SugaredLogger
}

var _ scanner.Capability = (*Scanner)(nil)

// New returns the capability. resolver may be nil to skip hosting detection.
func New(client Doer, resolver Resolver, logger *zap.SugaredLogger) *Scanner {
	return &Scanner{
		client:   client,
		resolver: resolver,
		fp:       NewFingerprinter(),
		hosting:  NewHostingDetector(),
		logger:   logger,
	}
}

func (s *Scanner) Name() string                 { return "Security Headers" }
func (s *Scanner) Type() scanner.CapabilityType { return scanner.TypeHeaders }
func (s *Scanner) IsAvailable() bool            { return s.client != nil }
func (s *Scanner) Version() string              { return Version }

// Scan fetches target.URL once and evaluates its response headers.
func (s *Scanner) Scan(ctx context.Context, target scanner.Target) (*scanner.ScanResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target.URL, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()

	final := req.URL
	if resp.Request != nil {
		final = resp.Request.URL
	}
	res := scanner.NewResult(target, s.Name(), s.Type())
	https := strings.EqualFold(final.Scheme, "https")

	present := make(map[string]string)
	for _, r := range rules {
		if v := resp.Header.Get(r.header); v != "" {
			present[r.header] = v
			continue
		}
		if r.httpsOnly && !https {
			continue
		}
		res.AddFinding(scanner.Finding{
			ID:          r.id,
			Name:        r.name,
			Severity:    r.severity,
			Category:    "Security Headers",
			Description: r.description,
			Remedy:      r.remedy,
			Evidence:    fmt.Sprintf("Header %s not present in response from %s", r.header, final),
		})
	}

	var banners []ServerFingerprint
	for _, h := range bannerHeaders {
		v := resp.Header.Get(h)
		if v == "" {
			continue
		}
		fp := s.fp.Identify(h, v)
		banners = append(banners, fp)
		if fp.Version == "" {
			continue
		}
		res.AddFinding(scanner.Finding{
			ID:          "HEADERS-VERSION-DISCLOSURE",
			Name:        "Server Version Disclosure",
			Severity:    scanner.SeverityLow,
			Category:    "Information Disclosure",
			Description: fmt.Sprintf("The %s header reveals %s version %s.", h, fp.Product, fp.Version),
			Remedy:      "Strip version details from banner headers.",
			Evidence:    fmt.Sprintf("%s: %s", h, v),
		})
	}

	res.Data["status_code"] = resp.StatusCode
	res.Data["final_url"] = final.String()
	res.Data["security_headers"] = present
	if len(banners) > 0 {
		res.Data["banners"] = banners
	}
	if hosting, ok := s.detectHosting(ctx, final.Hostname()); ok {
		res.Data["hosting"] = hosting
	}
	return res, nil
}

func (s *Scanner) detectHosting(ctx context.Context, host string) (Hosting, bool) {
	if s.resolver == nil || host == "" {
		return Hosting{}, false
	}
	addrs, err := s.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil || len(addrs) == 0 {
		s.logger.Debugw("Hosting lookup failed", "host", host, "error", err)
		return Hosting{}, false
	}
	return s.hosting.Detect(addrs), true
}
