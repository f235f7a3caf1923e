package headers

import (
	"regexp"
	"strings"
)

// ServerFingerprint is what a banner header gives away about the stack.
type ServerFingerprint struct {
	Header  string `json:"header"`
	Banner  string `json:"banner"`
	Product string `json:"product,omitempty"`
	Version string `json:"version,omitempty"`
	OS      string `json:"os,omitempty"`
}

// Fingerprinter identifies products from Server and X-Powered-By banners.
type Fingerprinter struct {
	signatures []signature
}

type signature struct {
	pattern *regexp.Regexp
	product string
}

// NewFingerprinter creates a fingerprinter with the built-in signatures.
func NewFingerprinter() *Fingerprinter {
	f := &Fingerprinter{}
	f.loadSignatures()
	return f
}

func (f *Fingerprinter) loadSignatures() {
	// The first capture group, when present, is the version.
	f.signatures = []signature{
		{regexp.MustCompile(`(?i)Apache[/ ](\d+\.\d+(?:\.\d+)?)`), "Apache"},
		{regexp.MustCompile(`(?i)nginx[/ ](\d+\.\d+(?:\.\d+)?)`), "nginx"},
		{regexp.MustCompile(`(?i)Microsoft-IIS/(\d+\.\d+)`), "IIS"},
		{regexp.MustCompile(`(?i)LiteSpeed[/ ]?(\d+\.\d+(?:\.\d+)?)?`), "LiteSpeed"},
		{regexp.MustCompile(`(?i)openresty[/ ](\d+\.\d+(?:\.\d+)*)`), "OpenResty"},
		{regexp.MustCompile(`(?i)Jetty\((\d+\.\d+(?:\.\d+)?)`), "Jetty"},
		{regexp.MustCompile(`(?i)Tomcat[/ ](\d+\.\d+(?:\.\d+)?)`), "Tomcat"},
		{regexp.MustCompile(`(?i)PHP/(\d+\.\d+(?:\.\d+)?)`), "PHP"},
		{regexp.MustCompile(`(?i)ASP\.NET(?:[/ ](\d+\.\d+(?:\.\d+)?))?`), "ASP.NET"},
		{regexp.MustCompile(`(?i)Express`), "Express"},
		{regexp.MustCompile(`(?i)cloudflare`), "Cloudflare"},
		{regexp.MustCompile(`(?i)^gws$`), "Google Web Server"},
	}
}

// Identify matches one banner. The product is empty when nothing matches.
func (f *Fingerprinter) Identify(header, banner string) ServerFingerprint {
	fp := ServerFingerprint{Header: header, Banner: banner, OS: identifyOS(banner)}
	for _, sig := range f.signatures {
		m := sig.pattern.FindStringSubmatch(banner)
		if m == nil {
			continue
		}
		fp.Product = sig.product
		if len(m) > 1 {
			fp.Version = m[1]
		}
		return fp
	}
	return fp
}

func identifyOS(banner string) string {
	b := strings.ToLower(banner)
	switch {
	case strings.Contains(b, "win32"), strings.Contains(b, "win64"), strings.Contains(b, "microsoft"):
		return "Windows"
	case strings.Contains(b, "ubuntu"), strings.Contains(b, "debian"), strings.Contains(b, "centos"),
		strings.Contains(b, "red hat"), strings.Contains(b, "fedora"):
		return "Linux"
	case strings.Contains(b, "freebsd"):
		return "FreeBSD"
	case strings.Contains(b, "darwin"):
		return "macOS"
	}
	return ""
}
