package scanner

import (
	"context"
	"fmt"
	"strings"
)

// CapabilityType selects a scan capability.
type CapabilityType string

const (
	TypeHeaders             CapabilityType = "headers"
	TypeCertificateGrading  CapabilityType = "ssl_labs"
	TypeVulnerabilityDaemon CapabilityType = "zap"
	TypeLoadTest            CapabilityType = "load_test"
)

// ParseCapabilityType accepts the canonical names plus a few common aliases.
func ParseCapabilityType(s string) (CapabilityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "headers", "header":
		return TypeHeaders, nil
	case "ssl_labs", "ssllabs", "ssl", "certificate_grading":
		return TypeCertificateGrading, nil
	case "zap", "owasp_zap", "vulnerability_daemon":
		return TypeVulnerabilityDaemon, nil
	case "load_test", "loadtest", "load":
		return TypeLoadTest, nil
	}
	return "", fmt.Errorf("unknown scanner %q", s)
}

// Capability is the contract every scan type implements. The orchestrator
// depends on nothing else.
//
// Scan should honour ctx; a capability that ignores it is abandoned once the
// job deadline passes. A returned error becomes a Failed result.
type Capability interface {
	Name() string
	Type() CapabilityType
	Scan(ctx context.Context, target Target) (*ScanResult, error)
	IsAvailable() bool
	Version() string
}

// CapabilityInfo describes a registered capability.
type CapabilityInfo struct {
	Name      string         `json:"name"`
	Type      CapabilityType `json:"type"`
	Version   string         `json:"version"`
	Available bool           `json:"available"`
}
