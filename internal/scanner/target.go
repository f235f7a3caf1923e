package scanner

import (
	"strings"
)

// Target identifies the domain a job runs against.
type Target struct {
	Domain string `json:"domain"`
	URL    string `json:"url"`
}

// NewTarget builds a target from a bare domain or a URL. Bare domains are
// scanned over https.
func NewTarget(domain string) Target {
	domain = strings.TrimSpace(domain)
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		host := strings.TrimPrefix(strings.TrimPrefix(domain, "https://"), "http://")
		host = strings.SplitN(host, "/", 2)[0]
		return Target{Domain: host, URL: strings.TrimRight(domain, "/")}
	}
	return Target{Domain: domain, URL: "https://" + domain}
}

// ScanJob pairs a target with one capability. It is never mutated after
// expansion.
type ScanJob struct {
	Target Target
	Type   CapabilityType
}

// expandJobs returns the domains × capabilities product, grouped by domain
// in input order with capability order preserved inside each group.
func expandJobs(targets []Target, types []CapabilityType) [][]ScanJob {
	groups := make([][]ScanJob, 0, len(targets))
	for _, t := range targets {
		jobs := make([]ScanJob, 0, len(types))
		for _, typ := range types {
			jobs = append(jobs, ScanJob{Target: t, Type: typ})
		}
		groups = append(groups, jobs)
	}
	return groups
}
