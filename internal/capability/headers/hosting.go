package headers

import (
	"context"
	"net/netip"
)

// Provider is a hosting provider name.
type Provider string

const (
	ProviderAWS     Provider = "aws"
	ProviderAzure   Provider = "azure"
	ProviderGCP     Provider = "gcp"
	ProviderOther   Provider = "other"
	ProviderPrivate Provider = "private"
	ProviderUnknown Provider = "unknown"
)

// Hosting is where the target's addresses live.
type Hosting struct {
	Addresses []string `json:"addresses"`
	Provider  Provider `json:"provider"`
}

// Resolver looks up the addresses of a host.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// HostingDetector maps addresses to cloud providers using published ranges.
// The table is a coarse subset; addresses outside it report ProviderOther.
type HostingDetector struct {
	ranges map[Provider][]netip.Prefix
}

// NewHostingDetector loads the built-in ranges.
func NewHostingDetector() *HostingDetector {
	return &HostingDetector{
		ranges: map[Provider][]netip.Prefix{
			ProviderAWS: mustPrefixes(
				"3.0.0.0/8", "13.32.0.0/14", "18.0.0.0/8", "34.192.0.0/10",
				"35.156.0.0/14", "52.0.0.0/10", "54.0.0.0/8", "99.77.0.0/16",
			),
			ProviderAzure: mustPrefixes(
				"13.64.0.0/11", "20.0.0.0/8", "40.64.0.0/10", "51.104.0.0/14",
				"52.224.0.0/11", "104.40.0.0/13", "137.116.0.0/14",
			),
			ProviderGCP: mustPrefixes(
				"8.34.208.0/20", "34.64.0.0/10", "35.184.0.0/13", "35.192.0.0/12",
				"35.208.0.0/12", "35.224.0.0/12", "104.196.0.0/14", "130.211.0.0/16",
			),
		},
	}
}

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		out = append(out, netip.MustParsePrefix(c))
	}
	return out
}

// Classify returns the provider of one address.
func (d *HostingDetector) Classify(addr netip.Addr) Provider {
	addr = addr.Unmap()
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() {
		return ProviderPrivate
	}
	// Fixed order so overlapping tables resolve the same way every time.
	for _, p := range []Provider{ProviderAWS, ProviderAzure, ProviderGCP} {
		for _, prefix := range d.ranges[p] {
			if prefix.Contains(addr) {
				return p
			}
		}
	}
	return ProviderOther
}

// Detect classifies every address and reports the first non-other provider.
func (d *HostingDetector) Detect(addrs []netip.Addr) Hosting {
	h := Hosting{Provider: ProviderUnknown, Addresses: make([]string, 0, len(addrs))}
	for _, a := range addrs {
		h.Addresses = append(h.Addresses, a.String())
		p := d.Classify(a)
		if h.Provider == ProviderUnknown || h.Provider == ProviderOther {
			h.Provider = p
		}
	}
	return h
}
