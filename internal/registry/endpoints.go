package registry

import (
	"net"
	"net/url"
	"strings"
)

const (
	// Cross-chain aggregator endpoints.
	FusionBaseURL        = "https://api.1inch.dev/fusion-plus"
	FusionOrderStatusURL = "https://api.1inch.dev/fusion-plus/orders/v1.0/order/status"

	OneClickBaseURL        = "https://1click.chaindefuser.com"
	OneClickOrderStatusURL = "https://1click.chaindefuser.com/v0/status"
)

func OrderStatusURL(provider string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "fusion":
		return FusionOrderStatusURL, true
	case "oneclick":
		return OneClickOrderStatusURL, true
	default:
		return "", false
	}
}

// IsAllowedOrderStatusURL gates the endpoint an order poller may hit. An
// empty override means the provider default and always passes. Loopback
// hosts pass over plain http so local stubs can serve tests and
// development; anything else must be https and match the provider's
// canonical endpoint on host, port, and path.
func IsAllowedOrderStatusURL(provider, endpoint string) bool {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return true
	}
	candidate, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(candidate.Hostname()) == "" {
		return false
	}

	if isLoopbackHost(candidate.Hostname()) {
		switch strings.ToLower(candidate.Scheme) {
		case "", "http", "https":
			return true
		}
		return false
	}

	canonicalRaw, ok := OrderStatusURL(provider)
	if !ok {
		return false
	}
	canonical, err := url.Parse(canonicalRaw)
	if err != nil {
		return false
	}
	return strings.EqualFold(candidate.Scheme, "https") &&
		strings.EqualFold(candidate.Hostname(), canonical.Hostname()) &&
		effectivePort(candidate) == effectivePort(canonical) &&
		pathWithinRoot(candidate.Path, canonical.Path)
}

func isLoopbackHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

func effectivePort(u *url.URL) string {
	if port := u.Port(); port != "" {
		return port
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

// pathWithinRoot accepts the canonical path itself or anything below it.
// Matching stops at segment boundaries, so /v0/status does not admit
// /v0/status-batch.
func pathWithinRoot(candidate, root string) bool {
	c := cleanURLPath(candidate)
	r := cleanURLPath(root)
	if r == "/" {
		return true
	}
	return c == r || strings.HasPrefix(c, r+"/")
}

func cleanURLPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "/"
	}
	return p
}
