// Package urlvalidate implements SSRF-safe URL admission: scheme check,
// DNS resolution, and private/loopback/metadata blocklists, grounded on
// app/scraping/url_validator.py.
package urlvalidate

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"github.com/FranksOps/gofr-dig/internal/apperr"
)

// blockedHostnames mirrors the origin's fixed metadata-endpoint blocklist.
var blockedHostnames = map[string]bool{
	"metadata.google.internal": true,
	"metadata.google.com":      true,
}

// blockedPrefixes are the CIDR ranges disallowed for resolved addresses,
// covering private/loopback/link-local/metadata space for both IPv4 and
// IPv6, including IPv4-mapped IPv6 forms (handled by normalizing via
// netip.Addr.Unmap before the membership check).
var blockedPrefixes = mustParsePrefixes(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParsePrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p := netip.MustParsePrefix(c)
		out = append(out, p)
	}
	return out
}

// Resolver abstracts hostname-to-address resolution so tests can stub it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

type netResolver struct{}

func (netResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	return net.DefaultResolver.LookupHost(ctx, host)
}

// Validator admits or rejects URLs per §4.A. AllowPrivate is the
// GOFR_DIG_ALLOW_PRIVATE_URLS testing-only opt-out.
type Validator struct {
	Resolver     Resolver
	AllowPrivate bool
}

// New returns a Validator using the real DNS resolver.
func New(allowPrivate bool) *Validator {
	return &Validator{Resolver: netResolver{}, AllowPrivate: allowPrivate}
}

// Result carries the admission outcome. ResolvedIP is the first resolved
// address of an admitted URL (empty when AllowPrivate skips resolution);
// a rejected URL yields no Result, and an SSRF_BLOCKED error carries the
// offending address in its resolved_ip detail instead.
type Result struct {
	Host       string
	ResolvedIP string
}

// Validate admits only http/https URLs whose resolved addresses are all
// outside the blocked ranges. On success it returns the normalized host.
func (v *Validator) Validate(ctx context.Context, rawURL string) (*Result, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperr.New(apperr.CodeInvalidURL, fmt.Sprintf("invalid URL: %v", err), map[string]any{"url": rawURL})
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, apperr.New(apperr.CodeInvalidURL, fmt.Sprintf("unsupported scheme %q", scheme), map[string]any{"url": rawURL})
	}

	host := parsed.Hostname()
	if host == "" {
		return nil, apperr.New(apperr.CodeInvalidURL, "URL has no host", map[string]any{"url": rawURL})
	}

	if v.AllowPrivate {
		return &Result{Host: host}, nil
	}

	lowerHost := strings.ToLower(host)
	if blockedHostnames[lowerHost] {
		return nil, apperr.New(apperr.CodeInvalidURL, fmt.Sprintf("host %q is blocked", host), map[string]any{"url": rawURL, "host": host})
	}

	addrs, err := v.Resolver.LookupHost(ctx, host)
	if err != nil || len(addrs) == 0 {
		return nil, apperr.New(apperr.CodeUnresolvableHost, fmt.Sprintf("could not resolve host %q", host), map[string]any{"url": rawURL, "host": host})
	}

	for _, a := range addrs {
		ip, perr := netip.ParseAddr(a)
		if perr != nil {
			continue
		}
		unmapped := ip.Unmap()
		for _, prefix := range blockedPrefixes {
			if prefix.Contains(unmapped) {
				return nil, apperr.New(apperr.CodeSSRFBlocked, fmt.Sprintf("resolved address %s is private/reserved", a), map[string]any{"url": rawURL, "resolved_ip": a})
			}
		}
	}

	return &Result{Host: host, ResolvedIP: addrs[0]}, nil
}
