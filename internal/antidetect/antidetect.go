// Package antidetect builds outgoing HTTP header sets for the five
// anti-detection profiles, grounded on app/scraping/antidetection.py.
package antidetect

import (
	"math/rand"
	"sync"

	"github.com/FranksOps/gofr-dig/internal/fingerprint"
)

// Profile selects the outgoing header policy and UA rotation behavior.
type Profile string

const (
	ProfileNone       Profile = "none"
	ProfileBalanced   Profile = "balanced"
	ProfileStealth    Profile = "stealth"
	ProfileCustom     Profile = "custom"
	ProfileBrowserTLS Profile = "browser_tls"
)

// Valid reports whether p is one of the five recognized profiles.
func (p Profile) Valid() bool {
	switch p {
	case ProfileNone, ProfileBalanced, ProfileStealth, ProfileCustom, ProfileBrowserTLS:
		return true
	}
	return false
}

// userAgents is the fixed pool of real-browser UA strings rotated over,
// transcribed verbatim from the origin's USER_AGENTS list.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

const (
	acceptHTML     = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"
	acceptLanguage = "en-US,en;q=0.9"
	acceptEncoding = "gzip, deflate, br"
)

// Manager holds process-wide anti-detection configuration (process-wide
// state per §3 lifecycle rules, mutated only by the configuration tool).
// UA rotation is a pure function of a seeded PRNG, per §4.B, so Manager
// carries its own *rand.Rand rather than relying on crypto/rand, which
// cannot be reproduced under a fixed seed.
type Manager struct {
	mu                sync.RWMutex
	profile           Profile
	customHeaders     map[string]string
	customUserAgent   string
	rng               *rand.Rand
	currentUserAgent  string
	hasCurrentUA      bool
}

// NewManager constructs a Manager seeded for deterministic UA rotation.
func NewManager(seed int64) *Manager {
	return &Manager{
		profile: ProfileBalanced,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Configure replaces the profile and custom settings atomically.
func (m *Manager) Configure(profile Profile, customHeaders map[string]string, customUserAgent string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = profile
	m.customHeaders = customHeaders
	m.customUserAgent = customUserAgent
}

// Profile returns the current profile.
func (m *Manager) Profile() Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profile
}

// UserAgent returns a User-Agent for the current profile. If rotate is
// true, a new UA is drawn from the seeded PRNG; otherwise a sticky UA is
// reused for the process/session once established.
func (m *Manager) UserAgent(rotate bool) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userAgentLocked(rotate)
}

func (m *Manager) userAgentLocked(rotate bool) string {
	switch m.profile {
	case ProfileNone:
		return "gofr-dig/1.0"
	case ProfileCustom:
		if m.customUserAgent != "" {
			return m.customUserAgent
		}
	}

	if rotate || !m.hasCurrentUA {
		m.currentUserAgent = userAgents[m.rng.Intn(len(userAgents))]
		m.hasCurrentUA = true
	}
	return m.currentUserAgent
}

// Headers returns the HTTP header set for the current profile.
func (m *Manager) Headers(rotateUserAgent bool) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.profile {
	case ProfileNone:
		return map[string]string{"User-Agent": m.userAgentLocked(false)}

	case ProfileCustom:
		headers := map[string]string{"User-Agent": m.userAgentLocked(false)}
		for k, v := range m.customHeaders {
			headers[k] = v
		}
		return headers

	case ProfileBalanced, ProfileBrowserTLS:
		return map[string]string{
			"User-Agent":      m.userAgentLocked(rotateUserAgent),
			"Accept":          acceptHTML,
			"Accept-Language": acceptLanguage,
			"Accept-Encoding": acceptEncoding,
		}

	default: // ProfileStealth
		return map[string]string{
			"User-Agent":               m.userAgentLocked(rotateUserAgent),
			"Accept":                   acceptHTML,
			"Accept-Language":          acceptLanguage,
			"Accept-Encoding":          acceptEncoding,
			"Cache-Control":            "max-age=0",
			"Sec-Ch-Ua":                `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
			"Sec-Ch-Ua-Mobile":         "?0",
			"Sec-Ch-Ua-Platform":       `"Windows"`,
			"Sec-Fetch-Dest":           "document",
			"Sec-Fetch-Mode":           "navigate",
			"Sec-Fetch-Site":           "none",
			"Sec-Fetch-User":           "?1",
			"Upgrade-Insecure-Requests": "1",
			"Connection":               "keep-alive",
		}
	}
}

// MinimalHeaders returns the minimal header set used for robots.txt
// fetches, matching the origin's AntiDetectionManager(NONE) usage.
func MinimalHeaders() map[string]string {
	return map[string]string{"User-Agent": "gofr-dig/1.0"}
}

// browserFingerprints is the pool Stealth rotates a TLS ClientHello
// identity from, drawn with the same seeded rng as UserAgent so a given
// seed reproduces the same browser/TLS pairing across runs.
var browserFingerprints = []fingerprint.Profile{
	fingerprint.ProfileChrome,
	fingerprint.ProfileFirefox,
	fingerprint.ProfileSafari,
}

// TLSFingerprint returns the ClientHello profile that should accompany
// the current header profile: BrowserTLS always uses a randomized uTLS
// identity, Stealth rotates among concrete browser identities via the
// Manager's own seeded rng, and every other profile (none, balanced,
// custom) leaves the handshake as plain Go.
func (m *Manager) TLSFingerprint() fingerprint.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.profile {
	case ProfileBrowserTLS:
		return fingerprint.ProfileRandom
	case ProfileStealth:
		return browserFingerprints[m.rng.Intn(len(browserFingerprints))]
	default:
		return fingerprint.ProfileGo
	}
}
