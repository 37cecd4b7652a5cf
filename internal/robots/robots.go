// Package robots implements robots.txt fetching, parsing, and the
// most-specific-match compliance policy of §4.C, grounded on
// app/scraping/robots.py. temoto/robotstxt is not used here — see
// DESIGN.md for why its matching algorithm cannot reproduce the
// required effective-pattern-length tie-break.
package robots

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Rule is a single robots.txt directive.
type Rule struct {
	Path  string
	Allow bool
}

// effectiveLength is len(pattern) with trailing '*'/'$' stripped, used as
// the specificity measure in the most-specific-match tie-break.
func (r Rule) effectiveLength() int {
	return len(strings.TrimRight(r.Path, "*$"))
}

// Matches reports whether this rule applies to urlPath, supporting the
// '*' wildcard and a trailing '$' end anchor; a pattern without either is
// treated as a prefix match.
func (r Rule) Matches(urlPath string) bool {
	pattern := r.Path
	if pattern == "" {
		return true
	}

	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '*':
			b.WriteString(".*")
		case c == '$' && i == len(pattern)-1:
			b.WriteByte('$')
		case strings.ContainsRune(`\.+?{}[]()^|`, rune(c)):
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	regexPattern := b.String()
	if !strings.HasSuffix(pattern, "$") && !strings.HasSuffix(pattern, "*") {
		regexPattern += ".*"
	}

	re, err := regexp.Compile("^(?:" + regexPattern + ")")
	if err != nil {
		return strings.HasPrefix(urlPath, strings.TrimRight(pattern, "*$"))
	}
	return re.MatchString(urlPath)
}

// RuleSet holds the rules for one user-agent group.
type RuleSet struct {
	UserAgent  string
	Rules      []Rule
	CrawlDelay *float64
}

// IsAllowed applies the most-specific-match-wins policy of §4.C: the rule
// with the greatest effective pattern length decides; ties favor Allow.
func (rs RuleSet) IsAllowed(urlPath string) bool {
	var best *Rule
	bestLen := -1

	for i := range rs.Rules {
		rule := rs.Rules[i]
		if !rule.Matches(urlPath) {
			continue
		}
		length := rule.effectiveLength()
		if length > bestLen || (length == bestLen && best != nil && rule.Allow && !best.Allow) {
			best = &rs.Rules[i]
			bestLen = length
		}
	}

	if best != nil {
		return best.Allow
	}
	return true
}

// File is a parsed robots.txt document.
type File struct {
	URL          string
	RulesByAgent map[string]RuleSet
	Sitemaps     []string
	RawContent   string
}

// RulesFor resolves the rule set for userAgent: exact case-insensitive
// match, then longest case-insensitive prefix of the agent string, then
// '*', else an implicit allow-all.
func (f *File) RulesFor(userAgent string) RuleSet {
	lowerUA := strings.ToLower(userAgent)

	for pattern, rules := range f.RulesByAgent {
		if strings.ToLower(pattern) == lowerUA {
			return rules
		}
	}

	var best RuleSet
	bestLen := -1
	for pattern, rules := range f.RulesByAgent {
		lowerPattern := strings.ToLower(pattern)
		if !strings.HasPrefix(lowerUA, lowerPattern) {
			continue
		}
		if len(lowerPattern) > bestLen {
			best = rules
			bestLen = len(lowerPattern)
		}
	}
	if bestLen >= 0 {
		return best
	}

	if rules, ok := f.RulesByAgent["*"]; ok {
		return rules
	}
	return RuleSet{UserAgent: "*"}
}

// IsAllowed checks a full URL against the rules for userAgent.
func (f *File) IsAllowed(rawURL string, userAgent string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return f.RulesFor(userAgent).IsAllowed(path)
}

// CrawlDelay returns the crawl-delay directive for userAgent, if any.
func (f *File) CrawlDelay(userAgent string) *float64 {
	return f.RulesFor(userAgent).CrawlDelay
}

// Parser turns robots.txt text into a File.
type Parser struct{}

// Parse implements the directive grammar: User-agent/Disallow/Allow/
// Crawl-delay/Sitemap, '#' comments, and a new agent group starting
// whenever one or more consecutive User-agent lines are followed by rules.
func (Parser) Parse(content string, sourceURL string) *File {
	f := &File{URL: sourceURL, RawContent: content, RulesByAgent: map[string]RuleSet{}}

	var currentAgents []string
	var currentRules []Rule
	var currentDelay *float64

	save := func() {
		if len(currentAgents) == 0 || len(currentRules) == 0 {
			return
		}
		for _, agent := range currentAgents {
			rulesCopy := make([]Rule, len(currentRules))
			copy(rulesCopy, currentRules)
			f.RulesByAgent[agent] = RuleSet{UserAgent: agent, Rules: rulesCopy, CrawlDelay: currentDelay}
		}
	}

	for _, rawLine := range strings.Split(content, "\n") {
		line := rawLine
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		directive := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])

		switch directive {
		case "user-agent":
			if len(currentRules) > 0 {
				save()
				currentRules = nil
				currentDelay = nil
				currentAgents = nil
			}
			currentAgents = append(currentAgents, value)
		case "disallow":
			currentRules = append(currentRules, Rule{Path: value, Allow: false})
		case "allow":
			currentRules = append(currentRules, Rule{Path: value, Allow: true})
		case "crawl-delay":
			if d, err := strconv.ParseFloat(value, 64); err == nil {
				currentDelay = &d
			}
		case "sitemap":
			f.Sitemaps = append(f.Sitemaps, value)
		}
	}
	save()

	return f
}

// Fetcher is the minimal transport the Checker needs to retrieve
// robots.txt bodies; implemented by the fetch engine in production.
type Fetcher interface {
	FetchRobotsTxt(ctx context.Context, robotsURL string) (status int, body string, err error)
}

// Checker fetches, parses, and caches robots.txt per host for the
// lifetime of the process, per §3's "robots cache entries are
// process-lifetime" ownership rule.
type Checker struct {
	fetcher Fetcher
	parser  Parser

	mu    sync.RWMutex
	cache map[string]*File
}

// NewChecker constructs a Checker backed by fetcher.
func NewChecker(fetcher Fetcher) *Checker {
	return &Checker{fetcher: fetcher, cache: map[string]*File{}}
}

// RobotsURL derives the {scheme}://{host}[:port]/robots.txt URL for any
// URL on the site.
func RobotsURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host), nil
}

// FetchRobots returns the cached or freshly fetched File for rawURL. Any
// transport error or non-200 status caches an empty allow-all File.
func (c *Checker) FetchRobots(ctx context.Context, rawURL string) (*File, error) {
	robotsURL, err := RobotsURL(rawURL)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	if f, ok := c.cache[robotsURL]; ok {
		c.mu.RUnlock()
		return f, nil
	}
	c.mu.RUnlock()

	status, body, ferr := c.fetcher.FetchRobotsTxt(ctx, robotsURL)
	var f *File
	if ferr != nil || status != 200 {
		f = &File{URL: robotsURL, RulesByAgent: map[string]RuleSet{}}
	} else {
		f = c.parser.Parse(body, robotsURL)
	}

	c.mu.Lock()
	c.cache[robotsURL] = f
	c.mu.Unlock()

	return f, nil
}

// IsAllowed checks a URL against its site's robots.txt, returning
// (allowed, reason) — reason is populated only on a deny.
func (c *Checker) IsAllowed(ctx context.Context, rawURL string, userAgent string) (bool, string, error) {
	f, err := c.FetchRobots(ctx, rawURL)
	if err != nil {
		return true, "", err
	}
	if f.IsAllowed(rawURL, userAgent) {
		return true, "", nil
	}
	return false, fmt.Sprintf("Disallowed by robots.txt for %s", userAgent), nil
}

// ClearCache empties the process-lifetime cache (test-only reset hook).
func (c *Checker) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = map[string]*File{}
}
