package robots

import (
	"context"
	"testing"
)

func TestRule_Matches(t *testing.T) {
	cases := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/private", "/private/docs", true},
		{"/private", "/public", false},
		{"", "/anything", true},
		{"/*.pdf$", "/reports/q1.pdf", true},
		{"/*.pdf$", "/reports/q1.pdf.bak", false},
		{"/*/edit", "/pages/5/edit", true},
	}

	for _, tc := range cases {
		r := Rule{Path: tc.pattern}
		if got := r.Matches(tc.path); got != tc.want {
			t.Errorf("Rule{%q}.Matches(%q) = %v, want %v", tc.pattern, tc.path, got, tc.want)
		}
	}
}

func TestRuleSet_IsAllowed_MostSpecificWins(t *testing.T) {
	rs := RuleSet{Rules: []Rule{
		{Path: "/", Allow: false},
		{Path: "/public", Allow: true},
	}}

	if rs.IsAllowed("/public/page") != true {
		t.Error("longer Allow pattern should win over shorter Disallow")
	}
	if rs.IsAllowed("/private/page") != false {
		t.Error("/private/page should fall back to the Disallow-all rule")
	}
}

func TestRuleSet_IsAllowed_TieFavorsAllow(t *testing.T) {
	rs := RuleSet{Rules: []Rule{
		{Path: "/docs", Allow: false},
		{Path: "/docs", Allow: true},
	}}
	if !rs.IsAllowed("/docs/readme") {
		t.Error("equal-length Allow/Disallow tie should favor Allow")
	}
}

// TestFile_RulesFor_LongestPrefixIsDeterministic exercises the
// ambiguous case where two agent groups both prefix-match the
// requested user agent: the longer pattern must win on every call,
// not whichever the map happened to yield first.
func TestFile_RulesFor_LongestPrefixIsDeterministic(t *testing.T) {
	f := &File{RulesByAgent: map[string]RuleSet{
		"Googlebot":       {UserAgent: "Googlebot", Rules: []Rule{{Path: "/", Allow: true}}},
		"Googlebot-Image": {UserAgent: "Googlebot-Image", Rules: []Rule{{Path: "/", Allow: false}}},
	}}

	for i := 0; i < 50; i++ {
		rs := f.RulesFor("Googlebot-Image/1.0")
		if rs.UserAgent != "Googlebot-Image" {
			t.Fatalf("call %d: RulesFor chose %q, want the longer match %q", i, rs.UserAgent, "Googlebot-Image")
		}
	}
}

func TestFile_RulesFor_ExactMatchBeatsPrefix(t *testing.T) {
	f := &File{RulesByAgent: map[string]RuleSet{
		"bot":     {UserAgent: "bot", Rules: []Rule{{Path: "/", Allow: true}}},
		"bot/1.0": {UserAgent: "bot/1.0", Rules: []Rule{{Path: "/", Allow: false}}},
	}}
	rs := f.RulesFor("bot")
	if rs.UserAgent != "bot" {
		t.Errorf("exact match should win regardless of other prefixes, got %q", rs.UserAgent)
	}
}

func TestFile_RulesFor_FallsBackToWildcardThenAllowAll(t *testing.T) {
	f := &File{RulesByAgent: map[string]RuleSet{
		"*": {UserAgent: "*", Rules: []Rule{{Path: "/secret", Allow: false}}},
	}}
	rs := f.RulesFor("some-other-bot")
	if rs.UserAgent != "*" {
		t.Errorf("expected fallback to wildcard group, got %q", rs.UserAgent)
	}

	empty := &File{RulesByAgent: map[string]RuleSet{}}
	if !empty.IsAllowed("http://example.com/anything", "any-agent") {
		t.Error("a robots.txt with no matching group should allow everything")
	}
}

func TestParser_Parse(t *testing.T) {
	content := `
# comment line
User-agent: *
Disallow: /admin
Allow: /admin/public
Crawl-delay: 2

User-agent: Googlebot
Disallow: /no-google

Sitemap: https://example.com/sitemap.xml
`
	f := Parser{}.Parse(content, "https://example.com/robots.txt")

	star, ok := f.RulesByAgent["*"]
	if !ok {
		t.Fatal("expected a '*' group")
	}
	if len(star.Rules) != 2 {
		t.Fatalf("expected 2 rules in '*' group, got %d", len(star.Rules))
	}
	if star.CrawlDelay == nil || *star.CrawlDelay != 2 {
		t.Errorf("expected crawl-delay 2, got %v", star.CrawlDelay)
	}
	if _, ok := f.RulesByAgent["Googlebot"]; !ok {
		t.Error("expected a 'Googlebot' group")
	}
	if len(f.Sitemaps) != 1 || f.Sitemaps[0] != "https://example.com/sitemap.xml" {
		t.Errorf("unexpected sitemaps: %v", f.Sitemaps)
	}
}

func TestFile_IsAllowed(t *testing.T) {
	f := Parser{}.Parse("User-agent: *\nDisallow: /admin\nAllow: /admin/public\n", "https://example.com/robots.txt")

	if f.IsAllowed("https://example.com/admin/secret", "anybot") {
		t.Error("/admin/secret should be disallowed")
	}
	if !f.IsAllowed("https://example.com/admin/public/page", "anybot") {
		t.Error("/admin/public/page should be allowed by the more specific Allow rule")
	}
	if !f.IsAllowed("https://example.com/blog", "anybot") {
		t.Error("/blog should be allowed (no matching rule)")
	}
}

type fakeFetcher struct {
	status int
	body   string
	err    error
	calls  int
}

func (f *fakeFetcher) FetchRobotsTxt(ctx context.Context, robotsURL string) (int, string, error) {
	f.calls++
	return f.status, f.body, f.err
}

func TestChecker_FetchRobots_CachesPerHost(t *testing.T) {
	fetcher := &fakeFetcher{status: 200, body: "User-agent: *\nDisallow: /private\n"}
	c := NewChecker(fetcher)

	for i := 0; i < 3; i++ {
		f, err := c.FetchRobots(context.Background(), "https://example.com/page")
		if err != nil {
			t.Fatalf("FetchRobots error: %v", err)
		}
		if f.IsAllowed("https://example.com/private/x", "anybot") {
			t.Error("expected /private to be disallowed")
		}
	}
	if fetcher.calls != 1 {
		t.Errorf("expected robots.txt to be fetched once and cached, got %d fetches", fetcher.calls)
	}
}

func TestChecker_FetchRobots_NonOKStatusAllowsAll(t *testing.T) {
	fetcher := &fakeFetcher{status: 404}
	c := NewChecker(fetcher)

	f, err := c.FetchRobots(context.Background(), "https://example.com/page")
	if err != nil {
		t.Fatalf("FetchRobots error: %v", err)
	}
	if !f.IsAllowed("https://example.com/anything", "anybot") {
		t.Error("a missing robots.txt should allow everything")
	}
}

func TestChecker_ClearCache(t *testing.T) {
	fetcher := &fakeFetcher{status: 200, body: "User-agent: *\nDisallow: /\n"}
	c := NewChecker(fetcher)

	if _, err := c.FetchRobots(context.Background(), "https://example.com/"); err != nil {
		t.Fatalf("FetchRobots error: %v", err)
	}
	c.ClearCache()
	if _, err := c.FetchRobots(context.Background(), "https://example.com/"); err != nil {
		t.Fatalf("FetchRobots error: %v", err)
	}
	if fetcher.calls != 2 {
		t.Errorf("expected a fresh fetch after ClearCache, got %d calls", fetcher.calls)
	}
}
