package newsparser

import (
	"strings"
	"testing"
)

func scmpPage(url string, depth int, body string) PageInput {
	return PageInput{URL: url, Text: body, Depth: depth}
}

func TestParse_RequiresStartURL(t *testing.T) {
	_, err := Parse(CrawlInput{})
	if err == nil {
		t.Fatalf("expected error for missing start_url")
	}
}

func TestParse_SingleStoryExplicitDate(t *testing.T) {
	body := strings.Join([]string{
		"Business",
		"Markets rally as rate cut bets grow",
		"Investors price in three cuts this year",
		"13 Feb 2026 - 10:15PM",
		"Jane Smith",
		"Traders have grown more confident.",
		"42",
	}, "\n")

	feed, err := Parse(CrawlInput{
		StartURL:          "https://example.com",
		CrawlTimeUTC:      "2026-02-14T00:00:00Z",
		SourceProfileName: "scmp",
		Pages:             []PageInput{scmpPage("https://example.com", 0, body)},
	})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(feed.Stories) != 1 {
		t.Fatalf("expected 1 story, got %d: %+v", len(feed.Stories), feed.Stories)
	}

	s := feed.Stories[0]
	if s.Section != "Business" {
		t.Errorf("expected section Business, got %q", s.Section)
	}
	if !strings.Contains(s.Headline, "Markets rally") {
		t.Errorf("unexpected headline: %q", s.Headline)
	}
	if s.Subheadline == "" {
		t.Errorf("expected a subheadline to be extracted")
	}
	if s.CommentCount == nil || *s.CommentCount != 42 {
		t.Errorf("expected comment_count 42, got %+v", s.CommentCount)
	}
	if s.Published == "" {
		t.Errorf("expected a normalized published date")
	}
}

func TestParse_RelativeDate(t *testing.T) {
	body := strings.Join([]string{
		"Tech",
		"Chipmaker unveils new design",
		"3 hours ago",
		"Some commentary line.",
	}, "\n")

	feed, err := Parse(CrawlInput{
		StartURL:          "https://example.com",
		CrawlTimeUTC:      "2026-02-14T12:00:00Z",
		SourceProfileName: "scmp",
		Pages:             []PageInput{scmpPage("https://example.com", 0, body)},
	})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(feed.Stories) != 1 {
		t.Fatalf("expected 1 story, got %d", len(feed.Stories))
	}
	if !strings.HasPrefix(feed.Stories[0].Published, "2026-02-14T09:00:00") {
		t.Errorf("expected published ~3h before crawl time, got %q", feed.Stories[0].Published)
	}
}

func TestParse_NoiseLinesStrippedUnlessAdjacentToDate(t *testing.T) {
	body := strings.Join([]string{
		"TRENDING TOPICS",
		"Business",
		"Rates set to rise again",
		"13 Feb 2026 - 09:00AM",
		"TRENDING TOPICS",
		"Body text here.",
	}, "\n")

	feed, err := Parse(CrawlInput{
		StartURL:          "https://example.com",
		CrawlTimeUTC:      "2026-02-14T00:00:00Z",
		SourceProfileName: "scmp",
		Pages:             []PageInput{scmpPage("https://example.com", 0, body)},
	})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if feed.FeedMeta.NoiseLinesStripped == 0 {
		t.Errorf("expected at least one noise line to be stripped")
	}
	if len(feed.Stories) != 1 {
		t.Fatalf("expected 1 story to survive, got %d", len(feed.Stories))
	}
}

func TestParse_SponsoredClassification(t *testing.T) {
	body := strings.Join([]string{
		"In partnership with:",
		"Business",
		"How this bank modernized its payments stack",
		"13 Feb 2026 - 09:00AM",
	}, "\n")

	feed, err := Parse(CrawlInput{
		StartURL:          "https://example.com",
		CrawlTimeUTC:      "2026-02-14T00:00:00Z",
		SourceProfileName: "scmp",
		Pages:             []PageInput{scmpPage("https://example.com", 0, body)},
	})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(feed.Stories) != 1 {
		t.Fatalf("expected 1 story, got %d", len(feed.Stories))
	}
	if feed.Stories[0].ContentType != "sponsored" {
		t.Errorf("expected sponsored classification, got %q", feed.Stories[0].ContentType)
	}
}

func TestParse_OpinionClassificationExtractsAuthor(t *testing.T) {
	body := strings.Join([]string{
		"Opinion",
		"Why central banks keep getting it wrong",
		"Jane Smith",
		"Opinion",
		"13 Feb 2026 - 09:00AM",
	}, "\n")

	feed, err := Parse(CrawlInput{
		StartURL:          "https://example.com",
		CrawlTimeUTC:      "2026-02-14T00:00:00Z",
		SourceProfileName: "scmp",
		Pages:             []PageInput{scmpPage("https://example.com", 0, body)},
	})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(feed.Stories) != 1 {
		t.Fatalf("expected 1 story, got %d", len(feed.Stories))
	}
	if feed.Stories[0].ContentType != "opinion" {
		t.Errorf("expected opinion classification, got %q", feed.Stories[0].ContentType)
	}
	if feed.Stories[0].Author != "Jane Smith" {
		t.Errorf("expected opinion author %q, got %q", "Jane Smith", feed.Stories[0].Author)
	}
}

func TestParse_DeduplicatesAcrossPages(t *testing.T) {
	body := strings.Join([]string{
		"Business",
		"Markets rally as rate cut bets grow",
		"13 Feb 2026 - 10:15PM",
		"Body text on the home page.",
	}, "\n")
	bodyRicher := strings.Join([]string{
		"Business",
		"Markets rally as rate cut bets grow",
		"A richer subheadline here",
		"13 Feb 2026 - 10:15PM",
		"Body text with more detail on the section page.",
		"17",
	}, "\n")

	feed, err := Parse(CrawlInput{
		StartURL:          "https://example.com",
		CrawlTimeUTC:      "2026-02-14T00:00:00Z",
		SourceProfileName: "scmp",
		// Both pages sit at the same crawl depth, so the richness
		// tie-break (not the shallower-depth rule) picks the winner.
		Pages: []PageInput{
			scmpPage("https://example.com", 0, body),
			scmpPage("https://example.com/business", 0, bodyRicher),
		},
	})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(feed.Stories) != 1 {
		t.Fatalf("expected duplicate stories to merge into 1, got %d", len(feed.Stories))
	}
	if feed.FeedMeta.DuplicatesRemoved != 1 {
		t.Errorf("expected 1 duplicate removed, got %d", feed.FeedMeta.DuplicatesRemoved)
	}
	if len(feed.Stories[0].SeenOnPages) != 2 {
		t.Errorf("expected merged story to record both pages seen on, got %d", len(feed.Stories[0].SeenOnPages))
	}
	if feed.Stories[0].CommentCount == nil {
		t.Errorf("expected richer duplicate's comment_count to win")
	}
}

func TestParse_FallbackHeadlineLowersConfidence(t *testing.T) {
	// "Business" is wholly consumed by the section-label prefix walk,
	// leaving no remainder line to serve as a headline — this forces
	// the nearest-preceding-line fallback to kick in.
	body := strings.Join([]string{
		"Business",
		"13 Feb 2026 - 09:00AM",
	}, "\n")

	feed, err := Parse(CrawlInput{
		StartURL:          "https://example.com",
		CrawlTimeUTC:      "2026-02-14T00:00:00Z",
		SourceProfileName: "scmp",
		Pages:             []PageInput{scmpPage("https://example.com", 0, body)},
	})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(feed.Stories) != 1 {
		t.Fatalf("expected 1 story, got %d", len(feed.Stories))
	}
	s := feed.Stories[0]
	if s.ParseQuality.SegmentationReason != "date_anchor+nearest_preceding_line_fallback" {
		t.Errorf("expected fallback segmentation reason, got %q", s.ParseQuality.SegmentationReason)
	}
	if s.ParseQuality.ParseConfidence >= 1.0 {
		t.Errorf("expected fallback path to lower parse confidence, got %v", s.ParseQuality.ParseConfidence)
	}
}

func TestParse_UnknownProfileFallsBackToGeneric(t *testing.T) {
	feed, err := Parse(CrawlInput{
		StartURL:          "https://example.com",
		CrawlTimeUTC:      "2026-02-14T00:00:00Z",
		SourceProfileName: "not-a-real-profile",
		Pages:             []PageInput{},
	})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if feed.FeedMeta.SourceProfile != "generic" {
		t.Errorf("expected unknown profile name to fall back to generic, got %q", feed.FeedMeta.SourceProfile)
	}
}
