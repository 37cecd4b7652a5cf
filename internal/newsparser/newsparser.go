// Package newsparser transforms raw crawl output into a deterministic
// structured feed, without summarization or external calls, per §4.H.
// Grounded in full on app/processing/news_parser.py and
// app/processing/source_profiles.py.
package newsparser

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/gofr-dig/internal/apperr"
)

var (
	durationRe      = regexp.MustCompile(`^\d{2}:\d{2}$`)
	commentCountRe  = regexp.MustCompile(`^\d+$`)
	pipeSplitRe     = regexp.MustCompile(`^\s*([^|]{1,64})\|(.+)$`)
	authorRe        = regexp.MustCompile(`^[A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2}$`)
	relativeRe      = regexp.MustCompile(`(?i)(\d+)\s+(minutes?|hours?|days?)\s+ago`)
	whitespaceRunRe = regexp.MustCompile(`\s+`)
)

const dateLayout = "02 Jan 2006 - 03:04PM"

// PageInput is one crawled page, as produced by internal/crawl.
type PageInput struct {
	URL      string
	Text     string
	Headings []string
	Meta     map[string]string
	Depth    int
	Language string
}

// CrawlInput is the get_content-shaped input accepted by Parse.
type CrawlInput struct {
	StartURL          string
	CrawlTimeUTC      string
	ParserVersion     string
	SourceProfileName string
	Pages             []PageInput
}

// Warning records a non-fatal parsing anomaly.
type Warning struct {
	Code    string `json:"code"`
	Example string `json:"example"`
}

// SeenOnPage records one page a deduplicated story was observed on.
type SeenOnPage struct {
	PageURL    string `json:"page_url"`
	CrawlDepth int    `json:"crawl_depth"`
}

// Provenance traces a story back to its crawl origin.
type Provenance struct {
	RootURL    string `json:"root_url"`
	PageURL    string `json:"page_url"`
	CrawlDepth int    `json:"crawl_depth"`
}

// ParseQuality scores how confidently a story's fields were extracted.
type ParseQuality struct {
	ParseConfidence    float64  `json:"parse_confidence"`
	MissingFields      []string `json:"missing_fields"`
	SegmentationReason string   `json:"segmentation_reason"`
}

// Story is one extracted news item.
type Story struct {
	StoryID      string       `json:"story_id"`
	Headline     string       `json:"headline"`
	Subheadline  string       `json:"subheadline,omitempty"`
	Section      string       `json:"section,omitempty"`
	Published    string       `json:"published,omitempty"`
	PublishedRaw string       `json:"published_raw"`
	BodySnippet  string       `json:"body_snippet,omitempty"`
	CommentCount *int         `json:"comment_count,omitempty"`
	Tags         []string     `json:"tags"`
	ContentType  string       `json:"content_type"`
	Author       string       `json:"author,omitempty"`
	Provenance   Provenance   `json:"provenance"`
	SeenOnPages  []SeenOnPage `json:"seen_on_pages"`
	Language     string       `json:"language,omitempty"`
	ParseQuality ParseQuality `json:"parse_quality"`

	segmentationReason string
	rawBlock           []string
}

// FeedMeta summarizes one parse run.
type FeedMeta struct {
	ParserVersion      string `json:"parser_version"`
	SourceProfile      string `json:"source_profile"`
	SourceName         string `json:"source_name"`
	SourceRootURL      string `json:"source_root_url"`
	CrawlTimeUTC       string `json:"crawl_time_utc"`
	PagesCrawled       int    `json:"pages_crawled"`
	StoriesExtracted   int    `json:"stories_extracted"`
	DuplicatesRemoved  int    `json:"duplicates_removed"`
	NoiseLinesStripped int    `json:"noise_lines_stripped"`
	ParseWarnings      int    `json:"parse_warnings"`
}

// Feed is the parser's output.
type Feed struct {
	FeedMeta FeedMeta  `json:"feed_meta"`
	Stories  []*Story  `json:"stories"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// Parse is the parser's single entry point.
func Parse(input CrawlInput) (*Feed, error) {
	if input.StartURL == "" {
		return nil, apperr.New(apperr.CodeCrawlInput, "crawl_result missing required key: start_url", nil)
	}

	crawlTime, err := parseCrawlTime(input.CrawlTimeUTC)
	if err != nil {
		return nil, err
	}

	parserVersion := input.ParserVersion
	if parserVersion == "" {
		parserVersion = "1.0.0"
	}
	profile := GetSourceProfile(input.SourceProfileName)

	var storiesRaw []*Story
	var warnings []Warning
	noiseTotal := 0

	for _, page := range input.Pages {
		cleanedText, linesRemoved, stripWarnings := stripNoise(page.Text, profile)
		noiseTotal += linesRemoved
		warnings = append(warnings, stripWarnings...)

		pageStories, segWarnings := segmentStories(cleanedText, profile, crawlTime, page, input.StartURL)
		warnings = append(warnings, segWarnings...)
		storiesRaw = append(storiesRaw, pageStories...)
	}

	uniqueStories, duplicatesRemoved := deduplicate(storiesRaw)
	for _, story := range uniqueStories {
		story.ParseQuality = computeParseQuality(story)
	}

	sourceName := profile.DisplayName
	if sourceName == "" {
		sourceName = profile.Name
	}

	feed := &Feed{
		FeedMeta: FeedMeta{
			ParserVersion:      parserVersion,
			SourceProfile:      profile.Name,
			SourceName:         sourceName,
			SourceRootURL:      input.StartURL,
			CrawlTimeUTC:       crawlTime.UTC().Format("2006-01-02T15:04:05Z"),
			PagesCrawled:       len(input.Pages),
			StoriesExtracted:   len(uniqueStories),
			DuplicatesRemoved:  duplicatesRemoved,
			NoiseLinesStripped: noiseTotal,
			ParseWarnings:      len(warnings),
		},
		Stories: uniqueStories,
	}
	if len(warnings) > 0 {
		feed.Warnings = warnings
	}
	return feed, nil
}

func parseCrawlTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	normalized := raw
	if strings.HasSuffix(normalized, "Z") {
		normalized = strings.TrimSuffix(normalized, "Z") + "+00:00"
	}
	if t, err := time.Parse("2006-01-02T15:04:05-07:00", normalized); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", normalized); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, apperr.New(apperr.CodeCrawlInput, "crawl_time_utc must be a valid ISO-8601 datetime string", map[string]any{"crawl_time_utc": raw})
}

// stripNoise removes lines that match a source's noise vocabulary,
// except where a neighboring line looks like a story date anchor — the
// safety rule against stripping real story boundaries.
func stripNoise(text string, profile SourceProfile) (string, int, []Warning) {
	rawLines := strings.Split(text, "\n")
	lines := make([]string, len(rawLines))
	for i, l := range rawLines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}

	cleaned := make([]string, 0, len(lines))
	removed := 0
	var warnings []Warning
	noiseMarkers := toSet(profile.NoiseMarkers)

	for idx, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			cleaned = append(cleaned, line)
			continue
		}

		lower := strings.ToLower(stripped)
		looksLikeNoise := noiseMarkers[stripped] ||
			strings.HasPrefix(stripped, "Photo:") || strings.HasPrefix(stripped, "Illustration:") ||
			durationRe.MatchString(stripped) ||
			strings.Contains(lower, "sentry-trace") || strings.Contains(lower, "baggage") || strings.Contains(lower, "appstore")

		if !looksLikeNoise {
			cleaned = append(cleaned, line)
			continue
		}

		prevLine, nextLine := "", ""
		if idx > 0 {
			prevLine = strings.TrimSpace(lines[idx-1])
		}
		if idx+1 < len(lines) {
			nextLine = strings.TrimSpace(lines[idx+1])
		}
		if profile.dateRegex.MatchString(prevLine) || profile.dateRegex.MatchString(nextLine) {
			warnings = append(warnings, Warning{Code: "STRIP_RULE_SKIPPED_STORY_SAFETY", Example: truncate(stripped, 120)})
			cleaned = append(cleaned, line)
			continue
		}
		removed++
	}

	return strings.Join(cleaned, "\n"), removed, warnings
}

func segmentStories(cleanedText string, profile SourceProfile, crawlTime time.Time, page PageInput, startURL string) ([]*Story, []Warning) {
	var lines []string
	for _, l := range strings.Split(cleanedText, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return nil, nil
	}

	var dateIndices []int
	for idx, line := range lines {
		if profile.dateRegex.MatchString(line) {
			dateIndices = append(dateIndices, idx)
		}
	}
	if len(dateIndices) == 0 {
		return nil, nil
	}

	var stories []*Story
	var warnings []Warning

	for i := range dateIndices {
		blockStart := 0
		if i > 0 {
			blockStart = dateIndices[i-1] + 1
		}
		blockEnd := len(lines)
		if i+1 < len(dateIndices) {
			blockEnd = dateIndices[i+1]
		}
		block := lines[blockStart:blockEnd]
		if len(block) == 0 {
			continue
		}

		story, storyWarnings := storyFromBlock(block, profile, crawlTime, page, startURL)
		warnings = append(warnings, storyWarnings...)
		if story != nil {
			stories = append(stories, story)
		}
	}

	return stories, warnings
}

func storyFromBlock(block []string, profile SourceProfile, crawlTime time.Time, page PageInput, startURL string) (*Story, []Warning) {
	var warnings []Warning

	dateIdx := -1
	for idx, line := range block {
		if profile.dateRegex.MatchString(line) {
			dateIdx = idx
			break
		}
	}
	if dateIdx == -1 {
		return nil, warnings
	}

	publishedRaw := block[dateIdx]
	pre := append([]string(nil), block[:dateIdx]...)
	post := block[dateIdx+1:]

	sectionLabels := toSet(profile.SectionLabels)
	opinionLabels := toSet(profile.OpinionLabels)

	var section, headline, subheadline string
	segmentationReason := "date_anchor+heading_alignment"

	if len(pre) > 0 {
		exclusiveMarkers := toSet(profile.ExclusiveMarkers)
		sponsoredMarkers := toSet(profile.SponsoredMarkers)
		filtered := make([]string, 0, len(pre))
		for _, line := range pre {
			if !exclusiveMarkers[line] && !sponsoredMarkers[line] {
				filtered = append(filtered, line)
			}
		}
		pre = filtered
	}

	if len(pre) > 0 {
		sectionIndex := 0
		for sectionIndex < len(pre) && sectionLabels[pre[sectionIndex]] {
			section = pre[sectionIndex]
			sectionIndex++
		}
		remainder := pre[sectionIndex:]

		if len(remainder) > 0 {
			pipeIdx := -1
			for idx, line := range remainder {
				if strings.Contains(line, "|") {
					pipeIdx = idx
					break
				}
			}
			if pipeIdx >= 0 {
				headline = remainder[pipeIdx]
				if section == "" && pipeIdx > 0 && opinionLabels[remainder[pipeIdx-1]] {
					section = remainder[pipeIdx-1]
				}
				if pipeIdx+1 < len(remainder) {
					candidate := remainder[pipeIdx+1]
					if !opinionLabels[candidate] && !authorRe.MatchString(candidate) {
						subheadline = candidate
					}
				}
			} else {
				headline = remainder[0]
				if len(remainder) > 1 {
					candidate := remainder[1]
					if !opinionLabels[candidate] && !authorRe.MatchString(candidate) {
						subheadline = candidate
					}
				}
			}
		}
	}

	if headline == "" {
		segmentationReason = "date_anchor+nearest_preceding_line_fallback"
		headline = fallbackHeadline(block, dateIdx)
		if headline == "" {
			warnings = append(warnings, Warning{Code: "STORY_SKIPPED_NO_HEADLINE", Example: truncate(publishedRaw, 120)})
			return nil, warnings
		}
	}

	pipeSection := ""
	headline, pipeSection = handlePipeHeadline(headline)
	if section == "" && pipeSection != "" {
		section = pipeSection
	}

	var commentCount *int
	if len(post) > 0 && commentCountRe.MatchString(post[len(post)-1]) {
		if n, err := strconv.Atoi(post[len(post)-1]); err == nil {
			commentCount = &n
		}
	}

	bodyLines := make([]string, 0, len(post))
	for _, line := range post {
		if !commentCountRe.MatchString(line) {
			bodyLines = append(bodyLines, line)
		}
	}
	bodySnippet := strings.TrimSpace(strings.Join(bodyLines[:min(4, len(bodyLines))], " "))
	if len(bodySnippet) > 400 {
		bodySnippet = strings.TrimRight(bodySnippet[:400], " ") + "..."
	}

	published, perr := normaliseDate(publishedRaw, crawlTime, profile)
	if perr != nil {
		warnings = append(warnings, Warning{Code: "DATE_PARSE_FAILED", Example: truncate(publishedRaw, 120)})
	}

	language := page.Language
	if language == "" {
		language = page.Meta["language"]
	}

	story := &Story{
		StoryID:      storyID(profile, headline, published, page.URL),
		Headline:     headline,
		Subheadline:  subheadline,
		Section:      section,
		Published:    published,
		PublishedRaw: publishedRaw,
		BodySnippet:  bodySnippet,
		CommentCount: commentCount,
		Tags:         []string{},
		ContentType:  "news",
		Provenance:   Provenance{RootURL: startURL, PageURL: page.URL, CrawlDepth: page.Depth},
		SeenOnPages:  []SeenOnPage{{PageURL: page.URL, CrawlDepth: page.Depth}},
		Language:     language,

		segmentationReason: segmentationReason,
		rawBlock:           block,
	}

	story.ContentType, story.Tags = classify(story, profile)
	if story.ContentType == "opinion" {
		story.Author = extractOpinionAuthor(block, profile)
	}

	return story, warnings
}

func normaliseDate(raw string, crawlTime time.Time, profile SourceProfile) (string, error) {
	rawS := strings.TrimSpace(raw)

	if m := relativeRe.FindStringSubmatch(rawS); m != nil {
		count, _ := strconv.Atoi(m[1])
		unit := strings.ToLower(m[2])
		var dt time.Time
		switch {
		case strings.Contains(unit, "minute"):
			dt = crawlTime.Add(-time.Duration(count) * time.Minute)
		case strings.Contains(unit, "hour"):
			dt = crawlTime.Add(-time.Duration(count) * time.Hour)
		default:
			dt = crawlTime.AddDate(0, 0, -count)
		}
		return dt.Format("2006-01-02T15:04:05Z07:00"), nil
	}

	if parsed, err := time.Parse(dateLayout, rawS); err == nil {
		loc := offsetLocation(profile.UTCOffset)
		withZone := time.Date(parsed.Year(), parsed.Month(), parsed.Day(), parsed.Hour(), parsed.Minute(), 0, 0, loc)
		return withZone.Format("2006-01-02T15:04:05Z07:00"), nil
	}

	return "", apperr.New(apperr.CodeDateParseFailed, "date string could not be parsed with configured patterns", map[string]any{"raw_value": raw})
}

func offsetLocation(offset string) *time.Location {
	if offset == "" {
		return time.UTC
	}
	sign := 1
	if strings.HasPrefix(offset, "-") {
		sign = -1
	}
	parts := strings.SplitN(strings.TrimLeft(offset, "+-"), ":", 2)
	hh, _ := strconv.Atoi(parts[0])
	mm := 0
	if len(parts) > 1 {
		mm, _ = strconv.Atoi(parts[1])
	}
	return time.FixedZone(offset, sign*(hh*3600+mm*60))
}

func deduplicate(stories []*Story) ([]*Story, int) {
	byKey := make(map[string]*Story, len(stories))
	var order []string
	duplicatesRemoved := 0

	for _, story := range stories {
		key := dedupeKey(story)
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = story
			order = append(order, key)
			continue
		}

		winner := pickRicherStory(existing, story)
		loser := existing
		if winner == existing {
			loser = story
		}
		winner.SeenOnPages = append(winner.SeenOnPages, loser.SeenOnPages...)
		byKey[key] = winner
		duplicatesRemoved++
	}

	unique := make([]*Story, 0, len(order))
	for _, k := range order {
		unique = append(unique, byKey[k])
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Published > unique[j].Published
	})

	return unique, duplicatesRemoved
}

func dedupeKey(story *Story) string {
	headlineNorm := normalizeText(story.Headline)
	sectionNorm := normalizeText(story.Section)
	published := story.Published

	dateBucket := ""
	if len(published) >= 10 {
		dateBucket = published[:10]
	} else {
		dateBucket = published
	}

	switch {
	case published != "" && sectionNorm != "":
		return headlineNorm + "\x00" + dateBucket + "\x00" + sectionNorm
	case published != "":
		return headlineNorm + "\x00" + dateBucket
	default:
		return headlineNorm
	}
}

func pickRicherStory(a, b *Story) *Story {
	depthA, depthB := a.Provenance.CrawlDepth, b.Provenance.CrawlDepth
	if depthA < depthB {
		return a
	}
	if depthB < depthA {
		return b
	}
	if storyRichnessScore(a) >= storyRichnessScore(b) {
		return a
	}
	return b
}

func storyRichnessScore(s *Story) int {
	score := 0
	if s.Subheadline != "" {
		score++
	}
	if s.CommentCount != nil {
		score++
	}
	score += min(len(s.BodySnippet)/80, 4)
	score += len(s.Tags)
	return score
}

func classify(story *Story, profile SourceProfile) (string, []string) {
	var tags []string
	block := story.rawBlock
	headline := strings.TrimSpace(story.Headline)
	subheadline := strings.TrimSpace(story.Subheadline)
	section := strings.TrimSpace(story.Section)

	exclusiveMarkers := toSet(profile.ExclusiveMarkers)
	sponsoredMarkers := toSet(profile.SponsoredMarkers)
	opinionLabels := toSet(profile.OpinionLabels)

	for _, line := range block {
		if exclusiveMarkers[line] {
			tags = append(tags, "exclusive")
			break
		}
	}

	for _, line := range block {
		if sponsoredMarkers[line] {
			return "sponsored", tags
		}
	}

	if opinionLabels[section] || strings.HasPrefix(headline, "Opinion|") {
		return "opinion", tags
	}

	joined := strings.ToLower(headline + " " + subheadline)
	for _, token := range []string{"analysis", "deep dive", "explainer"} {
		if strings.Contains(joined, token) {
			return "analysis", tags
		}
	}

	for _, line := range block[:min(2, len(block))] {
		if durationRe.MatchString(line) {
			return "video", tags
		}
	}

	return "news", tags
}

func extractOpinionAuthor(block []string, profile SourceProfile) string {
	labels := toSet(profile.OpinionLabels)
	for idx, line := range block {
		if labels[line] && idx > 0 {
			candidate := strings.TrimSpace(block[idx-1])
			if authorRe.MatchString(candidate) {
				return candidate
			}
		}
	}
	return ""
}

func computeParseQuality(story *Story) ParseQuality {
	var missing []string
	for _, field := range []struct {
		name  string
		value string
	}{
		{"headline", story.Headline}, {"section", story.Section},
		{"subheadline", story.Subheadline}, {"published", story.Published},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}

	confidence := 1.0 - 0.12*float64(len(missing))
	if story.segmentationReason == "date_anchor+nearest_preceding_line_fallback" {
		confidence -= 0.15
	}
	if story.Published == "" && story.PublishedRaw != "" {
		confidence -= 0.1
	}
	confidence = math.Max(0, math.Min(1, math.Round(confidence*100)/100))

	segReason := story.segmentationReason
	if segReason == "" {
		segReason = "date_anchor+heading_alignment"
	}

	return ParseQuality{ParseConfidence: confidence, MissingFields: missing, SegmentationReason: segReason}
}

func storyID(profile SourceProfile, headline, published, pageURL string) string {
	raw := strings.Join([]string{profile.Name, strings.ToLower(headline), published, pageURL}, "|")
	sum := sha1.Sum([]byte(raw))
	return fmt.Sprintf("%s:%s", profile.Name, hex.EncodeToString(sum[:])[:16])
}

func fallbackHeadline(block []string, dateIdx int) string {
	for idx := dateIdx - 1; idx >= 0; idx-- {
		if candidate := strings.TrimSpace(block[idx]); candidate != "" {
			return candidate
		}
	}
	return ""
}

func handlePipeHeadline(headline string) (string, string) {
	m := pipeSplitRe.FindStringSubmatch(headline)
	if m == nil {
		return strings.TrimSpace(headline), ""
	}
	return strings.TrimSpace(m[2]), strings.TrimSpace(m[1])
}

func normalizeText(value string) string {
	if value == "" {
		return ""
	}
	return whitespaceRunRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), " ")
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
