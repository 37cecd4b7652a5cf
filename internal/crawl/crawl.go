// Package crawl implements the depth-bounded BFS crawl operation of
// §4.G: per-level page fetching, frontier expansion scoped to the start
// host, granular failure classification, and response shaping under a
// byte budget. Uses an errgroup BFS per level writing into an indexed
// slice, insertion-ordered
// within each level and strictly bounded by depth rather than
// domain-scope alone.
package crawl

import (
	"context"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/gofr-dig/internal/apperr"
	"github.com/FranksOps/gofr-dig/internal/extract"
	"github.com/FranksOps/gofr-dig/internal/fetch"
	"github.com/FranksOps/gofr-dig/internal/robots"
)

const (
	minDepth            = 1
	maxDepth            = 3
	minPagesPerLevel    = 1
	maxPagesPerLevel    = 20
	defaultByteBudget   = 900_000
	minRetainedPageText = 2000
)

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Options configures a single crawl call.
type Options struct {
	Depth            int
	MaxPagesPerLevel int
	Selector         string
	IncludeLinks     bool
	IncludeImages    bool
	IncludeMeta      bool
	FilterNoise      bool
	RespectRobots    bool
	UserAgent        string
	Concurrency      int
	ByteBudget       int
	// SessionMode, when true, persists an over-budget result through the
	// Persister passed to Crawl instead of truncating it.
	SessionMode bool
}

// Persister stores an oversized crawl result and returns a session guid,
// implemented by internal/session.Store in production.
type Persister interface {
	Persist(ctx context.Context, content any) (guid string, err error)
}

// Page is one fetched-and-extracted page in the crawl response.
type Page struct {
	URL      string            `json:"url"`
	Title    string            `json:"title,omitempty"`
	Text     string            `json:"text"`
	Language string            `json:"language,omitempty"`
	Headings []extract.Heading `json:"headings,omitempty"`
	Links    []extract.Link    `json:"links,omitempty"`
	Images   []extract.Image   `json:"images,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
	Depth    int               `json:"depth"`
	Error    *apperr.Error     `json:"error,omitempty"`
}

// Summary aggregates counts across the crawl.
type Summary struct {
	TotalPages      int         `json:"total_pages"`
	TotalTextLength int         `json:"total_text_length"`
	PagesByDepth    map[int]int `json:"pages_by_depth"`
}

// Result is the full multi-page crawl response.
type Result struct {
	Page    // root page's top-level content, per §4.G
	Pages   []Page  `json:"pages"`
	Summary Summary `json:"summary"`

	Truncated              bool   `json:"truncated,omitempty"`
	OriginalChars          int    `json:"original_chars,omitempty"`
	ReturnedChars          int    `json:"returned_chars,omitempty"`
	PagesRemovedForLimit   int    `json:"pages_removed_for_limit,omitempty"`
	PagesTruncatedForLimit int    `json:"pages_truncated_for_limit,omitempty"`
	SessionGUID            string `json:"session_guid,omitempty"`
}

// Crawler runs BFS crawls using a shared Fetcher and robots Checker.
type Crawler struct {
	fetcher *fetch.Fetcher
	robots  *robots.Checker
	sitemap *robots.SitemapFetcher
}

// New constructs a Crawler.
func New(fetcher *fetch.Fetcher, checker *robots.Checker) *Crawler {
	return &Crawler{fetcher: fetcher, robots: checker, sitemap: robots.NewSitemapFetcher(fetcher)}
}

// sitemapSeeds returns page URLs discovered via the Sitemap directives
// of startURL's robots.txt, scoped to depth-2 candidates (the first
// followed level, alongside ordinary link-following). Best-effort: any
// failure yields no seeds rather than failing the crawl.
func (c *Crawler) sitemapSeeds(ctx context.Context, startURL string, baseHost string, perLevel int, respectRobots bool) []pageJob {
	if !respectRobots {
		return nil
	}
	file, err := c.robots.FetchRobots(ctx, startURL)
	if err != nil || file == nil || len(file.Sitemaps) == 0 {
		return nil
	}

	visited := map[string]bool{}
	var seeds []pageJob
	for _, sitemapURL := range file.Sitemaps {
		if len(seeds) >= perLevel {
			break
		}
		urls, err := c.sitemap.FetchURLs(ctx, sitemapURL)
		if err != nil {
			continue
		}
		for _, u := range urls {
			if ok, job := c.frontierCandidate(u, false, baseHost, visited); ok {
				seeds = append(seeds, job)
				if len(seeds) >= perLevel {
					break
				}
			}
		}
	}
	return seeds
}

// normalize strips a trailing '/' per §4.G's visited-set normalization.
func normalize(rawURL string) string {
	return strings.TrimSuffix(rawURL, "/")
}

type pageJob struct {
	url   string
	depth int
}

// Crawl runs the BFS crawl rooted at startURL. persister may be nil; it
// is only consulted when opts.SessionMode is set and the result would
// otherwise need byte-budget truncation.
func (c *Crawler) Crawl(ctx context.Context, startURL string, opts Options, persister Persister) *Result {
	depth := clamp(opts.Depth, minDepth, maxDepth)
	perLevel := clamp(opts.MaxPagesPerLevel, minPagesPerLevel, maxPagesPerLevel)
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	byteBudget := opts.ByteBudget
	if byteBudget <= 0 {
		byteBudget = defaultByteBudget
	}

	base, err := url.Parse(startURL)
	if err != nil {
		return &Result{Page: Page{URL: startURL, Error: apperr.New(apperr.CodeInvalidURL, "invalid start URL", nil)}}
	}
	baseHost := base.Host

	visited := map[string]bool{normalize(startURL): true}

	root := c.fetchSinglePage(ctx, startURL, 1, opts)
	if root.Error != nil {
		return &Result{Page: *root}
	}

	pagesByDepth := map[int]int{1: 1}
	allPages := []Page{*root}

	currentLevel := c.sitemapSeeds(ctx, startURL, baseHost, perLevel, opts.RespectRobots)
	for _, link := range root.Links {
		if in, job := c.frontierCandidate(link.URL, link.External, baseHost, visited); in {
			currentLevel = append(currentLevel, job)
		}
	}
	currentLevel = dedupeAndSlice(currentLevel, visited, perLevel, 2)

	for d := 2; d <= depth && len(currentLevel) > 0; d++ {
		levelPages := c.fetchLevel(ctx, currentLevel, opts, concurrency)
		allPages = append(allPages, levelPages...)
		pagesByDepth[d] = len(levelPages)

		var nextCandidates []pageJob
		for _, p := range levelPages {
			if p.Error != nil {
				continue
			}
			for _, link := range p.Links {
				if in, job := c.frontierCandidate(link.URL, link.External, baseHost, visited); in {
					nextCandidates = append(nextCandidates, job)
				}
			}
		}
		currentLevel = dedupeAndSlice(nextCandidates, visited, perLevel, d+1)
	}

	totalTextLen := 0
	for _, p := range allPages {
		totalTextLen += len(p.Text)
	}

	result := &Result{
		Page:  *root,
		Pages: allPages,
		Summary: Summary{
			TotalPages:      len(allPages),
			TotalTextLength: totalTextLen,
			PagesByDepth:    pagesByDepth,
		},
	}

	if !opts.IncludeLinks {
		result.Page.Links = nil
		for i := range result.Pages {
			result.Pages[i].Links = nil
		}
	}

	if opts.SessionMode && persister != nil && approxSize(result) > byteBudget {
		guid, err := persister.Persist(ctx, result)
		if err == nil {
			result.SessionGUID = guid
			return result
		}
		// Persistence failed; fall through to truncation rather than
		// silently dropping pages the caller has no way to retrieve.
	}

	shapeResponse(result, byteBudget)
	return result
}

// frontierCandidate decides whether link qualifies for the next
// level's frontier: non-external, same host, not yet visited.
func (c *Crawler) frontierCandidate(linkURL string, external bool, baseHost string, visited map[string]bool) (bool, pageJob) {
	if external {
		return false, pageJob{}
	}
	u, err := url.Parse(linkURL)
	if err != nil || u.Host != baseHost {
		return false, pageJob{}
	}
	norm := normalize(linkURL)
	if visited[norm] {
		return false, pageJob{}
	}
	return true, pageJob{url: linkURL}
}

// dedupeAndSlice marks candidates visited in first-seen order, stamps
// them with depth, and slices to maxPerLevel.
func dedupeAndSlice(candidates []pageJob, visited map[string]bool, maxPerLevel int, depth int) []pageJob {
	var out []pageJob
	for _, c := range candidates {
		norm := normalize(c.url)
		if visited[norm] {
			continue
		}
		visited[norm] = true
		c.depth = depth
		out = append(out, c)
		if len(out) >= maxPerLevel {
			break
		}
	}
	return out
}

// fetchLevel fetches an entire BFS level concurrently; all jobs in a
// level run to completion before the next level is considered, per
// §5's depth-ordering guarantee.
func (c *Crawler) fetchLevel(ctx context.Context, jobs []pageJob, opts Options, concurrency int) []Page {
	pages := make([]Page, len(jobs))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			pages[i] = *c.fetchSinglePage(ctx, j.url, j.depth, opts)
			return nil
		})
	}
	_ = g.Wait()
	return pages
}

// fetchSinglePage implements fetch_single_page: robots check, fetch,
// classify failures, extract (always including links internally).
func (c *Crawler) fetchSinglePage(ctx context.Context, pageURL string, depth int, opts Options) *Page {
	if opts.RespectRobots && c.robots != nil {
		ua := opts.UserAgent
		if ua == "" {
			ua = "*"
		}
		allowed, _, err := c.robots.IsAllowed(ctx, pageURL, ua)
		if err == nil && !allowed {
			return &Page{URL: pageURL, Depth: depth, Error: apperr.New(apperr.CodeRobotsBlocked, "disallowed by robots.txt", map[string]any{"url": pageURL})}
		}
	}

	fr := c.fetcher.Fetch(ctx, pageURL, fetch.Options{})
	if fr.Err != nil {
		return &Page{URL: pageURL, Depth: depth, Error: classifyFetchErr(fr.Err)}
	}

	res, err := extract.Extract(string(fr.Body), pageURL, extract.Options{
		Selector:      opts.Selector,
		IncludeLinks:  true, // always internally, per §4.G step 4
		IncludeImages: opts.IncludeImages,
		IncludeMeta:   opts.IncludeMeta,
		FilterNoise:   opts.FilterNoise,
	})
	if err != nil {
		return &Page{URL: pageURL, Depth: depth, Error: toAppErr(err)}
	}

	return &Page{
		URL: pageURL, Title: res.Title, Text: res.Text, Language: res.Language,
		Headings: res.Headings, Links: res.Links, Images: res.Images, Meta: res.Meta,
		Depth: depth,
	}
}

func classifyFetchErr(err error) *apperr.Error {
	if appErr, ok := apperr.As(err); ok {
		return appErr
	}
	return apperr.New(apperr.CodeFetchError, "fetch failed", nil)
}

func toAppErr(err error) *apperr.Error {
	if appErr, ok := apperr.As(err); ok {
		return appErr
	}
	return apperr.New(apperr.CodeExtractionError, err.Error(), nil)
}

// shapeResponse applies §4.G's byte-budget shaping: remove deepest
// pages first, then truncate the last remaining page's text down to
// the budget, preserving at least minRetainedPageText characters or
// removing the page entirely.
func shapeResponse(r *Result, byteBudget int) {
	size := approxSize(r)
	if size <= byteBudget {
		return
	}

	originalChars := 0
	for _, p := range r.Pages {
		originalChars += len(p.Text)
	}
	originalChars += len(r.Page.Text)

	// Remove deepest pages first.
	maxDepthSeen := 0
	for _, p := range r.Pages {
		if p.Depth > maxDepthSeen {
			maxDepthSeen = p.Depth
		}
	}
	for d := maxDepthSeen; d > 1 && size > byteBudget && len(r.Pages) > 0; d-- {
		kept := r.Pages[:0]
		for _, p := range r.Pages {
			if p.Depth == d && size > byteBudget {
				size -= approxPageSize(p)
				r.PagesRemovedForLimit++
				continue
			}
			kept = append(kept, p)
		}
		r.Pages = kept
	}

	// If still over budget, truncate the last remaining page's text.
	if size > byteBudget && len(r.Pages) > 0 {
		last := &r.Pages[len(r.Pages)-1]
		overBy := size - byteBudget
		targetLen := len(last.Text) - overBy
		if targetLen < minRetainedPageText {
			if len(last.Text) <= minRetainedPageText {
				// Not worth keeping a stub; drop the page entirely.
				r.Pages = r.Pages[:len(r.Pages)-1]
				r.PagesRemovedForLimit++
			} else {
				last.Text = truncateAtBoundary(last.Text, minRetainedPageText)
				r.PagesTruncatedForLimit++
			}
		} else {
			last.Text = truncateAtBoundary(last.Text, targetLen)
			r.PagesTruncatedForLimit++
		}
	}

	returnedChars := 0
	for _, p := range r.Pages {
		returnedChars += len(p.Text)
	}
	returnedChars += len(r.Page.Text)

	r.Truncated = true
	r.OriginalChars = originalChars
	r.ReturnedChars = returnedChars
	r.Summary.TotalPages = len(r.Pages)
	r.Summary.TotalTextLength = returnedChars
}

// truncateAtBoundary cuts text to at most n characters, preferring a
// trailing sentence-ending punctuation mark or newline over a hard cut
// mid-word.
func truncateAtBoundary(text string, n int) string {
	if n >= len(text) {
		return text
	}
	cut := text[:n]
	if idx := strings.LastIndexAny(cut, ".!?\n"); idx > n/2 {
		return cut[:idx+1]
	}
	return cut
}

func approxSize(r *Result) int {
	total := len(r.Page.Text)
	for _, p := range r.Pages {
		total += approxPageSize(p)
	}
	return total
}

func approxPageSize(p Page) int {
	size := len(p.Text) + len(p.Title) + len(p.URL)
	for _, l := range p.Links {
		size += len(l.URL) + len(l.Text)
	}
	for _, h := range p.Headings {
		size += len(h.Text)
	}
	return size
}
