// Package extract parses fetched HTML into structured content per §4.E:
// text, headings, links, images, language, and an optional noise filter.
// Grounded on app/scraping/extractor.py, using goquery for DOM traversal.
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/FranksOps/gofr-dig/internal/apperr"
)

// removeTags are stripped, contents included, before any other step.
var removeTags = []string{"script", "style", "noscript", "iframe", "svg", "canvas"}

// mainContentSelectors is the heuristic fallback chain for
// extract_main_content, in priority order.
var mainContentSelectors = []string{
	"main", "article", "[role=main]", "#content", "#main-content",
	".content", ".main-content", ".post-content", ".article-content",
}

// Heading is a single h1..h6 occurrence. Headings are listed by level
// (every h1, then every h2, ...), in document order within a level.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Link is a resolved, de-duplicated anchor.
type Link struct {
	URL      string `json:"url"`
	Text     string `json:"text"`
	Title    string `json:"title,omitempty"`
	External bool   `json:"external"`
}

// Image is a resolved img[src] with alt text.
type Image struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// Result is the output of a single extraction.
type Result struct {
	URL      string            `json:"url"`
	Title    string            `json:"title,omitempty"`
	Text     string            `json:"text"`
	Headings []Heading         `json:"headings,omitempty"`
	Links    []Link            `json:"links,omitempty"`
	Images   []Image           `json:"images,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
	Language string            `json:"language,omitempty"`
}

// Options configures a single extraction call.
type Options struct {
	Selector      string
	IncludeLinks  bool
	IncludeImages bool
	IncludeMeta   bool
	FilterNoise   bool
}

// DefaultOptions mirrors the origin's keyword defaults: links, images, and
// meta on, noise filtering on.
func DefaultOptions() Options {
	return Options{IncludeLinks: true, IncludeImages: true, IncludeMeta: true, FilterNoise: true}
}

// Extract parses html and extracts content scoped to opts.Selector (or the
// whole document when empty).
func Extract(rawHTML, baseURL string, opts Options) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeExtractionError, "failed to parse HTML", err, nil)
	}

	doc.Find(strings.Join(removeTags, ",")).Remove()

	if opts.FilterNoise {
		removeNoiseElements(doc.Selection)
	}

	language := extractLanguage(doc)
	title := extractTitle(doc.Selection)
	meta := map[string]string{}
	if opts.IncludeMeta {
		meta = extractMeta(doc)
	}

	scope := doc.Selection
	if opts.Selector != "" {
		sel, serr := compileSelector(opts.Selector)
		if serr != nil {
			return nil, apperr.New(apperr.CodeInvalidSelector, "invalid selector", map[string]any{"selector": opts.Selector, "error": serr.Error()})
		}
		matched := doc.FindMatcher(sel)
		if matched.Length() == 0 {
			return nil, apperr.New(apperr.CodeSelectorNotFound, "selector matched no elements", map[string]any{"selector": opts.Selector})
		}
		scope = matched
	}

	text := extractText(scope, opts.FilterNoise)
	headings := extractHeadings(scope)

	var links []Link
	if opts.IncludeLinks {
		links = extractLinks(scope, baseURL)
	}
	var images []Image
	if opts.IncludeImages {
		images = extractImages(scope, baseURL)
	}

	return &Result{
		URL: baseURL, Title: title, Text: text, Headings: headings,
		Links: links, Images: images, Meta: meta, Language: language,
	}, nil
}

// ExtractMainContent applies the heuristic main-content selector chain
// (falling back to body) before extracting.
func ExtractMainContent(rawHTML, baseURL string, opts Options) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeExtractionError, "failed to parse HTML", err, nil)
	}
	doc.Find(strings.Join(removeTags, ",")).Remove()
	if opts.FilterNoise {
		removeNoiseElements(doc.Selection)
	}

	scope := (*goquery.Selection)(nil)
	for _, sel := range mainContentSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			scope = found.First()
			break
		}
	}
	if scope == nil {
		scope = doc.Find("body")
	}
	if scope.Length() == 0 {
		scope = doc.Selection
	}

	language := extractLanguage(doc)
	title := extractTitle(doc.Selection)
	meta := map[string]string{}
	if opts.IncludeMeta {
		meta = extractMeta(doc)
	}

	return &Result{
		URL:      baseURL,
		Title:    title,
		Text:     extractText(scope, opts.FilterNoise),
		Headings: extractHeadings(scope),
		Links:    extractLinks(scope, baseURL),
		Images:   extractImages(scope, baseURL),
		Meta:     meta,
		Language: language,
	}, nil
}

func compileSelector(sel string) (goquery.Matcher, error) {
	return cascadia.Compile(sel)
}

func extractLanguage(doc *goquery.Document) string {
	if lang, ok := doc.Find("html").Attr("lang"); ok && lang != "" {
		return lang
	}
	if content, ok := doc.Find(`meta[http-equiv="Content-Language"]`).Attr("content"); ok {
		return content
	}
	return ""
}

func extractTitle(sel *goquery.Selection) string {
	if t := strings.TrimSpace(sel.Find("title").First().Text()); t != "" {
		return t
	}
	if h1 := strings.TrimSpace(sel.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return ""
}

func extractMeta(doc *goquery.Document) map[string]string {
	meta := map[string]string{}
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok {
			name, ok = s.Attr("property")
		}
		content, hasContent := s.Attr("content")
		if ok && hasContent && name != "" {
			meta[name] = content
		}
	})
	return meta
}

var (
	runsOfNewlines = regexp.MustCompile(`\n{3,}`)
	runsOfHSpace   = regexp.MustCompile(`[ \t]+`)
)

func extractText(sel *goquery.Selection, filterNoise bool) string {
	var lines []string
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		collectTextLines(s, &lines)
	})
	if len(lines) == 0 {
		// Fall back to goquery's own text when the walk collected no
		// non-empty text line.
		lines = strings.Split(sel.Text(), "\n")
	}

	if filterNoise {
		lines = filterNoiseLines(lines)
	}

	text := strings.Join(lines, "\n")
	text = runsOfNewlines.ReplaceAllString(text, "\n\n")
	text = runsOfHSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// collectTextLines walks the node depth-first, emitting one line per
// leaf text node, mirroring BeautifulSoup's get_text(separator="\n").
func collectTextLines(s *goquery.Selection, lines *[]string) {
	for _, n := range s.Nodes {
		walkText(n, lines)
	}
}

func walkText(n *html.Node, lines *[]string) {
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			*lines = append(*lines, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, lines)
	}
}

var (
	adClassMarkers = regexp.MustCompile(`(?i)\b(ad|ads|advert|advertisement|adslot|sponsor|sponsored|taboola|outbrain)\b`)
)

func removeNoiseElements(sel *goquery.Selection) {
	sel.Find("*").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		if adClassMarkers.MatchString(class) || adClassMarkers.MatchString(id) {
			s.Remove()
		}
	})
}

// noiseLines are dropped only on an exact trimmed-line match, per §4.E —
// substrings inside real sentences survive.
var noiseLines = map[string]bool{
	"Advertisement":     true,
	"Sponsored Content": true,
	"We use cookies":    true,
	"Subscribe now":     true,
	"MULTIMEDIA":        true,
	"Video":             true,
	"videocam":          true,
	"+ FOLLOW":          true,
	"Share this":        true,
	"Read more":         true,
	"Related stories":   true,
	"Comments":          true,
	"-":                 true,
}

func filterNoiseLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if noiseLines[strings.TrimSpace(l)] {
			continue
		}
		out = append(out, l)
	}
	return out
}

func extractHeadings(sel *goquery.Selection) []Heading {
	var headings []Heading
	for level := 1; level <= 6; level++ {
		tag := fmt.Sprintf("h%d", level)
		sel.Find(tag).Each(func(_ int, s *goquery.Selection) {
			if text := strings.TrimSpace(s.Text()); text != "" {
				headings = append(headings, Heading{Level: level, Text: text})
			}
		})
	}
	return headings
}

func extractLinks(sel *goquery.Selection, baseURL string) []Link {
	base, _ := url.Parse(baseURL)
	var baseHost string
	if base != nil {
		baseHost = base.Host
	}

	seen := map[string]bool{}
	var links []Link
	sel.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}

		resolved := href
		if base != nil {
			if u, err := base.Parse(href); err == nil {
				resolved = u.String()
			}
		}
		if seen[resolved] {
			return
		}
		seen[resolved] = true

		external := false
		if baseHost != "" {
			if u, err := url.Parse(resolved); err == nil && u.Host != "" {
				external = u.Host != baseHost
			}
		}

		links = append(links, Link{
			URL:      resolved,
			Text:     strings.TrimSpace(s.Text()),
			Title:    s.AttrOr("title", ""),
			External: external,
		})
	})
	return links
}

func extractImages(sel *goquery.Selection, baseURL string) []Image {
	base, _ := url.Parse(baseURL)
	var images []Image
	sel.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src == "" {
			return
		}
		resolved := src
		if base != nil {
			if u, err := base.Parse(src); err == nil {
				resolved = u.String()
			}
		}
		images = append(images, Image{URL: resolved, Alt: s.AttrOr("alt", "")})
	})
	return images
}

// DetectEncoding reports the most likely character encoding of raw,
// consulted by callers when a response lacks a Content-Type charset.
// contentType is the response's Content-Type header, if any.
func DetectEncoding(raw []byte, contentType string) (string, error) {
	_, name, certain := charset.DetermineEncoding(raw, contentType)
	if !certain && name == "" {
		return "", apperr.New(apperr.CodeEncodingError, "could not determine character encoding", nil)
	}
	return name, nil
}
