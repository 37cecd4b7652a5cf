// Package structure analyzes a page's semantic sections, navigation,
// link partitioning, forms, and heading outline, per §4.F. Grounded on
// app/scraping/structure.py; shares the goquery DOM stack with
// internal/extract.
package structure

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/FranksOps/gofr-dig/internal/apperr"
)

var sectionTags = []string{"header", "nav", "main", "article", "section", "aside", "footer"}

var navClasses = []string{"nav", "navigation", "menu", "navbar", "header-nav", "main-nav"}
var navIDs = []string{"nav", "navigation", "main-nav", "menu"}

const textPreviewMaxLength = 200

// Section is one semantic section found in the page.
type Section struct {
	Tag         string   `json:"tag"`
	ID          string   `json:"id,omitempty"`
	Classes     []string `json:"classes,omitempty"`
	Heading     string   `json:"heading,omitempty"`
	LinksCount  int      `json:"links_count"`
	TextPreview string   `json:"text_preview"`
}

// NavLink is a single navigation link.
type NavLink struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Field is one form input/textarea/select field.
type Field struct {
	Type     string `json:"type"`
	Name     string `json:"name,omitempty"`
	ID       string `json:"id,omitempty"`
	Required bool   `json:"required"`
}

// Form describes one <form> element and its fields.
type Form struct {
	ID     string  `json:"id,omitempty"`
	Action string  `json:"action"`
	Method string  `json:"method"`
	Fields []Field `json:"fields"`
}

// OutlineEntry is one heading. The outline lists headings by level
// (every h1, then every h2, ...), in document order within a level.
type OutlineEntry struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	ID    string `json:"id,omitempty"`
}

// PageStructure is the result of analyzing one page.
type PageStructure struct {
	URL           string            `json:"url"`
	Title         string            `json:"title,omitempty"`
	Language      string            `json:"language,omitempty"`
	Sections      []Section         `json:"sections"`
	Navigation    []NavLink         `json:"navigation"`
	InternalLinks []NavLink         `json:"internal_links"`
	ExternalLinks []NavLink         `json:"external_links"`
	Meta          map[string]string `json:"meta"`
	Forms         []Form            `json:"forms"`
	Outline       []OutlineEntry    `json:"outline"`
}

// Analyze parses html and builds a PageStructure relative to baseURL.
func Analyze(html, baseURL string) (*PageStructure, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeExtractionError, "failed to parse HTML", err, nil)
	}

	internal, external := categorizeLinks(doc, baseURL)

	return &PageStructure{
		URL:           baseURL,
		Title:         extractTitle(doc.Selection),
		Language:      extractLanguage(doc),
		Sections:      findSections(doc),
		Navigation:    extractNavigation(doc, baseURL),
		InternalLinks: internal,
		ExternalLinks: external,
		Meta:          extractMeta(doc),
		Forms:         findForms(doc),
		Outline:       buildOutline(doc),
	}, nil
}

func extractTitle(sel *goquery.Selection) string {
	if t := strings.TrimSpace(sel.Find("title").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(sel.Find("h1").First().Text())
}

func extractLanguage(doc *goquery.Document) string {
	lang, _ := doc.Find("html").Attr("lang")
	return lang
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

func findSections(doc *goquery.Document) []Section {
	var sections []Section
	for _, tag := range sectionTags {
		doc.Find(tag).Each(func(_ int, s *goquery.Selection) {
			sections = append(sections, Section{
				Tag:         tag,
				ID:          s.AttrOr("id", ""),
				Classes:     classesOf(s),
				Heading:     sectionHeading(s),
				LinksCount:  s.Find("a").Length(),
				TextPreview: textPreview(s, textPreviewMaxLength),
			})
		})
	}
	return sections
}

func classesOf(s *goquery.Selection) []string {
	class, ok := s.Attr("class")
	if !ok || strings.TrimSpace(class) == "" {
		return nil
	}
	return strings.Fields(class)
}

func sectionHeading(s *goquery.Selection) string {
	for level := 1; level <= 6; level++ {
		if h := s.Find(fmt.Sprintf("h%d", level)).First(); h.Length() > 0 {
			if text := strings.TrimSpace(h.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

// textPreview joins text with single-space separators (matching
// get_text(separator=" ")) and truncates with an ellipsis.
func textPreview(s *goquery.Selection, maxLength int) string {
	text := strings.TrimSpace(strings.Join(strings.Fields(s.Text()), " "))
	if len(text) > maxLength {
		return text[:maxLength] + "..."
	}
	return text
}

func extractNavigation(doc *goquery.Document, baseURL string) []NavLink {
	base, _ := url.Parse(baseURL)
	seen := map[string]bool{}
	var links []NavLink

	collect := func(scope *goquery.Selection) {
		scope.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
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
			links = append(links, NavLink{URL: resolved, Text: strings.TrimSpace(a.Text())})
		})
	}

	doc.Find("nav").Each(func(_ int, s *goquery.Selection) { collect(s) })
	for _, class := range navClasses {
		doc.Find("." + class).Each(func(_ int, s *goquery.Selection) { collect(s) })
	}
	for _, id := range navIDs {
		if el := doc.Find("#" + id); el.Length() > 0 {
			collect(el.First())
		}
	}

	return links
}

func categorizeLinks(doc *goquery.Document, baseURL string) (internal []NavLink, external []NavLink) {
	base, _ := url.Parse(baseURL)
	var baseHost string
	if base != nil {
		baseHost = base.Host
	}

	seen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
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

		link := NavLink{URL: resolved, Text: strings.TrimSpace(a.Text())}
		u, err := url.Parse(resolved)
		if err == nil && u.Host != "" && u.Host != baseHost {
			external = append(external, link)
		} else {
			internal = append(internal, link)
		}
	})
	return internal, external
}

func findForms(doc *goquery.Document) []Form {
	var forms []Form
	doc.Find("form").Each(func(_ int, f *goquery.Selection) {
		method := strings.ToUpper(f.AttrOr("method", "GET"))
		if method == "" {
			method = "GET"
		}
		form := Form{ID: f.AttrOr("id", ""), Action: f.AttrOr("action", ""), Method: method}

		f.Find("input, textarea, select").Each(func(_ int, inp *goquery.Selection) {
			fieldType := "text"
			tag := goquery.NodeName(inp)
			if tag == "input" {
				fieldType = inp.AttrOr("type", "text")
			} else {
				fieldType = tag
			}
			_, required := inp.Attr("required")
			form.Fields = append(form.Fields, Field{
				Type:     fieldType,
				Name:     inp.AttrOr("name", ""),
				ID:       inp.AttrOr("id", ""),
				Required: required,
			})
		})

		forms = append(forms, form)
	})
	return forms
}

func buildOutline(doc *goquery.Document) []OutlineEntry {
	var outline []OutlineEntry
	for level := 1; level <= 6; level++ {
		doc.Find(fmt.Sprintf("h%d", level)).Each(func(_ int, h *goquery.Selection) {
			if text := strings.TrimSpace(h.Text()); text != "" {
				outline = append(outline, OutlineEntry{Level: level, Text: text, ID: h.AttrOr("id", "")})
			}
		})
	}
	return outline
}
