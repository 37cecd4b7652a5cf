package robots

import (
	"bytes"
	"context"
	"fmt"

	sitemap "github.com/oxffaa/gopher-parse-sitemap"

	"github.com/FranksOps/gofr-dig/internal/fetch"
)

// SitemapFetcher fetches and parses a sitemap (or sitemap index),
// recursively resolving nested indexes into a flat URL list. Used to
// seed a crawl's frontier from the Sitemap directives a robots.txt file
// declares, ahead of ordinary link-following.
type SitemapFetcher struct {
	fetcher *fetch.Fetcher
}

// NewSitemapFetcher builds a SitemapFetcher bound to the shared fetcher.
func NewSitemapFetcher(fetcher *fetch.Fetcher) *SitemapFetcher {
	return &SitemapFetcher{fetcher: fetcher}
}

// FetchURLs fetches sitemapURL and returns every page URL it names,
// descending into nested sitemap indexes.
func (s *SitemapFetcher) FetchURLs(ctx context.Context, sitemapURL string) ([]string, error) {
	result := s.fetcher.Fetch(ctx, sitemapURL, fetch.Options{})
	if result.Err != nil {
		return nil, fmt.Errorf("robots: fetch sitemap: %w", result.Err)
	}
	if result.Status >= 400 {
		return nil, fmt.Errorf("robots: sitemap %s returned status %d", sitemapURL, result.Status)
	}

	var urls []string
	err := sitemap.Parse(bytes.NewReader(result.Body), func(e sitemap.Entry) error {
		urls = append(urls, e.GetLocation())
		return nil
	})
	if err == nil && len(urls) > 0 {
		return urls, nil
	}

	var nested []string
	indexErr := sitemap.ParseIndex(bytes.NewReader(result.Body), func(e sitemap.IndexEntry) error {
		nested = append(nested, e.GetLocation())
		return nil
	})
	if indexErr != nil || len(nested) == 0 {
		return nil, fmt.Errorf("robots: %s is neither a valid sitemap nor a sitemap index", sitemapURL)
	}

	for _, nestedURL := range nested {
		nestedURLs, err := s.FetchURLs(ctx, nestedURL)
		if err != nil {
			continue
		}
		urls = append(urls, nestedURLs...)
	}
	return urls, nil
}
