package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Fetcher renders a URL and returns its HTML. Implemented by render.Session
// wrappers in production and by fakes in tests.
type Fetcher interface {
	HTML(ctx context.Context, url string) (string, error)
}

// Discoverer runs a breadth-limited link crawl from a source's root URL and
// returns candidate article URLs. Each crawl processes its frontier
// sequentially; the visited and frontier caps guarantee termination
// regardless of site structure.
type Discoverer struct {
	fetcher  Fetcher
	maxPages int
	maxQueue int
	logger   *zap.Logger
}

func NewDiscoverer(f Fetcher, maxPages, maxQueue int, logger *zap.Logger) *Discoverer {
	if maxPages <= 0 {
		maxPages = 50
	}
	if maxQueue <= 0 {
		maxQueue = 100
	}
	return &Discoverer{fetcher: f, maxPages: maxPages, maxQueue: maxQueue, logger: logger}
}

// Discover crawls from rootURL and returns a deduplicated set of URLs
// classified as likely articles. Per-page fetch failures are logged and
// skipped; they never abort the crawl.
func (d *Discoverer) Discover(ctx context.Context, rootURL string) ([]string, error) {
	root, err := url.Parse(rootURL)
	if err != nil {
		return nil, fmt.Errorf("parse root url %q: %w", rootURL, err)
	}

	frontier := []string{root.String()}
	visited := make(map[string]bool)
	articles := make(map[string]bool)

	for len(frontier) > 0 && len(visited) < d.maxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := frontier[0]
		frontier = frontier[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		html, err := d.fetcher.HTML(ctx, current)
		if err != nil {
			d.logger.Warn("failed to fetch page, skipping",
				zap.String("url", current), zap.Error(err))
			continue
		}

		links, err := ExtractLinks(html, root)
		if err != nil {
			d.logger.Warn("failed to parse page links, skipping",
				zap.String("url", current), zap.Error(err))
			continue
		}

		for _, link := range links {
			if visited[link] {
				continue
			}
			if LooksLikeArticle(link) {
				articles[link] = true
			} else if len(frontier) < d.maxQueue {
				frontier = append(frontier, link)
			}
		}
	}

	result := make([]string, 0, len(articles))
	for u := range articles {
		result = append(result, u)
	}
	d.logger.Info("discovery crawl finished",
		zap.String("root", rootURL),
		zap.Int("pages_visited", len(visited)),
		zap.Int("candidates", len(result)))
	return result, nil
}

// LooksLikeArticle classifies a URL as a likely article page using a
// path-segment length heuristic: article slugs tend to be long,
// hyphen-separated last segments, while section pages are short.
func LooksLikeArticle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return false
	}
	segments := strings.Split(path, "/")
	last := segments[len(segments)-1]
	last = strings.TrimSuffix(last, ".html")
	if len(last) >= 30 {
		return true
	}
	return strings.Count(last, "-") >= 3
}
