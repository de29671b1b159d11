package crawler

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"newsroom/internal/domain"
)

// Extract applies a source's selector configuration to rendered HTML and
// returns a structured, possibly partial extraction. A selector that matches
// nothing yields an empty field rather than failing the whole extraction;
// the persistence gate decides whether a partial result is acceptable.
// pageURL is the address the document was fetched from; relative thumbnail
// references are resolved against it.
func Extract(htmlContent, pageURL string, sel domain.SourceSelectors) (*domain.Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	ex := &domain.Extraction{
		Title:     textOf(doc, sel.Title),
		Content:   textOf(doc, sel.Content),
		Author:    textOf(doc, sel.Author),
		Thumbnail: urlOf(doc, sel.Thumbnail, base),
	}

	if raw := dateOf(doc, sel.Date); raw != "" {
		if t, ok := parseDate(raw); ok {
			ex.PublishedAt = &t
		}
	}

	if sel.Topics != "" {
		doc.Find(sel.Topics).Each(func(_ int, s *goquery.Selection) {
			if topic := strings.TrimSpace(s.Text()); topic != "" {
				ex.Topics = append(ex.Topics, topic)
			}
		})
	}

	return ex, nil
}

// ExtractLinks returns all same-host absolute links found in the document.
// Off-host links are discarded immediately.
func ExtractLinks(htmlContent string, base *url.URL) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Hostname() != base.Hostname() {
			return
		}
		abs.Fragment = ""
		link := abs.String()
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	})
	return links, nil
}

func textOf(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

// urlOf pulls a URL-bearing value: src for images, content for meta tags,
// href for links, falling back to text. Relative references are resolved
// against base when one is available.
func urlOf(doc *goquery.Document, selector string, base *url.URL) string {
	if selector == "" {
		return ""
	}
	node := doc.Find(selector).First()
	raw := strings.TrimSpace(node.Text())
	for _, attr := range []string{"src", "content", "href"} {
		if v, ok := node.Attr(attr); ok && strings.TrimSpace(v) != "" {
			raw = strings.TrimSpace(v)
			break
		}
	}
	if raw == "" || base == nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}

// dateOf prefers machine-readable datetime/content attributes over node text.
func dateOf(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	node := doc.Find(selector).First()
	for _, attr := range []string{"datetime", "content"} {
		if v, ok := node.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return strings.TrimSpace(node.Text())
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"02.01.2006",
	"02/01/2006",
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
