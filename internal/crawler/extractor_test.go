package crawler_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsroom/internal/crawler"
	"newsroom/internal/domain"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>Page Title</title></head>
<body>
  <h1 class="headline">  Landmark Accord Signed  </h1>
  <div class="byline">Jane Doe</div>
  <time class="published" datetime="2024-03-18T09:30:00Z">March 18, 2024</time>
  <img class="lead-image" src="/img/lead.jpg">
  <div class="article-body"><p>First paragraph.</p><p>Second paragraph.</p></div>
  <ul><li class="tag">Politics</li><li class="tag">Climate</li></ul>
</body>
</html>`

var fullSelectors = domain.SourceSelectors{
	Title:     "h1.headline",
	Content:   "div.article-body",
	Date:      "time.published",
	Author:    "div.byline",
	Thumbnail: "img.lead-image",
	Topics:    "li.tag",
}

const pageURL = "https://news.example.com/politics/landmark-accord-signed-today"

func TestExtract_AllFields(t *testing.T) {
	ex, err := crawler.Extract(articleHTML, pageURL, fullSelectors)
	require.NoError(t, err)

	assert.Equal(t, "Landmark Accord Signed", ex.Title)
	assert.Equal(t, "First paragraph.Second paragraph.", ex.Content)
	assert.Equal(t, "Jane Doe", ex.Author)
	assert.Equal(t, []string{"Politics", "Climate"}, ex.Topics)

	require.NotNil(t, ex.PublishedAt)
	want := time.Date(2024, 3, 18, 9, 30, 0, 0, time.UTC)
	assert.True(t, ex.PublishedAt.Equal(want))
}

func TestExtract_ThumbnailResolvedAgainstPage(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"root-relative", "/img/lead.jpg", "https://news.example.com/img/lead.jpg"},
		{"relative", "lead.jpg", "https://news.example.com/politics/lead.jpg"},
		{"absolute", "https://cdn.example.net/lead.jpg", "https://cdn.example.net/lead.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := `<html><body><img class="lead-image" src="` + tt.src + `"></body></html>`
			ex, err := crawler.Extract(html, pageURL, domain.SourceSelectors{Thumbnail: "img.lead-image"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ex.Thumbnail)
		})
	}
}

func TestExtract_MissingSelectorsYieldEmptyFields(t *testing.T) {
	ex, err := crawler.Extract(articleHTML, pageURL, domain.SourceSelectors{
		Title:     "h2.no-such-element",
		Content:   "div.article-body",
		Thumbnail: "img.missing",
	})
	require.NoError(t, err)

	assert.Empty(t, ex.Title)
	assert.NotEmpty(t, ex.Content)
	assert.Empty(t, ex.Author)
	assert.Empty(t, ex.Thumbnail)
	assert.Nil(t, ex.PublishedAt)
	assert.Nil(t, ex.Topics)
}

func TestExtract_TextDateFallback(t *testing.T) {
	html := `<html><body><span class="date">January 2, 2026</span></body></html>`
	ex, err := crawler.Extract(html, pageURL, domain.SourceSelectors{Date: "span.date"})
	require.NoError(t, err)
	require.NotNil(t, ex.PublishedAt)
	assert.Equal(t, 2026, ex.PublishedAt.Year())
}

func TestExtract_UnparseableDateIsNil(t *testing.T) {
	html := `<html><body><span class="date">three days ago</span></body></html>`
	ex, err := crawler.Extract(html, pageURL, domain.SourceSelectors{Date: "span.date"})
	require.NoError(t, err)
	assert.Nil(t, ex.PublishedAt)
}

func TestExtractLinks_SameHostOnlyAndDeduplicated(t *testing.T) {
	base, err := url.Parse("https://news.example.com/section")
	require.NoError(t, err)

	html := `<html><body>
	  <a href="/a">one</a>
	  <a href="/a">dup</a>
	  <a href="relative-page">two</a>
	  <a href="https://news.example.com/b#fragment">three</a>
	  <a href="https://elsewhere.example.org/c">off-host</a>
	</body></html>`

	links, err := crawler.ExtractLinks(html, base)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"https://news.example.com/a",
		"https://news.example.com/relative-page",
		"https://news.example.com/b",
	}, links)
}
