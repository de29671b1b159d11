package scrape_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"newsroom/internal/domain"
	"newsroom/internal/scrape"
	"newsroom/internal/storage"
)

const (
	listingURL  = "https://news.example.com/"
	articleOne  = "https://news.example.com/politics/council-approves-new-budget-plan"
	articleTwo  = "https://news.example.com/world/trade-talks-resume-after-long-pause"
	untitledURL = "https://news.example.com/world/preview-page-with-no-headline-yet"
	brokenURL   = "https://news.example.com/tech/chip-plant-opens-amid-supply-woes"
)

func listingHTML() string {
	return fmt.Sprintf(`<html><body>
		<a href=%q>Budget</a>
		<a href=%q>Trade</a>
		<a href=%q>Preview</a>
		<a href=%q>Chips</a>
		<a href="https://elsewhere.example.org/offsite-story-not-ours-at-all">offsite</a>
	</body></html>`, articleOne, articleTwo, untitledURL, brokenURL)
}

func articleHTML(title string) string {
	return fmt.Sprintf(`<html><body>
		<h1 class="headline">%s</h1>
		<div class="article-body"><p>Body of %s.</p></div>
		<span class="byline">A. Reporter</span>
	</body></html>`, title, title)
}

// fakeFetcher serves canned pages and fails for URLs in errs.
type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	pages map[string]string
	errs  map[string]error
}

func (f *fakeFetcher) HTML(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	html, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("no such page %s", url)
	}
	return html, nil
}

// fakeGate is an in-memory dedup gate keyed by (source_id, source_url).
type fakeGate struct {
	mu       sync.Mutex
	articles map[string]*domain.Article
	topics   map[int64][]string
	nextID   int64
}

func newFakeGate() *fakeGate {
	return &fakeGate{articles: map[string]*domain.Article{}, topics: map[int64][]string{}}
}

func (g *fakeGate) key(sourceID int64, url string) string {
	return fmt.Sprintf("%d|%s", sourceID, url)
}

func (g *fakeGate) ArticleExists(_ context.Context, sourceID int64, url string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.articles[g.key(sourceID, url)]
	return ok, nil
}

func (g *fakeGate) InsertArticle(_ context.Context, a *domain.Article) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := g.key(a.SourceID, a.SourceURL)
	if _, ok := g.articles[k]; ok {
		return storage.ErrAlreadyExists
	}
	g.nextID++
	a.ID = g.nextID
	cp := *a
	g.articles[k] = &cp
	return nil
}

// LinkTopics mirrors the store's contract: names resolve case-insensitively
// and re-linking an existing (article, topic) pair is a no-op.
func (g *fakeGate) LinkTopics(_ context.Context, articleID int64, names []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, name := range names {
		linked := false
		for _, existing := range g.topics[articleID] {
			if strings.EqualFold(existing, name) {
				linked = true
				break
			}
		}
		if !linked {
			g.topics[articleID] = append(g.topics[articleID], name)
		}
	}
	return nil
}

type fakeCache struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeCache() *fakeCache { return &fakeCache{seen: map[string]bool{}} }

func (c *fakeCache) IsRecentlyScraped(_ context.Context, sourceID int64, url string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[fmt.Sprintf("%d|%s", sourceID, url)], nil
}

func (c *fakeCache) MarkScraped(_ context.Context, sourceID int64, url string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[fmt.Sprintf("%d|%s", sourceID, url)] = true
	return nil
}

type fakeEnricher struct {
	mu      sync.Mutex
	calls   []int64
	toggles []domain.EnrichmentToggles
}

func (e *fakeEnricher) Enrich(_ context.Context, art *domain.Article, toggles domain.EnrichmentToggles) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, art.ID)
	e.toggles = append(e.toggles, toggles)
}

type fakeSources struct {
	sources []domain.Source
}

func (s *fakeSources) ActiveSources(_ context.Context) ([]domain.Source, error) {
	return s.sources, nil
}

func (s *fakeSources) SourceByID(_ context.Context, id int64) (*domain.Source, error) {
	for _, src := range s.sources {
		if src.ID == id {
			return &src, nil
		}
	}
	return nil, storage.ErrNotFound
}

func testSource() domain.Source {
	return domain.Source{
		ID:     1,
		Name:   "Example News",
		URL:    listingURL,
		Active: true,
		Selectors: domain.SourceSelectors{
			Title:   "h1.headline",
			Content: "div.article-body",
			Author:  "span.byline",
		},
		Enrich: domain.EnrichmentToggles{Summary: true, Tags: true},
	}
}

func testFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: map[string]string{
			listingURL:  listingHTML(),
			articleOne:  articleHTML("Council Approves New Budget Plan"),
			articleTwo:  articleHTML("Trade Talks Resume"),
			untitledURL: `<html><body><div class="article-body"><p>No headline here.</p></div></body></html>`,
			brokenURL:   articleHTML("Chip Plant Opens"),
		},
		errs: map[string]error{},
	}
}

func newTestRunner(gate *fakeGate, cache *fakeCache, fetcher *fakeFetcher, enricher *fakeEnricher) *scrape.Runner {
	return scrape.NewRunner(
		&fakeSources{sources: []domain.Source{testSource()}},
		gate, cache, fetcher, fetcher, enricher,
		50, 100, 2, 48*time.Hour, nil, zap.NewNop())
}

func TestRunSource_MixedOutcomes(t *testing.T) {
	fetcher := testFetcher()
	fetcher.errs[brokenURL] = errors.New("render timeout")
	gate := newFakeGate()
	enricher := &fakeEnricher{}
	runner := newTestRunner(gate, newFakeCache(), fetcher, enricher)

	report, err := runner.RunSource(context.Background(), testSource(), nil)
	require.NoError(t, err)

	assert.Equal(t, 4, report.LinksFound)
	assert.Equal(t, 2, report.Added)   // the two well-formed articles
	assert.Equal(t, 1, report.Skipped) // the page with no headline
	assert.Equal(t, 1, report.Failed)  // the render failure
	assert.Len(t, gate.articles, 2)

	// Only persisted articles are enriched, with the source's own toggles.
	assert.Len(t, enricher.calls, 2)
	for _, tg := range enricher.toggles {
		assert.True(t, tg.Summary)
		assert.False(t, tg.Image)
	}
}

func TestRunSource_PartialExtractionStillPersists(t *testing.T) {
	gate := newFakeGate()
	runner := newTestRunner(gate, newFakeCache(), testFetcher(), &fakeEnricher{})

	report, err := runner.RunSource(context.Background(), testSource(), nil)
	require.NoError(t, err)
	require.Equal(t, 3, report.Added)

	for _, art := range gate.articles {
		assert.NotEmpty(t, art.Title)
		assert.NotEmpty(t, art.Content)
		// The selectors carry no date or thumbnail; persistence proceeds anyway.
		assert.Nil(t, art.PublishedAt)
		assert.Empty(t, art.ThumbnailURL)
	}
}

func TestRunSource_SecondRunIsIdempotent(t *testing.T) {
	gate := newFakeGate()
	cache := newFakeCache()
	enricher := &fakeEnricher{}
	runner := newTestRunner(gate, cache, testFetcher(), enricher)

	first, err := runner.RunSource(context.Background(), testSource(), nil)
	require.NoError(t, err)
	require.Equal(t, 3, first.Added)

	second, err := runner.RunSource(context.Background(), testSource(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Added)
	assert.Equal(t, 4, second.Skipped)
	assert.Len(t, gate.articles, 3)
	assert.Len(t, enricher.calls, 3)
}

func TestRunSource_DuplicateInStoreIsBenign(t *testing.T) {
	gate := newFakeGate()
	// Seed the store as if another worker inserted one article already;
	// the cold cache forces the run through the relational gate.
	require.NoError(t, gate.InsertArticle(context.Background(), &domain.Article{
		SourceID: 1, SourceURL: articleOne, Title: "Council Approves New Budget Plan",
	}))
	runner := newTestRunner(gate, newFakeCache(), testFetcher(), &fakeEnricher{})

	report, err := runner.RunSource(context.Background(), testSource(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 0, report.Failed)
}

func TestRunSource_OverridesReplaceSourceToggles(t *testing.T) {
	enricher := &fakeEnricher{}
	runner := newTestRunner(newFakeGate(), newFakeCache(), testFetcher(), enricher)

	overrides := &domain.EnrichmentToggles{Image: true}
	_, err := runner.RunSource(context.Background(), testSource(), overrides)
	require.NoError(t, err)

	require.NotEmpty(t, enricher.toggles)
	for _, tg := range enricher.toggles {
		assert.True(t, tg.Image)
		assert.False(t, tg.Summary)
	}
}

func TestRunAll_ReportsEverySource(t *testing.T) {
	gate := newFakeGate()
	fetcher := testFetcher()
	runner := scrape.NewRunner(
		&fakeSources{sources: []domain.Source{testSource()}},
		gate, newFakeCache(), fetcher, fetcher, &fakeEnricher{},
		50, 100, 2, 48*time.Hour, nil, zap.NewNop())

	reports, err := runner.RunAll(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "Example News", reports[0].SourceName)
	assert.Equal(t, 3, reports[0].Added)
}

func TestRunSource_StaticSourceSkipsRenderer(t *testing.T) {
	render := &fakeFetcher{pages: map[string]string{}, errs: map[string]error{}}
	static := testFetcher()
	runner := scrape.NewRunner(
		&fakeSources{sources: []domain.Source{testSource()}},
		newFakeGate(), newFakeCache(), render, static, &fakeEnricher{},
		50, 100, 2, 48*time.Hour, nil, zap.NewNop())

	src := testSource()
	src.ScrapeMethod = domain.ScrapeMethodStatic
	report, err := runner.RunSource(context.Background(), src, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Added)
	assert.Zero(t, render.calls)
}

func TestRunSource_UnknownMethodRendersHeadlessly(t *testing.T) {
	render := testFetcher()
	static := &fakeFetcher{pages: map[string]string{}, errs: map[string]error{}}
	runner := scrape.NewRunner(
		&fakeSources{sources: []domain.Source{testSource()}},
		newFakeGate(), newFakeCache(), render, static, &fakeEnricher{},
		50, 100, 2, 48*time.Hour, nil, zap.NewNop())

	src := testSource()
	src.ScrapeMethod = "rss"
	report, err := runner.RunSource(context.Background(), src, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Added)
	assert.Zero(t, static.calls)
}

func TestRunSource_RepeatTopicLinksKeepOneAssociation(t *testing.T) {
	page := `<html><body>
	  <h1 class="headline">Storm Season Arrives</h1>
	  <div class="article-body"><p>Body.</p></div>
	  <ul><li class="tag">Weather</li><li class="tag">Weather</li><li class="tag">weather</li></ul>
	</body></html>`
	fetcher := &fakeFetcher{
		pages: map[string]string{
			listingURL: fmt.Sprintf(`<html><body><a href=%q>Storm</a></body></html>`, articleOne),
			articleOne: page,
		},
		errs: map[string]error{},
	}
	src := testSource()
	src.Selectors.Topics = "li.tag"
	gate := newFakeGate()
	runner := newTestRunner(gate, newFakeCache(), fetcher, &fakeEnricher{})

	report, err := runner.RunSource(context.Background(), src, nil)
	require.NoError(t, err)
	require.Equal(t, 1, report.Added)
	assert.Equal(t, []string{"Weather"}, gate.topics[1])
}

func TestRunSourceByID_UnknownSource(t *testing.T) {
	runner := newTestRunner(newFakeGate(), newFakeCache(), testFetcher(), &fakeEnricher{})
	_, err := runner.RunSourceByID(context.Background(), 99, nil)
	require.ErrorIs(t, err, storage.ErrNotFound)
}
