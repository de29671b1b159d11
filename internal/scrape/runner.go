package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"newsroom/internal/crawler"
	"newsroom/internal/domain"
	"newsroom/internal/monitoring"
	"newsroom/internal/storage"
)

// SourceStore provides source configuration reads.
type SourceStore interface {
	ActiveSources(ctx context.Context) ([]domain.Source, error)
	SourceByID(ctx context.Context, id int64) (*domain.Source, error)
}

// Gate is the dedup and persistence gate articles pass through before any
// enrichment spend occurs.
type Gate interface {
	ArticleExists(ctx context.Context, sourceID int64, sourceURL string) (bool, error)
	InsertArticle(ctx context.Context, a *domain.Article) error
	LinkTopics(ctx context.Context, articleID int64, names []string) error
}

// RecentCache short-circuits URLs scraped within the TTL without touching
// the relational store.
type RecentCache interface {
	IsRecentlyScraped(ctx context.Context, sourceID int64, url string) (bool, error)
	MarkScraped(ctx context.Context, sourceID int64, url string, ttl time.Duration) error
}

// Enricher runs the per-article enrichment stages.
type Enricher interface {
	Enrich(ctx context.Context, art *domain.Article, toggles domain.EnrichmentToggles)
}

// Runner orchestrates one scrape: discovery, extraction, the dedup gate, and
// enrichment. Per-source crawls run concurrently with each other; each
// crawl's frontier is processed sequentially.
type Runner struct {
	sources   SourceStore
	gate      Gate
	cache     RecentCache
	render    crawler.Fetcher
	static    crawler.Fetcher
	enricher  Enricher
	maxPages  int
	maxQueue  int
	recentTTL time.Duration
	workers   int
	metrics   *monitoring.Metrics
	logger    *zap.Logger
}

func NewRunner(
	sources SourceStore,
	gate Gate,
	cache RecentCache,
	render crawler.Fetcher,
	static crawler.Fetcher,
	enricher Enricher,
	maxPages, maxQueue, workers int,
	recentTTL time.Duration,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Runner {
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		sources:   sources,
		gate:      gate,
		cache:     cache,
		render:    render,
		static:    static,
		enricher:  enricher,
		maxPages:  maxPages,
		maxQueue:  maxQueue,
		recentTTL: recentTTL,
		workers:   workers,
		metrics:   metrics,
		logger:    logger,
	}
}

// fetcherFor picks the fetch path a source declares. Unknown methods fall
// back to headless rendering, which works for static documents too.
func (r *Runner) fetcherFor(src domain.Source) crawler.Fetcher {
	switch src.ScrapeMethod {
	case domain.ScrapeMethodStatic:
		return r.static
	case domain.ScrapeMethodRender, "":
		return r.render
	default:
		r.logger.Warn("unknown scrape method, rendering headlessly",
			zap.Int64("source_id", src.ID),
			zap.String("scrape_method", src.ScrapeMethod))
		return r.render
	}
}

// RunAll scrapes every active source with bounded concurrency. A failing
// source is logged and reported; it never aborts the other sources.
func (r *Runner) RunAll(ctx context.Context, overrides *domain.EnrichmentToggles) ([]domain.ScrapeReport, error) {
	sources, err := r.sources.ActiveSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active sources: %w", err)
	}

	reports := make([]domain.ScrapeReport, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, src := range sources {
		g.Go(func() error {
			report, err := r.RunSource(gctx, src, overrides)
			if err != nil {
				r.logger.Error("source scrape failed",
					zap.Int64("source_id", src.ID), zap.Error(err))
			}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()
	return reports, nil
}

// RunSourceByID scrapes one source by id.
func (r *Runner) RunSourceByID(ctx context.Context, id int64, overrides *domain.EnrichmentToggles) (domain.ScrapeReport, error) {
	src, err := r.sources.SourceByID(ctx, id)
	if err != nil {
		return domain.ScrapeReport{SourceID: id}, err
	}
	return r.RunSource(ctx, *src, overrides)
}

// RunSource discovers candidate URLs for one source, pushes each through the
// dedup gate, and enriches the articles that make it in. Per-URL failures
// are counted and skipped; they never abort the source run.
func (r *Runner) RunSource(ctx context.Context, src domain.Source, overrides *domain.EnrichmentToggles) (domain.ScrapeReport, error) {
	start := time.Now()
	report := domain.ScrapeReport{SourceID: src.ID, SourceName: src.Name}

	toggles := src.Enrich
	if overrides != nil {
		toggles = *overrides
	}

	fetcher := r.fetcherFor(src)
	discoverer := crawler.NewDiscoverer(fetcher, r.maxPages, r.maxQueue, r.logger)
	candidates, err := discoverer.Discover(ctx, src.URL)
	if err != nil {
		return report, fmt.Errorf("discover %s: %w", src.URL, err)
	}
	report.LinksFound = len(candidates)

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r.processCandidate(ctx, src, fetcher, candidate, toggles, &report)
	}

	r.metrics.ObserveCrawlDuration(src.Name, time.Since(start))
	r.logger.Info("source scrape finished",
		zap.Int64("source_id", src.ID),
		zap.String("source", src.Name),
		zap.Int("links_found", report.LinksFound),
		zap.Int("added", report.Added),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (r *Runner) processCandidate(ctx context.Context, src domain.Source, fetcher crawler.Fetcher, url string, toggles domain.EnrichmentToggles, report *domain.ScrapeReport) {
	recent, err := r.cache.IsRecentlyScraped(ctx, src.ID, url)
	if err != nil {
		r.logger.Warn("recent-scrape cache check failed",
			zap.String("url", url), zap.Error(err))
	}
	if recent {
		report.Skipped++
		r.metrics.IncArticlesSkipped(src.Name, "recent")
		return
	}

	// The dedup gate: no enrichment spend for URLs we already hold.
	exists, err := r.gate.ArticleExists(ctx, src.ID, url)
	if err != nil {
		report.Failed++
		r.logger.Error("dedup check failed", zap.String("url", url), zap.Error(err))
		return
	}
	if exists {
		report.Skipped++
		r.metrics.IncArticlesSkipped(src.Name, "duplicate")
		r.markScraped(ctx, src.ID, url)
		return
	}

	html, err := fetcher.HTML(ctx, url)
	if err != nil {
		report.Failed++
		r.logger.Warn("failed to render candidate, skipping",
			zap.String("url", url), zap.Error(err))
		return
	}

	ex, err := crawler.Extract(html, url, src.Selectors)
	if err != nil {
		report.Failed++
		r.logger.Warn("extraction failed, skipping",
			zap.String("url", url), zap.Error(err))
		return
	}
	// A missing title is fatal for the candidate; other missing fields are not.
	if ex.Title == "" {
		report.Skipped++
		r.metrics.IncArticlesSkipped(src.Name, "missing_title")
		r.logger.Info("candidate has no title, skipping", zap.String("url", url))
		return
	}

	art := &domain.Article{
		SourceID:     src.ID,
		SourceURL:    url,
		Title:        ex.Title,
		Content:      ex.Content,
		Author:       ex.Author,
		PublishedAt:  ex.PublishedAt,
		ThumbnailURL: ex.Thumbnail,
		Topics:       ex.Topics,
	}
	if err := r.gate.InsertArticle(ctx, art); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			report.Skipped++
			r.metrics.IncArticlesSkipped(src.Name, "duplicate")
			r.markScraped(ctx, src.ID, url)
			return
		}
		report.Failed++
		r.logger.Error("failed to insert article", zap.String("url", url), zap.Error(err))
		return
	}
	r.markScraped(ctx, src.ID, url)

	if len(ex.Topics) > 0 {
		if err := r.gate.LinkTopics(ctx, art.ID, ex.Topics); err != nil {
			r.logger.Warn("failed to link extracted topics",
				zap.Int64("article_id", art.ID), zap.Error(err))
		}
	}

	report.Added++
	r.metrics.IncArticlesAdded(src.Name)
	r.logger.Info("article persisted",
		zap.Int64("article_id", art.ID), zap.String("url", url))

	r.enricher.Enrich(ctx, art, toggles)
}

func (r *Runner) markScraped(ctx context.Context, sourceID int64, url string) {
	if err := r.cache.MarkScraped(ctx, sourceID, url, r.recentTTL); err != nil {
		r.logger.Warn("failed to mark URL as scraped",
			zap.String("url", url), zap.Error(err))
	}
}
