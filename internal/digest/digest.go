package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"newsroom/internal/domain"
	"newsroom/internal/monitoring"
	"newsroom/internal/storage"
)

// ErrNoArticles aborts a digest run whose trailing window is empty; no
// edition row is written.
var ErrNoArticles = errors.New("no articles in digest window")

const window = 7 * 24 * time.Hour

// Synthesizer is the slice of the enrichment pipeline the digest needs.
type Synthesizer interface {
	SummarizeDigest(ctx context.Context, corpus string) (string, error)
	SubmitNarration(ctx context.Context, text string) (string, error)
	GenerateImage(ctx context.Context, subject, keyPrefix string) (string, error)
}

// Store runs the digest sequence inside one transaction boundary.
type Store interface {
	WithDigestTx(ctx context.Context, fn func(storage.DigestTx) error) error
}

// Generator produces the weekly edition over the trailing 7-day article
// window. Unlike per-article enrichment, generation order is strict and each
// step's failure is terminal for the run — except image generation, which
// only costs the edition its image.
type Generator struct {
	store   Store
	synth   Synthesizer
	metrics *monitoring.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewGenerator(store Store, synth Synthesizer, metrics *monitoring.Metrics, logger *zap.Logger) *Generator {
	return &Generator{
		store:   store,
		synth:   synth,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Generate selects, summarizes, narrates, illustrates, and upserts the
// edition for today's calendar day. A second run on the same day updates the
// existing row in place; a mid-sequence failure leaves no partial row.
func (g *Generator) Generate(ctx context.Context) (*domain.DigestEdition, error) {
	var edition *domain.DigestEdition

	err := g.store.WithDigestTx(ctx, func(tx storage.DigestTx) error {
		now := g.now()
		articles, err := tx.ArticlesSince(ctx, now.Add(-window))
		if err != nil {
			return fmt.Errorf("select digest window: %w", err)
		}
		if len(articles) == 0 {
			return ErrNoArticles
		}

		summary, err := g.synth.SummarizeDigest(ctx, buildCorpus(articles))
		if err != nil {
			return fmt.Errorf("digest summary: %w", err)
		}

		taskID, err := g.synth.SubmitNarration(ctx, summary)
		if err != nil {
			return fmt.Errorf("digest narration: %w", err)
		}

		// Image is the one non-terminal step: the edition still publishes
		// without one.
		imageURL, err := g.synth.GenerateImage(ctx, summary, "digests")
		if err != nil {
			g.logger.Warn("digest image generation failed, publishing without image",
				zap.Error(err))
			imageURL = ""
		}

		day := now.Truncate(24 * time.Hour)
		edition = &domain.DigestEdition{
			Title:           fmt.Sprintf("Sunday Edition - %s", day.Format("January 2, 2006")),
			Summary:         summary,
			NarrationTaskID: taskID,
			ImageURL:        imageURL,
			PublishedOn:     day,
		}
		return tx.UpsertEdition(ctx, edition)
	})
	if err != nil {
		g.metrics.IncDigestRun("failure")
		return nil, err
	}

	g.metrics.IncDigestRun("success")
	g.logger.Info("digest edition published",
		zap.Int64("edition_id", edition.ID),
		zap.String("published_on", edition.PublishedOn.Format("2006-01-02")))
	return edition, nil
}

// buildCorpus concatenates the window's articles most-recent-first; the
// recency bias in the synthesized narrative is intentional.
func buildCorpus(articles []domain.Article) string {
	var b strings.Builder
	for _, a := range articles {
		b.WriteString("## ")
		b.WriteString(a.Title)
		b.WriteString("\n")
		if a.Summary != "" {
			b.WriteString(a.Summary)
		} else {
			b.WriteString(a.Content)
		}
		b.WriteString("\n\n")
	}
	return b.String()
}
