package scrape

import (
	"context"

	"newsroom/internal/monitoring"
	"newsroom/internal/render"
)

// PoolRenderer adapts the render pool to the crawler's Fetcher interface.
// It acquires a session per page and releases it before returning, so no
// session is ever held across an enrichment-stage boundary.
type PoolRenderer struct {
	pool    *render.Pool
	metrics *monitoring.Metrics
}

func NewPoolRenderer(pool *render.Pool, metrics *monitoring.Metrics) *PoolRenderer {
	return &PoolRenderer{pool: pool, metrics: metrics}
}

func (r *PoolRenderer) HTML(ctx context.Context, url string) (string, error) {
	session, err := r.pool.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer r.pool.Release(session)

	html, err := session.HTML(ctx, url)
	if err != nil {
		return "", err
	}
	r.metrics.IncPagesCrawled()
	return html, nil
}
