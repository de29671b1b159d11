package enrich

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is the single retry-with-backoff policy shared by every enrichment
// stage for transient upstream failures (timeouts, rate limits). Validation
// failures are marked with Permanent and never retried.
type Policy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Do runs op with exponential backoff until it succeeds, returns a permanent
// error, exhausts the attempt budget, or the context is canceled.
func (p Policy) Do(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, p.MaxRetries), ctx))
}

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
