package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"newsroom/internal/monitoring"
)

// maxDocumentBytes caps how much of a response body a static fetch reads.
const maxDocumentBytes = 10 << 20

const staticUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// StaticFetcher serves sources whose pages do not need a browser: one plain
// HTTP GET of the document, no script execution, no asset loads at all.
type StaticFetcher struct {
	client  *http.Client
	metrics *monitoring.Metrics
}

func NewStaticFetcher(timeout time.Duration, metrics *monitoring.Metrics) *StaticFetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &StaticFetcher{
		client:  &http.Client{Timeout: timeout},
		metrics: metrics,
	}
}

func (f *StaticFetcher) HTML(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", staticUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("fetch %s: %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}

	f.metrics.IncPagesCrawled()
	return string(body), nil
}
