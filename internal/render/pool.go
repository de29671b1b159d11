package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrNavTimeout marks a navigation that exceeded the session timeout. It is a
// session-level failure: the browser itself is still healthy.
var ErrNavTimeout = errors.New("navigation timed out")

// blockedResources are asset types aborted before the page can load them.
var blockedResources = map[network.ResourceType]bool{
	network.ResourceTypeImage:      true,
	network.ResourceTypeFont:       true,
	network.ResourceTypeStylesheet: true,
	network.ResourceTypeMedia:      true,
}

// Pool hands out page-rendering sessions backed by a single headless browser
// process. The browser is launched lazily on first Acquire; concurrent
// acquires during launch share one in-flight initialization.
type Pool struct {
	navTimeout time.Duration
	logger     *zap.Logger
	agents     *agentRing

	init singleflight.Group

	mu            sync.Mutex
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewPool creates an empty pool. No browser is started until first Acquire.
func NewPool(navTimeout time.Duration, logger *zap.Logger) *Pool {
	return &Pool{
		navTimeout: navTimeout,
		logger:     logger,
		agents:     newAgentRing(),
	}
}

// Acquire returns a fresh rendering session (a browser tab). The caller must
// Release it and must not hold it across an enrichment-stage boundary.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err, _ := p.init.Do("browser", func() (interface{}, error) {
		return p.browser()
	})
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	tabCtx, cancel := chromedp.NewContext(v.(context.Context))
	s := &Session{
		ctx:     tabCtx,
		cancel:  cancel,
		timeout: p.navTimeout,
		pool:    p,
	}
	s.interceptRequests()
	return s, nil
}

// Release closes the session's tab. Safe to call more than once and on nil.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Invalidate tears down the browser so the next Acquire relaunches cleanly.
// This is the sole recovery path after an engine crash or disconnect.
func (p *Pool) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browserCancel != nil {
		p.browserCancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
	p.allocCtx, p.allocCancel = nil, nil
	p.browserCtx, p.browserCancel = nil, nil
	p.logger.Warn("render pool invalidated, browser will relaunch on next acquire")
}

// Close shuts the browser down for good.
func (p *Pool) Close() {
	p.Invalidate()
}

// browser returns the shared browser context, launching the process if needed.
func (p *Pool) browser() (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browserCtx != nil {
		return p.browserCtx, nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(p.agents.next()),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	// The first context created from the allocator owns the browser process;
	// it must stay alive for the lifetime of the pool.
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}

	p.allocCtx, p.allocCancel = allocCtx, allocCancel
	p.browserCtx, p.browserCancel = browserCtx, browserCancel
	p.logger.Info("headless browser launched")
	return browserCtx, nil
}

// Session is a short-lived page handle (one browser tab).
type Session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	pool    *Pool
	once    sync.Once
}

// HTML navigates to url and returns the rendered document. Exceeding the
// navigation timeout fails the session, not the pool; a dead browser context
// invalidates the pool so the next acquire relaunches.
func (s *Session) HTML(ctx context.Context, url string) (string, error) {
	runCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(runCtx,
		fetch.Enable(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s", ErrNavTimeout, url)
		}
		if s.ctx.Err() != nil && ctx.Err() == nil {
			// The tab's parent died underneath us, not the caller.
			s.pool.Invalidate()
		}
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	return html, nil
}

// interceptRequests aborts non-essential asset loads (images, fonts,
// stylesheets, media) before the network fetches them.
func (s *Session) interceptRequests() {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(s.ctx)
			ectx := cdp.WithExecutor(s.ctx, c.Target)
			if blockedResources[paused.ResourceType] {
				_ = fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(ectx)
				return
			}
			_ = fetch.ContinueRequest(paused.RequestID).Do(ectx)
		}()
	})
}
