// Package browser renders provider pages in headless Chrome for sites that
// build their registration UI client-side.
package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/camprush/camprush/internal/detect"
	"github.com/camprush/camprush/internal/logger"
)

type Options struct {
	UserAgent string
	Timeout   time.Duration
	// Settle is how long to let client-side scripts run after navigation.
	Settle time.Duration
}

// Renderer owns one browser process; each call gets its own tab.
type Renderer struct {
	log  *logger.Logger
	opts Options

	allocCtx    context.Context
	allocCancel context.CancelFunc

	// one tab at a time keeps memory bounded on small hosts
	mu sync.Mutex
}

func New(log *logger.Logger, opts Options) *Renderer {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	if opts.Settle <= 0 {
		opts.Settle = 2 * time.Second
	}
	allocCtx, cancel := chromedp.NewExecAllocator(
		context.Background(),
		append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(opts.UserAgent),
			chromedp.WindowSize(1280, 1600),
		)...,
	)
	return &Renderer{
		log:         log.With("component", "browser"),
		opts:        opts,
		allocCtx:    allocCtx,
		allocCancel: cancel,
	}
}

func (r *Renderer) Close() {
	r.allocCancel()
}

func (r *Renderer) tab(ctx context.Context) (context.Context, context.CancelFunc) {
	tabCtx, tabCancel := chromedp.NewContext(r.allocCtx)
	timeoutCtx, timeoutCancel := context.WithTimeout(tabCtx, r.opts.Timeout)

	// propagate caller cancellation into the tab
	stop := context.AfterFunc(ctx, timeoutCancel)
	return timeoutCtx, func() {
		stop()
		timeoutCancel()
		tabCancel()
	}
}

// Fetch renders rawURL and returns the resulting DOM. It satisfies
// detect.Fetcher so the monitor can switch between plain GETs and rendering.
func (r *Renderer) Fetch(ctx context.Context, rawURL string) (detect.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tabCtx, cancel := r.tab(ctx)
	defer cancel()

	var (
		html   string
		status int
	)
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(rawURL),
		chromedp.Sleep(r.opts.Settle),
		chromedp.OuterHTML("html", &html),
		chromedp.Evaluate(`window.performance?.getEntriesByType?.('navigation')?.[0]?.responseStatus || 200`, &status),
	)
	if err != nil {
		return detect.Page{}, fmt.Errorf("render %s: %w", rawURL, err)
	}
	if status == 429 || status == 503 {
		return detect.Page{URL: rawURL, Status: status}, &detect.RateLimitError{Status: status}
	}
	r.log.Debug("page rendered", "url", rawURL, "status", status, "bytes", len(html))
	return detect.Page{URL: rawURL, Status: status, Body: html}, nil
}

// Screenshot returns a full-page JPEG of rawURL.
func (r *Renderer) Screenshot(ctx context.Context, rawURL string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tabCtx, cancel := r.tab(ctx)
	defer cancel()

	var buf []byte
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(rawURL),
		chromedp.Sleep(r.opts.Settle),
		chromedp.FullScreenshot(&buf, 80),
	)
	if err != nil {
		return nil, fmt.Errorf("screenshot %s: %w", rawURL, err)
	}
	return buf, nil
}

// DataURL encodes a screenshot for multimodal model input.
func DataURL(jpeg []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
}
