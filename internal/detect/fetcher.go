package detect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

//go:generate mockgen -source=fetcher.go -destination=fetcher_mock.go -package=detect

// Fetcher retrieves a tracked page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

var ErrRateLimited = errors.New("provider rate limited")

// RateLimitError is returned when a provider pushes back (429/503). It is a
// recoverable condition; RetryAfter is zero when the provider did not say.
type RateLimitError struct {
	Status     int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider rate limited (%d), retry after %s", e.Status, e.RetryAfter)
	}
	return fmt.Sprintf("provider rate limited (%d)", e.Status)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

const maxBodyBytes = 4 << 20

type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	perHost   rate.Limit
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher rate limits requests per host; ratePerSec <= 0 disables it.
func NewHTTPFetcher(userAgent string, timeout time.Duration, ratePerSec float64) *HTTPFetcher {
	lim := rate.Inf
	if ratePerSec > 0 {
		lim = rate.Limit(ratePerSec)
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		perHost:   lim,
		burst:     1,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (f *HTTPFetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(f.perHost, f.burst)
		f.limiters[host] = l
	}
	return l
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Page{}, fmt.Errorf("invalid detect url %q", rawURL)
	}
	if err := f.limiter(u.Host).Wait(ctx); err != nil {
		return Page{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return Page{URL: rawURL, Status: resp.StatusCode}, &RateLimitError{
			Status:     resp.StatusCode,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, fmt.Errorf("read %s: %w", u.Host, err)
	}
	return Page{URL: rawURL, Status: resp.StatusCode, Body: string(body)}, nil
}

func retryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
