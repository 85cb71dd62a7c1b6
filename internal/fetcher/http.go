package fetcher

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultRate    rate.Limit = 20
	maxErrorBody              = 512
	maxBackoff                = 30 * time.Second
	defaultUA                 = "usgs-gages/1.0"
	defaultTimeout            = 60 * time.Second
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration

	// MaxRetries is the total number of attempts. 1 disables retries.
	MaxRetries int

	// Limiters maps a host (with port, if any) to its limiter. Hosts not
	// listed share a fixed 20 req/s limit.
	Limiters map[string]*AdaptiveLimiter

	// BackoffBase is the first retry delay; later delays double.
	BackoffBase time.Duration
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("fetcher: reducing rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher using net/http with retry and rate limiting.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	fallback *rate.Limiter
}

// HostLimiter returns a single-entry limiter map for the host of rawURL.
// An unparsable URL yields an empty map.
func HostLimiter(rawURL string, perSec float64) map[string]*AdaptiveLimiter {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || perSec <= 0 {
		return map[string]*AdaptiveLimiter{}
	}
	burst := max(int(perSec), 1)
	return map[string]*AdaptiveLimiter{
		u.Host: NewAdaptiveLimiter(rate.Limit(perSec), burst),
	}
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUA
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Second
	}
	if opts.Limiters == nil {
		opts.Limiters = map[string]*AdaptiveLimiter{}
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		fallback: rate.NewLimiter(defaultRate, int(defaultRate)),
	}
}

// limiterFor returns the adaptive limiter for the URL's host, or nil when
// the host has none.
func (f *HTTPFetcher) limiterFor(u *url.URL) *AdaptiveLimiter {
	return f.opts.Limiters[u.Host]
}

func (f *HTTPFetcher) wait(ctx context.Context, adaptive *AdaptiveLimiter) error {
	if adaptive != nil {
		return adaptive.Wait(ctx)
	}
	return f.fallback.Wait(ctx)
}

func (f *HTTPFetcher) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	adaptive := f.limiterFor(req.URL)
	log := zap.L().With(zap.String("component", "fetcher"), zap.String("url", req.URL.String()))

	var lastErr error
	for attempt := range f.opts.MaxRetries {
		if attempt > 0 {
			if err := f.backoff(ctx, attempt-1); err != nil {
				return nil, eris.Wrap(err, "fetcher: backoff")
			}
		}
		if err := f.wait(ctx, adaptive); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}

		resp, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			log.Warn("http request failed", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = statusError(resp)
			if adaptive != nil {
				adaptive.OnRateLimit()
			}
			log.Warn("rate limited (429)", zap.Int("attempt", attempt+1))
			continue
		case resp.StatusCode >= 500:
			lastErr = statusError(resp)
			log.Warn("server error", zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt+1))
			continue
		}

		if adaptive != nil {
			adaptive.OnSuccess()
		}
		return resp, nil
	}

	if f.opts.MaxRetries == 1 {
		return nil, lastErr
	}
	return nil, eris.Wrapf(lastErr, "all %d attempts failed", f.opts.MaxRetries)
}

// backoff sleeps for the attempt's delay plus jitter. It returns early with
// the context's error when ctx is done.
func (f *HTTPFetcher) backoff(ctx context.Context, attempt int) error {
	d := time.Duration(float64(f.opts.BackoffBase) * math.Pow(2, float64(attempt)))
	d = min(d, maxBackoff)
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Download fetches the URL and returns the response body. Any status other
// than 200 is returned as a *StatusError.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: download")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Wrap(statusError(resp), "fetcher: download")
	}
	return resp.Body, nil
}

// statusError drains the start of the body into a StatusError and closes it.
func statusError(resp *http.Response) *StatusError {
	defer resp.Body.Close() //nolint:errcheck
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		StatusCode: resp.StatusCode,
		URL:        resp.Request.URL.String(),
		Body:       strings.TrimSpace(string(snippet)),
	}
}
