package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(maxRetries int) *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:   "test-agent",
		Timeout:     5 * time.Second,
		MaxRetries:  maxRetries,
		BackoffBase: time.Millisecond,
	})
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "rdb", r.URL.Query().Get("format"))
		w.Write([]byte("hello world")) //nolint:errcheck
	}))
	defer srv.Close()

	f := newTestFetcher(1)
	body, err := f.Download(context.Background(), srv.URL+"/nwis/site/?format=rdb")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestDownload_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("  Error 400 - bBox is malformed \n")) //nolint:errcheck
	}))
	defer srv.Close()

	f := newTestFetcher(3)
	_, err := f.Download(context.Background(), srv.URL+"/bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "Error 400 - bBox is malformed", se.Body)
}

func TestDownload_NoRetryByDefault(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{BackoffBase: time.Millisecond})
	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 503")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestRetryOnServerError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("success")) //nolint:errcheck
	}))
	defer srv.Close()

	f := newTestFetcher(3)
	body, err := f.Download(context.Background(), srv.URL+"/retry")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "success", string(data))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRetryExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(2)
	_, err := f.Download(context.Background(), srv.URL+"/fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 attempts failed")
}

func TestRetryOnNetworkError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 2 {
			if hj, ok := w.(http.Hijacker); ok {
				conn, _, _ := hj.Hijack()
				conn.Close() //nolint:errcheck
				return
			}
		}
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer srv.Close()

	f := newTestFetcher(3)
	body, err := f.Download(context.Background(), srv.URL+"/net-err")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}

func TestDownload_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher(1).Download(ctx, srv.URL+"/data")
	require.Error(t, err)
}

func TestDownload_InvalidURL(t *testing.T) {
	_, err := newTestFetcher(1).Download(context.Background(), "://invalid-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create request")
}

func TestRateLimiting(t *testing.T) {
	var mu sync.Mutex
	var reqTimes []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reqTimes = append(reqTimes, time.Now())
		mu.Unlock()
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer srv.Close()

	// 2 req/s with a burst of 2: the third request waits about half a second.
	f := NewHTTPFetcher(HTTPOptions{
		UserAgent: "test-agent",
		Timeout:   5 * time.Second,
		Limiters:  HostLimiter(srv.URL, 2),
	})

	for range 3 {
		body, err := f.Download(context.Background(), srv.URL+"/limited")
		require.NoError(t, err)
		body.Close() //nolint:errcheck
	}

	require.Len(t, reqTimes, 3)
	duration := reqTimes[2].Sub(reqTimes[0])
	assert.GreaterOrEqual(t, duration.Milliseconds(), int64(300), "requests should be rate limited")
}

func TestDoWithRetry_429_AdaptiveBackoff(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	limiters := map[string]*AdaptiveLimiter{u.Host: NewAdaptiveLimiter(100, 100)}

	f := NewHTTPFetcher(HTTPOptions{
		MaxRetries:  3,
		Limiters:    limiters,
		BackoffBase: time.Millisecond,
	})

	body, err := f.Download(context.Background(), srv.URL+"/data")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	assert.Equal(t, int32(3), attempts.Load())
	// 100 -> 50 -> 25 -> 30
	assert.InDelta(t, 30.0, float64(limiters[u.Host].Limit()), 0.01)
}

func TestNewHTTPFetcher_Defaults(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	assert.Equal(t, "usgs-gages/1.0", f.opts.UserAgent)
	assert.Equal(t, 60*time.Second, f.opts.Timeout)
	assert.Equal(t, 1, f.opts.MaxRetries)
	assert.Equal(t, time.Second, f.opts.BackoffBase)
	assert.NotNil(t, f.opts.Limiters)
}

func TestHostLimiter(t *testing.T) {
	limiters := HostLimiter("https://waterservices.usgs.gov/nwis/site/", 5)
	require.Contains(t, limiters, "waterservices.usgs.gov")
	assert.InDelta(t, 5.0, float64(limiters["waterservices.usgs.gov"].Limit()), 0.001)

	assert.Empty(t, HostLimiter("://bad", 5))
	assert.Empty(t, HostLimiter("https://waterservices.usgs.gov/", 0))
}

func TestBackoff_ContextCancelled(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{BackoffBase: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := f.backoff(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 10)

	lim.OnSuccess()
	assert.InDelta(t, 12.0, float64(lim.Limit()), 0.1)
	for range 20 {
		lim.OnSuccess()
	}
	assert.InDelta(t, 20.0, float64(lim.Limit()), 0.1)

	for range 10 {
		lim.OnRateLimit()
	}
	assert.InDelta(t, 2.5, float64(lim.Limit()), 0.1)
}

func TestAdaptiveLimiter_Wait_ContextCancelled(t *testing.T) {
	lim := NewAdaptiveLimiter(0.001, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, lim.Wait(ctx))
}

func TestStatusError_Message(t *testing.T) {
	e := &StatusError{StatusCode: 404, URL: "http://x"}
	assert.Equal(t, "unexpected status 404 from http://x", e.Error())

	e.Body = "No sites found"
	assert.Equal(t, "unexpected status 404 from http://x: No sites found", e.Error())
}
