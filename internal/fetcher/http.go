package fetcher

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// DefaultRate throttles hosts that have no dedicated limiter.
	DefaultRate rate.Limit
	// RateLimiters holds fixed per-host limiters, keyed by host.
	RateLimiters map[string]*rate.Limiter
}

// HTTPFetcher downloads feed drops over HTTP with per-host throttling and
// retries on transient failures.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	limiters map[string]*rate.Limiter
	adaptive map[string]*AdaptiveLimiter
}

// DefaultRateLimiters throttles the award feed publishers to rates their
// operators tolerate.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"data.sba.gov":          rate.NewLimiter(5, 5),
		"api.usaspending.gov":   rate.NewLimiter(5, 5),
		"files.usaspending.gov": rate.NewLimiter(3, 3),
	}
}

// DefaultAdaptiveLimiters seeds self-tuning limiters for the same hosts.
func DefaultAdaptiveLimiters() map[string]*AdaptiveLimiter {
	return map[string]*AdaptiveLimiter{
		"data.sba.gov":          NewAdaptiveLimiter(5, 5),
		"api.usaspending.gov":   NewAdaptiveLimiter(5, 5),
		"files.usaspending.gov": NewAdaptiveLimiter(3, 3),
	}
}

// NewHTTPFetcher fills in defaults and builds the fetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "insight-engine/1.0"
	}
	if opts.DefaultRate == 0 {
		opts.DefaultRate = 20
	}

	limiters := make(map[string]*rate.Limiter, len(opts.RateLimiters))
	for host, lim := range opts.RateLimiters {
		limiters[host] = lim
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: limiters,
		adaptive: DefaultAdaptiveLimiters(),
	}
}

// limiterFor picks the fixed limiter for a URL's host. Hosts without a
// dedicated limiter get a fresh one at the default rate, so DefaultRate
// bounds each call rather than the host overall.
func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	if u, err := url.Parse(rawURL); err == nil {
		if lim, ok := f.limiters[u.Host]; ok {
			return lim
		}
	}
	return rate.NewLimiter(f.opts.DefaultRate, max(int(f.opts.DefaultRate), 1))
}

func (f *HTTPFetcher) adaptiveFor(u *url.URL) *AdaptiveLimiter {
	return f.adaptive[u.Host]
}

// throttle waits on the adaptive limiter when the host has one, otherwise
// on the fixed limiter.
func (f *HTTPFetcher) throttle(ctx context.Context, u *url.URL, adaptive *AdaptiveLimiter) error {
	var err error
	if adaptive != nil {
		err = adaptive.Wait(ctx)
	} else {
		err = f.limiterFor(u.String()).Wait(ctx)
	}
	if err != nil {
		return eris.Wrap(err, "rate limiter wait")
	}
	return nil
}

func (f *HTTPFetcher) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	adaptive := f.adaptiveFor(req.URL)

	var lastErr error
	for attempt := range f.opts.MaxRetries {
		if err := f.throttle(ctx, req.URL, adaptive); err != nil {
			return nil, err
		}

		resp, err := f.client.Do(req.Clone(ctx))
		switch {
		case err != nil:
			lastErr = err
			logRetry("http request failed, retrying", req, attempt, zap.Error(err))

		case resp.StatusCode == http.StatusTooManyRequests:
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http 429 from %s", req.URL)
			if adaptive != nil {
				adaptive.OnRateLimit()
			}
			logRetry("rate limited (429), backing off", req, attempt)

		case resp.StatusCode >= 500:
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http %d from %s", resp.StatusCode, req.URL)
			logRetry("server error, retrying", req, attempt, zap.Int("status", resp.StatusCode))

		default:
			if adaptive != nil {
				adaptive.OnSuccess()
			}
			return resp, nil
		}

		sleepBackoff(ctx, attempt)
	}

	return nil, eris.Wrap(lastErr, "all retries exhausted")
}

func logRetry(msg string, req *http.Request, attempt int, fields ...zap.Field) {
	fields = append(fields,
		zap.String("url", req.URL.String()),
		zap.Int("attempt", attempt+1),
	)
	zap.L().Warn(msg, fields...)
}

// sleepBackoff waits 1s, 2s, 4s, ... capped at 30s, plus up to 50% jitter.
// Returns early when ctx ends.
func sleepBackoff(ctx context.Context, attempt int) {
	const ceiling = 30 * time.Second
	d := time.Second << attempt
	if d <= 0 || d > ceiling {
		d = ceiling
	}
	d += time.Duration(rand.Int64N(int64(d) / 2))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Download fetches the URL and hands back the response body. The caller
// owns the close.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("download: unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return resp.Body, nil
}

// DownloadToFile fetches the URL into path and reports bytes written.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, body)
	if err != nil {
		return n, eris.Wrap(err, "write file")
	}
	return n, nil
}

// DownloadIfChanged does a conditional GET against the stored ETag. A 304
// returns (nil, etag, false, nil) so callers can skip an unchanged feed.
// The conditional probe is a single shot, no retries.
func (f *HTTPFetcher) DownloadIfChanged(ctx context.Context, rawURL string, etag string) (io.ReadCloser, string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", false, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	if err := f.limiterFor(rawURL).Wait(ctx); err != nil {
		return nil, "", false, eris.Wrap(err, "rate limiter wait")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", false, eris.Wrap(err, "download if changed")
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		_ = resp.Body.Close()
		return nil, etag, false, nil
	case resp.StatusCode != http.StatusOK:
		_ = resp.Body.Close()
		return nil, "", false, eris.Errorf("download if changed: unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	return resp.Body, resp.Header.Get("ETag"), true, nil
}
