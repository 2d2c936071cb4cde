// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/seedcrawl/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxRedirects caps followed redirects. Zero refuses every redirect.
	MaxRedirects int
	// MaxBodyBytes caps the stored body. Larger bodies are cut and flagged.
	MaxBodyBytes int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		UserAgent:    "seedcrawl/1.0 (+https://github.com/JakeFAU/seedcrawl)",
		Timeout:      30 * time.Second,
		MaxRedirects: 5,
		MaxBodyBytes: 8 << 20,
	}
}

// Fetcher implements crawler.Fetcher using the Colly collector. Clones of the
// base collector share its HTTP client and connection pool.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type redirectCountKey struct{}

// New builds a Fetcher. A nil transport selects a pooled default.
func New(cfg Config, transport http.RoundTripper) *Fetcher {
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if cfg.MaxRedirects < 0 {
		cfg.MaxRedirects = defaults.MaxRedirects
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.UserAgent(cfg.UserAgent),
		// one extra byte tells a body that exactly fills the cap from one
		// that overflows it
		colly.MaxBodySize(cfg.MaxBodyBytes+1),
	)
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)
	c.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		// len(via) counts this redirect; only followed redirects are reported
		if len(via) > cfg.MaxRedirects {
			return errTooManyRedirects
		}
		if counter, ok := req.Context().Value(redirectCountKey{}).(*atomic.Int32); ok {
			counter.Store(int32(len(via)))
		}
		return nil
	})

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. Failures are reported on the outcome.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) crawler.FetchOutcome {
	outcome := crawler.FetchOutcome{URL: rawURL}
	if err := validateURL(rawURL); err != nil {
		outcome.Err = &crawler.FetchError{Kind: crawler.ErrorKindInvalidURL, URL: rawURL, Err: err}
		return outcome
	}
	if err := ctx.Err(); err != nil {
		outcome.Err = &crawler.FetchError{Kind: crawler.ErrorKindCanceled, URL: rawURL, Err: err}
		return outcome
	}

	var (
		fetchErr  error
		redirects atomic.Int32
	)
	start := time.Now()
	collector := f.buildCollector(context.WithValue(ctx, redirectCountKey{}, &redirects))
	f.configureCollectorHooks(collector, start, &outcome, &fetchErr)

	if err := collector.Visit(rawURL); err != nil && fetchErr == nil {
		fetchErr = err
	}
	outcome.Redirects = int(redirects.Load())
	if outcome.Elapsed == 0 {
		outcome.Elapsed = time.Since(start)
	}
	if fetchErr == nil && outcome.StatusCode == 0 {
		fetchErr = errNoResponse
	}
	if fetchErr != nil {
		outcome.StatusCode = 0
		outcome.Body = nil
		outcome.Truncated = false
		outcome.Err = &crawler.FetchError{Kind: Classify(fetchErr), URL: rawURL, Err: fetchErr}
	}
	return outcome
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	outcome *crawler.FetchOutcome,
	fetchErr *error,
) {
	limit := f.cfg.MaxBodyBytes
	hooks.OnResponse(func(r *colly.Response) {
		body := r.Body
		truncated := false
		if len(body) > limit {
			body = body[:limit]
			truncated = true
		}
		outcome.FinalURL = r.Request.URL.String()
		outcome.StatusCode = r.StatusCode
		outcome.Body = append([]byte(nil), body...)
		outcome.Truncated = truncated
		outcome.Elapsed = time.Since(start)
		if r.Headers != nil {
			outcome.ContentType = r.Headers.Get("Content-Type")
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errUnsupportedScheme
	}
	if u.Host == "" {
		return errMissingHost
	}
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}

var _ crawler.Fetcher = (*Fetcher)(nil)
