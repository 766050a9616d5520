package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// CollyFetcher implements Fetcher using Colly. Selected with fetch.engine "colly".
// A collector is built per call so it can carry the caller's context; the
// limiter is shared so concurrent detail fetches are throttled together.
type CollyFetcher struct {
	UserAgent       string
	MaxRetries      int
	RequestTimeout  time.Duration
	Limiter         *rate.Limiter
	IgnoreRobotsTxt bool
	MaxBodySize     int // bytes, 0 = unlimited
	AcceptLanguage  string
}

// NewCollyFetcher creates a CollyFetcher with sensible defaults.
func NewCollyFetcher() *CollyFetcher {
	return &CollyFetcher{
		UserAgent:       userAgent,
		MaxRetries:      3,
		RequestTimeout:  30 * time.Second,
		Limiter:         rate.NewLimiter(rate.Limit(1), 1),
		IgnoreRobotsTxt: true,
		MaxBodySize:     20 * 1024 * 1024,
		AcceptLanguage:  "nl-NL,nl;q=0.9,en;q=0.5",
	}
}

// CollyFetcherWithConfig creates a CollyFetcher from a FetchConfig.
func CollyFetcherWithConfig(cfg FetchConfig) *CollyFetcher {
	f := NewCollyFetcher()
	if cfg.TimeoutSeconds > 0 {
		f.RequestTimeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	f.Limiter = newLimiter(cfg)
	if cfg.MaxRetries > 0 {
		f.MaxRetries = cfg.MaxRetries
	}
	if cfg.AcceptLanguage != "" {
		f.AcceptLanguage = cfg.AcceptLanguage
	}
	return f
}

func (f *CollyFetcher) buildCollector(ctx context.Context, host string) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.UserAgent(f.UserAgent),
		colly.MaxBodySize(f.MaxBodySize),
		colly.AllowURLRevisit(),
		colly.AllowedDomains(host),
		colly.StdlibContext(ctx),
	}
	if f.IgnoreRobotsTxt {
		opts = append(opts, colly.IgnoreRobotsTxt())
	}

	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(f.RequestTimeout)

	// Runs for retries too, so every request on the wire takes a token.
	c.OnRequest(func(r *colly.Request) {
		if f.Limiter != nil {
			if err := f.Limiter.Wait(ctx); err != nil {
				r.Abort()
				return
			}
		}
		r.Headers.Set("Accept", acceptHeader)
		r.Headers.Set("Accept-Language", f.AcceptLanguage)
	})
	return c
}

// Fetch implements the Fetcher interface. Colly visits synchronously, so the
// callbacks have run by the time Visit returns.
func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string) (*FetchedDocument, error) {
	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	c := f.buildCollector(ctx, parsedURL.Hostname())

	var result *FetchedDocument
	var fetchErr error
	retries := 0

	c.OnResponse(func(r *colly.Response) {
		result = &FetchedDocument{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        io.NopCloser(bytes.NewReader(r.Body)),
			FetchedAt:   time.Now(),
			Headers:     map[string][]string(*r.Headers),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		retryable := r.StatusCode == 0 || retryableStatus(r.StatusCode)
		if retryable && retries < f.MaxRetries && ctx.Err() == nil {
			retries++
			log.Printf("[Colly] Retry %d/%d for %s: %v", retries, f.MaxRetries, r.Request.URL, err)
			time.Sleep(time.Duration(retries) * time.Second)
			if rerr := r.Request.Retry(); rerr == nil {
				return
			}
		}
		fetchErr = fmt.Errorf("fetch %s failed (status %d): %w", r.Request.URL, r.StatusCode, err)
	})

	visitErr := c.Visit(targetURL)
	if fetchErr != nil {
		return nil, fetchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}
	if visitErr != nil {
		return nil, fmt.Errorf("visit failed: %w", visitErr)
	}
	return nil, fmt.Errorf("no response received for %s", targetURL)
}
