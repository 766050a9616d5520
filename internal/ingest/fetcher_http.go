package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"syscall"
	"time"

	"golang.org/x/time/rate"
)

const (
	userAgent    = "TenderFinder/1.0 (+https://www.tenderned.nl)"
	acceptHeader = "application/json, text/html;q=0.9, */*;q=0.8"

	defaultTimeout        = 30 * time.Second
	defaultMaxRetries     = 3
	defaultAcceptLanguage = "nl-NL,nl;q=0.9,en;q=0.5"
	maxRedirects          = 10
)

var errBlockedAddress = errors.New("blocked private address")

// RateLimitedFetcher is the default "http" engine: one client and one token
// bucket shared by every request of a source, with retries on transient errors.
type RateLimitedFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	cfg     FetchConfig
}

func NewRateLimitedFetcher(cfg FetchConfig) *RateLimitedFetcher {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = defaultAcceptLanguage
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	if !cfg.AllowPrivateHosts {
		dialer.Control = refusePrivateAddress
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if cfg.ProxyURL != "" {
		if proxyURL, err := url.Parse(cfg.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &RateLimitedFetcher{
		client: &http.Client{
			Timeout:       timeout,
			Transport:     transport,
			CheckRedirect: limitRedirects,
		},
		limiter: newLimiter(cfg),
		cfg:     cfg,
	}
}

func newLimiter(cfg FetchConfig) *rate.Limiter {
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// refusePrivateAddress runs on the resolved address being dialed, so
// redirects and DNS answers are covered as well.
func refusePrivateAddress(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", errBlockedAddress, address)
	}
	if isPrivateAddr(ap.Addr()) {
		return fmt.Errorf("%w: %s", errBlockedAddress, ap.Addr())
	}
	return nil
}

func isPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return !addr.IsValid() || addr.IsLoopback() || addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsMulticast() || addr.IsUnspecified()
}

func limitRedirects(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("redirect scheme blocked")
	}
	return nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// backoff is 0.5s, 1s, 2s, ... plus up to 100ms of jitter.
func backoff(attempt int) time.Duration {
	return time.Duration(500*(1<<uint(attempt-1)))*time.Millisecond +
		time.Duration(rand.Intn(100))*time.Millisecond
}

func (f *RateLimitedFetcher) Fetch(ctx context.Context, rawURL string) (*FetchedDocument, error) {
	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", acceptHeader)
		req.Header.Set("Accept-Language", f.cfg.AcceptLanguage)

		resp, err := f.client.Do(req)
		if err != nil {
			if isTimeout(err) && ctx.Err() == nil {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			return &FetchedDocument{
				URL:         rawURL,
				StatusCode:  resp.StatusCode,
				ContentType: resp.Header.Get("Content-Type"),
				Body:        resp.Body,
				FetchedAt:   time.Now(),
				Headers:     resp.Header,
			}, nil
		}

		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		if !retryableStatus(resp.StatusCode) {
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		lastErr = fmt.Errorf("status code %d", resp.StatusCode)
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
