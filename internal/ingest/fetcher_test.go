package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestIsPrivateAddr(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"192.168.1.10", true},
		{"169.254.169.254", true},
		{"0.0.0.0", true},
		{"224.0.0.1", true},
		{"::1", true},
		{"fe80::1", true},
		{"fd00::1", true},
		{"::ffff:127.0.0.1", true},
		{"::ffff:10.0.0.1", true},
		{"145.12.1.1", false},
		{"2a02:58::1", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			if got := isPrivateAddr(netip.MustParseAddr(tt.addr)); got != tt.want {
				t.Errorf("isPrivateAddr(%s) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestRefusePrivateAddress(t *testing.T) {
	if err := refusePrivateAddress("tcp4", "10.0.0.5:443", nil); err == nil {
		t.Error("expected a private address to be refused")
	}
	if err := refusePrivateAddress("tcp6", "[::1]:80", nil); err == nil {
		t.Error("expected loopback to be refused")
	}
	if err := refusePrivateAddress("tcp4", "145.12.1.1:443", nil); err != nil {
		t.Errorf("expected a public address to pass, got %v", err)
	}
}

func TestRateLimitedFetcher_BlocksLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach a loopback server")
	}))
	defer srv.Close()

	f := NewRateLimitedFetcher(FetchConfig{TimeoutSeconds: 2, MaxRetries: 1, RateLimitRPS: 1000})
	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "blocked private address") {
		t.Fatalf("expected a blocked address error, got %v", err)
	}
}

func TestRateLimitedFetcher_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"ok": true}`)
	}))
	defer srv.Close()

	f := NewRateLimitedFetcher(FetchConfig{MaxRetries: 2, RateLimitRPS: 1000, Burst: 5, AllowPrivateHosts: true})
	doc, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer doc.Body.Close()
	body, _ := io.ReadAll(doc.Body)
	if string(body) != `{"ok": true}` || calls.Load() != 2 {
		t.Fatalf("expected success on the second attempt, got %q after %d calls", body, calls.Load())
	}
}

func TestRateLimitedFetcher_NoRetryOnNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewRateLimitedFetcher(FetchConfig{MaxRetries: 3, RateLimitRPS: 1000, AllowPrivateHosts: true})
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected an error for 404")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestCollyFetcherWithConfig_SharedLimiter(t *testing.T) {
	f := CollyFetcherWithConfig(FetchConfig{RateLimitRPS: 4, Burst: 2})
	if f.Limiter == nil {
		t.Fatal("expected a limiter")
	}
	if f.Limiter.Limit() != rate.Limit(4) || f.Limiter.Burst() != 2 {
		t.Fatalf("expected 4 rps burst 2, got %v/%d", f.Limiter.Limit(), f.Limiter.Burst())
	}
}

func TestCollyFetcher_ThrottlesAcrossCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	f := NewCollyFetcher()
	f.Limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		doc, err := f.Fetch(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("Fetch %d: %v", i, err)
		}
		if doc.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", doc.StatusCode)
		}
	}
	if elapsed := time.Since(start); elapsed < 180*time.Millisecond {
		t.Fatalf("expected three fetches to be spread over the limiter, took %v", elapsed)
	}
}
