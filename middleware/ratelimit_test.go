package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// TestNewIPRateLimiter tests the creation of a new IPRateLimiter.
func TestNewIPRateLimiter(t *testing.T) {
	rl := NewIPRateLimiter(1, 5)
	if rl == nil {
		t.Fatalf("Expected IPRateLimiter to be created, got nil")
	}
	if rl.rate != 1 {
		t.Errorf("Expected rate limit to be 1, got %v", rl.rate)
	}
	if rl.burst != 5 {
		t.Errorf("Expected burst limit to be 5, got %v", rl.burst)
	}
}

// TestAddIP tests adding a new IP to the rate limiter.
func TestAddIP(t *testing.T) {
	rl := NewIPRateLimiter(1, 5)
	ip := "192.168.1.1"
	limiter := rl.AddIP(ip)
	if limiter == nil {
		t.Errorf("Expected limiter to be created for IP, got nil")
	}
	if _, exists := rl.ips[ip]; !exists {
		t.Errorf("Expected IP to be added to ips map, but it was not found")
	}
}

// TestGetLimiter tests that the same limiter is returned for an IP.
func TestGetLimiter(t *testing.T) {
	rl := NewIPRateLimiter(1, 5)
	ip := "192.168.1.1"
	first := rl.GetLimiter(ip)
	second := rl.GetLimiter(ip)
	if first != second {
		t.Errorf("Expected the same limiter to be returned for the same IP")
	}
}

// TestRateLimiting tests the token bucket behaviour.
func TestRateLimiting(t *testing.T) {
	rl := NewIPRateLimiter(rate.Limit(1), 1)
	ip := "192.168.1.1"
	limiter := rl.GetLimiter(ip)

	if !limiter.Allow() {
		t.Errorf("Expected first request to be allowed")
	}
	if limiter.Allow() {
		t.Errorf("Expected second request to be denied due to rate limiting")
	}

	time.Sleep(1 * time.Second)
	if !limiter.Allow() {
		t.Errorf("Expected request to be allowed after waiting")
	}
}

func TestTokens(t *testing.T) {
	rl := NewIPRateLimiter(rate.Limit(10), 10)
	ip := "192.168.1.3"

	if tokens := rl.Tokens(ip); tokens != 10 {
		t.Errorf("Expected 10 tokens initially, got %d", tokens)
	}
	rl.GetLimiter(ip).Allow()
	if tokens := rl.Tokens(ip); tokens != 9 {
		t.Errorf("Expected 9 tokens after one request, got %d", tokens)
	}
}

func TestPrune(t *testing.T) {
	rl := NewIPRateLimiter(rate.Limit(1), 1)
	rl.GetLimiter("stale")
	rl.ips["stale"].lastSeen = time.Now().Add(-2 * time.Hour)
	rl.GetLimiter("fresh")

	if removed := rl.Prune(time.Hour); removed != 1 {
		t.Errorf("Expected 1 origin pruned, got %d", removed)
	}
	if _, ok := rl.ips["fresh"]; !ok {
		t.Error("Expected fresh origin to be kept")
	}
}

func TestThrottle(t *testing.T) {
	rl := NewIPRateLimiter(rate.Limit(0.001), 2)
	exceeded := 0
	handler := Throttle(rl, func() { exceeded++ })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := []int{}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/usage/abc", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("Expected first two requests to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected third request to be throttled, got %d", codes[2])
	}
	if exceeded != 1 {
		t.Errorf("Expected exceeded callback once, got %d", exceeded)
	}
}
