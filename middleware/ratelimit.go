package middleware

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"musicseed-go/logcolors"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// visitor holds the token bucket for one client origin
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter is a token-bucket throttle per client origin, used for the
// cheap usage endpoints that never reach the AI backend
type IPRateLimiter struct {
	ips   map[string]*visitor
	mu    *sync.RWMutex
	rate  rate.Limit
	burst int
}

// NewIPRateLimiter creates a new per-origin token bucket limiter
func NewIPRateLimiter(r rate.Limit, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:   make(map[string]*visitor),
		mu:    &sync.RWMutex{},
		rate:  r,
		burst: burst,
	}
}

// GetLimit returns the burst limit
func (i *IPRateLimiter) GetLimit() int {
	return i.burst
}

func (i *IPRateLimiter) AddIP(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	limiter := rate.NewLimiter(i.rate, i.burst)
	i.ips[ip] = &visitor{limiter: limiter, lastSeen: time.Now()}

	return limiter
}

func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	v, exists := i.ips[ip]

	if !exists {
		i.mu.Unlock()
		return i.AddIP(ip)
	}

	v.lastSeen = time.Now()
	i.mu.Unlock()

	return v.limiter
}

// Tokens returns the whole tokens currently available for ip
func (i *IPRateLimiter) Tokens(ip string) int {
	return int(math.Floor(i.GetLimiter(ip).Tokens()))
}

// Prune removes origins not seen for longer than idle
func (i *IPRateLimiter) Prune(idle time.Duration) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	removed := 0
	for ip, v := range i.ips {
		if time.Since(v.lastSeen) > idle {
			delete(i.ips, ip)
			removed++
		}
	}
	return removed
}

// Throttle rejects requests from an origin whose bucket is empty
func Throttle(limiter *IPRateLimiter, onExceeded func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := ClientOrigin(r)
			l := limiter.GetLimiter(origin)

			if !l.Allow() {
				if onExceeded != nil {
					onExceeded()
				}
				log.Warnf("%s %s exceeded usage endpoint rate limit", logcolors.LogRateLimit, origin)
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.GetLimit()))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"kind":"rate_limited","error":"Too many requests"}`))
				return
			}

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.GetLimit()))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", int(math.Floor(l.Tokens()))))
			next.ServeHTTP(w, r)
		})
	}
}
