package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats holds all server statistics with atomic counters
type Stats struct {
	// Server info
	StartTime time.Time

	// Request counters
	TotalRequests   atomic.Int64
	SearchRequests  atomic.Int64
	AnalyzeRequests atomic.Int64
	RefineRequests  atomic.Int64
	UsageRequests   atomic.Int64
	StatsRequests   atomic.Int64
	HealthRequests  atomic.Int64
	OtherRequests   atomic.Int64

	// Rate limiting
	RateLimitAllowed  atomic.Int64 // AI calls admitted by the window limiter
	RateLimitDenied   atomic.Int64 // AI calls refused by the window limiter
	RateLimitExceeded atomic.Int64 // ledger requests throttled (429)

	// Usage ledger
	UsageIncrements atomic.Int64
	UsageFailOpen   atomic.Int64

	// Response status codes
	Status2xx atomic.Int64
	Status4xx atomic.Int64
	Status5xx atomic.Int64

	// Response time tracking (in microseconds for precision)
	totalResponseTime atomic.Int64
	responseCount     atomic.Int64
	minResponseTime   atomic.Int64
	maxResponseTime   atomic.Int64

	// AI endpoint response times (microseconds)
	aiResponseTime  atomic.Int64
	aiResponseCount atomic.Int64

	// Failures keyed by error kind
	failures sync.Map // map[string]*atomic.Int64
}

// Global stats instance
var global = newStats()

func newStats() *Stats {
	s := &Stats{StartTime: time.Now()}
	s.minResponseTime.Store(int64(^uint64(0) >> 1)) // Max int64
	return s
}

// Get returns the global stats instance
func Get() *Stats {
	return global
}

// RecordRequest records a request to a specific operation
func (s *Stats) RecordRequest(endpoint string) {
	s.TotalRequests.Add(1)
	switch endpoint {
	case "search":
		s.SearchRequests.Add(1)
	case "analyze":
		s.AnalyzeRequests.Add(1)
	case "refine":
		s.RefineRequests.Add(1)
	case "usage":
		s.UsageRequests.Add(1)
	case "stats":
		s.StatsRequests.Add(1)
	case "health":
		s.HealthRequests.Add(1)
	default:
		s.OtherRequests.Add(1)
	}
}

// RecordRateLimit records the outcome of a rate limit check
func (s *Stats) RecordRateLimit(outcome string) {
	switch outcome {
	case "allowed":
		s.RateLimitAllowed.Add(1)
	case "denied":
		s.RateLimitDenied.Add(1)
	case "exceeded":
		s.RateLimitExceeded.Add(1)
	}
}

// RecordFailure counts a failed operation by its error kind
func (s *Stats) RecordFailure(kind string) {
	counter, _ := s.failures.LoadOrStore(kind, &atomic.Int64{})
	counter.(*atomic.Int64).Add(1)
}

// FailuresSnapshot returns a copy of the failure counters
func (s *Stats) FailuresSnapshot() map[string]int64 {
	result := make(map[string]int64)
	s.failures.Range(func(key, value any) bool {
		result[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})
	return result
}

// RecordUsageIncrement records a successful ledger increment
func (s *Stats) RecordUsageIncrement() {
	s.UsageIncrements.Add(1)
}

// RecordUsageFailOpen records a quota check answered without the store
func (s *Stats) RecordUsageFailOpen() {
	s.UsageFailOpen.Add(1)
}

// RecordStatusCode records a response status code
func (s *Stats) RecordStatusCode(code int) {
	switch {
	case code >= 200 && code < 300:
		s.Status2xx.Add(1)
	case code >= 400 && code < 500:
		s.Status4xx.Add(1)
	case code >= 500:
		s.Status5xx.Add(1)
	}
}

// RecordResponseTime records a response time
func (s *Stats) RecordResponseTime(duration time.Duration, endpoint string) {
	us := duration.Microseconds()

	s.totalResponseTime.Add(us)
	s.responseCount.Add(1)

	for {
		current := s.minResponseTime.Load()
		if us >= current || s.minResponseTime.CompareAndSwap(current, us) {
			break
		}
	}
	for {
		current := s.maxResponseTime.Load()
		if us <= current || s.maxResponseTime.CompareAndSwap(current, us) {
			break
		}
	}

	switch endpoint {
	case "/api/search", "/api/analyze", "/api/refine":
		s.aiResponseTime.Add(us)
		s.aiResponseCount.Add(1)
	}
}

// Uptime returns the server uptime
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// RateLimitDenyRate returns the share of AI calls refused, as a percentage
func (s *Stats) RateLimitDenyRate() float64 {
	allowed := s.RateLimitAllowed.Load()
	denied := s.RateLimitDenied.Load()
	total := allowed + denied
	if total == 0 {
		return 0
	}
	return float64(denied) / float64(total) * 100
}

// AvgResponseTime returns the average response time
func (s *Stats) AvgResponseTime() time.Duration {
	count := s.responseCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(s.totalResponseTime.Load()/count) * time.Microsecond
}

// MinResponseTime returns the minimum response time
func (s *Stats) MinResponseTime() time.Duration {
	min := s.minResponseTime.Load()
	if min == int64(^uint64(0)>>1) {
		return 0
	}
	return time.Duration(min) * time.Microsecond
}

// MaxResponseTime returns the maximum response time
func (s *Stats) MaxResponseTime() time.Duration {
	return time.Duration(s.maxResponseTime.Load()) * time.Microsecond
}

// AvgAIResponseTime returns the average response time of the proxied AI operations
func (s *Stats) AvgAIResponseTime() time.Duration {
	count := s.aiResponseCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(s.aiResponseTime.Load()/count) * time.Microsecond
}

// Snapshot returns a point-in-time snapshot of all stats
func (s *Stats) Snapshot() map[string]interface{} {
	uptime := s.Uptime()

	return map[string]interface{}{
		"server": map[string]interface{}{
			"start_time":     s.StartTime.Format(time.RFC3339),
			"uptime":         uptime.String(),
			"uptime_seconds": int64(uptime.Seconds()),
		},
		"requests": map[string]interface{}{
			"total":   s.TotalRequests.Load(),
			"search":  s.SearchRequests.Load(),
			"analyze": s.AnalyzeRequests.Load(),
			"refine":  s.RefineRequests.Load(),
			"usage":   s.UsageRequests.Load(),
			"stats":   s.StatsRequests.Load(),
			"health":  s.HealthRequests.Load(),
			"other":   s.OtherRequests.Load(),
		},
		"rate_limiting": map[string]interface{}{
			"allowed":   s.RateLimitAllowed.Load(),
			"denied":    s.RateLimitDenied.Load(),
			"deny_rate": s.RateLimitDenyRate(),
			"throttled": s.RateLimitExceeded.Load(),
		},
		"usage": map[string]interface{}{
			"increments": s.UsageIncrements.Load(),
			"fail_open":  s.UsageFailOpen.Load(),
		},
		"failures": s.FailuresSnapshot(),
		"responses": map[string]interface{}{
			"2xx": s.Status2xx.Load(),
			"4xx": s.Status4xx.Load(),
			"5xx": s.Status5xx.Load(),
		},
		"response_times": map[string]interface{}{
			"avg":    s.AvgResponseTime().String(),
			"min":    s.MinResponseTime().String(),
			"max":    s.MaxResponseTime().String(),
			"avg_ai": s.AvgAIResponseTime().String(),
		},
	}
}
