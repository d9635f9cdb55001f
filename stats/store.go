package stats

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"musicseed-go/logcolors"
	"musicseed-go/storage"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	// BucketName is the bucket the store persists into
	BucketName = "stats"
	statsKey   = "server_stats"
)

// Store persists the counters of a Stats instance into a shared database
type Store struct {
	db       *storage.DB
	stats    *Stats
	mu       sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// PersistedStats represents the stats data that gets persisted to disk
type PersistedStats struct {
	// Cumulative counters (these accumulate across restarts)
	TotalRequests     int64 `json:"total_requests"`
	SearchRequests    int64 `json:"search_requests"`
	AnalyzeRequests   int64 `json:"analyze_requests"`
	RefineRequests    int64 `json:"refine_requests"`
	UsageRequests     int64 `json:"usage_requests"`
	StatsRequests     int64 `json:"stats_requests"`
	HealthRequests    int64 `json:"health_requests"`
	OtherRequests     int64 `json:"other_requests"`
	RateLimitAllowed  int64 `json:"rate_limit_allowed"`
	RateLimitDenied   int64 `json:"rate_limit_denied"`
	RateLimitExceeded int64 `json:"rate_limit_exceeded"`
	UsageIncrements   int64 `json:"usage_increments"`
	UsageFailOpen     int64 `json:"usage_fail_open"`
	Status2xx         int64 `json:"status_2xx"`
	Status4xx         int64 `json:"status_4xx"`
	Status5xx         int64 `json:"status_5xx"`

	// Response time tracking
	TotalResponseTime int64 `json:"total_response_time"`
	ResponseCount     int64 `json:"response_count"`
	MinResponseTime   int64 `json:"min_response_time"`
	MaxResponseTime   int64 `json:"max_response_time"`
	AIResponseTime    int64 `json:"ai_response_time"`
	AIResponseCount   int64 `json:"ai_response_count"`

	Failures map[string]int64 `json:"failures"`

	// Metadata
	LastSaved    time.Time `json:"last_saved"`
	FirstStarted time.Time `json:"first_started"`
}

// NewStore binds s to the stats bucket of db. The bucket is created if missing.
func NewStore(db *storage.DB, s *Stats) (*Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stats bucket: %w", err)
	}

	log.Infof("%s Stats store initialized at %s", logcolors.LogStats, db.Path())
	return &Store{
		db:       db,
		stats:    s,
		stopChan: make(chan struct{}),
	}, nil
}

// Load reads persisted stats and applies them to the bound Stats
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var persisted PersistedStats
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketName))
		if b == nil {
			return nil
		}

		data := b.Get([]byte(statsKey))
		if data == nil {
			return nil // No persisted stats yet
		}
		found = true

		return json.Unmarshal(data, &persisted)
	})
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	if !found {
		return nil
	}

	st := s.stats
	st.TotalRequests.Store(persisted.TotalRequests)
	st.SearchRequests.Store(persisted.SearchRequests)
	st.AnalyzeRequests.Store(persisted.AnalyzeRequests)
	st.RefineRequests.Store(persisted.RefineRequests)
	st.UsageRequests.Store(persisted.UsageRequests)
	st.StatsRequests.Store(persisted.StatsRequests)
	st.HealthRequests.Store(persisted.HealthRequests)
	st.OtherRequests.Store(persisted.OtherRequests)
	st.RateLimitAllowed.Store(persisted.RateLimitAllowed)
	st.RateLimitDenied.Store(persisted.RateLimitDenied)
	st.RateLimitExceeded.Store(persisted.RateLimitExceeded)
	st.UsageIncrements.Store(persisted.UsageIncrements)
	st.UsageFailOpen.Store(persisted.UsageFailOpen)
	st.Status2xx.Store(persisted.Status2xx)
	st.Status4xx.Store(persisted.Status4xx)
	st.Status5xx.Store(persisted.Status5xx)
	st.totalResponseTime.Store(persisted.TotalResponseTime)
	st.responseCount.Store(persisted.ResponseCount)
	st.aiResponseTime.Store(persisted.AIResponseTime)
	st.aiResponseCount.Store(persisted.AIResponseCount)

	// Only update min/max if we have valid persisted values
	if persisted.MinResponseTime > 0 && persisted.MinResponseTime < int64(^uint64(0)>>1) {
		st.minResponseTime.Store(persisted.MinResponseTime)
	}
	if persisted.MaxResponseTime > 0 {
		st.maxResponseTime.Store(persisted.MaxResponseTime)
	}

	for kind, count := range persisted.Failures {
		counter := &atomic.Int64{}
		counter.Store(count)
		st.failures.Store(kind, counter)
	}

	if !persisted.FirstStarted.IsZero() {
		st.StartTime = persisted.FirstStarted
	}

	log.Infof("%s Loaded persisted stats (total requests: %d, first started: %s)",
		logcolors.LogStats, persisted.TotalRequests, persisted.FirstStarted.Format(time.RFC3339))

	return nil
}

// Save persists the current counters
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	persisted := PersistedStats{
		TotalRequests:     st.TotalRequests.Load(),
		SearchRequests:    st.SearchRequests.Load(),
		AnalyzeRequests:   st.AnalyzeRequests.Load(),
		RefineRequests:    st.RefineRequests.Load(),
		UsageRequests:     st.UsageRequests.Load(),
		StatsRequests:     st.StatsRequests.Load(),
		HealthRequests:    st.HealthRequests.Load(),
		OtherRequests:     st.OtherRequests.Load(),
		RateLimitAllowed:  st.RateLimitAllowed.Load(),
		RateLimitDenied:   st.RateLimitDenied.Load(),
		RateLimitExceeded: st.RateLimitExceeded.Load(),
		UsageIncrements:   st.UsageIncrements.Load(),
		UsageFailOpen:     st.UsageFailOpen.Load(),
		Status2xx:         st.Status2xx.Load(),
		Status4xx:         st.Status4xx.Load(),
		Status5xx:         st.Status5xx.Load(),
		TotalResponseTime: st.totalResponseTime.Load(),
		ResponseCount:     st.responseCount.Load(),
		MinResponseTime:   st.minResponseTime.Load(),
		MaxResponseTime:   st.maxResponseTime.Load(),
		AIResponseTime:    st.aiResponseTime.Load(),
		AIResponseCount:   st.aiResponseCount.Load(),
		Failures:          st.FailuresSnapshot(),
		LastSaved:         time.Now(),
		FirstStarted:      st.StartTime,
	}

	data, err := json.Marshal(persisted)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketName))
		if b == nil {
			return fmt.Errorf("stats bucket not found")
		}
		return b.Put([]byte(statsKey), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}

	return nil
}

// StartAutoSave begins periodic saving of stats
func (s *Store) StartAutoSave(interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.Save(); err != nil {
					log.Warnf("%s Failed to auto-save stats: %v", logcolors.LogStats, err)
				}
			case <-s.stopChan:
				return
			}
		}
	}()
	log.Infof("%s Started auto-save with interval %v", logcolors.LogStats, interval)
}

// Stop ends auto-save and writes a final snapshot. The database itself is
// left open; its owner closes it.
func (s *Store) Stop() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()

	if err := s.Save(); err != nil {
		log.Warnf("%s Failed to save stats on shutdown: %v", logcolors.LogStats, err)
		return err
	}
	log.Infof("%s Stats saved on shutdown", logcolors.LogStats)
	return nil
}
