package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"musicseed-go/circuitbreaker"
	"musicseed-go/config"
	"musicseed-go/ledger"
	"musicseed-go/logcolors"
	"musicseed-go/middleware"
	"musicseed-go/ratelimit"
	"musicseed-go/services/gateway"
	"musicseed-go/services/notifier"
	"musicseed-go/stats"
	"musicseed-go/storage"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var conf = config.Get()

var (
	db          *storage.DB
	aiGateway   *gateway.Gateway
	aiLimiter   *ratelimit.Window
	breaker     *circuitbreaker.CircuitBreaker
	usageLedger *ledger.Ledger
	statsStore  *stats.Store
)

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel) // Set to InfoLevel (change to DebugLevel for detailed logs)

	err := godotenv.Load()
	if err != nil {
		log.Warn("Error loading .env file, using environment variables")
	}
}

func main() {
	notifier.NewAlertHandler(notifier.AlertConfig{Notifiers: setupNotifiers()}).Start()

	if err := conf.Validate(); err != nil {
		notifier.PublishServerStartupFailed("config", err)
		log.Fatalf("%s Invalid configuration: %v", logcolors.LogConfig, err)
	}

	var err error
	db, err = storage.Open(conf.Configuration.DatabasePath, conf.Configuration.BackupPath, ledger.BucketName, stats.BucketName)
	if err != nil {
		notifier.PublishServerStartupFailed("storage", err)
		log.Fatalf("%s Failed to open database: %v", logcolors.LogStorage, err)
	}

	ledgerStore, err := ledger.NewBoltStore(db)
	if err != nil {
		log.Fatalf("%s Failed to initialize usage ledger: %v", logcolors.LogLedger, err)
	}
	usageLedger = ledger.New(ledgerStore, conf.Configuration.UsageQuota)

	statsStore, err = stats.NewStore(db, stats.Get())
	if err != nil {
		log.Fatalf("%s Failed to initialize stats store: %v", logcolors.LogStats, err)
	}
	if err := statsStore.Load(); err != nil {
		log.Warnf("%s Starting with fresh stats: %v", logcolors.LogStats, err)
	}
	statsStore.StartAutoSave(conf.StatsSaveInterval())

	backend, err := newBackend(context.Background())
	if err != nil {
		notifier.PublishServerStartupFailed("backend", err)
		log.Fatalf("%s Failed to create %s backend: %v", logcolors.LogServer, conf.Provider(), err)
	}

	aiLimiter = ratelimit.NewWindow(conf.Configuration.AIRateLimitMaxCalls, conf.RateLimitWindow())
	breaker = circuitbreaker.New(circuitbreaker.Config{
		Name:      backend.Name(),
		Threshold: conf.Configuration.CircuitBreakerThreshold,
		Cooldown:  conf.CircuitBreakerCooldown(),
	})
	aiGateway = gateway.New(gateway.Options{
		Backend:  backend,
		Limiter:  aiLimiter,
		Breaker:  breaker,
		Grounded: conf.FeatureFlags.GroundedSearch,
		Stats:    stats.Get(),
	})

	usageLimiter := middleware.NewIPRateLimiter(rate.Limit(conf.Configuration.UsageRateLimitPerSecond), conf.Configuration.UsageRateLimitBurst)
	go pruneLimiters(usageLimiter)

	router := mux.NewRouter()
	setupRoutes(router, usageLimiter)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-API-Key", "Authorization"},
		AllowCredentials: false,
	})

	// logging middleware
	loggedRouter := middleware.LoggingMiddleware(router)
	// chain cors and security headers
	handler := middleware.SecurityHeaders(c.Handler(loggedRouter))

	port := conf.Configuration.Port
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		log.Infof("%s Shutting down...", logcolors.LogServer)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Errorf("%s Shutdown: %v", logcolors.LogServer, err)
		}
	}()

	log.Infof("%s Listening on port %s (provider: %s, quota: %d)", logcolors.LogServer, port, backend.Name(), usageLedger.Quota())
	notifier.PublishServerStarted(port, backend.Name(), usageLedger.Quota())

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		notifier.PublishServerStartupFailed("http", err)
		log.Fatalf("%s Server failed: %v", logcolors.LogServer, err)
	}

	if err := statsStore.Stop(); err != nil {
		log.Errorf("%s Failed to save stats on shutdown: %v", logcolors.LogStats, err)
	}
	if err := db.Close(); err != nil {
		log.Errorf("%s Failed to close database: %v", logcolors.LogStorage, err)
	}
}

// pruneLimiters drops idle usage limiters
func pruneLimiters(usageLimiter *middleware.IPRateLimiter) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		if removed := usageLimiter.Prune(30 * time.Minute); removed > 0 {
			log.Debugf("%s Pruned %d idle usage limiters", logcolors.LogRateLimit, removed)
		}
	}
}
