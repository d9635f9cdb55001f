package main

import (
	"musicseed-go/middleware"
	"musicseed-go/stats"

	"github.com/gorilla/mux"
)

// setupRoutes configures all HTTP routes for the API
func setupRoutes(router *mux.Router, usageLimiter *middleware.IPRateLimiter) {
	// AI endpoints, rate limited per origin inside the gateway
	router.HandleFunc("/api/search", searchHandler)
	router.HandleFunc("/api/analyze", analyzeHandler)
	router.HandleFunc("/api/refine", refineHandler)

	// Usage ledger endpoints
	usage := router.PathPrefix("/api/usage").Subrouter()
	usage.Use(middleware.Throttle(usageLimiter, func() { stats.Get().RecordRateLimit("exceeded") }))
	usage.HandleFunc("/{identity}", getUsage)
	usage.HandleFunc("/{identity}/increment", incrementUsage)

	// Health and circuit breaker status
	router.HandleFunc("/health", getHealthStatus)
	router.HandleFunc("/circuit-breaker", getCircuitBreakerStatus)

	// Operator endpoints
	admin := router.NewRoute().Subrouter()
	admin.Use(middleware.AdminAuth(conf.Configuration.AdminToken, conf.FeatureFlags.RequireAdminAPIKey))
	admin.HandleFunc("/stats", getStats)
	admin.HandleFunc("/circuit-breaker/reset", resetCircuitBreaker)
	admin.HandleFunc("/admin/backup", backupDatabase)
	admin.HandleFunc("/admin/backups", listBackups)
	admin.HandleFunc("/admin/backups/{name}", deleteBackup)
	admin.HandleFunc("/admin/restore/{name}", restoreBackup)

	// Help endpoint
	router.HandleFunc("/", helpHandler)
}
