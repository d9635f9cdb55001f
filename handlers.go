package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"musicseed-go/circuitbreaker"
	"musicseed-go/ledger"
	"musicseed-go/logcolors"
	"musicseed-go/middleware"
	"musicseed-go/models"
	"musicseed-go/services/notifier"
	"musicseed-go/stats"
	"musicseed-go/storage"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

func searchHandler(w http.ResponseWriter, r *http.Request) {
	if !acceptPost(w, r) {
		return
	}
	stats.Get().RecordRequest("search")

	var req models.SearchRequest
	if err := decodeBody(w, r, &req); err != nil {
		Respond(w, r).Fail(err)
		return
	}

	origin := middleware.ClientOrigin(r)
	candidates, err := aiGateway.Search(r.Context(), origin, req.Query)
	if err != nil {
		aiResponse(w, r, origin).Fail(err)
		return
	}
	aiResponse(w, r, origin).JSON(candidates)
}

func analyzeHandler(w http.ResponseWriter, r *http.Request) {
	if !acceptPost(w, r) {
		return
	}
	stats.Get().RecordRequest("analyze")

	var req models.AnalyzeRequest
	if err := decodeBody(w, r, &req); err != nil {
		Respond(w, r).Fail(err)
		return
	}

	origin := middleware.ClientOrigin(r)
	result, err := aiGateway.Analyze(r.Context(), origin, req.Title, req.Artist)
	if err != nil {
		aiResponse(w, r, origin).Fail(err)
		return
	}
	aiResponse(w, r, origin).JSON(result)
}

func refineHandler(w http.ResponseWriter, r *http.Request) {
	if !acceptPost(w, r) {
		return
	}
	stats.Get().RecordRequest("refine")

	var req models.RefineRequest
	if err := decodeBody(w, r, &req); err != nil {
		Respond(w, r).Fail(err)
		return
	}

	origin := middleware.ClientOrigin(r)
	refinement, err := aiGateway.Refine(r.Context(), origin, req)
	if err != nil {
		aiResponse(w, r, origin).Fail(err)
		return
	}
	aiResponse(w, r, origin).JSON(refinement)
}

// acceptPost reports whether r is a POST. OPTIONS gets an empty 200 and any
// other method a 405; both end the request.
func acceptPost(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost:
		return true
	case http.MethodOptions:
		Respond(w, r).Options("POST, OPTIONS")
	default:
		Respond(w, r).MethodNotAllowed(http.MethodPost)
	}
	return false
}

// aiResponse adds the provider and per-origin window headers
func aiResponse(w http.ResponseWriter, r *http.Request, origin string) *APIResponse {
	resp := Respond(w, r).SetProvider(aiGateway.Provider())
	if aiLimiter != nil {
		resp.SetRateLimit(aiLimiter.Ceiling(), aiLimiter.Remaining(origin))
	}
	return resp
}

// decodeBody reads a JSON body into v. An empty body leaves v zero so
// validation reports the missing fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return models.WrapError(models.KindValidation, "invalid JSON body", err)
	}
	return nil
}

func getUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		Respond(w, r).MethodNotAllowed(http.MethodGet)
		return
	}
	stats.Get().RecordRequest("usage")

	identity, err := identityParam(r)
	if err != nil {
		Respond(w, r).Fail(err)
		return
	}

	Respond(w, r).JSON(usageLedger.HasRemaining(r.Context(), identity))
}

func incrementUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		Respond(w, r).MethodNotAllowed(http.MethodPost)
		return
	}
	stats.Get().RecordRequest("usage")

	identity, err := identityParam(r)
	if err != nil {
		Respond(w, r).Fail(err)
		return
	}

	count, err := usageLedger.Increment(r.Context(), identity)
	if err != nil {
		Respond(w, r).Fail(err)
		return
	}

	Respond(w, r).JSON(ledger.Status(count, usageLedger.Quota()))
}

func identityParam(r *http.Request) (string, error) {
	identity := mux.Vars(r)["identity"]
	if err := models.Validate(models.UsageIdentity{Identity: identity}); err != nil {
		return "", err
	}
	return identity, nil
}

func getHealthStatus(w http.ResponseWriter, r *http.Request) {
	stats.Get().RecordRequest("health")

	health := HealthResponse{
		Status:           "ok",
		Provider:         aiGateway.Provider(),
		APIKeyConfigured: conf.ProviderAPIKey() != "",
		Grounded:         conf.FeatureFlags.GroundedSearch,
		UsageQuota:       usageLedger.Quota(),
		CircuitBreaker:   breaker.Status(),
	}

	if breaker.State() == circuitbreaker.StateOpen {
		health.Status = "degraded"
	}

	if !health.APIKeyConfigured {
		health.Status = "unhealthy"
		health.Error = fmt.Sprintf("no API key configured for %s", conf.Provider())
	}

	Respond(w, r).JSON(health)
}

func getStats(w http.ResponseWriter, r *http.Request) {
	stats.Get().RecordRequest("stats")

	snapshot := stats.Get().Snapshot()
	snapshot["circuit_breaker"] = breaker.Status()
	if aiLimiter != nil {
		snapshot["ai_rate_limit"] = map[string]interface{}{
			"ceiling":        aiLimiter.Ceiling(),
			"window":         conf.RateLimitWindow().String(),
			"active_origins": aiLimiter.Len(),
		}
	}

	Respond(w, r).JSON(snapshot)
}

func getCircuitBreakerStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		Respond(w, r).MethodNotAllowed(http.MethodGet)
		return
	}
	stats.Get().RecordRequest("other")
	Respond(w, r).JSON(breaker.Status())
}

func resetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		Respond(w, r).MethodNotAllowed(http.MethodPost)
		return
	}

	breaker.Reset()
	log.Infof("%s Circuit breaker reset by operator", logcolors.LogServer)
	Respond(w, r).JSON(breaker.Status())
}

func backupDatabase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		Respond(w, r).MethodNotAllowed(http.MethodPost)
		return
	}

	// Flush counters so the backup carries them
	if statsStore != nil {
		if err := statsStore.Save(); err != nil {
			log.Warnf("%s Failed to save stats before backup: %v", logcolors.LogStats, err)
		}
	}

	fileName, err := db.Backup()
	if err != nil {
		log.Errorf("%s Failed to create backup: %v", logcolors.LogStorageBackup, err)
		notifier.PublishBackupFailed(err)
		writeStorageError(w, r, "Failed to create backup", err)
		return
	}

	log.Infof("%s Backup created: %s", logcolors.LogStorageBackup, fileName)
	Respond(w, r).JSON(BackupResponse{Message: "Backup created successfully", FileName: fileName})
}

func listBackups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		Respond(w, r).MethodNotAllowed(http.MethodGet)
		return
	}

	backups, err := db.ListBackups()
	if err != nil {
		writeStorageError(w, r, "Failed to list backups", err)
		return
	}
	if backups == nil {
		backups = []storage.BackupInfo{}
	}

	Respond(w, r).JSON(BackupListResponse{Count: len(backups), Backups: backups})
}

func restoreBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		Respond(w, r).MethodNotAllowed(http.MethodPost)
		return
	}

	fileName := mux.Vars(r)["name"]
	if err := db.Restore(fileName); err != nil {
		log.Errorf("%s Failed to restore %s: %v", logcolors.LogStorageBackup, fileName, err)
		writeStorageError(w, r, "Failed to restore backup", err)
		return
	}

	notifier.PublishBackupRestored(fileName)
	log.Infof("%s Restored %s", logcolors.LogStorageBackup, fileName)
	Respond(w, r).JSON(MessageResponse{Message: "Backup restored: " + fileName})
}

func deleteBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		Respond(w, r).MethodNotAllowed(http.MethodDelete)
		return
	}

	fileName := mux.Vars(r)["name"]
	if err := db.DeleteBackup(fileName); err != nil {
		writeStorageError(w, r, "Failed to delete backup", err)
		return
	}

	Respond(w, r).JSON(MessageResponse{Message: "Backup deleted: " + fileName})
}

// writeStorageError maps storage failures to a status: missing backups and
// disabled backups are 404, bad names 400, anything else 500.
func writeStorageError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := http.StatusInternalServerError
	kind := models.KindUpstreamUnavailable

	switch {
	case errors.Is(err, storage.ErrBackupsDisabled), errors.Is(err, storage.ErrBackupNotFound):
		status = http.StatusNotFound
		kind = models.KindNotFound
	case errors.Is(err, storage.ErrInvalidBackupName):
		status = http.StatusBadRequest
		kind = models.KindValidation
	}

	Respond(w, r).Error(status, models.ErrorResponse{Kind: kind, Error: fmt.Sprintf("%s: %v", message, err)})
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	stats.Get().RecordRequest("other")

	Respond(w, r).JSON(map[string]interface{}{
		"service": "musicseed",
		"endpoints": map[string]string{
			"POST /api/search":                    `{"query"} -> song candidates (max 5)`,
			"POST /api/analyze":                   `{"title","artist"} -> style prompt, lyrics and sources`,
			"POST /api/refine":                    `{"stylePrompt","lyrics","instruction"} -> changed fields`,
			"GET /api/usage/{identity}":           "remaining uses for an identity token",
			"POST /api/usage/{identity}/increment": "record one use",
			"GET /health":                         "service health and circuit breaker state",
			"GET /circuit-breaker":                "circuit breaker state",
			"GET /stats":                          "server statistics (admin)",
			"POST /admin/backup":                  "create a database backup (admin)",
			"GET /admin/backups":                  "list backups (admin)",
		},
		"errors": `failures return {"kind","error"}; kinds: validation, not_found, rate_limited, quota_exhausted, malformed_response, upstream_unavailable`,
	})
}
