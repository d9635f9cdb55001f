package main

import (
	"musicseed-go/circuitbreaker"
	"musicseed-go/storage"
)

// maxBodyBytes bounds proxy request bodies; the largest valid refine body
// is well under this
const maxBodyBytes = 64 << 10

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status           string                `json:"status"`
	Provider         string                `json:"provider"`
	APIKeyConfigured bool                  `json:"apiKeyConfigured"`
	Grounded         bool                  `json:"grounded"`
	UsageQuota       int                   `json:"usageQuota"`
	CircuitBreaker   circuitbreaker.Status `json:"circuitBreaker"`
	Error            string                `json:"error,omitempty"`
}

// BackupResponse is the body of POST /admin/backup
type BackupResponse struct {
	Message  string `json:"message"`
	FileName string `json:"fileName"`
}

// BackupListResponse is the body of GET /admin/backups
type BackupListResponse struct {
	Count   int                  `json:"count"`
	Backups []storage.BackupInfo `json:"backups"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}
