package client

import (
	"context"

	"musicseed-go/logcolors"
	"musicseed-go/models"

	log "github.com/sirupsen/logrus"
)

// Usage reads and increments the server-side ledger for the session
type Usage struct {
	client *Client
	quota  int
}

// NewUsage creates a ledger view over client. quota is reported when the
// ledger cannot be reached.
func NewUsage(client *Client, quota int) *Usage {
	return &Usage{client: client, quota: quota}
}

// HasRemaining fails open: when the ledger is unreachable the identity is
// allowed and Remaining is nil.
func (u *Usage) HasRemaining(ctx context.Context, identity string) models.UsageStatus {
	status, err := u.client.Usage(ctx, identity)
	if err != nil {
		log.Warnf("%s Usage check failed, allowing: %v", logcolors.LogClient, err)
		return models.UsageStatus{Allowed: true, Quota: u.quota}
	}
	return status
}

// Increment records one use and returns the new count
func (u *Usage) Increment(ctx context.Context, identity string) (int, error) {
	status, err := u.client.IncrementUsage(ctx, identity)
	if err != nil {
		return 0, err
	}
	return status.Count, nil
}
