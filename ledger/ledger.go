package ledger

import (
	"context"
	"strings"

	"musicseed-go/logcolors"
	"musicseed-go/models"
	"musicseed-go/services/notifier"
	"musicseed-go/stats"

	log "github.com/sirupsen/logrus"
)

// DefaultQuota is the lifetime number of successful generations per identity
const DefaultQuota = 100

// Ledger tracks lifetime usage per identity and answers quota checks.
// Counts only ever grow; there is no reset.
type Ledger struct {
	store Store
	quota int
}

// New creates a ledger over store. A non-positive quota selects DefaultQuota.
func New(store Store, quota int) *Ledger {
	if quota <= 0 {
		quota = DefaultQuota
	}
	return &Ledger{store: store, quota: quota}
}

// Quota returns the configured lifetime quota
func (l *Ledger) Quota() int {
	return l.quota
}

// GetCount returns the stored count for identity (0 if never seen)
func (l *Ledger) GetCount(ctx context.Context, identity string) (int, error) {
	return l.store.Count(ctx, identity)
}

// Increment adds one use for identity and returns the new count
func (l *Ledger) Increment(ctx context.Context, identity string) (int, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return 0, models.NewError(models.KindValidation, "identity token is required")
	}

	count, err := l.store.Increment(ctx, identity)
	if err != nil {
		log.Errorf("%s Increment failed for %s: %v", logcolors.LogLedger, identity, err)
		notifier.PublishLedgerUnavailable("increment", err)
		return 0, models.WrapError(models.KindUpstreamUnavailable, "usage ledger unavailable", err)
	}

	stats.Get().RecordUsageIncrement()
	log.Debugf("%s %s now at %d/%d", logcolors.LogLedger, identity, count, l.quota)
	return count, nil
}

// HasRemaining reports whether identity may perform another generation.
// When the store cannot be read the check fails open: Allowed is true and
// Remaining is nil so callers can tell the count is unknown.
func (l *Ledger) HasRemaining(ctx context.Context, identity string) models.UsageStatus {
	count, err := l.store.Count(ctx, identity)
	if err != nil {
		log.Warnf("%s Quota check failed for %s, allowing: %v", logcolors.LogLedger, identity, err)
		notifier.PublishLedgerUnavailable("count", err)
		stats.Get().RecordUsageFailOpen()
		return models.UsageStatus{Allowed: true, Quota: l.quota}
	}
	return Status(count, l.quota)
}

// Status builds the usage status for a known count
func Status(count, quota int) models.UsageStatus {
	remaining := quota - count
	if remaining < 0 {
		remaining = 0
	}
	return models.UsageStatus{
		Allowed:   count < quota,
		Count:     count,
		Remaining: &remaining,
		Quota:     quota,
	}
}
