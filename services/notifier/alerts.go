package notifier

import (
	"fmt"
	"sync"
	"time"

	"musicseed-go/logcolors"

	log "github.com/sirupsen/logrus"
)

// DefaultAlertCooldown is the minimum gap between two alerts of one event type
const DefaultAlertCooldown = 15 * time.Minute

// alertTemplate renders one event type into a subject and a body
type alertTemplate struct {
	subject string
	body    func(d eventData) string
}

var alertTemplates = map[EventType]alertTemplate{
	EventCircuitBreakerOpen: {"Circuit Breaker OPEN", func(d eventData) string {
		return fmt.Sprintf("The %s circuit breaker has tripped after %d consecutive failures.\n\n"+
			"Search, analyze and refine calls are refused for %s.\n"+
			"Check the provider status page and the API key quota.",
			d.str("name"), d.num("failures"), d.str("cooldown"))
	}},
	EventHighFailureRate: {"High Failure Rate Warning", func(d eventData) string {
		return fmt.Sprintf("The %s circuit breaker has recorded %d/%d failures.\n"+
			"The breaker opens when the threshold is reached.",
			d.str("name"), d.num("failures"), d.num("threshold"))
	}},
	EventCircuitBreakerRecovered: {"Circuit Breaker Recovered", func(d eventData) string {
		return fmt.Sprintf("The %s circuit breaker closed again; AI calls are flowing.", d.str("name"))
	}},
	EventLedgerUnavailable: {"Usage Ledger Unavailable", func(d eventData) string {
		return fmt.Sprintf("Ledger %s failed: %s\n\nQuota checks fail open until storage recovers.",
			d.str("operation"), d.str("error"))
	}},
	EventServerStartupFailed: {"Server Startup FAILED", func(d eventData) string {
		return fmt.Sprintf("Startup aborted in %s: %s", d.str("component"), d.str("error"))
	}},
	EventServerStarted: {"Server Started", func(d eventData) string {
		return fmt.Sprintf("Listening on port %s (provider: %s, quota: %d per identity).",
			d.str("port"), d.str("provider"), d.num("quota"))
	}},
	EventBackupFailed: {"Backup Failed", func(d eventData) string {
		return fmt.Sprintf("Database backup failed: %s\n\nCheck free disk space and permissions of the backup directory.",
			d.str("error"))
	}},
	EventBackupRestored: {"Database Restored", func(d eventData) string {
		return fmt.Sprintf("The database was restored from backup %s.", d.str("backup"))
	}},
}

var severityIcons = map[Severity]string{
	SeverityCritical: "🚨 ",
	SeverityWarning:  "⚠️ ",
	SeverityInfo:     "ℹ️ ",
}

// AlertConfig holds configuration for the alert handler
type AlertConfig struct {
	Notifiers        []Notifier
	CooldownDuration time.Duration
}

// AlertHandler turns bus events into notifications, at most one per event
// type per cooldown.
type AlertHandler struct {
	notifiers []Notifier
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	lastSent map[EventType]time.Time
}

func NewAlertHandler(config AlertConfig) *AlertHandler {
	cooldown := config.CooldownDuration
	if cooldown <= 0 {
		cooldown = DefaultAlertCooldown
	}
	return &AlertHandler{
		notifiers: config.Notifiers,
		cooldown:  cooldown,
		now:       time.Now,
		lastSent:  make(map[EventType]time.Time),
	}
}

// Start subscribes the handler to every event on the global bus
func (h *AlertHandler) Start() {
	GetEventBus().SubscribeAll(h.handleEvent)
	log.Infof("%s Alert handler started (cooldown: %v, notifiers: %d)",
		logcolors.LogNotifier, h.cooldown, len(h.notifiers))
}

func (h *AlertHandler) handleEvent(event *Event) {
	subject, message := h.formatAlert(event)
	if subject == "" {
		return
	}
	if !h.claim(event.Type) {
		log.Debugf("%s %s suppressed by cooldown", logcolors.LogNotifier, event.Type)
		return
	}
	h.dispatch(subject, message)
}

// claim reports whether an alert for t may go out now and records it if so
func (h *AlertHandler) claim(t EventType) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if last, ok := h.lastSent[t]; ok && now.Sub(last) < h.cooldown {
		return false
	}
	h.lastSent[t] = now
	return true
}

// formatAlert returns an empty subject for event types without a template
func (h *AlertHandler) formatAlert(event *Event) (subject, message string) {
	tmpl, ok := alertTemplates[event.Type]
	if !ok {
		return "", ""
	}
	return severityIcons[event.Severity] + tmpl.subject, tmpl.body(eventData(event.Data))
}

func (h *AlertHandler) dispatch(subject, message string) {
	if len(h.notifiers) == 0 {
		log.Warnf("%s No notifiers configured, dropping alert: %s", logcolors.LogNotifier, subject)
		return
	}

	delivered := 0
	for _, n := range h.notifiers {
		if err := n.Send(subject, message); err != nil {
			log.Errorf("%s %T delivery failed: %v", logcolors.LogNotifier, n, err)
			continue
		}
		delivered++
	}
	log.Infof("%s Alert %q delivered via %d/%d notifiers", logcolors.LogNotifier, subject, delivered, len(h.notifiers))
}

// ResetCooldown lets the next event of type t alert immediately
func (h *AlertHandler) ResetCooldown(t EventType) {
	h.mu.Lock()
	delete(h.lastSent, t)
	h.mu.Unlock()
}

// eventData reads event payload values with placeholders for missing keys
type eventData map[string]interface{}

func (d eventData) str(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return "unknown"
}

func (d eventData) num(key string) int {
	if v, ok := d[key].(int); ok {
		return v
	}
	return 0
}
