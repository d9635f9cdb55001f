package notifier

import (
	"sync"
	"time"
)

// EventType names something operators may want to hear about
type EventType string

const (
	EventCircuitBreakerOpen  EventType = "circuit_breaker_open"
	EventLedgerUnavailable   EventType = "ledger_unavailable"
	EventServerStartupFailed EventType = "server_startup_failed"

	EventHighFailureRate EventType = "high_failure_rate"
	EventBackupFailed    EventType = "backup_failed"

	EventCircuitBreakerRecovered EventType = "circuit_breaker_recovered"
	EventServerStarted           EventType = "server_started"
	EventBackupRestored          EventType = "backup_restored"
)

// Severity represents the severity level of an event
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

type Event struct {
	Type      EventType
	Severity  Severity
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, severity Severity, message string) *Event {
	return &Event{
		Type:      eventType,
		Severity:  severity,
		Message:   message,
		Data:      make(map[string]interface{}),
		Timestamp: time.Now(),
	}
}

// WithData sets one payload value and returns e
func (e *Event) WithData(key string, value interface{}) *Event {
	e.Data[key] = value
	return e
}

type EventHandler func(event *Event)

// EventBus fans events out to subscribers. Handlers run on their own
// goroutine so publishers never block on a slow notifier.
type EventBus struct {
	mu          sync.RWMutex
	byType      map[EventType][]EventHandler
	allHandlers []EventHandler
}

var (
	globalBus *EventBus
	busOnce   sync.Once
)

// GetEventBus returns the process-wide event bus
func GetEventBus() *EventBus {
	busOnce.Do(func() {
		globalBus = newEventBus()
	})
	return globalBus
}

func newEventBus() *EventBus {
	return &EventBus{byType: make(map[EventType][]EventHandler)}
}

// Subscribe registers handler for one event type
func (b *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byType[eventType] = append(b.byType[eventType], handler)
}

// SubscribeAll registers handler for every event type
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allHandlers = append(b.allHandlers, handler)
}

// Publish delivers event to the handlers of its type and to catch-all handlers
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	targets := make([]EventHandler, 0, len(b.byType[event.Type])+len(b.allHandlers))
	targets = append(targets, b.byType[event.Type]...)
	targets = append(targets, b.allHandlers...)
	b.mu.RUnlock()

	for _, handler := range targets {
		go handler(event)
	}
}

// publish builds an event from alternating key/value pairs and sends it on
// the global bus
func publish(t EventType, sev Severity, message string, kv ...interface{}) {
	e := NewEvent(t, sev, message)
	for i := 0; i+1 < len(kv); i += 2 {
		e.WithData(kv[i].(string), kv[i+1])
	}
	GetEventBus().Publish(e)
}

func PublishCircuitBreakerOpen(name string, failures int, cooldown time.Duration) {
	publish(EventCircuitBreakerOpen, SeverityCritical, "AI backend breaker opened",
		"name", name, "failures", failures, "cooldown", cooldown.String())
}

func PublishCircuitBreakerRecovered(name string) {
	publish(EventCircuitBreakerRecovered, SeverityInfo, "AI backend breaker closed", "name", name)
}

// PublishHighFailureRate warns before the breaker reaches its threshold
func PublishHighFailureRate(name string, failures, threshold int) {
	publish(EventHighFailureRate, SeverityWarning, "AI backend failures accumulating",
		"name", name, "failures", failures, "threshold", threshold)
}

// PublishLedgerUnavailable reports a usage store read or write failure
func PublishLedgerUnavailable(operation string, err error) {
	publish(EventLedgerUnavailable, SeverityCritical, "usage ledger storage failed",
		"operation", operation, "error", err.Error())
}

func PublishBackupFailed(err error) {
	publish(EventBackupFailed, SeverityWarning, "database backup failed", "error", err.Error())
}

func PublishBackupRestored(fileName string) {
	publish(EventBackupRestored, SeverityInfo, "database restored", "backup", fileName)
}

func PublishServerStarted(port, provider string, quota int) {
	publish(EventServerStarted, SeverityInfo, "server listening",
		"port", port, "provider", provider, "quota", quota)
}

func PublishServerStartupFailed(component string, err error) {
	publish(EventServerStartupFailed, SeverityCritical, "server startup aborted",
		"component", component, "error", err.Error())
}
