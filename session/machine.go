package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"musicseed-go/ledger"
	"musicseed-go/logcolors"
	"musicseed-go/models"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrInvalidTransition is returned when an action does not apply to the current state
	ErrInvalidTransition = errors.New("action not allowed in current state")
	// ErrBusy is returned while an analyze or refine call is in flight
	ErrBusy = errors.New("another generation is in progress")
	// ErrAbandoned is returned when the session was reset while a call was in flight.
	// The call's result is discarded.
	ErrAbandoned = errors.New("session was reset")
)

// Gateway performs the AI operations on behalf of a session
type Gateway interface {
	Search(ctx context.Context, query string) ([]models.SongCandidate, error)
	Analyze(ctx context.Context, song models.SongCandidate) (*models.GenerationResult, error)
	Refine(ctx context.Context, current models.GenerationResult, instruction string) (*models.Refinement, error)
}

// Ledger answers quota checks and records uses. HasRemaining must fail open.
type Ledger interface {
	HasRemaining(ctx context.Context, identity string) models.UsageStatus
	Increment(ctx context.Context, identity string) (int, error)
}

// History persists successful results
type History interface {
	Append(song models.SongCandidate, result models.GenerationResult) (models.HistoryEntry, error)
}

// Options configures a Machine
type Options struct {
	Gateway  Gateway
	Ledger   Ledger
	History  History // optional
	Identity string
	Quota    int // used until the ledger reports one; defaults to ledger.DefaultQuota
	Messages Messages
	OnChange func(View) // called after every state change, outside the lock
}

// View is a snapshot of a session
type View struct {
	State       State
	Query       string
	Candidates  []models.SongCandidate
	Song        *models.SongCandidate
	Result      *models.GenerationResult
	RefineInput string
	Refining    bool
	Error       string
	Remaining   *int // nil while unknown
	Locked      bool // quota exhausted
}

// Machine sequences one user's search, select, confirm, analyze and refine
// steps. Actions that call the gateway block until it answers; the lock is
// not held meanwhile so View stays responsive.
type Machine struct {
	opts Options
	msgs Messages

	mu          sync.Mutex
	state       State
	query       string
	candidates  []models.SongCandidate
	song        *models.SongCandidate
	result      *models.GenerationResult
	refineInput string
	busy        bool
	errMsg      string
	remaining   *int
	locked      bool
	quota       int
	epoch       uint64
}

// New creates a machine in the Idle state
func New(opts Options) *Machine {
	quota := opts.Quota
	if quota <= 0 {
		quota = ledger.DefaultQuota
	}
	return &Machine{
		opts:  opts,
		msgs:  opts.Messages.withDefaults(),
		state: Idle,
		quota: quota,
	}
}

// View returns a snapshot of the session
func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

// State returns the current state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LoadUsage fetches the remaining uses for the identity. The ledger fails
// open, so an outage leaves the session unlocked with an unknown count.
func (m *Machine) LoadUsage(ctx context.Context) {
	status := m.opts.Ledger.HasRemaining(ctx, m.opts.Identity)

	m.mu.Lock()
	m.applyStatusLocked(status)
	v := m.viewLocked()
	m.mu.Unlock()
	m.notify(v)
}

// SetQuery updates the search text
func (m *Machine) SetQuery(query string) {
	m.mu.Lock()
	m.query = query
	v := m.viewLocked()
	m.mu.Unlock()
	m.notify(v)
}

// Submit searches for the current query. A blank query is ignored.
func (m *Machine) Submit(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Idle {
		err := m.invalidLocked("submit")
		m.mu.Unlock()
		return err
	}
	query := strings.TrimSpace(m.query)
	if query == "" {
		m.mu.Unlock()
		return nil
	}
	m.state = Searching
	m.errMsg = ""
	m.candidates = nil
	epoch := m.epoch
	v := m.viewLocked()
	m.mu.Unlock()
	m.notify(v)

	log.Infof("%s Searching %q", logcolors.LogSession, query)
	candidates, err := m.opts.Gateway.Search(ctx, query)
	if err == nil && len(candidates) == 0 {
		err = models.NewError(models.KindNotFound, "no songs found")
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrAbandoned
	}
	switch {
	case err != nil:
		log.Warnf("%s Search failed: %v", logcolors.LogSession, err)
		m.state = Idle
		m.errMsg = m.msgs.describe(err, m.msgs.SearchFailed)
	case len(candidates) == 1:
		song := candidates[0]
		m.song = &song
		m.state = Confirming
	default:
		m.candidates = candidates
		m.state = Selecting
	}
	v = m.viewLocked()
	m.mu.Unlock()
	m.notify(v)
	return err
}

// Pick selects the candidate at index (zero-based)
func (m *Machine) Pick(index int) error {
	m.mu.Lock()
	if m.state != Selecting {
		err := m.invalidLocked("pick")
		m.mu.Unlock()
		return err
	}
	if index < 0 || index >= len(m.candidates) {
		m.mu.Unlock()
		return models.NewError(models.KindValidation, fmt.Sprintf("candidate %d does not exist", index+1))
	}
	song := m.candidates[index]
	m.song = &song
	m.errMsg = ""
	m.state = Confirming
	v := m.viewLocked()
	m.mu.Unlock()
	m.notify(v)
	return nil
}

// Cancel leaves the candidate list and clears the transient state
func (m *Machine) Cancel() error {
	m.mu.Lock()
	if m.state != Selecting {
		err := m.invalidLocked("cancel")
		m.mu.Unlock()
		return err
	}
	m.clearLocked()
	v := m.viewLocked()
	m.mu.Unlock()
	m.notify(v)
	return nil
}

// Reject goes back to the candidate list, or to Idle when there is none
func (m *Machine) Reject() error {
	m.mu.Lock()
	if m.state != Confirming {
		err := m.invalidLocked("reject")
		m.mu.Unlock()
		return err
	}
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	m.errMsg = ""
	if len(m.candidates) > 0 {
		m.song = nil
		m.state = Selecting
	} else {
		m.clearLocked()
	}
	v := m.viewLocked()
	m.mu.Unlock()
	m.notify(v)
	return nil
}

// Confirm analyzes the chosen song. The quota is checked first; when it is
// exhausted the session stays in Confirming and the gateway is not called.
func (m *Machine) Confirm(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Confirming || m.song == nil {
		err := m.invalidLocked("confirm")
		m.mu.Unlock()
		return err
	}
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	// Analyzing is entered only after the quota check, but the in-flight flag
	// is taken now so a second Confirm cannot race the check.
	m.busy = true
	m.errMsg = ""
	song := *m.song
	epoch := m.epoch
	m.mu.Unlock()

	status := m.opts.Ledger.HasRemaining(ctx, m.opts.Identity)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrAbandoned
	}
	m.applyStatusLocked(status)
	if !status.Allowed {
		m.busy = false
		m.errMsg = m.msgs.QuotaExhausted
		v := m.viewLocked()
		m.mu.Unlock()
		m.notify(v)
		log.Infof("%s Quota exhausted for %s", logcolors.LogSession, m.opts.Identity)
		return models.NewError(models.KindQuotaExhausted, m.msgs.QuotaExhausted)
	}
	m.state = Analyzing
	v := m.viewLocked()
	m.mu.Unlock()
	m.notify(v)

	log.Infof("%s Analyzing %q by %q", logcolors.LogSession, song.Title, song.Artist)
	result, err := m.opts.Gateway.Analyze(ctx, song)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrAbandoned
	}
	m.busy = false
	if err != nil {
		log.Warnf("%s Analyze failed: %v", logcolors.LogSession, err)
		m.state = Confirming
		m.errMsg = m.msgs.describe(err, m.msgs.AnalyzeFailed)
		v = m.viewLocked()
		m.mu.Unlock()
		m.notify(v)
		return err
	}
	m.result = result
	m.candidates = nil
	m.refineInput = ""
	m.state = Results
	v = m.viewLocked()
	m.mu.Unlock()
	m.notify(v)

	m.recordSuccess(ctx, epoch, song, *result)
	return nil
}

// SetRefineInput updates the refine instruction text
func (m *Machine) SetRefineInput(input string) {
	m.mu.Lock()
	m.refineInput = input
	v := m.viewLocked()
	m.mu.Unlock()
	m.notify(v)
}

// SubmitRefine sends the refine instruction. The input is cleared while the
// call is in flight and restored if it fails, so no text is lost. A blank
// instruction is ignored.
func (m *Machine) SubmitRefine(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Results || m.result == nil {
		err := m.invalidLocked("refine")
		m.mu.Unlock()
		return err
	}
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	instruction := m.refineInput
	if strings.TrimSpace(instruction) == "" {
		m.mu.Unlock()
		return nil
	}
	m.busy = true
	m.errMsg = ""
	epoch := m.epoch
	m.mu.Unlock()

	status := m.opts.Ledger.HasRemaining(ctx, m.opts.Identity)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrAbandoned
	}
	m.applyStatusLocked(status)
	if !status.Allowed {
		m.busy = false
		m.errMsg = m.msgs.QuotaExhausted
		v := m.viewLocked()
		m.mu.Unlock()
		m.notify(v)
		return models.NewError(models.KindQuotaExhausted, m.msgs.QuotaExhausted)
	}

	// Two-phase update: keep the snapshot, clear the field, restore on failure
	// unless the user typed something newer in the meantime.
	snapshot := instruction
	current := *m.result
	m.refineInput = ""
	v := m.viewLocked()
	m.mu.Unlock()
	m.notify(v)

	log.Infof("%s Refining with %q", logcolors.LogSession, instruction)
	refinement, err := m.opts.Gateway.Refine(ctx, current, instruction)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrAbandoned
	}
	m.busy = false
	if err != nil {
		log.Warnf("%s Refine failed: %v", logcolors.LogSession, err)
		if m.refineInput == "" {
			m.refineInput = snapshot
		}
		m.errMsg = m.msgs.describe(err, m.msgs.RefineFailed)
		v = m.viewLocked()
		m.mu.Unlock()
		m.notify(v)
		return err
	}
	merged := models.Merge(current, *refinement)
	m.result = &merged
	song := models.SongCandidate{}
	if m.song != nil {
		song = *m.song
	}
	v = m.viewLocked()
	m.mu.Unlock()
	m.notify(v)

	m.recordSuccess(ctx, epoch, song, merged)
	return nil
}

// Reset returns to Idle from any state. A call in flight is not cancelled;
// its outcome is discarded when it returns.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.epoch++
	m.busy = false
	m.clearLocked()
	v := m.viewLocked()
	m.mu.Unlock()
	m.notify(v)
}

// recordSuccess saves the result and counts the use. Both are best effort:
// a failure is logged and the result stays.
func (m *Machine) recordSuccess(ctx context.Context, epoch uint64, song models.SongCandidate, result models.GenerationResult) {
	if m.opts.History != nil {
		if _, err := m.opts.History.Append(song, result); err != nil {
			log.Warnf("%s Failed to save history: %v", logcolors.LogSession, err)
		}
	}

	count, err := m.opts.Ledger.Increment(ctx, m.opts.Identity)
	if err != nil {
		log.Warnf("%s Usage tracking failed: %v", logcolors.LogSession, err)
		return
	}

	m.mu.Lock()
	m.applyStatusLocked(ledger.Status(count, m.quota))
	v := m.viewLocked()
	m.mu.Unlock()
	m.notify(v)
}

func (m *Machine) applyStatusLocked(status models.UsageStatus) {
	if status.Quota > 0 {
		m.quota = status.Quota
	}
	if status.Remaining != nil {
		remaining := *status.Remaining
		m.remaining = &remaining
	}
	m.locked = !status.Allowed
}

// clearLocked drops every transient field. Usage figures survive.
func (m *Machine) clearLocked() {
	m.state = Idle
	m.query = ""
	m.candidates = nil
	m.song = nil
	m.result = nil
	m.refineInput = ""
	m.errMsg = ""
}

func (m *Machine) viewLocked() View {
	v := View{
		State:       m.state,
		Query:       m.query,
		RefineInput: m.refineInput,
		Refining:    m.busy && m.state == Results,
		Error:       m.errMsg,
		Locked:      m.locked,
	}
	if m.candidates != nil {
		v.Candidates = append([]models.SongCandidate(nil), m.candidates...)
	}
	if m.song != nil {
		song := *m.song
		v.Song = &song
	}
	if m.result != nil {
		result := *m.result
		result.Sources = append([]models.Citation(nil), m.result.Sources...)
		v.Result = &result
	}
	if m.remaining != nil {
		remaining := *m.remaining
		v.Remaining = &remaining
	}
	return v
}

func (m *Machine) notify(v View) {
	if m.opts.OnChange != nil {
		m.opts.OnChange(v)
	}
}

func (m *Machine) invalidLocked(action string) error {
	return fmt.Errorf("%s in %s: %w", action, m.state, ErrInvalidTransition)
}
