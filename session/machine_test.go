package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"musicseed-go/ledger"
	"musicseed-go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu sync.Mutex

	candidates []models.SongCandidate
	searchErr  error

	result     *models.GenerationResult
	analyzeErr error
	analyzed   []models.SongCandidate

	refinement   *models.Refinement
	refineErr    error
	instructions []string

	// when set, Analyze and Refine signal started and wait for release
	started chan struct{}
	release chan struct{}
}

func (f *fakeGateway) Search(ctx context.Context, query string) ([]models.SongCandidate, error) {
	return f.candidates, f.searchErr
}

func (f *fakeGateway) Analyze(ctx context.Context, song models.SongCandidate) (*models.GenerationResult, error) {
	f.mu.Lock()
	f.analyzed = append(f.analyzed, song)
	f.mu.Unlock()
	f.wait()
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	result := *f.result
	return &result, nil
}

func (f *fakeGateway) Refine(ctx context.Context, current models.GenerationResult, instruction string) (*models.Refinement, error) {
	f.mu.Lock()
	f.instructions = append(f.instructions, instruction)
	f.mu.Unlock()
	f.wait()
	if f.refineErr != nil {
		return nil, f.refineErr
	}
	return f.refinement, nil
}

func (f *fakeGateway) wait() {
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
}

func (f *fakeGateway) analyzeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.analyzed)
}

type fakeLedger struct {
	mu           sync.Mutex
	count        int
	quota        int
	down         bool
	incrementErr error
	increments   int
}

func (l *fakeLedger) HasRemaining(ctx context.Context, identity string) models.UsageStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.down {
		return models.UsageStatus{Allowed: true, Quota: l.quota}
	}
	return ledger.Status(l.count, l.quota)
}

func (l *fakeLedger) Increment(ctx context.Context, identity string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.incrementErr != nil {
		return 0, l.incrementErr
	}
	l.count++
	l.increments++
	return l.count, nil
}

type fakeHistory struct {
	entries []models.GenerationResult
	err     error
}

func (h *fakeHistory) Append(song models.SongCandidate, result models.GenerationResult) (models.HistoryEntry, error) {
	if h.err != nil {
		return models.HistoryEntry{}, h.err
	}
	h.entries = append(h.entries, result)
	return models.HistoryEntry{ID: "id", Song: song, Result: result}, nil
}

var (
	lemon   = models.SongCandidate{Title: "Lemon", Artist: "米津玄師"}
	cover   = models.SongCandidate{Title: "Lemon", Artist: "Cover Band"}
	results = &models.GenerationResult{
		StylePrompt:            "Melancholic J-Pop ballad",
		StylePromptTranslation: "切ないJ-Popバラード",
		Lyrics:                 "[Intro]\n...",
		Sources:                []models.Citation{{Title: "Wiki", URI: "https://example.com"}},
	}
)

func newMachine(gw *fakeGateway, l *fakeLedger, h *fakeHistory) *Machine {
	opts := Options{Gateway: gw, Ledger: l, Identity: "user-1", Quota: l.quota}
	if h != nil {
		opts.History = h
	}
	return New(opts)
}

// toResults drives a machine with a single search hit to Results
func toResults(t *testing.T, m *Machine) {
	t.Helper()
	m.SetQuery("Lemon")
	require.NoError(t, m.Submit(context.Background()))
	require.Equal(t, Confirming, m.State())
	require.NoError(t, m.Confirm(context.Background()))
	require.Equal(t, Results, m.State())
}

func TestSearchSelectConfirmAnalyze(t *testing.T) {
	gw := &fakeGateway{candidates: []models.SongCandidate{lemon, cover}, result: results}
	l := &fakeLedger{count: 3, quota: 100}
	h := &fakeHistory{}
	m := newMachine(gw, l, h)

	var seen []State
	m.opts.OnChange = func(v View) { seen = append(seen, v.State) }

	m.SetQuery("Song X")
	require.NoError(t, m.Submit(context.Background()))
	assert.Equal(t, Selecting, m.State())
	assert.Len(t, m.View().Candidates, 2)

	require.NoError(t, m.Pick(1))
	assert.Equal(t, Confirming, m.State())
	assert.Equal(t, cover, *m.View().Song)

	require.NoError(t, m.Confirm(context.Background()))

	v := m.View()
	assert.Equal(t, Results, v.State)
	assert.Equal(t, results.StylePrompt, v.Result.StylePrompt)
	assert.Nil(t, v.Candidates, "candidate list is discarded")
	assert.Equal(t, 1, l.increments)
	assert.Equal(t, []models.SongCandidate{cover}, gw.analyzed)
	assert.Len(t, h.entries, 1)
	require.NotNil(t, v.Remaining)
	assert.Equal(t, 96, *v.Remaining)

	assert.Contains(t, seen, Searching)
	assert.Contains(t, seen, Analyzing)
}

func TestSearchOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		gw        *fakeGateway
		wantState State
		wantMsg   string
	}{
		{
			name:      "single candidate goes straight to confirming",
			gw:        &fakeGateway{candidates: []models.SongCandidate{lemon}},
			wantState: Confirming,
		},
		{
			name:      "no candidates returns to idle",
			gw:        &fakeGateway{},
			wantState: Idle,
			wantMsg:   DefaultMessages().SearchFailed,
		},
		{
			name:      "not found error returns to idle",
			gw:        &fakeGateway{searchErr: models.NewError(models.KindNotFound, "none")},
			wantState: Idle,
			wantMsg:   DefaultMessages().SearchFailed,
		},
		{
			name:      "rate limit has its own message",
			gw:        &fakeGateway{searchErr: models.NewError(models.KindRateLimited, "slow down")},
			wantState: Idle,
			wantMsg:   DefaultMessages().RateLimited,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine(tt.gw, &fakeLedger{quota: 100}, nil)
			m.SetQuery("Lemon")
			m.Submit(context.Background())

			v := m.View()
			assert.Equal(t, tt.wantState, v.State)
			assert.Equal(t, tt.wantMsg, v.Error)
			assert.Equal(t, "Lemon", v.Query, "query is preserved")
		})
	}
}

func TestBlankQueryIsIgnored(t *testing.T) {
	m := newMachine(&fakeGateway{}, &fakeLedger{quota: 100}, nil)
	m.SetQuery("   ")

	assert.NoError(t, m.Submit(context.Background()))
	assert.Equal(t, Idle, m.State())
}

func TestConfirmQuotaExhausted(t *testing.T) {
	gw := &fakeGateway{candidates: []models.SongCandidate{lemon}, result: results}
	l := &fakeLedger{count: 100, quota: 100}
	m := newMachine(gw, l, nil)

	m.SetQuery("Lemon")
	require.NoError(t, m.Submit(context.Background()))

	err := m.Confirm(context.Background())
	assert.True(t, models.IsKind(err, models.KindQuotaExhausted))

	v := m.View()
	assert.Equal(t, Confirming, v.State)
	assert.Equal(t, DefaultMessages().QuotaExhausted, v.Error)
	assert.True(t, v.Locked)
	assert.Equal(t, 0, gw.analyzeCalls(), "no analyze call when quota is exhausted")
	assert.Equal(t, 0, l.increments)
}

func TestConfirmFailsOpenWhenLedgerDown(t *testing.T) {
	gw := &fakeGateway{candidates: []models.SongCandidate{lemon}, result: results}
	l := &fakeLedger{quota: 100, down: true}
	m := newMachine(gw, l, nil)

	toResults(t, m)
	assert.Equal(t, 1, gw.analyzeCalls())
}

func TestAnalyzeFailureReturnsToConfirming(t *testing.T) {
	gw := &fakeGateway{
		candidates: []models.SongCandidate{lemon},
		analyzeErr: models.NewError(models.KindMalformedResponse, "bad"),
	}
	l := &fakeLedger{quota: 100}
	h := &fakeHistory{}
	m := newMachine(gw, l, h)

	m.SetQuery("Lemon")
	require.NoError(t, m.Submit(context.Background()))
	assert.Error(t, m.Confirm(context.Background()))

	v := m.View()
	assert.Equal(t, Confirming, v.State)
	assert.Equal(t, DefaultMessages().AnalyzeFailed, v.Error)
	assert.Equal(t, lemon, *v.Song)
	assert.Equal(t, 0, l.increments)
	assert.Empty(t, h.entries)
}

func TestUsageAndHistoryFailuresKeepResult(t *testing.T) {
	gw := &fakeGateway{candidates: []models.SongCandidate{lemon}, result: results}
	l := &fakeLedger{quota: 100, incrementErr: errors.New("ledger down")}
	h := &fakeHistory{err: errors.New("disk full")}
	m := newMachine(gw, l, h)

	toResults(t, m)
	assert.NotNil(t, m.View().Result)
}

func TestLastUseLocksSession(t *testing.T) {
	gw := &fakeGateway{candidates: []models.SongCandidate{lemon}, result: results}
	l := &fakeLedger{count: 99, quota: 100}
	m := newMachine(gw, l, nil)

	toResults(t, m)

	v := m.View()
	assert.True(t, v.Locked)
	require.NotNil(t, v.Remaining)
	assert.Equal(t, 0, *v.Remaining)
}

func TestReject(t *testing.T) {
	t.Run("back to selecting when candidates exist", func(t *testing.T) {
		m := newMachine(&fakeGateway{candidates: []models.SongCandidate{lemon, cover}}, &fakeLedger{quota: 100}, nil)
		m.SetQuery("Lemon")
		m.Submit(context.Background())
		require.NoError(t, m.Pick(0))

		require.NoError(t, m.Reject())
		assert.Equal(t, Selecting, m.State())
		assert.Len(t, m.View().Candidates, 2)
	})

	t.Run("back to idle without candidates", func(t *testing.T) {
		m := newMachine(&fakeGateway{candidates: []models.SongCandidate{lemon}}, &fakeLedger{quota: 100}, nil)
		m.SetQuery("Lemon")
		m.Submit(context.Background())

		require.NoError(t, m.Reject())
		v := m.View()
		assert.Equal(t, Idle, v.State)
		assert.Nil(t, v.Song)
		assert.Empty(t, v.Query)
	})
}

func TestCancelClearsSelection(t *testing.T) {
	m := newMachine(&fakeGateway{candidates: []models.SongCandidate{lemon, cover}}, &fakeLedger{quota: 100}, nil)
	m.SetQuery("Lemon")
	m.Submit(context.Background())

	require.NoError(t, m.Cancel())
	v := m.View()
	assert.Equal(t, Idle, v.State)
	assert.Nil(t, v.Candidates)
	assert.Empty(t, v.Query)
}

func TestPickOutOfRange(t *testing.T) {
	m := newMachine(&fakeGateway{candidates: []models.SongCandidate{lemon, cover}}, &fakeLedger{quota: 100}, nil)
	m.SetQuery("Lemon")
	m.Submit(context.Background())

	err := m.Pick(2)
	assert.True(t, models.IsKind(err, models.KindValidation))
	assert.Equal(t, Selecting, m.State())
}

func TestInvalidTransitions(t *testing.T) {
	m := newMachine(&fakeGateway{}, &fakeLedger{quota: 100}, nil)

	assert.ErrorIs(t, m.Pick(0), ErrInvalidTransition)
	assert.ErrorIs(t, m.Cancel(), ErrInvalidTransition)
	assert.ErrorIs(t, m.Reject(), ErrInvalidTransition)
	assert.ErrorIs(t, m.Confirm(context.Background()), ErrInvalidTransition)
	assert.ErrorIs(t, m.SubmitRefine(context.Background()), ErrInvalidTransition)
	assert.Equal(t, Idle, m.State())
}

func TestRefineSuccess(t *testing.T) {
	newStyle := "Upbeat J-Pop ballad"
	gw := &fakeGateway{
		candidates: []models.SongCandidate{lemon},
		result:     results,
		refinement: &models.Refinement{StylePrompt: &newStyle},
	}
	l := &fakeLedger{quota: 100}
	h := &fakeHistory{}
	m := newMachine(gw, l, h)
	toResults(t, m)

	m.SetRefineInput("make it faster")
	require.NoError(t, m.SubmitRefine(context.Background()))

	v := m.View()
	assert.Equal(t, Results, v.State)
	assert.Equal(t, newStyle, v.Result.StylePrompt)
	assert.Equal(t, results.Lyrics, v.Result.Lyrics, "fields absent from the refinement keep their value")
	assert.Equal(t, results.Sources, v.Result.Sources)
	assert.Empty(t, v.RefineInput)
	assert.Equal(t, []string{"make it faster"}, gw.instructions)
	assert.Equal(t, 2, l.increments)
	assert.Len(t, h.entries, 2)
}

func TestRefineFailureRestoresInput(t *testing.T) {
	gw := &fakeGateway{
		candidates: []models.SongCandidate{lemon},
		result:     results,
		refineErr:  models.NewError(models.KindUpstreamUnavailable, "down"),
	}
	l := &fakeLedger{quota: 100}
	m := newMachine(gw, l, nil)
	toResults(t, m)
	before := *m.View().Result

	m.SetRefineInput("make it faster")
	assert.Error(t, m.SubmitRefine(context.Background()))

	v := m.View()
	assert.Equal(t, Results, v.State)
	assert.Equal(t, "make it faster", v.RefineInput)
	assert.Equal(t, before, *v.Result)
	assert.Equal(t, DefaultMessages().RefineFailed, v.Error)
	assert.Equal(t, 1, l.increments, "only the analyze was counted")
}

func TestRefineQuotaExhausted(t *testing.T) {
	gw := &fakeGateway{candidates: []models.SongCandidate{lemon}, result: results}
	l := &fakeLedger{count: 99, quota: 100}
	m := newMachine(gw, l, nil)
	toResults(t, m)

	m.SetRefineInput("make it faster")
	err := m.SubmitRefine(context.Background())
	assert.True(t, models.IsKind(err, models.KindQuotaExhausted))

	v := m.View()
	assert.Equal(t, "make it faster", v.RefineInput)
	assert.Empty(t, gw.instructions)
}

func TestRefineClearsInputWhileInFlight(t *testing.T) {
	gw := &fakeGateway{candidates: []models.SongCandidate{lemon}, result: results, refinement: &models.Refinement{}}
	m := newMachine(gw, &fakeLedger{quota: 100}, nil)
	toResults(t, m)

	gw.started = make(chan struct{})
	gw.release = make(chan struct{})

	m.SetRefineInput("make it faster")
	done := make(chan error)
	go func() { done <- m.SubmitRefine(context.Background()) }()

	<-gw.started
	v := m.View()
	assert.Empty(t, v.RefineInput)
	assert.True(t, v.Refining)
	assert.ErrorIs(t, m.SubmitRefine(context.Background()), ErrBusy)

	close(gw.release)
	require.NoError(t, <-done)
	assert.False(t, m.View().Refining)
}

func TestRefineFailureKeepsNewerInput(t *testing.T) {
	gw := &fakeGateway{
		candidates: []models.SongCandidate{lemon},
		result:     results,
		refineErr:  models.NewError(models.KindUpstreamUnavailable, "down"),
	}
	m := newMachine(gw, &fakeLedger{quota: 100}, nil)
	toResults(t, m)

	gw.started = make(chan struct{})
	gw.release = make(chan struct{})

	m.SetRefineInput("make it faster")
	done := make(chan error)
	go func() { done <- m.SubmitRefine(context.Background()) }()

	<-gw.started
	m.SetRefineInput("add a guitar solo")
	close(gw.release)
	assert.Error(t, <-done)

	v := m.View()
	assert.Equal(t, "add a guitar solo", v.RefineInput)
	assert.Equal(t, DefaultMessages().RefineFailed, v.Error)
}

func TestResetAbandonsInFlightAnalyze(t *testing.T) {
	gw := &fakeGateway{
		candidates: []models.SongCandidate{lemon},
		result:     results,
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	l := &fakeLedger{quota: 100}
	m := newMachine(gw, l, nil)

	m.SetQuery("Lemon")
	require.NoError(t, m.Submit(context.Background()))

	done := make(chan error)
	go func() { done <- m.Confirm(context.Background()) }()

	<-gw.started
	assert.Equal(t, Analyzing, m.State())
	m.Reset()
	assert.Equal(t, Idle, m.State())

	close(gw.release)
	assert.ErrorIs(t, <-done, ErrAbandoned)

	v := m.View()
	assert.Equal(t, Idle, v.State)
	assert.Nil(t, v.Result)
	assert.Equal(t, 0, l.increments)
}

func TestLoadUsage(t *testing.T) {
	l := &fakeLedger{count: 95, quota: 100}
	m := newMachine(&fakeGateway{}, l, nil)

	m.LoadUsage(context.Background())
	v := m.View()
	require.NotNil(t, v.Remaining)
	assert.Equal(t, 5, *v.Remaining)
	assert.False(t, v.Locked)

	down := newMachine(&fakeGateway{}, &fakeLedger{quota: 100, down: true}, nil)
	down.LoadUsage(context.Background())
	assert.Nil(t, down.View().Remaining)
	assert.False(t, down.View().Locked)
}

func TestCustomMessages(t *testing.T) {
	gw := &fakeGateway{}
	m := New(Options{
		Gateway:  gw,
		Ledger:   &fakeLedger{quota: 100},
		Messages: Messages{SearchFailed: "No songs found"},
	})

	m.SetQuery("???")
	m.Submit(context.Background())
	assert.Equal(t, "No songs found", m.View().Error)
	assert.Equal(t, DefaultMessages().AnalyzeFailed, m.msgs.AnalyzeFailed)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "results", Results.String())
	assert.Equal(t, "unknown", State(42).String())
}
