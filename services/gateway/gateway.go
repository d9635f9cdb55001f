package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"musicseed-go/circuitbreaker"
	"musicseed-go/logcolors"
	"musicseed-go/models"
	"musicseed-go/ratelimit"
	"musicseed-go/stats"
	"musicseed-go/utils"

	log "github.com/sirupsen/logrus"
)

var searchTemperature float32 = 0.5

// Options configures a Gateway
type Options struct {
	Backend Backend
	Limiter ratelimit.Limiter              // nil disables rate limiting
	Breaker *circuitbreaker.CircuitBreaker // nil disables the breaker
	// Grounded enables web search grounding for search and analyze
	Grounded bool
	Stats    *stats.Stats
}

// Gateway mediates every call to the AI backend: inputs are sanitized and
// validated, callers are rate limited per origin, the backend is guarded by
// a circuit breaker and its output is parsed into typed results. Every
// failure is returned as a *models.Error.
type Gateway struct {
	backend  Backend
	limiter  ratelimit.Limiter
	breaker  *circuitbreaker.CircuitBreaker
	grounded bool
	stats    *stats.Stats
}

// New creates a Gateway
func New(opts Options) *Gateway {
	if opts.Stats == nil {
		opts.Stats = stats.Get()
	}
	if g, ok := opts.Backend.(Grounder); ok && !g.CanGround() {
		opts.Grounded = false
	}
	return &Gateway{
		backend:  opts.Backend,
		limiter:  opts.Limiter,
		breaker:  opts.Breaker,
		grounded: opts.Grounded,
		stats:    opts.Stats,
	}
}

// Provider returns the backend name
func (g *Gateway) Provider() string {
	return g.backend.Name()
}

// Search finds up to MaxCandidates songs matching query, most relevant first
func (g *Gateway) Search(ctx context.Context, origin, query string) ([]models.SongCandidate, error) {
	req := models.SearchRequest{
		Query: clean(utils.Sanitize(query, utils.MaxQueryLength)),
	}
	if err := g.admit(origin, req); err != nil {
		return nil, g.fail(logcolors.LogSearch, err)
	}

	log.Infof("%s Searching for %q (origin: %s)", logcolors.LogSearch, req.Query, origin)

	resp, err := g.generate(ctx, Request{
		Task:        TaskSearch,
		Prompt:      searchPrompt(req.Query, g.grounded),
		Grounded:    g.grounded,
		Temperature: &searchTemperature,
	})
	if err != nil {
		return nil, g.fail(logcolors.LogSearch, err)
	}

	candidates, err := parseCandidates(resp.Text)
	if err != nil {
		return nil, g.fail(logcolors.LogSearch, err)
	}

	log.Infof("%s Found %d candidate(s) for %q", logcolors.LogSearch, len(candidates), req.Query)
	return candidates, nil
}

// Analyze researches a song and derives a style prompt and new lyrics from it
func (g *Gateway) Analyze(ctx context.Context, origin, title, artist string) (*models.GenerationResult, error) {
	req := models.AnalyzeRequest{
		Title:  clean(utils.Sanitize(title, utils.MaxTitleLength)),
		Artist: clean(utils.Sanitize(artist, utils.MaxArtistLength)),
	}
	if err := g.admit(origin, req); err != nil {
		return nil, g.fail(logcolors.LogAnalyze, err)
	}

	log.Infof("%s Analyzing %q by %q (origin: %s)", logcolors.LogAnalyze, req.Title, req.Artist, origin)

	resp, err := g.generate(ctx, Request{
		Task:     TaskAnalyze,
		Prompt:   analyzePrompt(req.Title, req.Artist, g.grounded),
		Grounded: g.grounded,
	})
	if err != nil {
		return nil, g.fail(logcolors.LogAnalyze, err)
	}

	result, err := parseGeneration(resp.Text)
	if err != nil {
		return nil, g.fail(logcolors.LogAnalyze, err)
	}
	result.Sources = DedupeCitations(resp.Sources)

	checkStyleLength(logcolors.LogAnalyze, result.StylePrompt)

	log.Infof("%s Generated result for %q (%d sources)", logcolors.LogAnalyze, req.Title, len(result.Sources))
	return result, nil
}

// Refine rewrites the current style prompt and lyrics following instruction.
// The returned partial result is merged over the current one by the caller.
func (g *Gateway) Refine(ctx context.Context, origin string, in models.RefineRequest) (*models.Refinement, error) {
	req := models.RefineRequest{
		StylePrompt: clean(utils.Sanitize(in.StylePrompt, utils.MaxStylePromptLength)),
		Lyrics:      clean(utils.SanitizeText(in.Lyrics, utils.MaxLyricsLength)),
		Instruction: clean(utils.Sanitize(in.Instruction, utils.MaxInstructionLength)),
	}
	if err := g.admit(origin, req); err != nil {
		return nil, g.fail(logcolors.LogRefine, err)
	}

	log.Infof("%s Refining with %q (origin: %s)", logcolors.LogRefine, req.Instruction, origin)

	resp, err := g.generate(ctx, Request{
		Task:   TaskRefine,
		Prompt: refinePrompt(req.StylePrompt, req.Lyrics, req.Instruction),
		Schema: refineSchema,
	})
	if err != nil {
		return nil, g.fail(logcolors.LogRefine, err)
	}

	refinement, err := parseRefinement(resp.Text)
	if err != nil {
		return nil, g.fail(logcolors.LogRefine, err)
	}

	if refinement.StylePrompt != nil {
		checkStyleLength(logcolors.LogRefine, *refinement.StylePrompt)
	}
	return refinement, nil
}

// admit validates the sanitized request and consults the rate limiter.
// Invalid requests never count against the caller's window.
func (g *Gateway) admit(origin string, req interface{}) error {
	if err := models.Validate(req); err != nil {
		return err
	}

	if g.limiter == nil {
		return nil
	}
	if !g.limiter.Allow(origin) {
		g.stats.RecordRateLimit("denied")
		log.Warnf("%s Origin %s exceeded the AI call window", logcolors.LogRateLimit, origin)
		return models.NewError(models.KindRateLimited, "Too many requests. Please wait a moment and try again.")
	}
	g.stats.RecordRateLimit("allowed")
	return nil
}

// generate calls the backend through the circuit breaker. Transport and
// provider errors become UpstreamUnavailable and count against the breaker.
func (g *Gateway) generate(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	call := func() error {
		var err error
		resp, err = g.backend.Generate(ctx, req)
		return err
	}

	var err error
	if g.breaker != nil {
		err = g.breaker.Execute(call, breakerOutcome)
	} else {
		err = call()
	}

	switch {
	case err == nil:
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		retry := g.breaker.TimeUntilRetry().Round(time.Second)
		return nil, models.WrapError(models.KindUpstreamUnavailable,
			fmt.Sprintf("AI service temporarily unavailable, retry in %v", retry), err)
	default:
		var classified *models.Error
		if errors.As(err, &classified) {
			return nil, classified
		}
		return nil, models.WrapError(models.KindUpstreamUnavailable, "AI service request failed", err)
	}

	if resp == nil {
		return nil, malformed(fmt.Errorf("no response from %s", g.backend.Name()))
	}
	return resp, nil
}

// breakerOutcome treats caller cancellation as neutral: the upstream never
// answered, so it is neither a failure nor evidence of recovery
func breakerOutcome(err error) circuitbreaker.Outcome {
	if errors.Is(err, context.Canceled) {
		return circuitbreaker.Neutral
	}
	return circuitbreaker.Failure
}

func (g *Gateway) fail(prefix string, err error) error {
	kind := models.KindOf(err)
	g.stats.RecordFailure(string(kind))

	switch kind {
	case models.KindValidation, models.KindNotFound, models.KindRateLimited:
		log.Infof("%s %v", prefix, err)
	default:
		log.Errorf("%s %v", prefix, err)
	}

	var classified *models.Error
	if errors.As(err, &classified) {
		return classified
	}
	return models.WrapError(kind, "AI service request failed", err)
}

func checkStyleLength(prefix, stylePrompt string) {
	n := utf8.RuneCountInString(stylePrompt)
	if n < StylePromptMinLength || n > StylePromptMaxLength {
		log.Warnf("%s %s Style prompt length %d outside %d-%d", logcolors.LogWarning, prefix, n, StylePromptMinLength, StylePromptMaxLength)
	}
}

func clean(s string) string {
	return strings.TrimSpace(s)
}
