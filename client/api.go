package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"musicseed-go/logcolors"
	"musicseed-go/models"

	log "github.com/sirupsen/logrus"
)

// RateLimitMessage replaces the server message for 429 responses
const RateLimitMessage = "リクエスト制限に達しました。少し待ってから再試行してください。"

const defaultTimeout = 3 * time.Minute

// Client calls the musicseed proxy
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the transport timeout of the default HTTP client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// New creates a client for the proxy at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search returns the candidates matching query
func (c *Client) Search(ctx context.Context, query string) ([]models.SongCandidate, error) {
	var out []models.SongCandidate
	if err := c.do(ctx, http.MethodPost, "/api/search", models.SearchRequest{Query: query}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Analyze generates a style prompt and lyrics from song
func (c *Client) Analyze(ctx context.Context, song models.SongCandidate) (*models.GenerationResult, error) {
	var out models.GenerationResult
	req := models.AnalyzeRequest{Title: song.Title, Artist: song.Artist}
	if err := c.do(ctx, http.MethodPost, "/api/analyze", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refine asks for a rewrite of current following instruction. The caller
// merges the returned fields over current.
func (c *Client) Refine(ctx context.Context, current models.GenerationResult, instruction string) (*models.Refinement, error) {
	var out models.Refinement
	req := models.RefineRequest{
		StylePrompt: current.StylePrompt,
		Lyrics:      current.Lyrics,
		Instruction: instruction,
	}
	if err := c.do(ctx, http.MethodPost, "/api/refine", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Usage returns the ledger status of identity
func (c *Client) Usage(ctx context.Context, identity string) (models.UsageStatus, error) {
	var out models.UsageStatus
	err := c.do(ctx, http.MethodGet, "/api/usage/"+url.PathEscape(identity), nil, &out)
	return out, err
}

// IncrementUsage records one use for identity and returns the new status
func (c *Client) IncrementUsage(ctx context.Context, identity string) (models.UsageStatus, error) {
	var out models.UsageStatus
	err := c.do(ctx, http.MethodPost, "/api/usage/"+url.PathEscape(identity)+"/increment", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return models.WrapError(models.KindUpstreamUnavailable, "サーバーに接続できませんでした。", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.WrapError(models.KindUpstreamUnavailable, "failed to read response", err)
	}

	log.Debugf("%s %s %s -> %d in %v", logcolors.LogClient, method, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return decodeFailure(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return models.WrapError(models.KindMalformedResponse, "failed to parse response", err)
	}
	return nil
}

// decodeFailure turns a failure body back into a classified error
func decodeFailure(status int, data []byte) error {
	if status == http.StatusTooManyRequests {
		return &models.Error{Kind: models.KindRateLimited, Status: status, Message: RateLimitMessage}
	}

	var body models.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = fmt.Sprintf("API error (%d)", status)
	}
	kind := body.Kind
	if kind == "" {
		kind = kindForStatus(status)
	}
	return &models.Error{Kind: kind, Status: status, Message: body.Error}
}

func kindForStatus(status int) models.Kind {
	switch status {
	case http.StatusBadRequest:
		return models.KindValidation
	case http.StatusNotFound:
		return models.KindNotFound
	case http.StatusForbidden:
		return models.KindQuotaExhausted
	case http.StatusBadGateway:
		return models.KindMalformedResponse
	default:
		return models.KindUpstreamUnavailable
	}
}
