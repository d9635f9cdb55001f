package gemini

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"musicseed-go/logcolors"
	"musicseed-go/models"
	"musicseed-go/services/gateway"

	log "github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// Default models per task
const (
	DefaultSearchModel  = "gemini-2.5-flash"
	DefaultAnalyzeModel = "gemini-3-flash-preview"
	DefaultRefineModel  = "gemini-3-flash-preview"
)

// Config holds the Gemini backend settings
type Config struct {
	APIKey       string
	SearchModel  string
	AnalyzeModel string
	RefineModel  string
	Timeout      time.Duration
	BaseURL      string // override for tests and proxies
}

// Backend generates content with the Gemini API
type Backend struct {
	client *genai.Client
	models map[gateway.Task]string
}

// New creates a Gemini backend
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.SearchModel == "" {
		cfg.SearchModel = DefaultSearchModel
	}
	if cfg.AnalyzeModel == "" {
		cfg.AnalyzeModel = DefaultAnalyzeModel
	}
	if cfg.RefineModel == "" {
		cfg.RefineModel = DefaultRefineModel
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	log.Infof("%s Backend ready (search: %s, analyze: %s, refine: %s)",
		logcolors.LogGemini, cfg.SearchModel, cfg.AnalyzeModel, cfg.RefineModel)

	return &Backend{
		client: client,
		models: map[gateway.Task]string{
			gateway.TaskSearch:  cfg.SearchModel,
			gateway.TaskAnalyze: cfg.AnalyzeModel,
			gateway.TaskRefine:  cfg.RefineModel,
		},
	}, nil
}

func (b *Backend) Name() string {
	return "gemini"
}

// Model returns the model used for task
func (b *Backend) Model(task gateway.Task) string {
	return b.models[task]
}

func (b *Backend) Generate(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	model := b.Model(req.Task)
	if model == "" {
		return nil, fmt.Errorf("no gemini model configured for task %q", req.Task)
	}

	start := time.Now()
	resp, err := b.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), buildConfig(req))
	if err != nil {
		return nil, fmt.Errorf("gemini %s: %w", model, err)
	}

	out := &gateway.Response{
		Text:    resp.Text(),
		Sources: groundingSources(resp),
	}

	log.Debugf("%s %s answered %s in %v (%d chars, %d sources)",
		logcolors.LogGemini, model, req.Task, time.Since(start), len(out.Text), len(out.Sources))
	return out, nil
}

func buildConfig(req gateway.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: req.Temperature,
	}
	if req.Grounded {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = toSchema(req.Schema)
	}
	return cfg
}

func toSchema(s *gateway.Schema) *genai.Schema {
	props := make(map[string]*genai.Schema, len(s.Properties))
	for _, name := range s.Properties {
		props[name] = &genai.Schema{Type: genai.TypeString}
	}
	return &genai.Schema{
		Type:             genai.TypeObject,
		Properties:       props,
		Required:         s.Required,
		PropertyOrdering: s.Properties,
	}
}

// groundingSources lists the web sources of the first candidate. Deduping
// and placeholder handling happen in the gateway.
func groundingSources(resp *genai.GenerateContentResponse) []models.Citation {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return nil
	}

	var sources []models.Citation
	for _, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		sources = append(sources, models.Citation{Title: chunk.Web.Title, URI: chunk.Web.URI})
	}
	return sources
}
