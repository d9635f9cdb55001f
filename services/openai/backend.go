package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"musicseed-go/logcolors"
	"musicseed-go/services/gateway"

	oai "github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
)

const DefaultModel = "gpt-4o-mini"

const systemPrompt = "You are a music producer who answers strictly in the JSON format requested by the user."

// Config holds the OpenAI-compatible backend settings
type Config struct {
	APIKey  string
	BaseURL string // any OpenAI-compatible endpoint
	Model   string
	Timeout time.Duration
}

// Backend generates content through the chat completions API. It has no web
// grounding, so responses never carry sources.
type Backend struct {
	client *oai.Client
	model  string
}

// New creates an OpenAI backend
func New(cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	clientCfg := oai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	log.Infof("%s Backend ready (model: %s)", logcolors.LogOpenAI, cfg.Model)

	return &Backend{
		client: oai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

func (b *Backend) Name() string {
	return "openai"
}

// CanGround is false: chat completions have no web search tool
func (b *Backend) CanGround() bool {
	return false
}

func (b *Backend) Generate(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	if req.Grounded {
		log.Debugf("%s Grounding requested for %s but not supported, answering from model knowledge", logcolors.LogOpenAI, req.Task)
	}

	start := time.Now()
	resp, err := b.client.CreateChatCompletion(ctx, buildRequest(b.model, req))
	if err != nil {
		var apiErr *oai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai %s: status %d: %w", b.model, apiErr.HTTPStatusCode, err)
		}
		return nil, fmt.Errorf("openai %s: %w", b.model, err)
	}
	if len(resp.Choices) == 0 {
		return &gateway.Response{}, nil
	}

	text := resp.Choices[0].Message.Content
	log.Debugf("%s %s answered %s in %v (%d chars, finish: %s)",
		logcolors.LogOpenAI, b.model, req.Task, time.Since(start), len(text), resp.Choices[0].FinishReason)
	return &gateway.Response{Text: text}, nil
}

func buildRequest(model string, req gateway.Request) oai.ChatCompletionRequest {
	out := oai.ChatCompletionRequest{
		Model: model,
		Messages: []oai.ChatCompletionMessage{
			{Role: oai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: oai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	if req.Schema != nil {
		out.ResponseFormat = &oai.ChatCompletionResponseFormat{
			Type: oai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return out
}
