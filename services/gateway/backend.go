package gateway

import (
	"context"

	"musicseed-go/models"
)

// Task identifies which gateway operation a backend call serves. Backends
// use it to pick a model.
type Task string

const (
	TaskSearch  Task = "search"
	TaskAnalyze Task = "analyze"
	TaskRefine  Task = "refine"
)

// Schema describes a flat JSON object of string properties that the backend
// should constrain its output to
type Schema struct {
	Properties []string
	Required   []string
}

// Request is one prompt sent to the AI backend
type Request struct {
	Task        Task
	Prompt      string
	Grounded    bool     // enable web search grounding
	Temperature *float32 // nil leaves the backend default
	Schema      *Schema  // nil for free-form text
}

// Response is the raw backend output plus any grounding sources
type Response struct {
	Text    string
	Sources []models.Citation
}

// Backend is the opaque AI generation service
type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Grounder is implemented by backends that know whether they can search the
// web. A backend reporting false never receives grounded requests.
type Grounder interface {
	CanGround() bool
}
