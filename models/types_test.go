package models

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestMerge(t *testing.T) {
	base := GenerationResult{
		Lyrics:                 "[Intro]\nold",
		StylePrompt:            "old prompt",
		StylePromptTranslation: "古い",
		Reasoning:              "first pass",
		Sources:                []Citation{{Title: "Wiki", URI: "https://example.com"}},
	}

	merged := Merge(base, Refinement{
		StylePrompt: strPtr("new prompt"),
		Reasoning:   strPtr("faster tempo"),
	})

	if merged.StylePrompt != "new prompt" {
		t.Errorf("Expected refined style prompt, got %q", merged.StylePrompt)
	}
	if merged.Reasoning != "faster tempo" {
		t.Errorf("Expected refined reasoning, got %q", merged.Reasoning)
	}
	if merged.Lyrics != base.Lyrics {
		t.Errorf("Expected lyrics to be kept, got %q", merged.Lyrics)
	}
	if merged.StylePromptTranslation != base.StylePromptTranslation {
		t.Errorf("Expected translation to be kept, got %q", merged.StylePromptTranslation)
	}
	if len(merged.Sources) != 1 || merged.Sources[0].URI != "https://example.com" {
		t.Errorf("Expected sources to be kept, got %+v", merged.Sources)
	}

	// The base must not be mutated
	if base.StylePrompt != "old prompt" {
		t.Errorf("Merge mutated base: %q", base.StylePrompt)
	}
}

func TestMerge_EmptyStringWins(t *testing.T) {
	base := GenerationResult{Reasoning: "kept?"}
	merged := Merge(base, Refinement{Reasoning: strPtr("")})
	if merged.Reasoning != "" {
		t.Errorf("Expected explicit empty field to replace base, got %q", merged.Reasoning)
	}
}

func TestRefinementEmpty(t *testing.T) {
	if !(Refinement{}).Empty() {
		t.Error("Expected zero refinement to be empty")
	}
	if (Refinement{Lyrics: strPtr("x")}).Empty() {
		t.Error("Expected refinement with lyrics to be non-empty")
	}
}

func TestKindStatus(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindQuotaExhausted, http.StatusForbidden},
		{KindMalformedResponse, http.StatusBadGateway},
		{KindUpstreamUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Status(); got != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("search: %w", NewError(KindNotFound, "no songs"))
	if KindOf(err) != KindNotFound {
		t.Errorf("Expected not_found through wrapping, got %s", KindOf(err))
	}
	if !IsKind(err, KindNotFound) {
		t.Error("Expected IsKind to match wrapped error")
	}
	if KindOf(errors.New("boom")) != KindUpstreamUnavailable {
		t.Error("Expected unclassified errors to be upstream_unavailable")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError(KindUpstreamUnavailable, "backend failed", cause)
	if !errors.Is(err, cause) {
		t.Error("Expected wrapped cause to be reachable with errors.Is")
	}
	if err.Error() != "backend failed: connection reset" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}
