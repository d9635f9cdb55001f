package models

import "time"

// SongCandidate is a song identified by the search operation
type SongCandidate struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Genre       string `json:"genre,omitempty"`
	Year        string `json:"year,omitempty"`
	Description string `json:"description,omitempty"`
}

// Citation is a grounding source attached to a generation result
type Citation struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// GenerationResult is the style prompt and lyrics derived from a reference song
type GenerationResult struct {
	Lyrics                 string     `json:"lyrics"`
	StylePrompt            string     `json:"stylePrompt"`
	StylePromptTranslation string     `json:"stylePromptTranslation"`
	Reasoning              string     `json:"reasoning,omitempty"`
	Sources                []Citation `json:"sources,omitempty"`
}

// Refinement is the partial result returned by a refine call.
// A nil field means the backend did not return it.
type Refinement struct {
	Lyrics                 *string `json:"lyrics,omitempty"`
	StylePrompt            *string `json:"stylePrompt,omitempty"`
	StylePromptTranslation *string `json:"stylePromptTranslation,omitempty"`
	Reasoning              *string `json:"reasoning,omitempty"`
}

// Empty reports whether the refinement carries no field at all
func (r Refinement) Empty() bool {
	return r.Lyrics == nil && r.StylePrompt == nil && r.StylePromptTranslation == nil && r.Reasoning == nil
}

// Merge applies a refinement over base. Fields present in the refinement win,
// everything else (including sources) keeps the base value.
func Merge(base GenerationResult, patch Refinement) GenerationResult {
	merged := base
	if patch.Lyrics != nil {
		merged.Lyrics = *patch.Lyrics
	}
	if patch.StylePrompt != nil {
		merged.StylePrompt = *patch.StylePrompt
	}
	if patch.StylePromptTranslation != nil {
		merged.StylePromptTranslation = *patch.StylePromptTranslation
	}
	if patch.Reasoning != nil {
		merged.Reasoning = *patch.Reasoning
	}
	if base.Sources != nil {
		merged.Sources = append([]Citation(nil), base.Sources...)
	}
	return merged
}

// UsageStatus describes how much of the lifetime quota an identity has used.
// Remaining is nil when the ledger could not be reached.
type UsageStatus struct {
	Allowed   bool `json:"allowed"`
	Count     int  `json:"count"`
	Remaining *int `json:"remaining"`
	Quota     int  `json:"quota"`
}

// HistoryEntry is one locally stored generation
type HistoryEntry struct {
	ID        string           `json:"id"`
	Song      SongCandidate    `json:"song"`
	Result    GenerationResult `json:"result"`
	CreatedAt time.Time        `json:"createdAt"`
}

// SearchRequest is the body of POST /api/search
type SearchRequest struct {
	Query string `json:"query" validate:"required,max=200"`
}

// AnalyzeRequest is the body of POST /api/analyze
type AnalyzeRequest struct {
	Title  string `json:"title" validate:"required,max=200"`
	Artist string `json:"artist" validate:"required,max=200"`
}

// RefineRequest is the body of POST /api/refine
type RefineRequest struct {
	StylePrompt string `json:"stylePrompt" validate:"max=1200"`
	Lyrics      string `json:"lyrics" validate:"max=5000"`
	Instruction string `json:"instruction" validate:"required,max=500"`
}

// UsageIdentity is the identity token path parameter of the usage endpoints
type UsageIdentity struct {
	Identity string `validate:"required,max=128,printascii"`
}
