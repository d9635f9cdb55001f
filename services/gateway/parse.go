package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"musicseed-go/models"
)

// stripFences removes every markdown code fence marker the model may wrap
// its JSON in
func stripFences(text string) string {
	clean := strings.ReplaceAll(text, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	return strings.TrimSpace(clean)
}

// looseString decodes a JSON string or number. Models sometimes answer
// "year": 2020 instead of "2020".
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", data)
		}
		*s = looseString(n.String())
		return nil
	}
}

func (s looseString) trimmed() string {
	return strings.TrimSpace(string(s))
}

type rawCandidate struct {
	Title       looseString `json:"title"`
	Artist      looseString `json:"artist"`
	Genre       looseString `json:"genre"`
	Year        looseString `json:"year"`
	Description looseString `json:"description"`
}

func (r rawCandidate) candidate() models.SongCandidate {
	return models.SongCandidate{
		Title:       r.Title.trimmed(),
		Artist:      r.Artist.trimmed(),
		Genre:       r.Genre.trimmed(),
		Year:        r.Year.trimmed(),
		Description: r.Description.trimmed(),
	}
}

func malformed(err error) error {
	return models.WrapError(models.KindMalformedResponse, "AI response could not be parsed", err)
}

// parseCandidates decodes a search response. A single object is treated as
// a one-element list; entries without a title are dropped and at most
// MaxCandidates are kept. Valid JSON with no usable entry is NotFound.
func parseCandidates(text string) ([]models.SongCandidate, error) {
	clean := stripFences(text)
	if clean == "" {
		return nil, malformed(fmt.Errorf("empty response"))
	}

	var doc json.RawMessage
	if err := json.Unmarshal([]byte(clean), &doc); err != nil {
		return nil, malformed(err)
	}

	var raws []rawCandidate
	switch doc[0] {
	case '[':
		if err := json.Unmarshal(doc, &raws); err != nil {
			return nil, malformed(err)
		}
	case '{':
		var single rawCandidate
		if err := json.Unmarshal(doc, &single); err != nil {
			return nil, malformed(err)
		}
		raws = []rawCandidate{single}
	}

	candidates := make([]models.SongCandidate, 0, len(raws))
	for _, raw := range raws {
		c := raw.candidate()
		if c.Title == "" {
			continue
		}
		candidates = append(candidates, c)
		if len(candidates) == MaxCandidates {
			break
		}
	}

	if len(candidates) == 0 {
		return nil, models.NewError(models.KindNotFound, "楽曲が見つかりませんでした")
	}
	return candidates, nil
}

type generationDoc struct {
	Reasoning              *string `json:"reasoning"`
	StylePrompt            *string `json:"stylePrompt"`
	StylePromptTranslation *string `json:"stylePromptTranslation"`
	Lyrics                 *string `json:"lyrics"`
}

func decodeGeneration(text string) (generationDoc, error) {
	var doc generationDoc

	clean := stripFences(text)
	if clean == "" {
		return doc, malformed(fmt.Errorf("empty response"))
	}
	if !strings.HasPrefix(clean, "{") {
		return doc, malformed(fmt.Errorf("expected a JSON object"))
	}
	if err := json.Unmarshal([]byte(clean), &doc); err != nil {
		return doc, malformed(err)
	}
	return doc, nil
}

// nonEmpty returns nil for missing or blank values so a refine never wipes a
// field with an empty string
func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// parseGeneration decodes an analyze response. Style prompt and lyrics are
// mandatory.
func parseGeneration(text string) (*models.GenerationResult, error) {
	doc, err := decodeGeneration(text)
	if err != nil {
		return nil, err
	}

	stylePrompt := nonEmpty(doc.StylePrompt)
	lyrics := nonEmpty(doc.Lyrics)

	var missing []string
	if stylePrompt == nil {
		missing = append(missing, "stylePrompt")
	}
	if lyrics == nil {
		missing = append(missing, "lyrics")
	}
	if len(missing) > 0 {
		return nil, malformed(fmt.Errorf("missing %s", strings.Join(missing, ", ")))
	}

	return &models.GenerationResult{
		Lyrics:                 *lyrics,
		StylePrompt:            *stylePrompt,
		StylePromptTranslation: deref(nonEmpty(doc.StylePromptTranslation)),
		Reasoning:              deref(nonEmpty(doc.Reasoning)),
	}, nil
}

// parseRefinement decodes a refine response into a partial result. A
// document with no usable field is malformed.
func parseRefinement(text string) (*models.Refinement, error) {
	doc, err := decodeGeneration(text)
	if err != nil {
		return nil, err
	}

	r := &models.Refinement{
		Lyrics:                 nonEmpty(doc.Lyrics),
		StylePrompt:            nonEmpty(doc.StylePrompt),
		StylePromptTranslation: nonEmpty(doc.StylePromptTranslation),
		Reasoning:              nonEmpty(doc.Reasoning),
	}
	if r.Empty() {
		return nil, malformed(fmt.Errorf("no fields returned"))
	}
	return r, nil
}
