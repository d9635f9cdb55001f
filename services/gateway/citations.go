package gateway

import (
	"strings"

	"musicseed-go/models"
)

const placeholderURI = "#"

// DedupeCitations drops sources with an empty or placeholder URI and keeps
// the first occurrence of each URI, preserving order. Missing titles become
// "Source".
func DedupeCitations(sources []models.Citation) []models.Citation {
	if len(sources) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(sources))
	out := make([]models.Citation, 0, len(sources))
	for _, src := range sources {
		uri := strings.TrimSpace(src.URI)
		if uri == "" || uri == placeholderURI {
			continue
		}
		if _, dup := seen[uri]; dup {
			continue
		}
		seen[uri] = struct{}{}

		title := strings.TrimSpace(src.Title)
		if title == "" {
			title = "Source"
		}
		out = append(out, models.Citation{Title: title, URI: uri})
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
