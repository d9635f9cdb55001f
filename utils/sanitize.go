package utils

import "strings"

// Input limits applied before any value is interpolated into a prompt
const (
	MaxQueryLength       = 200
	MaxTitleLength       = 200
	MaxArtistLength      = 200
	MaxInstructionLength = 500
	MaxStylePromptLength = 1200
	MaxLyricsLength      = 5000
)

// promptBreakers are characters that can close or interpolate a templated
// prompt string
var promptBreakers = strings.NewReplacer(
	"`", "",
	"$", "",
	"{", "",
	"}", "",
	"\\", "",
	`"`, "",
)

// textBreakers is promptBreakers without the double quote, used for lyrics
var textBreakers = strings.NewReplacer(
	"`", "",
	"$", "",
	"{", "",
	"}", "",
	"\\", "",
)

// Sanitize strips prompt-breaking characters from raw and truncates the
// result to maxLen runes. It never fails; empty input yields "".
func Sanitize(raw string, maxLen int) string {
	return truncateRunes(promptBreakers.Replace(raw), maxLen)
}

// SanitizeText is Sanitize for free-form text such as lyrics, where double
// quotes are kept.
func SanitizeText(raw string, maxLen int) string {
	return truncateRunes(textBreakers.Replace(raw), maxLen)
}

func truncateRunes(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	count := 0
	for i := range s {
		if count == maxLen {
			return s[:i]
		}
		count++
	}
	return s
}
