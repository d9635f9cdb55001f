package utils

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{
			name:     "Injection characters removed",
			input:    "a`b${c}\\\"d",
			maxLen:   200,
			expected: "abcd",
		},
		{
			name:     "Plain title untouched",
			input:    "Blinding Lights",
			maxLen:   200,
			expected: "Blinding Lights",
		},
		{
			name:     "Empty input",
			input:    "",
			maxLen:   200,
			expected: "",
		},
		{
			name:     "Truncated to max length",
			input:    "abcdefghij",
			maxLen:   4,
			expected: "abcd",
		},
		{
			name:     "Truncation counts runes not bytes",
			input:    "夜に駆ける",
			maxLen:   3,
			expected: "夜に駆",
		},
		{
			name:     "Removal happens before truncation",
			input:    "{{{{abc",
			maxLen:   3,
			expected: "abc",
		},
		{
			name:     "Zero max length",
			input:    "abc",
			maxLen:   0,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.input, tt.maxLen)
			if got != tt.expected {
				t.Errorf("Sanitize(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.expected)
			}
			if utf8.RuneCountInString(got) > tt.maxLen && tt.maxLen > 0 {
				t.Errorf("Sanitize result exceeds max length: %d > %d", utf8.RuneCountInString(got), tt.maxLen)
			}
		})
	}
}

func TestSanitizeText_KeepsQuotes(t *testing.T) {
	got := SanitizeText(`She said "stay" ${x}`, MaxLyricsLength)
	if got != `She said "stay" x` {
		t.Errorf("Unexpected sanitized lyrics %q", got)
	}
}

func TestSanitize_NoForbiddenCharactersSurvive(t *testing.T) {
	input := strings.Repeat("`$\\\"{}ok", 100)
	got := Sanitize(input, MaxInstructionLength)
	if strings.ContainsAny(got, "`$\\\"{}") {
		t.Errorf("Forbidden characters survived: %q", got)
	}
	if got != strings.Repeat("ok", 100) {
		t.Errorf("Unexpected result %q", got)
	}
}
