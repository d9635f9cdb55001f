package utils

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"history entry", `{"id":"1","song":{"title":"Lemon","artist":"米津玄師"},"result":{"stylePrompt":"J-Pop"}}`},
		{"lyrics with section tags", "[Intro]\n(humming)\n\n[Verse 1]\n夜明けの街を歩いて\n\n[Chorus]\nRun to the light"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Compress([]byte(tt.data))
			if err != nil {
				t.Fatalf("Compress error: %v", err)
			}

			decoded, err := Decompress(encoded)
			if err != nil {
				t.Fatalf("Decompress error: %v", err)
			}
			if string(decoded) != tt.data {
				t.Errorf("Expected %q, got %q", tt.data, decoded)
			}
		})
	}
}

func TestCompressShrinksRepeatedChorus(t *testing.T) {
	content := strings.Repeat("[Chorus]\nRun, run, run to the light, never looking back tonight\n", 100)

	encoded, err := Compress([]byte(content))
	if err != nil {
		t.Fatalf("Compress error: %v", err)
	}
	if ratio := float64(len(encoded)) / float64(len(content)); ratio > 0.1 {
		t.Errorf("Expected ratio < 0.1 for repetitive content, got %.2f", ratio)
	}
}

func TestDecompressRejects(t *testing.T) {
	notGzip := "aGVsbG8=" // base64 of "hello"

	tests := []struct {
		name  string
		input string
	}{
		{"invalid base64", "invalid_base64_string"},
		{"not gzip", notGzip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decompress(tt.input); err == nil {
				t.Errorf("Expected error decompressing %q", tt.input)
			}
		})
	}
}

func TestDecompressTooLarge(t *testing.T) {
	encoded, err := Compress(bytes.Repeat([]byte{'a'}, MaxDecompressedSize+10))
	if err != nil {
		t.Fatalf("Compress error: %v", err)
	}

	if _, err := Decompress(encoded); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Expected ErrTooLarge, got %v", err)
	}
}
