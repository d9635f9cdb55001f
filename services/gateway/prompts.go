package gateway

import "fmt"

// Style prompt length band requested from the backend
const (
	StylePromptMinLength = 700
	StylePromptMaxLength = 999
)

// MaxCandidates caps the number of songs a search returns
const MaxCandidates = 5

var refineSchema = &Schema{
	Properties: []string{"reasoning", "stylePrompt", "stylePromptTranslation", "lyrics"},
	Required:   []string{"reasoning", "stylePrompt", "stylePromptTranslation", "lyrics"},
}

// research phrases the lookup step for backends with and without web search
func research(grounded bool, withSearch, withoutSearch string) string {
	if grounded {
		return withSearch
	}
	return withoutSearch
}

func searchPrompt(query string, grounded bool) string {
	return fmt.Sprintf(`
User Query: "%s"
Task: Search for music tracks that match the user's query.
Context: The user is likely searching for Japanese songs (J-Pop, Rock, Enka, Anime, etc.) or popular Western songs.
1. %s
2. If the query is just a title, find the most famous artists who released a song with that title.
3. Return a JSON array of up to %d potential matches.
Output JSON ONLY (No markdown, no explanation):
[{ "title": "Title", "artist": "Artist", "genre": "Genre", "year": "Year", "description": "Short description in Japanese" }]
`, query, research(grounded,
		"Use Google Search to identify the song.",
		"Identify the song from your knowledge of released music; do not invent songs."),
		MaxCandidates)
}

func analyzePrompt(title, artist string, grounded bool) string {
	return fmt.Sprintf(`
You are an expert music producer and prompt engineer for AI music generators (Suno v3.5).
Target Song: "%[1]s" by "%[2]s"
TASK:
1. RESEARCH: %[5]s
   - Identify the EXACT SONG STRUCTURE (Intro, A/B/Chorus, Bridge, Solo, Outro).
   - Identify the TOTAL DURATION (e.g., 4:30).
2. GENERATE:
   A. stylePrompt (Style Description):
      - STRICT LENGTH REQUIREMENT: %[3]d to %[4]d characters.
      - You MUST fill the space: list specific instrument models, describe playing techniques, production and mixing, vocal nuances and atmosphere using many adjectives.
      - NO ARTIST NAMES.
   B. lyrics (Full Song Content):
      - LANGUAGE: Write lyrics in the SAME LANGUAGE as the original song.
      - FULL DURATION REQUIRED.
      - MUST INCLUDE ALL SECTIONS: [Intro], [Verse 1], [Pre-Chorus], [Chorus], [Verse 2], [Pre-Chorus], [Chorus], [Bridge], [Solo], [Last Chorus], [Outro].
      - ORIGINALITY: NO keywords or title words from the original. Completely new metaphor and theme.
JSON Output Structure:
{
  "reasoning": "A summary in JAPANESE.",
  "stylePrompt": "A MASSIVE block of text (%[3]d-%[4]d chars).",
  "stylePromptTranslation": "Japanese translation.",
  "lyrics": "FULL song lyrics with section tags."
}
IMPORTANT: Return ONLY the JSON object.
`, title, artist, StylePromptMinLength, StylePromptMaxLength, research(grounded,
		"Perform a THOROUGH research analysis on this song using Google Search.",
		"Perform a THOROUGH analysis of this song from your knowledge of it."))
}

func refinePrompt(stylePrompt, lyrics, instruction string) string {
	return fmt.Sprintf(`
Current Style Prompt: "%s"
Current Lyrics: "%s"
User Instruction: "%s"
TASK: Update the content based on the instruction.
CRITICAL RULES:
1. NO ARTIST NAMES in stylePrompt.
2. LENGTH: STRICTLY MAINTAIN OR INCREASE LENGTH (%d-%d characters). DO NOT SHORTEN.
3. LYRICS: Keep full structure.
Output JSON structure (fill all fields even if unchanged):
{ "reasoning": "A brief summary in JAPANESE of what you changed and why.", "stylePrompt": "...", "stylePromptTranslation": "...", "lyrics": "..." }
`, stylePrompt, lyrics, instruction, StylePromptMinLength, StylePromptMaxLength)
}
