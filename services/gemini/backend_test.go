package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"musicseed-go/models"
	"musicseed-go/services/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestNewDefaultModels(t *testing.T) {
	b, err := New(context.Background(), Config{APIKey: "test-key"})
	require.NoError(t, err)

	assert.Equal(t, "gemini", b.Name())
	assert.Equal(t, DefaultSearchModel, b.Model(gateway.TaskSearch))
	assert.Equal(t, DefaultAnalyzeModel, b.Model(gateway.TaskAnalyze))
	assert.Equal(t, DefaultRefineModel, b.Model(gateway.TaskRefine))
}

func TestBuildConfig(t *testing.T) {
	temp := float32(0.5)

	search := buildConfig(gateway.Request{Task: gateway.TaskSearch, Grounded: true, Temperature: &temp})
	require.Len(t, search.Tools, 1)
	assert.NotNil(t, search.Tools[0].GoogleSearch)
	require.NotNil(t, search.Temperature)
	assert.Equal(t, float32(0.5), *search.Temperature)
	assert.Empty(t, search.ResponseMIMEType)

	refine := buildConfig(gateway.Request{
		Task:   gateway.TaskRefine,
		Schema: &gateway.Schema{Properties: []string{"lyrics", "stylePrompt"}, Required: []string{"lyrics"}},
	})
	assert.Empty(t, refine.Tools)
	assert.Nil(t, refine.Temperature)
	assert.Equal(t, "application/json", refine.ResponseMIMEType)
	require.NotNil(t, refine.ResponseSchema)
	assert.Len(t, refine.ResponseSchema.Properties, 2)
	assert.Equal(t, []string{"lyrics"}, refine.ResponseSchema.Required)
}

func TestGenerate(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "{\"stylePrompt\":\"x\",\"lyrics\":\"y\"}"}]},
				"groundingMetadata": {
					"groundingChunks": [
						{"web": {"uri": "https://ja.wikipedia.org/wiki/Lemon", "title": "Wikipedia"}},
						{"web": {"uri": "https://example.com", "title": ""}}
					]
				}
			}]
		}`)
	}))
	defer server.Close()

	b, err := New(context.Background(), Config{
		APIKey:       "test-key",
		AnalyzeModel: "gemini-test",
		Timeout:      5 * time.Second,
		BaseURL:      server.URL,
	})
	require.NoError(t, err)

	resp, err := b.Generate(context.Background(), gateway.Request{
		Task:     gateway.TaskAnalyze,
		Prompt:   "Target Song: Lemon",
		Grounded: true,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(gotPath, "models/gemini-test:generateContent"), "unexpected path %s", gotPath)
	assert.Contains(t, gotBody, "tools")
	assert.Equal(t, `{"stylePrompt":"x","lyrics":"y"}`, resp.Text)
	assert.Equal(t, []models.Citation{
		{Title: "Wikipedia", URI: "https://ja.wikipedia.org/wiki/Lemon"},
		{Title: "", URI: "https://example.com"},
	}, resp.Sources)
}

func TestGenerateUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error": {"code": 503, "message": "overloaded", "status": "UNAVAILABLE"}}`)
	}))
	defer server.Close()

	b, err := New(context.Background(), Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = b.Generate(context.Background(), gateway.Request{Task: gateway.TaskSearch, Prompt: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini "+DefaultSearchModel)
}

func TestGroundingSourcesNil(t *testing.T) {
	assert.Nil(t, groundingSources(nil))
}
