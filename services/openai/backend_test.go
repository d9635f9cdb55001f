package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"musicseed-go/services/gateway"

	oai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestBackendCannotGround(t *testing.T) {
	b, err := New(Config{APIKey: "sk-test"})
	require.NoError(t, err)

	var backend gateway.Backend = b
	grounder, ok := backend.(gateway.Grounder)
	require.True(t, ok)
	assert.False(t, grounder.CanGround())
}

func TestBuildRequest(t *testing.T) {
	temp := float32(0.5)

	search := buildRequest("gpt-test", gateway.Request{Task: gateway.TaskSearch, Prompt: "find", Temperature: &temp})
	assert.Equal(t, "gpt-test", search.Model)
	require.Len(t, search.Messages, 2)
	assert.Equal(t, oai.ChatMessageRoleSystem, search.Messages[0].Role)
	assert.Equal(t, "find", search.Messages[1].Content)
	assert.Equal(t, float32(0.5), search.Temperature)
	assert.Nil(t, search.ResponseFormat)

	refine := buildRequest("gpt-test", gateway.Request{
		Task:   gateway.TaskRefine,
		Prompt: "refine",
		Schema: &gateway.Schema{Properties: []string{"stylePrompt"}},
	})
	require.NotNil(t, refine.ResponseFormat)
	assert.Equal(t, oai.ChatCompletionResponseFormatTypeJSONObject, refine.ResponseFormat.Type)
}

func TestGenerate(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody oai.ChatCompletionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-test",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "[{\"title\":\"Lemon\",\"artist\":\"米津玄師\"}]"},
				"finish_reason": "stop"
			}]
		}`)
	}))
	defer server.Close()

	b, err := New(Config{APIKey: "sk-test", BaseURL: server.URL + "/v1", Model: "gpt-test", Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "openai", b.Name())

	resp, err := b.Generate(context.Background(), gateway.Request{Task: gateway.TaskSearch, Prompt: "Lemon", Grounded: true})
	require.NoError(t, err)

	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-test", gotBody.Model)
	assert.Equal(t, `[{"title":"Lemon","artist":"米津玄師"}]`, resp.Text)
	assert.Empty(t, resp.Sources)
}

func TestGenerateNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id": "chatcmpl-2", "choices": []}`)
	}))
	defer server.Close()

	b, err := New(Config{APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := b.Generate(context.Background(), gateway.Request{Task: gateway.TaskAnalyze, Prompt: "x"})
	require.NoError(t, err)
	assert.Empty(t, resp.Text)
}

func TestGenerateAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error": {"message": "boom", "type": "server_error"}}`)
	}))
	defer server.Close()

	b, err := New(Config{APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = b.Generate(context.Background(), gateway.Request{Task: gateway.TaskRefine, Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
