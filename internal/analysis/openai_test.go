package analysis

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "lhtl/internal/errors"
)

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	return client
}

func TestOpenAIClientComplete(t *testing.T) {
	var body map[string]any
	client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4.1",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": " 做得好 "}}]
		}`))
	})

	text, err := client.Complete(context.Background(), ChatRequest{
		Model:     "gpt-4.1",
		System:    "system",
		Prompt:    "prompt",
		ImageURLs: []string{"data:image/png;base64,AAAA", "data:image/gif;base64,BBBB"},
		MaxTokens: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "做得好", text)

	assert.Equal(t, "gpt-4.1", body["model"])
	assert.EqualValues(t, 1000, body["max_tokens"])
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]any)
	assert.Equal(t, "user", user["role"])
	parts := user["content"].([]any)
	require.Len(t, parts, 3)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	image := parts[1].(map[string]any)
	assert.Equal(t, "image_url", image["type"])
	assert.Equal(t, "data:image/png;base64,AAAA", image["image_url"].(map[string]any)["url"])
}

func TestOpenAIClientCompleteStatusError(t *testing.T) {
	client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
	})

	_, err := client.Complete(context.Background(), ChatRequest{Model: "gpt-4.1", Prompt: "p"})
	var upstream *apperrors.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode)
	assert.True(t, apperrors.IsTransient(err))
}

func TestOpenAIClientSynthesize(t *testing.T) {
	payload := make([]byte, 512)
	for i := range payload {
		payload[i] = byte(i)
	}
	var body map[string]any
	client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(payload)
	})

	audio, err := client.Synthesize(context.Background(), SpeechRequest{Model: "tts-1", Voice: "alloy", Text: "你好"})
	require.NoError(t, err)
	assert.Equal(t, payload, audio.Data)
	assert.Equal(t, "audio/mpeg", audio.ContentType)
	assert.Equal(t, "tts-1", body["model"])
	assert.Equal(t, "alloy", body["voice"])
	assert.Equal(t, "mp3", body["response_format"])
	assert.Equal(t, "你好", body["input"])
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{APIKey: "  "})
	assert.Equal(t, apperrors.KindUnavailable, apperrors.KindOf(err))
}
