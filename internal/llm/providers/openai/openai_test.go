package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/HealthScriptMCP/internal/llm"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) llm.Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := llm.GetProvider("openai", map[string]string{
		"api_key":  "sk-openai",
		"base_url": server.URL + "/v1",
		"model":    "gpt-4o-mini",
	})
	require.NoError(t, err)
	return p
}

func TestChatSuccess(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-openai", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"健康科普"},"finish_reason":"stop"}],"usage":{"total_tokens":12}}`))
	})

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Messages:    llm.SystemAndUser("s", "u"),
		Temperature: 0.7,
		MaxTokens:   100,
	})
	require.NoError(t, err)
	assert.Equal(t, "健康科普", resp.Text)
	assert.Equal(t, 12, resp.TokensUsed)
	assert.Equal(t, "OpenAI", resp.ProviderName)
}

func TestChatAPIErrorMapsToHTTP(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	})

	_, err := p.Chat(context.Background(), llm.ChatRequest{Messages: llm.SystemAndUser("s", "u")})
	var apiErr *llm.ApiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, llm.KindHTTP, apiErr.Kind)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "rate limited", apiErr.Message)
}

func TestChatEmptyChoicesIsMalformed(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","choices":[]}`))
	})

	_, err := p.Chat(context.Background(), llm.ChatRequest{Messages: llm.SystemAndUser("s", "u")})
	assert.True(t, errors.Is(err, llm.ErrMalformedResponse))
}

func TestInitializeRequiresKey(t *testing.T) {
	_, err := llm.GetProvider("openai", map[string]string{})
	assert.Error(t, err)
}
