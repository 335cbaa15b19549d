package google

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

func newProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p := New(server.URL, server.Client())
	require.NoError(t, p.Initialize(map[string]string{"api_key": "g-test", "model": "gemini-test"}))
	return p
}

func TestChatWireShape(t *testing.T) {
	var captured generateRequest
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "g-test", r.Header.Get("X-Goog-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"第一"},{"text":"第二"}]},"finishReason":"STOP"}],"usageMetadata":{"totalTokenCount":12}}`))
	})

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "系统"},
			{Role: llm.RoleUser, Content: "问"},
			{Role: llm.RoleAssistant, Content: "答"},
		},
		Temperature: 0.5,
		MaxTokens:   100,
	})
	require.NoError(t, err)
	assert.Equal(t, "第一第二", resp.Text)
	assert.Equal(t, 12, resp.TokensUsed)

	require.NotNil(t, captured.SystemInstruction)
	assert.Equal(t, "系统", captured.SystemInstruction.Parts[0].Text)
	require.Len(t, captured.Contents, 2)
	assert.Equal(t, "user", captured.Contents[0].Role)
	assert.Equal(t, "model", captured.Contents[1].Role)
	assert.Equal(t, 100, captured.GenerationConfig.MaxOutputTokens)
}

func TestChatErrors(t *testing.T) {
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"API key not valid"}}`))
	})
	_, err := p.Chat(context.Background(), llm.ChatRequest{})
	var apiErr *llm.ApiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, llm.KindHTTP, apiErr.Kind)
	assert.Equal(t, "API key not valid", apiErr.Message)

	for _, body := range []string{`{"candidates":[]}`, `{"candidates":[{"content":{"parts":[]}}]}`, `<html>`} {
		body := body
		p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})
		_, err := p.Chat(context.Background(), llm.ChatRequest{})
		assert.True(t, errors.Is(err, llm.ErrMalformedResponse), "body=%s", body)
	}
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, llm.ListProviders(), "google")
	_, err := llm.GetProvider("google", map[string]string{})
	assert.Error(t, err)
}
