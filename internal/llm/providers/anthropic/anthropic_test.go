package anthropic

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
	require.NoError(t, p.Initialize(map[string]string{"api_key": "ak-test", "model": "claude-test"}))
	return p
}

func TestChatSendsSystemSeparately(t *testing.T) {
	var captured map[string]interface{}
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("X-Api-Key"))
		assert.Equal(t, defaultAPIVersion, r.Header.Get("Anthropic-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Write([]byte(`{"model":"claude-test","stop_reason":"end_turn","content":[{"type":"text","text":"剧本"}],"usage":{"input_tokens":3,"output_tokens":4}}`))
	})

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Messages:    llm.SystemAndUser("系统", "用户"),
		Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "剧本", resp.Text)
	assert.Equal(t, 7, resp.TokensUsed)
	assert.Equal(t, "end_turn", resp.FinishReason)

	assert.Equal(t, "系统", captured["system"])
	assert.Equal(t, float64(defaultMaxTokens), captured["max_tokens"])
	messages := captured["messages"].([]interface{})
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].(map[string]interface{})["role"])
}

func TestChatErrors(t *testing.T) {
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	})
	_, err := p.Chat(context.Background(), llm.ChatRequest{})
	var apiErr *llm.ApiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 429, apiErr.Status)
	assert.Equal(t, "slow down", apiErr.Message)

	p = newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[{"type":"tool_use"}]}`))
	})
	_, err = p.Chat(context.Background(), llm.ChatRequest{})
	assert.True(t, errors.Is(err, llm.ErrMalformedResponse))
}

func TestRegisteredRequiresKey(t *testing.T) {
	assert.Contains(t, llm.ListProviders(), "anthropic")

	_, err := llm.GetProvider("anthropic", map[string]string{})
	assert.Error(t, err)

	p, err := llm.GetProvider("anthropic", map[string]string{"api_key": "k"})
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku-latest", p.(*Provider).defaultModel)
}
