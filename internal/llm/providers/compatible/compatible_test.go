package compatible

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Corphon/HealthScriptMCP/internal/llm"
)

func newProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p := New(server.URL, server.Client())
	require.NoError(t, p.Initialize(map[string]string{"api_key": "sk-test", "model": "demo-model"}))
	return p
}

func TestChatWireShape(t *testing.T) {
	var captured map[string]interface{}
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"demo-model","choices":[{"message":{"role":"assistant","content":"你好"},"finish_reason":"stop"}]}`))
	})

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Messages:    llm.SystemAndUser("系统", "用户"),
		Temperature: 0.7,
		MaxTokens:   2000,
	})
	require.NoError(t, err)
	assert.Equal(t, "你好", resp.Text)

	assert.Equal(t, "demo-model", captured["model"])
	assert.Equal(t, false, captured["stream"])
	assert.InDelta(t, 0.7, captured["temperature"], 0.0001)
	assert.Equal(t, float64(2000), captured["max_tokens"])
	messages := captured["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
}

func TestChatHTTPError(t *testing.T) {
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid key"}}`))
	})

	_, err := p.Chat(context.Background(), llm.ChatRequest{})
	var apiErr *llm.ApiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, llm.KindHTTP, apiErr.Kind)
	assert.Equal(t, 401, apiErr.Status)
	assert.Equal(t, "invalid key", apiErr.Message)
}

func TestChatMalformed(t *testing.T) {
	bodies := []string{
		`{"choices":[]}`,
		`{"choices":[{"message":{"content":""}}]}`,
		`{"choices":[{}]}`,
		`not json`,
	}
	for _, body := range bodies {
		body := body
		p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})
		_, err := p.Chat(context.Background(), llm.ChatRequest{})
		assert.True(t, errors.Is(err, llm.ErrMalformedResponse), "body=%s", body)
	}
}

func TestClientTimeoutAgainstSlowServer(t *testing.T) {
	release := make(chan struct{})
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	client := llm.NewClient(p, llm.ClientOptions{
		Timeout:    50 * time.Millisecond,
		MaxRetries: 1,
		Logger:     zap.NewNop(),
	})
	_, err := client.Complete(context.Background(), llm.SystemAndUser("s", "u"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrTimeout))
}

func TestPresetsRegistered(t *testing.T) {
	for _, name := range []string{"compatible", "openrouter", "qwen", "glm", "grok", "githubmodels", "deepseek"} {
		assert.Contains(t, llm.ListProviders(), name)
	}

	p, err := llm.GetProvider("deepseek", map[string]string{"api_key": "k"})
	require.NoError(t, err)
	assert.Equal(t, "DeepSeek", p.GetName())
	assert.Equal(t, "https://api.deepseek.com/v1", p.(*Provider).baseURL)

	_, err = llm.GetProvider("qwen", map[string]string{})
	assert.Error(t, err, "缺少密钥时应初始化失败")
}
