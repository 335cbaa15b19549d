// internal/llm/providers/ollama/ollama.go
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/Corphon/HealthScriptMCP/internal/llm"
)

const defaultBaseURL = "http://localhost:11434"

func init() {
	llm.Register("ollama", func() llm.Provider {
		return &Provider{
			recommendedModels: []string{"qwen2.5:7b", "llama3.1:8b", "glm4:9b"},
		}
	})
}

// Provider 使用 Ollama 原生接口，本地部署无需密钥
type Provider struct {
	client            *api.Client
	defaultModel      string
	recommendedModels []string
}

func (p *Provider) Initialize(config map[string]string) error {
	baseURL := config["base_url"]
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	// api.NewClient 需要不带 /v1 的地址
	baseURL = strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/v1")

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("解析 Ollama 地址失败 %q: %w", baseURL, err)
	}
	p.client = api.NewClient(parsed, &http.Client{})

	p.defaultModel = config["model"]
	if p.defaultModel == "" {
		p.defaultModel = p.recommendedModels[0]
	}
	return nil
}

func (p *Provider) GetName() string {
	return "Ollama"
}

func (p *Provider) GetSupportedModels() []string {
	return p.recommendedModels
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]api.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}

	var final api.ChatResponse
	err := p.client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
		final = r
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return nil, llm.NewHTTPStatusError(statusErr.StatusCode, statusErr.ErrorMessage)
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, llm.NewNetworkError(err)
	}

	if final.Message.Content == "" {
		return nil, llm.NewMalformedResponseError(nil)
	}

	return &llm.ChatResponse{
		Text:         final.Message.Content,
		FinishReason: final.DoneReason,
		TokensUsed:   final.PromptEvalCount + final.EvalCount,
		ModelName:    final.Model,
		ProviderName: p.GetName(),
	}, nil
}
