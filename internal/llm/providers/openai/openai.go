// internal/llm/providers/openai/openai.go
package openai

import (
	"context"
	"errors"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/Corphon/HealthScriptMCP/internal/llm"
)

func init() {
	llm.Register("openai", func() llm.Provider {
		return &Provider{
			recommendedModels: []string{
				goopenai.GPT4oMini,
				goopenai.GPT4o,
				"gpt-4.1-mini",
			},
		}
	})
}

// Provider 基于 go-openai SDK
type Provider struct {
	client            *goopenai.Client
	defaultModel      string
	recommendedModels []string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := config["api_key"]
	if apiKey == "" {
		return errors.New("OpenAI API密钥未提供")
	}

	clientConfig := goopenai.DefaultConfig(apiKey)
	if baseURL := config["base_url"]; baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	clientConfig.HTTPClient = &http.Client{}
	p.client = goopenai.NewClientWithConfig(clientConfig)

	p.defaultModel = config["model"]
	if p.defaultModel == "" {
		p.defaultModel = goopenai.GPT4oMini
	}
	return nil
}

func (p *Provider) GetName() string {
	return "OpenAI"
}

func (p *Provider) GetSupportedModels() []string {
	return p.recommendedModels
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := p.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      false,
	})
	if err != nil {
		return nil, translateError(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, llm.NewMalformedResponseError(nil)
	}

	return &llm.ChatResponse{
		Text:         resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		TokensUsed:   resp.Usage.TotalTokens,
		ModelName:    resp.Model,
		ProviderName: p.GetName(),
	}, nil
}

// translateError 把 SDK 错误映射为 llm.ApiError
func translateError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return llm.NewHTTPStatusError(apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return llm.NewHTTPStatusError(reqErr.HTTPStatusCode, "")
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return llm.NewNetworkError(err)
}
