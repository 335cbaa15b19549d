// internal/llm/providers/compatible/compatible.go
package compatible

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Corphon/HealthScriptMCP/internal/llm"
)

// preset 兼容 OpenAI 协议的服务端点
type preset struct {
	displayName string
	baseURL     string
	models      []string
}

var presets = map[string]preset{
	"compatible": {
		displayName: "OpenAI Compatible",
		baseURL:     "https://api.openai.com/v1",
		models:      []string{"gpt-4o-mini", "gpt-4o"},
	},
	"openrouter": {
		displayName: "OpenRouter",
		baseURL:     "https://openrouter.ai/api/v1",
		models:      []string{"qwen/qwen3-235b-a22b:free", "deepseek/deepseek-chat-v3-0324:free", "google/gemma-3-27b-it:free"},
	},
	"qwen": {
		displayName: "Qwen",
		baseURL:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
		models:      []string{"qwen-plus", "qwen-max", "qwen-turbo"},
	},
	"glm": {
		displayName: "GLM",
		baseURL:     "https://open.bigmodel.cn/api/paas/v4",
		models:      []string{"glm-4-plus", "glm-4.5-air", "glm-4.5"},
	},
	"grok": {
		displayName: "Grok",
		baseURL:     "https://api.x.ai/v1",
		models:      []string{"grok-3", "grok-3-mini"},
	},
	"githubmodels": {
		displayName: "GitHub Models",
		baseURL:     "https://models.inference.ai.azure.com",
		models:      []string{"gpt-4o", "gpt-4o-mini", "Phi-4"},
	},
	"deepseek": {
		displayName: "DeepSeek",
		baseURL:     "https://api.deepseek.com/v1",
		models:      []string{"deepseek-chat", "deepseek-reasoner"},
	},
}

func init() {
	for name, p := range presets {
		p := p
		llm.Register(name, func() llm.Provider {
			return &Provider{
				name:              p.displayName,
				baseURL:           p.baseURL,
				recommendedModels: p.models,
			}
		})
	}
}

// Provider 直接以 HTTP 调用 {base}/chat/completions
type Provider struct {
	name              string
	apiKey            string
	baseURL           string
	defaultModel      string
	client            *http.Client
	recommendedModels []string
}

// New 创建未注册的实例，便于指向自定义端点
func New(baseURL string, client *http.Client) *Provider {
	return &Provider{name: "OpenAI Compatible", baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := config["api_key"]
	if apiKey == "" {
		return errors.New(p.name + " API密钥未提供")
	}
	p.apiKey = apiKey

	if baseURL := config["base_url"]; baseURL != "" {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
	if p.baseURL == "" {
		return errors.New("接口地址未提供")
	}

	p.defaultModel = config["model"]
	if p.defaultModel == "" {
		p.defaultModel = config["default_model"]
	}
	if p.defaultModel == "" && len(p.recommendedModels) > 0 {
		p.defaultModel = p.recommendedModels[0]
	}

	if p.client == nil {
		// 超时由调用方的 context 控制
		p.client = &http.Client{}
	}
	return nil
}

func (p *Provider) GetName() string {
	return p.name
}

func (p *Provider) GetSupportedModels() []string {
	return p.recommendedModels
}

type chatRequestBody struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type chatResponseBody struct {
	Model   string `json:"model"`
	Choices []struct {
		Message *struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	jsonData, err := json.Marshal(chatRequestBody{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      false,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.NewNetworkError(err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, llm.NewNetworkError(err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, llm.NewHTTPError(httpResp.StatusCode, body)
	}

	var response chatResponseBody
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, llm.NewMalformedResponseError(err)
	}
	if len(response.Choices) == 0 || response.Choices[0].Message == nil || response.Choices[0].Message.Content == "" {
		return nil, llm.NewMalformedResponseError(nil)
	}

	return &llm.ChatResponse{
		Text:         response.Choices[0].Message.Content,
		FinishReason: response.Choices[0].FinishReason,
		TokensUsed:   response.Usage.TotalTokens,
		ModelName:    response.Model,
		ProviderName: p.GetName(),
	}, nil
}
