// internal/llm/providers/anthropic/anthropic.go
package anthropic

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

const (
	defaultBaseURL    = "https://api.anthropic.com"
	defaultAPIVersion = "2023-06-01"
	defaultMaxTokens  = 2000
)

func init() {
	llm.Register("anthropic", func() llm.Provider {
		return &Provider{
			recommendedModels: []string{
				"claude-3-5-haiku-latest",
				"claude-3-5-sonnet-latest",
				"claude-3-7-sonnet-latest",
			},
			baseURL:    defaultBaseURL,
			apiVersion: defaultAPIVersion,
		}
	})
}

// Provider 调用 Messages API，系统提示词单独传递
type Provider struct {
	apiKey            string
	baseURL           string
	apiVersion        string
	client            *http.Client
	defaultModel      string
	recommendedModels []string
}

// New 创建未注册的实例，测试中指向本地服务
func New(baseURL string, client *http.Client) *Provider {
	return &Provider{baseURL: strings.TrimRight(baseURL, "/"), apiVersion: defaultAPIVersion, client: client}
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := config["api_key"]
	if apiKey == "" {
		return errors.New("anthropic api密钥未提供")
	}
	p.apiKey = apiKey

	p.defaultModel = config["model"]
	if p.defaultModel == "" {
		p.defaultModel = config["default_model"]
	}
	if p.defaultModel == "" && len(p.recommendedModels) > 0 {
		p.defaultModel = p.recommendedModels[0]
	}

	// base_url 默认指向 OpenAI，对 anthropic 只接受显式的 anthropic 地址
	if baseURL := config["anthropic_base_url"]; baseURL != "" {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
	if apiVersion := config["api_version"]; apiVersion != "" {
		p.apiVersion = apiVersion
	}
	if p.client == nil {
		p.client = &http.Client{}
	}
	return nil
}

func (p *Provider) GetName() string {
	return "Anthropic Claude"
}

func (p *Provider) GetSupportedModels() []string {
	return p.recommendedModels
}

type messagesRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []llm.Message `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
}

type messagesResponse struct {
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body := messagesRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	var system []string
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		body.Messages = append(body.Messages, m)
	}
	body.System = strings.Join(system, "\n\n")

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", p.apiKey)
	httpReq.Header.Set("Anthropic-Version", p.apiVersion)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.NewNetworkError(err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, llm.NewNetworkError(err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, llm.NewHTTPError(httpResp.StatusCode, data)
	}

	var response messagesResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, llm.NewMalformedResponseError(err)
	}

	var text string
	for _, content := range response.Content {
		if content.Type == "text" && content.Text != "" {
			text = content.Text
			break
		}
	}
	if text == "" {
		return nil, llm.NewMalformedResponseError(nil)
	}

	return &llm.ChatResponse{
		Text:         text,
		FinishReason: response.StopReason,
		TokensUsed:   response.Usage.InputTokens + response.Usage.OutputTokens,
		ModelName:    model,
		ProviderName: p.GetName(),
	}, nil
}
