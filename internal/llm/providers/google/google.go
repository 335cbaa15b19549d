// internal/llm/providers/google/google.go
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Corphon/HealthScriptMCP/internal/llm"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

func init() {
	llm.Register("google", func() llm.Provider {
		return &Provider{
			recommendedModels: []string{
				"gemini-2.0-flash",
				"gemini-2.5-flash",
				"gemini-2.5-pro",
			},
			baseURL: defaultBaseURL,
		}
	})
}

// Provider 调用 generateContent 接口
type Provider struct {
	apiKey            string
	baseURL           string
	client            *http.Client
	defaultModel      string
	recommendedModels []string
}

// New 创建未注册的实例，测试中指向本地服务
func New(baseURL string, client *http.Client) *Provider {
	return &Provider{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := config["api_key"]
	if apiKey == "" {
		return errors.New("google_api密钥未提供")
	}
	p.apiKey = apiKey

	p.defaultModel = config["model"]
	if p.defaultModel == "" {
		p.defaultModel = config["default_model"]
	}
	if p.defaultModel == "" && len(p.recommendedModels) > 0 {
		p.defaultModel = p.recommendedModels[0]
	}

	if baseURL := config["google_base_url"]; baseURL != "" {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
	if p.client == nil {
		p.client = &http.Client{}
	}
	return nil
}

func (p *Provider) GetName() string {
	return "Google Gemini"
}

func (p *Provider) GetSupportedModels() []string {
	return p.recommendedModels
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
	Contents          []content `json:"contents"`
	GenerationConfig  struct {
		Temperature     float32 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	var body generateRequest
	body.GenerationConfig.Temperature = req.Temperature
	body.GenerationConfig.MaxOutputTokens = req.MaxTokens
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			if body.SystemInstruction == nil {
				body.SystemInstruction = &content{}
			}
			body.SystemInstruction.Parts = append(body.SystemInstruction.Parts, part{Text: m.Content})
		case llm.RoleAssistant:
			body.Contents = append(body.Contents, content{Role: "model", Parts: []part{{Text: m.Content}}})
		default:
			body.Contents = append(body.Contents, content{Role: "user", Parts: []part{{Text: m.Content}}})
		}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	apiURL := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, url.PathEscape(model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", p.apiKey)

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

	var response generateResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, llm.NewMalformedResponseError(err)
	}
	if len(response.Candidates) == 0 {
		return nil, llm.NewMalformedResponseError(nil)
	}

	var text strings.Builder
	for _, p := range response.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	if text.Len() == 0 {
		return nil, llm.NewMalformedResponseError(nil)
	}

	return &llm.ChatResponse{
		Text:         text.String(),
		FinishReason: response.Candidates[0].FinishReason,
		TokensUsed:   response.UsageMetadata.TotalTokenCount,
		ModelName:    model,
		ProviderName: p.GetName(),
	}, nil
}
