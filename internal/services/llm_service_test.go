package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Corphon/HealthScriptMCP/internal/config"
	"github.com/Corphon/HealthScriptMCP/internal/llm"
)

type fixedProvider struct {
	reply string
}

func (p *fixedProvider) Initialize(map[string]string) error { return nil }
func (p *fixedProvider) GetName() string                    { return "fixed" }
func (p *fixedProvider) GetSupportedModels() []string       { return []string{"fixed-1"} }
func (p *fixedProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Text: p.reply, ModelName: req.Model}, nil
}

func init() {
	llm.Register("fixed-test", func() llm.Provider { return &fixedProvider{reply: "  好的  "} })
}

func TestLLMServiceWithProvider(t *testing.T) {
	s := NewLLMServiceWithProvider(&fixedProvider{reply: "回复"}, llm.ClientOptions{})

	text, err := s.Complete(context.Background(), llm.SystemAndUser("系统", "用户"))
	if err != nil {
		t.Fatalf("调用失败: %v", err)
	}
	if text != "回复" {
		t.Fatalf("回复不符: %q", text)
	}

	status := s.Status()
	if !status.Ready || status.Provider != "fixed" || status.Model != "fixed-1" {
		t.Fatalf("状态不符: %+v", status)
	}
}

func TestLLMServiceNotReady(t *testing.T) {
	s := &LLMService{readyState: "API key not configured"}

	if _, err := s.Complete(context.Background(), nil); !errors.Is(err, ErrLLMNotReady) {
		t.Fatalf("未就绪时应返回 ErrLLMNotReady，实际为 %v", err)
	}
	if ready, state := s.GetProviderStatus(); ready || state != "API key not configured" {
		t.Fatalf("状态不符: %v %s", ready, state)
	}
}

func TestLLMServiceUpdateProviderPersists(t *testing.T) {
	dir := t.TempDir()
	if err := config.InitConfig(&config.Config{
		DataDir:      dir,
		LLMProvider:  "compatible",
		APIKey:       "sk-env-key",
		APIBaseURL:   "https://api.openai.com/v1",
		ConfigSecret: "unit-test-secret",
	}); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}

	s := NewLLMService(llm.ClientOptions{})
	if err := s.UpdateProvider("fixed-test", map[string]string{"model": "fixed-2"}); err != nil {
		t.Fatalf("切换提供者失败: %v", err)
	}

	cfg := config.GetCurrentConfig()
	if cfg.LLMProvider != "fixed-test" {
		t.Fatalf("配置中的提供者应已更新，实际为 %s", cfg.LLMProvider)
	}
	if cfg.LLMConfig["api_key"] != "sk-env-key" {
		t.Fatal("未提供密钥时应沿用当前密钥")
	}

	text, err := s.Complete(context.Background(), llm.SystemAndUser("s", "u"))
	if err != nil || text != "好的" {
		t.Fatalf("切换后调用结果不符: %q %v", text, err)
	}
	if s.Status().Model != "fixed-2" {
		t.Fatalf("模型应为 fixed-2，实际为 %s", s.Status().Model)
	}

	if err := s.UpdateProvider("no-such-provider", nil); err == nil {
		t.Fatal("未知提供者应返回错误")
	}
	if s.GetProviderName() != "fixed-test" {
		t.Fatal("切换失败时应保留原提供者")
	}
}
