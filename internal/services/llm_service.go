// internal/services/llm_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Corphon/HealthScriptMCP/internal/config"
	"github.com/Corphon/HealthScriptMCP/internal/llm"
	"github.com/Corphon/HealthScriptMCP/internal/utils"
)

// ErrLLMNotReady 提供者尚未配置或初始化失败
var ErrLLMNotReady = errors.New("模型服务未就绪，请先配置 API 密钥")

// LLMStatus 模型服务状态
type LLMStatus struct {
	Ready     bool     `json:"ready"`
	State     string   `json:"state"`
	Provider  string   `json:"provider"`
	Model     string   `json:"model"`
	Providers []string `json:"providers"`
}

// LLMService 持有当前提供者的重试客户端，运行期可切换提供者
type LLMService struct {
	providerMutex sync.RWMutex
	client        *llm.Client
	providerName  string
	isReady       bool
	readyState    string

	// 切换提供者时沿用的超时、重试、限流参数
	baseOptions llm.ClientOptions
	logger      *zap.Logger
}

// NewLLMService 按当前配置初始化；失败时返回未就绪的服务而不是错误
func NewLLMService(opts llm.ClientOptions) *LLMService {
	s := &LLMService{
		readyState:  "Uninitialized",
		baseOptions: opts,
		logger:      utils.GetLogger().Named("llm"),
	}

	cfg := config.GetCurrentConfig()
	if cfg.LLMProvider == "" {
		s.readyState = "LLM provider not configured"
		return s
	}
	if err := s.install(cfg.LLMProvider, cfg.LLMConfig); err != nil {
		s.logger.Warn("模型提供者初始化失败", zap.String("provider", cfg.LLMProvider), zap.Error(err))
	}
	return s
}

// NewLLMServiceWithProvider 直接使用给定提供者
func NewLLMServiceWithProvider(provider llm.Provider, opts llm.ClientOptions) *LLMService {
	return &LLMService{
		client:       llm.NewClient(provider, opts),
		providerName: provider.GetName(),
		isReady:      true,
		readyState:   "Ready",
		baseOptions:  opts,
		logger:       utils.GetLogger().Named("llm"),
	}
}

// Complete 实现 llm.Completer
func (s *LLMService) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	s.providerMutex.RLock()
	client := s.client
	ready := s.isReady
	s.providerMutex.RUnlock()

	if !ready || client == nil {
		return "", ErrLLMNotReady
	}
	return client.Complete(ctx, messages)
}

// IsReady 返回服务是否已就绪
func (s *LLMService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.client != nil && s.isReady
}

// GetProviderStatus 返回服务是否就绪以及可读描述
func (s *LLMService) GetProviderStatus() (bool, string) {
	if s == nil {
		return false, "LLM服务实例未初始化"
	}
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.client != nil && s.isReady, s.readyState
}

// Status 当前提供者、模型和可选提供者列表
func (s *LLMService) Status() LLMStatus {
	ready, state := s.GetProviderStatus()

	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	status := LLMStatus{
		Ready:     ready,
		State:     state,
		Provider:  s.providerName,
		Providers: llm.ListProviders(),
	}
	if s.client != nil {
		status.Model = s.client.Model()
	}
	return status
}

// GetProviderName 当前提供者名称
func (s *LLMService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.providerName
}

// UpdateProvider 切换提供者并持久化配置；失败时保留原提供者
func (s *LLMService) UpdateProvider(providerName string, settings map[string]string) error {
	providerName = strings.TrimSpace(providerName)
	if providerName == "" {
		return fmt.Errorf("提供者名称不能为空")
	}

	// 未提供密钥时沿用当前密钥
	cfg := config.GetCurrentConfig()
	merged := make(map[string]string, len(settings)+1)
	for k, v := range settings {
		merged[k] = strings.TrimSpace(v)
	}
	if merged["api_key"] == "" && cfg.LLMConfig["api_key"] != "" {
		merged["api_key"] = cfg.LLMConfig["api_key"]
	}

	provider, err := llm.GetProvider(providerName, merged)
	if err != nil {
		return fmt.Errorf("初始化提供者失败: %w", err)
	}

	if err := config.UpdateLLMConfig(providerName, merged); err != nil {
		return fmt.Errorf("保存模型配置失败: %w", err)
	}

	s.swap(providerName, provider, merged)
	s.logger.Info("模型提供者已切换",
		zap.String("provider", providerName),
		zap.String("api_key", utils.MaskSecret(merged["api_key"])))
	return nil
}

func (s *LLMService) install(providerName string, settings map[string]string) error {
	provider, err := llm.GetProvider(providerName, settings)
	if err != nil {
		s.providerMutex.Lock()
		s.providerName = providerName
		s.isReady = false
		s.readyState = fmt.Sprintf("Initialization failed: %v", err)
		s.providerMutex.Unlock()
		return err
	}
	s.swap(providerName, provider, settings)
	return nil
}

func (s *LLMService) swap(providerName string, provider llm.Provider, settings map[string]string) {
	opts := s.baseOptions
	opts.Model = extractDefaultModel(settings)
	if opts.Model == "" {
		if supported := provider.GetSupportedModels(); len(supported) > 0 {
			opts.Model = supported[0]
		}
	}

	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	s.client = llm.NewClient(provider, opts)
	s.providerName = providerName
	s.isReady = true
	s.readyState = "Ready"
}

func extractDefaultModel(cfg map[string]string) string {
	if cfg == nil {
		return ""
	}
	if model := strings.TrimSpace(cfg["default_model"]); model != "" {
		return model
	}
	return strings.TrimSpace(cfg["model"])
}
