// internal/llm/client.go
package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Corphon/HealthScriptMCP/internal/utils"
)

const (
	DefaultTemperature float32 = 0.7
	DefaultMaxTokens           = 2000
	DefaultTimeout             = 30 * time.Second
	DefaultMaxRetries          = 3

	baseBackoff = time.Second
	maxBackoff  = 15 * time.Second
)

// Completer 把一组消息换成一段回复文本
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// ClientOptions 客户端参数，零值取默认
type ClientOptions struct {
	Model       string
	Timeout     time.Duration
	MaxRetries  int // 总尝试次数
	Temperature float32
	MaxTokens   int

	Limiter *rate.Limiter
	Logger  *zap.Logger

	// Sleep 退避等待，测试中可替换
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client 带超时与指数退避重试的对话客户端
// 除配置外不持有任何可变状态，可并发使用
type Client struct {
	provider     Provider
	providerName string
	opts         ClientOptions
}

// NewClient 包装一个已初始化的提供者
func NewClient(provider Provider, opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Logger == nil {
		opts.Logger = utils.GetLogger()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	return &Client{
		provider:     provider,
		providerName: provider.GetName(),
		opts:         opts,
	}
}

// ProviderName 底层提供者名称
func (c *Client) ProviderName() string {
	return c.providerName
}

// Model 请求使用的模型
func (c *Client) Model() string {
	return c.opts.Model
}

// BackoffDelay 第 n 次失败后的等待时间：min(1s·2^(n-1), 15s)
func BackoffDelay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	d := baseBackoff
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// Complete 发送消息并返回去除首尾空白的回复
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	maxAttempts := c.opts.MaxRetries
	log := c.opts.Logger.With(zap.String("provider", c.providerName), zap.String("model", c.opts.Model))

	var lastErr *ApiError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if c.opts.Limiter != nil {
			if err := c.opts.Limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		started := time.Now()
		text, err := c.attempt(ctx, messages)
		if err == nil {
			utils.RecordLLMAttempt(c.providerName, "success", time.Since(started))
			utils.RecordLLMCall(c.providerName, "success")
			if attempt > 1 {
				log.Info("模型调用重试成功", zap.Int("attempt", attempt))
			}
			return text, nil
		}

		// 调用方取消时立即停止
		if ctxErr := ctx.Err(); ctxErr != nil {
			utils.RecordLLMCall(c.providerName, "canceled")
			return "", ctxErr
		}

		var apiErr *ApiError
		if !errors.As(err, &apiErr) {
			apiErr = NewNetworkError(err)
		}
		lastErr = apiErr
		utils.RecordLLMAttempt(c.providerName, string(apiErr.Kind), time.Since(started))

		if attempt == maxAttempts {
			break
		}

		wait := BackoffDelay(attempt)
		log.Warn("模型调用失败，准备重试",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("wait", wait),
			zap.Error(apiErr))

		if err := c.opts.Sleep(ctx, wait); err != nil {
			utils.RecordLLMCall(c.providerName, "canceled")
			return "", err
		}
	}

	utils.RecordLLMCall(c.providerName, "exhausted")
	log.Error("模型调用重试耗尽", zap.Int("attempts", maxAttempts), zap.Error(lastErr))

	return "", &ApiError{
		Kind:     KindExhausted,
		Attempts: maxAttempts,
		Message:  lastErr.Error(),
		Err:      lastErr,
	}
}

func (c *Client) attempt(ctx context.Context, messages []Message) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	resp, err := c.provider.Chat(attemptCtx, ChatRequest{
		Model:       c.opts.Model,
		Messages:    messages,
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	})
	if err != nil {
		if ctx.Err() == nil && (errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded)) {
			return "", NewTimeoutError(c.opts.Timeout, err)
		}
		return "", err
	}

	if resp == nil {
		return "", NewMalformedResponseError(nil)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", NewMalformedResponseError(nil)
	}
	return text, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SystemAndUser 组装常用的两条消息
func SystemAndUser(system, user string) []Message {
	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}
}
