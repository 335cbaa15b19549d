// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Corphon/HealthScriptMCP/internal/utils"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
	configSecret  string
)

// Config 从环境变量加载的启动配置
type Config struct {
	// 模型接口
	APIBaseURL   string  `envconfig:"API_BASE_URL" default:"https://api.openai.com/v1"`
	APIKey       string  `envconfig:"API_KEY"`
	Model        string  `envconfig:"MODEL" default:"gpt-4o-mini"`
	TimeoutMS    int     `envconfig:"TIMEOUT" default:"30000"`
	MaxRetries   int     `envconfig:"MAX_RETRIES" default:"3"`
	LLMProvider  string  `envconfig:"LLM_PROVIDER" default:"compatible"`
	LLMRateLimit float64 `envconfig:"LLM_RATE_LIMIT" default:"0"`
	LLMRateBurst int     `envconfig:"LLM_RATE_BURST" default:"1"`

	// 服务
	Port         string        `envconfig:"PORT" default:"8080"`
	DataDir      string        `envconfig:"DATA_DIR" default:"data"`
	LogDir       string        `envconfig:"LOG_DIR" default:"logs"`
	DebugMode    bool          `envconfig:"DEBUG_MODE" default:"false"`
	PromptsFile  string        `envconfig:"PROMPTS_FILE"`
	SessionTTL   time.Duration `envconfig:"SESSION_TTL" default:"2h"`
	ConfigSecret string        `envconfig:"CONFIG_SECRET"`
	APIRateLimit float64       `envconfig:"API_RATE_LIMIT" default:"10"`
	APIRateBurst int           `envconfig:"API_RATE_BURST" default:"20"`
	CORSOrigins  []string      `envconfig:"CORS_ALLOWED_ORIGINS"`
}

// Load 从 .env 与环境变量加载配置
func Load() (*Config, error) {
	// .env 文件可选
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置的取值范围
func (c *Config) Validate() error {
	if c.TimeoutMS <= 0 {
		return fmt.Errorf("TIMEOUT 必须为正数，当前为 %d", c.TimeoutMS)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("MAX_RETRIES 必须为正数，当前为 %d", c.MaxRetries)
	}
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("API_BASE_URL 不能为空")
	}
	if c.LLMRateLimit < 0 {
		return fmt.Errorf("LLM_RATE_LIMIT 不能为负数")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL 必须为正数")
	}
	return nil
}

// Timeout 单次请求的超时时间
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// LLMSettings 供应商初始化参数
func (c *Config) LLMSettings() map[string]string {
	return map[string]string{
		"api_key":  c.APIKey,
		"base_url": c.APIBaseURL,
		"model":    c.Model,
	}
}

// EnsureDirs 创建数据与日志目录
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败 %s: %w", dir, err)
		}
	}
	return nil
}

// AppConfig 运行期可修改并持久化的配置
type AppConfig struct {
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// LLM相关配置
	LLMProvider string            `json:"llm_provider"`
	LLMConfig   map[string]string `json:"llm_config"`

	// 通过 UpdateLLMConfig 修改过时为 true，此时保存的 LLM 设置优先于环境变量
	LLMOverride bool `json:"llm_override"`
}

func (a *AppConfig) clone() *AppConfig {
	cp := *a
	cp.LLMConfig = make(map[string]string, len(a.LLMConfig))
	for k, v := range a.LLMConfig {
		cp.LLMConfig[k] = v
	}
	return &cp
}

// InitConfig 初始化配置管理器；只有经 UpdateLLMConfig 保存的 LLM 设置会覆盖环境变量
func InitConfig(base *Config) error {
	if base == nil {
		return fmt.Errorf("基础配置为空")
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	configFile = filepath.Join(base.DataDir, "config.json")
	configSecret = base.ConfigSecret

	currentConfig = &AppConfig{
		Port:        base.Port,
		DataDir:     base.DataDir,
		LogDir:      base.LogDir,
		DebugMode:   base.DebugMode,
		LLMProvider: base.LLMProvider,
		LLMConfig:   base.LLMSettings(),
	}

	if data, err := os.ReadFile(configFile); err == nil {
		var saved AppConfig
		if err := json.Unmarshal(data, &saved); err != nil {
			utils.GetLogger().Warn("忽略无法解析的配置文件")
		} else if saved.LLMOverride && saved.LLMProvider != "" {
			currentConfig.LLMOverride = true
			currentConfig.LLMProvider = saved.LLMProvider
			if saved.LLMConfig != nil {
				key, err := utils.DecryptSecret(saved.LLMConfig["api_key"], configSecret)
				if err != nil {
					return fmt.Errorf("解密已保存的 API 密钥失败: %w", err)
				}
				// 文件中没有密钥时沿用环境变量
				if key == "" {
					key = base.APIKey
				}
				saved.LLMConfig["api_key"] = key
				currentConfig.LLMConfig = saved.LLMConfig
			}
		}
	}

	return saveLocked()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		return &AppConfig{LLMProvider: "compatible", LLMConfig: map[string]string{}}
	}
	return currentConfig.clone()
}

// UpdateLLMConfig 更新LLM配置
func UpdateLLMConfig(provider string, settings map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.LLMOverride = true
	currentConfig.LLMProvider = provider
	currentConfig.LLMConfig = make(map[string]string, len(settings))
	for k, v := range settings {
		currentConfig.LLMConfig[k] = v
	}

	return saveLocked()
}

func saveLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	// 密钥落盘前加密
	onDisk := currentConfig.clone()
	if key := onDisk.LLMConfig["api_key"]; key != "" {
		enc, err := utils.EncryptSecret(key, configSecret)
		if err != nil {
			return fmt.Errorf("加密 API 密钥失败: %w", err)
		}
		onDisk.LLMConfig["api_key"] = enc
	}

	data, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0600)
}
