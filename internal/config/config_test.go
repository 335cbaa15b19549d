package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"API_BASE_URL", "API_KEY", "MODEL", "TIMEOUT", "MAX_RETRIES", "SESSION_TTL", "LLM_PROVIDER"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1", cfg.APIBaseURL)
	assert.Equal(t, 30000, cfg.TimeoutMS)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "compatible", cfg.LLMProvider)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("API_BASE_URL", "https://example.com/v1/")
	t.Setenv("TIMEOUT", "5000")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("SESSION_TTL", "30m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/v1", cfg.APIBaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout())
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
}

func TestValidate(t *testing.T) {
	valid := Config{APIBaseURL: "http://x", TimeoutMS: 1, MaxRetries: 1, SessionTTL: time.Minute}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.TimeoutMS = 0
	assert.Error(t, bad.Validate())

	bad = valid
	bad.MaxRetries = -1
	assert.Error(t, bad.Validate())

	bad = valid
	bad.APIBaseURL = "  "
	assert.Error(t, bad.Validate())
}

func TestPersistedLLMConfigEncryptsKey(t *testing.T) {
	dir := t.TempDir()
	base := &Config{
		APIBaseURL:   "https://api.example.com/v1",
		APIKey:       "env-key",
		Model:        "m1",
		LLMProvider:  "compatible",
		DataDir:      dir,
		ConfigSecret: "secret",
	}
	require.NoError(t, InitConfig(base))
	assert.Equal(t, "env-key", GetCurrentConfig().LLMConfig["api_key"])

	require.NoError(t, UpdateLLMConfig("openai", map[string]string{"api_key": "sk-live-9999", "model": "gpt-4o"}))

	raw, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "sk-live-9999"), "密钥不应以明文落盘")

	// 重新初始化时应恢复已保存的设置
	require.NoError(t, InitConfig(base))
	current := GetCurrentConfig()
	assert.True(t, current.LLMOverride)
	assert.Equal(t, "openai", current.LLMProvider)
	assert.Equal(t, "sk-live-9999", current.LLMConfig["api_key"])
	assert.Equal(t, "gpt-4o", current.LLMConfig["model"])

	// 返回的是副本
	current.LLMConfig["model"] = "changed"
	assert.Equal(t, "gpt-4o", GetCurrentConfig().LLMConfig["model"])
}

func TestEnvChangesApplyWithoutRuntimeOverride(t *testing.T) {
	dir := t.TempDir()
	base := &Config{
		APIBaseURL:  "https://api.example.com/v1",
		APIKey:      "env-key",
		Model:       "m1",
		LLMProvider: "compatible",
		DataDir:     dir,
	}
	require.NoError(t, InitConfig(base))
	assert.Equal(t, "m1", GetCurrentConfig().LLMConfig["model"])

	// 下次启动时环境变量已修改
	next := *base
	next.Model = "m2"
	next.APIBaseURL = "https://other.example.com/v1"
	require.NoError(t, InitConfig(&next))

	current := GetCurrentConfig()
	assert.False(t, current.LLMOverride)
	assert.Equal(t, "m2", current.LLMConfig["model"])
	assert.Equal(t, "https://other.example.com/v1", current.LLMConfig["base_url"])
}
