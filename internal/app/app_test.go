package app

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/Corphon/HealthScriptMCP/internal/config"
	"github.com/Corphon/HealthScriptMCP/internal/di"
	"github.com/Corphon/HealthScriptMCP/internal/services"
)

// 测试前的设置工作
func setupTest(t *testing.T) *config.Config {
	t.Helper()
	instance = nil
	di.GetContainer().Clear()

	tempDir := t.TempDir()
	t.Cleanup(func() {
		if instance != nil {
			instance.cleanup()
		}
		instance = nil
		di.GetContainer().Clear()
	})

	return &config.Config{
		APIBaseURL:  "http://127.0.0.1:1/v1",
		Model:       "test-model",
		TimeoutMS:   1000,
		MaxRetries:  1,
		LLMProvider: "compatible",
		Port:        "0",
		DataDir:     filepath.Join(tempDir, "data"),
		LogDir:      filepath.Join(tempDir, "logs"),
		SessionTTL:  time.Hour,
		DebugMode:   true,
	}
}

// 模拟服务器
type mockServer struct {
	ShutdownCalled bool
}

func (m *mockServer) ListenAndServe() error {
	return nil
}

func (m *mockServer) Shutdown(ctx context.Context) error {
	m.ShutdownCalled = true
	return nil
}

func TestGetApp(t *testing.T) {
	instance = nil

	app1 := GetApp()
	if app1 == nil {
		t.Fatal("GetApp应该返回一个非nil的应用实例")
	}
	if app2 := GetApp(); app1 != app2 {
		t.Fatal("GetApp应该返回相同的实例")
	}
	if app1.stopChan == nil {
		t.Fatal("应用实例的stopChan应该被初始化")
	}
	instance = nil
}

func TestInitialize(t *testing.T) {
	base := setupTest(t)

	if err := Initialize(base); err != nil {
		t.Fatalf("初始化应用失败: %v", err)
	}

	app := GetApp()
	if app.config == nil || app.router == nil || app.server == nil {
		t.Fatal("初始化后配置、路由和服务器都应已设置")
	}

	if _, err := os.Stat(filepath.Join(base.DataDir, "config.json")); err != nil {
		t.Errorf("配置文件应该已被创建: %v", err)
	}
	if files, _ := os.ReadDir(base.LogDir); len(files) == 0 {
		t.Error("应该已创建日志文件")
	}

	container := di.GetContainer()
	for _, name := range []string{"llm", "session", "generation", "analyzer", "export", "progress", "websocket"} {
		if !container.Has(name) {
			t.Errorf("服务 %s 应该已被注册", name)
		}
	}
	if _, err := di.Resolve[*services.GenerationService](container, "generation"); err != nil {
		t.Errorf("生成服务类型不正确: %v", err)
	}
}

func TestInitializeRejectsBadPromptsFile(t *testing.T) {
	base := setupTest(t)
	base.PromptsFile = filepath.Join(t.TempDir(), "missing.yaml")

	if err := Initialize(base); err == nil {
		t.Fatal("提示词文件不存在时初始化应失败")
	}
}

func TestRun(t *testing.T) {
	setupTest(t)

	testApp := &App{
		config:   &config.AppConfig{Port: "8081"},
		stopChan: make(chan os.Signal, 1),
	}
	instance = testApp
	mockSrv := &mockServer{}
	testApp.server = mockSrv

	go func() {
		time.Sleep(100 * time.Millisecond)
		testApp.stopChan <- syscall.SIGTERM
	}()

	if err := Run(); err != nil {
		t.Fatalf("运行应用失败: %v", err)
	}
	if !mockSrv.ShutdownCalled {
		t.Error("应该调用了server.Shutdown")
	}
}

func TestRunWithoutInitialize(t *testing.T) {
	setupTest(t)
	instance = &App{stopChan: make(chan os.Signal, 1)}

	if err := Run(); err == nil {
		t.Fatal("未初始化时 Run 应返回错误")
	}
}
