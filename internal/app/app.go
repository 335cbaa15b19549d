// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Corphon/HealthScriptMCP/internal/api"
	"github.com/Corphon/HealthScriptMCP/internal/config"
	"github.com/Corphon/HealthScriptMCP/internal/di"
	"github.com/Corphon/HealthScriptMCP/internal/llm"
	"github.com/Corphon/HealthScriptMCP/internal/prompts"
	"github.com/Corphon/HealthScriptMCP/internal/services"
	"github.com/Corphon/HealthScriptMCP/internal/storage"
	"github.com/Corphon/HealthScriptMCP/internal/utils"

	// 各提供者在 init 中注册
	_ "github.com/Corphon/HealthScriptMCP/internal/llm/providers/anthropic"
	_ "github.com/Corphon/HealthScriptMCP/internal/llm/providers/compatible"
	_ "github.com/Corphon/HealthScriptMCP/internal/llm/providers/google"
	_ "github.com/Corphon/HealthScriptMCP/internal/llm/providers/ollama"
	_ "github.com/Corphon/HealthScriptMCP/internal/llm/providers/openai"
)

const (
	shutdownTimeout     = 30 * time.Second
	maintenanceInterval = 10 * time.Minute
	finishedTaskMaxAge  = time.Hour
)

// httpServer 便于测试替换
type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 服务进程
type App struct {
	base     *config.Config
	config   *config.AppConfig
	router   http.Handler
	server   httpServer
	services *Services
	ws       *api.WebSocketManager
	stopChan chan os.Signal
}

var (
	instance *App
	mu       sync.Mutex
)

// GetApp 获取应用单例
func GetApp() *App {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		instance = &App{stopChan: make(chan os.Signal, 1)}
	}
	return instance
}

// Services 服务端与命令行共用的服务集合
type Services struct {
	Prompts    *prompts.Set
	Storage    *storage.FileStorage
	LLM        *services.LLMService
	Sessions   *services.SessionService
	Locks      *services.LockManager
	Progress   *services.ProgressService
	Generation *services.GenerationService
	Analyzer   *services.AnalyzerService
	Export     *services.ExportService

	stop     chan struct{}
	stopOnce sync.Once
}

// NewServices 按启动配置创建全部服务；config.InitConfig 需已调用
func NewServices(base *config.Config, events services.EventPublisher) (*Services, error) {
	promptSet, err := prompts.Load(base.PromptsFile)
	if err != nil {
		return nil, err
	}

	fs, err := storage.NewFileStorage(base.DataDir)
	if err != nil {
		return nil, fmt.Errorf("初始化数据目录失败: %w", err)
	}

	opts := llm.ClientOptions{
		Timeout:    base.Timeout(),
		MaxRetries: base.MaxRetries,
	}
	if base.LLMRateLimit > 0 {
		opts.Limiter = rate.NewLimiter(rate.Limit(base.LLMRateLimit), base.LLMRateBurst)
	}
	llmService := services.NewLLMService(opts)

	locks := services.NewLockManager()
	sessions := services.NewSessionService(fs, locks, base.SessionTTL)
	progress := services.NewProgressService()

	svc := &Services{
		Prompts:    promptSet,
		Storage:    fs,
		LLM:        llmService,
		Sessions:   sessions,
		Locks:      locks,
		Progress:   progress,
		Generation: services.NewGenerationService(llmService, promptSet, sessions, locks, events),
		Analyzer:   services.NewAnalyzerService(llmService, promptSet, sessions, locks, progress, events),
		Export:     services.NewExportService(fs, services.DefaultExportDir),
		stop:       make(chan struct{}),
	}
	go svc.maintain()
	return svc, nil
}

// maintain 定期清理已结束的分析任务
func (s *Services) maintain() {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.Progress.CleanupCompletedTasks(finishedTaskMaxAge); n > 0 {
				utils.GetLogger().Debug("已清理结束的任务", zap.Int("count", n))
			}
		case <-s.stop:
			return
		}
	}
}

// Close 停止后台协程
func (s *Services) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.Locks.Stop()
	})
}

// Register 注册到依赖注入容器
func (s *Services) Register(container *di.Container) {
	container.Register("prompts", s.Prompts)
	container.Register("storage", s.Storage)
	container.Register("llm", s.LLM)
	container.Register("session", s.Sessions)
	container.Register("locks", s.Locks)
	container.Register("progress", s.Progress)
	container.Register("generation", s.Generation)
	container.Register("analyzer", s.Analyzer)
	container.Register("export", s.Export)
}

// initLogger 控制台加滚动文件日志
func initLogger(logDir string, debug bool) error {
	level := "info"
	if debug {
		level = "debug"
	}
	_, err := utils.InitLogger(utils.LoggerOptions{
		Level:   level,
		LogDir:  logDir,
		Console: true,
	})
	return err
}

// Initialize 加载配置、初始化日志与服务并配置路由
func Initialize(base *config.Config) error {
	a := GetApp()

	if err := base.EnsureDirs(); err != nil {
		return err
	}
	if err := initLogger(base.LogDir, base.DebugMode); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}
	if err := config.InitConfig(base); err != nil {
		return fmt.Errorf("初始化配置失败: %w", err)
	}

	if err := InitServices(base); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	router, err := api.SetupRouter(base)
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}

	a.base = base
	a.config = config.GetCurrentConfig()
	a.router = router
	a.server = &http.Server{
		Addr:              ":" + base.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// InitServices 按依赖顺序创建服务并注册到容器
func InitServices(base *config.Config) error {
	a := GetApp()
	container := di.GetContainer()

	ws := api.NewWebSocketManager()
	svc, err := NewServices(base, ws)
	if err != nil {
		ws.Stop()
		return err
	}

	svc.Register(container)
	container.Register("websocket", ws)

	a.services = svc
	a.ws = ws

	utils.GetLogger().Info("服务初始化完成",
		zap.Strings("services", container.GetNames()),
		zap.String("llm_provider", svc.LLM.GetProviderName()),
		zap.Bool("llm_ready", svc.LLM.IsReady()),
		zap.String("data_dir", filepath.Clean(base.DataDir)))
	return nil
}

// Run 启动 HTTP 服务，收到 SIGINT/SIGTERM 后优雅关闭
func Run() error {
	a := GetApp()
	if a.server == nil {
		return errors.New("应用未初始化")
	}
	logger := utils.GetLogger()

	signal.Notify(a.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(a.stopChan)

	serverErr := make(chan error, 1)
	go func() {
		if a.config != nil {
			logger.Info("服务器启动", zap.String("port", a.config.Port))
		}
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return fmt.Errorf("启动服务器失败: %w", err)
	case sig := <-a.stopChan:
		logger.Info("正在关闭服务器", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := a.server.Shutdown(ctx)
	a.cleanup()
	if err != nil {
		return fmt.Errorf("服务器强制关闭: %w", err)
	}
	logger.Info("服务器已关闭")
	return nil
}

// cleanup 停止后台协程并刷新日志
func (a *App) cleanup() {
	if a.ws != nil {
		a.ws.Stop()
	}
	if a.services != nil {
		a.services.Close()
	}
	_ = utils.GetLogger().Sync()
}
