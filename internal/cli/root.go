// internal/cli/root.go
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Corphon/HealthScriptMCP/internal/app"
	"github.com/Corphon/HealthScriptMCP/internal/config"
	apperrors "github.com/Corphon/HealthScriptMCP/internal/errors"
	"github.com/Corphon/HealthScriptMCP/internal/models"
	"github.com/Corphon/HealthScriptMCP/internal/services"
	"github.com/Corphon/HealthScriptMCP/internal/utils"
)

type rootOptions struct {
	debug bool
}

// NewRootCommand 构建 healthscript 命令树
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "healthscript",
		Short:         "健康科普短视频剧本生成工具",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "输出调试日志")

	root.AddCommand(newGenerateCommand(opts))
	root.AddCommand(newAnalyzeCommand(opts))
	return root
}

// Execute 命令行入口
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		return 1
	}
	return 0
}

// bootstrap 加载配置并创建服务；日志只写文件，避免干扰终端交互
func bootstrap(opts *rootOptions) (*config.Config, *app.Services, error) {
	base, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if opts.debug {
		base.DebugMode = true
	}
	if err := base.EnsureDirs(); err != nil {
		return nil, nil, err
	}

	level := "info"
	if base.DebugMode {
		level = "debug"
	}
	if _, err := utils.InitLogger(utils.LoggerOptions{
		Level:   level,
		LogDir:  base.LogDir,
		LogFile: "healthscript-cli.log",
	}); err != nil {
		return nil, nil, err
	}

	if err := config.InitConfig(base); err != nil {
		return nil, nil, err
	}

	logger := utils.GetLogger().Named("cli")
	events := services.PublisherFunc(func(e models.SessionEvent) {
		logger.Debug("会话事件", zap.String("type", string(e.Type)), zap.String("session_id", e.SessionID), zap.String("stage", string(e.Stage)))
	})

	svc, err := app.NewServices(base, events)
	if err != nil {
		return nil, nil, err
	}
	if !svc.LLM.IsReady() {
		svc.Close()
		_, state := svc.LLM.GetProviderStatus()
		return nil, nil, fmt.Errorf("%w（%s）", services.ErrLLMNotReady, state)
	}
	return base, svc, nil
}

func asAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
