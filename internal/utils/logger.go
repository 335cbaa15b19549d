// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerOptions controls logger initialization
type LoggerOptions struct {
	Level   string // debug, info, warn, error
	LogDir  string // empty disables file output
	LogFile string // defaults to healthscript.log
	Console bool   // also write human readable lines to stdout

	// rotation, see lumberjack.Logger
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	globalLogger *zap.Logger
	loggerMu     sync.RWMutex
)

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	loggerMu.RLock()
	l := globalLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()
	if globalLogger == nil {
		globalLogger, _ = zap.NewDevelopment()
		if globalLogger == nil {
			globalLogger = zap.NewNop()
		}
	}
	return globalLogger
}

// SetLogger replaces the global logger (tests use zap.NewNop or zaptest)
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	globalLogger = l
}

// InitLogger builds a logger with a console core and an optional rotating JSON file core
func InitLogger(opts LoggerOptions) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	lvl := strings.ToLower(strings.TrimSpace(opts.Level))
	if lvl == "" {
		lvl = "info"
	}
	if err := level.UnmarshalText([]byte(lvl)); err != nil {
		fmt.Fprintf(os.Stderr, "无效的日志级别 %q，使用 info: %v\n", opts.Level, err)
		level.SetLevel(zap.InfoLevel)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var cores []zapcore.Core
	if opts.Console || opts.LogDir == "" {
		consoleCfg := encoderCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg),
			zapcore.Lock(os.Stdout),
			level,
		))
	}

	if opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
		name := opts.LogFile
		if name == "" {
			name = "healthscript.log"
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(opts.LogDir, name),
			MaxSize:    orDefault(opts.MaxSizeMB, 20),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 14),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.AddSync(rotator),
			level,
		))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	SetLogger(logger)
	return logger, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
