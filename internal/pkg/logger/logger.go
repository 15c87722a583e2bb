package logger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	log  *zap.Logger
	once sync.Once
)

// InitLogger 初始化全局 zap logger
// outputPath: 日志文件路径，例如 "logs/app.log"
// errorPath: zap 内部错误输出，例如 "logs/error.log"
// level: debug, info, warn, error, dpanic, panic, fatal
func InitLogger(outputPath, errorPath string, level string) {
	once.Do(func() {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(level)); err != nil {
			l = zap.InfoLevel
			fmt.Fprintf(os.Stderr, "Failed to parse log level '%s', defaulting to info: %v\n", level, err)
		}

		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(l)
		cfg.OutputPaths = uniquePaths(outputPath, "stdout")
		cfg.ErrorOutputPaths = uniquePaths(errorPath, "stderr")
		cfg.Encoding = "json"
		cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

		built, err := cfg.Build()
		if err != nil {
			panic(fmt.Sprintf("Failed to build zap logger: %v", err))
		}
		SetLogger(built)
	})
}

// SetLogger 替换全局 logger，测试里常用 zap.NewNop()
func SetLogger(l *zap.Logger) {
	mu.Lock()
	log = l
	mu.Unlock()
	zap.ReplaceGlobals(l)
}

// GetLogger 返回全局 logger，未初始化时退回到 stdout/info
func GetLogger() *zap.Logger {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l == nil {
		InitLogger("stdout", "stderr", "info")
		mu.RLock()
		l = log
		mu.RUnlock()
	}
	return l
}

// Named 返回带组件名的子 logger
func Named(component string) *zap.Logger {
	return GetLogger().Named(component)
}

// Sync 刷新缓冲区，进程退出前调用
func Sync() {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l != nil {
		// stdout/stderr 上的 sync 在部分平台会返回 EINVAL，忽略即可
		_ = l.Sync()
	}
}

func uniquePaths(primary, fallback string) []string {
	if primary == "" || primary == fallback {
		return []string{fallback}
	}
	return []string{primary, fallback}
}

func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}
