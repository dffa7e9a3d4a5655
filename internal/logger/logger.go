package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// L 全局 logger，Init 之前为 info 级别、输出到 stderr，格式与 Init 之后一致
var L = newLogger(zapcore.InfoLevel, os.Stderr)

type Config struct {
	Level string // debug / info / warn / error
	File  string // 为空只写 stderr，否则同时写入滚动日志文件
}

func Init(cfg Config) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    32, // MB
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
	}

	L = newLogger(level, out)
	return nil
}

func newLogger(level zapcore.Level, out io.Writer) *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(out), level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unsupported log level %q", s)
}

// With 返回附带固定字段的 logger，用于单次运行内的日志
func With(args ...any) *zap.SugaredLogger {
	return L.Desugar().WithOptions(zap.AddCallerSkip(-1)).Sugar().With(args...)
}

func Sync() {
	_ = L.Sync()
}

func Debugf(template string, args ...any) { L.Debugf(template, args...) }
func Infof(template string, args ...any)  { L.Infof(template, args...) }
func Warnf(template string, args ...any)  { L.Warnf(template, args...) }
func Errorf(template string, args ...any) { L.Errorf(template, args...) }
