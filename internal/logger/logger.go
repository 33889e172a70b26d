// Package logger 基于 zap 构建应用日志器，可选按大小轮转的文件输出。
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Option 日志器可选项
type Option func(*options)

type options struct {
	file       string
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
}

// WithRotatingFile 额外输出到按大小轮转的 JSON 日志文件
func WithRotatingFile(path string, maxSizeMB, maxBackups, maxAgeDays int) Option {
	return func(o *options) {
		o.file = path
		o.maxSizeMB = maxSizeMB
		o.maxBackups = maxBackups
		o.maxAgeDays = maxAgeDays
	}
}

// New 创建日志器：
// prod 环境默认 JSON 编码，其他环境默认彩色 console 编码；encoding 非空时以其为准。
func New(env, level, encoding, service, version string, opts ...Option) (*zap.Logger, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	var encCfg zapcore.EncoderConfig
	if env == "prod" {
		encCfg = zap.NewProductionEncoderConfig()
	} else {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if encoding == "" {
		encoding = "console"
		if env == "prod" {
			encoding = "json"
		}
	}

	var stdoutEnc zapcore.Encoder
	switch encoding {
	case "json":
		encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		stdoutEnc = zapcore.NewJSONEncoder(encCfg)
	case "console":
		stdoutEnc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unknown log encoding %q", encoding)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(stdoutEnc, zapcore.Lock(os.Stdout), lvl),
	}
	if o.file != "" {
		rotator := &lumberjack.Logger{
			Filename:   o.file,
			MaxSize:    o.maxSizeMB,
			MaxBackups: o.maxBackups,
			MaxAge:     o.maxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotator),
			lvl,
		))
	}

	lg := zap.New(zapcore.NewTee(cores...), zap.AddCaller()).With(
		zap.String("service", service),
		zap.String("version", version),
		zap.String("env", env),
	)
	return lg, nil
}
