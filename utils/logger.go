package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 全局日志，未初始化时丢弃输出
var Logger = zap.NewNop()

// NewLogger 按运行模式构建日志；release 输出 JSON，其余输出彩色控制台格式。
// level 为空时使用模式默认级别。
func NewLogger(mode, level string) (*zap.Logger, error) {
	var config zap.Config
	if mode == "release" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		config.Level = lvl
	}

	return config.Build(zap.Fields(zap.String("service", "hairtint")))
}

// InitLogger 初始化全局日志，同时替换 zap.L()
func InitLogger(mode, level string) error {
	logger, err := NewLogger(mode, level)
	if err != nil {
		return err
	}

	Logger = logger
	zap.ReplaceGlobals(logger)
	return nil
}

func Sync() {
	_ = Logger.Sync()
}
