// Package logging builds the process-wide zap logger.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"statwatch/internal/config"
)

// New builds a logger from cfg. Production mode logs JSON at info level,
// development mode logs colored console output at debug level. When file
// output is enabled a rotating JSON file is teed with stdout.
func New(cfg config.LoggerConfig) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.OutputPaths = []string{"stdout"}

	if !cfg.FileEnable {
		return zapConfig.Build(zap.AddCaller())
	}

	lumberJackLogger := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    64,
		MaxBackups: 7,
		MaxAge:     7,
		Compress:   false,
	}

	core := zapcore.NewTee(
		zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(lumberJackLogger),
			zapConfig.Level,
		),
		zapcore.NewCore(
			stdoutEncoder(zapConfig),
			zapcore.AddSync(os.Stdout),
			zapConfig.Level,
		),
	)
	return zap.New(core, zap.AddCaller()), nil
}

// stdoutEncoder keeps stdout in the mode's own format when a file core is teed.
func stdoutEncoder(zapConfig zap.Config) zapcore.Encoder {
	if zapConfig.Encoding == "json" {
		return zapcore.NewJSONEncoder(zapConfig.EncoderConfig)
	}
	return zapcore.NewConsoleEncoder(zapConfig.EncoderConfig)
}
