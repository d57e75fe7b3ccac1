package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls log level, destination and file rotation.
type Config struct {
	Level      string `mapstructure:"level"`
	Output     string `mapstructure:"output"` // console, file or both
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

var sugaredLogger *zap.SugaredLogger

// InitLogger builds the global zap logger from config. Safe to call
// again after a config reload; later calls replace the global instance.
func InitLogger(cfg Config) {
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(cfg.Level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	var cores []zapcore.Core

	output := strings.ToLower(cfg.Output)
	if output == "file" || output == "both" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(consoleEncoder, fileWriter, logLevel))
	}

	if output == "console" || output == "both" || len(cores) == 0 {
		consoleWriter := zapcore.AddSync(os.Stdout)
		cores = append(cores, zapcore.NewCore(consoleEncoder, consoleWriter, logLevel))
	}

	core := zapcore.NewTee(cores...)
	sugaredLogger = zap.New(core, zap.AddCaller()).Sugar()
}

// S returns the global sugared logger, falling back to a development
// logger if InitLogger was never called.
func S() *zap.SugaredLogger {
	if sugaredLogger == nil {
		logger, _ := zap.NewDevelopment()
		return logger.Sugar()
	}
	return sugaredLogger
}

// Market returns a named logger for one market's cycle loop.
func Market(name string) *zap.SugaredLogger {
	return S().Named(name)
}
