package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ILogger interface {
	Debug(module, message string, details map[string]interface{})
	Info(module, message string, details map[string]interface{})
	Warn(module, message string, details map[string]interface{})
	Error(module, message string, details map[string]interface{})
	Sync() error
}

type ZapLogger struct {
	logger *zap.Logger
}

func newRotator(logFilePath string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
}

func newJSONEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

// NewZapLogger logs JSON to a rotated file and to stdout. Outside production the
// console output uses zap's development encoder.
func NewZapLogger(logFilePath string, isProd bool) *ZapLogger {
	jsonEncoder := newJSONEncoder()

	fileCore := zapcore.NewCore(
		jsonEncoder,
		zapcore.AddSync(newRotator(logFilePath)),
		zap.InfoLevel,
	)

	var consoleEncoder zapcore.Encoder
	if isProd {
		consoleEncoder = jsonEncoder
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	consoleCore := zapcore.NewCore(
		consoleEncoder,
		zapcore.Lock(os.Stdout),
		zap.DebugLevel,
	)

	l := zap.New(zapcore.NewTee(fileCore, consoleCore), zap.AddCaller(), zap.AddCallerSkip(1))

	return &ZapLogger{logger: l}
}

// NewIsolatedLogger writes only to its own file. The realtime delivery layer
// uses it so connection churn stays out of the main log.
func NewIsolatedLogger(logFilePath string) *ZapLogger {
	fileCore := zapcore.NewCore(
		newJSONEncoder(),
		zapcore.AddSync(newRotator(logFilePath)),
		zap.InfoLevel,
	)

	return &ZapLogger{logger: zap.New(fileCore, zap.AddCaller(), zap.AddCallerSkip(1))}
}

// NewNopLogger discards everything.
func NewNopLogger() *ZapLogger {
	return &ZapLogger{logger: zap.NewNop()}
}

// NewWithZap wraps an existing zap logger, e.g. one built with zaptest/observer.
func NewWithZap(l *zap.Logger) *ZapLogger {
	return &ZapLogger{logger: l}
}

func fields(module string, details map[string]interface{}) []zap.Field {
	if details == nil {
		details = make(map[string]interface{})
	}
	fs := []zap.Field{zap.String("module", module), zap.Any("details", details)}
	if err, ok := details["error"]; ok {
		fs = append(fs, zap.Any("error_ref", err))
	}
	return fs
}

func (l *ZapLogger) Debug(module, message string, details map[string]interface{}) {
	l.logger.Debug(message, fields(module, details)...)
}

func (l *ZapLogger) Info(module, message string, details map[string]interface{}) {
	l.logger.Info(message, fields(module, details)...)
}

func (l *ZapLogger) Warn(module, message string, details map[string]interface{}) {
	l.logger.Warn(message, fields(module, details)...)
}

func (l *ZapLogger) Error(module, message string, details map[string]interface{}) {
	l.logger.Error(message, fields(module, details)...)
}

func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}
