// Package utils holds small, dependency-light helpers shared across the
// simulator that don't belong to any one component: structured logging,
// float64 trading math, time-range helpers and input validation.
package utils

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig configures InitLogger. Zero value is valid and resolves to
// info/json to stderr.
type LogConfig struct {
	Level       string // debug|info|warn|error|fatal
	Format      string // json|text
	Development bool   // adds caller, zap development mode and zap's development encoder config
	Output      string // file path; empty means stderr
}

// Logger wraps *zap.Logger with a cached SugaredLogger and the simulator's
// own With* helpers for tagging log lines with domain context (component,
// symbol, account) the way the teacher tags exchange/pair context.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger builds a Logger from cfg. An invalid or unwritable Output falls
// back to stderr rather than panicking — logging must never be the reason
// the simulator fails to boot.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	var encoderCfg zapcore.EncoderConfig
	if cfg.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderCfg = zap.NewProductionEncoderConfig()
	}
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	var sink zapcore.WriteSyncer
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			sink = zapcore.AddSync(os.Stderr)
		} else {
			sink = zapcore.AddSync(f)
		}
	} else {
		sink = zapcore.AddSync(os.Stderr)
	}

	core := zapcore.NewCore(encoder, sink, level)
	opts := []zap.Option{}
	if cfg.Development {
		opts = append(opts, zap.AddCaller(), zap.Development())
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// With returns a child Logger with the given fields attached.
func (l *Logger) With(fields ...zap.Field) *Logger {
	zl := l.Logger.With(fields...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// WithComponent tags log lines with a component name (kernel, chain,
// strategy:hodler, ...).
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(zap.String("component", name))
}

// WithSymbol tags log lines with a trading symbol.
func (l *Logger) WithSymbol(symbol string) *Logger {
	return l.With(zap.String("symbol", symbol))
}

// WithAccount tags log lines with an agent/account id.
func (l *Logger) WithAccount(account uint32) *Logger {
	return l.With(zap.Uint32("account", account))
}

// Sugar returns the cached SugaredLogger for printf-style call sites.
func (l *Logger) Sugar() *zap.SugaredLogger { return l.sugar }

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// GetGlobalLogger returns the process-wide Logger, lazily creating a
// default one (info/json/stderr) on first use.
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L is shorthand for GetGlobalLogger, for call sites that don't hold a
// constructor-injected Logger (rare — most components receive one
// explicitly).
func L() *Logger { return GetGlobalLogger() }

// InitGlobalLogger builds a Logger from cfg and installs it as the global.
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger installs l as the process-wide logger.
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// Infof/Warnf/Errorf/Debugf are printf-style conveniences over the global
// logger's sugar, for the rare call site without its own injected Logger.
func Infof(format string, args ...interface{})  { L().sugar.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { L().sugar.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { L().sugar.Errorf(format, args...) }
func Debugf(format string, args ...interface{}) { L().sugar.Debugf(format, args...) }

// F is a tiny convenience for building a zap.Field from an arbitrary value
// without importing zap at every call site that only occasionally logs.
func F(key string, value interface{}) zap.Field {
	return zap.Any(key, value)
}
