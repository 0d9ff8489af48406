package utils

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitLogger_Defaults(t *testing.T) {
	logger := InitLogger(LogConfig{})
	if logger == nil || logger.Logger == nil || logger.sugar == nil {
		t.Fatal("InitLogger returned an incomplete logger")
	}
}

func TestInitLogger_AllLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "error", "fatal", "invalid"} {
		if InitLogger(LogConfig{Level: level}) == nil {
			t.Fatalf("InitLogger returned nil for level %s", level)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
		"invalid": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogger_WithHelpers(t *testing.T) {
	logger := InitLogger(LogConfig{Level: "info"})
	for _, helper := range []func() *Logger{
		func() *Logger { return logger.WithComponent("kernel") },
		func() *Logger { return logger.WithSymbol("ETH-USD") },
		func() *Logger { return logger.WithAccount(7) },
	} {
		if child := helper(); child == nil || child == logger {
			t.Error("With* helper should return a distinct non-nil logger")
		}
	}
}

func TestGlobalLogger(t *testing.T) {
	globalMu.Lock()
	globalLogger = nil
	globalMu.Unlock()

	l1 := GetGlobalLogger()
	l2 := GetGlobalLogger()
	if l1 != l2 {
		t.Error("GetGlobalLogger should return the same instance across calls")
	}
	if L() != l1 {
		t.Error("L() should alias GetGlobalLogger")
	}
}

func TestGlobalLoggingFunctions(t *testing.T) {
	var buf bytes.Buffer
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zapcore.EncoderConfig{MessageKey: "message", LevelKey: "level"}),
		zapcore.AddSync(&buf),
		zapcore.DebugLevel,
	)
	testLogger := &Logger{Logger: zap.New(core), sugar: zap.New(core).Sugar()}
	SetGlobalLogger(testLogger)

	Infof("info %s %d", "test", 1)
	Warnf("warn %s %d", "test", 2)
	Errorf("error %s %d", "test", 3)
	testLogger.Sync()

	out := buf.String()
	for _, want := range []string{"info test 1", "warn test 2", "error test 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %s", want, out)
		}
	}
}

func TestInitLogger_JSONOutputIsValid(t *testing.T) {
	var buf bytes.Buffer
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zapcore.EncoderConfig{MessageKey: "message", LevelKey: "level"}),
		zapcore.AddSync(&buf),
		zapcore.InfoLevel,
	)
	testLogger := &Logger{Logger: zap.New(core), sugar: zap.New(core).Sugar()}
	testLogger.Info("hello", zap.String("key", "value"))
	testLogger.Sync()

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON, got error: %v", err)
	}
}
