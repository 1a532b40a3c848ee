package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies that parseLogLevel correctly parses log level
// strings from environment variables, handling case-insensitivity and whitespace.
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		env    string
		expect zapcore.Level
	}{
		{"", zap.InfoLevel},
		{"INFO", zap.InfoLevel},
		{"DEBUG", zap.DebugLevel},
		{"WARN", zap.WarnLevel},
		{"ERROR", zap.ErrorLevel},
		{"debug", zap.DebugLevel},
		{"  warn  ", zap.WarnLevel},
		{"invalid", zap.InfoLevel},
	}
	for _, tt := range tests {
		level := parseLogLevel(tt.env)
		if got := level.Level(); got != tt.expect {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.env, got, tt.expect)
		}
	}
}

// TestNewLogger verifies that NewLogger creates a valid logger instance
// that can be used for logging operations.
func TestNewLogger(t *testing.T) {
	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger == nil {
		t.Fatal("NewLogger() returned nil logger")
	}

	logger.Info("test message")
	_ = logger.Sync() // best-effort; can fail on /dev/stderr in test env
}

// TestLoggerFromContext verifies the request-scoped logger round trip and the
// nil result for contexts without one.
func TestLoggerFromContext(t *testing.T) {
	if got := LoggerFromContext(context.Background()); got != nil {
		t.Errorf("LoggerFromContext(empty) = %v, want nil", got)
	}
	l := zap.NewNop()
	ctx := ContextWithLogger(context.Background(), l)
	if got := LoggerFromContext(ctx); got != l {
		t.Errorf("LoggerFromContext() = %v, want the stored logger", got)
	}
	if got := LoggerFromContext(ContextWithLogger(context.Background(), nil)); got != nil {
		t.Errorf("LoggerFromContext(nil logger) = %v, want nil", got)
	}
}

func TestCorrelationIDFromContext(t *testing.T) {
	if got := CorrelationIDFromContext(context.Background()); got != "" {
		t.Errorf("CorrelationIDFromContext(empty) = %q, want empty", got)
	}
	ctx := ContextWithCorrelationID(context.Background(), "abc-123")
	if got := CorrelationIDFromContext(ctx); got != "abc-123" {
		t.Errorf("CorrelationIDFromContext() = %q, want abc-123", got)
	}
}
