package observability

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// TestFlushTelemetry_ClosesAll verifies every closer runs and failures are
// both logged and returned.
func TestFlushTelemetry_ClosesAll(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)
	boom := errors.New("boom")
	var closed int

	err := FlushTelemetry(context.Background(), logger,
		closerFunc(func() error { closed++; return nil }),
		nil,
		closerFunc(func() error { closed++; return boom }),
	)

	if closed != 2 {
		t.Errorf("closed %d closers, want 2", closed)
	}
	if !errors.Is(err, boom) {
		t.Errorf("FlushTelemetry() error = %v, want wrapping boom", err)
	}
	if logs.Len() != 1 {
		t.Errorf("logged %d warnings, want 1", logs.Len())
	}
}

// TestFlushTelemetry_CanceledContext verifies closers are skipped once the
// shutdown deadline has passed.
func TestFlushTelemetry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := FlushTelemetry(ctx, nil, closerFunc(func() error { called = true; return nil }))
	if called {
		t.Error("closer called after context cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("FlushTelemetry() error = %v, want context.Canceled", err)
	}
}
