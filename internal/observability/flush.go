package observability

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// FlushTelemetry releases telemetry and backend resources before process exit.
// Closers (e.g. the memcached client) are closed first so their errors still
// reach the log; the logger is synced last. Call after in-flight requests drain.
func FlushTelemetry(ctx context.Context, logger *zap.Logger, closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			if logger != nil {
				logger.Warn("close failed during shutdown", zap.Error(err))
			}
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
	}
	if logger != nil {
		if err := logger.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("flush logs: %w", err))
		}
	}
	return errors.Join(errs...)
}
