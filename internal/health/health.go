// Package health tracks request outcomes and derives the service health status
// reported by GET /health.
package health

import (
	"sync/atomic"
	"time"
)

// Status values reported by Evaluate.
const (
	StatusHealthy      = "healthy"
	StatusDegraded     = "degraded"
	StatusOverloaded   = "overloaded"
	StatusShuttingDown = "shutting-down"
)

var shuttingDown atomic.Bool

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT is received.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// Config holds the thresholds used by Evaluate. Zero values disable the
// corresponding check.
type Config struct {
	RateLimitRPS         int
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
}

// Result is the outcome of a health evaluation.
type Result struct {
	Status string
	Reason string
}

// Healthy reports whether the status should be served with 200.
func (r Result) Healthy() bool {
	return r.Status == StatusHealthy
}

// OverloadThreshold returns the request count within OverloadWindow above
// which the service reports overloaded. Zero when the check is disabled.
func (c Config) OverloadThreshold() float64 {
	if c.RateLimitRPS <= 0 || c.OverloadWindow <= 0 || c.OverloadThresholdPct <= 0 {
		return 0
	}
	return float64(c.RateLimitRPS) * c.OverloadWindow.Seconds() * float64(c.OverloadThresholdPct) / 100
}

// Evaluate determines the current status using the package tracker.
// Decision order: shutting-down > overloaded > degraded > healthy.
func Evaluate(cfg Config) Result {
	return EvaluateWith(defaultTracker, cfg)
}

// EvaluateWith is Evaluate against an explicit tracker.
func EvaluateWith(t *Tracker, cfg Config) Result {
	if IsShuttingDown() {
		return Result{Status: StatusShuttingDown, Reason: "signal"}
	}
	if threshold := cfg.OverloadThreshold(); threshold > 0 {
		if float64(t.RequestCount(cfg.OverloadWindow)) > threshold {
			return Result{Status: StatusOverloaded, Reason: "overload_threshold"}
		}
	}
	if cfg.DegradedWindow > 0 && cfg.DegradedErrorPct > 0 {
		errs, total := t.ErrorRate(cfg.DegradedWindow)
		if total > 0 && float64(errs)*100/float64(total) >= float64(cfg.DegradedErrorPct) {
			return Result{Status: StatusDegraded, Reason: "error_rate_breach"}
		}
	}
	return Result{Status: StatusHealthy}
}
