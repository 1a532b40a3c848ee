package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/dressmygravel/internal/models"
	"github.com/kjstillabower/dressmygravel/internal/observability"
)

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 1 << 20

// caller performs provider HTTP calls with per-attempt timeout, retries with
// exponential backoff and jitter, and a circuit breaker around every attempt.
type caller struct {
	source  models.Source
	client  *http.Client
	timeout time.Duration
	retry   RetryOptions
	breaker *gobreaker.CircuitBreaker
	sleep   func(ctx context.Context, d time.Duration) error
}

func newCaller(source models.Source, opts Options) *caller {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	retry := opts.Retry
	if retry.Attempts <= 0 {
		retry = DefaultRetry
	}
	return &caller{
		source:  source,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		retry:   retry,
		breaker: newBreaker(string(source), opts.Breaker),
		sleep:   sleepCtx,
	}
}

func newBreaker(name string, opts BreakerOptions) *gobreaker.CircuitBreaker {
	failures := opts.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	openTimeout := opts.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	halfOpen := opts.HalfOpenRequests
	if halfOpen == 0 {
		halfOpen = 1
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: halfOpen,
		Interval:    opts.Interval,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.CircuitBreakerTransitionsTotal.WithLabelValues(name, to.String()).Inc()
		},
	})
}

// breakerSuccess decides which outcomes count against upstream health.
// Caller mistakes and caller cancellation say nothing about the provider.
func breakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, ErrLocationNotFound) ||
		errors.Is(err, ErrInvalidAPIKey) ||
		errors.Is(err, context.Canceled)
}

// get issues the request built by build and returns the response body of a 2xx reply.
func (c *caller) get(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.retry.Attempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.WithLabelValues(string(c.source)).Inc()
			if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
		}

		out, err := c.breaker.Execute(func() (interface{}, error) {
			return c.attempt(ctx, build)
		})
		if err == nil {
			return out.([]byte), nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.WeatherAPICallsTotal.WithLabelValues(string(c.source), "circuit_open").Inc()
			return nil, fmt.Errorf("%w: %s: %v", ErrCircuitOpen, c.source, err)
		}

		lastErr = err
		if !c.isRetryable(ctx, err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *caller) attempt(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	start := time.Now()
	source := string(c.source)

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := build(reqCtx)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(source, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(source, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(source, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(source, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(source, status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

// isRetryable reports whether another attempt may succeed. A deadline on the
// caller's own context is final; an expired per-attempt deadline is not.
func (c *caller) isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (c *caller) backoff(attempt int) time.Duration {
	delay := float64(c.retry.BaseDelay) * math.Pow(2, float64(attempt-1))
	if c.retry.MaxDelay > 0 && delay > float64(c.retry.MaxDelay) {
		delay = float64(c.retry.MaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, resp.StatusCode)
	case http.StatusNotFound, http.StatusBadRequest:
		return fmt.Errorf("%w: HTTP %d", ErrLocationNotFound, resp.StatusCode)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected upstream status: HTTP %d", resp.StatusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
