package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/dressmygravel/internal/models"
)

// requestCoalescer prevents cache stampede by coalescing concurrent fetches for the same key.
// The first caller's fn runs; everyone else waiting on the key receives its result.
type requestCoalescer struct {
	group   singleflight.Group
	timeout time.Duration

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the context shared by everyone waiting on one key. It outlives
// any single caller and is canceled once the last waiter leaves.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// newRequestCoalescer creates a requestCoalescer. Waiters give up after timeout
// (0 = wait as long as the caller's context allows).
func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{timeout: timeout, flights: make(map[string]*flight)}
}

// GetOrDo runs fn for key unless a call for key is already in flight, in which
// case it waits for that call. shared reports whether the result was handed to
// more than one caller.
//
// fn receives a context detached from the caller's cancellation but carrying
// its values; it is canceled only when every waiter has given up, so one
// caller hanging up does not fail the others.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func(ctx context.Context) (models.WeatherAPIResponse, error)) (resp models.WeatherAPIResponse, shared bool, err error) {
	f := rc.join(ctx, key)
	ch := rc.group.DoChan(key, func() (interface{}, error) {
		defer rc.finish(key, f)
		return fn(f.ctx)
	})

	var expired <-chan time.Time
	if rc.timeout > 0 {
		timer := time.NewTimer(rc.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case res := <-ch:
		rc.leave(key, f)
		if res.Err != nil {
			return models.WeatherAPIResponse{}, res.Shared, res.Err
		}
		return res.Val.(models.WeatherAPIResponse), res.Shared, nil
	case <-ctx.Done():
		rc.leave(key, f)
		return models.WeatherAPIResponse{}, false, ctx.Err()
	case <-expired:
		rc.leave(key, f)
		return models.WeatherAPIResponse{}, false, fmt.Errorf("waiting on in-flight fetch for %s: %w", key, context.DeadlineExceeded)
	}
}

func (rc *requestCoalescer) join(ctx context.Context, key string) *flight {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	f := rc.flights[key]
	if f == nil {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		rc.flights[key] = f
	}
	f.waiters++
	return f
}

// leave drops one waiter. The last waiter out of a flight that is still
// registered cancels it and forgets the key, so later callers start afresh
// instead of joining a canceled fetch.
func (rc *requestCoalescer) leave(key string, f *flight) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if rc.flights[key] == f {
		delete(rc.flights, key)
		rc.group.Forget(key)
	}
}

// finish unregisters the flight once fn has returned.
func (rc *requestCoalescer) finish(key string, f *flight) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.flights[key] == f {
		delete(rc.flights, key)
	}
}
