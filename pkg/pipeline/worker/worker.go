package worker

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/shpitdev/leadfinder/pkg/pipeline/core"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type FailurePolicy int

const (
	FailurePolicyPartialOutput FailurePolicy = iota
	FailurePolicyFailFast
)

type Options struct {
	// Workers is the number of concurrent workers. Businesses are processed
	// one at a time unless this is raised.
	Workers        int
	MaxRetries     int
	RequestTimeout time.Duration

	// RateLimitRPS is a global limit across all workers. Set to <=0 to disable.
	RateLimitRPS float64

	FailurePolicy FailurePolicy

	// BackoffInitial is the initial sleep before retrying a transient failure.
	BackoffInitial time.Duration
	// BackoffMax caps exponential backoff.
	BackoffMax time.Duration
	// BackoffJitterFrac applies +/- jitter to backoff sleeps (0.2 = +/-20%).
	BackoffJitterFrac float64
}

// Result holds the output for one input item.
type Result[In any, Out any] struct {
	Index  int
	Input  In
	Output Out
	Err    error
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 2 * time.Minute
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = 200 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 2 * time.Second
	}
	if o.BackoffJitterFrac <= 0 {
		o.BackoffJitterFrac = 0.2
	}
	return o
}

// ProcessAll runs the processor over all input items.
func ProcessAll[In any, Out any](
	ctx context.Context,
	items []In,
	processor core.ProcessFunc[In, Out],
	opts Options,
) ([]Result[In, Out], error) {
	return ProcessAllWithCallback(ctx, items, processor, nil, opts)
}

// ProcessAllWithCallback runs the processor over all input items and invokes onResult
// as each item completes. The callback receives completion-order results.
func ProcessAllWithCallback[In any, Out any](
	ctx context.Context,
	items []In,
	processor core.ProcessFunc[In, Out],
	onResult func(Result[In, Out]) error,
	opts Options,
) ([]Result[In, Out], error) {
	shared := func() core.ProcessFunc[In, Out] { return processor }
	return ProcessAllPerWorker(ctx, items, shared, onResult, opts)
}

// ProcessAllPerWorker is ProcessAllWithCallback with one processor per worker
// goroutine. newProcessor is called once per worker before it takes its first
// item, so each worker can own its HTTP client and cookie state.
//
// onResult calls are serialized. A callback error, or any item error under
// FailurePolicyFailFast, cancels the remaining work and is returned.
func ProcessAllPerWorker[In any, Out any](
	ctx context.Context,
	items []In,
	newProcessor func() core.ProcessFunc[In, Out],
	onResult func(Result[In, Out]) error,
	opts Options,
) ([]Result[In, Out], error) {
	opts = opts.withDefaults()
	if len(items) == 0 {
		return []Result[In, Out]{}, ctx.Err()
	}

	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}

	g, runCtx := errgroup.WithContext(ctx)
	indexes := make(chan int)
	g.Go(func() error {
		defer close(indexes)
		for i := range items {
			select {
			case indexes <- i:
			case <-runCtx.Done():
				return nil
			}
		}
		return nil
	})

	// Each index is written by exactly one worker.
	out := make([]Result[In, Out], len(items))
	var cbMu sync.Mutex
	for range min(opts.Workers, len(items)) {
		g.Go(func() error {
			processor := newProcessor()
			for i := range indexes {
				if runCtx.Err() != nil {
					return nil
				}
				res := processOne(runCtx, i, items[i], processor, limiter, opts)
				out[i] = res
				if onResult != nil {
					cbMu.Lock()
					err := onResult(res)
					cbMu.Unlock()
					if err != nil {
						return err
					}
				}
				if res.Err != nil && opts.FailurePolicy == FailurePolicyFailFast {
					return res.Err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func processOne[In any, Out any](
	ctx context.Context,
	idx int,
	item In,
	processor core.ProcessFunc[In, Out],
	limiter *rate.Limiter,
	opts Options,
) Result[In, Out] {
	res, err := processWithRetry(ctx, item, processor, limiter, opts)
	return Result[In, Out]{
		Index:  idx,
		Input:  item,
		Output: res,
		Err:    err,
	}
}

func processWithRetry[In any, Out any](
	ctx context.Context,
	item In,
	processor core.ProcessFunc[In, Out],
	limiter *rate.Limiter,
	opts Options,
) (Out, error) {
	var lastOut Out
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return lastOut, err
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return lastOut, err
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, opts.RequestTimeout)
		result, err := processor(reqCtx, item)
		cancel()
		lastOut = result
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return lastOut, ctx.Err()
		}
		maxRetries := maxExtraRetries(opts.MaxRetries, err)
		if !IsTransient(err) || attempt >= maxRetries {
			return lastOut, err
		}

		sleep := backoffSleep(opts.BackoffInitial, opts.BackoffMax, opts.BackoffJitterFrac, attempt)
		t := time.NewTimer(sleep)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return lastOut, ctx.Err()
		}
	}
}

type retryCap interface {
	MaxExtraRetries() int
}

func maxExtraRetries(defaultRetries int, err error) int {
	if defaultRetries < 0 {
		defaultRetries = 0
	}
	var capErr retryCap
	if errors.As(err, &capErr) {
		limited := capErr.MaxExtraRetries()
		if limited < 0 {
			limited = 0
		}
		if limited < defaultRetries {
			return limited
		}
	}
	return defaultRetries
}

// IsTransient reports whether err should be retried by a worker: explicitly
// marked transient errors, deadline overruns and network timeouts.
func IsTransient(err error) bool {
	var (
		te  *core.TransientError
		lte *core.LimitedTransientError
		ne  net.Error
	)
	switch {
	case err == nil:
		return false
	case errors.As(err, &te), errors.As(err, &lte):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.As(err, &ne):
		return ne.Timeout()
	}
	return false
}

// backoffSleep doubles initial per attempt up to max, then applies jitter.
func backoffSleep(initial, max time.Duration, jitterFrac float64, attempt int) time.Duration {
	sleep := max
	if attempt < 30 {
		if d := initial << attempt; d > 0 && d < max {
			sleep = d
		}
	}
	if jitterFrac <= 0 {
		return sleep
	}
	j := 1 + (rand.Float64()*2-1)*jitterFrac
	return time.Duration(float64(sleep) * j)
}
