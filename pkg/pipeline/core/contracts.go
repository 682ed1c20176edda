package core

import "context"

// InputAdapter loads the records a batch run will process.
type InputAdapter[In any] interface {
	Load(ctx context.Context) ([]In, error)
}

// OutputAdapter persists the rows a batch run produced.
type OutputAdapter[Out any] interface {
	Store(ctx context.Context, rows []Out) error
}

// ProcessFunc processes one record. Worker pools call it once per attempt.
type ProcessFunc[In any, Out any] func(ctx context.Context, in In) (Out, error)

// TransientError marks an error as retryable by worker implementations.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// LimitedTransientError is retryable, but only ExtraRetries times regardless of
// the pool-wide retry budget. Fetch timeouts use it so a dead site does not
// hold a worker for the full budget.
type LimitedTransientError struct {
	Err          error
	ExtraRetries int
}

func (e *LimitedTransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *LimitedTransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MaxExtraRetries caps retries for this error.
func (e *LimitedTransientError) MaxExtraRetries() int {
	if e == nil {
		return 0
	}
	return e.ExtraRetries
}
