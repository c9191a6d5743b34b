package retry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Options controls a retried operation.
type Options struct {
	// MaxRetries is the number of retries after the first attempt.
	// Zero means exactly one attempt.
	MaxRetries int

	// InitialDelay seeds the exponential backoff: delay for attempt n is
	// InitialDelay * 2^n, unless the error carries an explicit wait.
	InitialDelay time.Duration

	// ThrowOnExhaustion makes Do return the final error as its second
	// return value. When false, failure is reported only in the Result.
	ThrowOnExhaustion bool

	// sleep is overridable in tests. Nil means a real timer.
	sleep func(context.Context, time.Duration) error
}

// DefaultOptions mirror the documented defaults: 3 retries, 1s initial
// delay, errors propagated on exhaustion.
func DefaultOptions() Options {
	return Options{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		ThrowOnExhaustion: true,
	}
}

// Result is the outcome of a retried operation. It is never silently
// discarded: callers either branch on Success or propagate Err.
type Result[T any] struct {
	Success  bool
	Data     T
	Err      error
	Attempts int
}

// Do runs op with classified retry and backoff. Non-retryable
// classifications (auth, permission) abort immediately regardless of
// remaining attempts. Rate-limit errors carrying an explicit wait override
// the exponential delay with exactly that duration. Delays select on ctx so
// a cancelled caller never sits out a flood wait.
func Do[T any](ctx context.Context, logger *zap.Logger, name string, op func(context.Context) (T, error), opts Options) (Result[T], error) {
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = time.Second
	}
	sleep := opts.sleep
	if sleep == nil {
		sleep = realSleep
	}

	var res Result[T]
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		res.Attempts = attempt + 1

		data, err := op(ctx)
		if err == nil {
			res.Success = true
			res.Data = data
			res.Err = nil
			return res, nil
		}
		res.Err = err

		class := Classify(err)
		if class != Retryable {
			if logger != nil {
				logger.Warn("operation failed, not retryable",
					zap.String("op", name),
					zap.String("class", class.String()),
					zap.Int("attempt", res.Attempts),
					zap.Error(err))
			}
			break
		}
		if attempt == opts.MaxRetries {
			if logger != nil {
				logger.Warn("operation exhausted retries",
					zap.String("op", name),
					zap.Int("attempts", res.Attempts),
					zap.Error(err))
			}
			break
		}

		delay := opts.InitialDelay << attempt
		if hint, ok := WaitHint(err); ok {
			delay = hint
		}
		if logger != nil {
			logger.Info("operation failed, retrying",
				zap.String("op", name),
				zap.String("class", class.String()),
				zap.Int("attempt", res.Attempts),
				zap.Duration("delay", delay),
				zap.Error(err))
		}
		if err := sleep(ctx, delay); err != nil {
			res.Err = err
			break
		}
	}

	if opts.ThrowOnExhaustion {
		return res, res.Err
	}
	return res, nil
}

func realSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
