package retryable

import (
	"context"
	"errors"
	"time"
)

/*
Call pattern:
	var someResult
	fn := func() error {
		var err error
		someResult, err = whatever()
		return err
	}
	err := RetryWithOpts(ctx, fn, WithRetryableErrorFilter(isTransient), WithMaxRetryCount(3))

	options are reduced into one, last wins for repeated option types. Anything
	not provided is defaulted. The error returned is always the last error the
	call itself produced, or the context error if ctx ended before the first try.
*/

type OptionType string

const (
	Invalid         OptionType = ""
	ErrorFilterFunc OptionType = "ef"
	RetryCountFunc  OptionType = "cf"
	TimeoutFunc     OptionType = "to"
	JitterFunc      OptionType = "jt"

	DefaultRetryCount       = 3
	DefaultTimeout          = 6 * time.Second
	DefaultJitterStep       = 100 * time.Millisecond
	DefaultJitterMultiplier = 0.5

	maxRetryCount = 10
	maxJitterStep = time.Second
)

type Option struct {
	Type OptionType

	// true means the error is worth another try
	ErrorFilterFunc func(error) bool
	// returns a fresh counter; counter returns false once retries are used up
	RetryCountFunc func() func() bool
	// total budget across all tries
	Timeout time.Duration
	// returns a fresh backoff; the backoff returns how long to wait before try n (n >= 1)
	JitterFunc func() func(n int) time.Duration
}

type RetryableCall func() error

// Retry retries with all default options
func Retry(ctx context.Context, toCall RetryableCall) error {
	return retryWithOption(ctx, toCall, &Option{})
}

// RetryWithOpts rolls opts into one option (last wins) and retries with it.
func RetryWithOpts(ctx context.Context, toCall RetryableCall, opts ...*Option) error {
	return retryWithOption(ctx, toCall, reduceOpts(opts))
}

func retryWithOption(ctx context.Context, toCall RetryableCall, option *Option) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// first we assume that everything goes as planned and defer
	// defaulting until we have to retry
	err := toCall()
	if err == nil {
		return nil
	}

	defaultOption(option)
	if !option.ErrorFilterFunc(err) {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, option.Timeout)
	defer cancel()

	shouldRetry := option.RetryCountFunc()
	backoff := option.JitterFunc()
	for attempt := 1; shouldRetry(); attempt++ {
		timer := time.NewTimer(backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		err = toCall()
		if err == nil {
			return nil
		}
		if !option.ErrorFilterFunc(err) {
			return err
		}
	}
	return err
}

func reduceOpts(opts []*Option) *Option {
	reduced := &Option{}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		switch opt.Type {
		case ErrorFilterFunc:
			reduced.ErrorFilterFunc = opt.ErrorFilterFunc
		case RetryCountFunc:
			reduced.RetryCountFunc = opt.RetryCountFunc
		case TimeoutFunc:
			reduced.Timeout = opt.Timeout
		case JitterFunc:
			reduced.JitterFunc = opt.JitterFunc
		default:
			// ignored opt
		}
	}

	return reduced
}

func defaultOption(reduced *Option) {
	if reduced.ErrorFilterFunc == nil {
		reduced.ErrorFilterFunc = WithRetryIfErrorAny().ErrorFilterFunc
	}
	if reduced.RetryCountFunc == nil {
		reduced.RetryCountFunc = WithMaxRetryCount(DefaultRetryCount).RetryCountFunc
	}
	if reduced.Timeout <= 0 {
		reduced.Timeout = DefaultTimeout
	}
	if reduced.JitterFunc == nil {
		reduced.JitterFunc = WithJitter(DefaultJitterStep, DefaultJitterMultiplier).JitterFunc
	}
}

func WithRetryableErrorFilter(fn func(error) bool) *Option {
	return &Option{
		Type:            ErrorFilterFunc,
		ErrorFilterFunc: fn,
	}
}

// retry if any error
func WithRetryIfErrorAny() *Option {
	return WithRetryableErrorFilter(func(e error) bool {
		return e != nil
	})
}

// retry if errors.Is(e, cmp)
func WithRetryIfErrorIs(cmp error) *Option {
	return WithRetryableErrorFilter(func(e error) bool {
		return errors.Is(e, cmp)
	})
}

// sets max retry count, not counting the first try
func WithMaxRetryCount(count int) *Option {
	if count < 0 || count > maxRetryCount {
		count = maxRetryCount // arbitrary really.
	}
	return &Option{
		Type: RetryCountFunc,
		RetryCountFunc: func() func() bool {
			current := 0
			return func() bool {
				if current >= count {
					return false
				}
				current++
				return true
			}
		},
	}
}

func WithMaxTimeout(duration time.Duration) *Option {
	return &Option{
		Type:    TimeoutFunc,
		Timeout: duration,
	}
}

// linear backoff: step + step*multiplier*n, step clamped to (0, 1s]
func WithJitter(step time.Duration, multiplier float64) *Option {
	if step <= 0 {
		step = DefaultJitterStep
	}
	if step > maxJitterStep {
		step = maxJitterStep
	}

	return &Option{
		Type: JitterFunc,
		JitterFunc: func() func(n int) time.Duration {
			return func(n int) time.Duration {
				return step + time.Duration(float64(step)*multiplier*float64(n))
			}
		},
	}
}
