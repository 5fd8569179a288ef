package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/vgarvardt/gue/v5"
)

// RetryPolicy decides if and when a failed job runs again.
// Keeping it an explicit value lets non-retryable classes like the
// polling timeout stay out of the retry loop without special-casing
type RetryPolicy struct {
	MaxAttempts int32
	Backoff     gue.Backoff
	Retryable   func(error) bool
}

// DefaultRetryPolicy retries everything up to 3 attempts with exponential backoff
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: ExpBackoff(time.Minute),
		Retryable: func(error) bool { return true }}
}

// ExpBackoff returns base×2^(retries-1) with jitter on the upper half
func ExpBackoff(base time.Duration) gue.Backoff {
	return func(retries int) time.Duration {
		if retries < 1 {
			retries = 1
		}
		if retries > 10 {
			retries = 10
		}
		d := base * time.Duration(1<<uint(retries-1))
		return d/2 + halfJitter(d)
	}
}

// NoBackoff reschedules immediately
func NoBackoff() gue.Backoff {
	return func(retries int) time.Duration {
		return 0
	}
}

// BackoffOrTest drops delays in test mode
func BackoffOrTest(b gue.Backoff, test bool) gue.Backoff {
	if test {
		return NoBackoff()
	}
	return b
}

// Opts configures one queue handler
type Opts[TM any] struct {
	timeout        time.Duration
	policy         RetryPolicy
	failureHandler func(context.Context, *TM, error) error
}

// DefaultOpts returns handler options with sane defaults
func DefaultOpts[TM any]() *Opts[TM] {
	return &Opts[TM]{timeout: time.Minute * 15, policy: DefaultRetryPolicy()}
}

// WithPolicy sets the retry policy
func (o *Opts[TM]) WithPolicy(p RetryPolicy) *Opts[TM] {
	o.policy = p
	return o
}

// WithTimeout sets the handler execution timeout
func (o *Opts[TM]) WithTimeout(timeout time.Duration) *Opts[TM] {
	o.timeout = timeout
	return o
}

// WithFailure sets the final failure handler invoked when no retry remains
func (o *Opts[TM]) WithFailure(failureHandler func(context.Context, *TM, error) error) *Opts[TM] {
	o.failureHandler = failureHandler
	return o
}

// Create wraps a typed handler func into a gue work func applying
// the retry policy on failures
func Create[TM any, SD any](data *SD, hf func(context.Context, *TM, *SD) error, opts *Opts[TM]) gue.WorkFunc {
	if opts == nil {
		goapp.Log.Panic().Msg("no opts provided")
	}
	return func(ctx context.Context, j *gue.Job) error {
		goapp.Log.Info().Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).Msg("got msg")

		var m TM
		err := json.Unmarshal(j.Args, &m)
		if err != nil {
			err = fmt.Errorf("could not unmarshal message: %w", err)
		} else {
			wrkCtx, cf := context.WithTimeout(ctx, opts.timeout)
			defer cf()
			err = hf(wrkCtx, &m, data)
			if err != nil {
				goapp.Log.Warn().Err(err).Str("queue", j.Queue).Str("type", j.Type).Msg("fail")
			}
		}
		if err == nil {
			return nil
		}
		attempt := j.ErrorCount + 1
		if opts.policy.Retryable(err) && attempt < opts.policy.MaxAttempts {
			delay := opts.policy.Backoff(int(attempt))
			goapp.Log.Info().Str("queue", j.Queue).Str("type", j.Type).Dur("after", delay).Msg("retry after")
			return gue.ErrRescheduleJobIn(delay, err.Error())
		}
		if opts.failureHandler != nil {
			if errHandler := opts.failureHandler(ctx, &m, err); errHandler != nil {
				goapp.Log.Error().Err(errHandler).Str("queue", j.Queue).Str("type", j.Type).
					Int32("errCount", j.ErrorCount).Msg("failure handler error")
				if j.ErrorCount <= 5 {
					return gue.ErrRescheduleJobIn(time.Second*10, errHandler.Error())
				}
			}
		}
		goapp.Log.Warn().Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).Msg("giving up")
		return nil
	}
}

// halfJitter returns randomized duration in interval [0, t/2)
// as suggested by https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
func halfJitter(t time.Duration) time.Duration {
	// `rand` here is used just for backoff jitter
	return time.Duration(float64(t) / 2 * rand.Float64())
}
