package main

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// retrier re-runs idempotent controller reads with jittered exponential
// backoff. A Retry-After hint from the controller stretches the delay up to max.
type retrier struct {
	initial    time.Duration
	max        time.Duration
	maxRetries int
	logger     zerolog.Logger
	wait       func(ctx context.Context, d time.Duration) error
}

func newRetrier(initial, max time.Duration, maxRetries int, logger zerolog.Logger) *retrier {
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	if max < initial {
		max = initial
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &retrier{
		initial:    initial,
		max:        max,
		maxRetries: maxRetries,
		logger:     logger,
		wait:       sleepContext,
	}
}

func (r *retrier) do(ctx context.Context, fn func(context.Context) error, retryable func(error) bool) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || attempt >= r.maxRetries || !retryable(err) {
			return err
		}
		delay := r.delay(err, attempt)
		r.logger.Warn().Err(err).Int("attempt", attempt+1).Dur("sleep", delay).Msg("Retrying controller request")
		if werr := r.wait(ctx, delay); werr != nil {
			return errors.Join(err, werr)
		}
	}
}

func (r *retrier) delay(err error, attempt int) time.Duration {
	delay := backoffWithJitter(r.initial, r.max, attempt)
	var statusErr retryableStatusError
	if errors.As(err, &statusErr) && statusErr.retryAfter > delay {
		delay = statusErr.retryAfter
	}
	if delay > r.max {
		delay = r.max
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffWithJitter(initial, max time.Duration, attempt int) time.Duration {
	b := float64(initial) * math.Pow(2, float64(attempt))
	if b > float64(max) {
		b = float64(max)
	}
	j := b / 2
	return time.Duration(j + rand.Float64()*j)
}

func isRetryableHTTP(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var statusErr retryableStatusError
	return errors.As(err, &statusErr)
}

// statusRetryError returns a retryableStatusError for 5xx and 429 replies,
// or nil when the reply should be handled by the caller.
func statusRetryError(resp *http.Response) error {
	if resp == nil {
		return nil
	}
	if resp.StatusCode != http.StatusTooManyRequests && (resp.StatusCode < 500 || resp.StatusCode >= 600) {
		return nil
	}
	e := retryableStatusError{status: resp.StatusCode}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		e.retryAfter = time.Duration(secs) * time.Second
	}
	return e
}

type retryableStatusError struct {
	status     int
	retryAfter time.Duration
}

func (e retryableStatusError) Error() string {
	return "controller returned " + strconv.Itoa(e.status) + " " + http.StatusText(e.status)
}
