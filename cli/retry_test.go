package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func noWait(context.Context, time.Duration) error { return nil }

func TestBackoffWithJitterBounds(t *testing.T) {
	initial := 100 * time.Millisecond
	maxDelay := 800 * time.Millisecond
	for attempt := 0; attempt < 6; attempt++ {
		delay := backoffWithJitter(initial, maxDelay, attempt)
		require.GreaterOrEqual(t, delay, initial/2)
		require.LessOrEqual(t, delay, maxDelay)
	}
}

func TestRetrierStopsAfterSuccess(t *testing.T) {
	r := newRetrier(100*time.Millisecond, 200*time.Millisecond, 3, zerolog.Nop())
	r.wait = noWait
	var attempts int
	err := r.do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 2 {
			return retryableStatusError{status: 503}
		}
		return nil
	}, isRetryableHTTP)
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestRetrierGivesUpAfterMaxRetries(t *testing.T) {
	r := newRetrier(10*time.Millisecond, 20*time.Millisecond, 2, zerolog.Nop())
	var waits []time.Duration
	r.wait = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	var attempts int
	err := r.do(context.Background(), func(context.Context) error {
		attempts++
		return retryableStatusError{status: 502}
	}, isRetryableHTTP)
	require.Error(t, err)
	require.Equal(t, 3, attempts)
	require.Len(t, waits, 2)
}

func TestRetrierHonorsRetryAfterUpToMax(t *testing.T) {
	r := newRetrier(10*time.Millisecond, 3*time.Second, 1, zerolog.Nop())
	require.Equal(t, 2*time.Second, r.delay(retryableStatusError{status: 429, retryAfter: 2 * time.Second}, 0))
	require.Equal(t, 3*time.Second, r.delay(retryableStatusError{status: 503, retryAfter: time.Minute}, 0))
}

func TestRetrierStopsWhenContextEnds(t *testing.T) {
	r := newRetrier(time.Hour, time.Hour, 5, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var attempts int
	err := r.do(ctx, func(context.Context) error {
		attempts++
		return retryableStatusError{status: 503}
	}, isRetryableHTTP)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, attempts)
}

func TestStatusRetryError(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": []string{"4"}}}
	var statusErr retryableStatusError
	require.True(t, errors.As(statusRetryError(resp), &statusErr))
	require.Equal(t, 4*time.Second, statusErr.retryAfter)

	require.NoError(t, statusRetryError(&http.Response{StatusCode: http.StatusNotFound}))
	require.Error(t, statusRetryError(&http.Response{StatusCode: http.StatusBadGateway}))
}

func TestIsRetryableHTTP(t *testing.T) {
	require.False(t, isRetryableHTTP(nil))
	require.True(t, isRetryableHTTP(retryableStatusError{status: 503}))
	require.False(t, isRetryableHTTP(errors.New("generic")))
	require.True(t, isRetryableHTTP(&net.DNSError{IsTemporary: true}))
	require.False(t, isRetryableHTTP(&apiError{Status: 400, Message: "bad"}))
	require.False(t, isRetryableHTTP(context.Canceled))
}
