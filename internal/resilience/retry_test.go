package resilience

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRateLimit(t *testing.T) {
	base := eris.New("too many requests")

	assert.True(t, IsRateLimit(NewHTTPError(base, http.StatusTooManyRequests)))
	assert.False(t, IsRateLimit(NewHTTPError(base, http.StatusBadGateway)))
	assert.False(t, IsRateLimit(base))
	assert.False(t, IsRateLimit(nil))

	// Wrapped chain still matches.
	wrapped := eris.Wrap(NewHTTPError(base, http.StatusTooManyRequests), "outer")
	assert.True(t, IsRateLimit(wrapped))
}

func TestLinearBackoff(t *testing.T) {
	backoff := LinearBackoff(10 * time.Second)
	assert.Equal(t, 20*time.Second, backoff(0))
	assert.Equal(t, 30*time.Second, backoff(1))
	assert.Equal(t, 40*time.Second, backoff(2))
}

func TestDoVal_RetriesRateLimitThenSucceeds(t *testing.T) {
	calls := 0
	var delays []time.Duration

	val, err := DoVal(context.Background(), RetryConfig{
		MaxAttempts: 4,
		Backoff:     LinearBackoff(time.Millisecond),
		OnRetry: func(_ int, _ error, delay time.Duration) {
			delays = append(delays, delay)
		},
	}, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewHTTPError(eris.New("429"), http.StatusTooManyRequests)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 2, calls)
	require.Len(t, delays, 1)
	assert.Equal(t, 2*time.Millisecond, delays[0])
}

func TestDoVal_NonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), RetryConfig{
		MaxAttempts: 4,
		Backoff:     LinearBackoff(time.Millisecond),
	}, func(context.Context) (int, error) {
		calls++
		return 0, NewHTTPError(eris.New("500"), http.StatusInternalServerError)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), RetryConfig{
		MaxAttempts: 3,
		Backoff:     func(int) time.Duration { return 0 },
	}, func(context.Context) (int, error) {
		calls++
		return 0, NewHTTPError(eris.New("429"), http.StatusTooManyRequests)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoVal_ContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := DoVal(ctx, RetryConfig{
		MaxAttempts: 4,
		Backoff:     func(int) time.Duration { return time.Hour },
	}, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewHTTPError(eris.New("429"), http.StatusTooManyRequests)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
