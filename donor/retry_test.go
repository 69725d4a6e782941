package donor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
)

var testPolicy = RetryPolicy{Base: time.Millisecond, Cap: 5 * time.Millisecond}

func TestWithAutomaticRetry(t *testing.T) {
	for _, tt := range []struct {
		name     string
		failures []error
		attempts int
		code     string
	}{
		{
			name:     "success",
			attempts: 1,
		},
		{
			name: "transient errors are retried",
			failures: []error{
				spqrerror.New(spqrerror.SPQR_NETWORK_ERROR, "connection refused"),
				spqrerror.New(spqrerror.SPQR_NOT_PRIMARY, "primary stepped down"),
				spqrerror.New(spqrerror.SPQR_CURSOR_INVALIDATED, "cursor killed"),
				spqrerror.New(spqrerror.SPQR_INTERRUPTED, "query canceled"),
			},
			attempts: 5,
		},
		{
			name: "non-transient error stops",
			failures: []error{
				spqrerror.New(spqrerror.SPQR_NETWORK_ERROR, "connection refused"),
				spqrerror.New(spqrerror.SPQR_INDEX_BUILD_IN_PROGRESS, "index build"),
			},
			attempts: 2,
			code:     spqrerror.SPQR_INDEX_BUILD_IN_PROGRESS,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)

			attempts := 0
			err := WithAutomaticRetry(context.Background(), testPolicy, func(context.Context) error {
				attempts++
				if attempts <= len(tt.failures) {
					return tt.failures[attempts-1]
				}
				return nil
			})

			assert.Equal(tt.attempts, attempts)
			if tt.code == "" {
				assert.NoError(err)
			} else {
				assert.Equal(tt.code, spqrerror.Code(err))
			}
		})
	}
}

func TestWithAutomaticRetryReturnsCause(t *testing.T) {
	assert := assert.New(t)

	cause := errors.New("aborted")
	ctx, cancel := context.WithCancelCause(context.Background())

	attempts := 0
	err := WithAutomaticRetry(ctx, testPolicy, func(ctx context.Context) error {
		attempts++
		cancel(cause)
		return spqrerror.New(spqrerror.SPQR_UNEXPECTED, "operation failed after cancel")
	})
	assert.ErrorIs(err, cause)
	assert.Equal(1, attempts)

	err = WithAutomaticRetry(ctx, testPolicy, func(context.Context) error {
		attempts++
		return nil
	})
	assert.ErrorIs(err, cause)
	assert.Equal(1, attempts)
}

func TestRetryPolicyBackoffIsCapped(t *testing.T) {
	b := RetryPolicy{Base: time.Millisecond, Cap: 4 * time.Millisecond}.backoff()
	for range 10 {
		next, stop := b.Next()
		assert.False(t, stop)
		assert.LessOrEqual(t, next, 4*time.Millisecond)
	}

	b = RetryPolicy{}.backoff()
	next, stop := b.Next()
	assert.False(t, stop)
	assert.Greater(t, next, time.Duration(0))
}
