package spqrerror_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorCategories(t *testing.T) {
	assert := assert.New(t)

	assert.True(spqrerror.IsRetriable(spqrerror.New(spqrerror.SPQR_NETWORK_ERROR, "conn reset")))
	assert.True(spqrerror.IsRetriable(spqrerror.NewByCode(spqrerror.SPQR_WRITE_CONFLICT)))
	assert.True(spqrerror.IsRetriable(status.Error(codes.Unavailable, "etcd down")))
	assert.False(spqrerror.IsRetriable(spqrerror.New(spqrerror.SPQR_UNEXPECTED, "boom")))
	assert.False(spqrerror.IsRetriable(nil))

	assert.True(spqrerror.IsCancellation(context.Canceled))
	assert.True(spqrerror.IsCancellation(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.True(spqrerror.IsCancellation(spqrerror.NewByCode(spqrerror.SPQR_CANCELED)))
	assert.False(spqrerror.IsCancellation(spqrerror.NewByCode(spqrerror.SPQR_INTERRUPTED)))

	assert.True(spqrerror.IsInterrupted(spqrerror.NewByCode(spqrerror.SPQR_INTERRUPTED)))
	assert.True(spqrerror.IsNotPrimary(spqrerror.NewByCode(spqrerror.SPQR_NOT_PRIMARY)))
	assert.True(spqrerror.IsCursorInvalidated(spqrerror.NewByCode(spqrerror.SPQR_CURSOR_INVALIDATED)))
}

func TestNestedCodes(t *testing.T) {
	assert := assert.New(t)

	inner := spqrerror.New(spqrerror.SPQR_NETWORK_ERROR, "dial tcp")
	outer := spqrerror.Wrap(spqrerror.SPQR_TRANSFER_ERROR, fmt.Errorf("update coordinator: %w", inner))

	assert.Equal(spqrerror.SPQR_TRANSFER_ERROR, spqrerror.Code(outer))
	assert.True(spqrerror.IsRetriable(outer))
	assert.Equal("update coordinator: dial tcp", outer.Error())
}

func TestAbortReasonRoundTrip(t *testing.T) {
	assert := assert.New(t)

	assert.Nil(spqrerror.ToAbortReason(nil))
	assert.Nil(spqrerror.FromAbortReason(nil))

	r := spqrerror.ToAbortReason(fmt.Errorf("plain"))
	assert.Equal(spqrerror.SPQR_UNEXPECTED, r.Code)

	r = spqrerror.ToAbortReason(spqrerror.New(spqrerror.SPQR_RESHARDING_ABORTED, "user abort"))
	err := spqrerror.FromAbortReason(r)
	assert.Equal(spqrerror.SPQR_RESHARDING_ABORTED, spqrerror.Code(err))
	assert.Equal("user abort", err.Error())
}

func TestGetMessageByCode(t *testing.T) {
	assert.Equal(t, "Write conflict", spqrerror.GetMessageByCode(spqrerror.SPQR_WRITE_CONFLICT))
	assert.Equal(t, "Unexpected error", spqrerror.GetMessageByCode("nope"))
}
