package icp_test

import (
	"context"
	"testing"
	"time"

	"github.com/pg-sharding/reshard/pkg/icp"
	"github.com/stretchr/testify/assert"
)

func TestUnknownControlPoint(t *testing.T) {
	assert := assert.New(t)

	assert.Error(icp.DefineICP("no-such-point", icp.ActionFail))
	assert.Error(icp.DefineICP(icp.RemoveDonorDocCP, icp.Action("sleep")))
	assert.NoError(icp.CheckControlPoint(context.Background(), icp.RemoveDonorDocCP))
	assert.Nil(icp.Reached(icp.RemoveDonorDocCP))
}

func TestFailControlPoint(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(icp.DefineICP(icp.DonorFailsBeforePreparingToMirrorCP, icp.ActionFail))
	defer icp.ResetICP(icp.DonorFailsBeforePreparingToMirrorCP)

	assert.Error(icp.CheckControlPoint(context.Background(), icp.DonorFailsBeforePreparingToMirrorCP))

	select {
	case <-icp.Reached(icp.DonorFailsBeforePreparingToMirrorCP):
	default:
		t.Fatal("control point not marked as reached")
	}
}

func TestPauseControlPoint(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(icp.DefineICP(icp.RemoveDonorDocCP, icp.ActionPause))
	reached := icp.Reached(icp.RemoveDonorDocCP)

	res := make(chan error, 1)
	go func() {
		res <- icp.CheckControlPoint(context.Background(), icp.RemoveDonorDocCP)
	}()

	select {
	case <-reached:
	case <-time.After(5 * time.Second):
		t.Fatal("control point not reached")
	}

	select {
	case <-res:
		t.Fatal("paused control point returned before reset")
	case <-time.After(20 * time.Millisecond):
	}

	icp.ResetICP(icp.RemoveDonorDocCP)
	assert.NoError(<-res)
}

func TestPauseControlPointCanceled(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(icp.DefineICP(icp.RemoveDonorDocCP, icp.ActionPause))
	defer icp.ResetICP(icp.RemoveDonorDocCP)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(icp.CheckControlPoint(ctx, icp.RemoveDonorDocCP), context.Canceled)
}

func TestPanicControlPoint(t *testing.T) {
	assert.NoError(t, icp.DefineICP(icp.RemoveDonorDocCP, icp.ActionPanic))
	defer icp.ResetICP(icp.RemoveDonorDocCP)

	assert.Panics(t, func() {
		_ = icp.CheckControlPoint(context.Background(), icp.RemoveDonorDocCP)
	})
}
