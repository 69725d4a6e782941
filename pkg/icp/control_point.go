package icp

import (
	"context"
	"fmt"
	"sync"

	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/pg-sharding/reshard/pkg/spqrlog"
)

/* Known control point list */
const (
	DonorFailsBeforePreparingToMirrorCP = "resharding-donor-fails-before-preparing-to-mirror"
	RemoveDonorDocCP                    = "remove-donor-doc"
)

type Action string

const (
	ActionPanic = Action("panic")
	ActionFail  = Action("fail")
	ActionPause = Action("pause")
)

type controlPoint struct {
	action   Action
	reached  chan struct{}
	released chan struct{}
	hit      bool
}

var (
	mu        sync.Mutex
	known     = map[string]struct{}{DonorFailsBeforePreparingToMirrorCP: {}, RemoveDonorDocCP: {}}
	cpsMp     = map[string]*controlPoint{}
	errFailed = func(name string) error {
		return spqrerror.Newf(spqrerror.SPQR_UNEXPECTED, "control point %s failed", name)
	}
)

// DefineICP enables the named control point with the given action.
func DefineICP(name string, action Action) error {
	mu.Lock()
	defer mu.Unlock()

	if _, ok := known[name]; !ok {
		return fmt.Errorf("unknown control point name %s", name)
	}
	switch action {
	case ActionPanic, ActionFail, ActionPause:
		/* OK */
	default:
		return fmt.Errorf("unknown control point action %s", action)
	}
	if prev, ok := cpsMp[name]; ok {
		close(prev.released)
	}
	cpsMp[name] = &controlPoint{
		action:   action,
		reached:  make(chan struct{}),
		released: make(chan struct{}),
	}
	return nil
}

// ResetICP disables the named control point and releases paused callers.
func ResetICP(name string) {
	mu.Lock()
	defer mu.Unlock()

	if cp, ok := cpsMp[name]; ok {
		close(cp.released)
		delete(cpsMp, name)
	}
}

// Reached returns a channel closed once an enabled control point is hit.
// It returns nil for a disabled control point.
func Reached(name string) <-chan struct{} {
	mu.Lock()
	defer mu.Unlock()

	if cp, ok := cpsMp[name]; ok {
		return cp.reached
	}
	return nil
}

// CheckControlPoint applies the action of the named control point if it is enabled.
// A paused caller resumes once the point is reset or ctx is done.
func CheckControlPoint(ctx context.Context, name string) error {
	mu.Lock()
	cp, ok := cpsMp[name]
	if ok && !cp.hit {
		cp.hit = true
		close(cp.reached)
	}
	mu.Unlock()

	if !ok {
		return nil
	}

	spqrlog.Zero.Info().
		Str("control-point", name).
		Str("action", string(cp.action)).
		Msg("reached control point")

	switch cp.action {
	case ActionFail:
		return errFailed(name)
	case ActionPause:
		select {
		case <-cp.released:
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	default:
		panic(fmt.Sprintf("reached control point %s", name))
	}
}
