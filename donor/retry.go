package donor

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/pg-sharding/reshard/pkg/config"
	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/pg-sharding/reshard/pkg/spqrlog"
)

// RetryPolicy bounds the backoff between attempts. The number of attempts is not bounded.
type RetryPolicy struct {
	Base time.Duration
	Cap  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base: config.DefaultRetryBackoffBase,
		Cap:  config.DefaultRetryBackoffCap,
	}
}

func (p RetryPolicy) backoff() retry.Backoff {
	base, limit := p.Base, p.Cap
	if base <= 0 {
		base = config.DefaultRetryBackoffBase
	}
	if limit < base {
		limit = base
	}
	return retry.WithCappedDuration(limit, retry.WithJitterPercent(10, retry.NewExponential(base)))
}

func isTransient(err error) bool {
	return spqrerror.IsRetriable(err) ||
		spqrerror.IsCursorInvalidated(err) ||
		spqrerror.IsInterrupted(err) ||
		spqrerror.IsCancellation(err) ||
		spqrerror.IsNotPrimary(err)
}

// WithAutomaticRetry runs f until it succeeds, fails with a non-transient
// error or ctx is done. Once ctx is done the cause of ctx is returned,
// whatever f returned.
func WithAutomaticRetry(ctx context.Context, p RetryPolicy, f func(ctx context.Context) error) error {
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := f(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if isTransient(err) {
			spqrlog.Zero.Warn().
				Err(err).
				Msg("resharding donor encountered transient error, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return err
}
