package shardstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	retry "github.com/sethvargo/go-retry"

	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/pg-sharding/reshard/pkg/spqrlog"
)

const (
	pgSerializationFailure  = "40001"
	pgDeadlockDetected      = "40P01"
	pgUndefinedTable        = "42P01"
	pgReadOnlyTransaction   = "25006"
	pgQueryCanceled         = "57014"
	pgAdminShutdown         = "57P01"
	pgCrashShutdown         = "57P02"
	pgCannotConnectNow      = "57P03"
	pgObjectInUse           = "55006"
	pgLockNotAvailable      = "55P03"
	pgInsufficientResources = "53000"
)

// classifyPgError maps PostgreSQL failures onto spqrerror codes so the
// callers' retry policies can recognize them.
func classifyPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable, pgObjectInUse:
			return spqrerror.Wrap(spqrerror.SPQR_WRITE_CONFLICT, err)
		case pgReadOnlyTransaction, pgAdminShutdown, pgCrashShutdown, pgCannotConnectNow:
			return spqrerror.Wrap(spqrerror.SPQR_NOT_PRIMARY, err)
		case pgQueryCanceled:
			return spqrerror.Wrap(spqrerror.SPQR_INTERRUPTED, err)
		case pgInsufficientResources:
			return spqrerror.Wrap(spqrerror.SPQR_NETWORK_ERROR, err)
		}
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return spqrerror.Wrap(spqrerror.SPQR_NETWORK_ERROR, err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return spqrerror.Wrap(spqrerror.SPQR_NETWORK_ERROR, err)
	}
	return err
}

func isWriteConflict(err error) bool {
	return spqrerror.Code(err) == spqrerror.SPQR_WRITE_CONFLICT
}

// WriteConflictRetry re-runs a local transactional write while it fails
// with a write conflict, at most maxRetries times.
func WriteConflictRetry(ctx context.Context, opName string, maxRetries uint64, base time.Duration, f func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(maxRetries, retry.WithJitterPercent(20, retry.NewExponential(base)))

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := f(ctx)
		if err != nil && isWriteConflict(err) {
			spqrlog.Zero.Debug().
				Err(err).
				Str("operation", opName).
				Int("attempt", attempt).
				Msg("write conflict, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
}
