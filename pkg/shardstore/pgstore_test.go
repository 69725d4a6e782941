package shardstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pg-sharding/reshard/pkg/models/resharding"
	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTxState struct {
	journal    []string
	execErrs   []error
	commitErrs []error
}

func (st *fakeTxState) pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

// fakeTx records the statements run through a critical section
// transaction. Begin opens a savepoint sharing the same state.
type fakeTx struct {
	pgx.Tx

	name  string
	state *fakeTxState
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	f.state.journal = append(f.state.journal, "savepoint")
	return &fakeTx{name: "savepoint", state: f.state}, nil
}

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.state.journal = append(f.state.journal, f.name+": "+sql)
	if err := f.state.pop(&f.state.execErrs); err != nil {
		return pgconn.CommandTag{}, err
	}
	return pgconn.NewCommandTag("DROP TABLE"), nil
}

func (f *fakeTx) Commit(context.Context) error {
	f.state.journal = append(f.state.journal, "commit "+f.name)
	return f.state.pop(&f.state.commitErrs)
}

func (f *fakeTx) Rollback(context.Context) error {
	f.state.journal = append(f.state.journal, "rollback "+f.name)
	return nil
}

var ordersNss = resharding.Namespace{Schema: "public", Relation: "orders"}

func storeWithCriticalSection(tx *fakeTx, released *int) *PgStore {
	return &PgStore{
		critSecs: map[string]*criticalSection{
			ordersNss.String(): {
				tx: tx,
				release: func() {
					*released++
				},
				reason: "resharding",
			},
		},
	}
}

func TestDropCollectionKeepsCriticalSectionOnFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	released := 0
	state := &fakeTxState{execErrs: []error{&pgconn.PgError{Code: pgLockNotAvailable}}}
	tx := &fakeTx{name: "section", state: state}
	s := storeWithCriticalSection(tx, &released)

	attempts := 0
	err := WriteConflictRetry(ctx, "dropCollection", 5, time.Millisecond, func(ctx context.Context) error {
		attempts++
		err := s.DropCollection(ctx, ordersNss)
		if attempts == 1 {
			/* the lock is still held between attempts */
			assert.Equal(spqrerror.SPQR_WRITE_CONFLICT, spqrerror.Code(err))
			_, held := s.critSecs[ordersNss.String()]
			assert.True(held)
			assert.Equal(0, released)
		}
		return err
	})
	require.NoError(t, err)
	assert.Equal(2, attempts)

	drop := `savepoint: DROP TABLE IF EXISTS "public"."orders"`
	assert.Equal([]string{
		"savepoint", drop, "rollback savepoint",
		"savepoint", drop, "commit savepoint",
		"commit section",
	}, state.journal)
	assert.NotContains(state.journal, "rollback section")
	assert.Empty(s.critSecs)
	assert.Equal(1, released)
}

func TestDropCollectionLostCriticalSectionIsNotRetriable(t *testing.T) {
	assert := assert.New(t)

	released := 0
	state := &fakeTxState{commitErrs: []error{errors.New("conn closed")}}
	tx := &fakeTx{name: "section", state: state}
	s := storeWithCriticalSection(tx, &released)

	err := s.DropCollection(context.Background(), ordersNss)
	assert.Equal(spqrerror.SPQR_INVARIANT_VIOLATION, spqrerror.Code(err))
	assert.Empty(s.critSecs)
	assert.Equal(1, released)
	assert.Contains(state.journal, "rollback section")
}
