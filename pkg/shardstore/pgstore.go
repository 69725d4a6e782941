package shardstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/pg-sharding/reshard/pkg/models/resharding"
	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/pg-sharding/reshard/pkg/oplog"
	"github.com/pg-sharding/reshard/pkg/spqrlog"
)

const (
	defaultSchema = "public"
	messagePrefix = "spqr_resharding"
)

type criticalSection struct {
	tx      pgx.Tx
	release func()
	reason  string
}

// PgStore is a Store over a PostgreSQL primary. Log entries are logical
// decoding messages and timestamps are WAL positions.
type PgStore struct {
	pool   *pgxpool.Pool
	schema string

	replicaCount int
	pollInterval time.Duration

	mu       sync.Mutex
	critSecs map[string]*criticalSection
}

var _ Store = &PgStore{}
var _ RoutingCacheStore = &PgStore{}

// NewPgStore connects to connStr. replicaCount is the size of the replica
// set including the primary. Service tables live in schema.
func NewPgStore(ctx context.Context, connStr string, schema string, replicaCount int, pollInterval time.Duration) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, classifyPgError(errors.Wrap(err, "failed to create shard connection pool"))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classifyPgError(errors.Wrap(err, "failed to connect to shard"))
	}
	return &PgStore{
		pool:         pool,
		schema:       schema,
		replicaCount: replicaCount,
		pollInterval: pollInterval,
		critSecs:     map[string]*criticalSection{},
	}, nil
}

func (s *PgStore) Close() {
	s.mu.Lock()
	for nss, cs := range s.critSecs {
		_ = cs.tx.Rollback(context.Background())
		cs.release()
		delete(s.critSecs, nss)
	}
	s.mu.Unlock()
	s.pool.Close()
}

func identifier(nss resharding.Namespace) pgx.Identifier {
	schema := nss.Schema
	if schema == "" {
		schema = defaultSchema
	}
	return pgx.Identifier{schema, nss.Relation}
}

func (s *PgStore) CollectionStats(ctx context.Context, nss resharding.Namespace) (*CollectionStats, error) {
	id := identifier(nss)

	var (
		oid       uint32
		bytes     int64
		reltuples int64
	)
	err := s.pool.QueryRow(ctx, `
SELECT c.oid, pg_total_relation_size(c.oid), c.reltuples::bigint
FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relname = $2 AND c.relkind IN ('r', 'p')`,
		id[0], id[1]).Scan(&oid, &bytes, &reltuples)
	if errors.Is(err, pgx.ErrNoRows) {
		return &CollectionStats{}, nil
	}
	if err != nil {
		return nil, classifyPgError(errors.Wrapf(err, "failed to get stats of %s", nss))
	}

	/* never analyzed relations report -1 */
	if reltuples < 0 {
		if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM "+id.Sanitize()).Scan(&reltuples); err != nil {
			return nil, classifyPgError(errors.Wrapf(err, "failed to count rows of %s", nss))
		}
	}

	var indexBuild bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_stat_progress_create_index WHERE relid = $1)", oid).Scan(&indexBuild); err != nil {
		return nil, classifyPgError(errors.Wrapf(err, "failed to check index builds of %s", nss))
	}

	return &CollectionStats{
		Exists:               true,
		Bytes:                bytes,
		Documents:            reltuples,
		IndexBuildInProgress: indexBuild,
	}, nil
}

func (s *PgStore) WriteNoop(ctx context.Context, entry *oplog.Entry, lockNss resharding.Namespace) (oplog.Timestamp, error) {
	content, err := json.Marshal(entry)
	if err != nil {
		return oplog.NullTimestamp, errors.Wrap(err, "failed to marshal log entry")
	}

	var lsn string
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if !lockNss.IsEmpty() {
			id := identifier(lockNss)
			var exists bool
			if err := tx.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", id.Sanitize()).Scan(&exists); err != nil {
				return err
			}
			if exists {
				if _, err := tx.Exec(ctx, "LOCK TABLE "+id.Sanitize()+" IN SHARE MODE"); err != nil {
					return err
				}
			}
		}
		if err := tx.QueryRow(ctx,
			"SELECT pg_logical_emit_message(true, $1, $2)::text", messagePrefix, string(content)).Scan(&lsn); err != nil {
			return err
		}
		if entry.IsFinalOp() {
			return s.recordFinalOp(ctx, tx, entry, lsn)
		}
		return nil
	})
	if err != nil {
		return oplog.NullTimestamp, classifyPgError(errors.Wrap(err, "failed to write no-op log entry"))
	}

	ts, err := oplog.ParseTimestamp(lsn)
	if err != nil {
		return oplog.NullTimestamp, spqrerror.Wrap(spqrerror.SPQR_OPLOG_ERROR, err)
	}
	spqrlog.Zero.Debug().
		Str("namespace", entry.Nss).
		Str("ts", ts.String()).
		Msg("pgstore: wrote no-op entry")
	return ts, nil
}

// recordFinalOp remembers a barrier entry in the same transaction that
// emits it, so FinalOpTimestamp can find it after a restart.
func (s *PgStore) recordFinalOp(ctx context.Context, tx pgx.Tx, entry *oplog.Entry, lsn string) error {
	schema := pgx.Identifier{s.schema}.Sanitize()
	table := pgx.Identifier{s.schema, "final_ops"}.Sanitize()
	reshardingUUID, _ := entry.Object2["reshardingUUID"].(string)

	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "CREATE TABLE IF NOT EXISTS "+table+
		" (resharding_uuid text NOT NULL, recipient text NOT NULL, lsn pg_lsn NOT NULL,"+
		" PRIMARY KEY (resharding_uuid, recipient))"); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, "INSERT INTO "+table+" (resharding_uuid, recipient, lsn) VALUES ($1, $2, $3::pg_lsn) "+
		"ON CONFLICT DO NOTHING", reshardingUUID, entry.DestinedRecipient, lsn)
	return err
}

func (s *PgStore) FinalOpTimestamp(ctx context.Context, reshardingUUID string, recipient string) (oplog.Timestamp, error) {
	table := pgx.Identifier{s.schema, "final_ops"}.Sanitize()

	var lsn string
	err := s.pool.QueryRow(ctx, "SELECT lsn::text FROM "+table+" WHERE resharding_uuid = $1 AND recipient = $2",
		reshardingUUID, recipient).Scan(&lsn)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.Is(err, pgx.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable) {
			return oplog.NullTimestamp, nil
		}
		return oplog.NullTimestamp, classifyPgError(errors.Wrap(err, "failed to look up barrier entry"))
	}
	ts, err := oplog.ParseTimestamp(lsn)
	if err != nil {
		return oplog.NullTimestamp, spqrerror.Wrap(spqrerror.SPQR_OPLOG_ERROR, err)
	}
	return ts, nil
}

func (s *PgStore) LastOpTime(ctx context.Context) (oplog.Timestamp, error) {
	var lsn string
	if err := s.pool.QueryRow(ctx, "SELECT pg_current_wal_lsn()::text").Scan(&lsn); err != nil {
		return oplog.NullTimestamp, classifyPgError(errors.Wrap(err, "failed to get current wal position"))
	}
	ts, err := oplog.ParseTimestamp(lsn)
	if err != nil {
		return oplog.NullTimestamp, spqrerror.Wrap(spqrerror.SPQR_OPLOG_ERROR, err)
	}
	return ts, nil
}

// WaitForMajority polls pg_stat_replication until enough standbys flushed ts.
func (s *PgStore) WaitForMajority(ctx context.Context, ts oplog.Timestamp) error {
	/* majority of the replica set, not counting the primary itself */
	required := s.replicaCount / 2
	if required <= 0 {
		return nil
	}

	for {
		var flushed int
		err := s.pool.QueryRow(ctx,
			"SELECT count(*) FROM pg_stat_replication WHERE flush_lsn >= $1::pg_lsn", ts.String()).Scan(&flushed)
		if err != nil {
			return classifyPgError(errors.Wrap(err, "failed to check replication progress"))
		}
		if flushed >= required {
			return nil
		}

		spqrlog.Zero.Debug().
			Str("ts", ts.String()).
			Int("flushed", flushed).
			Int("required", required).
			Msg("pgstore: waiting for majority")

		select {
		case <-time.After(s.pollInterval):
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
}

func (s *PgStore) DropCollection(ctx context.Context, nss resharding.Namespace) error {
	stmt := "DROP TABLE IF EXISTS " + identifier(nss).Sanitize()

	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.critSecs[nss.String()]
	if !ok {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return classifyPgError(errors.Wrapf(err, "failed to drop %s", nss))
		}
		return nil
	}

	/*
	 * The critical section transaction holds the table lock, drop through it.
	 * A failed drop rolls back to a savepoint so the lock survives the retry.
	 */
	sp, err := cs.tx.Begin(ctx)
	if err != nil {
		return s.loseCriticalSectionLocked(ctx, nss, cs, err)
	}
	if _, err := sp.Exec(ctx, stmt); err != nil {
		if rerr := sp.Rollback(ctx); rerr != nil {
			return s.loseCriticalSectionLocked(ctx, nss, cs, rerr)
		}
		return classifyPgError(errors.Wrapf(err, "failed to drop %s", nss))
	}
	if err := sp.Commit(ctx); err != nil {
		return s.loseCriticalSectionLocked(ctx, nss, cs, err)
	}

	delete(s.critSecs, nss.String())
	defer cs.release()
	if err := cs.tx.Commit(ctx); err != nil {
		return spqrerror.Wrap(spqrerror.SPQR_INVARIANT_VIOLATION,
			errors.Wrapf(err, "failed to commit drop of %s under critical section", nss))
	}
	spqrlog.Zero.Info().
		Str("namespace", nss.String()).
		Msg("pgstore: dropped collection under critical section")
	return nil
}

// loseCriticalSectionLocked tears down a critical section whose transaction
// can no longer be used. Writes may have reached nss since, so the error is
// not retriable.
func (s *PgStore) loseCriticalSectionLocked(ctx context.Context, nss resharding.Namespace, cs *criticalSection, err error) error {
	delete(s.critSecs, nss.String())
	_ = cs.tx.Rollback(ctx)
	cs.release()
	return spqrerror.Wrap(spqrerror.SPQR_INVARIANT_VIOLATION,
		errors.Wrapf(err, "lost critical section on %s", nss))
}

// AcquireCriticalSection takes an EXCLUSIVE lock on nss, which conflicts
// with every write but not with plain reads, and keeps its transaction open.
func (s *PgStore) AcquireCriticalSection(ctx context.Context, nss resharding.Namespace, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.critSecs[nss.String()]; ok {
		return nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return classifyPgError(errors.Wrap(err, "failed to acquire connection for critical section"))
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return classifyPgError(errors.Wrap(err, "failed to begin critical section"))
	}
	if _, err := tx.Exec(ctx, "LOCK TABLE "+identifier(nss).Sanitize()+" IN EXCLUSIVE MODE"); err != nil {
		_ = tx.Rollback(ctx)
		conn.Release()

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
			/* nothing to protect */
			return nil
		}
		return classifyPgError(errors.Wrapf(err, "failed to lock %s", nss))
	}

	s.critSecs[nss.String()] = &criticalSection{tx: tx, release: conn.Release, reason: reason}
	spqrlog.Zero.Info().
		Str("namespace", nss.String()).
		Str("reason", reason).
		Msg("pgstore: acquired critical section")
	return nil
}

func (s *PgStore) ReleaseCriticalSection(ctx context.Context, nss resharding.Namespace) error {
	s.mu.Lock()
	cs, ok := s.critSecs[nss.String()]
	if ok {
		delete(s.critSecs, nss.String())
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}
	defer cs.release()

	if err := cs.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return classifyPgError(errors.Wrapf(err, "failed to release critical section on %s", nss))
	}
	spqrlog.Zero.Info().
		Str("namespace", nss.String()).
		Msg("pgstore: released critical section")
	return nil
}

func (s *PgStore) PersistRoutingInfo(ctx context.Context, nss string, version int64, data []byte) error {
	schema := pgx.Identifier{s.schema}.Sanitize()
	table := pgx.Identifier{s.schema, "cache_routing"}.Sanitize()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "CREATE TABLE IF NOT EXISTS "+table+
			" (nss text PRIMARY KEY, version bigint NOT NULL, info jsonb NOT NULL)"); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "INSERT INTO "+table+" (nss, version, info) VALUES ($1, $2, $3) "+
			"ON CONFLICT (nss) DO UPDATE SET version = EXCLUDED.version, info = EXCLUDED.info "+
			"WHERE "+table+".version < EXCLUDED.version", nss, version, string(data))
		return err
	})
	if err != nil {
		return classifyPgError(errors.Wrapf(err, "failed to persist routing metadata of %s", nss))
	}
	return nil
}
