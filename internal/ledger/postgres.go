package ledger

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps the ledger in the seen_ledger table created by the
// db migrations.
type PostgresStore struct {
	pool    *pgxpool.Pool
	lockKey int64
}

func NewPostgresStore(pool *pgxpool.Pool, name string) *PostgresStore {
	h := fnv.New64a()
	_, _ = h.Write([]byte("anansi-ledger:" + name))
	return &PostgresStore{pool: pool, lockKey: int64(h.Sum64())}
}

func (s *PostgresStore) Load(ctx context.Context) (Set, error) {
	rows, err := s.pool.Query(ctx, `SELECT fingerprint FROM seen_ledger`)
	if err != nil {
		return NewSet(), fmt.Errorf("load ledger: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return NewSet(), fmt.Errorf("scan ledger: %w", err)
	}
	return NewSet(ids...), nil
}

// Save makes the table match seen in one transaction. Existing rows keep
// their first_seen timestamp.
func (s *PostgresStore) Save(ctx context.Context, seen Set) error {
	ids := seen.IDs()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger save: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM seen_ledger WHERE NOT (fingerprint = ANY($1::text[]))`, ids); err != nil {
		return fmt.Errorf("prune ledger: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO seen_ledger (fingerprint)
		SELECT unnest($1::text[])
		ON CONFLICT (fingerprint) DO NOTHING`, ids); err != nil {
		return fmt.Errorf("insert ledger: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger: %w", err)
	}
	return nil
}

// Lock holds a session-level advisory lock on a dedicated connection until
// release is called.
func (s *PostgresStore) Lock(ctx context.Context) (func(context.Context) error, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for ledger lock: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, s.lockKey).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire ledger lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, ErrLocked
	}

	return func(ctx context.Context) error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, s.lockKey); err != nil {
			return fmt.Errorf("release ledger lock: %w", err)
		}
		return nil
	}, nil
}
