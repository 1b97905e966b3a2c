package ledger

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("ANANSI_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ANANSI_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS seen_ledger (
		fingerprint TEXT PRIMARY KEY,
		first_seen TIMESTAMPTZ NOT NULL DEFAULT NOW())`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `TRUNCATE seen_ledger`)
	require.NoError(t, err)

	store := NewPostgresStore(pool, t.Name())
	require.NoError(t, store.Save(ctx, NewSet("a", "b")))
	require.NoError(t, store.Save(ctx, NewSet("b", "c")))

	seen, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, seen.IDs())

	release, err := store.Lock(ctx)
	require.NoError(t, err)
	_, err = store.Lock(ctx)
	assert.ErrorIs(t, err, ErrLocked)
	require.NoError(t, release(ctx))
}
