// Package db holds the Postgres connection, embedded schema migrations and
// the pipeline_runs history.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoDatabaseURL is returned by Connect when no connection string is set.
var ErrNoDatabaseURL = errors.New("DATABASE_URL not set")

// maxConns covers the ledger, the advisory-lock connection and run
// recording with room for the admin API.
const maxConns = 8

// Connect opens and pings a pool for dbURL.
func Connect(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	if dbURL == "" {
		return nil, ErrNoDatabaseURL
	}

	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing db config: %w", err)
	}
	if config.MaxConns > maxConns {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error connecting to db: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging db: %w", err)
	}

	return pool, nil
}
