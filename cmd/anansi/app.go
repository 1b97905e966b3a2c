package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/anansi/internal/config"
	"github.com/david/anansi/internal/db"
	"github.com/david/anansi/internal/digest"
	"github.com/david/anansi/internal/ingest"
	"github.com/david/anansi/internal/ledger"
	"github.com/david/anansi/internal/logger"
	"github.com/david/anansi/internal/metrics"
	"github.com/david/anansi/internal/pipeline"
)

// app holds what every subcommand needs. close releases any connections
// opened while building it.
type app struct {
	cfg      *config.Config
	log      logger.Logger
	registry *ingest.Registry

	pool    *pgxpool.Pool
	closers []func()
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	log, err := logger.New(logger.Config{Level: level})
	if err != nil {
		return nil, err
	}

	reg, err := ingest.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplySourceOverrides(reg); err != nil {
		return nil, fmt.Errorf("apply source overrides: %w", err)
	}

	return &app{cfg: cfg, log: log, registry: reg}, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.log.Sync()
}

// database connects once and applies migrations.
func (a *app) database(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	pool, err := db.Connect(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)
	if err := db.ApplyMigrations(ctx, pool, a.log); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	a.pool = pool
	return pool, nil
}

func (a *app) ledgerStore(ctx context.Context) (ledger.Store, error) {
	switch a.cfg.Ledger.Backend {
	case config.BackendRedis:
		client, err := ledger.NewRedisClient(ledger.RedisConfig{
			Address:  a.cfg.Redis.Address,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return ledger.NewRedisStore(client, a.cfg.Ledger.Key), nil
	case config.BackendPostgres:
		pool, err := a.database(ctx)
		if err != nil {
			return nil, err
		}
		return ledger.NewPostgresStore(pool, a.cfg.Ledger.Key), nil
	default:
		return ledger.NewFileStore(a.cfg.Ledger.Path), nil
	}
}

// publisher returns nil when no webhook is configured; the driver reports
// that only if there is something to publish.
func (a *app) publisher() digest.Publisher {
	pub, err := digest.NewSlackPublisher(a.cfg.SlackWebhookURL, a.cfg.PublishTimeout)
	if err != nil {
		return nil
	}
	return pub
}

func (a *app) driver(ctx context.Context, m *metrics.Metrics, opts pipeline.Options) (*pipeline.Driver, error) {
	fetcher := ingest.NewRateLimitedFetcher(ingest.FetchConfig{})
	sources, err := pipeline.BuildSources(a.registry, ingest.DefaultFactory, ingest.Deps{HTTP: fetcher, Log: a.log}, a.log)
	if err != nil {
		return nil, err
	}
	store, err := a.ledgerStore(ctx)
	if err != nil {
		return nil, err
	}

	d := pipeline.New(sources, store, a.publisher(), opts, a.log)
	d.Metrics = m
	if a.cfg.RecordRuns {
		pool, err := a.database(ctx)
		if err != nil {
			return nil, err
		}
		d.Recorder = db.NewRunStore(pool)
	}
	return d, nil
}

func (a *app) runOptions() pipeline.Options {
	return pipeline.Options{
		FutureOnly:      a.cfg.FutureOnly,
		RequireDeadline: a.cfg.RequireDeadline,
		MaxLines:        a.cfg.MaxLines,
		FetchTimeout:    a.cfg.FetchTimeout,
		Parallelism:     a.cfg.Parallelism,
	}
}
