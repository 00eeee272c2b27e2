// Package pgx holds the PostgreSQL connection plumbing shared by the postgres
// store and the schema checks.
package pgx

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Conn is satisfied by *pgx.Conn, *pgxpool.Pool and pgx.Tx, so the store can
// run against a pool in production and a single connection or transaction in tests.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ConnectOptions tunes Connect.
type ConnectOptions struct {
	// MaxElapsed bounds the total time spent retrying the first ping. Zero
	// disables retries.
	MaxElapsed time.Duration
	Logger     *zap.Logger
}

// Connect opens a pool and pings it, retrying with exponential backoff while
// the database comes up.
func Connect(ctx context.Context, connString string, opts ConnectOptions) (*pgxpool.Pool, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	ping := func() error {
		err := pool.Ping(ctx)
		if err != nil {
			logger.Warn("database not reachable", zap.String("host", cfg.ConnConfig.Host), zap.Error(err))
		}
		return err
	}

	if opts.MaxElapsed <= 0 {
		err = ping()
	} else {
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = opts.MaxElapsed
		err = backoff.Retry(ping, backoff.WithContext(b, ctx))
	}
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	logger.Info("connected to database", zap.String("host", cfg.ConnConfig.Host), zap.String("database", cfg.ConnConfig.Database))
	return pool, nil
}
