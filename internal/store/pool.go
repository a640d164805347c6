// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store owns the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Default pool settings.
const (
	DefaultMaxConns        = 10
	DefaultConnectAttempts = 5
	defaultRetryBase       = 500 * time.Millisecond
	defaultRetryCap        = 5 * time.Second
)

// PoolConfig configures Connect.
type PoolConfig struct {
	URL string
	// MaxConns caps the pool size. Zero selects DefaultMaxConns.
	MaxConns int32
	// ConnectAttempts bounds how many times the initial ping is tried.
	// Zero selects DefaultConnectAttempts.
	ConnectAttempts uint64
	// RetryBase is the first backoff interval. Zero selects 500ms.
	RetryBase time.Duration
	Logger    *slog.Logger
}

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// Connect builds a pgx pool and waits until the database answers a ping,
// retrying with capped exponential backoff. Only startup retries; callers on
// the request path see failures immediately.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, oops.Code("DATABASE_URL_MISSING").Errorf("database url is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DATABASE_URL_INVALID").With("operation", "parse database url").Wrap(err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	if poolCfg.MaxConns <= 0 {
		poolCfg.MaxConns = DefaultMaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DATABASE_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitForDatabase(ctx, pool, cfg); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitForDatabase(ctx context.Context, db pinger, cfg PoolConfig) error {
	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = DefaultConnectAttempts
	}
	base := cfg.RetryBase
	if base <= 0 {
		base = defaultRetryBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backoff := retry.NewExponential(base)
	backoff = retry.WithCappedDuration(defaultRetryCap, backoff)
	backoff = retry.WithMaxRetries(attempts-1, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not ready",
				"attempt", attempt,
				"max_attempts", attempts,
				"error", err.Error())
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DATABASE_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
