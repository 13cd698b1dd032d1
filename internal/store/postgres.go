// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store owns the auth database schema and connection setup.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PoolConfig tunes the connection pool returned by Connect.
type PoolConfig struct {
	// MaxConns caps open connections. Zero keeps the pgxpool default.
	MaxConns int32
	// PingRetries is how many extra pings are attempted before giving up.
	PingRetries uint64
	// PingBackoff is the base delay of the exponential ping backoff.
	PingBackoff time.Duration
}

// DefaultPoolConfig returns settings suitable for a service starting
// alongside its database.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{PingRetries: 5, PingBackoff: 200 * time.Millisecond}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Connect opens a pgx pool for databaseURL and waits until the database
// answers a ping.
func Connect(ctx context.Context, databaseURL string, cfg PoolConfig) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, oops.Code("DB_URL_MISSING").Errorf("database URL is required")
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_URL_INVALID").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	if err := pingWithRetry(ctx, pool, cfg); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func pingWithRetry(ctx context.Context, p pinger, cfg PoolConfig) error {
	backoff := cfg.PingBackoff
	if backoff <= 0 {
		backoff = DefaultPoolConfig().PingBackoff
	}

	attempts := 0
	err := retry.Do(ctx, retry.WithMaxRetries(cfg.PingRetries, retry.NewExponential(backoff)), func(ctx context.Context) error {
		attempts++
		if err := p.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_PING_FAILED").With("attempts", attempts).Wrap(err)
	}
	return nil
}
