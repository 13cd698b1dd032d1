// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authgate/internal/config"
	"github.com/holomush/authgate/internal/notify"
	"github.com/holomush/authgate/internal/store"
	"github.com/holomush/authgate/pkg/errutil"
)

func TestRunServe_RequiresDatabaseURL(t *testing.T) {
	cfg := config.Default()
	connected := false
	deps := (&Deps{
		Connect: func(context.Context, string, store.PoolConfig) (*pgxpool.Pool, error) {
			connected = true
			return nil, nil
		},
	}).withDefaults()

	err := runServe(context.Background(), &cfg, deps, "test")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	assert.False(t, connected)
}

func TestRunServe_PropagatesConnectFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Database.URL = testDatabaseURL
	cfg.Database.MaxConns = 7

	var gotCfg store.PoolConfig
	deps := (&Deps{
		Connect: func(_ context.Context, url string, pc store.PoolConfig) (*pgxpool.Pool, error) {
			assert.Equal(t, testDatabaseURL, url)
			gotCfg = pc
			return nil, oops.Code("DB_CONNECT_FAILED").Errorf("connection refused")
		},
	}).withDefaults()

	err := runServe(context.Background(), &cfg, deps, "test")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
	assert.Equal(t, int32(7), gotCfg.MaxConns)
	assert.Equal(t, cfg.Database.PingRetries, gotCfg.PingRetries)
}

func TestServeCommand_InvalidConfigFailsBeforeConnect(t *testing.T) {
	connected := false
	deps := &Deps{
		Getenv: envWith(map[string]string{"DATABASE_URL": testDatabaseURL}),
		Connect: func(context.Context, string, store.PoolConfig) (*pgxpool.Pool, error) {
			connected = true
			return nil, oops.Errorf("unreachable")
		},
	}

	_, err := execute(t, deps, nil, "serve", "--notifier", "pigeon")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	assert.False(t, connected)
}

func TestBuildNotifier(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("log driver", func(t *testing.T) {
		cfg := config.Default()
		n, err := buildNotifier(&cfg, logger)
		require.NoError(t, err)
		assert.IsType(t, &notify.LogNotifier{}, n)
	})

	t.Run("smtp driver", func(t *testing.T) {
		cfg := config.Default()
		cfg.Notify.Driver = config.NotifierSMTP
		cfg.Notify.SMTP.Host = "smtp.example.com"
		cfg.Notify.SMTP.From = "noreply@example.com"
		n, err := buildNotifier(&cfg, logger)
		require.NoError(t, err)
		assert.IsType(t, &notify.SMTPNotifier{}, n)
	})

	t.Run("smtp driver with bad config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Notify.Driver = config.NotifierSMTP
		_, err := buildNotifier(&cfg, logger)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := config.Default()
		cfg.Notify.Driver = "pigeon"
		_, err := buildNotifier(&cfg, logger)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})
}
