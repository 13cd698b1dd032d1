// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authgate/internal/auth"
	authpg "github.com/holomush/authgate/internal/auth/postgres"
	"github.com/holomush/authgate/internal/config"
	"github.com/holomush/authgate/internal/httpapi"
	"github.com/holomush/authgate/internal/logging"
	"github.com/holomush/authgate/internal/notify"
	"github.com/holomush/authgate/internal/observability"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the auth HTTP API",
		Long: `Serve the login, session and password reset endpoints. Metrics and
health checks are served on a separate listener unless --metrics-addr is empty.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, deps)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, deps, cmd.Root().Version)
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

// runServe blocks until ctx is done or a listener fails.
func runServe(ctx context.Context, cfg *config.Config, deps *Deps, version string) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	logger := logging.SetDefault(logging.Options{
		Service: "authgate",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
	})

	hasher, err := deps.passwordHasher(cfg)
	if err != nil {
		return err
	}

	pool, err := deps.Connect(ctx, cfg.Database.URL, poolConfig(cfg))
	if err != nil {
		return oops.With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}

	opts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithAbusePolicy(cfg.Auth.AbusePolicy()),
		auth.WithResetTTL(cfg.Auth.ResetTTL),
	}

	var obsErr <-chan error
	var obs *observability.Server
	if cfg.Metrics.Addr != "" {
		obs = observability.NewServer(cfg.Metrics.Addr, func(ctx context.Context) bool {
			return pool.Ping(ctx) == nil
		}, logger)
		if obsErr, err = obs.Start(); err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		defer stopWithTimeout(logger, "observability server", obs.Stop)
		opts = append(opts, auth.WithMetrics(obs.AuthMetrics()))
	}

	repos := authpg.NewRepositories(pool)
	svc, err := auth.NewService(repos.Dependencies(hasher, notifier), opts...)
	if err != nil {
		return oops.Code("SERVICE_INIT_FAILED").Wrap(err)
	}

	var handler http.Handler = httpapi.NewRouter(svc, httpapi.Options{
		TrustProxy: cfg.HTTP.TrustProxy,
		Logger:     logger,
	})
	if obs != nil {
		handler = obs.HTTPMetrics().Middleware(handler)
	}

	listener, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(listener)
	}()
	logger.Info("authgate listening", "addr", listener.Addr().String(), "notifier", cfg.Notify.Driver)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return oops.Code("HTTP_SERVE_FAILED").Wrap(err)
		}
		return nil
	case err, ok := <-obsErr:
		if ok && err != nil {
			_ = srv.Close()
			return oops.Code("OBSERVABILITY_SERVE_FAILED").Wrap(err)
		}
	}

	stopWithTimeout(logger, "http server", srv.Shutdown)
	return nil
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) (auth.Notifier, error) {
	renderer, err := notify.NewRenderer(cfg.Auth.Project, notify.DefaultTemplates())
	if err != nil {
		return nil, err
	}
	switch cfg.Notify.Driver {
	case config.NotifierSMTP:
		return notify.NewSMTPNotifier(cfg.Notify.SMTP.Notify(), renderer, logger)
	case config.NotifierLog:
		return notify.NewLogNotifier(renderer, logger), nil
	default:
		return nil, oops.Code("CONFIG_INVALID").With("driver", cfg.Notify.Driver).Errorf("unknown notifier")
	}
}

func stopWithTimeout(logger *slog.Logger, what string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("shutdown failed", "component", what, "error", err)
	}
}
