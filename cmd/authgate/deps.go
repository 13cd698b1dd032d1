// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/holomush/authgate/internal/auth"
	authpg "github.com/holomush/authgate/internal/auth/postgres"
	"github.com/holomush/authgate/internal/config"
	"github.com/holomush/authgate/internal/store"
)

// Migrator is the part of store.Migrator the migrate command uses.
type Migrator interface {
	Up() error
	Down() error
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// ActorStores are the repositories the actor command writes to.
type ActorStores struct {
	Actors   auth.ActorRepository
	Accounts auth.AccountRepository
	Close    func()
}

// Deps holds injectable dependencies. Nil fields use their defaults.
type Deps struct {
	// Getenv reads secrets. Default: os.Getenv
	Getenv func(string) string

	// Connect opens the database pool. Default: store.Connect
	Connect func(ctx context.Context, databaseURL string, cfg store.PoolConfig) (*pgxpool.Pool, error)

	// NewMigrator creates a schema migrator. Default: store.NewMigrator
	NewMigrator func(databaseURL string) (Migrator, error)

	// OpenActorStores opens the actor and account repositories.
	// Default: PostgreSQL repositories over Connect.
	OpenActorStores func(ctx context.Context, cfg *config.Config) (*ActorStores, error)

	// Hasher hashes passwords and keys. Default: argon2id with the auth.argon2 settings
	Hasher auth.PasswordHasher
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.Getenv == nil {
		out.Getenv = os.Getenv
	}
	if out.Connect == nil {
		out.Connect = store.Connect
	}
	if out.NewMigrator == nil {
		out.NewMigrator = func(url string) (Migrator, error) {
			return store.NewMigrator(url)
		}
	}
	if out.OpenActorStores == nil {
		connect := out.Connect
		out.OpenActorStores = func(ctx context.Context, cfg *config.Config) (*ActorStores, error) {
			pool, err := connect(ctx, cfg.Database.URL, poolConfig(cfg))
			if err != nil {
				return nil, err
			}
			repos := authpg.NewRepositories(pool)
			return &ActorStores{Actors: repos.Actors, Accounts: repos.Accounts, Close: pool.Close}, nil
		}
	}
	return &out
}

// passwordHasher returns the injected Hasher, or an argon2id hasher built from cfg.
func (d *Deps) passwordHasher(cfg *config.Config) (auth.PasswordHasher, error) {
	if d.Hasher != nil {
		return d.Hasher, nil
	}
	h, err := auth.NewArgon2idHasherWithParams(cfg.Auth.Argon2.Params())
	if err != nil {
		return nil, err
	}
	return h, nil
}

func poolConfig(cfg *config.Config) store.PoolConfig {
	return store.PoolConfig{
		MaxConns:    cfg.Database.MaxConns,
		PingRetries: cfg.Database.PingRetries,
		PingBackoff: cfg.Database.PingBackoff,
	}
}
