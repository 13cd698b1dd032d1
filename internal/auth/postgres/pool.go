// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements the auth repositories on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
)

// poolIface is the subset of *pgxpool.Pool the repositories use, so tests
// can substitute pgxmock.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ poolIface = (*pgxpool.Pool)(nil)

// Repositories bundles every auth repository over one pool.
type Repositories struct {
	Actors   *ActorRepository
	Attempts *AttemptRepository
	Sessions *SessionRepository
	Accounts *AccountRepository
}

// NewRepositories creates all repositories over pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Actors:   NewActorRepository(pool),
		Attempts: NewAttemptRepository(pool),
		Sessions: NewSessionRepository(pool),
		Accounts: NewAccountRepository(pool),
	}
}

// Dependencies wires the repositories with the given hasher and notifier.
func (r *Repositories) Dependencies(hasher auth.PasswordHasher, notifier auth.Notifier) auth.Dependencies {
	return auth.Dependencies{
		Actors:   r.Actors,
		Attempts: r.Attempts,
		Sessions: r.Sessions,
		Accounts: r.Accounts,
		Hasher:   hasher,
		Notifier: notifier,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func parseID(raw, column string) (ulid.ULID, error) {
	id, err := ulid.Parse(raw)
	if err != nil {
		return ulid.ULID{}, oops.Code("CORRUPT_ID").
			With(column, raw).
			Wrap(err)
	}
	return id, nil
}
