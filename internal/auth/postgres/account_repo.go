// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
)

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool poolIface
}

var _ auth.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool poolIface) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create stores a new account. Each actor owns at most one.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (id, actor_id, name, created_at)
		VALUES ($1, $2, $3, $4)
	`, account.ID.String(), account.ActorID.String(), account.Name, account.CreatedAt)
	if err != nil {
		code := "ACCOUNT_CREATE_FAILED"
		if isUniqueViolation(err) {
			code = auth.CodeAccountConflict
		}
		return oops.Code(code).
			With("operation", "insert account").
			With("actor_id", account.ActorID.String()).
			Wrap(err)
	}
	return nil
}

// GetByActorID retrieves the account owned by an actor.
func (r *AccountRepository) GetByActorID(ctx context.Context, actorID ulid.ULID) (*auth.Account, error) {
	var idStr string
	account := auth.Account{ActorID: actorID}
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, created_at
		FROM accounts
		WHERE actor_id = $1
	`, actorID.String()).Scan(&idStr, &account.Name, &account.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("actor_id", actorID.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by actor id").
			With("actor_id", actorID.String()).
			Wrap(err)
	}

	if account.ID, err = parseID(idStr, "account_id"); err != nil {
		return nil, err
	}
	return &account, nil
}
