// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
)

const actorColumns = `id, username, email, password_hash, roles, active,
	       reset_token_hash, reset_expires_at, created_at, updated_at`

// ActorRepository implements auth.ActorRepository using PostgreSQL.
type ActorRepository struct {
	pool poolIface
}

var _ auth.ActorRepository = (*ActorRepository)(nil)

// NewActorRepository creates a new ActorRepository.
func NewActorRepository(pool poolIface) *ActorRepository {
	return &ActorRepository{pool: pool}
}

// Create stores a new actor.
func (r *ActorRepository) Create(ctx context.Context, actor *auth.Actor) error {
	roles := actor.Roles
	if roles == nil {
		roles = []string{}
	}

	var resetHash *string
	var resetExpires *time.Time
	if actor.Reset != nil {
		resetHash = &actor.Reset.TokenHash
		resetExpires = &actor.Reset.ExpiresAt
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO actors (
			id, username, email, password_hash, roles, active,
			reset_token_hash, reset_expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		actor.ID.String(),
		actor.Username,
		actor.Email,
		actor.PasswordHash,
		roles,
		actor.Active,
		resetHash,
		resetExpires,
		actor.CreatedAt,
		actor.UpdatedAt,
	)
	if err != nil {
		code := "ACTOR_CREATE_FAILED"
		if isUniqueViolation(err) {
			code = auth.CodeActorConflict
		}
		return oops.Code(code).
			With("operation", "insert actor").
			With("username", actor.Username).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an actor by ID.
func (r *ActorRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Actor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+actorColumns+` FROM actors WHERE id = $1`, id.String())
	return r.get(row, "id", id.String())
}

// GetByUsername retrieves an actor by lowercase username.
func (r *ActorRepository) GetByUsername(ctx context.Context, username string) (*auth.Actor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+actorColumns+` FROM actors WHERE username = $1`, username)
	return r.get(row, "username", username)
}

// GetByEmail retrieves an actor by lowercase email.
func (r *ActorRepository) GetByEmail(ctx context.Context, email string) (*auth.Actor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+actorColumns+` FROM actors WHERE email = $1`, email)
	return r.get(row, "email", email)
}

// GetByResetEmail retrieves the actor owning email when its reset token
// expires after now.
func (r *ActorRepository) GetByResetEmail(ctx context.Context, email string, now time.Time) (*auth.Actor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+actorColumns+`
		FROM actors
		WHERE email = $1
		  AND reset_token_hash IS NOT NULL
		  AND reset_expires_at > $2
	`, email, now)
	return r.get(row, "email", email)
}

func (r *ActorRepository) get(row pgx.Row, key, value string) (*auth.Actor, error) {
	actor, err := scanActor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACTOR_NOT_FOUND").
			With(key, value).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACTOR_GET_FAILED").
			With("operation", "get actor by "+key).
			With(key, value).
			Wrap(err)
	}
	return actor, nil
}

// Update applies patch in a single statement. The IfResetHash guard is part
// of the WHERE clause, so concurrent redemptions apply at most once.
func (r *ActorRepository) Update(ctx context.Context, id ulid.ULID, patch auth.ActorPatch) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{id.String()}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if patch.PasswordHash != nil {
		sets = append(sets, "password_hash = "+arg(*patch.PasswordHash))
	}
	switch {
	case patch.ClearReset:
		sets = append(sets, "reset_token_hash = NULL", "reset_expires_at = NULL")
	case patch.Reset != nil:
		sets = append(sets,
			"reset_token_hash = "+arg(patch.Reset.TokenHash),
			"reset_expires_at = "+arg(patch.Reset.ExpiresAt))
	}

	query := "UPDATE actors SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	if patch.IfResetHash != "" {
		query += " AND reset_token_hash = " + arg(patch.IfResetHash)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return oops.Code("ACTOR_UPDATE_FAILED").
			With("operation", "update actor").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ACTOR_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanActor(row pgx.Row) (*auth.Actor, error) {
	var (
		idStr        string
		actor        auth.Actor
		resetHash    *string
		resetExpires *time.Time
	)
	if err := row.Scan(
		&idStr,
		&actor.Username,
		&actor.Email,
		&actor.PasswordHash,
		&actor.Roles,
		&actor.Active,
		&resetHash,
		&resetExpires,
		&actor.CreatedAt,
		&actor.UpdatedAt,
	); err != nil {
		return nil, err
	}

	id, err := parseID(idStr, "actor_id")
	if err != nil {
		return nil, err
	}
	actor.ID = id
	if resetHash != nil && resetExpires != nil {
		actor.Reset = &auth.ResetToken{TokenHash: *resetHash, ExpiresAt: *resetExpires}
	}
	return &actor, nil
}
