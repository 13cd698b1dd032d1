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

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	pool poolIface
}

var _ auth.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool poolIface) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create stores a new session. The plaintext key is never written.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, actor_id, key_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, session.ID.String(), session.ActorID.String(), session.KeyHash, session.CreatedAt)
	if err != nil {
		code := "SESSION_CREATE_FAILED"
		if isUniqueViolation(err) {
			code = auth.CodeSessionIDConflict
		}
		return oops.Code(code).
			With("operation", "insert session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Session, error) {
	var idStr, actorIDStr string
	var session auth.Session
	err := r.pool.QueryRow(ctx, `
		SELECT id, actor_id, key_hash, created_at
		FROM sessions
		WHERE id = $1
	`, id.String()).Scan(&idStr, &actorIDStr, &session.KeyHash, &session.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_ID_FAILED").
			With("operation", "get session by id").
			With("id", id.String()).
			Wrap(err)
	}

	if session.ID, err = parseID(idStr, "session_id"); err != nil {
		return nil, err
	}
	if session.ActorID, err = parseID(actorIDStr, "actor_id"); err != nil {
		return nil, err
	}
	return &session, nil
}
