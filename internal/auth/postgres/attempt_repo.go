// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
)

// AttemptRepository implements auth.AttemptRepository using PostgreSQL.
type AttemptRepository struct {
	pool poolIface
}

var _ auth.AttemptRepository = (*AttemptRepository)(nil)

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool poolIface) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Insert stores a failed attempt.
func (r *AttemptRepository) Insert(ctx context.Context, attempt *auth.AuthAttempt) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO auth_attempts (id, origin, actor, created_at)
		VALUES ($1, $2, $3, $4)
	`, attempt.ID.String(), attempt.Origin, attempt.Actor, attempt.CreatedAt)
	if err != nil {
		return oops.Code("ATTEMPT_INSERT_FAILED").
			With("operation", "insert auth attempt").
			With("origin", attempt.Origin).
			Wrap(err)
	}
	return nil
}

// CountSince counts attempts after since in one scan of the two indexes.
func (r *AttemptRepository) CountSince(ctx context.Context, origin, actor string, since time.Time) (auth.AttemptCounts, error) {
	var counts auth.AttemptCounts
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE origin = $1),
			COUNT(*) FILTER (WHERE actor = $2),
			COUNT(*) FILTER (WHERE origin = $1 AND actor = $2)
		FROM auth_attempts
		WHERE created_at > $3
		  AND (origin = $1 OR actor = $2)
	`, origin, actor, since).Scan(&counts.Origin, &counts.Actor, &counts.OriginActor)
	if err != nil {
		return auth.AttemptCounts{}, oops.Code("ATTEMPT_COUNT_FAILED").
			With("operation", "count auth attempts").
			With("origin", origin).
			Wrap(err)
	}
	return counts, nil
}
