// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Default abuse detection policy.
const (
	// DefaultAbuseWindow is the trailing window in which failures are counted.
	DefaultAbuseWindow = time.Hour

	// DefaultMaxPerOrigin is the failure count from one origin that triggers a block.
	DefaultMaxPerOrigin = 50

	// DefaultMaxPerActor is the failure count against one username that triggers a block.
	DefaultMaxPerActor = 20

	// DefaultMaxPerOriginActor is the failure count for one (origin, username) pair that triggers a block.
	DefaultMaxPerOriginActor = 7
)

// AbusePolicy configures when failed attempts constitute abuse.
// A zero threshold disables that check.
type AbusePolicy struct {
	Window            time.Duration
	MaxPerOrigin      int
	MaxPerActor       int
	MaxPerOriginActor int
}

// DefaultAbusePolicy returns the default policy.
func DefaultAbusePolicy() AbusePolicy {
	return AbusePolicy{
		Window:            DefaultAbuseWindow,
		MaxPerOrigin:      DefaultMaxPerOrigin,
		MaxPerActor:       DefaultMaxPerActor,
		MaxPerOriginActor: DefaultMaxPerOriginActor,
	}
}

// Validate checks the policy for nonsensical values.
func (p AbusePolicy) Validate() error {
	if p.Window <= 0 {
		return oops.Code("CONFIG_INVALID").With("window", p.Window).Errorf("abuse window must be positive")
	}
	if p.MaxPerOrigin < 0 || p.MaxPerActor < 0 || p.MaxPerOriginActor < 0 {
		return oops.Code("CONFIG_INVALID").Errorf("abuse thresholds cannot be negative")
	}
	return nil
}

// Exceeded reports whether counts reach any enabled threshold.
func (p AbusePolicy) Exceeded(c AttemptCounts) bool {
	return reached(c.Origin, p.MaxPerOrigin) ||
		reached(c.Actor, p.MaxPerActor) ||
		reached(c.OriginActor, p.MaxPerOriginActor)
}

func reached(count, limit int) bool {
	return limit > 0 && count >= limit
}

// AuthAttempt is a failed login attempt. Attempts are only ever inserted and counted.
type AuthAttempt struct {
	ID        ulid.ULID
	Origin    string
	Actor     string // submitted username, which may not resolve to an actor
	CreatedAt time.Time
}

// AttemptCounts holds failure counts within a window.
type AttemptCounts struct {
	Origin      int // attempts from the origin
	Actor       int // attempts against the username
	OriginActor int // attempts matching both
}

// AttemptRepository manages failed attempt persistence.
type AttemptRepository interface {
	// Insert stores a failed attempt.
	Insert(ctx context.Context, attempt *AuthAttempt) error

	// CountSince counts attempts created after since that match origin or actor.
	CountSince(ctx context.Context, origin, actor string, since time.Time) (AttemptCounts, error)
}

// AttemptTracker records failed logins and detects brute force.
type AttemptTracker struct {
	attempts AttemptRepository
	policy   AbusePolicy
	now      func() time.Time
}

// NewAttemptTracker creates a new AttemptTracker.
func NewAttemptTracker(attempts AttemptRepository, policy AbusePolicy) (*AttemptTracker, error) {
	if attempts == nil {
		return nil, oops.Errorf("attempt repository is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &AttemptTracker{attempts: attempts, policy: policy, now: time.Now}, nil
}

// Policy returns the tracker's abuse policy.
func (t *AttemptTracker) Policy() AbusePolicy {
	return t.policy
}

// RecordFailure stores a failed attempt for (origin, actor).
func (t *AttemptTracker) RecordFailure(ctx context.Context, origin, actor string) error {
	attempt := &AuthAttempt{
		ID:        ulid.Make(),
		Origin:    origin,
		Actor:     actor,
		CreatedAt: t.now().UTC(),
	}
	if err := t.attempts.Insert(ctx, attempt); err != nil {
		return oops.Code(CodeStoreFailed).
			With("operation", "insert auth attempt").
			With("origin", origin).
			Wrap(err)
	}
	return nil
}

// IsAbusive reports whether failures from origin or against actor within the
// policy window reach any configured threshold.
func (t *AttemptTracker) IsAbusive(ctx context.Context, origin, actor string) (bool, error) {
	since := t.now().Add(-t.policy.Window)
	counts, err := t.attempts.CountSince(ctx, origin, actor, since)
	if err != nil {
		return false, oops.Code(CodeStoreFailed).
			With("operation", "count auth attempts").
			With("origin", origin).
			Wrap(err)
	}
	return t.policy.Exceeded(counts), nil
}
