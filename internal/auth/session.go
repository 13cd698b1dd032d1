// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// CodeSessionIDConflict is returned by repositories when a session id already exists.
const CodeSessionIDConflict = "SESSION_ID_CONFLICT"

// Session is an authenticated session. Key holds the plaintext secret only on
// the value returned from CreateSession; stored sessions carry KeyHash alone.
type Session struct {
	ID        ulid.ULID `json:"id"`
	ActorID   ulid.ULID `json:"actor_id"`
	Key       string    `json:"key,omitempty"`
	KeyHash   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSession creates a validated Session record.
func NewSession(actorID ulid.ULID, keyHash string, createdAt time.Time) (*Session, error) {
	if actorID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_ACTOR").Errorf("actor ID cannot be zero")
	}
	if keyHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("key hash cannot be empty")
	}
	if createdAt.IsZero() {
		return nil, oops.Code("SESSION_INVALID_TIME").Errorf("creation time cannot be zero")
	}
	return &Session{
		ID:        ulid.Make(),
		ActorID:   actorID,
		KeyHash:   keyHash,
		CreatedAt: createdAt,
	}, nil
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session. Returns an error coded
	// CodeSessionIDConflict if the id is already taken.
	Create(ctx context.Context, session *Session) error

	// GetByID retrieves a session by its ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Session, error)
}

// SessionIssuer creates sessions for verified actors.
type SessionIssuer struct {
	sessions SessionRepository
	hasher   PasswordHasher
	now      func() time.Time
}

// NewSessionIssuer creates a new SessionIssuer.
func NewSessionIssuer(sessions SessionRepository, hasher PasswordHasher) (*SessionIssuer, error) {
	if sessions == nil {
		return nil, oops.Errorf("sessions repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	return &SessionIssuer{sessions: sessions, hasher: hasher, now: time.Now}, nil
}

// CreateSession generates a fresh key pair, persists the session and returns
// it with the plaintext key populated.
func (i *SessionIssuer) CreateSession(ctx context.Context, actorID ulid.ULID) (*Session, error) {
	key, keyHash, err := GenerateKeyPair(i.hasher)
	if err != nil {
		return nil, oops.With("operation", "generate session key").Wrap(err)
	}

	session, err := NewSession(actorID, keyHash, i.now().UTC())
	if err != nil {
		return nil, err
	}

	if err := i.sessions.Create(ctx, session); err != nil {
		return nil, oops.Code(CodeStoreFailed).
			With("operation", "persist session").
			With("actor_id", actorID.String()).
			Wrap(err)
	}

	issued := *session
	issued.Key = key
	return &issued, nil
}

// Authenticate verifies a presented (session id, key) pair.
// Unknown sessions and wrong keys produce the same error.
func (i *SessionIssuer) Authenticate(ctx context.Context, sessionID ulid.ULID, key string) (*Session, error) {
	if key == "" {
		return nil, invalidSessionError()
	}

	session, err := i.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidSessionError()
		}
		return nil, oops.Code(CodeStoreFailed).
			With("operation", "get session by id").
			With("session_id", sessionID.String()).
			Wrap(err)
	}

	ok, err := i.hasher.Verify(key, session.KeyHash)
	if err != nil {
		return nil, oops.With("operation", "verify session key").
			With("session_id", sessionID.String()).
			Wrap(err)
	}
	if !ok {
		return nil, invalidSessionError()
	}
	return session, nil
}
