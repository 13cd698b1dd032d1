// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides in-process implementations of the auth
// repositories. They enforce the same uniqueness and atomicity the
// PostgreSQL schema does, so service and CLI tests can run without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
)

// Store bundles one of each repository over shared state.
type Store struct {
	mu       sync.RWMutex
	actors   map[ulid.ULID]auth.Actor
	attempts []auth.AuthAttempt
	sessions map[ulid.ULID]auth.Session
	accounts map[ulid.ULID]auth.Account // keyed by actor id
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		actors:   make(map[ulid.ULID]auth.Actor),
		sessions: make(map[ulid.ULID]auth.Session),
		accounts: make(map[ulid.ULID]auth.Account),
	}
}

// Actors returns the store's auth.ActorRepository.
func (s *Store) Actors() *ActorRepository { return &ActorRepository{s: s} }

// Attempts returns the store's auth.AttemptRepository.
func (s *Store) Attempts() *AttemptRepository { return &AttemptRepository{s: s} }

// Sessions returns the store's auth.SessionRepository.
func (s *Store) Sessions() *SessionRepository { return &SessionRepository{s: s} }

// Accounts returns the store's auth.AccountRepository.
func (s *Store) Accounts() *AccountRepository { return &AccountRepository{s: s} }

// Dependencies wires the store's repositories with the given hasher and notifier.
func (s *Store) Dependencies(hasher auth.PasswordHasher, notifier auth.Notifier) auth.Dependencies {
	return auth.Dependencies{
		Actors:   s.Actors(),
		Attempts: s.Attempts(),
		Sessions: s.Sessions(),
		Accounts: s.Accounts(),
		Hasher:   hasher,
		Notifier: notifier,
	}
}

// ActorRepository implements auth.ActorRepository.
type ActorRepository struct{ s *Store }

var _ auth.ActorRepository = (*ActorRepository)(nil)

// Create implements auth.ActorRepository.
func (r *ActorRepository) Create(_ context.Context, actor *auth.Actor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.actors {
		if existing.ID == actor.ID || existing.Username == actor.Username || existing.Email == actor.Email {
			return oops.Code(auth.CodeActorConflict).
				With("username", actor.Username).
				Errorf("actor already exists")
		}
	}
	r.s.actors[actor.ID] = cloneActor(*actor)
	return nil
}

// GetByID implements auth.ActorRepository.
func (r *ActorRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.Actor, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	actor, ok := r.s.actors[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := cloneActor(actor)
	return &out, nil
}

// GetByUsername implements auth.ActorRepository.
func (r *ActorRepository) GetByUsername(_ context.Context, username string) (*auth.Actor, error) {
	return r.find(func(a auth.Actor) bool { return a.Username == username })
}

// GetByEmail implements auth.ActorRepository.
func (r *ActorRepository) GetByEmail(_ context.Context, email string) (*auth.Actor, error) {
	return r.find(func(a auth.Actor) bool { return a.Email == email })
}

// GetByResetEmail implements auth.ActorRepository.
func (r *ActorRepository) GetByResetEmail(_ context.Context, email string, now time.Time) (*auth.Actor, error) {
	return r.find(func(a auth.Actor) bool { return a.Email == email && a.HasPendingReset(now) })
}

func (r *ActorRepository) find(match func(auth.Actor) bool) (*auth.Actor, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, actor := range r.s.actors {
		if match(actor) {
			out := cloneActor(actor)
			return &out, nil
		}
	}
	return nil, auth.ErrNotFound
}

// Update implements auth.ActorRepository. The guard check and the write
// happen under one lock.
func (r *ActorRepository) Update(_ context.Context, id ulid.ULID, patch auth.ActorPatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	actor, ok := r.s.actors[id]
	if !ok {
		return auth.ErrNotFound
	}
	if patch.IfResetHash != "" && (actor.Reset == nil || actor.Reset.TokenHash != patch.IfResetHash) {
		return auth.ErrNotFound
	}

	if patch.PasswordHash != nil {
		actor.PasswordHash = *patch.PasswordHash
	}
	switch {
	case patch.ClearReset:
		actor.Reset = nil
	case patch.Reset != nil:
		reset := *patch.Reset
		actor.Reset = &reset
	}
	actor.UpdatedAt = time.Now().UTC()
	r.s.actors[id] = actor
	return nil
}

func cloneActor(a auth.Actor) auth.Actor {
	if a.Roles != nil {
		a.Roles = append([]string(nil), a.Roles...)
	}
	if a.Reset != nil {
		reset := *a.Reset
		a.Reset = &reset
	}
	return a
}

// AttemptRepository implements auth.AttemptRepository.
type AttemptRepository struct{ s *Store }

var _ auth.AttemptRepository = (*AttemptRepository)(nil)

// Insert implements auth.AttemptRepository.
func (r *AttemptRepository) Insert(_ context.Context, attempt *auth.AuthAttempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.attempts = append(r.s.attempts, *attempt)
	return nil
}

// CountSince implements auth.AttemptRepository.
func (r *AttemptRepository) CountSince(_ context.Context, origin, actor string, since time.Time) (auth.AttemptCounts, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var counts auth.AttemptCounts
	for _, a := range r.s.attempts {
		if !a.CreatedAt.After(since) {
			continue
		}
		if a.Origin == origin {
			counts.Origin++
		}
		if a.Actor == actor {
			counts.Actor++
		}
		if a.Origin == origin && a.Actor == actor {
			counts.OriginActor++
		}
	}
	return counts, nil
}

// Len returns the number of recorded attempts.
func (r *AttemptRepository) Len() int {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.attempts)
}

// SessionRepository implements auth.SessionRepository.
type SessionRepository struct{ s *Store }

var _ auth.SessionRepository = (*SessionRepository)(nil)

// Create implements auth.SessionRepository.
func (r *SessionRepository) Create(_ context.Context, session *auth.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.sessions[session.ID]; exists {
		return oops.Code(auth.CodeSessionIDConflict).
			With("session_id", session.ID.String()).
			Errorf("session id already exists")
	}
	stored := *session
	stored.Key = ""
	r.s.sessions[session.ID] = stored
	return nil
}

// GetByID implements auth.SessionRepository.
func (r *SessionRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	session, ok := r.s.sessions[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &session, nil
}

// Len returns the number of stored sessions.
func (r *SessionRepository) Len() int {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.sessions)
}

// AccountRepository implements auth.AccountRepository.
type AccountRepository struct{ s *Store }

var _ auth.AccountRepository = (*AccountRepository)(nil)

// Create implements auth.AccountRepository. One account per actor.
func (r *AccountRepository) Create(_ context.Context, account *auth.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.accounts[account.ActorID]; exists {
		return oops.Code(auth.CodeAccountConflict).
			With("actor_id", account.ActorID.String()).
			Errorf("actor already has an account")
	}
	r.s.accounts[account.ActorID] = *account
	return nil
}

// GetByActorID implements auth.AccountRepository.
func (r *AccountRepository) GetByActorID(_ context.Context, actorID ulid.ULID) (*auth.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	account, ok := r.s.accounts[actorID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &account, nil
}
