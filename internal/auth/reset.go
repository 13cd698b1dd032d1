// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// DefaultResetTokenTTL is how long a reset key stays redeemable.
const DefaultResetTokenTTL = 10000 * time.Second

// ResetTemplate is the notifier template used for reset emails.
const ResetTemplate = "forgot-password"

// ResetToken is a pending password reset owned by an actor.
type ResetToken struct {
	TokenHash string
	ExpiresAt time.Time
}

// IsExpiredAt returns true if the token is no longer redeemable at t.
func (r *ResetToken) IsExpiredAt(t time.Time) bool {
	return !r.ExpiresAt.After(t)
}

// Email is a message handed to a Notifier.
type Email struct {
	To       string
	Template string
	Data     map[string]any
}

// Notifier delivers templated email. Implementations do not retry.
type Notifier interface {
	Send(ctx context.Context, email Email) error
}

// Ack is the uniform acknowledgment returned by reset operations.
type Ack struct {
	Message string `json:"message"`
}

var successAck = Ack{Message: "Success."}

// ResetFlow issues and redeems password reset keys.
type ResetFlow struct {
	actors   ActorRepository
	hasher   PasswordHasher
	notifier Notifier
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewResetFlow creates a new ResetFlow.
func NewResetFlow(actors ActorRepository, hasher PasswordHasher, notifier Notifier, ttl time.Duration) (*ResetFlow, error) {
	if actors == nil {
		return nil, oops.Errorf("actor repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if notifier == nil {
		return nil, oops.Errorf("notifier is required")
	}
	if ttl <= 0 {
		return nil, oops.Code("CONFIG_INVALID").With("ttl", ttl).Errorf("reset token TTL must be positive")
	}
	return &ResetFlow{
		actors:   actors,
		hasher:   hasher,
		notifier: notifier,
		ttl:      ttl,
		logger:   slog.Default(),
		now:      time.Now,
	}, nil
}

// RequestReset issues a reset key for the actor owning email and mails it.
// Unknown addresses get the same acknowledgment without any side effect.
// A notifier failure is returned after the token has been stored.
func (f *ResetFlow) RequestReset(ctx context.Context, email string) (Ack, error) {
	email = NormalizeEmail(email)

	actor, err := f.actors.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			f.logger.DebugContext(ctx, "reset requested for unknown email")
			return successAck, nil
		}
		return Ack{}, oops.Code(CodeStoreFailed).
			With("operation", "get actor by email").
			Wrap(err)
	}

	key, keyHash, err := GenerateKeyPair(f.hasher)
	if err != nil {
		return Ack{}, oops.With("operation", "generate reset key").Wrap(err)
	}

	expiresAt := f.now().Add(f.ttl).UTC()
	patch := ActorPatch{Reset: &ResetToken{TokenHash: keyHash, ExpiresAt: expiresAt}}
	if err := f.actors.Update(ctx, actor.ID, patch); err != nil {
		return Ack{}, oops.Code(CodeStoreFailed).
			With("operation", "store reset token").
			With("actor_id", actor.ID.String()).
			Wrap(err)
	}

	msg := Email{
		To:       actor.Email,
		Template: ResetTemplate,
		Data: map[string]any{
			"key":        key,
			"email":      actor.Email,
			"username":   actor.Username,
			"expires_at": expiresAt,
		},
	}
	if err := f.notifier.Send(ctx, msg); err != nil {
		return Ack{}, oops.Code(CodeNotifyFailed).
			With("operation", "send reset email").
			With("actor_id", actor.ID.String()).
			Wrap(err)
	}

	return successAck, nil
}

// RedeemReset verifies key for email and, on success, replaces the password
// and clears the reset token in one update. Every rejection uses the same error.
func (f *ResetFlow) RedeemReset(ctx context.Context, email, key, newPassword string) (Ack, error) {
	if newPassword == "" {
		return Ack{}, ErrEmptyPassword
	}
	email = NormalizeEmail(email)

	actor, err := f.actors.GetByResetEmail(ctx, email, f.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Ack{}, invalidResetError()
		}
		return Ack{}, oops.Code(CodeStoreFailed).
			With("operation", "get actor by reset email").
			Wrap(err)
	}
	if actor.Reset == nil || key == "" {
		return Ack{}, invalidResetError()
	}

	ok, err := f.hasher.Verify(key, actor.Reset.TokenHash)
	if err != nil {
		return Ack{}, oops.With("operation", "verify reset key").
			With("actor_id", actor.ID.String()).
			Wrap(err)
	}
	if !ok {
		return Ack{}, invalidResetError()
	}

	passwordHash, err := f.hasher.Hash(newPassword)
	if err != nil {
		return Ack{}, oops.With("operation", "hash new password").Wrap(err)
	}

	patch := ActorPatch{
		PasswordHash: &passwordHash,
		ClearReset:   true,
		IfResetHash:  actor.Reset.TokenHash,
	}
	if err := f.actors.Update(ctx, actor.ID, patch); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Redeemed concurrently or replaced by a newer request.
			return Ack{}, invalidResetError()
		}
		return Ack{}, oops.Code(CodeStoreFailed).
			With("operation", "apply password reset").
			With("actor_id", actor.ID.String()).
			Wrap(err)
	}

	return successAck, nil
}
