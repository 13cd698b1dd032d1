// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
)

// Repository conflict codes.
const (
	CodeActorConflict   = "ACTOR_CONFLICT"
	CodeAccountConflict = "ACCOUNT_CONFLICT"
)

// usernameRegex matches lowercase usernames that start with a letter and
// contain only letters, numbers, dots, dashes and underscores.
var usernameRegex = regexp.MustCompile(`^[a-z][a-z0-9._-]*$`)

// Actor is an authenticatable identity.
type Actor struct {
	ID           ulid.ULID
	Username     string
	Email        string
	PasswordHash string
	Roles        []string
	Active       bool
	Reset        *ResetToken // nil when no reset is pending
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ActorView is the projection of an Actor that may leave the core.
type ActorView struct {
	ID       ulid.ULID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Roles    []string  `json:"roles"`
}

// View returns the sanitized projection of the actor.
func (a *Actor) View() ActorView {
	roles := make([]string, len(a.Roles))
	copy(roles, a.Roles)
	return ActorView{
		ID:       a.ID,
		Username: a.Username,
		Email:    a.Email,
		Roles:    roles,
	}
}

// HasPendingReset reports whether the actor holds a reset token that is live at now.
func (a *Actor) HasPendingReset(now time.Time) bool {
	return a.Reset != nil && !a.Reset.IsExpiredAt(now)
}

// NewActor creates a validated, active Actor. Username and email are normalized to lowercase.
func NewActor(username, email, passwordHash string, roles []string) (*Actor, error) {
	username = NormalizeUsername(username)
	email = NormalizeEmail(email)

	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("password hash cannot be empty")
	}

	now := time.Now().UTC()
	return &Actor{
		ID:           ulid.Make(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Roles:        roles,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeUsername lowercases and trims a submitted username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// NormalizeEmail lowercases and trims a submitted email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateUsername validates a normalized username.
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code(CodeInvalidInput).Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code(CodeInvalidInput).
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code(CodeInvalidInput).
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code(CodeInvalidInput).
			Errorf("username must start with a letter and contain only letters, numbers, dots, dashes and underscores")
	}
	return nil
}

// ValidateEmail checks that email is a bare address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code(CodeInvalidInput).Errorf("email cannot be empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return oops.Code(CodeInvalidInput).With("email", email).Errorf("invalid email address")
	}
	return nil
}

// ActorPatch is a partial update applied to an actor in a single atomic write.
type ActorPatch struct {
	// PasswordHash replaces the stored hash when non-nil.
	PasswordHash *string

	// Reset installs a pending reset token when non-nil.
	Reset *ResetToken

	// ClearReset removes any pending reset token. Takes precedence over Reset.
	ClearReset bool

	// IfResetHash, when set, makes the update conditional on the actor's
	// current reset token hash being equal to this value.
	IfResetHash string
}

// ActorRepository manages actor persistence.
type ActorRepository interface {
	// Create stores a new actor.
	Create(ctx context.Context, actor *Actor) error

	// GetByID retrieves an actor by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Actor, error)

	// GetByUsername retrieves an actor by lowercase username.
	// Returns ErrNotFound if no actor has the given username.
	GetByUsername(ctx context.Context, username string) (*Actor, error)

	// GetByEmail retrieves an actor by lowercase email.
	// Returns ErrNotFound if no actor has the given email.
	GetByEmail(ctx context.Context, email string) (*Actor, error)

	// GetByResetEmail retrieves the actor owning email only when it holds a
	// reset token expiring after now. Returns ErrNotFound otherwise.
	GetByResetEmail(ctx context.Context, email string, now time.Time) (*Actor, error)

	// Update applies patch atomically. Returns ErrNotFound when no actor
	// matches id (and IfResetHash, when set).
	Update(ctx context.Context, id ulid.ULID, patch ActorPatch) error
}

// Account is the per-actor profile record returned by the standard login.
type Account struct {
	ID        ulid.ULID `json:"id"`
	ActorID   ulid.ULID `json:"actor_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Create stores a new account.
	Create(ctx context.Context, account *Account) error

	// GetByActorID retrieves the account owned by an actor.
	// Returns ErrNotFound if the actor has no account.
	GetByActorID(ctx context.Context, actorID ulid.ULID) (*Account, error)
}
