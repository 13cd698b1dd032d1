// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/authgate/pkg/errutil"
)

const tracerName = "github.com/holomush/authgate/internal/auth"

// Login variants, used as metric and span labels.
const (
	VariantStandard = "standard"
	VariantAdmin    = "admin"
)

// dummyPasswordHash is verified when a username is unknown so that unknown
// and known usernames take the same time to reject.
// It is not a credential: no password verifies against it.
//
//nolint:gosec // G101: intentionally fake hash for timing uniformity.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Metrics receives auth outcomes. Implementations must be safe for concurrent use.
type Metrics interface {
	ObserveLogin(variant string, kind ErrorKind, ok bool)
	ObserveReset(stage string, kind ErrorKind, ok bool)
}

type noopMetrics struct{}

func (noopMetrics) ObserveLogin(string, ErrorKind, bool) {}
func (noopMetrics) ObserveReset(string, ErrorKind, bool) {}

// Dependencies are the collaborators injected into a Service.
type Dependencies struct {
	Actors   ActorRepository
	Attempts AttemptRepository
	Sessions SessionRepository
	Accounts AccountRepository
	Hasher   PasswordHasher
	Notifier Notifier
}

func (d Dependencies) validate() error {
	switch {
	case d.Actors == nil:
		return oops.Errorf("actor repository is required")
	case d.Attempts == nil:
		return oops.Errorf("attempt repository is required")
	case d.Sessions == nil:
		return oops.Errorf("sessions repository is required")
	case d.Accounts == nil:
		return oops.Errorf("account repository is required")
	case d.Hasher == nil:
		return oops.Errorf("password hasher is required")
	case d.Notifier == nil:
		return oops.Errorf("notifier is required")
	}
	return nil
}

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets the logger used for best-effort failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			return oops.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithAbusePolicy overrides DefaultAbusePolicy.
func WithAbusePolicy(policy AbusePolicy) Option {
	return func(s *Service) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		s.policy = policy
		return nil
	}
}

// WithResetTTL overrides DefaultResetTokenTTL.
func WithResetTTL(ttl time.Duration) Option {
	return func(s *Service) error {
		if ttl <= 0 {
			return oops.Code("CONFIG_INVALID").With("ttl", ttl).Errorf("reset token TTL must be positive")
		}
		s.resetTTL = ttl
		return nil
	}
}

// WithClock replaces time.Now for all time-dependent decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return oops.Errorf("clock cannot be nil")
		}
		s.now = now
		return nil
	}
}

// WithMetrics records outcomes to m.
func WithMetrics(m Metrics) Option {
	return func(s *Service) error {
		if m == nil {
			return oops.Errorf("metrics cannot be nil")
		}
		s.metrics = m
		return nil
	}
}

// Service is the login orchestrator: it sequences abuse detection,
// credential verification, failure logging and session issuance, and
// fronts the password reset flow.
type Service struct {
	actors   ActorRepository
	accounts AccountRepository
	hasher   PasswordHasher
	tracker  *AttemptTracker
	issuer   *SessionIssuer
	resets   *ResetFlow
	policy   AbusePolicy
	resetTTL time.Duration
	logger   *slog.Logger
	metrics  Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

// NewService creates a Service from its collaborators.
func NewService(deps Dependencies, opts ...Option) (*Service, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	s := &Service{
		actors:   deps.Actors,
		accounts: deps.Accounts,
		hasher:   deps.Hasher,
		policy:   DefaultAbusePolicy(),
		resetTTL: DefaultResetTokenTTL,
		logger:   slog.Default(),
		metrics:  noopMetrics{},
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	var err error
	if s.tracker, err = NewAttemptTracker(deps.Attempts, s.policy); err != nil {
		return nil, err
	}
	if s.issuer, err = NewSessionIssuer(deps.Sessions, deps.Hasher); err != nil {
		return nil, err
	}
	if s.resets, err = NewResetFlow(deps.Actors, deps.Hasher, deps.Notifier, s.resetTTL); err != nil {
		return nil, err
	}
	s.tracker.now = s.now
	s.issuer.now = s.now
	s.resets.now = s.now
	s.resets.logger = s.logger

	return s, nil
}

// LoginRequest carries submitted credentials and the request origin.
type LoginRequest struct {
	Origin   string
	Username string
	Password string
}

// LoginOptions selects the login variant.
type LoginOptions struct {
	// IncludeAccount looks up the actor's account for the response.
	IncludeAccount bool
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	Actor   ActorView `json:"user"`
	Account *Account  `json:"account,omitempty"`
	Session *Session  `json:"session"`
}

// Login runs the standard login, which includes the actor's account.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	return s.login(ctx, req, LoginOptions{IncludeAccount: true})
}

// LoginAdmin runs the admin login, which omits the account lookup.
func (s *Service) LoginAdmin(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	return s.login(ctx, req, LoginOptions{})
}

func (s *Service) login(ctx context.Context, req LoginRequest, opts LoginOptions) (*LoginResult, error) {
	variant := VariantAdmin
	if opts.IncludeAccount {
		variant = VariantStandard
	}

	ctx, span := s.tracer.Start(ctx, "auth.Login", trace.WithAttributes(
		attribute.String("auth.variant", variant),
	))
	defer span.End()

	result, err := s.runLogin(ctx, req, opts)
	s.metrics.ObserveLogin(variant, KindOf(err), err == nil)
	endSpan(span, err)
	return result, err
}

func (s *Service) runLogin(ctx context.Context, req LoginRequest, opts LoginOptions) (*LoginResult, error) {
	username := NormalizeUsername(req.Username)

	// Abuse gate runs before anything touches credentials.
	abusive, err := s.tracker.IsAbusive(ctx, req.Origin, username)
	if err != nil {
		return nil, err
	}
	if abusive {
		return nil, rateLimitedError(s.tracker.Policy().Window)
	}

	actor, err := s.verifyCredentials(ctx, username, req.Password)
	if err != nil {
		return nil, err
	}

	if actor == nil {
		if err := s.tracker.RecordFailure(ctx, req.Origin, username); err != nil {
			return nil, err
		}
		return nil, invalidCredentialsError()
	}

	s.upgradeHash(ctx, actor, req.Password)

	// Account lookup precedes session creation so a failed lookup persists nothing.
	var account *Account
	if opts.IncludeAccount {
		account, err = s.accounts.GetByActorID(ctx, actor.ID)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			account = nil
		default:
			return nil, oops.Code(CodeStoreFailed).
				With("operation", "get account by actor id").
				With("actor_id", actor.ID.String()).
				Wrap(err)
		}
	}

	session, err := s.issuer.CreateSession(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Actor: actor.View(), Account: account, Session: session}, nil
}

// verifyCredentials returns the active actor matching username and password,
// or nil when there is none. Unknown, wrong-password and inactive actors are
// indistinguishable to the caller.
func (s *Service) verifyCredentials(ctx context.Context, username, password string) (*Actor, error) {
	actor, err := s.actors.GetByUsername(ctx, username)
	exists := true
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeStoreFailed).
				With("operation", "get actor by username").
				Wrap(err)
		}
		exists = false
	}

	targetHash := dummyPasswordHash
	if exists {
		targetHash = actor.PasswordHash
	}

	valid, err := s.hasher.Verify(password, targetHash)
	if err != nil {
		if !exists {
			return nil, nil
		}
		return nil, oops.With("operation", "verify password").
			With("actor_id", actor.ID.String()).
			Wrap(err)
	}

	if !exists || !valid || !actor.Active {
		return nil, nil
	}
	return actor, nil
}

// upgradeHash re-hashes a legacy password hash after a successful login.
func (s *Service) upgradeHash(ctx context.Context, actor *Actor, password string) {
	if !s.hasher.NeedsUpgrade(actor.PasswordHash) {
		return
	}
	newHash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.actors.Update(ctx, actor.ID, ActorPatch{PasswordHash: &newHash})
	}
	if err != nil {
		errutil.LogBestEffort(ctx, s.logger, "upgrade_hash", err, "actor_id", actor.ID.String())
		return
	}
	actor.PasswordHash = newHash
}

// RequestPasswordReset issues and mails a reset key. The acknowledgment is
// identical whether or not the email belongs to an actor.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (Ack, error) {
	ctx, span := s.tracer.Start(ctx, "auth.RequestPasswordReset")
	defer span.End()

	ack, err := s.resets.RequestReset(ctx, email)
	s.metrics.ObserveReset("request", KindOf(err), err == nil)
	endSpan(span, err)
	return ack, err
}

// RedeemPasswordReset consumes a reset key and sets a new password.
func (s *Service) RedeemPasswordReset(ctx context.Context, email, key, newPassword string) (Ack, error) {
	ctx, span := s.tracer.Start(ctx, "auth.RedeemPasswordReset")
	defer span.End()

	ack, err := s.resets.RedeemReset(ctx, email, key, newPassword)
	s.metrics.ObserveReset("redeem", KindOf(err), err == nil)
	endSpan(span, err)
	return ack, err
}

// Authenticate verifies a bearer (session id, key) pair.
func (s *Service) Authenticate(ctx context.Context, sessionID ulid.ULID, key string) (*Session, error) {
	return s.issuer.Authenticate(ctx, sessionID, key)
}

func endSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, KindOf(err).String())
}
