// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/auth/mocks"
	"github.com/holomush/authgate/pkg/errutil"
)

type serviceMocks struct {
	actors   *mocks.MockActorRepository
	attempts *mocks.MockAttemptRepository
	sessions *mocks.MockSessionRepository
	accounts *mocks.MockAccountRepository
	hasher   *mocks.MockPasswordHasher
	notifier *mocks.MockNotifier
}

func newServiceMocks(t *testing.T) *serviceMocks {
	t.Helper()
	return &serviceMocks{
		actors:   mocks.NewMockActorRepository(t),
		attempts: mocks.NewMockAttemptRepository(t),
		sessions: mocks.NewMockSessionRepository(t),
		accounts: mocks.NewMockAccountRepository(t),
		hasher:   mocks.NewMockPasswordHasher(t),
		notifier: mocks.NewMockNotifier(t),
	}
}

func (m *serviceMocks) deps() auth.Dependencies {
	return auth.Dependencies{
		Actors:   m.actors,
		Attempts: m.attempts,
		Sessions: m.sessions,
		Accounts: m.accounts,
		Hasher:   m.hasher,
		Notifier: m.notifier,
	}
}

func (m *serviceMocks) service(t *testing.T, opts ...auth.Option) *auth.Service {
	t.Helper()
	svc, err := auth.NewService(m.deps(), opts...)
	require.NoError(t, err)
	return svc
}

// expectSession stubs the hasher and repository for one session issuance.
func (m *serviceMocks) expectSession() {
	m.hasher.On("Hash", mock.MatchedBy(func(s string) bool { return len(s) == 64 })).
		Return("$argon2id$session-key-hash", nil).Once()
	m.sessions.On("Create", mock.Anything, mock.AnythingOfType("*auth.Session")).Return(nil).Once()
}

const storedHash = "$argon2id$v=19$m=65536,t=1,p=4$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA"

func activeActor() *auth.Actor {
	return &auth.Actor{
		ID:           ulid.Make(),
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: storedHash,
		Roles:        []string{"user"},
		Active:       true,
	}
}

func TestNewService_NilDependencies(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*auth.Dependencies)
		expectError string
	}{
		{"nil actors", func(d *auth.Dependencies) { d.Actors = nil }, "actor repository is required"},
		{"nil attempts", func(d *auth.Dependencies) { d.Attempts = nil }, "attempt repository is required"},
		{"nil sessions", func(d *auth.Dependencies) { d.Sessions = nil }, "sessions repository is required"},
		{"nil accounts", func(d *auth.Dependencies) { d.Accounts = nil }, "account repository is required"},
		{"nil hasher", func(d *auth.Dependencies) { d.Hasher = nil }, "password hasher is required"},
		{"nil notifier", func(d *auth.Dependencies) { d.Notifier = nil }, "notifier is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newServiceMocks(t).deps()
			tt.mutate(&deps)

			svc, err := auth.NewService(deps)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestNewService_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  auth.Option
	}{
		{"nil logger", auth.WithLogger(nil)},
		{"nil clock", auth.WithClock(nil)},
		{"nil metrics", auth.WithMetrics(nil)},
		{"negative ttl", auth.WithResetTTL(-time.Second)},
		{"zero window", auth.WithAbusePolicy(auth.AbusePolicy{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewService(newServiceMocks(t).deps(), tt.opt)
			require.Error(t, err)
			assert.Nil(t, svc)
		})
	}
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	req := auth.LoginRequest{Origin: "192.168.1.1", Username: "Alice", Password: "password123"}

	t.Run("successful login returns view, account and session", func(t *testing.T) {
		m := newServiceMocks(t)
		svc := m.service(t)
		actor := activeActor()
		account := &auth.Account{ID: ulid.Make(), ActorID: actor.ID, Name: "Alice's account"}

		m.attempts.On("CountSince", mock.Anything, "192.168.1.1", "alice", mock.Anything).Return(auth.AttemptCounts{}, nil)
		m.actors.On("GetByUsername", mock.Anything, "alice").Return(actor, nil)
		m.hasher.On("Verify", "password123", storedHash).Return(true, nil)
		m.hasher.On("NeedsUpgrade", storedHash).Return(false)
		m.expectSession()
		m.accounts.On("GetByActorID", mock.Anything, actor.ID).Return(account, nil)

		result, err := svc.Login(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, actor.ID, result.Actor.ID)
		assert.Equal(t, "alice", result.Actor.Username)
		assert.Equal(t, []string{"user"}, result.Actor.Roles)
		assert.Equal(t, account, result.Account)
		require.NotNil(t, result.Session)
		assert.Equal(t, actor.ID, result.Session.ActorID)
		assert.Len(t, result.Session.Key, 64)
	})

	t.Run("missing account yields nil account", func(t *testing.T) {
		m := newServiceMocks(t)
		svc := m.service(t)
		actor := activeActor()

		m.attempts.On("CountSince", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(auth.AttemptCounts{}, nil)
		m.actors.On("GetByUsername", mock.Anything, "alice").Return(actor, nil)
		m.hasher.On("Verify", "password123", storedHash).Return(true, nil)
		m.hasher.On("NeedsUpgrade", storedHash).Return(false)
		m.expectSession()
		m.accounts.On("GetByActorID", mock.Anything, actor.ID).Return(nil, auth.ErrNotFound)

		result, err := svc.Login(ctx, req)
		require.NoError(t, err)
		assert.Nil(t, result.Account)
		assert.NotNil(t, result.Session)
	})

	t.Run("account lookup failure fails the login", func(t *testing.T) {
		m := newServiceMocks(t)
		svc := m.service(t)
		actor := activeActor()

		m.attempts.On("CountSince", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(auth.AttemptCounts{}, nil)
		m.actors.On("GetByUsername", mock.Anything, "alice").Return(actor, nil)
		m.hasher.On("Verify", "password123", storedHash).Return(true, nil)
		m.hasher.On("NeedsUpgrade", storedHash).Return(false)
		m.accounts.On("GetByActorID", mock.Anything, actor.ID).Return(nil, errors.New("connection reset"))

		_, err := svc.Login(ctx, req)
		errutil.AssertErrorCode(t, err, auth.CodeStoreFailed)
		m.hasher.AssertNotCalled(t, "Hash", mock.Anything)
		m.sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("admin login never looks up the account", func(t *testing.T) {
		m := newServiceMocks(t)
		svc := m.service(t)
		actor := activeActor()

		m.attempts.On("CountSince", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(auth.AttemptCounts{}, nil)
		m.actors.On("GetByUsername", mock.Anything, "alice").Return(actor, nil)
		m.hasher.On("Verify", "password123", storedHash).Return(true, nil)
		m.hasher.On("NeedsUpgrade", storedHash).Return(false)
		m.expectSession()

		result, err := svc.LoginAdmin(ctx, req)
		require.NoError(t, err)
		assert.Nil(t, result.Account)
		m.accounts.AssertNotCalled(t, "GetByActorID", mock.Anything, mock.Anything)
	})

	t.Run("rate limit short-circuits before credential lookup", func(t *testing.T) {
		for _, variant := range []string{auth.VariantStandard, auth.VariantAdmin} {
			t.Run(variant, func(t *testing.T) {
				m := newServiceMocks(t)
				svc := m.service(t)

				m.attempts.On("CountSince", mock.Anything, "192.168.1.1", "alice", mock.Anything).
					Return(auth.AttemptCounts{OriginActor: 7, Origin: 7, Actor: 7}, nil)

				var err error
				if variant == auth.VariantAdmin {
					_, err = svc.LoginAdmin(ctx, req)
				} else {
					_, err = svc.Login(ctx, req)
				}
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, auth.CodeRateLimited)
				assert.Equal(t, auth.KindRateLimit, auth.KindOf(err))

				retryAfter, ok := auth.RetryAfter(err)
				require.True(t, ok)
				assert.Equal(t, auth.DefaultAbuseWindow, retryAfter)

				m.actors.AssertNotCalled(t, "GetByUsername", mock.Anything, mock.Anything)
				m.hasher.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
				m.attempts.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("retry-after follows the configured window", func(t *testing.T) {
		m := newServiceMocks(t)
		policy := auth.DefaultAbusePolicy()
		policy.Window = 5 * time.Minute
		svc := m.service(t, auth.WithAbusePolicy(policy))

		m.attempts.On("CountSince", mock.Anything, "192.168.1.1", "alice", mock.Anything).
			Return(auth.AttemptCounts{Actor: policy.MaxPerActor}, nil)

		_, err := svc.Login(ctx, req)
		errutil.AssertErrorCode(t, err, auth.CodeRateLimited)
		retryAfter, ok := auth.RetryAfter(err)
		require.True(t, ok)
		assert.Equal(t, 5*time.Minute, retryAfter)
	})

	t.Run("abuse check failure propagates", func(t *testing.T) {
		m := newServiceMocks(t)
		svc := m.service(t)

		m.attempts.On("CountSince", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(auth.AttemptCounts{}, errors.New("connection refused"))

		_, err := svc.Login(ctx, req)
		errutil.AssertErrorCode(t, err, auth.CodeStoreFailed)
		m.actors.AssertNotCalled(t, "GetByUsername", mock.Anything, mock.Anything)
	})

	t.Run("credential lookup failure propagates without recording an attempt", func(t *testing.T) {
		m := newServiceMocks(t)
		svc := m.service(t)

		m.attempts.On("CountSince", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(auth.AttemptCounts{}, nil)
		m.actors.On("GetByUsername", mock.Anything, "alice").Return(nil, errors.New("connection refused"))

		_, err := svc.Login(ctx, req)
		errutil.AssertErrorCode(t, err, auth.CodeStoreFailed)
		m.attempts.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("session store failure propagates", func(t *testing.T) {
		m := newServiceMocks(t)
		svc := m.service(t)
		actor := activeActor()

		m.attempts.On("CountSince", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(auth.AttemptCounts{}, nil)
		m.actors.On("GetByUsername", mock.Anything, "alice").Return(actor, nil)
		m.hasher.On("Verify", "password123", storedHash).Return(true, nil)
		m.hasher.On("NeedsUpgrade", storedHash).Return(false)
		m.accounts.On("GetByActorID", mock.Anything, actor.ID).Return(nil, auth.ErrNotFound)
		m.hasher.On("Hash", mock.Anything).Return("$argon2id$session-key-hash", nil)
		m.sessions.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))

		_, err := svc.Login(ctx, req)
		errutil.AssertErrorCode(t, err, auth.CodeStoreFailed)
	})
}

func TestService_Login_FailuresAreUniform(t *testing.T) {
	ctx := context.Background()

	type scenario struct {
		name     string
		password string
		setup    func(m *serviceMocks)
	}

	scenarios := []scenario{
		{
			name:     "wrong password",
			password: "wrong",
			setup: func(m *serviceMocks) {
				m.actors.On("GetByUsername", mock.Anything, "alice").Return(activeActor(), nil)
				m.hasher.On("Verify", "wrong", storedHash).Return(false, nil)
			},
		},
		{
			name:     "unknown user verifies against a dummy hash",
			password: "password123",
			setup: func(m *serviceMocks) {
				m.actors.On("GetByUsername", mock.Anything, "alice").Return(nil, auth.ErrNotFound)
				m.hasher.On("Verify", "password123", mock.MatchedBy(func(h string) bool {
					return h != storedHash && h != ""
				})).Return(false, nil).Once()
			},
		},
		{
			name:     "inactive actor with correct password",
			password: "password123",
			setup: func(m *serviceMocks) {
				actor := activeActor()
				actor.Active = false
				m.actors.On("GetByUsername", mock.Anything, "alice").Return(actor, nil)
				m.hasher.On("Verify", "password123", storedHash).Return(true, nil)
			},
		},
		{
			name:     "empty password",
			password: "",
			setup: func(m *serviceMocks) {
				m.actors.On("GetByUsername", mock.Anything, "alice").Return(activeActor(), nil)
				m.hasher.On("Verify", "", storedHash).Return(false, nil)
			},
		},
	}

	var messages []string
	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			m := newServiceMocks(t)
			svc := m.service(t)

			m.attempts.On("CountSince", mock.Anything, "10.0.0.9", "alice", mock.Anything).Return(auth.AttemptCounts{}, nil)
			m.attempts.On("Insert", mock.Anything, mock.MatchedBy(func(a *auth.AuthAttempt) bool {
				return a.Origin == "10.0.0.9" && a.Actor == "alice"
			})).Return(nil).Once()
			sc.setup(m)

			result, err := svc.Login(ctx, auth.LoginRequest{Origin: "10.0.0.9", Username: "alice", Password: sc.password})
			require.Error(t, err)
			assert.Nil(t, result)
			errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
			assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))
			messages = append(messages, err.Error())

			m.attempts.AssertNumberOfCalls(t, "Insert", 1)
			m.sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}

	require.Len(t, messages, len(scenarios))
	for _, msg := range messages[1:] {
		assert.Equal(t, messages[0], msg)
	}
}

func TestService_Login_AttemptInsertFailurePropagates(t *testing.T) {
	ctx := context.Background()
	m := newServiceMocks(t)
	svc := m.service(t)

	m.attempts.On("CountSince", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(auth.AttemptCounts{}, nil)
	m.actors.On("GetByUsername", mock.Anything, "alice").Return(activeActor(), nil)
	m.hasher.On("Verify", "wrong", storedHash).Return(false, nil)
	m.attempts.On("Insert", mock.Anything, mock.Anything).Return(errors.New("read-only transaction"))

	_, err := svc.Login(ctx, auth.LoginRequest{Origin: "10.0.0.9", Username: "alice", Password: "wrong"})
	errutil.AssertErrorCode(t, err, auth.CodeStoreFailed)
}

func TestService_Login_UpgradesLegacyHash(t *testing.T) {
	ctx := context.Background()
	m := newServiceMocks(t)
	svc := m.service(t)

	actor := activeActor()
	actor.PasswordHash = "$2a$10$legacylegacylegacylegacylegacylegacylegacylegacylegac"

	m.attempts.On("CountSince", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(auth.AttemptCounts{}, nil)
	m.actors.On("GetByUsername", mock.Anything, "alice").Return(actor, nil)
	m.hasher.On("Verify", "password123", actor.PasswordHash).Return(true, nil)
	m.hasher.On("NeedsUpgrade", actor.PasswordHash).Return(true)
	m.hasher.On("Hash", "password123").Return("$argon2id$upgraded", nil).Once()
	m.actors.On("Update", mock.Anything, actor.ID, mock.MatchedBy(func(p auth.ActorPatch) bool {
		return p.PasswordHash != nil && *p.PasswordHash == "$argon2id$upgraded" && p.Reset == nil && !p.ClearReset
	})).Return(nil).Once()
	m.expectSession()

	_, err := svc.LoginAdmin(ctx, auth.LoginRequest{Origin: "10.0.0.9", Username: "alice", Password: "password123"})
	require.NoError(t, err)
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()
	m := newServiceMocks(t)
	svc := m.service(t)

	id := ulid.Make()
	m.sessions.On("GetByID", mock.Anything, id).Return(nil, auth.ErrNotFound)

	_, err := svc.Authenticate(ctx, id, "key")
	errutil.AssertErrorCode(t, err, auth.CodeInvalidSession)
}

func TestService_PasswordResetDelegates(t *testing.T) {
	ctx := context.Background()
	m := newServiceMocks(t)
	svc := m.service(t, auth.WithResetTTL(time.Minute))

	m.actors.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, auth.ErrNotFound)
	ack, err := svc.RequestPasswordReset(ctx, "ghost@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Success.", ack.Message)

	m.actors.On("GetByResetEmail", mock.Anything, "ghost@example.com", mock.Anything).Return(nil, auth.ErrNotFound)
	_, err = svc.RedeemPasswordReset(ctx, "ghost@example.com", "key", "new-password")
	errutil.AssertErrorCode(t, err, auth.CodeInvalidReset)
}

type recordingMetrics struct {
	mu     sync.Mutex
	logins []string
	resets []string
}

func (r *recordingMetrics) ObserveLogin(variant string, kind auth.ErrorKind, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, variant+"/"+outcome(kind, ok))
}

func (r *recordingMetrics) ObserveReset(stage string, kind auth.ErrorKind, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets = append(r.resets, stage+"/"+outcome(kind, ok))
}

func outcome(kind auth.ErrorKind, ok bool) string {
	if ok {
		return "ok"
	}
	return kind.String()
}

func TestService_RecordsMetrics(t *testing.T) {
	ctx := context.Background()
	m := newServiceMocks(t)
	metrics := &recordingMetrics{}
	svc := m.service(t, auth.WithMetrics(metrics))

	m.attempts.On("CountSince", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(auth.AttemptCounts{Actor: 20}, nil)
	m.actors.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, auth.ErrNotFound)

	_, _ = svc.Login(ctx, auth.LoginRequest{Origin: "o", Username: "alice", Password: "x"})
	_, _ = svc.LoginAdmin(ctx, auth.LoginRequest{Origin: "o", Username: "alice", Password: "x"})
	_, _ = svc.RequestPasswordReset(ctx, "ghost@example.com")
	_, _ = svc.RedeemPasswordReset(ctx, "ghost@example.com", "key", "")

	assert.Equal(t, []string{"standard/rate_limit", "admin/rate_limit"}, metrics.logins)
	assert.Equal(t, []string{"request/ok", "redeem/validation"}, metrics.resets)
}

func TestService_WithClockDrivesWindowAndExpiry(t *testing.T) {
	ctx := context.Background()
	now, clock := fixedClock()
	m := newServiceMocks(t)
	policy := auth.AbusePolicy{Window: 15 * time.Minute, MaxPerOriginActor: 3}
	svc := m.service(t, auth.WithClock(clock), auth.WithAbusePolicy(policy))

	m.attempts.On("CountSince", mock.Anything, "o", "alice", now.Add(-15*time.Minute)).
		Return(auth.AttemptCounts{OriginActor: 3}, nil)

	_, err := svc.Login(ctx, auth.LoginRequest{Origin: "o", Username: "alice", Password: "x"})
	retryAfter, ok := auth.RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 15*time.Minute, retryAfter)

	m.actors.On("GetByResetEmail", mock.Anything, "alice@example.com", now).Return(nil, auth.ErrNotFound).Once()
	_, err = svc.RedeemPasswordReset(ctx, "alice@example.com", "key", "pw")
	errutil.AssertErrorCode(t, err, auth.CodeInvalidReset)
}

type requestIDKey struct{}

func TestService_RepositoriesReceiveCallerContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), requestIDKey{}, "req-42")
	fromCaller := mock.MatchedBy(func(c context.Context) bool {
		return c.Value(requestIDKey{}) == "req-42"
	})

	t.Run("login", func(t *testing.T) {
		m := newServiceMocks(t)
		svc := m.service(t)
		m.attempts.On("CountSince", fromCaller, "o", "alice", mock.Anything).
			Return(auth.AttemptCounts{OriginActor: auth.DefaultMaxPerOriginActor}, nil).Once()

		_, err := svc.Login(ctx, auth.LoginRequest{Origin: "o", Username: "alice", Password: "pw"})
		errutil.AssertErrorCode(t, err, auth.CodeRateLimited)
	})

	t.Run("reset request", func(t *testing.T) {
		m := newServiceMocks(t)
		svc := m.service(t)
		m.actors.On("GetByEmail", fromCaller, "ghost@example.com").Return(nil, auth.ErrNotFound).Once()

		_, err := svc.RequestPasswordReset(ctx, "ghost@example.com")
		require.NoError(t, err)
	})

	t.Run("reset redeem", func(t *testing.T) {
		m := newServiceMocks(t)
		svc := m.service(t)
		m.actors.On("GetByResetEmail", fromCaller, "ghost@example.com", mock.Anything).Return(nil, auth.ErrNotFound).Once()

		_, err := svc.RedeemPasswordReset(ctx, "ghost@example.com", "key", "new-password")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidReset)
	})
}
