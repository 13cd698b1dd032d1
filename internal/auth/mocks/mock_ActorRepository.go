// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/authgate/internal/auth"
)

// MockActorRepository is a testify mock of auth.ActorRepository.
type MockActorRepository struct {
	mock.Mock
}

// NewMockActorRepository creates a mock whose expectations are asserted on test cleanup.
func NewMockActorRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockActorRepository {
	m := &MockActorRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockActorRepository) Create(ctx context.Context, actor *auth.Actor) error {
	args := m.Called(ctx, actor)
	return args.Error(0)
}

func (m *MockActorRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Actor, error) {
	args := m.Called(ctx, id)
	return actorOrNil(args.Get(0)), args.Error(1)
}

func (m *MockActorRepository) GetByUsername(ctx context.Context, username string) (*auth.Actor, error) {
	args := m.Called(ctx, username)
	return actorOrNil(args.Get(0)), args.Error(1)
}

func (m *MockActorRepository) GetByEmail(ctx context.Context, email string) (*auth.Actor, error) {
	args := m.Called(ctx, email)
	return actorOrNil(args.Get(0)), args.Error(1)
}

func (m *MockActorRepository) GetByResetEmail(ctx context.Context, email string, now time.Time) (*auth.Actor, error) {
	args := m.Called(ctx, email, now)
	return actorOrNil(args.Get(0)), args.Error(1)
}

func (m *MockActorRepository) Update(ctx context.Context, id ulid.ULID, patch auth.ActorPatch) error {
	args := m.Called(ctx, id, patch)
	return args.Error(0)
}

func actorOrNil(v any) *auth.Actor {
	if v == nil {
		return nil
	}
	return v.(*auth.Actor)
}
