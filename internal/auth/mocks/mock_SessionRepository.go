// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/authgate/internal/auth"
)

// MockSessionRepository is a testify mock of auth.SessionRepository.
type MockSessionRepository struct {
	mock.Mock
}

// NewMockSessionRepository creates a mock whose expectations are asserted on test cleanup.
func NewMockSessionRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockSessionRepository {
	m := &MockSessionRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSessionRepository) Create(ctx context.Context, session *auth.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Session, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*auth.Session), args.Error(1)
	}
	return nil, args.Error(1)
}
