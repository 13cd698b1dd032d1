// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/authgate/internal/auth"
)

// MockAccountRepository is a testify mock of auth.AccountRepository.
type MockAccountRepository struct {
	mock.Mock
}

// NewMockAccountRepository creates a mock whose expectations are asserted on test cleanup.
func NewMockAccountRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockAccountRepository {
	m := &MockAccountRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockAccountRepository) Create(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) GetByActorID(ctx context.Context, actorID ulid.ULID) (*auth.Account, error) {
	args := m.Called(ctx, actorID)
	if v := args.Get(0); v != nil {
		return v.(*auth.Account), args.Error(1)
	}
	return nil, args.Error(1)
}
