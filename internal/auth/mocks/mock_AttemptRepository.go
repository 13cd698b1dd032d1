// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/holomush/authgate/internal/auth"
)

// MockAttemptRepository is a testify mock of auth.AttemptRepository.
type MockAttemptRepository struct {
	mock.Mock
}

// NewMockAttemptRepository creates a mock whose expectations are asserted on test cleanup.
func NewMockAttemptRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockAttemptRepository {
	m := &MockAttemptRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockAttemptRepository) Insert(ctx context.Context, attempt *auth.AuthAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockAttemptRepository) CountSince(ctx context.Context, origin, actor string, since time.Time) (auth.AttemptCounts, error) {
	args := m.Called(ctx, origin, actor, since)
	return args.Get(0).(auth.AttemptCounts), args.Error(1)
}
