// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/holomush/authgate/internal/auth"
)

// MockNotifier is a testify mock of auth.Notifier.
type MockNotifier struct {
	mock.Mock
}

// NewMockNotifier creates a mock whose expectations are asserted on test cleanup.
func NewMockNotifier(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockNotifier {
	m := &MockNotifier{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockNotifier) Send(ctx context.Context, email auth.Email) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}
