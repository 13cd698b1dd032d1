// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mocks

import "github.com/stretchr/testify/mock"

// MockPasswordHasher is a testify mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock whose expectations are asserted on test cleanup.
func NewMockPasswordHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(secret string) (string, error) {
	args := m.Called(secret)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(secret, hash string) (bool, error) {
	args := m.Called(secret, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	args := m.Called(hash)
	return args.Bool(0)
}
