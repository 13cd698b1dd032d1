// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/authgate/internal/auth"
)

// cheapParams keep argon2id fast enough for tests that hash in loops.
var cheapParams = auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32}

func newTestHasher(t *testing.T) *auth.Argon2idHasher {
	t.Helper()
	h, err := auth.NewArgon2idHasherWithParams(cheapParams)
	require.NoError(t, err)
	return h
}

// fixedClock returns a clock frozen at a whole-second UTC instant.
func fixedClock() (time.Time, func() time.Time) {
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	return now, func() time.Time { return now }
}

// wrapCode imitates a repository returning a coded error.
func wrapCode(code string, err error) error {
	return oops.Code(code).Wrap(err)
}

func bcryptHash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	return string(b), err
}
