// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"time"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Error codes surfaced by the auth core.
const (
	CodeRateLimited        = "AUTH_RATE_LIMITED"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidReset       = "AUTH_INVALID_RESET"
	CodeInvalidSession     = "SESSION_INVALID"
	CodeHashFailed         = "AUTH_HASH_FAILED"
	CodeInvalidHash        = "AUTH_INVALID_HASH"
	CodeEmptyPassword      = "AUTH_EMPTY_PASSWORD"
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeStoreFailed        = "AUTH_STORE_FAILED"
	CodeNotifyFailed       = "AUTH_NOTIFY_FAILED"
)

// User-facing messages. These never vary with the cause of the failure.
const (
	msgRateLimited        = "maximum number of auth attempts reached, please try again later"
	msgInvalidCredentials = "username and password combination not found or account is inactive"
	msgInvalidReset       = "invalid email or key"
	msgInvalidSession     = "invalid session credentials"
)

// ErrorKind classifies an error returned by the auth core.
type ErrorKind int

// Error kinds, one per class of caller-visible failure.
const (
	KindInternal ErrorKind = iota
	KindRateLimit
	KindInvalidCredentials
	KindInvalidReset
	KindInvalidSession
	KindHashing
	KindValidation
)

// String returns a stable name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindInvalidReset:
		return "invalid_reset"
	case KindInvalidSession:
		return "invalid_session"
	case KindHashing:
		return "hashing"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// KindOf maps an error to its ErrorKind using its oops code.
// Store and notifier failures, and anything without a known code, are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindInternal
	}
	code, _ := Code(err).(string)
	switch code {
	case CodeRateLimited:
		return KindRateLimit
	case CodeInvalidCredentials:
		return KindInvalidCredentials
	case CodeInvalidReset:
		return KindInvalidReset
	case CodeInvalidSession:
		return KindInvalidSession
	case CodeHashFailed, CodeInvalidHash:
		return KindHashing
	case CodeEmptyPassword, CodeInvalidInput:
		return KindValidation
	default:
		return KindInternal
	}
}

// Code returns the oops code carried by err, or nil.
func Code(err error) any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return oopsErr.Code()
}

// RetryAfter returns the retry delay attached to a rate-limit error.
func RetryAfter(err error) (time.Duration, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return 0, false
	}
	d, ok := oopsErr.Context()["retry_after"].(time.Duration)
	return d, ok
}

func rateLimitedError(retryAfter time.Duration) error {
	return oops.Code(CodeRateLimited).
		With("retry_after", retryAfter).
		Errorf(msgRateLimited)
}

func invalidCredentialsError() error {
	return oops.Code(CodeInvalidCredentials).Errorf(msgInvalidCredentials)
}

func invalidResetError() error {
	return oops.Code(CodeInvalidReset).Errorf(msgInvalidReset)
}

func invalidSessionError() error {
	return oops.Code(CodeInvalidSession).Errorf(msgInvalidSession)
}
