// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks holds testify mocks for the auth repository, hasher and
// notifier interfaces. Keep method sets in sync with package auth.
package mocks
