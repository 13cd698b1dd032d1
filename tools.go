// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build tools

// Package main pins test tooling to go.mod.
package main

import (
	// Integration suites (go test -tags=integration or the ginkgo CLI)
	_ "github.com/onsi/ginkgo/v2/ginkgo"
	_ "github.com/onsi/gomega"

	// Unit tests and generated mocks
	_ "github.com/stretchr/testify/mock"
)
