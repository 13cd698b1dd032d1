// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth decides whether a presented credential grants access.
//
// # Components
//
//   - PasswordHasher - argon2id hashing with legacy bcrypt verification
//   - AttemptTracker - failed-attempt log and brute-force detection
//   - SessionIssuer - session creation and bearer key verification
//   - ResetFlow - two-phase password reset (request, redeem)
//   - Service - the login orchestrator composing all of the above
//
// Collaborators are injected through Dependencies. Persistence lives behind
// the *Repository interfaces (see the memory and postgres subpackages) and
// email delivery behind Notifier.
//
// # Errors
//
// Every caller-visible failure carries an oops code. Use KindOf to classify
// an error and RetryAfter to read the delay attached to a rate-limit error.
// Credential and reset failures use fixed messages that never reveal which
// check failed.
package auth
