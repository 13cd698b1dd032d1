// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify implements auth.Notifier: SMTPNotifier delivers mail via
// go-mail and LogNotifier writes it to the log for development.
package notify
