// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/holomush/authgate/internal/auth"
)

// LogNotifier writes rendered emails to a logger instead of delivering
// them. It is meant for local development, where the reset key in the log
// is the point.
type LogNotifier struct {
	renderer *Renderer
	logger   *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(renderer *Renderer, logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{renderer: renderer, logger: logger}
}

// Send renders email and logs it at WARN so it is visible at default levels.
func (n *LogNotifier) Send(ctx context.Context, email auth.Email) error {
	rendered, err := n.renderer.Render(email.Template, email.Data)
	if err != nil {
		return err
	}
	n.logger.WarnContext(ctx, "email not delivered (log notifier)",
		"to", email.To,
		"template", email.Template,
		"subject", rendered.Subject,
		"body", rendered.Text)
	return nil
}
