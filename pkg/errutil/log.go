// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at ERROR. Oops errors contribute their code and context;
// other errors are logged as a string.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(ctx, msg, errorAttrs(err)...)
}

// LogBestEffort logs a failed side effect that does not fail the caller.
// The message always reads "best-effort <operation> failed".
func LogBestEffort(ctx context.Context, logger *slog.Logger, operation string, err error, attrs ...any) {
	args := append([]any{"operation", operation}, attrs...)
	args = append(args, errorAttrs(err)...)
	logger.WarnContext(ctx, "best-effort "+operation+" failed", args...)
}

func errorAttrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err.Error()}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if c := oopsErr.Context(); len(c) > 0 {
		attrs = append(attrs, "context", c)
	}
	return attrs
}
