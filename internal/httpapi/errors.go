// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/render"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/pkg/errutil"
)

const msgInternal = "internal server error"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps an auth error kind to an HTTP status.
func statusFor(kind auth.ErrorKind) int {
	switch kind {
	case auth.KindRateLimit:
		return http.StatusTooManyRequests
	case auth.KindInvalidCredentials, auth.KindInvalidSession:
		return http.StatusUnauthorized
	case auth.KindInvalidReset, auth.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Internal failures are logged and their detail
// withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := auth.KindOf(err)
	status := statusFor(kind)

	body := ErrorResponse{Message: err.Error()}
	if code, ok := auth.Code(err).(string); ok {
		body.Code = code
	}
	if status == http.StatusInternalServerError {
		errutil.LogError(r.Context(), logger, "request failed", err)
		body = ErrorResponse{Code: "INTERNAL", Message: msgInternal}
	}

	if kind == auth.KindRateLimit {
		if d, ok := auth.RetryAfter(err); ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
		}
	}

	render.Status(r, status)
	render.JSON(w, r, body)
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Code: auth.CodeInvalidInput, Message: msg})
}
