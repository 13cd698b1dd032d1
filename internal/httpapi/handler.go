// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/oklog/ulid/v2"

	"github.com/holomush/authgate/internal/auth"
)

const maxBodyBytes = 64 << 10

// AuthService is the part of *auth.Service the HTTP layer calls.
type AuthService interface {
	Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error)
	LoginAdmin(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error)
	RequestPasswordReset(ctx context.Context, email string) (auth.Ack, error)
	RedeemPasswordReset(ctx context.Context, email, key, newPassword string) (auth.Ack, error)
	Authenticate(ctx context.Context, sessionID ulid.ULID, key string) (*auth.Session, error)
}

var _ AuthService = (*auth.Service)(nil)

// Options configures the router.
type Options struct {
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	Logger     *slog.Logger
}

type handler struct {
	svc    AuthService
	logger *slog.Logger
}

// NewRouter returns the auth HTTP routes.
func NewRouter(svc AuthService, opts Options) http.Handler {
	h := &handler{svc: svc, logger: opts.Logger}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Route("/login", func(r chi.Router) {
		r.Post("/", h.login)
		r.Post("/admin", h.loginAdmin)
		r.Post("/forgot", h.forgot)
		r.Post("/reset", h.reset)
	})
	r.Get("/session", h.session)
	return r
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	*auth.LoginResult
	AuthHeader string `json:"authHeader"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Email    string `json:"email"`
	Key      string `json:"key"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Session *auth.Session `json:"session"`
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	h.doLogin(w, r, h.svc.Login)
}

func (h *handler) loginAdmin(w http.ResponseWriter, r *http.Request) {
	h.doLogin(w, r, h.svc.LoginAdmin)
}

func (h *handler) doLogin(w http.ResponseWriter, r *http.Request,
	login func(context.Context, auth.LoginRequest) (*auth.LoginResult, error),
) {
	var body loginRequest
	if !decode(w, r, &body) {
		return
	}
	if body.Username == "" || body.Password == "" {
		badRequest(w, r, "username and password are required")
		return
	}

	result, err := login(r.Context(), auth.LoginRequest{
		Origin:   clientOrigin(r),
		Username: body.Username,
		Password: body.Password,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.JSON(w, r, loginResponse{
		LoginResult: result,
		AuthHeader:  BasicAuthHeader(result.Session),
	})
}

func (h *handler) forgot(w http.ResponseWriter, r *http.Request) {
	var body forgotRequest
	if !decode(w, r, &body) {
		return
	}
	if err := auth.ValidateEmail(auth.NormalizeEmail(body.Email)); err != nil {
		badRequest(w, r, "a valid email is required")
		return
	}

	ack, err := h.svc.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, ack)
}

func (h *handler) reset(w http.ResponseWriter, r *http.Request) {
	var body resetRequest
	if !decode(w, r, &body) {
		return
	}
	if err := auth.ValidateEmail(auth.NormalizeEmail(body.Email)); err != nil {
		badRequest(w, r, "a valid email is required")
		return
	}
	if body.Key == "" || body.Password == "" {
		badRequest(w, r, "key and password are required")
		return
	}

	ack, err := h.svc.RedeemPasswordReset(r.Context(), body.Email, body.Key, body.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, ack)
}

func (h *handler) session(w http.ResponseWriter, r *http.Request) {
	id, key, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="authgate"`)
		badRequest(w, r, "basic authorization header is required")
		return
	}

	// A malformed id is indistinguishable from an unknown one.
	sessionID, err := ulid.ParseStrict(id)
	if err != nil {
		sessionID = ulid.ULID{}
	}

	session, err := h.svc.Authenticate(r.Context(), sessionID, key)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, sessionResponse{Session: session})
}

// BasicAuthHeader returns the Authorization value that presents session.
func BasicAuthHeader(session *auth.Session) string {
	credentials := session.ID.String() + ":" + session.Key
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := render.DecodeJSON(r.Body, v); err != nil {
		badRequest(w, r, "unable to parse request body")
		return false
	}
	return true
}

// clientOrigin is the address failed attempts are attributed to.
func clientOrigin(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
