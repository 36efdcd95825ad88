package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/tagstone/tagstone/internal/authz"
	"github.com/tagstone/tagstone/internal/platform/httpx"
)

// Handler serves the login and logout endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	throttle *Throttle
	validate *validator.Validate
}

// NewHandler constructs the auth handler.
func NewHandler(logger *slog.Logger, service *Service, throttle *Throttle) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		throttle: throttle,
		validate: validator.New(),
	}
}

type loginRequest struct {
	Credential  string `json:"credential" validate:"required"`
	AccessToken string `json:"accessToken"`
}

// Login exchanges an identity-provider credential for a session token. The
// optional access token is only consulted when the credential itself is
// rejected. The attempt counter is keyed by the credential and reset on
// success.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := h.throttle.Allow(r.Context(), req.Credential); err != nil {
		if errors.Is(err, ErrTooManyAttempts) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", err.Error())
			return
		}
		h.logger.Error("login throttle failed", slog.String("error", err.Error()))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	result, err := h.service.Login(r.Context(), req.Credential, req.AccessToken)
	if err != nil {
		h.respondLoginError(w, err)
		return
	}

	if err := h.throttle.Reset(r.Context(), req.Credential); err != nil {
		h.logger.Warn("failed to reset login attempts", slog.String("error", err.Error()))
	}
	httpx.JSON(w, http.StatusOK, result)
}

// Logout invalidates the presented bearer token. A missing or unknown token
// is a no-op; logout always succeeds.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := authz.BearerToken(r)
	if err := h.service.Logout(r.Context(), token); err != nil {
		h.logger.Error("logout failed", slog.String("error", err.Error()))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Probe answers 204 for a live bearer token, for clients checking token
// liveness. It sits behind the authentication middleware.
func (h *Handler) Probe(w http.ResponseWriter, r *http.Request) {
	if _, ok := authz.PrincipalFromContext(r.Context()); !ok {
		authz.Respond(w, authz.ErrMissingCredential)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrIdentityRejected):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", ErrIdentityRejected.Error())
	case errors.Is(err, authz.ErrPrincipalBlocked):
		authz.Respond(w, err)
	default:
		h.logger.Error("login failed", slog.String("error", err.Error()))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
