package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tagstone/tagstone/internal/authz"
	"github.com/tagstone/tagstone/internal/identity"
	"github.com/tagstone/tagstone/internal/platform/httpx"
)

// Handler serves user administration endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the users handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

type groupResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

type userResponse struct {
	ID              int64      `json:"id"`
	PersonID        int64      `json:"personId"`
	Email           string     `json:"email"`
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	Blocked         bool       `json:"blocked"`
	Group           *groupResponse `json:"group"`
	GroupExpiration *time.Time `json:"groupExpiration"`
}

func toUserResponse(d identity.UserDetail) userResponse {
	resp := userResponse{
		ID:              d.User.ID,
		PersonID:        d.Person.ID,
		Email:           d.Person.Email,
		FirstName:       d.Person.FirstName,
		LastName:        d.Person.LastName,
		Blocked:         d.User.Blocked,
		GroupExpiration: d.User.GroupExpiration,
	}
	if d.Group != nil {
		resp.Group = &groupResponse{ID: d.Group.ID, Name: d.Group.Name, Priority: d.Group.Priority}
	}
	return resp
}

// List returns users, ordered by id and optionally paginated.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := httpx.Pagination(r)
	details, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		h.respondError(w, "list users", err)
		return
	}
	out := make([]userResponse, 0, len(details))
	for _, d := range details {
		out = append(out, toUserResponse(d))
	}
	httpx.JSON(w, http.StatusOK, out)
}

// Get returns one user's profile; ?full=true normalizes the direct grants.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	full, _ := strconv.ParseBool(r.URL.Query().Get("full"))

	profile, err := h.service.Get(r.Context(), id, full)
	if err != nil {
		h.respondError(w, "get user", err)
		return
	}
	body := map[string]any{"user": toUserResponse(profile.Detail)}
	if full {
		body["permissions"] = profile.Normalized
	} else {
		body["permissions"] = profile.Permissions
	}
	httpx.JSON(w, http.StatusOK, body)
}

type createRequest struct {
	Email           string     `json:"email" validate:"required,email"`
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	GroupID         *int64     `json:"groupId"`
	GroupExpiration *time.Time `json:"groupExpiration"`
}

// Create provisions a user by hand, ahead of their first login.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		authz.Respond(w, authz.ErrMissingCredential)
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := CreateInput{Email: req.Email, FirstName: req.FirstName, LastName: req.LastName}
	if req.GroupID != nil {
		input.Group = &GroupAssignment{ID: req.GroupID, Expiration: req.GroupExpiration}
	}
	detail, err := h.service.Create(r.Context(), principal, input)
	if err != nil {
		h.respondError(w, "create user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toUserResponse(*detail))
}

type groupAssignmentRequest struct {
	ID         *int64     `json:"id"`
	Expiration *time.Time `json:"expiration"`
}

type updateRequest struct {
	Blocked     *bool                   `json:"blocked"`
	Group       *groupAssignmentRequest `json:"group"`
	Permissions []authz.PermissionView  `json:"permissions"`
}

// Update applies block, group, and permission deltas.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		authz.Respond(w, authz.ErrMissingCredential)
		return
	}
	caps, ok := authz.UserEditCapsFromContext(r.Context())
	if !ok {
		authz.Respond(w, authz.ErrCapabilityDenied)
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}

	input := UpdateInput{Blocked: req.Blocked, Permissions: req.Permissions}
	if req.Group != nil {
		input.Group = &GroupAssignment{ID: req.Group.ID, Expiration: req.Group.Expiration}
	}
	if err := h.service.Update(r.Context(), principal, caps, id, input); err != nil {
		h.respondError(w, "update user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete removes a user.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		authz.Respond(w, authz.ErrMissingCredential)
		return
	}
	caps, ok := authz.UserEditCapsFromContext(r.Context())
	if !ok {
		authz.Respond(w, authz.ErrCapabilityDenied)
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	if err := h.service.Delete(r.Context(), principal, caps, id); err != nil {
		h.respondError(w, "delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, identity.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "user not found")
	case errors.Is(err, authz.ErrCapabilityDenied), errors.Is(err, authz.ErrRankInsufficient):
		authz.Respond(w, err)
	default:
		h.logger.Error(op+" failed", slog.String("error", err.Error()))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
