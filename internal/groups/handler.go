package groups

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

// Handler serves group administration endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the groups handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

type groupResponse struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Priority   int        `json:"priority"`
	Expiration *time.Time `json:"expiration"`
}

func toGroupResponse(g identity.Group) groupResponse {
	return groupResponse{ID: g.ID, Name: g.Name, Priority: g.Priority, Expiration: g.Expiration}
}

// List returns groups ordered by id.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := httpx.Pagination(r)
	groups, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		h.respondError(w, "list groups", err)
		return
	}
	out := make([]groupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, toGroupResponse(g))
	}
	httpx.JSON(w, http.StatusOK, out)
}

// Get returns one group with its grants normalized.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid group id")
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get group", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"group":       toGroupResponse(detail.Group),
		"permissions": detail.Permissions,
	})
}

type createRequest struct {
	Name        string                 `json:"name" validate:"required"`
	Priority    int                    `json:"priority" validate:"required"`
	Expiration  *time.Time             `json:"expiration"`
	Permissions []authz.PermissionView `json:"permissions"`
}

// Create inserts a group.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	group, err := h.service.Create(r.Context(), CreateInput{
		Name:        req.Name,
		Priority:    req.Priority,
		Expiration:  req.Expiration,
		Permissions: req.Permissions,
	})
	if err != nil {
		h.respondError(w, "create group", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toGroupResponse(*group))
}

type updateRequest struct {
	Name        *string                `json:"name"`
	Priority    *int                   `json:"priority"`
	Expiration  *time.Time             `json:"expiration"`
	ClearExpiry bool                   `json:"clearExpiry"`
	Permissions []authz.PermissionView `json:"permissions"`
}

// Update applies group deltas.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid group id")
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}

	err = h.service.Update(r.Context(), id, UpdateInput{
		Name:        req.Name,
		Priority:    req.Priority,
		Expiration:  req.Expiration,
		ClearExpiry: req.ClearExpiry,
		Permissions: req.Permissions,
	})
	if err != nil {
		h.respondError(w, "update group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete removes a group.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid group id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, "delete group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, identity.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "group not found")
	case errors.Is(err, ErrReservedGroup), errors.Is(err, ErrReservedPriority):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op+" failed", slog.String("error", err.Error()))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
