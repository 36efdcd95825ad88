package permissions

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tagstone/tagstone/internal/identity"
	"github.com/tagstone/tagstone/internal/platform/httpx"
)

// Handler serves the permission catalogue endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the permissions handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

type permissionResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CategoryID  *int64 `json:"categoryId"`
}

func toPermissionResponse(p identity.Permission) permissionResponse {
	return permissionResponse{ID: p.ID, Name: p.Name, Description: p.Description, CategoryID: p.CategoryID}
}

// List returns the catalogue, normalized unless ?denormalized=true.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := httpx.Pagination(r)
	raw, _ := strconv.ParseBool(r.URL.Query().Get("denormalized"))

	if raw {
		perms, err := h.service.ListRaw(r.Context(), limit, offset)
		if err != nil {
			h.respondError(w, "list permissions", err)
			return
		}
		out := make([]permissionResponse, 0, len(perms))
		for _, p := range perms {
			out = append(out, toPermissionResponse(p))
		}
		httpx.JSON(w, http.StatusOK, out)
		return
	}

	views, err := h.service.ListNormalized(r.Context(), limit, offset)
	if err != nil {
		h.respondError(w, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, views)
}

// Get returns one permission row.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid permission id")
		return
	}
	perm, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPermissionResponse(*perm))
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, identity.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "permission not found")
		return
	}
	h.logger.Error(op+" failed", slog.String("error", err.Error()))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
