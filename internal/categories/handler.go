package categories

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tagstone/tagstone/internal/authz"
	"github.com/tagstone/tagstone/internal/identity"
	"github.com/tagstone/tagstone/internal/platform/httpx"
)

// Handler serves category administration endpoints. Reads are scoped by the
// viewable-category set attached by the guard middleware.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the categories handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

type categoryResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func toCategoryResponse(c identity.Category) categoryResponse {
	return categoryResponse{ID: c.ID, Name: c.Name, Description: c.Description}
}

// List returns the caller's viewable categories.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	visible, ok := authz.CategoryScopeFromContext(r.Context())
	if !ok {
		authz.Respond(w, authz.ErrNoCategoryAccess)
		return
	}
	limit, offset := httpx.Pagination(r)
	cats, err := h.service.List(r.Context(), visible, limit, offset)
	if err != nil {
		h.respondError(w, "list categories", err)
		return
	}
	out := make([]categoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategoryResponse(c))
	}
	httpx.JSON(w, http.StatusOK, out)
}

// Get returns one viewable category.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	visible, ok := authz.CategoryScopeFromContext(r.Context())
	if !ok {
		authz.Respond(w, authz.ErrNoCategoryAccess)
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid category id")
		return
	}
	cat, err := h.service.Get(r.Context(), visible, id)
	if err != nil {
		h.respondError(w, "get category", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCategoryResponse(*cat))
}

type createRequest struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Groups      []string `json:"groups"`
}

// Create inserts a category with its generated permissions.
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

	cat, err := h.service.Create(r.Context(), CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Groups:      req.Groups,
	})
	if err != nil {
		h.respondError(w, "create category", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toCategoryResponse(*cat))
}

type updateRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// Update renames a category, cascading into its generated permissions.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid category id")
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := h.service.Update(r.Context(), id, req.Name, req.Description); err != nil {
		h.respondError(w, "update category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete removes a category and its permissions.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid category id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, "delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, identity.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "category not found")
	case errors.Is(err, authz.ErrNoCategoryAccess):
		authz.Respond(w, err)
	default:
		h.logger.Error(op+" failed", slog.String("error", err.Error()))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
