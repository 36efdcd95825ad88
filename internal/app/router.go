package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tagstone/tagstone/internal/auth"
	"github.com/tagstone/tagstone/internal/authz"
	"github.com/tagstone/tagstone/internal/categories"
	"github.com/tagstone/tagstone/internal/groups"
	"github.com/tagstone/tagstone/internal/observability"
	"github.com/tagstone/tagstone/internal/permissions"
	"github.com/tagstone/tagstone/internal/users"
	"github.com/tagstone/tagstone/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Engine             *authz.Engine
	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	GroupsHandler      *groups.Handler
	CategoriesHandler  *categories.Handler
	PermissionsHandler *permissions.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Tagstone defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	engine := params.Engine

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", params.AuthHandler.Login)
		r.Post("/logout", params.AuthHandler.Logout)
		r.With(engine.Authenticate).Get("/probe", params.AuthHandler.Probe)
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(engine.Authenticate, engine.WithPermissions)
		r.With(engine.RequireCapability("User", "View")).Get("/", params.UsersHandler.List)
		r.With(engine.RequireCapability("User", "View")).Get("/{id}", params.UsersHandler.Get)
		r.With(engine.RequireCapability("User", "Create")).Post("/", params.UsersHandler.Create)
		r.With(engine.WithUserEditCaps).Patch("/{id}", params.UsersHandler.Update)
		r.With(engine.RequireRemoval).Delete("/{id}", params.UsersHandler.Delete)
	})

	r.Route("/groups", func(r chi.Router) {
		r.Use(engine.Authenticate, engine.WithPermissions)
		r.With(engine.RequireCapability("Group", "View")).Get("/", params.GroupsHandler.List)
		r.With(engine.RequireCapability("Group", "View")).Get("/{id}", params.GroupsHandler.Get)
		r.With(engine.RequireCapability("Group", "Create")).Post("/", params.GroupsHandler.Create)
		r.With(engine.RequireCapability("Group", "Edit")).Patch("/{id}", params.GroupsHandler.Update)
		r.With(engine.RequireCapability("Group", "Delete")).Delete("/{id}", params.GroupsHandler.Delete)
	})

	r.Route("/categories", func(r chi.Router) {
		r.Use(engine.Authenticate, engine.WithPermissions)
		r.With(engine.RequireCategories(authz.ActionView)).Get("/", params.CategoriesHandler.List)
		r.With(engine.RequireCategories(authz.ActionView)).Get("/{id}", params.CategoriesHandler.Get)
		r.With(engine.RequireCapability("Category", "Create")).Post("/", params.CategoriesHandler.Create)
		r.With(engine.RequireCapability("Category", "Edit")).Patch("/{id}", params.CategoriesHandler.Update)
		r.With(engine.RequireCapability("Category", "Delete")).Delete("/{id}", params.CategoriesHandler.Delete)
	})

	r.Route("/permissions", func(r chi.Router) {
		r.Use(engine.Authenticate, engine.WithPermissions)
		r.Get("/", params.PermissionsHandler.List)
		r.Get("/{id}", params.PermissionsHandler.Get)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
