package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	httpSwagger "github.com/swaggo/http-swagger"
)

// routes wires middlewares and endpoints. CORS origins come from CORS_ORIGINS.
func (a *App) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.Write(openapiYAML)
	})

	r.Mount("/swagger", httpSwagger.Handler(
		httpSwagger.URL("/api/openapi.yaml"),
	))

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", a.handleHealth)

		api.Post("/auth/register", a.handleRegister)
		api.Post("/auth/login", a.handleLogin)

		api.Get("/reports", a.handleListReports)
		api.Get("/reports/{id}", a.handleGetReport)
		api.Get("/reports/{id}/children", a.handleListChildren)

		api.Group(func(pr chi.Router) {
			pr.Use(a.authMiddleware)
			pr.Get("/me", a.handleMe)
			pr.Get("/auth/profile-stats", a.handleProfileStats)
			pr.Put("/auth/profile", a.handleUpdateProfile)
			pr.Delete("/auth/me", a.handleDeleteMe)

			pr.Post("/reports", a.handleCreateReport)
			pr.Patch("/reports/{id}", a.handleUpdateReport)
			pr.Delete("/reports/{id}", a.handleDeleteReport)

			pr.Route("/votes", func(vr chi.Router) {
				vr.Post("/", a.handleVote)
				vr.Delete("/{reportId}", a.handleUnvote)
				vr.Get("/check/{reportId}", a.handleCheckVote)
			})

			pr.Route("/admin", func(ar chi.Router) {
				ar.Use(a.adminOnly)
				ar.Get("/users", a.handleListUsers)
				ar.Patch("/users/{id}/role", a.handleSetUserRole)
				ar.Patch("/users/{id}/make-admin", a.handleMakeAdmin)
				ar.Delete("/users/{id}", a.handleDeleteUser)
				ar.Post("/clusters/sweep", a.handleClusterSweep)
			})
		})
	})

	return r
}
