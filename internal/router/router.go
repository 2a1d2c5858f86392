// Package router sets up all HTTP routes and middleware chains for the
// certificate platform. It organizes routes into a public group and a
// JWT-protected admin API group.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/raphaelbarrox/certificate-sub000/internal/handlers"
	"github.com/raphaelbarrox/certificate-sub000/internal/middleware"
)

// New creates and returns the configured Chi router with all middleware
// and route groups wired up. jwtSecret verifies tokens minted by the
// hosted platform's auth service.
func New(admin *handlers.Admin, public *handlers.Public, jwtSecret string) chi.Router {
	r := chi.NewRouter()

	// Global middleware — applied to every request.
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	// Health check — no auth.
	r.Get("/health", healthHandler)

	// Public routes — issuance form, verification, download.
	r.Get("/f/{slug}", public.FormPage)
	r.Post("/f/{slug}", public.SubmitForm)
	r.Get("/verify/{number}", public.VerifyPage)
	r.Get("/certificates/{number}/download", public.Download)

	// Admin API — requires a valid platform JWT.
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireAuth(jwtSecret))

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", admin.TemplatesList)
			r.Post("/", admin.TemplateCreate)
			r.Get("/{id}", admin.TemplateGet)
			r.Put("/{id}", admin.TemplateUpdate)
			r.Delete("/{id}", admin.TemplateDeactivate)
			r.Get("/{id}/certificates", admin.TemplateCertificates)
		})

		r.Get("/certificates/{number}", admin.CertificateGet)
		r.Get("/cache/stats", admin.CacheStats)
	})

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
