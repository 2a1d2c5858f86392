// Package handlers contains the HTTP handlers for the certificate
// platform. Handlers are grouped by concern (admin API, public pages)
// and receive their dependencies through the handler struct.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/raphaelbarrox/certificate-sub000/internal/cache"
	"github.com/raphaelbarrox/certificate-sub000/internal/models"
	"github.com/raphaelbarrox/certificate-sub000/internal/store"
)

// Admin groups the JSON API handlers used by the hosted template editor.
// All routes behind this group require a valid platform JWT.
type Admin struct {
	templateStore *store.TemplateStore
	certStore     *store.CertificateStore
	imageCache    *cache.ImageCache
	pdfCache      *cache.PDFCache
	qrCache       *cache.QRCache
}

// NewAdmin creates the admin API handler group.
func NewAdmin(
	templateStore *store.TemplateStore,
	certStore *store.CertificateStore,
	imageCache *cache.ImageCache,
	pdfCache *cache.PDFCache,
	qrCache *cache.QRCache,
) *Admin {
	return &Admin{
		templateStore: templateStore,
		certStore:     certStore,
		imageCache:    imageCache,
		pdfCache:      pdfCache,
		qrCache:       qrCache,
	}
}

// TemplatesList returns all templates, active and inactive.
func (a *Admin) TemplatesList(w http.ResponseWriter, r *http.Request) {
	templates, err := a.templateStore.List()
	if err != nil {
		slog.Error("list templates failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

// TemplateGet returns one template by ID.
func (a *Admin) TemplateGet(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := a.loadTemplate(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, tmpl)
}

// TemplateCreate stores a new template design.
func (a *Admin) TemplateCreate(w http.ResponseWriter, r *http.Request) {
	var tmpl models.Template
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := a.templateStore.Create(&tmpl)
	if err != nil {
		if isValidation(err) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.Error("create template failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// TemplateUpdate replaces a template's design, bumps its version, and
// drops every cached PDF rendered from the old design. Stale remote
// images are evicted at the same time so the next render refetches them.
func (a *Admin) TemplateUpdate(w http.ResponseWriter, r *http.Request) {
	existing, ok := a.loadTemplate(w, r)
	if !ok {
		return
	}

	var tmpl models.Template
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	tmpl.ID = existing.ID

	updated, err := a.templateStore.Update(&tmpl)
	if err != nil {
		if isValidation(err) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.Error("update template failed", "error", err, "id", existing.ID)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if updated == nil {
		respondError(w, http.StatusNotFound, "template not found")
		return
	}

	a.pdfCache.InvalidateTemplate(existing.ID.String())
	if evicted := a.imageCache.InvalidateStale(cache.StaleImageAge); evicted > 0 {
		slog.Info("stale images evicted on template update", "count", evicted)
	}

	respondJSON(w, http.StatusOK, updated)
}

// TemplateDeactivate hides a template from its public URL. Designs are
// never deleted; issued certificates keep pointing at them.
func (a *Admin) TemplateDeactivate(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := a.loadTemplate(w, r)
	if !ok {
		return
	}

	if err := a.templateStore.SetActive(tmpl.ID, false); err != nil {
		slog.Error("deactivate template failed", "error", err, "id", tmpl.ID)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.pdfCache.InvalidateTemplate(tmpl.ID.String())
	w.WriteHeader(http.StatusNoContent)
}

// TemplateCertificates lists the most recent certificates issued from a
// template. The limit query parameter defaults to 100.
func (a *Admin) TemplateCertificates(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := a.loadTemplate(w, r)
	if !ok {
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	certs, err := a.certStore.ListByTemplate(tmpl.ID, limit)
	if err != nil {
		slog.Error("list certificates failed", "error", err, "template", tmpl.ID)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"certificates": certs})
}

// CertificateGet looks up one certificate by its number.
func (a *Admin) CertificateGet(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	cert, err := a.certStore.FindByNumber(number)
	if err != nil {
		slog.Error("find certificate failed", "error", err, "number", number)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if cert == nil {
		respondError(w, http.StatusNotFound, "certificate not found")
		return
	}
	respondJSON(w, http.StatusOK, cert)
}

// CacheStats reports hit/miss/entry counters for the three render caches.
func (a *Admin) CacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]cache.Stats{
		"images": a.imageCache.Stats(),
		"pdfs":   a.pdfCache.Stats(),
		"qrs":    a.qrCache.Stats(),
	})
}

// loadTemplate resolves the {id} URL parameter to a template, writing the
// appropriate error response when it cannot.
func (a *Admin) loadTemplate(w http.ResponseWriter, r *http.Request) (*models.Template, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid template id")
		return nil, false
	}

	tmpl, err := a.templateStore.FindByID(id)
	if err != nil {
		slog.Error("find template failed", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if tmpl == nil {
		respondError(w, http.StatusNotFound, "template not found")
		return nil, false
	}
	return tmpl, true
}

// isValidation reports whether a store error came from template
// validation rather than the database. Validation errors are wrapped
// with models.ErrInvalidTemplate by the store.
func isValidation(err error) bool {
	return errors.Is(err, models.ErrInvalidTemplate)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
