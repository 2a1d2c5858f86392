package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/raphaelbarrox/certificate-sub000/internal/cache"
	"github.com/raphaelbarrox/certificate-sub000/internal/issuance"
	"github.com/raphaelbarrox/certificate-sub000/internal/models"
	"github.com/raphaelbarrox/certificate-sub000/internal/placeholder"
	"github.com/raphaelbarrox/certificate-sub000/internal/render"
	"github.com/raphaelbarrox/certificate-sub000/internal/storage"
	"github.com/raphaelbarrox/certificate-sub000/internal/store"
)

// maxPhotoBytes caps recipient photo uploads.
const maxPhotoBytes = 10 << 20

// downloadLinkTTL is how long a presigned download link stays valid.
const downloadLinkTTL = 15 * time.Minute

// Public groups the public-facing handlers: the issuance form, the
// verification page, and the certificate download redirect.
type Public struct {
	renderer      *render.Renderer
	service       *issuance.Service
	templateStore *store.TemplateStore
	certStore     *store.CertificateStore
	verifyCache   *cache.VerifyPageCache
	storageClient *storage.Client
}

// NewPublic creates the public handler group. storageClient may be nil
// when S3 is not configured; downloads then serve a fresh render instead
// of a presigned redirect.
func NewPublic(
	renderer *render.Renderer,
	service *issuance.Service,
	templateStore *store.TemplateStore,
	certStore *store.CertificateStore,
	verifyCache *cache.VerifyPageCache,
	storageClient *storage.Client,
) *Public {
	return &Public{
		renderer:      renderer,
		service:       service,
		templateStore: templateStore,
		certStore:     certStore,
		verifyCache:   verifyCache,
		storageClient: storageClient,
	}
}

// FormPage renders the issuance form of an active template.
func (p *Public) FormPage(w http.ResponseWriter, r *http.Request) {
	slugParam := chi.URLParam(r, "slug")

	tmpl, err := p.templateStore.FindActiveBySlug(slugParam)
	if err != nil {
		slog.Error("find template by slug failed", "error", err, "slug", slugParam)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if tmpl == nil {
		http.NotFound(w, r)
		return
	}

	p.renderer.Page(w, "form", &render.PageData{
		Title: tmpl.Name,
		Data: map[string]any{
			"TemplateName": tmpl.Name,
			"Placeholders": tmpl.Placeholders,
			"Values":       models.RecipientData{},
		},
	})
}

// SubmitForm handles an issuance submission. Validation failures re-render
// the form with the submitted values and an error message; anything else
// is an internal error.
func (p *Public) SubmitForm(w http.ResponseWriter, r *http.Request) {
	slugParam := chi.URLParam(r, "slug")

	tmpl, err := p.templateStore.FindActiveBySlug(slugParam)
	if err != nil {
		slog.Error("find template by slug failed", "error", err, "slug", slugParam)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if tmpl == nil {
		http.NotFound(w, r)
		return
	}

	req, err := p.parseSubmission(r, tmpl)
	if err != nil {
		p.renderFormError(w, tmpl, models.RecipientData{}, "Envio inválido: "+err.Error())
		return
	}

	result, err := p.service.Issue(r.Context(), *req)
	if err != nil {
		var verr *issuance.ValidationError
		if errors.As(err, &verr) {
			p.renderFormError(w, tmpl, req.Data, verr.Error())
			return
		}
		slog.Error("issuance failed", "error", err, "slug", slugParam)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	cert := result.Certificate
	data := map[string]any{
		"Number":      cert.Number,
		"VerifyURL":   "/verify/" + cert.Number,
		"DownloadURL": "/certificates/" + cert.Number + "/download",
	}
	if email := placeholder.FindEmail(tmpl, req.Data); email != "" {
		data["EmailSentTo"] = email
	}

	p.renderer.Page(w, "issued", &render.PageData{
		Title: "Certificado emitido",
		Data:  data,
	})
}

// parseSubmission extracts placeholder values (and the optional photo)
// from the multipart or urlencoded form body.
func (p *Public) parseSubmission(r *http.Request, tmpl *models.Template) (*issuance.Request, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
			return nil, fmt.Errorf("parse form: %w", err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("parse form: %w", err)
		}
	}

	req := &issuance.Request{
		TemplateSlug:      tmpl.Slug,
		Data:              make(models.RecipientData, len(tmpl.Placeholders)),
		CertificateNumber: strings.TrimSpace(r.FormValue("certificate_number")),
	}

	for _, ph := range tmpl.Placeholders {
		switch ph.Kind {
		case models.PlaceholderText:
			req.Data[ph.ID] = strings.TrimSpace(r.FormValue(ph.ID))
		case models.PlaceholderImage:
			dataURL, err := readPhoto(r, ph.ID)
			if err != nil {
				return nil, err
			}
			req.PhotoDataURL = dataURL
		}
	}
	return req, nil
}

// readPhoto reads an uploaded photo field into a data URL. A missing file
// is not an error; the image slot simply stays empty.
func readPhoto(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if err == http.ErrMissingFile || errors.Is(err, http.ErrNotMultipart) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read photo: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxPhotoBytes+1))
	if err != nil {
		return "", fmt.Errorf("read photo: %w", err)
	}
	if len(raw) > maxPhotoBytes {
		return "", fmt.Errorf("photo exceeds %d MB limit", maxPhotoBytes>>20)
	}
	if len(raw) == 0 {
		return "", nil
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(raw)
	}
	switch contentType {
	case "image/png", "image/jpeg":
	default:
		return "", fmt.Errorf("unsupported photo type %q", contentType)
	}

	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}

func (p *Public) renderFormError(w http.ResponseWriter, tmpl *models.Template, values models.RecipientData, msg string) {
	w.WriteHeader(http.StatusUnprocessableEntity)
	p.renderer.Page(w, "form", &render.PageData{
		Title: tmpl.Name,
		Error: msg,
		Data: map[string]any{
			"TemplateName": tmpl.Name,
			"Placeholders": tmpl.Placeholders,
			"Values":       values,
		},
	})
}

// VerifyPage renders the public verification page for a certificate
// number, serving from the Valkey page cache when possible.
func (p *Public) VerifyPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	number := chi.URLParam(r, "number")

	if cached, ok := p.verifyCache.Get(ctx, number); ok {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(cached)
		return
	}

	cert, err := p.certStore.FindByNumber(number)
	if err != nil {
		slog.Error("find certificate failed", "error", err, "number", number)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if cert == nil {
		w.WriteHeader(http.StatusNotFound)
		p.renderer.Page(w, "verify", &render.PageData{
			Title: "Certificado não encontrado",
			Data:  map[string]any{"Found": false, "Number": number},
		})
		return
	}

	data := map[string]any{
		"Found":       true,
		"Number":      cert.Number,
		"Fields":      verifyFields(cert),
		"IssuedAt":    cert.IssuedAt.Format("02/01/2006"),
		"DownloadURL": "/certificates/" + cert.Number + "/download",
	}

	html, err := p.renderer.HTML("verify", &render.PageData{
		Title: "Verificação de certificado",
		Data:  data,
	})
	if err != nil {
		slog.Error("render verify page failed", "error", err, "number", number)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	p.verifyCache.Set(ctx, number, html)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

// verifyField is one labeled recipient detail shown on the verification page.
type verifyField struct {
	Label string
	Value string
}

// sensitiveFields lists recipient keys that never appear on the public
// verification page.
var sensitiveFields = map[string]bool{
	"cpf":        true,
	"birth_date": true,
	"email":      true,
}

func verifyFields(cert *models.Certificate) []verifyField {
	var fields []verifyField
	// Name first when present, so the page reads naturally.
	if name := cert.Data["full_name"]; name != "" {
		fields = append(fields, verifyField{Label: "Nome", Value: name})
	}
	keys := make([]string, 0, len(cert.Data))
	for key := range cert.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := cert.Data[key]
		if key == "full_name" || value == "" || sensitiveFields[key] {
			continue
		}
		// Photo slots hold an object URL (or an inline data URL in
		// development), never display text.
		if strings.HasPrefix(value, "data:") || strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
			continue
		}
		fields = append(fields, verifyField{Label: labelFor(key), Value: value})
	}
	return fields
}

// labelFor turns a placeholder id into a display label ("course_name" →
// "Course name"). The stored snapshot has ids, not labels.
func labelFor(key string) string {
	label := strings.ReplaceAll(key, "_", " ")
	if label == "" {
		return key
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

// Download hands out the certificate PDF: a redirect to a short-lived
// presigned URL when the file sits in object storage, otherwise a render
// from the stored snapshot served inline.
func (p *Public) Download(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	cert, err := p.certStore.FindByNumber(number)
	if err != nil {
		slog.Error("find certificate failed", "error", err, "number", number)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if cert == nil {
		http.NotFound(w, r)
		return
	}

	if p.storageClient != nil && cert.PDFKey != "" {
		url, err := p.storageClient.PresignedURL(r.Context(), cert.PDFKey, downloadLinkTTL)
		if err != nil {
			slog.Error("presign download failed", "error", err, "number", number)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	pdf, err := p.service.CertificatePDF(r.Context(), number)
	if err != nil {
		slog.Error("render certificate for download failed", "error", err, "number", number)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if pdf == nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", number+".pdf"))
	w.Write(pdf)
}
