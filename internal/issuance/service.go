// Package issuance orchestrates certificate creation: it validates a
// submission, resolves template assets, renders (or reuses a cached) PDF,
// persists the result, and triggers the notification email.
package issuance

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelbarrox/certificate-sub000/internal/cache"
	"github.com/raphaelbarrox/certificate-sub000/internal/mailer"
	"github.com/raphaelbarrox/certificate-sub000/internal/models"
	"github.com/raphaelbarrox/certificate-sub000/internal/pdfrender"
	"github.com/raphaelbarrox/certificate-sub000/internal/placeholder"
)

// TemplateSource loads templates (database-backed in production).
type TemplateSource interface {
	FindActiveBySlug(slug string) (*models.Template, error)
	FindByID(id uuid.UUID) (*models.Template, error)
}

// CertificateStore persists issued certificates.
type CertificateStore interface {
	Insert(c *models.Certificate) (*models.Certificate, error)
	Update(c *models.Certificate) (*models.Certificate, error)
	FindByNumber(number string) (*models.Certificate, error)
	FindByTemplateAndData(templateID uuid.UUID, data models.RecipientData) (*models.Certificate, error)
}

// ObjectStore uploads finished PDFs and recipient photos and returns
// their public URLs.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Notifier delivers the best-effort notification email.
type Notifier interface {
	Send(ctx context.Context, msg mailer.Message) (string, error)
}

// Service runs the issuance pipeline. The three render caches are always
// present; storage and notifier may be nil (development without S3/SES).
type Service struct {
	templates TemplateSource
	certs     CertificateStore
	images    *cache.ImageCache
	pdfs      *cache.PDFCache
	qrs       *cache.QRCache
	objects   ObjectStore
	notifier  Notifier
	verify    *cache.VerifyPageCache
	baseURL   string
	now       func() time.Time
}

// New wires an issuance service. baseURL is the public origin used for
// verification links.
func New(
	templates TemplateSource,
	certs CertificateStore,
	images *cache.ImageCache,
	pdfs *cache.PDFCache,
	qrs *cache.QRCache,
	objects ObjectStore,
	notifier Notifier,
	verify *cache.VerifyPageCache,
	baseURL string,
) *Service {
	return &Service{
		templates: templates,
		certs:     certs,
		images:    images,
		pdfs:      pdfs,
		qrs:       qrs,
		objects:   objects,
		notifier:  notifier,
		verify:    verify,
		baseURL:   strings.TrimRight(baseURL, "/"),
		now:       time.Now,
	}
}

// Request is one issuance submission from the public form.
type Request struct {
	TemplateSlug string
	Data         models.RecipientData
	// PhotoDataURL carries a recipient-uploaded photo as a data URL,
	// filling the template's image-placeholder slot (if declared).
	PhotoDataURL string
	// CertificateNumber, when set, requests a re-issue of an existing
	// certificate. The update is honored only when the stored CPF and
	// date of birth match the submitted ones.
	CertificateNumber string
}

// Result is the outcome of a successful issuance.
type Result struct {
	Certificate *models.Certificate
	Warnings    []pdfrender.Warning
	Reissued    bool
	// Repeated marks a submission identical to one already issued: the
	// existing certificate is returned and nothing is re-rendered.
	Repeated bool
}

// ValidationError marks user-correctable input problems. Its text is safe
// to show to end users, unlike internal errors.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// Issue runs the full pipeline. Fatal errors (template missing, required
// fields missing, persistence failures) abort; per-element render
// degradations surface as warnings on the result.
func (s *Service) Issue(ctx context.Context, req Request) (*Result, error) {
	tmpl, err := s.templates.FindActiveBySlug(req.TemplateSlug)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	if tmpl == nil {
		return nil, validationErrorf("form %q not found", req.TemplateSlug)
	}

	if err := s.validateData(tmpl, req); err != nil {
		return nil, err
	}

	data := make(models.RecipientData, len(req.Data)+1)
	for k, v := range req.Data {
		data[k] = v
	}
	photoURL, photoAsset, err := s.storePhoto(ctx, tmpl, req.PhotoDataURL, data)
	if err != nil {
		return nil, err
	}

	// Re-issue is only honored when number, CPF, and date of birth all
	// match the stored certificate; any mismatch falls back to a fresh
	// issuance with a new number.
	existing, err := s.matchReissue(req)
	if err != nil {
		return nil, err
	}
	reissue := existing != nil

	number := req.CertificateNumber
	if !reissue {
		// A submission identical to an already-issued certificate
		// returns that certificate instead of minting a new number.
		// Without this, the cached PDF of the first issuance could be
		// attributed to a certificate it was never rendered for.
		prior, err := s.certs.FindByTemplateAndData(tmpl.ID, data)
		if err != nil {
			return nil, fmt.Errorf("find prior certificate: %w", err)
		}
		if prior != nil {
			s.notify(prior, placeholder.FindEmail(tmpl, data), s.verifyURL(prior.Number))
			return &Result{Certificate: prior, Repeated: true}, nil
		}

		number, err = generateNumber()
		if err != nil {
			return nil, fmt.Errorf("generate certificate number: %w", err)
		}
	}

	verifyURL := s.verifyURL(number)
	values := placeholder.Values(tmpl, data, placeholder.SystemFields{
		IssueDate:       s.now(),
		CertificateID:   number,
		CertificateLink: verifyURL,
	})

	// Re-issue must never serve the previous render.
	if reissue {
		s.pdfs.ForceInvalidate(tmpl.ID.String(), data)
		s.verify.Invalidate(ctx, number)
	}

	pdf, warnings, err := s.renderPDF(ctx, tmpl, number, data, values, photoAsset)
	if err != nil {
		return nil, err
	}

	cert := &models.Certificate{
		Number:     number,
		TemplateID: tmpl.ID,
		Data:       data,
		PhotoURL:   photoURL,
		PDFKey:     "certificates/" + number + ".pdf",
	}

	// Upload first: the certificate row must never point at a missing
	// file, so persistence happens only after a successful upload.
	if s.objects != nil {
		url, err := s.objects.Upload(ctx, cert.PDFKey, "application/pdf", pdf)
		if err != nil {
			return nil, fmt.Errorf("store certificate pdf: %w", err)
		}
		cert.PDFURL = url
	}

	if reissue {
		cert, err = s.certs.Update(cert)
	} else {
		cert, err = s.certs.Insert(cert)
	}
	if err != nil {
		return nil, fmt.Errorf("persist certificate: %w", err)
	}
	if cert == nil {
		return nil, fmt.Errorf("persist certificate: record vanished during re-issue")
	}

	s.notify(cert, values["email"], verifyURL)

	return &Result{
		Certificate: cert,
		Warnings:    warnings,
		Reissued:    reissue,
	}, nil
}

// CertificatePDF returns the rendered PDF of an issued certificate,
// re-rendering from the stored snapshot when the cache has nothing for
// this number. Returns (nil, nil) when the number is unknown. The
// download handler uses this when object storage is absent.
func (s *Service) CertificatePDF(ctx context.Context, number string) ([]byte, error) {
	cert, err := s.certs.FindByNumber(number)
	if err != nil {
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	if cert == nil {
		return nil, nil
	}

	if pdf, cachedNumber := s.pdfs.Get(cert.TemplateID.String(), cert.Data); pdf != nil && cachedNumber == number {
		return pdf, nil
	}

	tmpl, err := s.templates.FindByID(cert.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	if tmpl == nil {
		return nil, fmt.Errorf("certificate %s: template %s missing", number, cert.TemplateID)
	}

	// The stored issue date keeps the re-render identical to the
	// original: the printed date is part of the document.
	values := placeholder.Values(tmpl, cert.Data, placeholder.SystemFields{
		IssueDate:       cert.IssuedAt,
		CertificateID:   number,
		CertificateLink: s.verifyURL(number),
	})

	pdf, _, err := s.renderPDF(ctx, tmpl, number, cert.Data, values, nil)
	return pdf, err
}

// renderPDF runs the cache-aware render: consult the PDF cache (a hit
// counts only when the cached buffer was rendered for this certificate
// number), render on miss, and store the result tagged with the number.
func (s *Service) renderPDF(
	ctx context.Context,
	tmpl *models.Template,
	number string,
	data models.RecipientData,
	values map[string]string,
	photoAsset map[string]string,
) ([]byte, []pdfrender.Warning, error) {
	if pdf, cachedNumber := s.pdfs.Get(tmpl.ID.String(), data); pdf != nil && cachedNumber == number {
		return pdf, nil, nil
	}

	assets := pdfrender.Assets{Images: s.resolveImages(ctx, tmpl, values, photoAsset)}
	if tmpl.QRElement() != nil {
		assets.QRDataURL = s.qrs.Get(s.verifyURL(number), cache.DefaultQROptions())
	}

	outcome, err := pdfrender.Render(tmpl, values, assets)
	if err != nil {
		return nil, nil, fmt.Errorf("render certificate: %w", err)
	}
	for _, w := range outcome.Warnings {
		slog.Warn("certificate element degraded",
			"certificate", number, "element", w.ElementID, "reason", w.Reason)
	}
	s.pdfs.Set(tmpl.ID.String(), data, number, outcome.PDF)
	return outcome.PDF, outcome.Warnings, nil
}

func (s *Service) verifyURL(number string) string {
	return s.baseURL + "/verify/" + number
}

// validateData checks that every declared text placeholder has a value.
// Image slots may stay empty (they degrade to a blank area).
func (s *Service) validateData(tmpl *models.Template, req Request) error {
	for _, p := range tmpl.Placeholders {
		if p.Kind != models.PlaceholderText {
			continue
		}
		if strings.TrimSpace(req.Data[p.ID]) == "" {
			return validationErrorf("field %q is required", p.Label)
		}
	}
	return nil
}

// storePhoto uploads a recipient photo to object storage under a
// content-addressed key and records the resulting URL in the data
// snapshot's image slot. The row then carries a small reference instead
// of megabytes of base64. Without object storage the data URL is kept
// inline (development). The returned asset map pre-resolves the URL for
// the renderer so the upload is never fetched back.
func (s *Service) storePhoto(ctx context.Context, tmpl *models.Template, photoDataURL string, data models.RecipientData) (string, map[string]string, error) {
	if photoDataURL == "" {
		return "", nil, nil
	}
	slot := photoSlot(tmpl)
	if slot == "" {
		return "", nil, nil
	}

	if s.objects == nil {
		data[slot] = photoDataURL
		return "", nil, nil
	}

	contentType, raw, err := decodeDataURL(photoDataURL)
	if err != nil {
		return "", nil, validationErrorf("invalid photo: %v", err)
	}
	ext := ".jpg"
	if contentType == "image/png" {
		ext = ".png"
	}
	key := fmt.Sprintf("photos/%x%s", sha256.Sum256(raw), ext)

	url, err := s.objects.Upload(ctx, key, contentType, raw)
	if err != nil {
		return "", nil, fmt.Errorf("store photo: %w", err)
	}

	data[slot] = url
	return url, map[string]string{url: photoDataURL}, nil
}

// decodeDataURL splits a data URL into its media type and raw payload.
func decodeDataURL(dataURL string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data url")
	}
	mediaType, _, _ := strings.Cut(meta, ";")
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode payload: %w", err)
	}
	return mediaType, raw, nil
}

// matchReissue resolves the re-issue path: a request carrying a
// certificate number updates the stored record only when CPF and date of
// birth match. Returns nil (fresh issuance) on no number or mismatch.
func (s *Service) matchReissue(req Request) (*models.Certificate, error) {
	if req.CertificateNumber == "" {
		return nil, nil
	}
	existing, err := s.certs.FindByNumber(req.CertificateNumber)
	if err != nil {
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	if existing == nil {
		return nil, nil
	}
	if !fieldMatches(existing.Data, req.Data, "cpf") || !fieldMatches(existing.Data, req.Data, "birth_date") {
		return nil, nil
	}
	return existing, nil
}

func fieldMatches(stored, submitted models.RecipientData, key string) bool {
	return stored[key] != "" && stored[key] == submitted[key]
}

// resolveImages fetches every remote image the render will need,
// concurrently with all-settle semantics: one unreachable image never
// cancels the others, and failures simply leave the URL out of the asset
// map (the renderer records the degradation). References already resolved
// by the caller (a just-uploaded photo) are passed through untouched.
func (s *Service) resolveImages(ctx context.Context, tmpl *models.Template, values map[string]string, preResolved map[string]string) map[string]string {
	assets := make(map[string]string, len(preResolved))
	for url, dataURL := range preResolved {
		assets[url] = dataURL
	}

	var urls []string
	for _, url := range collectImageURLs(tmpl, values) {
		if _, ok := assets[url]; !ok {
			urls = append(urls, url)
		}
	}
	if len(urls) == 0 {
		if len(assets) == 0 {
			return nil
		}
		return assets
	}

	type resolved struct {
		url     string
		dataURL string
	}
	results := make(chan resolved, len(urls))
	var wg sync.WaitGroup
	for _, url := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			results <- resolved{url: url, dataURL: s.images.Get(ctx, url)}
		}(url)
	}
	wg.Wait()
	close(results)

	for r := range results {
		if r.dataURL != "" {
			assets[r.url] = r.dataURL
		}
	}
	return assets
}

// collectImageURLs gathers the remote (non-data) image references of a
// template and its filled photo slots, deduplicated.
func collectImageURLs(tmpl *models.Template, values map[string]string) []string {
	seen := make(map[string]bool)
	var urls []string
	add := func(ref string) {
		if ref == "" || strings.HasPrefix(ref, "data:") || seen[ref] {
			return
		}
		seen[ref] = true
		urls = append(urls, ref)
	}

	add(tmpl.BackgroundImageURL)
	for _, el := range tmpl.Elements {
		switch el.Type {
		case models.ElementImage:
			if el.Image != nil {
				add(el.Image.URL)
			}
		case models.ElementImagePlaceholder:
			if el.Slot != nil {
				add(values[el.Slot.PlaceholderID])
			}
		}
	}
	return urls
}

// photoSlot returns the placeholder ID of the template's first image
// slot, or "" if the design has none.
func photoSlot(tmpl *models.Template) string {
	for _, p := range tmpl.Placeholders {
		if p.Kind == models.PlaceholderImage {
			return p.ID
		}
	}
	return ""
}

// notify fires the notification email in the background. Failures are
// logged and never surfaced to the issuance request.
func (s *Service) notify(cert *models.Certificate, to, verifyURL string) {
	if s.notifier == nil || to == "" {
		return
	}

	msg := mailer.Message{
		To:      to,
		Subject: "Seu certificado está pronto",
		HTML: fmt.Sprintf(
			`<p>Seu certificado <strong>%s</strong> está pronto.</p>
<p><a href="%s">Visualizar e baixar certificado</a></p>`,
			cert.Number, verifyURL,
		),
	}

	number := cert.Number
	go func() {
		// Detached from the request: delivery retries outlive the
		// HTTP response on purpose.
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		messageID, err := s.notifier.Send(ctx, msg)
		if err != nil {
			slog.Error("certificate notification failed",
				"certificate", number, "to", to, "error", err)
			return
		}
		slog.Info("certificate notification sent",
			"certificate", number, "message_id", messageID)
	}()
}

// generateNumber builds a certificate number: CERT- plus 10 characters of
// crockford-ish base32 from crypto/rand. The unique index on the
// certificates table is the collision backstop.
func generateNumber() (string, error) {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw[:])
	return "CERT-" + enc[:10], nil
}
