package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/raphaelbarrox/certificate-sub000/internal/models"
)

// CertificateStore handles issued-certificate persistence.
type CertificateStore struct {
	db *sql.DB
}

// NewCertificateStore creates a new CertificateStore.
func NewCertificateStore(db *sql.DB) *CertificateStore {
	return &CertificateStore{db: db}
}

const certificateColumns = `id, number, template_id, data, photo_url,
	pdf_key, pdf_url, issued_at, updated_at`

func scanCertificate(row interface{ Scan(...any) error }) (*models.Certificate, error) {
	c := &models.Certificate{}
	var dataRaw []byte
	err := row.Scan(
		&c.ID, &c.Number, &c.TemplateID, &dataRaw, &c.PhotoURL,
		&c.PDFKey, &c.PDFURL, &c.IssuedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(dataRaw) > 0 {
		if err := json.Unmarshal(dataRaw, &c.Data); err != nil {
			return nil, fmt.Errorf("certificate %s: decode data: %w", c.Number, err)
		}
	}
	return c, nil
}

// Insert creates a certificate row. Called only after the PDF upload
// succeeded, so the row never points at a missing file.
func (s *CertificateStore) Insert(c *models.Certificate) (*models.Certificate, error) {
	data, err := json.Marshal(c.Data)
	if err != nil {
		return nil, fmt.Errorf("encode recipient data: %w", err)
	}
	created, err := scanCertificate(s.db.QueryRow(`
		INSERT INTO certificates (number, template_id, data, photo_url, pdf_key, pdf_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+certificateColumns,
		c.Number, c.TemplateID, data, c.PhotoURL, c.PDFKey, c.PDFURL,
	))
	if err != nil {
		return nil, fmt.Errorf("insert certificate: %w", err)
	}
	return created, nil
}

// Update replaces the recipient data snapshot and PDF location of an
// existing certificate in one statement (the re-issue path).
func (s *CertificateStore) Update(c *models.Certificate) (*models.Certificate, error) {
	data, err := json.Marshal(c.Data)
	if err != nil {
		return nil, fmt.Errorf("encode recipient data: %w", err)
	}
	updated, err := scanCertificate(s.db.QueryRow(`
		UPDATE certificates SET
			data = $1, photo_url = $2, pdf_key = $3, pdf_url = $4, updated_at = NOW()
		WHERE number = $5
		RETURNING `+certificateColumns,
		data, c.PhotoURL, c.PDFKey, c.PDFURL, c.Number,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update certificate: %w", err)
	}
	return updated, nil
}

// FindByNumber retrieves a certificate by its public number. Returns nil
// if not found.
func (s *CertificateStore) FindByNumber(number string) (*models.Certificate, error) {
	c, err := scanCertificate(s.db.QueryRow(
		`SELECT `+certificateColumns+` FROM certificates WHERE number = $1`, number,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find certificate by number: %w", err)
	}
	return c, nil
}

// FindByTemplateAndData returns the newest certificate issued from a
// template with exactly this recipient-data snapshot, or nil. JSONB
// equality is structural, so key order never matters. The issuance
// pipeline uses this to keep repeat identical submissions idempotent
// instead of minting a second number for the same person and course.
func (s *CertificateStore) FindByTemplateAndData(templateID uuid.UUID, data models.RecipientData) (*models.Certificate, error) {
	enc, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode recipient data: %w", err)
	}
	c, err := scanCertificate(s.db.QueryRow(
		`SELECT `+certificateColumns+` FROM certificates
		 WHERE template_id = $1 AND data = $2::jsonb
		 ORDER BY issued_at DESC LIMIT 1`,
		templateID, enc,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find certificate by data: %w", err)
	}
	return c, nil
}

// ListByTemplate returns the most recent certificates issued from a
// template, newest first.
func (s *CertificateStore) ListByTemplate(templateID uuid.UUID, limit int) ([]models.Certificate, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT `+certificateColumns+` FROM certificates
		 WHERE template_id = $1 ORDER BY issued_at DESC LIMIT $2`,
		templateID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var certs []models.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		certs = append(certs, *c)
	}
	return certs, rows.Err()
}

// Count returns the total number of issued certificates.
func (s *CertificateStore) Count() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM certificates`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count certificates: %w", err)
	}
	return count, nil
}
