// Package store contains all database access for templates and issued
// certificates. Element and placeholder lists live in JSONB columns and
// are decoded into their typed form at this boundary, so malformed
// designs fail here instead of deep inside the renderer.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/raphaelbarrox/certificate-sub000/internal/models"
)

// TemplateStore handles all template-related database operations.
type TemplateStore struct {
	db *sql.DB
}

// NewTemplateStore creates a new TemplateStore with the given database connection.
func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

const templateColumns = `id, name, slug, width, height, background_color,
	background_image_url, elements, placeholders, version, is_active,
	created_at, updated_at`

// scanTemplate reads one template row and decodes its JSONB columns into
// the validated element/placeholder types.
func scanTemplate(row interface{ Scan(...any) error }) (*models.Template, error) {
	t := &models.Template{}
	var elementsRaw, placeholdersRaw []byte
	err := row.Scan(
		&t.ID, &t.Name, &t.Slug, &t.Width, &t.Height, &t.BackgroundColor,
		&t.BackgroundImageURL, &elementsRaw, &placeholdersRaw, &t.Version,
		&t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.Elements, err = models.ParseElements(elementsRaw); err != nil {
		return nil, fmt.Errorf("template %s: %w", t.ID, err)
	}
	if t.Placeholders, err = models.ParsePlaceholders(placeholdersRaw); err != nil {
		return nil, fmt.Errorf("template %s: %w", t.ID, err)
	}
	return t, nil
}

// List returns all templates ordered by name.
func (s *TemplateStore) List() ([]models.Template, error) {
	rows, err := s.db.Query(`SELECT ` + templateColumns + ` FROM templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []models.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// FindByID retrieves a template by its UUID. Returns nil if not found.
func (s *TemplateStore) FindByID(id uuid.UUID) (*models.Template, error) {
	t, err := scanTemplate(s.db.QueryRow(
		`SELECT `+templateColumns+` FROM templates WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find template by id: %w", err)
	}
	return t, nil
}

// FindActiveBySlug returns the active template behind a public form slug.
// Returns nil if the slug is unknown or the template was deactivated.
func (s *TemplateStore) FindActiveBySlug(slug string) (*models.Template, error) {
	t, err := scanTemplate(s.db.QueryRow(
		`SELECT `+templateColumns+` FROM templates WHERE slug = $1 AND is_active = TRUE`, slug,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find template by slug: %w", err)
	}
	return t, nil
}

// Create inserts a new template after validating its design.
func (s *TemplateStore) Create(t *models.Template) (*models.Template, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidTemplate, err)
	}
	elements, err := json.Marshal(t.Elements)
	if err != nil {
		return nil, fmt.Errorf("encode elements: %w", err)
	}
	placeholders, err := json.Marshal(t.Placeholders)
	if err != nil {
		return nil, fmt.Errorf("encode placeholders: %w", err)
	}

	created, err := scanTemplate(s.db.QueryRow(`
		INSERT INTO templates (name, slug, width, height, background_color,
			background_image_url, elements, placeholders)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+templateColumns,
		t.Name, t.Slug, t.Width, t.Height, t.BackgroundColor,
		t.BackgroundImageURL, elements, placeholders,
	))
	if err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return created, nil
}

// Update modifies a template's design and increments its version. The
// caller is responsible for invalidating render caches afterwards.
func (s *TemplateStore) Update(t *models.Template) (*models.Template, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidTemplate, err)
	}
	elements, err := json.Marshal(t.Elements)
	if err != nil {
		return nil, fmt.Errorf("encode elements: %w", err)
	}
	placeholders, err := json.Marshal(t.Placeholders)
	if err != nil {
		return nil, fmt.Errorf("encode placeholders: %w", err)
	}

	updated, err := scanTemplate(s.db.QueryRow(`
		UPDATE templates SET
			name = $1, width = $2, height = $3, background_color = $4,
			background_image_url = $5, elements = $6, placeholders = $7,
			version = version + 1, updated_at = NOW()
		WHERE id = $8
		RETURNING `+templateColumns,
		t.Name, t.Width, t.Height, t.BackgroundColor,
		t.BackgroundImageURL, elements, placeholders, t.ID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return updated, nil
}

// SetActive toggles a template's availability. Templates are never
// deleted: deactivation hides the public form while keeping issued
// certificates verifiable.
func (s *TemplateStore) SetActive(id uuid.UUID, active bool) error {
	result, err := s.db.Exec(
		`UPDATE templates SET is_active = $1, updated_at = NOW() WHERE id = $2`,
		active, id,
	)
	if err != nil {
		return fmt.Errorf("set template active: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("template not found")
	}
	return nil
}

// Count returns the total number of templates.
func (s *TemplateStore) Count() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM templates`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count templates: %w", err)
	}
	return count, nil
}
