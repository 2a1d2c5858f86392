package database

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// Seed inserts a demo template for development so the public form and the
// renderer can be exercised without going through the editor first.
// It is a no-op when any template already exists.
func Seed(db *sql.DB) error {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM templates`).Scan(&count); err != nil {
		return fmt.Errorf("seed count templates: %w", err)
	}
	if count > 0 {
		return nil
	}

	elements := `[
		{"id": "title", "type": "text", "x": 100, "y": 120, "w": 1000, "h": 60, "z": 1,
		 "text": {"content": "Certificado de Conclusão", "font_family": "Times", "font_size": 42, "bold": true, "color": "#1a1a2e", "align": "center"}},
		{"id": "student", "type": "placeholder", "x": 100, "y": 300, "w": 1000, "h": 50, "z": 2,
		 "text": {"content": "Certificamos que {{student_name}}", "font_size": 28, "color": "#000000", "align": "center"}},
		{"id": "issued", "type": "text", "x": 100, "y": 420, "w": 1000, "h": 40, "z": 3,
		 "text": {"content": "concluiu o curso em {{issue_date}}. Certificado {{certificate_id}}", "font_size": 18, "color": "#444444", "align": "center"}},
		{"id": "qr", "type": "qrcode", "x": 1040, "y": 690, "w": 120, "h": 120, "z": 4}
	]`
	placeholders := `[
		{"id": "student_name", "label": "Nome completo", "kind": "text"},
		{"id": "student_email", "label": "E-mail", "kind": "text"}
	]`

	_, err := db.Exec(`
		INSERT INTO templates (name, slug, width, height, background_color, elements, placeholders)
		VALUES ('Demo Certificate', 'demo', 1200, 850, '#ffffff', $1::jsonb, $2::jsonb)
	`, elements, placeholders)
	if err != nil {
		return fmt.Errorf("seed demo template: %w", err)
	}

	slog.Info("seeded demo template", "slug", "demo")
	return nil
}
