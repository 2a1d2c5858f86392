package render

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/raphaelbarrox/certificate-sub000/internal/models"
)

func TestNewParsesAllTemplates(t *testing.T) {
	rn, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, name := range []string{"form", "verify", "issued"} {
		if _, ok := rn.templates[name]; !ok {
			t.Errorf("template %q not parsed", name)
		}
	}
}

func TestPageRendersForm(t *testing.T) {
	rn, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := httptest.NewRecorder()
	rn.Page(rec, "form", &PageData{
		Title: "Curso de Go",
		Data: map[string]any{
			"TemplateName": "Curso de Go",
			"Placeholders": []models.Placeholder{
				{ID: "full_name", Label: "Nome completo", Kind: models.PlaceholderText},
				{ID: "photo", Label: "Foto", Kind: models.PlaceholderImage},
			},
			"Values": models.RecipientData{"full_name": "Maria"},
		},
	})

	body := rec.Body.String()
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(body, "<title>Curso de Go</title>") {
		t.Errorf("missing page title")
	}
	if !strings.Contains(body, `value="Maria"`) {
		t.Errorf("text input lost its submitted value")
	}
	if !strings.Contains(body, `type="file"`) {
		t.Errorf("image placeholder did not render a file input")
	}
}

func TestPageEscapesUserData(t *testing.T) {
	rn, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	html, err := rn.HTML("verify", &PageData{
		Title: "Verificação",
		Data: map[string]any{
			"Found":  false,
			"Number": `<script>alert(1)</script>`,
		},
	})
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	if strings.Contains(string(html), "<script>alert(1)</script>") {
		t.Errorf("user data rendered unescaped")
	}
}

func TestHTMLUnknownTemplate(t *testing.T) {
	rn, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := rn.HTML("nope", nil); err == nil {
		t.Fatal("want error for unknown template")
	}
}
