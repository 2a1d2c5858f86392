// Package render provides HTML template rendering for the public pages:
// the issuance form and the certificate verification page. Templates are
// embedded so the binary ships self-contained.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
)

//go:embed templates/public/*.html
var publicFS embed.FS

// PageData holds all data passed to public templates.
type PageData struct {
	Title string         // Page title for the <title> tag
	Data  map[string]any // Page-specific data
	Error string         // User-visible error message, shown above the form
}

// Renderer handles template parsing and execution for public pages.
type Renderer struct {
	templates map[string]*template.Template
}

// New creates a Renderer by parsing all public templates from the embedded
// filesystem. Each page template is paired with the base layout.
func New() (*Renderer, error) {
	rn := &Renderer{templates: make(map[string]*template.Template)}

	funcMap := template.FuncMap{
		// inputType maps a placeholder id to an HTML input type so the
		// form gets native browser validation for common fields.
		"inputType": func(id string) string {
			switch {
			case strings.Contains(id, "email"):
				return "email"
			case strings.Contains(id, "date") || strings.Contains(id, "birth"):
				return "date"
			default:
				return "text"
			}
		},
	}

	entries, err := publicFS.ReadDir("templates/public")
	if err != nil {
		return nil, fmt.Errorf("read embedded templates: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == "base.html" {
			continue
		}

		tmpl, err := template.New("base.html").Funcs(funcMap).ParseFS(
			publicFS, "templates/public/base.html", "templates/public/"+name,
		)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		rn.templates[strings.TrimSuffix(name, ".html")] = tmpl
	}

	return rn, nil
}

// Page renders a full public page into the response. Template errors are
// reported as a 500 without leaking template internals.
func (rn *Renderer) Page(w http.ResponseWriter, name string, data *PageData) {
	html, err := rn.HTML(name, data)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

// HTML renders a page into a byte slice. The verification handler uses
// this form so the rendered page can be cached before writing it out.
func (rn *Renderer) HTML(name string, data *PageData) ([]byte, error) {
	tmpl, ok := rn.templates[name]
	if !ok {
		return nil, fmt.Errorf("template %q not found", name)
	}
	if data == nil {
		data = &PageData{}
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		return nil, fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
