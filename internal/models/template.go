package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTemplate marks design validation failures so handlers can
// distinguish them from database errors.
var ErrInvalidTemplate = errors.New("invalid template")

// ElementType identifies the kind of drawable unit inside a template.
type ElementType string

const (
	ElementText             ElementType = "text"
	ElementPlaceholder      ElementType = "placeholder"
	ElementImage            ElementType = "image"
	ElementImagePlaceholder ElementType = "image-placeholder"
	ElementQRCode           ElementType = "qrcode"
)

// Alignment controls horizontal text placement inside an element box.
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// PlaceholderKind distinguishes text slots from image slots.
type PlaceholderKind string

const (
	PlaceholderText  PlaceholderKind = "text"
	PlaceholderImage PlaceholderKind = "image"
)

// Placeholder declares a named slot that the issuance form fills with
// recipient data. Elements reference placeholders by ID.
type Placeholder struct {
	ID    string          `json:"id"`
	Label string          `json:"label"`
	Kind  PlaceholderKind `json:"kind"`
}

// TextAttrs carries the typography settings of text and placeholder
// elements. FontSize is in canvas pixels; the renderer converts to points.
type TextAttrs struct {
	Content    string    `json:"content"`
	FontFamily string    `json:"font_family"`
	FontSize   float64   `json:"font_size"`
	Bold       bool      `json:"bold"`
	Italic     bool      `json:"italic"`
	Underline  bool      `json:"underline"`
	Color      string    `json:"color"`
	Align      Alignment `json:"align"`
}

// ImageAttrs carries the source reference of a static image element.
// URL may be an http(s) URL or an inline data URL.
type ImageAttrs struct {
	URL string `json:"url"`
}

// SlotAttrs binds an image-placeholder element to a declared placeholder.
type SlotAttrs struct {
	PlaceholderID string `json:"placeholder_id"`
}

// Element is one positioned drawable unit. Exactly one of the type-specific
// attribute structs is set, matching Type. X/Y/W/H are in the template's
// pixel coordinate space; Z orders drawing (ascending).
type Element struct {
	ID   string      `json:"id"`
	Type ElementType `json:"type"`
	X    float64     `json:"x"`
	Y    float64     `json:"y"`
	W    float64     `json:"w"`
	H    float64     `json:"h"`
	Z    int         `json:"z"`

	Text  *TextAttrs  `json:"text,omitempty"`
	Image *ImageAttrs `json:"image,omitempty"`
	Slot  *SlotAttrs  `json:"slot,omitempty"`
}

// Template is a named, versioned certificate design. Templates are never
// deleted, only deactivated; every update bumps Version.
type Template struct {
	ID                 uuid.UUID     `json:"id"`
	Name               string        `json:"name"`
	Slug               string        `json:"slug"`
	Width              float64       `json:"width"`
	Height             float64       `json:"height"`
	BackgroundColor    string        `json:"background_color"`
	BackgroundImageURL string        `json:"background_image_url,omitempty"`
	Elements           []Element     `json:"elements"`
	Placeholders       []Placeholder `json:"placeholders"`
	Version            int           `json:"version"`
	IsActive           bool          `json:"is_active"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidateElement checks that an element carries the attributes its type
// requires. Validation happens at the store boundary so the renderer
// never sees a malformed element.
func ValidateElement(e Element) error {
	if e.ID == "" {
		return fmt.Errorf("element missing id")
	}
	if e.W < 0 || e.H < 0 {
		return fmt.Errorf("element %s: negative box size", e.ID)
	}
	switch e.Type {
	case ElementText, ElementPlaceholder:
		if e.Text == nil {
			return fmt.Errorf("element %s: %s element missing text attributes", e.ID, e.Type)
		}
		if e.Text.FontSize <= 0 {
			return fmt.Errorf("element %s: font size must be positive", e.ID)
		}
		if e.Text.Color != "" && !hexColorRe.MatchString(e.Text.Color) {
			return fmt.Errorf("element %s: invalid color %q", e.ID, e.Text.Color)
		}
		switch e.Text.Align {
		case "", AlignLeft, AlignCenter, AlignRight:
		default:
			return fmt.Errorf("element %s: invalid alignment %q", e.ID, e.Text.Align)
		}
	case ElementImage:
		if e.Image == nil || e.Image.URL == "" {
			return fmt.Errorf("element %s: image element missing url", e.ID)
		}
	case ElementImagePlaceholder:
		if e.Slot == nil || e.Slot.PlaceholderID == "" {
			return fmt.Errorf("element %s: image-placeholder element missing placeholder id", e.ID)
		}
	case ElementQRCode:
		// No attributes: the box is filled with a generated code at render time.
	default:
		return fmt.Errorf("element %s: unknown type %q", e.ID, e.Type)
	}
	return nil
}

// Validate checks template-level invariants: positive canvas, valid
// background color, well-formed elements, and at most one QR element.
func (t *Template) Validate() error {
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("template %s: canvas must have positive dimensions", t.Name)
	}
	if t.BackgroundColor != "" && !hexColorRe.MatchString(t.BackgroundColor) {
		return fmt.Errorf("template %s: invalid background color %q", t.Name, t.BackgroundColor)
	}
	qrCount := 0
	seen := make(map[string]bool, len(t.Elements))
	for _, e := range t.Elements {
		if err := ValidateElement(e); err != nil {
			return fmt.Errorf("template %s: %w", t.Name, err)
		}
		if seen[e.ID] {
			return fmt.Errorf("template %s: duplicate element id %s", t.Name, e.ID)
		}
		seen[e.ID] = true
		if e.Type == ElementQRCode {
			qrCount++
		}
	}
	if qrCount > 1 {
		return fmt.Errorf("template %s: at most one qrcode element allowed, got %d", t.Name, qrCount)
	}
	return nil
}

// ParseElements decodes and validates the JSONB element list coming from
// the database or the editor API. Fails fast on malformed input.
func ParseElements(raw []byte) ([]Element, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var elements []Element
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, fmt.Errorf("decode elements: %w", err)
	}
	for _, e := range elements {
		if err := ValidateElement(e); err != nil {
			return nil, err
		}
	}
	return elements, nil
}

// ParsePlaceholders decodes the JSONB placeholder list.
func ParsePlaceholders(raw []byte) ([]Placeholder, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var placeholders []Placeholder
	if err := json.Unmarshal(raw, &placeholders); err != nil {
		return nil, fmt.Errorf("decode placeholders: %w", err)
	}
	for _, p := range placeholders {
		if p.ID == "" {
			return nil, fmt.Errorf("placeholder missing id")
		}
		if p.Kind != PlaceholderText && p.Kind != PlaceholderImage {
			return nil, fmt.Errorf("placeholder %s: invalid kind %q", p.ID, p.Kind)
		}
	}
	return placeholders, nil
}

// QRElement returns the template's QR element, or nil if it has none.
func (t *Template) QRElement() *Element {
	for i := range t.Elements {
		if t.Elements[i].Type == ElementQRCode {
			return &t.Elements[i]
		}
	}
	return nil
}
