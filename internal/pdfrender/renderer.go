// Package pdfrender turns a certificate template plus resolved recipient
// values into a single-page PDF. It is synchronous and does no I/O: every
// remote image must already be resolved to a data URL by the image cache
// before Render is called.
package pdfrender

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/raphaelbarrox/certificate-sub000/internal/layout"
	"github.com/raphaelbarrox/certificate-sub000/internal/models"
	"github.com/raphaelbarrox/certificate-sub000/internal/placeholder"
)

// Assets holds pre-resolved binary resources for one render: remote image
// URLs mapped to data URLs, and the generated QR code (if the template has
// a QR element).
type Assets struct {
	Images    map[string]string // source URL → data URL
	QRDataURL string
}

// Warning records one element that degraded instead of failing the
// document. Callers and tests can assert on these instead of scraping logs.
type Warning struct {
	ElementID string `json:"element_id"`
	Reason    string `json:"reason"`
}

// Outcome is the result of a render: the PDF bytes plus any per-element
// degradations that occurred along the way.
type Outcome struct {
	PDF      []byte    `json:"-"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// creationDate is fixed so two renders of identical inputs are
// byte-identical, which the PDF cache relies on.
var creationDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Render draws the template onto a single page sized to the canvas
// (pixels converted to points) and returns the PDF buffer. Drawing order:
// background color, background image, elements in ascending z-order.
// A failing element is recorded as a warning and skipped; only a broken
// page setup or PDF serialization fails the whole render.
func Render(tmpl *models.Template, values map[string]string, assets Assets) (*Outcome, error) {
	if tmpl.Width <= 0 || tmpl.Height <= 0 {
		return nil, fmt.Errorf("render: canvas must have positive dimensions")
	}

	pageW := tmpl.Width * layout.PxToPt
	pageH := tmpl.Height * layout.PxToPt

	// Landscape when wider than tall. gofpdf interprets the custom size
	// through the orientation, so the landscape size is passed transposed.
	orientation := "P"
	size := gofpdf.SizeType{Wd: pageW, Ht: pageH}
	if tmpl.Width > tmpl.Height {
		orientation = "L"
		size = gofpdf.SizeType{Wd: pageH, Ht: pageW}
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: orientation,
		UnitStr:        "pt",
		Size:           size,
	})
	pdf.SetCreationDate(creationDate)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	outcome := &Outcome{}

	// Background fill. Defaults to white so transparent-background
	// templates still produce an opaque page.
	r, g, b := parseHexColor(tmpl.BackgroundColor, 255, 255, 255)
	pdf.SetFillColor(r, g, b)
	pdf.Rect(0, 0, pageW, pageH, "F")

	if tmpl.BackgroundImageURL != "" {
		dataURL := resolveImage(tmpl.BackgroundImageURL, assets)
		if dataURL == "" {
			outcome.warn("background", "background image unresolved")
		} else if err := drawImage(pdf, dataURL, 0, 0, pageW, pageH); err != nil {
			outcome.warn("background", err.Error())
		}
	}

	elements := make([]models.Element, len(tmpl.Elements))
	copy(elements, tmpl.Elements)
	sort.SliceStable(elements, func(i, j int) bool { return elements[i].Z < elements[j].Z })

	for _, el := range elements {
		box := layout.Box{
			X: el.X * layout.PxToPt,
			Y: el.Y * layout.PxToPt,
			W: el.W * layout.PxToPt,
			H: el.H * layout.PxToPt,
		}
		switch el.Type {
		case models.ElementQRCode:
			// No QR supplied is a normal condition (preview renders,
			// templates without verification): skip without a warning.
			if assets.QRDataURL == "" {
				continue
			}
			if err := drawImage(pdf, assets.QRDataURL, box.X, box.Y, box.W, box.H); err != nil {
				outcome.warn(el.ID, err.Error())
			}
		case models.ElementImage:
			dataURL := resolveImage(el.Image.URL, assets)
			if dataURL == "" {
				outcome.warn(el.ID, "image unresolved: "+el.Image.URL)
				continue
			}
			if err := drawImage(pdf, dataURL, box.X, box.Y, box.W, box.H); err != nil {
				outcome.warn(el.ID, err.Error())
			}
		case models.ElementImagePlaceholder:
			ref := values[el.Slot.PlaceholderID]
			if ref == "" {
				// Unfilled photo slots are expected; no warning.
				continue
			}
			dataURL := resolveImage(ref, assets)
			if dataURL == "" {
				outcome.warn(el.ID, "placeholder image unresolved")
				continue
			}
			if err := drawImage(pdf, dataURL, box.X, box.Y, box.W, box.H); err != nil {
				outcome.warn(el.ID, err.Error())
			}
		case models.ElementText, models.ElementPlaceholder:
			drawText(pdf, el, box, values)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render: pdf output: %w", err)
	}
	outcome.PDF = buf.Bytes()
	return outcome, nil
}

func (o *Outcome) warn(elementID, reason string) {
	o.Warnings = append(o.Warnings, Warning{ElementID: elementID, Reason: reason})
}

// resolveImage maps an element's image reference to an embeddable data
// URL: inline data URLs pass through, remote URLs are looked up in the
// pre-resolved asset map.
func resolveImage(ref string, assets Assets) string {
	if strings.HasPrefix(ref, "data:") {
		return ref
	}
	return assets.Images[ref]
}

// drawText substitutes placeholders, wraps the content against the box
// width, and draws each line top-aligned with the element's typography.
func drawText(pdf *gofpdf.Fpdf, el models.Element, box layout.Box, values map[string]string) {
	attrs := el.Text
	family := mapFontFamily(attrs.FontFamily)
	style := fontStyle(attrs)
	size := attrs.FontSize * layout.PxToPt

	pdf.SetFont(family, style, size)
	r, g, b := parseHexColor(attrs.Color, 0, 0, 0)
	pdf.SetTextColor(r, g, b)

	measure := func(s string) float64 { return pdf.GetStringWidth(s) }
	content := placeholder.Substitute(attrs.Content, values)
	lines := layout.Wrap(content, box.W, measure)

	for _, line := range layout.Place(lines, box, size, attrs.Align, measure) {
		// Place returns the top of the line; Text draws at the baseline.
		pdf.Text(line.X, line.Y+size, line.Text)
	}
}

// drawImage registers the decoded data URL payload under a content-derived
// name and draws it scaled into the given box. gofpdf keeps a sticky
// internal error, so registration failures are cleared before returning
// to preserve fault isolation between elements.
func drawImage(pdf *gofpdf.Fpdf, dataURL string, x, y, w, h float64) error {
	imageType, data, err := decodeDataURL(dataURL)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("img-%x", sha256.Sum256(data))
	opts := gofpdf.ImageOptions{ImageType: imageType}
	info := pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if pdf.Err() || info == nil {
		reason := "image registration failed"
		if pdf.Error() != nil {
			reason = pdf.Error().Error()
		}
		pdf.ClearError()
		return fmt.Errorf("embed image: %s", reason)
	}

	pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")
	if pdf.Err() {
		reason := pdf.Error().Error()
		pdf.ClearError()
		return fmt.Errorf("draw image: %s", reason)
	}
	return nil
}

// decodeDataURL splits a data URL into the gofpdf image type and raw bytes.
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
	var imageType string
	switch mediaType {
	case "image/png":
		imageType = "PNG"
	case "image/jpeg", "image/jpg":
		imageType = "JPG"
	case "image/gif":
		imageType = "GIF"
	default:
		return "", nil, fmt.Errorf("unsupported image type %q", mediaType)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode image payload: %w", err)
	}
	return imageType, data, nil
}

// mapFontFamily maps editor font names onto the PDF core fonts. Unknown
// families fall back to Helvetica, the editor's default sans-serif.
func mapFontFamily(family string) string {
	switch strings.ToLower(strings.TrimSpace(family)) {
	case "times", "times new roman", "georgia", "serif":
		return "Times"
	case "courier", "courier new", "monospace":
		return "Courier"
	default:
		return "Helvetica"
	}
}

func fontStyle(attrs *models.TextAttrs) string {
	var style string
	if attrs.Bold {
		style += "B"
	}
	if attrs.Italic {
		style += "I"
	}
	if attrs.Underline {
		style += "U"
	}
	return style
}

// parseHexColor parses a #rrggbb color, falling back to the given default
// on empty or malformed input.
func parseHexColor(s string, dr, dg, db int) (int, int, int) {
	if len(s) != 7 || s[0] != '#' {
		return dr, dg, db
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return dr, dg, db
	}
	return int(v >> 16), int(v >> 8 & 0xff), int(v & 0xff)
}
