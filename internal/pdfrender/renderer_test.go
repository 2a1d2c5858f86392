package pdfrender

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/raphaelbarrox/certificate-sub000/internal/models"
)

// pngDataURL builds a small solid PNG as a data URL for embedding tests.
func pngDataURL(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 20, G: 40, B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// scenarioTemplate is the 1200×850 end-to-end template: white background,
// one text element, one QR element.
func scenarioTemplate() *models.Template {
	return &models.Template{
		Name:            "scenario",
		Width:           1200,
		Height:          850,
		BackgroundColor: "#ffffff",
		Elements: []models.Element{
			{
				ID: "el-text", Type: models.ElementText,
				X: 100, Y: 200, W: 300, H: 50,
				Text: &models.TextAttrs{
					Content:  "Aluno: {{student_name}}",
					FontSize: 24,
					Color:    "#000000",
					Align:    models.AlignLeft,
				},
			},
			{
				ID: "el-qr", Type: models.ElementQRCode,
				X: 1050, Y: 700, W: 100, H: 100,
			},
		},
	}
}

func TestRenderScenario(t *testing.T) {
	tmpl := scenarioTemplate()
	values := map[string]string{"student_name": "Maria Souza", "certificate_id": "CERT-123"}
	assets := Assets{QRDataURL: pngDataURL(t, 32, 32)}

	outcome, err := Render(tmpl, values, assets)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(outcome.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", outcome.Warnings)
	}
	if !bytes.HasPrefix(outcome.PDF, []byte("%PDF")) {
		t.Fatalf("output is not a PDF")
	}
	// Canvas pixels convert to points at 3/4: 1200×850 px → 900×637.5 pt.
	if !bytes.Contains(outcome.PDF, []byte("900.00 637.50")) {
		t.Errorf("page MediaBox does not match 1200x850px canvas")
	}
}

func TestRenderIdempotent(t *testing.T) {
	tmpl := scenarioTemplate()
	values := map[string]string{"student_name": "Maria Souza"}
	assets := Assets{QRDataURL: pngDataURL(t, 32, 32)}

	first, err := Render(tmpl, values, assets)
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	second, err := Render(tmpl, values, assets)
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if !bytes.Equal(first.PDF, second.PDF) {
		t.Errorf("identical inputs produced different PDFs (%d vs %d bytes)", len(first.PDF), len(second.PDF))
	}
}

func TestRenderFaultIsolation(t *testing.T) {
	tmpl := scenarioTemplate()
	// An image element whose URL was never resolved must degrade, not abort.
	tmpl.Elements = append(tmpl.Elements, models.Element{
		ID: "el-broken", Type: models.ElementImage,
		X: 10, Y: 10, W: 50, H: 50,
		Image: &models.ImageAttrs{URL: "https://unreachable.example/logo.png"},
	})

	outcome, err := Render(tmpl, map[string]string{"student_name": "Ana"}, Assets{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(outcome.PDF, []byte("%PDF")) {
		t.Fatalf("degraded render did not produce a PDF")
	}

	var found bool
	for _, w := range outcome.Warnings {
		if w.ElementID == "el-broken" {
			found = true
		}
	}
	if !found {
		t.Errorf("broken image element not reported in warnings: %v", outcome.Warnings)
	}
}

func TestRenderQRSkippedSilently(t *testing.T) {
	tmpl := scenarioTemplate()
	// No QR supplied: the QR element is skipped without a warning.
	outcome, err := Render(tmpl, map[string]string{"student_name": "Ana"}, Assets{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, w := range outcome.Warnings {
		if w.ElementID == "el-qr" {
			t.Errorf("missing QR must be skipped silently, got warning %v", w)
		}
	}
}

func TestRenderImagePlaceholder(t *testing.T) {
	tmpl := scenarioTemplate()
	tmpl.Elements = append(tmpl.Elements, models.Element{
		ID: "el-photo", Type: models.ElementImagePlaceholder,
		X: 500, Y: 100, W: 120, H: 160,
		Slot: &models.SlotAttrs{PlaceholderID: "photo"},
	})

	// Filled slot embeds the image.
	values := map[string]string{"student_name": "Ana", "photo": pngDataURL(t, 16, 16)}
	outcome, err := Render(tmpl, values, Assets{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, w := range outcome.Warnings {
		if w.ElementID == "el-photo" {
			t.Errorf("filled photo slot warned: %v", w)
		}
	}

	// Empty slot is skipped quietly.
	outcome, err = Render(tmpl, map[string]string{"student_name": "Ana"}, Assets{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, w := range outcome.Warnings {
		if w.ElementID == "el-photo" {
			t.Errorf("empty photo slot warned: %v", w)
		}
	}
}

func TestRenderPortraitOrientation(t *testing.T) {
	tmpl := scenarioTemplate()
	tmpl.Width, tmpl.Height = 850, 1200

	outcome, err := Render(tmpl, nil, Assets{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	// 850×1200 px → 637.5×900 pt.
	if !bytes.Contains(outcome.PDF, []byte("637.50 900.00")) {
		t.Errorf("portrait MediaBox does not match canvas")
	}
}

func TestRenderRejectsEmptyCanvas(t *testing.T) {
	tmpl := &models.Template{Width: 0, Height: 850}
	if _, err := Render(tmpl, nil, Assets{}); err == nil {
		t.Fatal("expected error for zero-width canvas")
	}
}

func TestDecodeDataURL(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("fake"))

	imageType, data, err := decodeDataURL("data:image/png;base64," + payload)
	if err != nil {
		t.Fatalf("decodeDataURL: %v", err)
	}
	if imageType != "PNG" || string(data) != "fake" {
		t.Errorf("got (%q, %q)", imageType, data)
	}

	if _, _, err := decodeDataURL("https://example.com/a.png"); err == nil {
		t.Error("expected error for non-data URL")
	}
	if _, _, err := decodeDataURL("data:image/webp;base64," + payload); err == nil {
		t.Error("expected error for unsupported media type")
	}
	if !strings.Contains(pngDataURL(t, 2, 2), "data:image/png;base64,") {
		t.Error("fixture helper broken")
	}
}

func TestParseHexColor(t *testing.T) {
	r, g, b := parseHexColor("#1a2b3c", 9, 9, 9)
	if r != 0x1a || g != 0x2b || b != 0x3c {
		t.Errorf("parseHexColor = %d,%d,%d", r, g, b)
	}
	r, g, b = parseHexColor("", 1, 2, 3)
	if r != 1 || g != 2 || b != 3 {
		t.Errorf("default fallback broken: %d,%d,%d", r, g, b)
	}
	r, g, b = parseHexColor("#zzzzzz", 4, 5, 6)
	if r != 4 || g != 5 || b != 6 {
		t.Errorf("malformed fallback broken: %d,%d,%d", r, g, b)
	}
}
