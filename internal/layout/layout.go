// Package layout computes line wrapping and placement for text elements
// so the PDF output matches the visual editor's on-screen rendering.
// Measurement is injected as a callback, so the package has no dependency
// on any particular PDF or font library.
package layout

import (
	"strings"

	"github.com/raphaelbarrox/certificate-sub000/internal/models"
)

// PxToPt converts canvas pixels to PDF points. The editor measures text in
// CSS pixels at 96dpi while PDF points are 1/72in, so one point equals 4/3
// pixels. All box coordinates and font sizes cross this boundary once, in
// the renderer.
const PxToPt = 72.0 / 96.0

// LineHeightFactor is the ratio of line advance to font size. Matches the
// editor's default line-height.
const LineHeightFactor = 1.2

// Measure returns the rendered width of s in the same unit as the
// wrapping width. The renderer passes the PDF library's string-width
// function with the element's font already selected.
type Measure func(s string) float64

// Line is one wrapped line with its horizontal offset relative to the
// element box, already resolved for the element's alignment.
type Line struct {
	Text string
	X    float64
	Y    float64
}

// Wrap splits text into lines no wider than maxWidth using greedy word
// wrapping: a word is appended to the current line if the line still fits,
// otherwise it starts a new line. A single word wider than maxWidth is
// kept whole and overflows, matching the editor. Explicit newlines in the
// input always break.
func Wrap(text string, maxWidth float64, measure Measure) []string {
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		current := words[0]
		for _, word := range words[1:] {
			candidate := current + " " + word
			if measure(candidate) <= maxWidth {
				current = candidate
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		lines = append(lines, current)
	}
	return lines
}

// Place positions wrapped lines inside an element box. Vertical placement
// is top-aligned: the first baseline row starts at the box's y coordinate
// and lines advance by fontSize*LineHeightFactor. (The legacy generator
// centered text vertically; the editor and this renderer agree on
// top-aligned, and one policy is used everywhere.)
//
// All inputs are in the output unit (points); the caller converts box and
// font size from pixels beforehand.
func Place(lines []string, box Box, fontSize float64, align models.Alignment, measure Measure) []Line {
	lineHeight := fontSize * LineHeightFactor
	placed := make([]Line, 0, len(lines))
	for i, text := range lines {
		var x float64
		switch align {
		case models.AlignCenter:
			x = box.X + box.W/2 - measure(text)/2
		case models.AlignRight:
			x = box.X + box.W - measure(text)
		default:
			x = box.X
		}
		placed = append(placed, Line{
			Text: text,
			X:    x,
			Y:    box.Y + float64(i)*lineHeight,
		})
	}
	return placed
}

// Box is an element bounding box in output units.
type Box struct {
	X, Y, W, H float64
}
