package docpipe

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"
)

// plainBaselineTolerance is how far apart, in points, two glyphs may sit
// vertically and still belong to the same line.
const plainBaselineTolerance = 1.0

// readPDFPlain extracts page text with ledongthuc/pdf, which resolves font
// encodings on its own. Glyphs are grouped into lines by baseline.
func readPDFPlain(data []byte) (pages []string, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	n := r.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, plainPageText(page))
	}
	return pages, nil
}

// plainPageText joins the page's positioned glyphs in content order and
// starts a new line whenever the baseline moves. Content panics on operators
// it cannot interpret; such pages fall back to the unpositioned plain text.
func plainPageText(page pdf.Page) (text string) {
	defer func() {
		if r := recover(); r != nil {
			plain, err := page.GetPlainText(nil)
			if err != nil {
				// Image-only or problematic page.
				text = ""
				return
			}
			text = normalizeLines(plain)
		}
	}()
	return normalizeLines(joinBaselines(page.Content().Text))
}

func joinBaselines(glyphs []pdf.Text) string {
	var sb strings.Builder
	lastY := math.NaN()
	for _, g := range glyphs {
		// TJ arrays end with a synthetic "\n" glyph at the current position.
		s := strings.ReplaceAll(g.S, "\n", " ")
		if s == "" {
			continue
		}
		if sb.Len() > 0 && math.Abs(g.Y-lastY) > plainBaselineTolerance {
			sb.WriteByte('\n')
		}
		sb.WriteString(s)
		lastY = g.Y
	}
	return sb.String()
}
