package docpipe

import (
	"bytes"
	"context"
	_ "embed"
	"strings"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
)

// DejaVu Sans Condensed covers Latin (Vietnamese included), Greek and
// Cyrillic. fpdf embeds it as a subset with an identity ToUnicode map.
//
//go:embed fonts/DejaVuSansCondensed.ttf
var renderFontTTF []byte

// Synthetic page geometry, in PDF points with the origin at the bottom left.
const (
	PageWidth    = 595.0
	PageHeight   = 842.0
	MarginLeft   = 50.0
	MarginTop    = 50.0
	MarginBottom = 50.0
	LinePitch    = 15.0

	renderFont     = "DejaVuSansCondensed"
	renderFontSize = 11.0
)

// renderedLine is one line of text placed at baseline Y.
type renderedLine struct {
	Text string
	Y    float64
}

// renderedPage holds the lines assigned to one synthetic page.
type renderedPage struct {
	Lines []renderedLine
}

// layoutPages assigns trimmed, non-blank lines to pages top to bottom. A line
// holding embedded breaks is laid out as several lines. There is always at
// least one page.
func layoutPages(lines []string) []renderedPage {
	pages := []renderedPage{{}}
	y := PageHeight - MarginTop
	for _, raw := range lines {
		for _, part := range strings.Split(raw, "\n") {
			text := strings.TrimSpace(strings.Map(renderableRune, part))
			if text == "" {
				continue
			}
			if y < MarginBottom {
				pages = append(pages, renderedPage{})
				y = PageHeight - MarginTop
			}
			cur := &pages[len(pages)-1]
			cur.Lines = append(cur.Lines, renderedLine{Text: text, Y: y})
			y -= LinePitch
		}
	}
	return pages
}

// renderableRune maps tabs to spaces and drops other control characters.
// Runes outside the Basic Multilingual Plane become U+FFFD since the font
// subset addresses glyphs with 16-bit codes.
func renderableRune(r rune) rune {
	switch {
	case r == '\t':
		return ' '
	case r < 0x20 || r == 0x7f:
		return -1
	case r > 0xFFFF:
		return utf8.RuneError
	}
	return r
}

// LinesPerPage is how many lines fit on one synthetic page.
func LinesPerPage() int {
	n := 0
	for y := PageHeight - MarginTop; y >= MarginBottom; y -= LinePitch {
		n++
	}
	return n
}

// CountPages returns how many pages RenderPDF produces for lines.
func CountPages(lines []string) int {
	return len(layoutPages(lines))
}

// RenderPDF re-flows lines onto fresh A4 pages and returns the serialized PDF.
// Fonts, styles, images and table grids of the source are not reproduced.
// The returned error, when non-nil, is an *ExtractionFailure with StageRender.
func (p *Pipeline) RenderPDF(ctx context.Context, lines []string) ([]byte, error) {
	data, fail := renderPDF(lines)
	if fail != nil {
		p.logger.WarnContext(ctx, "docpipe: render failed", "error", fail.Message)
		return nil, fail
	}
	return data, nil
}

func renderPDF(lines []string) (out []byte, fail *ExtractionFailure) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			fail = renderFailure(nil, "renderer panic: %v", r)
		}
	}()

	pages := layoutPages(lines)

	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: PageWidth, Ht: PageHeight},
	})
	doc.SetMargins(MarginLeft, MarginTop, MarginLeft)
	doc.SetAutoPageBreak(false, MarginBottom)
	doc.SetCreator("docprompt", true)
	doc.AddUTF8FontFromBytes(renderFont, "", renderFontTTF)

	for _, page := range pages {
		doc.AddPage()
		doc.SetFont(renderFont, "", renderFontSize)
		for _, l := range page.Lines {
			// fpdf measures y from the top edge.
			doc.Text(MarginLeft, PageHeight-l.Y, l.Text)
		}
	}
	if err := doc.Error(); err != nil {
		return nil, renderFailure(err, "build pdf")
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, renderFailure(err, "serialize pdf")
	}
	return buf.Bytes(), nil
}
