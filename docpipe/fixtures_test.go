package docpipe

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/go-pdf/fpdf"
)

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

// buildDocx packs body XML into a minimal .docx archive.
func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	return buildDocxParts(t, map[string]string{
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document ` + wordNS + `><w:body>` + body + `<w:sectPr/></w:body></w:document>`,
	})
}

func buildDocxParts(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range parts {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func para(text string) string {
	return `<w:p><w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p>`
}

// table builds a w:tbl whose cells each hold one paragraph.
func table(rows ...[]string) string {
	s := `<w:tbl><w:tblPr><w:tblW w:w="0" w:type="auto"/></w:tblPr><w:tblGrid><w:gridCol w:w="2000"/></w:tblGrid>`
	for _, row := range rows {
		s += `<w:tr>`
		for _, cell := range row {
			s += `<w:tc><w:tcPr><w:tcW w:w="2000" w:type="dxa"/></w:tcPr>` + para(cell) + `</w:tc>`
		}
		s += `</w:tr>`
	}
	return s + `</w:tbl>`
}

// buildTextPDF writes one page per entry, each line on its own baseline.
// It uses fpdf directly so fixtures do not depend on RenderPDF.
func buildTextPDF(t *testing.T, pages [][]string) []byte {
	t.Helper()
	doc := fpdf.New("P", "pt", "A4", "")
	for _, lines := range pages {
		doc.AddPage()
		doc.SetFont("Courier", "", 12)
		for i, l := range lines {
			doc.Text(72, 100+float64(i)*20, l)
		}
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("build text pdf: %v", err)
	}
	return buf.Bytes()
}

// buildUnicodePDF is buildTextPDF with an embedded TrueType font, so strings
// are written as 16-bit codes behind a ToUnicode map instead of WinAnsi bytes.
func buildUnicodePDF(t *testing.T, lines []string) []byte {
	t.Helper()
	doc := fpdf.New("P", "pt", "A4", "")
	doc.AddUTF8FontFromBytes("fixture", "", renderFontTTF)
	doc.AddPage()
	doc.SetFont("fixture", "", 12)
	for i, l := range lines {
		doc.Text(72, 100+float64(i)*20, l)
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("build unicode pdf: %v", err)
	}
	return buf.Bytes()
}

// buildImageOnlyPDF draws a small grayscale PNG and no text operators.
func buildImageOnlyPDF(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) * 30)})
		}
	}
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatal(err)
	}

	doc := fpdf.New("P", "pt", "A4", "")
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	doc.RegisterImageOptionsReader("scan", opts, &pngBuf)
	doc.AddPage()
	doc.ImageOptions("scan", 72, 72, 200, 200, false, opts, 0, "")

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("build image pdf: %v", err)
	}
	return buf.Bytes()
}
