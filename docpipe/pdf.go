package docpipe

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// extractPDF reads every page in order with the configured backend and joins
// non-empty page texts with a newline.
func (p *Pipeline) extractPDF(data []byte) (*ExtractedText, *ExtractionFailure) {
	var (
		pages     []string
		hasImages bool
		err       error
	)
	switch p.cfg.PDFBackend {
	case PDFPlain:
		pages, err = readPDFPlain(data)
	default:
		pages, hasImages, err = readPDFContent(data)
	}
	if err != nil {
		return nil, parseFailure(err, "pdf")
	}

	var sb strings.Builder
	for _, text := range pages {
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(text)
	}

	out := newExtractedText(FormatPDF, string(p.cfg.PDFBackend), sb.String())
	out.Pages = len(pages)
	out.Quality = measureQuality(pages, out.Content, hasImages)
	return out, nil
}

// readPDFContent parses the document with pdfcpu and scans each page content
// stream for text-showing operators. A page whose content cannot be read
// counts as a page without text.
func readPDFContent(data []byte) ([]string, bool, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, false, fmt.Errorf("pdfcpu read: %w", err)
	}
	if ctx.PageCount == 0 {
		return nil, false, fmt.Errorf("pdf has no pages")
	}

	pages := make([]string, 0, ctx.PageCount)
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		pages = append(pages, extractPageText(ctx, pageNr))
	}
	return pages, detectImageStreams(ctx), nil
}

// extractPageText extracts text from a single PDF page via pdfcpu content
// stream, decoding strings through the page's font resources.
func extractPageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return scanContentText(data, pageFonts(ctx, pageNr))
}

// detectImageStreams checks if the PDF contains image XObjects.
func detectImageStreams(ctx *model.Context) bool {
	if ctx.Optimize != nil {
		for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
			if len(pdfcpu.ImageObjNrs(ctx, pageNr)) > 0 {
				return true
			}
		}
	}
	// Fallback: scan XRefTable for image subtype objects.
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}

// normalizeLines collapses runs of blanks inside each line, trims lines and
// drops the empty ones.
func normalizeLines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
