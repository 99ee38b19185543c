// Package docpipe turns an uploaded document into one normalized text blob
// suitable for prompting a language model.
//
// Supported formats:
//   - .docx: Microsoft Word (archive/zip → main document part, paragraphs then tables)
//   - .pdf:  PDF (pdfcpu parse + content stream text operators, or ledongthuc/pdf plain text)
//
// DOCX input can optionally take the synthetic route: its lines are re-rendered
// into a fresh A4 PDF (see RenderPDF) and read back through the PDF path, so both
// formats share one text reader.
//
// Every Extract call returns either an *ExtractedText or an *ExtractionFailure.
// An empty-but-valid document is a success with IsEmpty set, not a failure.
// The Pipeline holds no mutable state and is safe for concurrent use.
//
// Usage:
//
//	pipe := docpipe.New(docpipe.Config{})
//	res, err := pipe.Extract(ctx, docpipe.SourceDocument{Format: docpipe.FormatPDF, Data: b})
//	var fail *docpipe.ExtractionFailure
//	if errors.As(err, &fail) { ... }
package docpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/hazyhaar/docprompt/kit"
)

// ErrUnsupportedFormat is returned by Detect for extensions other than .docx and .pdf.
var ErrUnsupportedFormat = errors.New("docpipe: unsupported format")

func init() {
	// pdfcpu otherwise creates a config and font directory under the user's home.
	api.DisableConfigDir()
}

// Pipeline is the document extraction engine.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Config returns the effective configuration (defaults applied).
func (p *Pipeline) Config() Config { return p.cfg }

// Detect returns the document format based on the file name extension.
func (p *Pipeline) Detect(name string) (Format, error) {
	return DetectFormat(name)
}

// DetectFormat maps a file name to its Format.
func DetectFormat(name string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".docx":
		return FormatDocx, nil
	case ".pdf":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Extract converts doc into normalized text. The returned error, when non-nil,
// is always an *ExtractionFailure and the result is nil.
func (p *Pipeline) Extract(ctx context.Context, doc SourceDocument) (res *ExtractedText, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = parseFailure(nil, "parser panic: %v", r)
			p.logger.ErrorContext(ctx, "docpipe: recovered panic", "name", doc.Name, "format", doc.Format, "panic", r)
		}
	}()

	if len(doc.Data) == 0 {
		return nil, parseFailure(nil, "empty document")
	}
	if int64(len(doc.Data)) > p.cfg.MaxFileSize {
		return nil, parseFailure(nil, "document too large: %d bytes (max %d)", len(doc.Data), p.cfg.MaxFileSize)
	}

	p.logger.DebugContext(ctx, "extracting document", "name", doc.Name, "format", doc.Format, "size", len(doc.Data))

	var (
		out  *ExtractedText
		fail *ExtractionFailure
	)
	switch doc.Format {
	case FormatPDF:
		out, fail = p.extractPDF(doc.Data)
	case FormatDocx:
		out, fail = p.extractDocx(ctx, doc.Data)
	default:
		fail = parseFailure(nil, "unsupported format %q", doc.Format)
	}
	if fail != nil {
		p.logger.WarnContext(ctx, "docpipe: extraction failed", "name", doc.Name, "stage", fail.Stage, "error", fail.Message,
			"request_id", kit.GetRequestID(ctx))
		return nil, fail
	}

	p.logger.DebugContext(ctx, "document extracted", "name", doc.Name, "mode", out.Mode, "lines", out.Lines, "empty", out.IsEmpty)
	return out, nil
}

// ExtractFile reads a document from disk and extracts it. Unknown extensions
// and I/O errors are returned as plain errors; everything after the bytes are
// read follows the Extract contract.
func (p *Pipeline) ExtractFile(ctx context.Context, path string) (*ExtractedText, error) {
	format, err := p.Detect(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > p.cfg.MaxFileSize {
		return nil, parseFailure(nil, "document too large: %d bytes (max %d)", info.Size(), p.cfg.MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return p.Extract(ctx, SourceDocument{Name: filepath.Base(path), Format: format, Data: data})
}

func (p *Pipeline) extractDocx(ctx context.Context, data []byte) (*ExtractedText, *ExtractionFailure) {
	lines, err := docxLines(data, p.cfg.TablePolicy, p.cfg.MaxFileSize)
	if err != nil {
		return nil, parseFailure(err, "docx")
	}
	if p.cfg.DocxMode != DocxSynthetic {
		return newExtractedText(FormatDocx, string(DocxDirect), strings.Join(lines, "\n")), nil
	}

	synthetic, fail := renderPDF(lines)
	if fail != nil {
		return nil, fail
	}
	p.logger.DebugContext(ctx, "docx rendered to synthetic pdf", "lines", len(lines), "bytes", len(synthetic))

	out, fail := p.extractPDF(synthetic)
	if fail != nil {
		// The renderer produced bytes its own reader cannot open.
		return nil, &ExtractionFailure{Stage: StageRender, Message: "synthetic pdf unreadable: " + fail.Message, Err: fail}
	}
	out.Format = FormatDocx
	out.Mode = string(DocxSynthetic)
	out.Quality = nil
	return out, nil
}

// newExtractedText classifies content: no visible characters means IsEmpty.
func newExtractedText(format Format, mode, content string) *ExtractedText {
	if strings.TrimSpace(content) == "" {
		return &ExtractedText{Content: "", IsEmpty: true, Format: format, Mode: mode}
	}
	lines := 0
	for _, l := range strings.Split(content, "\n") {
		if strings.TrimSpace(l) != "" {
			lines++
		}
	}
	return &ExtractedText{Content: content, Format: format, Mode: mode, Lines: lines}
}

// SupportedFormats returns all supported format extensions.
func SupportedFormats() []string {
	return []string{string(FormatDocx), string(FormatPDF)}
}
