package docpipe

import (
	"fmt"
	"log/slog"
)

// DocxMode selects how DOCX input is turned into text.
type DocxMode string

const (
	// DocxDirect reads paragraph and table text straight from the package.
	DocxDirect DocxMode = "direct"
	// DocxSynthetic re-renders the DOCX lines into a synthetic PDF and reads
	// that back through the PDF path.
	DocxSynthetic DocxMode = "synthetic"
)

// TablePolicy controls where table cell text lands relative to paragraphs.
type TablePolicy string

const (
	// TablesAppend emits all body paragraphs first, then all table cells.
	TablesAppend TablePolicy = "append"
	// TablesInline emits table cells at the table's position in the body.
	TablesInline TablePolicy = "inline"
)

// PDFBackend selects the PDF text reader.
type PDFBackend string

const (
	// PDFContent parses with pdfcpu and scans page content streams for text operators.
	PDFContent PDFBackend = "content"
	// PDFPlain uses ledongthuc/pdf font-aware plain text extraction.
	PDFPlain PDFBackend = "plain"
)

// Config configures the document pipeline.
type Config struct {
	// MaxFileSize is the maximum document size to process (default: 100 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	DocxMode    DocxMode    `json:"docx_mode" yaml:"docx_mode"`
	TablePolicy TablePolicy `json:"table_policy" yaml:"table_policy"`
	PDFBackend  PDFBackend  `json:"pdf_backend" yaml:"pdf_backend"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.DocxMode == "" {
		c.DocxMode = DocxDirect
	}
	if c.TablePolicy == "" {
		c.TablePolicy = TablesAppend
	}
	if c.PDFBackend == "" {
		c.PDFBackend = PDFContent
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate reports unknown policy values. Zero values are valid and take defaults.
func (c Config) Validate() error {
	switch c.DocxMode {
	case "", DocxDirect, DocxSynthetic:
	default:
		return fmt.Errorf("docx_mode: unknown value %q", c.DocxMode)
	}
	switch c.TablePolicy {
	case "", TablesAppend, TablesInline:
	default:
		return fmt.Errorf("table_policy: unknown value %q", c.TablePolicy)
	}
	switch c.PDFBackend {
	case "", PDFContent, PDFPlain:
	default:
		return fmt.Errorf("pdf_backend: unknown value %q", c.PDFBackend)
	}
	return nil
}
