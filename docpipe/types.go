package docpipe

import "fmt"

// Format identifies a document type.
type Format string

const (
	FormatDocx Format = "docx"
	FormatPDF  Format = "pdf"
)

// Stage identifies where an extraction failed.
type Stage string

const (
	StageParse  Stage = "parse"
	StageRender Stage = "render"
)

// SourceDocument is one uploaded file. Data is never modified by the pipeline.
type SourceDocument struct {
	Name   string `json:"name,omitempty"`
	Format Format `json:"format"`
	Data   []byte `json:"-"`
}

// ExtractedText is the successful outcome of an extraction. IsEmpty is true
// when the container parsed but held no visible characters; Content is then "".
type ExtractedText struct {
	Content string             `json:"content"`
	IsEmpty bool               `json:"is_empty"`
	Format  Format             `json:"format"`
	Mode    string             `json:"mode"`               // direct, synthetic, content, plain
	Pages   int                `json:"pages,omitempty"`    // PDF page count
	Lines   int                `json:"lines"`              // non-blank output lines
	Quality *ExtractionQuality `json:"quality,omitempty"`  // PDF only
}

// ExtractionFailure is a structural failure: the container could not be read
// (StageParse) or the synthetic PDF could not be built (StageRender).
type ExtractionFailure struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (f *ExtractionFailure) Error() string {
	return fmt.Sprintf("docpipe %s: %s", f.Stage, f.Message)
}

func (f *ExtractionFailure) Unwrap() error { return f.Err }

func parseFailure(err error, format string, args ...any) *ExtractionFailure {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg += ": " + err.Error()
	}
	return &ExtractionFailure{Stage: StageParse, Message: msg, Err: err}
}

func renderFailure(err error, format string, args ...any) *ExtractionFailure {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg += ": " + err.Error()
	}
	return &ExtractionFailure{Stage: StageRender, Message: msg, Err: err}
}
