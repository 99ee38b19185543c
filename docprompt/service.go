// Package docprompt answers free-form instructions about an uploaded document:
// it extracts the document's text with docpipe and hands text and instruction
// to a language model.
package docprompt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/docprompt/completion"
	"github.com/hazyhaar/docprompt/docpipe"
	"github.com/hazyhaar/docprompt/idgen"
	"github.com/hazyhaar/docprompt/kit"
)

var (
	// ErrNothingToExtract means the document parsed but held no text; the
	// model is not called.
	ErrNothingToExtract = errors.New("docprompt: no text could be extracted from the document")

	// ErrEmptyInstruction means the instruction was blank after trimming.
	ErrEmptyInstruction = errors.New("docprompt: instruction is empty")

	// ErrNoModel means Ask was called on a Service built without a Completer.
	ErrNoModel = errors.New("docprompt: no model configured")

	// ErrModel wraps every error returned by the Completer.
	ErrModel = errors.New("docprompt: model call failed")
)

// Answer is the model's reply to one instruction about one document.
type Answer struct {
	ID         string         `json:"id"`
	Document   string         `json:"document,omitempty"`
	Format     docpipe.Format `json:"format"`
	Mode       string         `json:"mode"`
	Lines      int            `json:"lines"`
	Prompt     string         `json:"prompt"`
	Text       string         `json:"answer"`
	DurationMS int64          `json:"duration_ms"`
}

// Service ties the extraction pipeline to a model.
type Service struct {
	pipe          *docpipe.Pipeline
	model         completion.Completer
	defaultPrompt string
	logger        *slog.Logger
	newID         idgen.Generator
}

// Option configures a Service.
type Option func(*Service)

// WithDefaultPrompt sets the instruction used by AskDefault and by the HTTP
// handler when the caller sends none.
func WithDefaultPrompt(p string) Option {
	return func(s *Service) { s.defaultPrompt = p }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithIDGenerator sets the generator for Answer IDs.
func WithIDGenerator(g idgen.Generator) Option {
	return func(s *Service) { s.newID = g }
}

// NewService builds a Service. model may be nil, in which case Ask returns
// ErrNoModel and only extraction and rendering are available.
func NewService(pipe *docpipe.Pipeline, model completion.Completer, opts ...Option) *Service {
	s := &Service{
		pipe:          pipe,
		model:         model,
		defaultPrompt: DefaultPrompt,
		logger:        slog.Default(),
		newID:         idgen.Prefixed("ans_", idgen.Default),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Pipeline returns the extraction pipeline.
func (s *Service) Pipeline() *docpipe.Pipeline { return s.pipe }

// DefaultPrompt returns the configured default instruction.
func (s *Service) DefaultPrompt() string { return s.defaultPrompt }

// HasModel reports whether a Completer is configured.
func (s *Service) HasModel() bool { return s.model != nil }

// Ask extracts doc and sends its text with instruction to the model.
//
// A structural extraction failure is returned as the *docpipe.ExtractionFailure
// and aborts the request. A document without text yields ErrNothingToExtract
// and the model is never called.
func (s *Service) Ask(ctx context.Context, doc docpipe.SourceDocument, instruction string) (*Answer, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, ErrEmptyInstruction
	}
	if s.model == nil {
		return nil, ErrNoModel
	}

	start := time.Now()
	res, err := s.pipe.Extract(ctx, doc)
	if err != nil {
		return nil, err
	}
	if res.IsEmpty {
		s.logger.InfoContext(ctx, "docprompt: nothing to extract", "document", doc.Name, "request_id", kit.GetRequestID(ctx))
		return nil, ErrNothingToExtract
	}

	text, err := s.model.Complete(ctx, res.Content, instruction)
	if err != nil {
		s.logger.WarnContext(ctx, "docprompt: model call failed", "document", doc.Name, "request_id", kit.GetRequestID(ctx), "error", err)
		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}

	ans := &Answer{
		ID:         s.newID(),
		Document:   doc.Name,
		Format:     res.Format,
		Mode:       res.Mode,
		Lines:      res.Lines,
		Prompt:     instruction,
		Text:       text,
		DurationMS: time.Since(start).Milliseconds(),
	}
	s.logger.InfoContext(ctx, "docprompt: answered",
		"id", ans.ID,
		"document", doc.Name,
		"format", ans.Format,
		"lines", ans.Lines,
		"duration_ms", ans.DurationMS,
		"transport", kit.GetTransport(ctx),
	)
	return ans, nil
}

// AskDefault is Ask with the configured default instruction.
func (s *Service) AskDefault(ctx context.Context, doc docpipe.SourceDocument) (*Answer, error) {
	return s.Ask(ctx, doc, s.defaultPrompt)
}
