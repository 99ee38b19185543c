package docprompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/docprompt/docpipe"
	"github.com/hazyhaar/docprompt/horosafe"
	"github.com/hazyhaar/docprompt/kit"
	"github.com/hazyhaar/docprompt/shield"
)

// multipartMemory is how much of a multipart upload is held in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// RouterConfig configures the HTTP surface.
type RouterConfig struct {
	// MaxUploadBytes caps the uploaded document size.
	MaxUploadBytes int64
	// Auth guards /v1/* when enabled.
	Auth shield.BasicAuthConfig
}

// NewRouter returns the docprompt HTTP API.
//
//	GET  /healthz      liveness and model availability
//	GET  /v1/formats   supported document formats
//	POST /v1/extract   multipart "file" → extracted text
//	POST /v1/ask       multipart "file" + "prompt" → model answer
//	POST /v1/render    {"lines": [...]} → application/pdf
func NewRouter(svc *Service, cfg RouterConfig) http.Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = svc.Pipeline().Config().MaxFileSize
	}
	// Multipart framing and the prompt field ride on top of the file.
	maxBody := cfg.MaxUploadBytes + 1<<20

	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(maxBody) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "model": svc.HasModel()})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(shield.BasicAuth(cfg.Auth))

		r.Get("/formats", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"formats": docpipe.SupportedFormats()})
		})

		r.Post("/extract", func(w http.ResponseWriter, r *http.Request) {
			doc, err := readUpload(r, cfg.MaxUploadBytes)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			r = r.WithContext(kit.WithDocument(r.Context(), doc.Name))
			res, err := svc.Pipeline().Extract(r.Context(), doc)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, res)
		})

		r.Post("/ask", func(w http.ResponseWriter, r *http.Request) {
			doc, err := readUpload(r, cfg.MaxUploadBytes)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			r = r.WithContext(kit.WithDocument(r.Context(), doc.Name))
			prompt := r.FormValue("prompt")
			if strings.TrimSpace(prompt) == "" {
				prompt = svc.DefaultPrompt()
			}
			ans, err := svc.Ask(r.Context(), doc, prompt)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, ans)
		})

		r.Post("/render", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Lines []string `json:"lines"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				var mbe *http.MaxBytesError
				if errors.As(err, &mbe) {
					writeServiceError(w, r, err)
					return
				}
				writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
				return
			}
			data, err := svc.Pipeline().RenderPDF(r.Context(), req.Lines)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			w.Header().Set("Content-Type", "application/pdf")
			w.Header().Set("Content-Disposition", `attachment; filename="document.pdf"`)
			w.Header().Set("X-Page-Count", strconv.Itoa(docpipe.CountPages(req.Lines)))
			w.WriteHeader(http.StatusOK)
			w.Write(data)
		})
	})

	return r
}

// errMissingFile is returned when a multipart request has no "file" part.
var errMissingFile = errors.New(`missing multipart field "file"`)

// readUpload pulls the "file" part out of a multipart request and detects its
// format from the client file name.
func readUpload(r *http.Request, maxBytes int64) (docpipe.SourceDocument, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return docpipe.SourceDocument{}, err
		}
		return docpipe.SourceDocument{}, fmt.Errorf("%w: parse form: %v", errBadRequest, err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return docpipe.SourceDocument{}, fmt.Errorf("%w: %w", errBadRequest, errMissingFile)
	}
	defer file.Close()

	name := horosafe.BaseName(header.Filename)
	format, err := docpipe.DetectFormat(name)
	if err != nil {
		return docpipe.SourceDocument{}, err
	}
	data, err := horosafe.LimitedReadAll(file, maxBytes)
	if err != nil {
		return docpipe.SourceDocument{}, fmt.Errorf("read upload: %w", err)
	}
	return docpipe.SourceDocument{Name: name, Format: format, Data: data}, nil
}

var errBadRequest = errors.New("bad request")

// errorStatus maps service and pipeline errors to HTTP status codes.
func errorStatus(err error) int {
	var fail *docpipe.ExtractionFailure
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &fail), errors.Is(err, ErrNothingToExtract):
		return http.StatusUnprocessableEntity
	case errors.Is(err, docpipe.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, horosafe.ErrTooLarge), errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrEmptyInstruction), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoModel):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrModel):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := errorStatus(err)
	logger := shield.GetLogger(r.Context())
	if code >= 500 {
		logger.Error("request failed", "status", code, "error", err,
			"document", kit.GetDocument(r.Context()), "request_id", kit.GetRequestID(r.Context()))
	} else {
		logger.Info("request rejected", "status", code, "error", err, "document", kit.GetDocument(r.Context()))
	}

	var fail *docpipe.ExtractionFailure
	if errors.As(err, &fail) {
		writeJSON(w, code, map[string]string{"error": fail.Message, "stage": string(fail.Stage)})
		return
	}
	writeError(w, code, err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
