// Command docprompt extracts text from .docx and .pdf documents, renders text
// into synthetic PDFs, and asks a language model about a document. It also
// serves the same operations over HTTP and MCP (stdio).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docprompt/completion"
	"github.com/hazyhaar/docprompt/docpipe"
	"github.com/hazyhaar/docprompt/docprompt"
	"github.com/hazyhaar/docprompt/horosafe"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logger := newLogger(env("LOG_LEVEL", "info"))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "extract":
		err = cmdExtract(ctx, os.Args[2:])
	case "render":
		err = cmdRender(ctx, os.Args[2:])
	case "ask":
		err = cmdAsk(ctx, os.Args[2:])
	case "serve":
		err = cmdServe(ctx, os.Args[2:])
	case "mcp":
		err = cmdMCP(ctx, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		logger.Error("docprompt: "+os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `docprompt: ask questions about .docx and .pdf documents

usage:
  docprompt extract [-config f] [-json] <file>
  docprompt render  [-config f] -o out.pdf <file.txt|file.docx>
  docprompt ask     [-config f] [-prompt text] <file>
  docprompt serve   [-config f]
  docprompt mcp     [-config f]

extract  Prints the normalized text of a document.
render   Re-flows text lines onto A4 pages and writes a PDF.
ask      Sends the document text and an instruction to the model.
serve    Starts the HTTP API.
mcp      Serves docpipe tools over MCP on stdin/stdout.

environment:
  GEMINI_API_KEY (or GOOGLE_API_KEY)  model API key
  DOCPROMPT_LISTEN                    overrides listen
  LOG_LEVEL                           debug, info, warn, error
`)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// stdout carries command output and the MCP stream.
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// loadConfig reads the optional config file and applies environment overrides.
func loadConfig(path string) (*docprompt.Config, error) {
	cfg, err := docprompt.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	cfg.Listen = env("DOCPROMPT_LISTEN", cfg.Listen)
	cfg.Model.APIKey = env("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY"))
	return cfg, nil
}

func newPipeline(cfg *docprompt.Config) *docpipe.Pipeline {
	return docpipe.New(cfg.PipelineConfig(slog.Default()))
}

// newService wires the pipeline and, when an API key is present, the model.
func newService(cfg *docprompt.Config, requireModel bool) (*docprompt.Service, error) {
	var model completion.Completer
	if cfg.Model.APIKey != "" || requireModel {
		g, err := completion.NewGemini(cfg.Model)
		if err != nil {
			return nil, err
		}
		model = g
	} else {
		slog.Warn("no model API key set; /v1/ask is disabled")
	}
	return docprompt.NewService(newPipeline(cfg), model,
		docprompt.WithDefaultPrompt(cfg.DefaultPrompt),
		docprompt.WithLogger(slog.Default()),
	), nil
}

func cmdExtract(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to docprompt.yaml")
	asJSON := fs.Bool("json", false, "print the full result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("extract requires exactly one file")
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	res, err := newPipeline(cfg).ExtractFile(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if res.IsEmpty {
		slog.Warn("document has no extractable text", "file", fs.Arg(0))
		return nil
	}
	_, err = fmt.Fprintln(os.Stdout, res.Content)
	return err
}

func cmdRender(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to docprompt.yaml")
	out := fs.String("o", "", "output PDF path (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *out == "" {
		return errors.New("render requires -o out.pdf and one input file")
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	lines, err := readLines(fs.Arg(0), cfg)
	if err != nil {
		return err
	}
	pipe := newPipeline(cfg)
	data, err := pipe.RenderPDF(ctx, lines)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	slog.Info("pdf written", "path", *out, "pages", docpipe.CountPages(lines), "bytes", len(data))
	return nil
}

// readLines returns the lines of a plain text file, or the visible lines of
// a .docx package.
func readLines(path string, cfg *docprompt.Config) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".docx") {
		data, err := horosafe.LimitedReadAll(f, cfg.MaxFileBytes())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return docpipe.DocxLines(data, cfg.Docpipe.TablePolicy)
	}

	var lines []string
	sc := bufio.NewScanner(io.LimitReader(f, cfg.MaxFileBytes()))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}

func cmdAsk(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to docprompt.yaml")
	prompt := fs.String("prompt", "", "instruction for the model (default: configured default_prompt)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("ask requires exactly one file")
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	svc, err := newService(cfg, true)
	if err != nil {
		return err
	}

	path := fs.Arg(0)
	format, err := docpipe.DetectFormat(path)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	data, err := horosafe.LimitedReadAll(f, cfg.MaxFileBytes())
	f.Close()
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	doc := docpipe.SourceDocument{Name: filepath.Base(path), Format: format, Data: data}
	var ans *docprompt.Answer
	if strings.TrimSpace(*prompt) == "" {
		ans, err = svc.AskDefault(ctx, doc)
	} else {
		ans, err = svc.Ask(ctx, doc, *prompt)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, ans.Text)
	return err
}

func cmdServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to docprompt.yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	svc, err := newService(cfg, false)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: docprompt.NewRouter(svc, docprompt.RouterConfig{
			MaxUploadBytes: cfg.MaxFileBytes(),
			Auth:           cfg.Auth,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Model.Timeout + 60*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Listen, "auth", cfg.Auth.Enabled())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

func cmdMCP(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to docprompt.yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	srv := mcp.NewServer(&mcp.Implementation{Name: "docprompt", Version: version}, nil)
	newPipeline(cfg).RegisterMCP(srv)

	slog.Info("MCP stdio starting")
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
