package docprompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/docprompt/docpipe"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.MaxFileBytes() != 32*1024*1024 {
		t.Errorf("MaxFileBytes = %d", cfg.MaxFileBytes())
	}
	if cfg.DefaultPrompt == "" {
		t.Error("default prompt is empty")
	}
}

func TestLoadConfig(t *testing.T) {
	yaml := `
listen: ":9090"
max_file_mb: 5
default_prompt: "Extract the course name."
docpipe:
  docx_mode: synthetic
  table_policy: inline
  pdf_backend: plain
model:
  model: gemini-1.5-pro
  timeout: 30s
auth:
  user: ops
`
	path := filepath.Join(t.TempDir(), "docprompt.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	// auth.user without a bcrypt hash is rejected.
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for auth without password_hash")
	}

	yaml = yaml[:len(yaml)-len("auth:\n  user: ops\n")]
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9090" || cfg.MaxFileMB != 5 || cfg.DefaultPrompt != "Extract the course name." {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Docpipe.DocxMode != docpipe.DocxSynthetic || cfg.Docpipe.TablePolicy != docpipe.TablesInline || cfg.Docpipe.PDFBackend != docpipe.PDFPlain {
		t.Errorf("docpipe = %+v", cfg.Docpipe)
	}
	if cfg.Model.Model != "gemini-1.5-pro" || cfg.Model.Timeout != 30*time.Second {
		t.Errorf("model = %+v", cfg.Model)
	}

	pc := cfg.PipelineConfig(nil)
	if pc.MaxFileSize != 5*1024*1024 || pc.DocxMode != docpipe.DocxSynthetic {
		t.Errorf("pipeline config = %+v", pc)
	}
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != DefaultConfig().Listen {
		t.Errorf("Listen = %q", cfg.Listen)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no listen", func(c *Config) { c.Listen = "" }},
		{"zero size", func(c *Config) { c.MaxFileMB = 0 }},
		{"bad docx mode", func(c *Config) { c.Docpipe.DocxMode = "ocr" }},
		{"docpipe size set twice", func(c *Config) { c.Docpipe.MaxFileSize = 1 << 20 }},
		{"negative timeout", func(c *Config) { c.Model.Timeout = -time.Second }},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestLoadConfig_RejectsDocpipeMaxFileSize(t *testing.T) {
	yaml := `
max_file_mb: 5
docpipe:
  max_file_size: 1048576
`
	path := filepath.Join(t.TempDir(), "docprompt.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "max_file_mb") {
		t.Fatalf("LoadConfig() error = %v, want a max_file_mb hint", err)
	}
}
