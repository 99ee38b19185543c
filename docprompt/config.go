package docprompt

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/docprompt/completion"
	"github.com/hazyhaar/docprompt/docpipe"
	"github.com/hazyhaar/docprompt/shield"
)

// DefaultPrompt is sent with the document when the caller gives no instruction
// and the configuration does not override it.
const DefaultPrompt = "List the key information contained in this document."

// Config holds the full docprompt configuration.
type Config struct {
	Listen        string                 `yaml:"listen"`
	MaxFileMB     int                    `yaml:"max_file_mb"`
	DefaultPrompt string                 `yaml:"default_prompt"`
	Docpipe       docpipe.Config         `yaml:"docpipe"`
	Model         completion.Config      `yaml:"model"`
	Auth          shield.BasicAuthConfig `yaml:"auth"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:        ":8090",
		MaxFileMB:     32,
		DefaultPrompt: DefaultPrompt,
		Docpipe: docpipe.Config{
			DocxMode:    docpipe.DocxDirect,
			TablePolicy: docpipe.TablesAppend,
			PDFBackend:  docpipe.PDFContent,
		},
		Model: completion.Config{Model: completion.DefaultModel},
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged
// with the file, or DefaultConfig alone when path is empty.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
// The model API key is not required here: extraction and rendering work
// without it.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.MaxFileMB <= 0 {
		return fmt.Errorf("max_file_mb must be > 0")
	}
	if c.Docpipe.MaxFileSize != 0 {
		return fmt.Errorf("docpipe.max_file_size is derived from max_file_mb; set max_file_mb instead")
	}
	if err := c.Docpipe.Validate(); err != nil {
		return fmt.Errorf("docpipe: %w", err)
	}
	if c.Model.Timeout < 0 {
		return fmt.Errorf("model.timeout must be >= 0")
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return nil
}

// MaxFileBytes returns max upload size in bytes.
func (c *Config) MaxFileBytes() int64 { return int64(c.MaxFileMB) * 1024 * 1024 }

// PipelineConfig returns the docpipe configuration with the upload cap applied.
func (c *Config) PipelineConfig(logger *slog.Logger) docpipe.Config {
	pc := c.Docpipe
	pc.MaxFileSize = c.MaxFileBytes()
	pc.Logger = logger
	return pc
}
