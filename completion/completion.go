// Package completion sends extracted document text and a user instruction to
// a hosted language model and returns its answer.
package completion

import (
	"context"
	"errors"
	"time"

	"github.com/hazyhaar/docprompt/horosafe"
)

// Completer answers an instruction about a document.
type Completer interface {
	Complete(ctx context.Context, documentText, instruction string) (string, error)
}

// ErrEmptyAnswer is returned when the model responds without any text.
var ErrEmptyAnswer = errors.New("completion: empty answer")

// Config configures a model client. It is passed explicitly at construction.
type Config struct {
	APIKey string `yaml:"-"`
	Model  string `yaml:"model"`
	// Endpoint overrides the generateContent URL (tests, proxies).
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	// MaxResponseBytes caps the response body read (default horosafe.MaxResponseBody).
	MaxResponseBytes int64 `yaml:"max_response_bytes"`
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = horosafe.MaxResponseBody
	}
}
