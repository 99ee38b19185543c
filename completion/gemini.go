package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hazyhaar/docprompt/horosafe"
)

const (
	apiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "gemini-2.0-flash"
)

// Gemini calls the Gemini generateContent REST endpoint. It is safe for
// concurrent use.
type Gemini struct {
	apiKey   string
	model    string
	endpoint string
	maxBody  int64
	client   *http.Client
}

// NewGemini validates cfg and builds a client. An API key is required.
func NewGemini(cfg Config) (*Gemini, error) {
	if err := horosafe.ValidateSecret([]byte(cfg.APIKey)); err != nil {
		return nil, fmt.Errorf("completion: api key: %w", err)
	}
	cfg.defaults()
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s/%s:generateContent", apiBaseURL, cfg.Model)
	}
	return &Gemini{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		endpoint: endpoint,
		maxBody:  cfg.MaxResponseBytes,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// Complete sends the document text and the instruction as two parts of one
// user turn and returns the concatenated text of the first candidate.
func (g *Gemini) Complete(ctx context.Context, documentText, instruction string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: documentText}, {Text: instruction}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling gemini API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := horosafe.LimitedReadAll(resp.Body, g.maxBody)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 500))
	}
	return parseResponse(respBody)
}

func parseResponse(body []byte) (string, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshaling response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return "", errors.New("empty response from API: no candidates")
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w (finish reason %q)", ErrEmptyAnswer, resp.Candidates[0].FinishReason)
	}
	return sb.String(), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
