// Package llm contains the provider adapters and the rate-limited
// registry the LLM audits and the synthesis layer call through. The core
// never imports provider SDKs; each provider is a thin HTTP client
// implementing the Provider interface.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Usage is the token accounting extracted from a provider response.
type Usage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// Response is the unified provider result.
type Response struct {
	Text       string `json:"text"`
	Usage      Usage  `json:"usage"`
	Model      string `json:"model"`
	Provider   string `json:"provider"`
	DurationMs int64  `json:"durationMs"`
}

// Request carries per-call options.
type Request struct {
	Model             string
	Temperature       float64
	MaxTokens         int
	SystemInstruction string
	Timeout           time.Duration

	// JSONMode asks the provider for a strict-JSON response body.
	JSONMode bool
}

// Provider is the adapter interface the core consumes. Images are base64
// PNG strings.
type Provider interface {
	Name() string
	GenerateText(ctx context.Context, prompt string, req Request) (*Response, error)
	GenerateWithVision(ctx context.Context, prompt string, images []string, req Request) (*Response, error)
}

// ParseStructured decodes the strict-JSON text of a response into T.
// Providers sometimes wrap JSON in markdown fences; those are stripped
// before decoding.
func ParseStructured[T any](resp *Response) (T, error) {
	var out T
	if resp == nil {
		return out, fmt.Errorf("nil response")
	}
	text := StripJSONFences(resp.Text)
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return out, fmt.Errorf("structured response is not valid JSON: %w", err)
	}
	return out, nil
}

// StripJSONFences removes a surrounding ```json ... ``` fence if present
// and trims to the outermost JSON object or array.
func StripJSONFences(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```json")
		t = strings.TrimPrefix(t, "```")
		if i := strings.LastIndex(t, "```"); i >= 0 {
			t = t[:i]
		}
		t = strings.TrimSpace(t)
	}
	start := strings.IndexAny(t, "{[")
	if start < 0 {
		return t
	}
	var closer byte = '}'
	if t[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(t, closer)
	if end > start {
		return t[start : end+1]
	}
	return t
}
