package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"siteaudit/internal/auditerr"
)

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:            apiKey,
		BaseURL:           "https://api.openai.com/v1",
		Model:             "gpt-4o",
		Timeout:           30 * time.Second,
		RequestsPerSecond: 2,
	}
}

// OpenAIClient implements Provider against the OpenAI chat completions API.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewOpenAIClient creates an OpenAI client with default config.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return NewOpenAIClientWithConfig(DefaultOpenAIConfig(apiKey))
}

// NewOpenAIClientWithConfig creates an OpenAI client with custom config.
func NewOpenAIClientWithConfig(cfg OpenAIConfig) *OpenAIClient {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Name identifies the provider.
func (c *OpenAIClient) Name() string { return "openai" }

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// GenerateText sends a text prompt.
func (c *OpenAIClient) GenerateText(ctx context.Context, prompt string, req Request) (*Response, error) {
	return c.generate(ctx, prompt, nil, req)
}

// GenerateWithVision sends a prompt plus base64 PNG images as data URLs.
func (c *OpenAIClient) GenerateWithVision(ctx context.Context, prompt string, images []string, req Request) (*Response, error) {
	return c.generate(ctx, prompt, images, req)
}

func (c *OpenAIClient) generate(ctx context.Context, prompt string, images []string, req Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, auditerr.New(auditerr.CodeAPIError, "openai API key not configured")
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, auditerr.Wrap(auditerr.CodeTimeout, err, "waiting for openai rate limit")
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	var messages []openAIMessage
	if req.SystemInstruction != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.SystemInstruction})
	}
	if len(images) == 0 {
		messages = append(messages, openAIMessage{Role: "user", Content: prompt})
	} else {
		parts := []openAIContentPart{{Type: "text", Text: prompt}}
		for _, img := range images {
			parts = append(parts, openAIContentPart{
				Type:     "image_url",
				ImageURL: &openAIImageURL{URL: "data:image/png;base64," + img},
			})
		}
		messages = append(messages, openAIMessage{Role: "user", Content: parts})
	}

	body := openAIRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSONMode {
		body.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, auditerr.Wrap(auditerr.CodeAPIError, err, "marshaling openai request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, auditerr.Wrap(auditerr.CodeAPIError, err, "building openai request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyProviderErr(ctx, err, "openai")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, auditerr.Wrap(auditerr.CodeNetworkError, err, "reading openai response")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, auditerr.New(auditerr.CodeRateLimited, "openai rate limit exceeded (429)")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, auditerr.New(auditerr.CodeAPIError, "openai returned status %d: %s", resp.StatusCode, truncate(string(respBody), 300))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, auditerr.Wrap(auditerr.CodeParseError, err, "parsing openai response")
	}
	if parsed.Error != nil {
		return nil, auditerr.New(auditerr.CodeAPIError, "openai error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, auditerr.New(auditerr.CodeAPIError, "openai returned no choices")
	}

	return &Response{
		Text:     strings.TrimSpace(parsed.Choices[0].Message.Content),
		Model:    model,
		Provider: c.Name(),
		Usage: Usage{
			Input:  parsed.Usage.PromptTokens,
			Output: parsed.Usage.CompletionTokens,
			Total:  parsed.Usage.TotalTokens,
		},
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

func classifyProviderErr(ctx context.Context, err error, provider string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return auditerr.Wrap(auditerr.CodeTimeout, err, "%s request timed out", provider)
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return auditerr.Wrap(auditerr.CodeTimeout, err, "%s request timed out", provider)
	}
	return auditerr.Wrap(auditerr.CodeNetworkError, err, "%s request failed", provider)
}
