// Package llm talks to an OpenAI-compatible vision chat completions API.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/spherical/screenshot-wizard/internal/domain"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o"

	// maxErrorBody caps how much of a failed response is kept in the error.
	maxErrorBody = 2048
)

// Client handles communication with the chat completions API. It never
// retries; callers decide on retry policy.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
}

// Config holds client settings
type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ResponseFormat asks the model for a JSON object
type ResponseFormat struct {
	Type string `json:"type"`
}

// Request represents the API request structure
type Request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Stream         bool            `json:"stream"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// Response represents the API response structure
type Response struct {
	ID      string     `json:"id"`
	Choices []Choice   `json:"choices"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the error object the API sends in place of choices, either
// as the whole body or as a stream event.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e *ErrorBody) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Choice represents a single completion choice
type Choice struct {
	Delta        Delta  `json:"delta"`
	Message      Delta  `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Delta represents a message delta in streaming response
type Delta struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// NewClient creates a new LLM client
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	return &Client{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string {
	return c.model
}

// Complete sends the prompt and images in one request and returns the full
// streamed reply. Transport, status and stream failures are API errors; an
// unreadable or non-image input is a validation error.
func (c *Client) Complete(ctx context.Context, prompt string, imagePaths []string) (string, error) {
	req, err := c.buildRequest(prompt, imagePaths)
	if err != nil {
		return "", domain.ValidationError("failed to build request", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", domain.APIError("failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", domain.APIError("failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", domain.APIError("failed to send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", domain.APIStatusError(resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	return c.parseStream(resp.Body)
}

// buildRequest constructs the API request with the images
func (c *Client) buildRequest(prompt string, imagePaths []string) (*Request, error) {
	if len(imagePaths) == 0 {
		return nil, fmt.Errorf("at least one image is required")
	}

	parts := make([]ContentPart, 0, len(imagePaths)+1)
	parts = append(parts, ContentPart{Type: "text", Text: prompt})

	for _, path := range imagePaths {
		url, err := encodeImage(path)
		if err != nil {
			return nil, err
		}
		parts = append(parts, ContentPart{
			Type:     "image_url",
			ImageURL: &ImageURL{URL: url, Detail: "high"},
		})
	}

	return &Request{
		Model:          c.model,
		Messages:       []Message{{Role: "user", Content: parts}},
		MaxTokens:      c.maxTokens,
		Stream:         true,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	}, nil
}

// encodeImage reads an image and returns it as a base64 data URL
func encodeImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return "", fmt.Errorf("%s is not an image (detected %s)", path, mime.String())
	}

	return "data:" + mime.String() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// parseStream collects the Server-Sent Events stream into one string
func (c *Client) parseStream(body io.Reader) (string, error) {
	var out strings.Builder
	parser := NewStreamParser(body)

	for {
		chunk, err := parser.Next()
		if err != nil {
			var apiErr *ErrorBody
			if errors.As(err, &apiErr) {
				return "", domain.APIError("API returned an error", err)
			}
			return "", domain.APIError("failed to parse stream", err)
		}
		out.WriteString(chunk.Content)
		if chunk.Done {
			break
		}
	}

	return out.String(), nil
}
