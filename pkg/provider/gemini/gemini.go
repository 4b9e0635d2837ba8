// Package gemini implements [model.Provider] for the Google Gemini API.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/johncui/haiku/pkg/model"
)

const (
	defaultModel     = "gemini-2.5-flash"
	defaultMaxTokens = 1024
)

var _ model.Provider = (*Client)(nil)

// Client implements [model.Provider] for the Gemini API.
type Client struct {
	client  *genai.Client
	model   string
	baseURL string
}

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the model ID. Default is gemini-2.5-flash.
func WithModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.model = m
		}
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// New creates a Gemini [Client] with the given API key and options.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	c := &Client{model: defaultModel}
	for _, o := range opts {
		o(c)
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: c.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	c.client = gc
	return c, nil
}

// Complete sends a GenerateContent request and returns the response text.
func (c *Client) Complete(ctx context.Context, req model.CompletionRequest) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, ConvertMessages(req.Messages), BuildConfig(req))
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: %w", model.ErrEmptyCompletion)
	}
	return text, nil
}

// BuildConfig carries the system prompt as a system instruction.
// Exported for testing.
func BuildConfig(req model.CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{MaxOutputTokens: defaultMaxTokens}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	return config
}

// ConvertMessages converts conversation messages to genai Contents.
// Exported for testing.
func ConvertMessages(msgs []model.Message) []*genai.Content {
	result := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == model.RoleAssistant {
			role = "model"
		}
		result = append(result, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return result
}
