// Package openai implements [model.Provider] for the OpenAI Chat Completions API
// and compatible endpoints.
package openai

import (
	"context"
	"fmt"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/johncui/haiku/pkg/model"
)

const defaultModel = "gpt-4o-mini"

var _ model.Provider = (*Client)(nil)

// Client implements [model.Provider] on top of the official SDK.
type Client struct {
	client     sdk.Client
	model      string
	baseURL    string
	maxRetries int
}

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the model ID. Default is gpt-4o-mini.
func WithModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.model = m
		}
	}
}

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithMaxRetries overrides the SDK retry count. Negative keeps the SDK default.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// New creates a [Client] with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{model: defaultModel, maxRetries: -1}
	for _, o := range opts {
		o(c)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if c.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(c.baseURL))
	}
	if c.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(c.maxRetries))
	}
	c.client = sdk.NewClient(reqOpts...)
	return c
}

// Complete sends one chat completion request and returns the first choice.
func (c *Client) Complete(ctx context.Context, req model.CompletionRequest) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(c.model),
		Messages: ConvertMessages(req),
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai: %w", model.ErrEmptyCompletion)
	}
	return resp.Choices[0].Message.Content, nil
}

// ConvertMessages maps a completion request onto SDK chat messages.
// Exported for testing.
func ConvertMessages(req model.CompletionRequest) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		out = append(out, sdk.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleAssistant:
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}
