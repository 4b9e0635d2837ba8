package main

import (
	"context"
	"fmt"
	"time"

	"github.com/johncui/haiku/pkg/model"
	"github.com/johncui/haiku/pkg/provider/anthropic"
	"github.com/johncui/haiku/pkg/provider/gemini"
	"github.com/johncui/haiku/pkg/provider/openai"
)

type providerConfig struct {
	Name         string
	APIKey       string
	OpenAIKey    string
	GeminiKey    string
	AnthropicKey string
	Model        string
	BaseURL      string
	MaxRetries   int
	Timeout      time.Duration
}

// resolveProvider selects and constructs the provider. Env values are read in
// loadConfig and passed in here.
func resolveProvider(ctx context.Context, cfg providerConfig) (model.Provider, string, error) {
	name := cfg.Name

	// Auto-detect from env keys if not named.
	if name == "" {
		var found []string
		if cfg.OpenAIKey != "" {
			found = append(found, "openai")
		}
		if cfg.GeminiKey != "" {
			found = append(found, "gemini")
		}
		if cfg.AnthropicKey != "" {
			found = append(found, "anthropic")
		}
		switch len(found) {
		case 0:
			return nil, "", fmt.Errorf("no API key found: set OPENAI_API_KEY, GEMINI_API_KEY or ANTHROPIC_API_KEY (or HAIKU_PROVIDER and HAIKU_API_KEY)")
		case 1:
			name = found[0]
		default:
			return nil, "", fmt.Errorf("multiple API keys found %v: set HAIKU_PROVIDER to select one", found)
		}
	}

	// HAIKU_API_KEY overrides the provider-specific variable.
	key := cfg.APIKey
	switch name {
	case "openai":
		if key == "" {
			key = cfg.OpenAIKey
		}
		if key == "" {
			return nil, "", fmt.Errorf("OPENAI_API_KEY not set")
		}
		return openai.New(key,
			openai.WithModel(cfg.Model),
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithMaxRetries(cfg.MaxRetries),
		), name, nil
	case "gemini":
		if key == "" {
			key = cfg.GeminiKey
		}
		if key == "" {
			return nil, "", fmt.Errorf("GEMINI_API_KEY not set")
		}
		client, err := gemini.New(ctx, key, gemini.WithModel(cfg.Model), gemini.WithBaseURL(cfg.BaseURL))
		if err != nil {
			return nil, "", err
		}
		return client, name, nil
	case "anthropic":
		if key == "" {
			key = cfg.AnthropicKey
		}
		if key == "" {
			return nil, "", fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		return anthropic.New(key, anthropic.WithModel(cfg.Model), anthropic.WithBaseURL(cfg.BaseURL)), name, nil
	default:
		return nil, "", fmt.Errorf("unknown provider %q: must be \"openai\", \"gemini\" or \"anthropic\"", name)
	}
}
