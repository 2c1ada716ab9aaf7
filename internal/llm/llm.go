// Package llm provides a thin, provider-agnostic completion interface used by
// the address extractor, live-feed classifier, and summariser. It wraps
// github.com/mozilla-ai/any-llm-go so a single call site can target either a
// local Ollama model or a hosted OpenAI model without branching on provider.
package llm

import (
	"context"
	"fmt"
	"strings"

	anyllm "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
)

// Provider is the abstraction every LLM-backed component in this codebase
// talks to: address extraction, live-feed incident classification, and the
// summariser/Ask-AI windowed Q&A all call Complete with a system/user prompt
// pair and get back raw text.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Client wraps an any-llm-go backend for a single fixed model.
type Client struct {
	backend anyllm.Provider
	model   string
}

// New builds a Client for providerName ("ollama" or "openai"), reading
// credentials from the environment the same way any-llm-go's own option
// helpers do (OLLAMA host via baseURL, OPENAI_API_KEY via apiKey).
func New(providerName, model, baseURL, apiKey string) (*Client, error) {
	var opts []anyllm.Option
	if baseURL != "" {
		opts = append(opts, anyllm.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		opts = append(opts, anyllm.WithAPIKey(apiKey))
	}

	var backend anyllm.Provider
	var err error
	switch strings.ToLower(providerName) {
	case "ollama":
		backend, err = ollama.New(opts...)
	case "openai":
		backend, err = anyllmoai.New(opts...)
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q (want ollama or openai)", providerName)
	}
	if err != nil {
		return nil, fmt.Errorf("llm: create %q backend: %w", providerName, err)
	}
	if model == "" {
		return nil, fmt.Errorf("llm: model must not be empty")
	}
	return &Client{backend: backend, model: model}, nil
}

// Complete sends a single system/user turn and returns the assistant's text.
// Temperature is left at the provider default (0 in any-llm-go's sense means
// "not set"); every call site here wants deterministic, low-variance output.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := anyllm.CompletionParams{
		Model: c.model,
		Messages: []anyllm.Message{
			{Role: anyllm.RoleSystem, Content: systemPrompt},
			{Role: anyllm.RoleUser, Content: userPrompt},
		},
	}
	resp, err := c.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: empty choices in response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}
