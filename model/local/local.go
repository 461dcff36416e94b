// Package local implements spec.md's localChat provider selector over a
// local Ollama server. Grounded on hkdb-otui's ollama.Client /
// provider.OllamaProvider adaptation of github.com/ollama/ollama/api.
package local

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/hupe1980/swarmkernel/core"
	"github.com/hupe1980/swarmkernel/model"
)

// Options configures the local provider.
type Options struct {
	Model   string
	BaseURL string // e.g. http://localhost:11434; empty uses the environment default.
}

// Provider wraps ollama/api.Client behind model.Provider.
type Provider struct {
	client *api.Client
	opts   Options
}

// New constructs a Provider talking to a local (or remote) Ollama server.
func New(optFns ...func(*Options)) (*Provider, error) {
	opts := Options{Model: "llama3.1"}
	for _, fn := range optFns {
		fn(&opts)
	}
	var client *api.Client
	if opts.BaseURL != "" {
		base, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama base url: %w", err)
		}
		client = api.NewClient(base, http.DefaultClient)
	} else {
		envClient, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client from environment: %w", err)
		}
		client = envClient
	}
	return &Provider{client: client, opts: opts}, nil
}

// Generate implements model.Provider, streaming Ollama chat responses.
func (p *Provider) Generate(ctx context.Context, messages []model.Message, opts model.Options) (<-chan model.Chunk, <-chan error) {
	out := make(chan model.Chunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		stream := true
		req := &api.ChatRequest{
			Model:    p.opts.Model,
			Messages: buildMessages(messages),
			Stream:   &stream,
			Options: map[string]interface{}{
				"temperature": opts.Temperature,
			},
		}

		var promptTokens, completionTokens int
		err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if resp.Message.Content != "" {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case out <- model.Chunk{Delta: resp.Message.Content}:
				}
			}
			if resp.Done {
				promptTokens = resp.PromptEvalCount
				completionTokens = resp.EvalCount
			}
			return nil
		})
		if err != nil {
			errCh <- fmt.Errorf("ollama chat error: %w", err)
			return
		}
		out <- model.Chunk{Done: true, Usage: &model.TokenUsage{InputTokens: promptTokens, OutputTokens: completionTokens}}
	}()

	return out, errCh
}

// buildMessages converts the role-tagged prompt sequence into Ollama
// messages; Ollama accepts the system role directly, so no translation is
// needed beyond a type conversion.
func buildMessages(messages []model.Message) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, api.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// Info implements model.Provider.
func (p *Provider) Info() model.Info {
	return model.Info{Name: p.opts.Model, Provider: core.ProviderLocalChat}
}
