// Package openaicompletion implements spec.md's openAICompletion provider
// selector: a legacy, pure-completion backend with no role-tagged message
// API. The role-tagged prompt sequence is joined into a single string with
// "System:/Human:/Assistant:" prefixes and a trailing "Assistant:" per
// spec.md §4.B, then sent through the legacy completions streaming call.
// Grounded on richinex-ariadne's use of github.com/sashabaranov/go-openai,
// the SDK the newer openai-go client dropped this surface from.
package openaicompletion

import (
	"context"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hupe1980/swarmkernel/core"
	"github.com/hupe1980/swarmkernel/model"
)

// Options configures the legacy completion provider.
type Options struct {
	Model   string
	APIKey  string
	BaseURL string
}

// Provider wraps the legacy Completions API behind model.Provider.
type Provider struct {
	client *openai.Client
	opts   Options
}

// New constructs a Provider using go-openai's client.
func New(optFns ...func(*Options)) *Provider {
	opts := Options{Model: openai.GPT3TextDavinci003}
	for _, fn := range optFns {
		fn(&opts)
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return &Provider{client: openai.NewClientWithConfig(cfg), opts: opts}
}

// Generate implements model.Provider over the legacy completion stream.
func (p *Provider) Generate(ctx context.Context, messages []model.Message, opts model.Options) (<-chan model.Chunk, <-chan error) {
	out := make(chan model.Chunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		req := openai.CompletionRequest{
			Model:       p.opts.Model,
			Prompt:      joinPrompt(messages),
			Stream:      true,
			Temperature: float32(opts.Temperature),
			MaxTokens:   opts.MaxTokens,
		}
		stream, err := p.client.CreateCompletionStream(ctx, req)
		if err != nil {
			errCh <- err
			return
		}
		defer stream.Close()

		var completionTokens int
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				errCh <- err
				return
			}
			for _, choice := range resp.Choices {
				if choice.Text == "" {
					continue
				}
				completionTokens += len(strings.Fields(choice.Text))
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- model.Chunk{Delta: choice.Text}:
				}
			}
		}
		out <- model.Chunk{Done: true, Usage: &model.TokenUsage{OutputTokens: completionTokens}}
	}()

	return out, errCh
}

// joinPrompt implements spec.md §4.B's pure-completion translation:
// joining the role-tagged sequence with System:/Human:/Assistant: prefixes
// and a trailing "Assistant:" cue.
func joinPrompt(messages []model.Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			b.WriteString("System: ")
		case core.RoleUser:
			b.WriteString("Human: ")
		case core.RoleAssistant:
			b.WriteString("Assistant: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("Assistant:")
	return b.String()
}

// Info implements model.Provider.
func (p *Provider) Info() model.Info {
	return model.Info{Name: p.opts.Model, Provider: core.ProviderOpenAICompletion}
}
