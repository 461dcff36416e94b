// Package anthropic adapts the Anthropic Messages API to model.Provider,
// including full streaming support (spec.md §4.B) via
// Messages.NewStreaming. Grounded on the teacher's model/anthropic package,
// extended past its non-streaming-only stub.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hupe1980/swarmkernel/core"
	"github.com/hupe1980/swarmkernel/model"
)

// Options configures the Anthropic provider adapter.
type Options struct {
	Model   anthropic.Model
	APIKey  string
	BaseURL string
}

// Provider wraps the Anthropic Messages API behind model.Provider.
type Provider struct {
	client *anthropic.Client
	opts   Options
}

// New constructs a Provider using the official client.
func New(optFns ...func(*Options)) *Provider {
	opts := Options{Model: anthropic.ModelClaude3_5Sonnet20241022}
	for _, fn := range optFns {
		fn(&opts)
	}
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Provider{client: &client, opts: opts}
}

// NewFromClient constructs a Provider from an already configured client.
func NewFromClient(client *anthropic.Client, optFns ...func(*Options)) *Provider {
	opts := Options{Model: anthropic.ModelClaude3_5Sonnet20241022}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// Generate implements model.Provider, streaming text deltas as they arrive
// and emitting a terminal done chunk carrying token usage.
func (p *Provider) Generate(ctx context.Context, messages []model.Message, opts model.Options) (<-chan model.Chunk, <-chan error) {
	out := make(chan model.Chunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := anthropic.MessageNewParams{
			Model:       p.opts.Model,
			Messages:    buildMessages(messages),
			MaxTokens:   int64(opts.MaxTokens),
			Temperature: anthropic.Float(opts.Temperature),
		}
		if sys := extractSystem(messages); sys != "" {
			params.System = []anthropic.TextBlockParam{{Text: sys}}
		}

		stream := p.client.Messages.NewStreaming(ctx, params)
		var acc anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				errCh <- fmt.Errorf("anthropic stream accumulate: %w", err)
				return
			}
			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if textDelta, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok && textDelta.Text != "" {
					select {
					case <-ctx.Done():
						errCh <- ctx.Err()
						return
					case out <- model.Chunk{Delta: textDelta.Text}:
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("anthropic streaming error: %w", err)
			return
		}

		out <- model.Chunk{
			Done: true,
			Usage: &model.TokenUsage{
				InputTokens:  int(acc.Usage.InputTokens),
				OutputTokens: int(acc.Usage.OutputTokens),
			},
		}
	}()

	return out, errCh
}

// buildMessages converts the role-tagged prompt sequence into Anthropic
// messages, coalescing the system role out (handled separately) per
// spec.md §4.B's "separate the system message" requirement.
func buildMessages(messages []model.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			continue
		case core.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

// extractSystem concatenates every system-role message into one block,
// since Anthropic treats the system prompt specially (spec.md §4.B).
func extractSystem(messages []model.Message) string {
	var sys string
	for _, m := range messages {
		if m.Role == core.RoleSystem {
			if sys != "" {
				sys += "\n\n"
			}
			sys += m.Content
		}
	}
	return sys
}

// Info implements model.Provider.
func (p *Provider) Info() model.Info {
	return model.Info{Name: string(p.opts.Model), Provider: core.ProviderAnthropic}
}
