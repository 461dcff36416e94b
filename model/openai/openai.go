// Package openai adapts the OpenAI Chat Completions API (streaming) to
// model.Provider. Grounded on the teacher's model/openai package, trimmed
// of native function-calling (this kernel's tool detection happens at the
// text level via the Tool-Call Parser, per spec.md §4.D) and rebuilt
// around the simplified Message/Chunk shape of spec.md §4.B.
package openai

import (
	"context"
	"fmt"

	"github.com/hupe1980/swarmkernel/core"
	"github.com/hupe1980/swarmkernel/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Options configures the OpenAI provider adapter.
type Options struct {
	Model   string
	BaseURL string
	APIKey  string
}

// Provider wraps the OpenAI Chat Completions API behind model.Provider.
type Provider struct {
	client *openai.Client
	opts   Options
	kind   core.ProviderKind
}

// New constructs a Provider using the official client for spec.md's
// openAIChat selector.
func New(optFns ...func(*Options)) *Provider {
	return newProvider(core.ProviderOpenAIChat, optFns...)
}

// NewCompatible constructs a Provider pointed at a custom base URL, for
// spec.md's openAICompatible selector — same client, different endpoint.
func NewCompatible(optFns ...func(*Options)) *Provider {
	return newProvider(core.ProviderOpenAICompatible, optFns...)
}

func newProvider(kind core.ProviderKind, optFns ...func(*Options)) *Provider {
	opts := Options{Model: openai.ChatModelGPT4oMini}
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
	client := openai.NewClient(clientOpts...)
	return &Provider{client: &client, opts: opts, kind: kind}
}

// NewFromClient constructs a Provider from an already configured client.
func NewFromClient(client *openai.Client, kind core.ProviderKind, optFns ...func(*Options)) *Provider {
	opts := Options{Model: openai.ChatModelGPT4oMini}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts, kind: kind}
}

// Generate implements model.Provider, forwarding text deltas as they
// stream and emitting a terminal done chunk carrying token usage.
func (p *Provider) Generate(ctx context.Context, messages []model.Message, opts model.Options) (<-chan model.Chunk, <-chan error) {
	out := make(chan model.Chunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := openai.ChatCompletionNewParams{
			Model:       p.opts.Model,
			Messages:    buildMessages(messages),
			Temperature: openai.Float(opts.Temperature),
		}
		if opts.MaxTokens > 0 {
			params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
		}

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		var usage model.TokenUsage
		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 {
				usage.InputTokens = int(chunk.Usage.PromptTokens)
				usage.OutputTokens = int(chunk.Usage.CompletionTokens)
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- model.Chunk{Delta: choice.Delta.Content}:
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("openai streaming error: %w", err)
			return
		}
		out <- model.Chunk{Done: true, Usage: &usage}
	}()

	return out, errCh
}

// buildMessages converts the role-tagged prompt sequence into OpenAI chat
// messages; consecutive same-role turns are passed through uncoalesced,
// since the Chat Completions API tolerates them.
func buildMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case core.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// Info implements model.Provider.
func (p *Provider) Info() model.Info {
	return model.Info{Name: p.opts.Model, Provider: p.kind}
}
