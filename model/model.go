// Package model defines the provider-agnostic streaming chat abstraction
// (the Provider Adapter, spec.md §4.B) implemented by model/anthropic,
// model/openai, model/openaicompat, model/openaicompletion and
// model/local. Unify streaming generation behind a single interface so
// the Conversation Engine never branches on vendor.
package model

import (
	"context"
	"fmt"

	"github.com/hupe1980/swarmkernel/core"
)

// Message is one role-tagged turn in the prompt sequence handed to a
// provider. Role is one of system/user/assistant.
type Message struct {
	Role    core.HistoryRole
	Content string
}

// Options carries the two provider-agnostic generation parameters spec.md
// §4.B names.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// TokenUsage is reported once, on the terminal Chunk of a stream.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Chunk is one element of the lazy sequence a Provider's Generate returns.
// Exactly one of Delta (a text chunk) or Usage (the terminal chunk) is set;
// Done is true only on the final element.
type Chunk struct {
	Delta string
	Done  bool
	Usage *TokenUsage
}

// Info describes a concrete provider implementation.
type Info struct {
	Name     string
	Provider core.ProviderKind
}

// Provider is the minimal interface the Conversation Engine drives: open a
// streaming chat given a prompt sequence and options, get back a lazy
// sequence of chunks and a parallel error channel. At most one error is
// ever sent. Both channels are closed when the stream ends, the error
// channel first; a consumer reads the chunk channel until it is closed and
// then receives from the error channel.
type Provider interface {
	Generate(ctx context.Context, messages []Message, opts Options) (<-chan Chunk, <-chan error)
	Info() Info
}

// MockProvider is a deterministic in-memory Provider for tests.
type MockProvider struct {
	info      Info
	responses map[string]string
}

// NewMockProvider constructs a MockProvider under the given provider kind.
func NewMockProvider(name string, kind core.ProviderKind) *MockProvider {
	return &MockProvider{info: Info{Name: name, Provider: kind}, responses: map[string]string{}}
}

// AddResponse registers a canned completion keyed by the last user message.
func (m *MockProvider) AddResponse(lastUserMessage, response string) {
	m.responses[lastUserMessage] = response
}

// Generate implements Provider, streaming character-by-character then a
// terminal done chunk carrying a trivial token count.
func (m *MockProvider) Generate(ctx context.Context, messages []Message, opts Options) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		if len(messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		last := messages[len(messages)-1]
		full := m.responses[last.Content]
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", last.Content)
		}
		for _, r := range full {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- Chunk{Delta: string(r)}:
			}
		}
		out <- Chunk{Done: true, Usage: &TokenUsage{InputTokens: len(last.Content), OutputTokens: len(full)}}
	}()
	return out, errCh
}

// Info implements Provider.
func (m *MockProvider) Info() Info { return m.info }
