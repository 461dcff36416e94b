// Package openaicompat implements spec.md's openAICompatible provider
// selector: any OpenAI-wire-compatible endpoint reached via a custom base
// URL. It is a thin wrapper over model/openai — same client library, same
// wire format, different endpoint — so no new dependency is introduced.
package openaicompat

import (
	"github.com/hupe1980/swarmkernel/model/openai"
)

// Options configures the compatible endpoint.
type Options struct {
	Model   string
	BaseURL string
	APIKey  string
}

// New constructs a Provider targeting a custom OpenAI-compatible endpoint.
// BaseURL is required; most self-hosted gateways (vLLM, LiteLLM, etc.)
// accept any non-empty API key.
func New(optFns ...func(*Options)) *openai.Provider {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return openai.NewCompatible(func(o *openai.Options) {
		o.Model = opts.Model
		o.BaseURL = opts.BaseURL
		o.APIKey = opts.APIKey
	})
}
