package engine

import (
	"fmt"

	"github.com/hupe1980/swarmkernel/config"
	"github.com/hupe1980/swarmkernel/core"
	"github.com/hupe1980/swarmkernel/logging"
	"github.com/hupe1980/swarmkernel/model"
	"github.com/hupe1980/swarmkernel/model/anthropic"
	"github.com/hupe1980/swarmkernel/model/local"
	"github.com/hupe1980/swarmkernel/model/openai"
	"github.com/hupe1980/swarmkernel/model/openaicompat"
	"github.com/hupe1980/swarmkernel/model/openaicompletion"
	"github.com/hupe1980/swarmkernel/model/retry"
)

// ProviderFactory builds the model.Provider an agent talks to, from its own
// record (provider selector, model id, optional endpoint/credential).
type ProviderFactory func(agent core.Agent) (model.Provider, error)

// DefaultProviderFactory builds a real Provider per spec.md §3's 5-way
// selector, wrapping every backend in the spec.md §4.B retry policy.
func DefaultProviderFactory(cfg *config.Config, logger *logging.KernelLogger) ProviderFactory {
	return func(agent core.Agent) (model.Provider, error) {
		var inner model.Provider
		switch agent.Provider {
		case core.ProviderAnthropic:
			inner = anthropic.New(func(o *anthropic.Options) {
				if agent.Model != "" {
					o.Model = agent.Model
				}
				o.APIKey = agent.Credential
				o.BaseURL = agent.Endpoint
			})
		case core.ProviderOpenAIChat:
			inner = openai.New(func(o *openai.Options) {
				if agent.Model != "" {
					o.Model = agent.Model
				}
				o.APIKey = agent.Credential
			})
		case core.ProviderOpenAICompatible:
			inner = openaicompat.New(func(o *openaicompat.Options) {
				o.Model = agent.Model
				o.APIKey = agent.Credential
				o.BaseURL = agent.Endpoint
			})
		case core.ProviderOpenAICompletion:
			inner = openaicompletion.New(func(o *openaicompletion.Options) {
				if agent.Model != "" {
					o.Model = agent.Model
				}
				o.APIKey = agent.Credential
				o.BaseURL = agent.Endpoint
			})
		case core.ProviderLocalChat:
			p, err := local.New(func(o *local.Options) {
				if agent.Model != "" {
					o.Model = agent.Model
				}
				o.BaseURL = agent.Endpoint
			})
			if err != nil {
				return nil, err
			}
			inner = p
		default:
			return nil, fmt.Errorf("unknown provider selector %q", agent.Provider)
		}
		// cfg.RetryMaxAttempts counts retries (default 4); the policy counts
		// attempts, the first call included.
		policy := retry.Policy{BaseDelay: cfg.RetryBaseDelay, MaxAttempts: cfg.RetryMaxAttempts + 1}
		return retry.New(inner, policy, logger), nil
	}
}
