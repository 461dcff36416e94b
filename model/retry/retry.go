// Package retry wraps a model.Provider with the exponential-backoff retry
// policy of spec.md §4.B: transient failures (network reset, HTTP 503) are
// retried with backoff starting at 2s, doubling, capped at 4 retries; any
// other failure surfaces verbatim. The policy shape is grounded on the
// pack's RetryPolicy struct, reduced here to two fields: BaseDelay and
// MaxAttempts.
package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/hupe1980/swarmkernel/kernelerr"
	"github.com/hupe1980/swarmkernel/logging"
	"github.com/hupe1980/swarmkernel/model"
)

// Policy configures the backoff schedule.
type Policy struct {
	BaseDelay time.Duration
	// MaxAttempts counts every call to the inner provider, the first one
	// included.
	MaxAttempts int
}

// DefaultPolicy is spec.md §4.B's documented policy: 2s base, doubling, 4
// retries (5 attempts in all).
func DefaultPolicy() Policy { return Policy{BaseDelay: 2 * time.Second, MaxAttempts: 5} }

// Provider wraps another model.Provider, retrying only failures that occur
// before the first chunk is produced. A mid-stream error is never retried:
// partial output already reached the subscriber and re-sending it would
// duplicate text (see DESIGN.md's resolution of this Open Question).
type Provider struct {
	inner  model.Provider
	policy Policy
	logger *logging.KernelLogger
}

// New wraps inner with the given policy (DefaultPolicy() if zero-valued).
// logger may be nil, in which case LLM call logging is skipped.
func New(inner model.Provider, policy Policy, logger *logging.KernelLogger) *Provider {
	if policy.MaxAttempts == 0 {
		policy = DefaultPolicy()
	}
	return &Provider{inner: inner, policy: policy, logger: logger}
}

// Generate implements model.Provider, retrying transient pre-stream
// failures with exponential backoff.
func (p *Provider) Generate(ctx context.Context, messages []model.Message, opts model.Options) (<-chan model.Chunk, <-chan error) {
	out := make(chan model.Chunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		delay := p.policy.BaseDelay
		var lastErr error
		for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
			start := time.Now()
			chunks, innerErrCh := p.inner.Generate(ctx, messages, opts)

			first, ok := <-chunks
			if !ok {
				// Stream closed with no chunks: surface whatever error (if any)
				// arrived, else treat as an empty-but-successful response.
				if err, hasErr := <-innerErrCh; hasErr && err != nil {
					lastErr = err
					if !isTransient(err) || attempt == p.policy.MaxAttempts {
						p.logLLMCall(attempt, time.Since(start), false, err)
						errCh <- err
						return
					}
					p.logLLMCall(attempt, time.Since(start), false, err)
					if !sleep(ctx, delay) {
						errCh <- ctx.Err()
						return
					}
					delay *= 2
					continue
				}
				p.logLLMCall(attempt, time.Since(start), true, nil)
				out <- model.Chunk{Done: true, Usage: &model.TokenUsage{}}
				return
			}

			// Got at least one chunk: from here on, forward verbatim and never retry.
			p.logLLMCall(attempt, time.Since(start), true, nil)
			out <- first
			for c := range chunks {
				out <- c
			}
			if err := <-innerErrCh; err != nil {
				errCh <- err
			}
			return
		}
		if lastErr != nil {
			errCh <- lastErr
		}
	}()

	return out, errCh
}

// Info implements model.Provider.
func (p *Provider) Info() model.Info { return p.inner.Info() }

func (p *Provider) logLLMCall(attempt int, dur time.Duration, success bool, err error) {
	if p.logger == nil {
		return
	}
	p.logger.LogLLMCall(string(p.inner.Info().Provider), p.inner.Info().Name, attempt, dur, success, err)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// isTransient classifies an error as spec.md §4.B's "network reset, HTTP
// 503" class vs. any other (fatal, surfaced verbatim) failure.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if kind, ok := kernelerr.KindOf(err); ok {
		return kind == kernelerr.ProviderTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"503", "connection reset", "timeout", "temporarily unavailable", "eof"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
