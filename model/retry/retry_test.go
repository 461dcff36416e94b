package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/swarmkernel/kernelerr"
	"github.com/hupe1980/swarmkernel/model"
)

// fakeProvider fails with a given error on its first failCount calls (before
// ever producing a chunk), then succeeds and streams reply.
type fakeProvider struct {
	failCount int
	err       error
	reply     string
	calls     int
}

func (f *fakeProvider) Info() model.Info {
	return model.Info{Name: "fake", Provider: "fake"}
}

func (f *fakeProvider) Generate(ctx context.Context, messages []model.Message, opts model.Options) (<-chan model.Chunk, <-chan error) {
	f.calls++
	out := make(chan model.Chunk, 8)
	errCh := make(chan error, 1)
	if f.calls <= f.failCount {
		close(out)
		errCh <- f.err
		close(errCh)
		return out, errCh
	}
	go func() {
		defer close(out)
		defer close(errCh)
		out <- model.Chunk{Delta: f.reply}
		out <- model.Chunk{Done: true, Usage: &model.TokenUsage{OutputTokens: len(f.reply)}}
	}()
	return out, errCh
}

func drain(t *testing.T, out <-chan model.Chunk, errCh <-chan error) (string, error) {
	t.Helper()
	var text string
	for {
		select {
		case c, ok := <-out:
			if !ok {
				out = nil
				continue
			}
			text += c.Delta
		case err, ok := <-errCh:
			if ok && err != nil {
				return text, err
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out draining retry provider stream")
		}
		if out == nil {
			select {
			case err := <-errCh:
				return text, err
			default:
				return text, nil
			}
		}
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	inner := &fakeProvider{failCount: 2, err: kernelerr.Wrap(kernelerr.ProviderTransient, "boom", fmt.Errorf("503")), reply: "hello"}
	p := New(inner, Policy{BaseDelay: time.Millisecond, MaxAttempts: 4}, nil)

	out, errCh := p.Generate(context.Background(), []model.Message{{Content: "hi"}}, model.Options{})
	text, err := drain(t, out, errCh)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, 3, inner.calls)
}

func TestRetry_FatalErrorIsNotRetried(t *testing.T) {
	inner := &fakeProvider{failCount: 10, err: kernelerr.Wrap(kernelerr.ProviderFatal, "nope", fmt.Errorf("bad request"))}
	p := New(inner, Policy{BaseDelay: time.Millisecond, MaxAttempts: 4}, nil)

	out, errCh := p.Generate(context.Background(), []model.Message{{Content: "hi"}}, model.Options{})
	_, err := drain(t, out, errCh)
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestRetry_ExhaustsAttemptsAndSurfacesLastError(t *testing.T) {
	inner := &fakeProvider{failCount: 100, err: kernelerr.Wrap(kernelerr.ProviderTransient, "still down", fmt.Errorf("connection reset"))}
	p := New(inner, Policy{BaseDelay: time.Millisecond, MaxAttempts: 3}, nil)

	out, errCh := p.Generate(context.Background(), []model.Message{{Content: "hi"}}, model.Options{})
	_, err := drain(t, out, errCh)
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestRetry_ZeroValuePolicyUsesDefault(t *testing.T) {
	inner := &fakeProvider{reply: "ok"}
	p := New(inner, Policy{}, nil)
	assert.Equal(t, DefaultPolicy().MaxAttempts, p.policy.MaxAttempts)

	out, errCh := p.Generate(context.Background(), []model.Message{{Content: "hi"}}, model.Options{})
	text, err := drain(t, out, errCh)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}
