package local

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/swarmkernel/core"
	"github.com/hupe1980/swarmkernel/model"
)

func TestBuildMessages_PreservesRoleAndOrder(t *testing.T) {
	msgs := []model.Message{
		{Role: core.RoleSystem, Content: "sys"},
		{Role: core.RoleUser, Content: "hi"},
		{Role: core.RoleAssistant, Content: "hello"},
	}
	out := buildMessages(msgs)
	require.Len(t, out, 3)
	assert.Equal(t, "system", out[0].Role)
	assert.Equal(t, "user", out[1].Role)
	assert.Equal(t, "assistant", out[2].Role)
}

func TestNew_WithExplicitBaseURL(t *testing.T) {
	p, err := New(func(o *Options) {
		o.Model = "llama3.1"
		o.BaseURL = "http://localhost:11434"
	})
	require.NoError(t, err)
	info := p.Info()
	assert.Equal(t, core.ProviderLocalChat, info.Provider)
	assert.Equal(t, "llama3.1", info.Name)
}

func TestNew_InvalidBaseURLReturnsError(t *testing.T) {
	_, err := New(func(o *Options) { o.BaseURL = "://bad-url" })
	assert.Error(t, err)
}
