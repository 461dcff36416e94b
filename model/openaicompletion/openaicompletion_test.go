package openaicompletion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/swarmkernel/core"
	"github.com/hupe1980/swarmkernel/model"
)

func TestJoinPrompt_BuildsPrefixedTranscriptWithTrailingCue(t *testing.T) {
	msgs := []model.Message{
		{Role: core.RoleSystem, Content: "be terse"},
		{Role: core.RoleUser, Content: "hi"},
		{Role: core.RoleAssistant, Content: "hello"},
		{Role: core.RoleUser, Content: "how are you"},
	}
	got := joinPrompt(msgs)
	want := "System: be terse\n\nHuman: hi\n\nAssistant: hello\n\nHuman: how are you\n\nAssistant:"
	assert.Equal(t, want, got)
}

func TestJoinPrompt_EmptyMessagesStillEndsWithCue(t *testing.T) {
	assert.Equal(t, "Assistant:", joinPrompt(nil))
}

func TestProvider_Info(t *testing.T) {
	p := New(func(o *Options) { o.Model = "text-davinci-003" })
	info := p.Info()
	assert.Equal(t, core.ProviderOpenAICompletion, info.Provider)
	assert.Equal(t, "text-davinci-003", info.Name)
}
