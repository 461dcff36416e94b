package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/swarmkernel/core"
)

func TestRegistry_CreateGetSanitizesCredential(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	created, err := r.Create(CreateFields{Name: "Coder", Credential: "sk-secret"})
	require.NoError(t, err)
	assert.True(t, created.HasCredential)
	assert.Empty(t, created.Credential)

	fetched, err := r.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Coder", fetched.Name)
	assert.Empty(t, fetched.Credential)
}

func TestRegistry_CreateRequiresName(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	_, err = r.Create(CreateFields{})
	assert.Error(t, err)
}

func TestRegistry_FindByName_CaseInsensitiveDeterministicTiebreak(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	first, err := r.Create(CreateFields{Name: "Coder"})
	require.NoError(t, err)
	_, err = r.Create(CreateFields{Name: "coder"})
	require.NoError(t, err)

	found, err := r.FindByName("CODER", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func TestRegistry_FindByName_NotFound(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	_, err = r.FindByName("Nobody", "")
	assert.Error(t, err)
}

func TestRegistry_UpdateRejectsRuntimeState(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	a, err := r.Create(CreateFields{Name: "Coder"})
	require.NoError(t, err)

	newName := "Coder Prime"
	updated, err := r.Update(a.ID, core.UpdatableFields{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Coder Prime", updated.Name)
	assert.Equal(t, core.StatusIdle, updated.Status)
}

func TestRegistry_AppendHistory_CountsAsMessageGating(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	a, err := r.Create(CreateFields{Name: "Coder"})
	require.NoError(t, err)

	require.NoError(t, r.AppendHistory(a.ID, core.HistoryEntry{Role: core.RoleUser, Content: "hi"}, false))
	require.NoError(t, r.AppendHistory(a.ID, core.HistoryEntry{Role: core.RoleAssistant, Content: "hello"}, true))
	require.NoError(t, r.AppendHistory(a.ID, core.HistoryEntry{Role: core.RoleUser, Content: "[TOOL RESULTS]"}, false))
	require.NoError(t, r.AppendHistory(a.ID, core.HistoryEntry{Role: core.RoleAssistant, Content: "done"}, false))

	got, err := r.Get(a.ID)
	require.NoError(t, err)
	assert.Len(t, got.History, 4)
	assert.Equal(t, 1, got.Metrics.TotalMessages)
}

func TestRegistry_ToggleTodo_IsSelfInverse(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	a, err := r.Create(CreateFields{Name: "Coder"})
	require.NoError(t, err)
	todo, err := r.AddTodo(a.ID, "write tests")
	require.NoError(t, err)

	require.NoError(t, r.ToggleTodo(a.ID, todo.ID))
	require.NoError(t, r.ToggleTodo(a.ID, todo.ID))

	got, err := r.Get(a.ID)
	require.NoError(t, err)
	assert.False(t, got.Todos[0].Done)
	assert.Nil(t, got.Todos[0].CompletedAt)
}

func TestRegistry_Delete_RemovesFromListAndOrder(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	a, err := r.Create(CreateFields{Name: "Coder"})
	require.NoError(t, err)

	require.NoError(t, r.Delete(a.ID))
	_, err = r.Get(a.ID)
	assert.Error(t, err)
	assert.Empty(t, r.List())
}
