package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcenter/core"
)

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()

	a := core.Agent{ID: "assistant", Model: "gpt", Instructions: "Be concise"}
	require.NoError(t, r.Register(a))

	got, ok := r.Get("assistant")
	require.True(t, ok)
	assert.Equal(t, "Be concise", got.Instructions)

	err := r.Register(a)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	assert.ErrorIs(t, r.Register(core.Agent{Model: "gpt"}), core.ErrInvalidConfig)
	assert.ErrorIs(t, r.Register(core.Agent{ID: "no-model"}), core.ErrInvalidConfig)
}

func TestRegistryReplace(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(core.Agent{ID: "assistant", Model: "gpt"}))
	require.NoError(t, r.Replace(core.Agent{ID: "assistant", Model: "claude"}))

	got, ok := r.Get("assistant")
	require.True(t, ok)
	assert.Equal(t, "claude", got.Model)
}

func TestRegistryClones(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(core.Agent{ID: "assistant", Model: "gpt", Tools: []string{"search"}}))

	got, _ := r.Get("assistant")
	got.Tools[0] = "mutated"

	again, _ := r.Get("assistant")
	assert.Equal(t, "search", again.Tools[0])
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(core.Agent{ID: "assistant", Model: "gpt"}))
	assert.True(t, r.Remove("assistant"))
	assert.False(t, r.Remove("assistant"))
	assert.Empty(t, r.IDs())
}
