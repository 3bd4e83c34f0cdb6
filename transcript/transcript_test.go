package transcript

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcenter/core"
	"github.com/hupe1980/agentcenter/logging"
)

func newTestBuilder() *Builder {
	return NewBuilder(func(o *Options) { o.Logger = logging.NoOpLogger{} })
}

func testAgent(instructions string) *core.Agent {
	return &core.Agent{ID: "assistant", Model: "mock", Instructions: instructions}
}

func TestBuildPassesInstructionsThrough(t *testing.T) {
	b := newTestBuilder()

	out, err := b.Build(context.Background(), Input{
		Agent: testAgent("Be concise."),
	})
	require.NoError(t, err)

	assert.Equal(t, "Be concise.", out.Instructions)
	assert.Empty(t, out.History)
	assert.Empty(t, out.Summary)
	assert.Zero(t, out.Dropped)
}

func TestBuildRendersTemplateData(t *testing.T) {
	b := newTestBuilder()

	out, err := b.Build(context.Background(), Input{
		Agent: testAgent("You assist {{.customer}} with billing."),
		Data:  map[string]any{"customer": "ACME"},
	})
	require.NoError(t, err)

	assert.Equal(t, "You assist ACME with billing.", out.Instructions)
}

func TestBuildFoldsSystemAndOmitsToolResults(t *testing.T) {
	b := newTestBuilder()

	history := []core.Message{
		core.NewUserMessage("what is 2+2?"),
		core.NewToolCallMessage(core.ToolCall{ID: "c1", Name: "calc", Arguments: `{"a":2,"b":2}`}),
		core.NewToolResultMessage("c1", "calc", "4"),
		core.NewAssistantMessage("It is 4."),
		core.NewSystemMessage("The user prefers short answers."),
	}

	out, err := b.Build(context.Background(), Input{
		Agent:   testAgent("Be concise."),
		History: history,
	})
	require.NoError(t, err)

	assert.Contains(t, out.Instructions, "Be concise.")
	assert.Contains(t, out.Instructions, "The user prefers short answers.")

	// user, assistant tool-call and assistant text survive; the tool
	// result and the system message do not.
	require.Len(t, out.History, 3)
	assert.Equal(t, core.RoleUser, out.History[0].Role)
	assert.NotEmpty(t, out.History[1].ToolCalls)
	assert.Equal(t, "It is 4.", out.History[2].Content)
}

func TestBuildWindowsByMessageCount(t *testing.T) {
	b := newTestBuilder()

	history := []core.Message{
		core.NewUserMessage("one"),
		core.NewAssistantMessage("two"),
		core.NewUserMessage("three"),
		core.NewAssistantMessage("four"),
	}

	out, err := b.Build(context.Background(), Input{
		Agent:   testAgent("Be concise."),
		History: history,
		Policy:  core.ExecutionPolicy{MaxHistoryMessages: 2},
	})
	require.NoError(t, err)

	require.Len(t, out.History, 2)
	assert.Equal(t, "three", out.History[0].Content)
	assert.Equal(t, "four", out.History[1].Content)
	assert.Equal(t, 2, out.Dropped)
}

func TestBuildWindowsByTokenBudget(t *testing.T) {
	b := newTestBuilder()

	history := []core.Message{
		core.NewUserMessage(strings.Repeat("x", 4000)),
		core.NewAssistantMessage("short answer"),
	}

	out, err := b.Build(context.Background(), Input{
		Agent:   testAgent("Be concise."),
		History: history,
		Policy:  core.ExecutionPolicy{MaxHistoryTokens: 100},
	})
	require.NoError(t, err)

	require.Len(t, out.History, 1)
	assert.Equal(t, "short answer", out.History[0].Content)
	assert.Equal(t, 1, out.Dropped)
}

func TestBuildInjectsPersistedSummary(t *testing.T) {
	b := newTestBuilder()

	out, err := b.Build(context.Background(), Input{
		Agent:   testAgent("Be concise."),
		Summary: "the user is debugging a billing issue",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out.Instructions, "Conversation summary: the user is debugging a billing issue"))
	assert.Contains(t, out.Instructions, "Be concise.")
	assert.Empty(t, out.Summary, "an injected summary is not a newly produced one")
}

func TestBuildSummarizerReplacesSummary(t *testing.T) {
	b := newTestBuilder()

	var got []core.Message

	out, err := b.Build(context.Background(), Input{
		Agent: testAgent("Be concise."),
		History: []core.Message{
			core.NewUserMessage("one"),
			core.NewAssistantMessage("two"),
			core.NewUserMessage("three"),
		},
		Summary: "stale summary",
		Policy:  core.ExecutionPolicy{MaxHistoryMessages: 1},
		Summarizer: func(_ context.Context, dropped []core.Message) (string, error) {
			got = dropped

			return "fresh summary", nil
		},
	})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "one", got[0].Content)
	assert.Equal(t, "fresh summary", out.Summary)
	assert.Contains(t, out.Instructions, "Conversation summary: fresh summary")
	assert.NotContains(t, out.Instructions, "stale summary")
}

func TestBuildSummarizerFailureKeepsOldSummary(t *testing.T) {
	b := newTestBuilder()

	out, err := b.Build(context.Background(), Input{
		Agent: testAgent("Be concise."),
		History: []core.Message{
			core.NewUserMessage("one"),
			core.NewAssistantMessage("two"),
		},
		Summary: "old summary",
		Policy:  core.ExecutionPolicy{MaxHistoryMessages: 1},
		Summarizer: func(context.Context, []core.Message) (string, error) {
			return "", errors.New("summarizer model unavailable")
		},
	})
	require.NoError(t, err, "a failing summarizer never fails the build")

	assert.Contains(t, out.Instructions, "Conversation summary: old summary")
	assert.Empty(t, out.Summary)
	assert.Equal(t, 1, out.Dropped)
}

func TestBuildNoSummarizerDropsSilently(t *testing.T) {
	b := newTestBuilder()

	out, err := b.Build(context.Background(), Input{
		Agent: testAgent("Be concise."),
		History: []core.Message{
			core.NewUserMessage("one"),
			core.NewAssistantMessage("two"),
		},
		Policy: core.ExecutionPolicy{MaxHistoryMessages: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, out.Dropped)
	assert.Empty(t, out.Summary)
	assert.NotContains(t, out.Instructions, "Conversation summary")
}
