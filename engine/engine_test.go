package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcenter/agent"
	"github.com/hupe1980/agentcenter/core"
	"github.com/hupe1980/agentcenter/eventing"
	"github.com/hupe1980/agentcenter/hook"
	"github.com/hupe1980/agentcenter/logging"
	"github.com/hupe1980/agentcenter/mcp"
	"github.com/hupe1980/agentcenter/model"
	"github.com/hupe1980/agentcenter/session"
	"github.com/hupe1980/agentcenter/tool"
)

// eventRecorder captures every published event for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []eventing.Event
}

func (r *eventRecorder) Observe(ev eventing.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
}

func (r *eventRecorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		kinds = append(kinds, eventing.Kind(ev))
	}

	return kinds
}

type fixture struct {
	engine *Engine
	agents *agent.Registry
	models *model.Registry
	tools  *tool.Registry
	hooks  *hook.Registry
	store  session.Store
	events *eventRecorder
	mock   *model.Mock
}

func newFixture(t *testing.T, optFns ...func(o *mcp.ManagerOptions)) *fixture {
	t.Helper()

	f := &fixture{
		agents: agent.NewRegistry(),
		models: model.NewRegistry(),
		tools:  tool.NewRegistry(),
		hooks:  hook.NewRegistry(),
		store:  session.NewInMemoryStore(),
		events: &eventRecorder{},
		mock:   model.NewMock(),
	}

	bus := eventing.NewBus()
	bus.Subscribe(f.events)

	manager := mcp.NewManager(func(o *mcp.ManagerOptions) {
		o.Bus = bus
		o.Logger = logging.NoOpLogger{}

		for _, fn := range optFns {
			fn(o)
		}
	})

	f.engine = New(Dependencies{
		Agents: f.agents,
		Models: f.models,
		Tools:  f.tools,
		Hooks:  f.hooks,
		MCP:    manager,
		Store:  f.store,
		Bus:    bus,
	}, func(o *Options) {
		o.Logger = logging.NoOpLogger{}
	})

	require.NoError(t, f.models.Register("mock", f.mock))
	require.NoError(t, f.agents.Register(core.Agent{
		ID:           "assistant",
		Model:        "mock",
		Instructions: "Be concise",
	}))

	return f
}

func (f *fixture) newSession(t *testing.T) *core.Session {
	t.Helper()

	sess, err := f.store.UpsertSession(context.Background(), core.NewSession("assistant", "user-1"))
	require.NoError(t, err)

	return sess
}

func (f *fixture) request(sessionID string) TurnRequest {
	return TurnRequest{
		AgentID:     "assistant",
		SessionID:   sessionID,
		UserID:      "user-1",
		Message:     "ping",
		LoadHistory: true,
	}
}

func TestRunTurnPingPong(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t)

	f.mock.AddResponse("pong")

	run, err := f.engine.RunTurn(context.Background(), f.request(sess.ID))
	require.NoError(t, err)

	assert.Equal(t, "pong", run.Text())
	assert.Equal(t, core.RunStatusCompleted, run.Status)
	require.Len(t, run.Messages, 2)
	assert.Equal(t, core.RoleUser, run.Messages[0].Role)
	assert.Equal(t, "ping", run.Messages[0].Content)
	assert.Equal(t, core.RoleAssistant, run.Messages[1].Role)
	assert.Equal(t, "pong", run.Messages[1].Content)

	require.NotNil(t, run.Usage)
	assert.Equal(t, 15, run.Usage.TotalTokens)
	assert.Equal(t, 10, run.Usage.PromptTokens)

	stored, err := f.store.GetSession(context.Background(), sess.ID, session.Filter{})
	require.NoError(t, err)
	require.Len(t, stored.Runs, 1)
	assert.Equal(t, run.ID, stored.Runs[0].ID)

	reqs := f.mock.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Instructions, "Be concise")
	assert.Empty(t, reqs[0].History)
}

func TestRunTurnEventOrder(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t)

	f.mock.AddResponse("pong")

	_, err := f.engine.RunTurn(context.Background(), f.request(sess.ID))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"execution.started",
		"transcript.build.started",
		"transcript.built",
		"model.request.sending",
		"model.response.received",
		"run.saved",
		"execution.completed",
	}, f.events.kinds())
}

func TestRunTurnAgentNotFound(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t)

	req := f.request(sess.ID)
	req.AgentID = "ghost"

	_, err := f.engine.RunTurn(context.Background(), req)
	assert.ErrorIs(t, err, core.ErrAgentNotFound)
	assert.Contains(t, f.events.kinds(), "execution.failed")
}

func TestRunTurnSessionNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.RunTurn(context.Background(), f.request("missing"))
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	// No session was created as a side effect.
	sessions, err := f.store.ListSessions(context.Background(), session.Filter{})
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestRunTurnRetriesUntilSuccess(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t)

	f.mock.AddError(errors.New("connection reset"))
	f.mock.AddError(errors.New("connection reset"))
	f.mock.AddResponse("recovered")

	req := f.request(sess.ID)
	req.Policy = core.ExecutionPolicy{Retries: 2}

	run, err := f.engine.RunTurn(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "recovered", run.Text())
	assert.Len(t, f.mock.Requests(), 3)
}

func TestRunTurnRetriesExhausted(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t)

	last := errors.New("connection reset by peer")
	f.mock.AddError(errors.New("connection reset"))
	f.mock.AddError(last)

	req := f.request(sess.ID)
	req.Policy = core.ExecutionPolicy{Retries: 1}

	_, err := f.engine.RunTurn(context.Background(), req)
	assert.ErrorIs(t, err, last)

	stored, err := f.store.GetSession(context.Background(), sess.ID, session.Filter{})
	require.NoError(t, err)
	assert.Empty(t, stored.Runs, "no run may be persisted for a failed turn")
}

func TestRunTurnTimeout(t *testing.T) {
	f := newFixture(t)

	slow := model.NewMock(func(o *model.MockOptions) { o.Delay = 200 * time.Millisecond })
	require.NoError(t, f.models.Register("slow", slow))
	require.NoError(t, f.agents.Register(core.Agent{ID: "sloth", Model: "slow"}))

	sess, err := f.store.UpsertSession(context.Background(), core.NewSession("sloth", "user-1"))
	require.NoError(t, err)

	req := TurnRequest{
		AgentID:   "sloth",
		SessionID: sess.ID,
		UserID:    "user-1",
		Message:   "ping",
		Policy:    core.ExecutionPolicy{Timeout: 20 * time.Millisecond},
	}

	_, err = f.engine.RunTurn(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrExecutionTimedOut)

	var te *core.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 20*time.Millisecond, te.Timeout)

	stored, err := f.store.GetSession(context.Background(), sess.ID, session.Filter{})
	require.NoError(t, err)
	assert.Empty(t, stored.Runs)
}

func TestRunTurnCallerCancellationIsNotTimeout(t *testing.T) {
	f := newFixture(t)

	slow := model.NewMock(func(o *model.MockOptions) { o.Delay = time.Second })
	require.NoError(t, f.models.Register("slow", slow))
	require.NoError(t, f.agents.Register(core.Agent{ID: "sloth", Model: "slow"}))

	sess, err := f.store.UpsertSession(context.Background(), core.NewSession("sloth", "user-1"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = f.engine.RunTurn(ctx, TurnRequest{
		AgentID:   "sloth",
		SessionID: sess.ID,
		Message:   "ping",
		Policy:    core.ExecutionPolicy{Timeout: time.Minute},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrExecutionTimedOut)
}

func TestBlockingPreHooksChainInOrder(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.hooks.RegisterPre(hook.NewFunctionPreHook("first", true, func(_ context.Context, hctx *hook.Context) error {
		hctx.UserMessage.Content += " [first]"

		return nil
	})))
	require.NoError(t, f.hooks.RegisterPre(hook.NewFunctionPreHook("second", true, func(_ context.Context, hctx *hook.Context) error {
		// Sees the previous hook's rewrite.
		hctx.UserMessage.Content += " [second]"

		return nil
	})))
	require.NoError(t, f.hooks.RegisterPre(hook.NewFunctionPreHook("async", false, func(_ context.Context, hctx *hook.Context) error {
		hctx.UserMessage.Content = "hijacked"

		return nil
	})))

	require.NoError(t, f.agents.Register(core.Agent{
		ID:       "hooked",
		Model:    "mock",
		PreHooks: []string{"first", "second", "async", "unknown"},
	}))

	sess, err := f.store.UpsertSession(context.Background(), core.NewSession("hooked", "user-1"))
	require.NoError(t, err)

	f.mock.AddResponse("pong")

	_, err = f.engine.RunTurn(context.Background(), TurnRequest{
		AgentID:   "hooked",
		SessionID: sess.ID,
		Message:   "ping",
	})
	require.NoError(t, err)

	f.engine.Tasks().Wait()

	reqs := f.mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "ping [first] [second]", reqs[0].Prompt.Content,
		"blocking rewrites chain; the non-blocking rewrite never reaches the model")
}

func TestBlockingPreHookErrorAbortsTurn(t *testing.T) {
	f := newFixture(t)

	cause := errors.New("policy violation")

	require.NoError(t, f.hooks.RegisterPre(hook.NewFunctionPreHook("guard", true, func(context.Context, *hook.Context) error {
		return cause
	})))
	require.NoError(t, f.agents.Register(core.Agent{
		ID:       "guarded",
		Model:    "mock",
		PreHooks: []string{"guard"},
	}))

	sess, err := f.store.UpsertSession(context.Background(), core.NewSession("guarded", "user-1"))
	require.NoError(t, err)

	_, err = f.engine.RunTurn(context.Background(), TurnRequest{
		AgentID:   "guarded",
		SessionID: sess.ID,
		Message:   "ping",
	})
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, f.mock.Requests(), "no model call after a blocking pre-hook failure")
}

func TestPostHooksReceivePersistedRun(t *testing.T) {
	f := newFixture(t)

	var (
		mu       sync.Mutex
		observed []string
	)

	require.NoError(t, f.hooks.RegisterPost(hook.NewFunctionPostHook("audit", true, func(_ context.Context, hctx *hook.Context) error {
		mu.Lock()
		defer mu.Unlock()

		observed = append(observed, hctx.Run.ID)

		return nil
	})))
	require.NoError(t, f.hooks.RegisterPost(hook.NewFunctionPostHook("broken", true, func(context.Context, *hook.Context) error {
		return errors.New("post-hook failure is logged, not surfaced")
	})))

	require.NoError(t, f.agents.Register(core.Agent{
		ID:        "audited",
		Model:     "mock",
		PostHooks: []string{"audit", "broken"},
	}))

	sess, err := f.store.UpsertSession(context.Background(), core.NewSession("audited", "user-1"))
	require.NoError(t, err)

	f.mock.AddResponse("pong")

	run, err := f.engine.RunTurn(context.Background(), TurnRequest{
		AgentID:   "audited",
		SessionID: sess.ID,
		Message:   "ping",
	})
	require.NoError(t, err, "blocking post-hook errors never fail the turn")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, observed, 1)
	assert.Equal(t, run.ID, observed[0])
}

func TestHistoryWindowing(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t)

	// Two prior turns leave four messages of history.
	for i := 0; i < 2; i++ {
		f.mock.AddResponse(fmt.Sprintf("answer-%d", i))

		_, err := f.engine.RunTurn(context.Background(), f.request(sess.ID))
		require.NoError(t, err)
	}

	f.mock.AddResponse("final")

	req := f.request(sess.ID)
	req.Policy = core.ExecutionPolicy{MaxHistoryMessages: 2}

	_, err := f.engine.RunTurn(context.Background(), req)
	require.NoError(t, err)

	reqs := f.mock.Requests()
	require.Len(t, reqs, 3)
	assert.Len(t, reqs[1].History, 2, "second turn replays the first turn unwindowed")
	assert.Len(t, reqs[2].History, 2, "third turn keeps only the most recent two messages")
	assert.Equal(t, "answer-1", reqs[2].History[1].Content)
}

func TestSummaryHookPersistsOntoSession(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t)

	var droppedCount int

	require.NoError(t, f.hooks.RegisterSummary(hook.NewFunctionSummaryHook("condense", func(_ context.Context, dropped []core.Message) (string, error) {
		droppedCount = len(dropped)

		return "user keeps pinging", nil
	})))

	for i := 0; i < 2; i++ {
		f.mock.AddResponse("pong")

		_, err := f.engine.RunTurn(context.Background(), f.request(sess.ID))
		require.NoError(t, err)
	}

	f.mock.AddResponse("pong")

	req := f.request(sess.ID)
	req.Policy = core.ExecutionPolicy{MaxHistoryMessages: 1, SummaryHook: "condense"}

	_, err := f.engine.RunTurn(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, droppedCount)

	stored, err := f.store.GetSession(context.Background(), sess.ID, session.Filter{})
	require.NoError(t, err)
	assert.Equal(t, "user keeps pinging", stored.Summary)

	// The next turn's instructions carry the persisted summary.
	f.mock.AddResponse("pong")

	_, err = f.engine.RunTurn(context.Background(), f.request(sess.ID))
	require.NoError(t, err)

	reqs := f.mock.Requests()
	assert.Contains(t, reqs[len(reqs)-1].Instructions, "Conversation summary: user keeps pinging")
}

func TestToolCallLoop(t *testing.T) {
	f := newFixture(t)

	echo := tool.NewFunctionTool("echo", "echoes input", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
	}, func(_ context.Context, args map[string]any) (string, error) {
		return fmt.Sprintf("echo: %v", args["text"]), nil
	})
	require.NoError(t, f.tools.Register(echo))

	require.NoError(t, f.agents.Register(core.Agent{
		ID:    "tooler",
		Model: "mock",
		Tools: []string{"echo"},
	}))

	sess, err := f.store.UpsertSession(context.Background(), core.NewSession("tooler", "user-1"))
	require.NoError(t, err)

	f.mock.AddToolCalls(core.ToolCall{ID: "call-1", Name: "echo", Arguments: `{"text":"hi"}`})
	f.mock.AddResponse("done")

	run, err := f.engine.RunTurn(context.Background(), TurnRequest{
		AgentID:   "tooler",
		SessionID: sess.ID,
		Message:   "use the tool",
	})
	require.NoError(t, err)

	require.Len(t, run.Messages, 4)
	assert.Equal(t, core.RoleUser, run.Messages[0].Role)
	require.Len(t, run.Messages[1].ToolCalls, 1)
	assert.Equal(t, core.RoleTool, run.Messages[2].Role)
	assert.Equal(t, "echo: hi", run.Messages[2].Content)
	assert.Equal(t, "done", run.Messages[3].Content)

	kinds := f.events.kinds()
	assert.Contains(t, kinds, "tool.execution.started")
	assert.Contains(t, kinds, "tool.execution.completed")
}

func TestAllowedToolsValidatedBeforeModelCall(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t)

	req := f.request(sess.ID)
	req.Policy = core.ExecutionPolicy{AllowedTools: []string{"ghost"}}

	_, err := f.engine.RunTurn(context.Background(), req)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	assert.Empty(t, f.mock.Requests())
}

func TestMCPDiscoveryFailureFailsTurn(t *testing.T) {
	cause := errors.New("handshake refused")

	f := newFixture(t, func(o *mcp.ManagerOptions) {
		o.Connector = mcp.ConnectorFunc(func(context.Context, mcp.ServerConfig) (mcp.Connection, error) {
			return nil, cause
		})
	})

	require.NoError(t, f.engine.mcp.RegisterServer(mcp.ServerConfig{
		Name: "search",
		HTTP: &mcp.HTTPTransport{URL: "http://localhost/mcp"},
	}))
	require.NoError(t, f.agents.Register(core.Agent{
		ID:         "remote",
		Model:      "mock",
		MCPServers: []string{"search"},
	}))

	sess, err := f.store.UpsertSession(context.Background(), core.NewSession("remote", "user-1"))
	require.NoError(t, err)

	_, err = f.engine.RunTurn(context.Background(), TurnRequest{
		AgentID:   "remote",
		SessionID: sess.ID,
		Message:   "ping",
	})
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, f.mock.Requests())
	assert.Contains(t, f.events.kinds(), "mcp.discovery.failed")
}

func TestRunTurnWithMCPServer(t *testing.T) {
	searchTool := tool.NewFunctionTool("web_search", "searches the web", map[string]any{
		"type": "object",
	}, func(context.Context, map[string]any) (string, error) {
		return "results", nil
	})

	manager := mcp.NewManager(func(o *mcp.ManagerOptions) {
		o.Logger = logging.NoOpLogger{}
		o.Connector = mcp.ConnectorFunc(func(context.Context, mcp.ServerConfig) (mcp.Connection, error) {
			return mcp.NewStaticConnection(searchTool), nil
		})
	})
	require.NoError(t, manager.RegisterServer(mcp.ServerConfig{
		Name: "search",
		HTTP: &mcp.HTTPTransport{URL: "http://localhost/mcp"},
	}))

	store := session.NewInMemoryStore()
	agents := agent.NewRegistry()
	models := model.NewRegistry()
	mock := model.NewMock()

	require.NoError(t, models.Register("mock", mock))
	require.NoError(t, agents.Register(core.Agent{
		ID:         "remote",
		Model:      "mock",
		MCPServers: []string{"search"},
	}))

	eng := New(Dependencies{
		Agents: agents,
		Models: models,
		MCP:    manager,
		Store:  store,
	}, func(o *Options) { o.Logger = logging.NoOpLogger{} })

	sess, err := store.UpsertSession(context.Background(), core.NewSession("remote", "user-1"))
	require.NoError(t, err)

	mock.AddToolCalls(core.ToolCall{ID: "call-1", Name: "web_search", Arguments: `{}`})
	mock.AddResponse("found it")

	run, err := eng.RunTurn(context.Background(), TurnRequest{
		AgentID:   "remote",
		SessionID: sess.ID,
		Message:   "search for something",
	})
	require.NoError(t, err)
	assert.Equal(t, "found it", run.Text())

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "web_search", reqs[0].Tools[0].Function.Name)
}

func TestStreamTurn(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t)

	f.mock.AddResponse("pong")

	stream, err := f.engine.StreamTurn(context.Background(), f.request(sess.ID))
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	var sb strings.Builder

	for stream.Next() {
		sb.WriteString(stream.Current())
	}

	require.NoError(t, stream.Err())
	assert.Equal(t, "pong", sb.String())

	run, err := stream.Run()
	require.NoError(t, err)
	assert.Equal(t, "pong", run.Text())

	stored, err := f.store.GetSession(context.Background(), sess.ID, session.Filter{})
	require.NoError(t, err)
	require.Len(t, stored.Runs, 1, "full consumption persists the run")

	kinds := f.events.kinds()
	assert.Contains(t, kinds, "run.saved")
	assert.Contains(t, kinds, "execution.completed")
}

func TestStreamTurnCloseSkipsPersistence(t *testing.T) {
	f := newFixture(t)

	slow := model.NewMock(func(o *model.MockOptions) { o.Delay = 50 * time.Millisecond })
	slow.AddResponse("never fully consumed")
	require.NoError(t, f.models.Register("slow", slow))
	require.NoError(t, f.agents.Register(core.Agent{ID: "sloth", Model: "slow"}))

	sess, err := f.store.UpsertSession(context.Background(), core.NewSession("sloth", "user-1"))
	require.NoError(t, err)

	stream, err := f.engine.StreamTurn(context.Background(), TurnRequest{
		AgentID:   "sloth",
		SessionID: sess.ID,
		Message:   "ping",
	})
	require.NoError(t, err)

	require.NoError(t, stream.Close())
	assert.Error(t, stream.Err())

	stored, err := f.store.GetSession(context.Background(), sess.ID, session.Filter{})
	require.NoError(t, err)
	assert.Empty(t, stored.Runs, "closing early skips persistence")
}

func TestRunTurnSessionDeletedMidTurn(t *testing.T) {
	f := newFixture(t)

	sess, err := f.store.UpsertSession(context.Background(), core.NewSession("racer", "user-1"))
	require.NoError(t, err)

	// A blocking pre-hook that deletes the session models a concurrent
	// deletion between turn start and persistence.
	require.NoError(t, f.hooks.RegisterPre(hook.NewFunctionPreHook("vanish", true, func(ctx context.Context, _ *hook.Context) error {
		_, err := f.store.DeleteSession(ctx, sess.ID)

		return err
	})))
	require.NoError(t, f.agents.Register(core.Agent{
		ID:       "racer",
		Model:    "mock",
		PreHooks: []string{"vanish"},
	}))

	f.mock.AddResponse("pong")

	_, err = f.engine.RunTurn(context.Background(), TurnRequest{
		AgentID:   "racer",
		SessionID: sess.ID,
		Message:   "ping",
	})
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	// The model was consulted; the failure hit only at persistence time.
	assert.Len(t, f.mock.Requests(), 1)
}
