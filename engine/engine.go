package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentcenter/agent"
	"github.com/hupe1980/agentcenter/core"
	"github.com/hupe1980/agentcenter/eventing"
	"github.com/hupe1980/agentcenter/hook"
	"github.com/hupe1980/agentcenter/logging"
	"github.com/hupe1980/agentcenter/mcp"
	"github.com/hupe1980/agentcenter/model"
	"github.com/hupe1980/agentcenter/session"
	"github.com/hupe1980/agentcenter/tool"
	"github.com/hupe1980/agentcenter/transcript"
)

// Dependencies are the collaborators the engine coordinates. Nil fields
// are replaced with in-memory defaults, which is what tests and quick
// demos want; production callers inject their own.
type Dependencies struct {
	Agents *agent.Registry
	Models *model.Registry
	Tools  *tool.Registry
	Hooks  *hook.Registry
	MCP    *mcp.Manager
	Store  session.Store
	Bus    *eventing.Bus
}

// Options configure engine behavior beyond its collaborators.
type Options struct {
	// Transcript overrides the default transcript builder.
	Transcript *transcript.Builder

	// Tasks tracks non-blocking hook executions. Sharing one group with
	// the composition root lets Shutdown drain hooks from all turns.
	Tasks *hook.TaskGroup

	// Logger receives engine diagnostics.
	Logger logging.Logger
}

// Engine executes turns. It is stateless between turns; all mutable
// state lives in the injected registries and store, so one engine value
// serves any number of concurrent turns.
type Engine struct {
	agents  *agent.Registry
	models  *model.Registry
	tools   *tool.Registry
	hooks   *hook.Registry
	mcp     *mcp.Manager
	store   session.Store
	bus     *eventing.Bus
	builder *transcript.Builder
	tasks   *hook.TaskGroup
	logger  logging.Logger
}

// New creates an engine around the given collaborators.
func New(deps Dependencies, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Logger: logging.NewDefaultSlogLogger(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	logger := logging.OrNoOp(opts.Logger)

	if deps.Agents == nil {
		deps.Agents = agent.NewRegistry()
	}

	if deps.Models == nil {
		deps.Models = model.NewRegistry()
	}

	if deps.Tools == nil {
		deps.Tools = tool.NewRegistry()
	}

	if deps.Hooks == nil {
		deps.Hooks = hook.NewRegistry()
	}

	if deps.Store == nil {
		deps.Store = session.NewInMemoryStore()
	}

	if deps.Bus == nil {
		deps.Bus = eventing.NewBus()
	}

	if deps.MCP == nil {
		deps.MCP = mcp.NewManager(func(o *mcp.ManagerOptions) {
			o.Bus = deps.Bus
			o.Logger = logger
		})
	}

	builder := opts.Transcript
	if builder == nil {
		builder = transcript.NewBuilder(func(o *transcript.Options) { o.Logger = logger })
	}

	tasks := opts.Tasks
	if tasks == nil {
		tasks = hook.NewTaskGroup(func(o *hook.TaskGroupOptions) { o.Logger = logger })
	}

	return &Engine{
		agents:  deps.Agents,
		models:  deps.Models,
		tools:   deps.Tools,
		hooks:   deps.Hooks,
		mcp:     deps.MCP,
		store:   deps.Store,
		bus:     deps.Bus,
		builder: builder,
		tasks:   tasks,
		logger:  logger,
	}
}

// Tasks exposes the background task group tracking non-blocking hooks,
// for graceful drain at shutdown.
func (e *Engine) Tasks() *hook.TaskGroup { return e.tasks }

// TurnRequest identifies one turn: the agent and session it executes
// against, the new user message, and the execution policy.
type TurnRequest struct {
	AgentID   string
	SessionID string
	UserID    string
	Message   string
	Policy    core.ExecutionPolicy

	// LoadHistory controls whether persisted session history is replayed
	// to the model.
	LoadHistory bool
}

// turn is the per-execution state. Each turn gets its own instance, so
// concurrent turns never share mutable state.
type turn struct {
	runID      string
	started    time.Time
	req        TurnRequest
	agent      core.Agent
	session    *core.Session
	prompt     *core.Message
	hctx       *hook.Context
	client     model.Client
	transcript *transcript.Transcript
	request    model.Request
}

// RunTurn executes one turn to completion and returns the persisted run.
//
// The returned error is one of the taxonomy errors (agent/session not
// found, invalid configuration, timeout) or the transport error of the
// final model attempt. No run is persisted on failure.
func (e *Engine) RunTurn(ctx context.Context, req TurnRequest) (*core.Run, error) {
	t, err := e.beginTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := e.invoke(ctx, t)
	if err != nil {
		e.failTurn(t, err)

		return nil, err
	}

	run, err := e.completeTurn(ctx, t, resp)
	if err != nil {
		e.failTurn(t, err)

		return nil, err
	}

	return run, nil
}

// beginTurn performs steps 1-4: agent resolution, pre-hooks, MCP
// discovery, tool resolution and transcript assembly. On failure it has
// already emitted ExecutionFailed.
func (e *Engine) beginTurn(ctx context.Context, req TurnRequest) (*turn, error) {
	t := &turn{
		runID:   core.NewID(),
		started: time.Now().UTC(),
		req:     req,
	}

	if err := req.Policy.Validate(); err != nil {
		e.failTurn(t, err)

		return nil, err
	}

	a, ok := e.agents.Get(req.AgentID)
	if !ok {
		err := fmt.Errorf("%w: %s", core.ErrAgentNotFound, req.AgentID)
		e.failTurn(t, err)

		return nil, err
	}

	t.agent = a

	e.bus.Publish(eventing.ExecutionStarted{
		Base:      eventing.Now(),
		RunID:     t.runID,
		AgentID:   req.AgentID,
		SessionID: req.SessionID,
		UserID:    req.UserID,
	})
	e.logger.Debug("engine.turn.start", "run_id", t.runID, "agent_id", req.AgentID, "session_id", req.SessionID)

	sess, err := e.store.GetSession(ctx, req.SessionID, session.Filter{})
	if err != nil {
		e.failTurn(t, err)

		return nil, err
	}

	t.session = sess

	prompt := core.NewUserMessage(req.Message)
	t.prompt = &prompt
	t.hctx = hook.NewContext(&t.agent, sess, t.prompt)

	if err := e.runPreHooks(ctx, t); err != nil {
		e.failTurn(t, err)

		return nil, err
	}

	toolset, err := e.resolveTools(ctx, t)
	if err != nil {
		e.failTurn(t, err)

		return nil, err
	}

	client, ok := e.models.Get(t.agent.Model)
	if !ok {
		err := fmt.Errorf("%w: agent %q references unknown model %q", core.ErrInvalidConfig, t.agent.ID, t.agent.Model)
		e.failTurn(t, err)

		return nil, err
	}

	t.client = client

	if err := e.buildTranscript(ctx, t); err != nil {
		e.failTurn(t, err)

		return nil, err
	}

	definitions := make([]model.ToolDefinition, 0, len(toolset))
	for _, tl := range toolset {
		definitions = append(definitions, model.NewToolDefinition(tl.Name(), tl.Description(), tl.Parameters()))
	}

	t.request = model.Request{
		Instructions: t.transcript.Instructions,
		History:      t.transcript.History,
		Prompt:       *t.prompt,
		Tools:        definitions,
		Options: model.Options{
			Temperature:  req.Policy.Temperature,
			MaxTokens:    req.Policy.MaxTokens,
			MaxToolCalls: req.Policy.MaxToolCalls,
			OutputSchema: req.Policy.OutputSchema,
		},
		Runner: &toolRunner{
			runID:  t.runID,
			tools:  toolset,
			bus:    e.bus,
			logger: e.logger,
		},
		Monitor: &busMonitor{runID: t.runID, bus: e.bus},
	}

	return t, nil
}

// runPreHooks executes the agent's pre-hooks in declared order. Blocking
// hooks share the turn's context and may rewrite the user message;
// non-blocking hooks run as tracked background tasks on a snapshot.
// Unknown hook names are skipped: hooks are optional enhancements, not
// hard dependencies.
func (e *Engine) runPreHooks(ctx context.Context, t *turn) error {
	for _, name := range t.agent.PreHooks {
		h, ok := e.hooks.Pre(name)
		if !ok {
			e.logger.Debug("engine.hook.pre.skip", "hook", name)

			continue
		}

		if h.Blocking() {
			if err := h.Before(ctx, t.hctx); err != nil {
				return fmt.Errorf("pre-hook %q: %w", name, err)
			}

			continue
		}

		snapshot := t.hctx.Clone()
		hk := h

		e.tasks.Go("pre-hook "+name, func(taskCtx context.Context) {
			if err := hk.Before(taskCtx, snapshot); err != nil {
				e.logger.Warn("engine.hook.pre.error", "hook", hk.Name(), "error", err)
			}
		})
	}

	return nil
}

// resolveTools assembles the turn's tool set: the agent's explicit tools
// from the registry plus the tools discovered from its MCP servers,
// restricted by the policy allow-list.
func (e *Engine) resolveTools(ctx context.Context, t *turn) (map[string]tool.Tool, error) {
	toolset := make(map[string]tool.Tool, len(t.agent.Tools))

	for _, name := range t.agent.Tools {
		tl, ok := e.tools.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: agent %q references unknown tool %q", core.ErrInvalidConfig, t.agent.ID, name)
		}

		toolset[name] = tl
	}

	for _, server := range t.agent.MCPServers {
		discovered, err := e.mcp.Discover(ctx, server)
		if err != nil {
			return nil, fmt.Errorf("discover mcp server %q: %w", server, err)
		}

		for _, tl := range discovered {
			if _, exists := toolset[tl.Name()]; exists {
				e.logger.Warn("engine.tool.shadowed", "tool", tl.Name(), "server", server)

				continue
			}

			toolset[tl.Name()] = tl
		}
	}

	if len(t.req.Policy.AllowedTools) == 0 {
		return toolset, nil
	}

	allowed := make(map[string]tool.Tool, len(t.req.Policy.AllowedTools))

	for _, name := range t.req.Policy.AllowedTools {
		tl, ok := toolset[name]
		if !ok {
			return nil, fmt.Errorf("%w: allowed tool %q is not available to agent %q", core.ErrInvalidConfig, name, t.agent.ID)
		}

		allowed[name] = tl
	}

	return allowed, nil
}

// buildTranscript assembles the bounded history for the turn, wiring the
// policy's summary hook as the summarizer.
func (e *Engine) buildTranscript(ctx context.Context, t *turn) error {
	e.bus.Publish(eventing.TranscriptBuildStarted{
		Base:      eventing.Now(),
		RunID:     t.runID,
		SessionID: t.req.SessionID,
	})

	var history []core.Message
	if t.req.LoadHistory {
		history = t.session.Messages()
	}

	var summarizer transcript.Summarizer

	if name := t.req.Policy.SummaryHook; name != "" {
		if sh, ok := e.hooks.Summary(name); ok {
			summarizer = sh.Summarize
		} else {
			e.logger.Debug("engine.hook.summary.skip", "hook", name)
		}
	}

	built, err := e.builder.Build(ctx, transcript.Input{
		Agent:      &t.agent,
		History:    history,
		Summary:    t.session.Summary,
		Data:       t.session.Data,
		Policy:     t.req.Policy,
		Summarizer: summarizer,
	})
	if err != nil {
		return fmt.Errorf("build transcript: %w", err)
	}

	t.transcript = built

	e.bus.Publish(eventing.TranscriptBuilt{
		Base:            eventing.Now(),
		RunID:           t.runID,
		SessionID:       t.req.SessionID,
		HistoryMessages: len(built.History),
		DroppedMessages: built.Dropped,
	})

	return nil
}

// invoke performs the model interaction under the policy's timeout and
// retry envelope. Only transport failures are retried; cancellations and
// timeouts surface immediately.
func (e *Engine) invoke(ctx context.Context, t *turn) (*model.Response, error) {
	callCtx := ctx

	if timeout := t.req.Policy.Timeout; timeout > 0 {
		var cancel context.CancelFunc

		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var lastErr error

	for attempt := 0; attempt < t.req.Policy.Attempts(); attempt++ {
		resp, err := t.client.Respond(callCtx, t.request)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if callCtx.Err() != nil {
			break
		}

		if attempt < t.req.Policy.Retries {
			e.logger.Warn("engine.model.retry", "run_id", t.runID, "attempt", attempt+1, "error", err)
		}
	}

	return nil, e.mapTimeout(ctx, t.req.Policy, lastErr)
}

// mapTimeout converts a deadline expiry caused by the policy timer into
// the typed timeout error. Caller cancellation passes through untouched.
func (e *Engine) mapTimeout(parent context.Context, policy core.ExecutionPolicy, err error) error {
	if policy.Timeout > 0 && errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return &core.TimeoutError{Timeout: policy.Timeout}
	}

	return err
}

// completeTurn performs steps 6-8: run construction, the session
// race-guard, persistence, completion events and post-hooks.
func (e *Engine) completeTurn(ctx context.Context, t *turn, resp *model.Response) (*core.Run, error) {
	messages := make([]core.Message, 0, len(resp.Messages)+1)
	messages = append(messages, *t.prompt)
	messages = append(messages, resp.Messages...)

	run := &core.Run{
		ID:        t.runID,
		AgentID:   t.agent.ID,
		SessionID: t.req.SessionID,
		UserID:    t.req.UserID,
		Messages:  messages,
		Content:   []byte(resp.Content),
		Status:    core.RunStatusCompleted,
		ModelName: resp.Model,
		Usage:     resp.Usage,
		CreatedAt: time.Now().UTC(),
	}

	// Race-guard: the session may have been deleted while the model was
	// working. Nothing has been written yet, so the turn simply fails.
	current, err := e.store.GetSession(ctx, t.req.SessionID, session.Filter{})
	if err != nil {
		return nil, err
	}

	if summary := t.transcript.Summary; summary != "" {
		current.Summary = summary

		if _, err := e.store.UpsertSession(ctx, current); err != nil {
			return nil, fmt.Errorf("persist summary: %w", err)
		}
	}

	if err := e.store.AppendRun(ctx, t.req.SessionID, run); err != nil {
		return nil, err
	}

	e.bus.Publish(eventing.RunSaved{
		Base:      eventing.Now(),
		RunID:     run.ID,
		SessionID: t.req.SessionID,
		Messages:  len(run.Messages),
	})
	e.bus.Publish(eventing.ExecutionCompleted{
		Base:      eventing.Now(),
		RunID:     run.ID,
		AgentID:   t.agent.ID,
		SessionID: t.req.SessionID,
		Duration:  time.Since(t.started),
	})
	e.logger.Info("engine.turn.done", "run_id", run.ID, "agent_id", t.agent.ID, "duration", time.Since(t.started))

	t.hctx.Session = current
	t.hctx.Run = run
	e.runPostHooks(ctx, t)

	return run, nil
}

// runPostHooks executes the agent's post-hooks against the persisted
// run. The run has already succeeded, so blocking hook errors are logged
// and never surfaced.
func (e *Engine) runPostHooks(ctx context.Context, t *turn) {
	for _, name := range t.agent.PostHooks {
		h, ok := e.hooks.Post(name)
		if !ok {
			e.logger.Debug("engine.hook.post.skip", "hook", name)

			continue
		}

		if h.Blocking() {
			if err := h.After(ctx, t.hctx); err != nil {
				e.logger.Warn("engine.hook.post.error", "hook", name, "error", err)
			}

			continue
		}

		snapshot := t.hctx.Clone()
		hk := h

		e.tasks.Go("post-hook "+name, func(taskCtx context.Context) {
			if err := hk.After(taskCtx, snapshot); err != nil {
				e.logger.Warn("engine.hook.post.error", "hook", hk.Name(), "error", err)
			}
		})
	}
}

// failTurn emits ExecutionFailed. No run is persisted for failed turns.
func (e *Engine) failTurn(t *turn, err error) {
	e.bus.Publish(eventing.ExecutionFailed{
		Base:      eventing.Now(),
		RunID:     t.runID,
		AgentID:   t.req.AgentID,
		SessionID: t.req.SessionID,
		Err:       err,
	})
	e.logger.Error("engine.turn.failed", "run_id", t.runID, "agent_id", t.req.AgentID, "error", err)
}
