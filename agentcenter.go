// Package agentcenter provides a high-level façade over the execution
// engine and its registries. Most applications interact with this
// package by:
//  1. Creating a Center via New() (optionally overriding the default
//     in-memory store, event bus and logger)
//  2. Registering models, tools, hooks, MCP servers and agents, either
//     programmatically or through a declarative YAML bundle
//  3. Creating sessions and executing turns (RunAgent, StreamAgent,
//     RunAs for structured output)
//
// The façade delegates orchestration to engine.Engine while keeping
// setup ergonomics concise. All defaults are safe for local development
// and testing; production deployments supply a durable session store and
// a structured logger.
package agentcenter

import (
	"context"
	"encoding/json"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentcenter/agent"
	"github.com/hupe1980/agentcenter/config"
	"github.com/hupe1980/agentcenter/core"
	"github.com/hupe1980/agentcenter/engine"
	"github.com/hupe1980/agentcenter/eventing"
	"github.com/hupe1980/agentcenter/hook"
	"github.com/hupe1980/agentcenter/internal/util"
	"github.com/hupe1980/agentcenter/logging"
	"github.com/hupe1980/agentcenter/mcp"
	"github.com/hupe1980/agentcenter/model"
	"github.com/hupe1980/agentcenter/model/anthropic"
	"github.com/hupe1980/agentcenter/model/openai"
	"github.com/hupe1980/agentcenter/session"
	"github.com/hupe1980/agentcenter/tool"
)

// Options configures the Center instance.
type Options struct {
	// Store persists sessions and runs. Defaults to the in-memory store.
	Store session.Store

	// Bus fans out lifecycle events. Defaults to a fresh bus.
	Bus *eventing.Bus

	// MCPConnector establishes MCP server connections. Defaults to the
	// mcp-go backed connector; tests inject fakes.
	MCPConnector mcp.Connector

	// Logger receives diagnostics from every component.
	Logger logging.Logger
}

// Center is the composition root: it owns the agent, model, tool and
// hook registries, the MCP manager, the session store and the engine,
// and exposes registration, session management and execution entry
// points.
type Center struct {
	agents *agent.Registry
	models *model.Registry
	tools  *tool.Registry
	hooks  *hook.Registry
	mcp    *mcp.Manager
	store  session.Store
	bus    *eventing.Bus
	engine *engine.Engine
	logger logging.Logger
}

// New creates a Center.
func New(optFns ...func(o *Options)) *Center {
	opts := Options{
		Logger: logging.NewDefaultSlogLogger(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	logger := logging.OrNoOp(opts.Logger)

	store := opts.Store
	if store == nil {
		store = session.NewInMemoryStore()
	}

	bus := opts.Bus
	if bus == nil {
		bus = eventing.NewBus(func(o *eventing.BusOptions) { o.Logger = logger })
	}

	manager := mcp.NewManager(func(o *mcp.ManagerOptions) {
		if opts.MCPConnector != nil {
			o.Connector = opts.MCPConnector
		}

		o.Bus = bus
		o.Logger = logger
	})

	c := &Center{
		agents: agent.NewRegistry(),
		models: model.NewRegistry(),
		tools:  tool.NewRegistry(),
		hooks:  hook.NewRegistry(),
		mcp:    manager,
		store:  store,
		bus:    bus,
		logger: logger,
	}

	c.engine = engine.New(engine.Dependencies{
		Agents: c.agents,
		Models: c.models,
		Tools:  c.tools,
		Hooks:  c.hooks,
		MCP:    c.mcp,
		Store:  c.store,
		Bus:    c.bus,
	}, func(o *engine.Options) {
		o.Logger = logger
	})

	return c
}

// Subscribe attaches an observer to the event bus.
func (c *Center) Subscribe(o eventing.Observer) {
	c.bus.Subscribe(o)
}

// RegisterAgent adds an agent definition. Registering an existing id is
// a conflict; use ReplaceAgent to overwrite deliberately.
func (c *Center) RegisterAgent(a core.Agent) error {
	return c.agents.Register(a)
}

// ReplaceAgent stores the agent, overwriting any previous registration
// under the same id.
func (c *Center) ReplaceAgent(a core.Agent) error {
	return c.agents.Replace(a)
}

// GetAgent returns the agent registered under id.
func (c *Center) GetAgent(id string) (core.Agent, error) {
	a, ok := c.agents.Get(id)
	if !ok {
		return core.Agent{}, fmt.Errorf("%w: %s", core.ErrAgentNotFound, id)
	}

	return a, nil
}

// RegisterModel adds a model client under the given registry name.
func (c *Center) RegisterModel(name string, client model.Client) error {
	return c.models.Register(name, client)
}

// RegisterTool adds a tool.
func (c *Center) RegisterTool(t tool.Tool) error {
	return c.tools.Register(t)
}

// RegisterPreHook adds a pre-hook.
func (c *Center) RegisterPreHook(h hook.PreHook) error {
	return c.hooks.RegisterPre(h)
}

// RegisterPostHook adds a post-hook.
func (c *Center) RegisterPostHook(h hook.PostHook) error {
	return c.hooks.RegisterPost(h)
}

// RegisterSummaryHook adds a summary hook usable from execution policies.
func (c *Center) RegisterSummaryHook(h hook.SummaryHook) error {
	return c.hooks.RegisterSummary(h)
}

// RegisterMCPServer adds an MCP server configuration. Discovery happens
// lazily on first use by an agent referencing the server.
func (c *Center) RegisterMCPServer(cfg mcp.ServerConfig) error {
	return c.mcp.RegisterServer(cfg)
}

// CreateSession creates and persists a session for an agent+user pair.
// The agent must be registered.
func (c *Center) CreateSession(ctx context.Context, agentID, userID string) (*core.Session, error) {
	if _, ok := c.agents.Get(agentID); !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrAgentNotFound, agentID)
	}

	sess, err := c.store.UpsertSession(ctx, core.NewSession(agentID, userID))
	if err != nil {
		return nil, err
	}

	c.bus.Publish(eventing.SessionCreated{
		Base:      eventing.Now(),
		SessionID: sess.ID,
		AgentID:   agentID,
		UserID:    userID,
	})
	c.logger.Debug("center.session.created", "session_id", sess.ID, "agent_id", agentID)

	return sess, nil
}

// GetSession returns a session by id.
func (c *Center) GetSession(ctx context.Context, sessionID string) (*core.Session, error) {
	return c.store.GetSession(ctx, sessionID, session.Filter{})
}

// ListSessions returns the sessions matching the filter.
func (c *Center) ListSessions(ctx context.Context, filter session.Filter) ([]*core.Session, error) {
	return c.store.ListSessions(ctx, filter)
}

// DeleteSession removes a session and reports whether one existed.
func (c *Center) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	return c.store.DeleteSession(ctx, sessionID)
}

// RenameSession updates a session's friendly name.
func (c *Center) RenameSession(ctx context.Context, sessionID, name string) (*core.Session, error) {
	return c.store.RenameSession(ctx, sessionID, name)
}

// UpdateSessionData merges the delta into the session's data bag,
// overwriting existing keys.
func (c *Center) UpdateSessionData(ctx context.Context, sessionID string, delta map[string]any) (*core.Session, error) {
	sess, err := c.store.GetSession(ctx, sessionID, session.Filter{})
	if err != nil {
		return nil, err
	}

	sess.MergeData(delta)

	return c.store.UpsertSession(ctx, sess)
}

// GetRun returns one run of a session.
func (c *Center) GetRun(ctx context.Context, runID, sessionID string) (*core.Run, error) {
	return c.store.GetRun(ctx, runID, sessionID)
}

// RemoveRun deletes one run from a session.
func (c *Center) RemoveRun(ctx context.Context, runID, sessionID string) error {
	return c.store.RemoveRun(ctx, runID, sessionID)
}

// SessionStats returns store-wide counters.
func (c *Center) SessionStats(ctx context.Context) (*session.Stats, error) {
	return c.store.Stats(ctx)
}

// RunOptions configure one turn execution.
type RunOptions struct {
	// Policy bundles the turn's timeout/retry/budget settings. The zero
	// value applies no limits.
	Policy core.ExecutionPolicy

	// LoadHistory controls whether persisted session history is
	// replayed to the model. Defaults to true.
	LoadHistory bool
}

func applyRunOptions(optFns []func(o *RunOptions)) RunOptions {
	opts := RunOptions{LoadHistory: true}

	for _, fn := range optFns {
		fn(&opts)
	}

	return opts
}

// RunAgent executes one turn against the session's agent and returns
// the persisted run.
func (c *Center) RunAgent(ctx context.Context, sessionID, message string, optFns ...func(o *RunOptions)) (*core.Run, error) {
	opts := applyRunOptions(optFns)

	sess, err := c.store.GetSession(ctx, sessionID, session.Filter{})
	if err != nil {
		return nil, err
	}

	return c.engine.RunTurn(ctx, engine.TurnRequest{
		AgentID:     sess.AgentID,
		SessionID:   sess.ID,
		UserID:      sess.UserID,
		Message:     message,
		Policy:      opts.Policy,
		LoadHistory: opts.LoadHistory,
	})
}

// StreamAgent executes one turn like RunAgent but returns a cancellable
// stream of text deltas. Consuming the stream to exhaustion persists the
// run; closing it early cancels the model call and skips persistence.
func (c *Center) StreamAgent(ctx context.Context, sessionID, message string, optFns ...func(o *RunOptions)) (*engine.TurnStream, error) {
	opts := applyRunOptions(optFns)

	sess, err := c.store.GetSession(ctx, sessionID, session.Filter{})
	if err != nil {
		return nil, err
	}

	return c.engine.StreamTurn(ctx, engine.TurnRequest{
		AgentID:     sess.AgentID,
		SessionID:   sess.ID,
		UserID:      sess.UserID,
		Message:     message,
		Policy:      opts.Policy,
		LoadHistory: opts.LoadHistory,
	})
}

// RunAs executes one turn requesting structured output: a JSON schema is
// derived from T by reflection and handed to the model, and the run
// content is unmarshaled into T.
func RunAs[T any](ctx context.Context, c *Center, sessionID, message string, optFns ...func(o *RunOptions)) (T, *core.Run, error) {
	var out T

	run, err := c.RunAgent(ctx, sessionID, message, func(o *RunOptions) {
		for _, fn := range optFns {
			fn(o)
		}

		o.Policy.OutputSchema = util.CreateSchema(out)
	})
	if err != nil {
		return out, nil, err
	}

	if err := json.Unmarshal(run.Content, &out); err != nil {
		return out, run, fmt.Errorf("decode structured output: %w", err)
	}

	return out, run, nil
}

// LoadBundle registers a declarative bundle of models, MCP servers and
// agents. Validation is fail-fast and all-or-nothing: any duplicate
// inside the bundle, conflict with an already-registered name, or
// unresolvable agent reference aborts the entire load with zero partial
// registration. Tools and hooks must be registered programmatically
// before the load; models and MCP servers may be declared inline.
func (c *Center) LoadBundle(bundle *config.Bundle) error {
	if bundle == nil {
		return fmt.Errorf("%w: bundle must not be nil", core.ErrInvalidConfig)
	}

	if err := bundle.Validate(); err != nil {
		return err
	}

	modelNames := make(map[string]struct{}, len(bundle.Models))

	for _, m := range bundle.Models {
		if _, exists := c.models.Get(m.Name); exists {
			return fmt.Errorf("%w: model %q already registered", core.ErrInvalidConfig, m.Name)
		}

		modelNames[m.Name] = struct{}{}
	}

	serverNames := make(map[string]struct{}, len(bundle.MCPServers))

	for _, s := range bundle.MCPServers {
		if c.mcp.Has(s.Name) {
			return fmt.Errorf("%w: mcp server %q already registered", core.ErrInvalidConfig, s.Name)
		}

		serverNames[s.Name] = struct{}{}
	}

	for _, a := range bundle.Agents {
		if _, exists := c.agents.Get(a.ID); exists {
			return fmt.Errorf("%w: agent %q already registered", core.ErrInvalidConfig, a.ID)
		}

		if _, inBundle := modelNames[a.Model]; !inBundle {
			if _, registered := c.models.Get(a.Model); !registered {
				return fmt.Errorf("%w: agent %q references unknown model %q", core.ErrInvalidConfig, a.ID, a.Model)
			}
		}

		for _, name := range a.Tools {
			if _, registered := c.tools.Get(name); !registered {
				return fmt.Errorf("%w: agent %q references unregistered tool %q", core.ErrInvalidConfig, a.ID, name)
			}
		}

		for _, name := range a.MCPServers {
			if _, inBundle := serverNames[name]; !inBundle && !c.mcp.Has(name) {
				return fmt.Errorf("%w: agent %q references unknown mcp server %q", core.ErrInvalidConfig, a.ID, name)
			}
		}
	}

	// All checks passed; registration cannot conflict anymore.
	for _, m := range bundle.Models {
		client, err := buildModel(m)
		if err != nil {
			return err
		}

		if err := c.models.Register(m.Name, client); err != nil {
			return err
		}
	}

	for _, s := range bundle.MCPServers {
		if err := c.mcp.RegisterServer(s); err != nil {
			return err
		}
	}

	for _, a := range bundle.Agents {
		if err := c.agents.Register(a.Agent()); err != nil {
			return err
		}
	}

	c.logger.Info("center.bundle.loaded",
		"models", len(bundle.Models),
		"mcp_servers", len(bundle.MCPServers),
		"agents", len(bundle.Agents))

	return nil
}

// buildModel constructs a model client from an inline declaration.
func buildModel(m config.ModelConfig) (model.Client, error) {
	switch m.Provider {
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if m.Model != "" {
				o.Model = m.Model
			}

			o.APIKey = m.APIKey
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if m.Model != "" {
				o.Model = anthropicsdk.Model(m.Model)
			}

			o.APIKey = m.APIKey
		}), nil
	case config.ProviderMock:
		return model.NewMock(func(o *model.MockOptions) {
			if m.Model != "" {
				o.Name = m.Model
			}
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown model provider %q", core.ErrInvalidConfig, m.Provider)
	}
}

// Tasks exposes the background task group tracking non-blocking hooks.
func (c *Center) Tasks() *hook.TaskGroup {
	return c.engine.Tasks()
}

// Shutdown drains gracefully: it waits for in-flight non-blocking hook
// tasks (bounded by ctx) and closes all MCP server connections. The
// Center stays usable afterwards; closed MCP servers re-discover on
// next use.
func (c *Center) Shutdown(ctx context.Context) error {
	if err := c.engine.Tasks().WaitContext(ctx); err != nil {
		c.engine.Tasks().CancelAll()
		c.logger.Warn("center.shutdown.hooks_abandoned", "error", err)
	}

	if err := c.mcp.Close(); err != nil {
		return fmt.Errorf("close mcp connections: %w", err)
	}

	return nil
}
