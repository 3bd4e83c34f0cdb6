package mcp

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/agentcenter/core"
	"github.com/hupe1980/agentcenter/eventing"
	"github.com/hupe1980/agentcenter/logging"
	"github.com/hupe1980/agentcenter/tool"
)

// ManagerOptions configure a Manager.
type ManagerOptions struct {
	// Connector establishes server connections. Defaults to the mcp-go
	// backed connector.
	Connector Connector

	// Bus receives discovery lifecycle events. Optional.
	Bus *eventing.Bus

	// Logger receives diagnostics.
	Logger logging.Logger
}

// Manager owns the named MCP server configurations and their discovered
// connections. Discovery runs lazily on first use, is memoized per server
// name for the process lifetime, and deduplicates concurrent racers: the
// second caller waits for and shares the first caller's in-flight
// handshake instead of opening a duplicate connection.
type Manager struct {
	connector Connector
	bus       *eventing.Bus
	logger    logging.Logger

	mu      sync.RWMutex
	configs map[string]ServerConfig
	conns   map[string]Connection

	group singleflight.Group
}

// NewManager creates a manager.
func NewManager(optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{
		Connector: NewConnector(),
		Logger:    logging.NewDefaultSlogLogger(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Manager{
		connector: opts.Connector,
		bus:       opts.Bus,
		logger:    logging.OrNoOp(opts.Logger),
		configs:   make(map[string]ServerConfig),
		conns:     make(map[string]Connection),
	}
}

// RegisterServer adds a server configuration. Duplicate names fail with
// core.ErrInvalidConfig.
func (m *Manager) RegisterServer(cfg ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.configs[cfg.Name]; exists {
		return fmt.Errorf("%w: mcp server %q already registered", core.ErrInvalidConfig, cfg.Name)
	}

	m.configs[cfg.Name] = cfg

	return nil
}

// Has reports whether a server configuration is registered under name.
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.configs[name]

	return ok
}

// Names returns the registered server names in unspecified order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.configs))
	for name := range m.configs {
		names = append(names, name)
	}

	return names
}

// Discovered returns the memoized tool set for a server, or false when
// the server has not been discovered yet.
func (m *Manager) Discovered(name string) ([]tool.Tool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.conns[name]
	if !ok {
		return nil, false
	}

	return conn.Tools(), true
}

// Discover returns the tool set of the named server, connecting and
// listing on first use. A successful discovery is cached; a failed one
// is not, so a later turn may retry after a transient outage. Concurrent
// first-uses share a single handshake.
func (m *Manager) Discover(ctx context.Context, name string) ([]tool.Tool, error) {
	if tools, ok := m.Discovered(name); ok {
		return tools, nil
	}

	m.mu.RLock()
	cfg, ok := m.configs[name]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown mcp server %q", core.ErrInvalidConfig, name)
	}

	result, err, _ := m.group.Do(name, func() (any, error) {
		// Re-check under the flight: a racer that lost the singleflight
		// slot arrives here after the winner already stored the result.
		if tools, ok := m.Discovered(name); ok {
			return tools, nil
		}

		m.publish(eventing.MCPServerDiscoveryStarted{Base: eventing.Now(), Server: name})
		m.logger.Debug("mcp.discovery.start", "server", name)

		conn, err := m.connector.Connect(ctx, cfg)
		if err != nil {
			m.publish(eventing.MCPServerDiscoveryFailed{Base: eventing.Now(), Server: name, Err: err})

			return nil, err
		}

		m.mu.Lock()
		m.conns[name] = conn
		m.mu.Unlock()

		tools := conn.Tools()

		names := make([]string, 0, len(tools))
		for _, t := range tools {
			names = append(names, t.Name())
		}

		m.publish(eventing.MCPServerDiscovered{Base: eventing.Now(), Server: name, Tools: names})
		m.logger.Info("mcp.discovery.done", "server", name, "tools", len(names))

		return tools, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]tool.Tool), nil
}

// Close tears down every open connection. The manager stays usable;
// closed servers are re-discovered on next use.
func (m *Manager) Close() error {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[string]Connection)
	m.mu.Unlock()

	var firstErr error

	for name, conn := range conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close mcp server %q: %w", name, err)
		}
	}

	return firstErr
}

func (m *Manager) publish(ev eventing.Event) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}
