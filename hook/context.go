package hook

import (
	"maps"

	"github.com/hupe1980/agentcenter/core"
)

// Context is the mutable state a hook operates on during one turn.
//
// Blocking hooks share a single context instance, so modifications made
// by one hook (most importantly rewriting UserMessage) are visible to
// the hooks that run after it and to the model call. Non-blocking hooks
// receive an independent Clone whose lifetime ends with the background
// task; mutations to the clone are discarded.
type Context struct {
	// Agent is the resolved agent definition for the turn.
	Agent *core.Agent

	// Session is the session the turn executes against.
	Session *core.Session

	// UserMessage is the outgoing user message. Blocking pre-hooks may
	// replace its content before the model sees it.
	UserMessage *core.Message

	// Run is the persisted run of the turn. Only set for post-hooks.
	Run *core.Run

	// Metadata carries free-form values between hooks of the same turn.
	Metadata map[string]any
}

// NewContext creates a hook context for the start of a turn.
func NewContext(agent *core.Agent, session *core.Session, userMessage *core.Message) *Context {
	return &Context{
		Agent:       agent,
		Session:     session,
		UserMessage: userMessage,
		Metadata:    make(map[string]any),
	}
}

// Clone returns a deep copy of the context. Non-blocking hooks operate
// on clones so their mutations never leak into the turn.
func (c *Context) Clone() *Context {
	clone := &Context{}

	if c.Agent != nil {
		agent := c.Agent.Clone()
		clone.Agent = &agent
	}

	if c.Session != nil {
		clone.Session = c.Session.Clone()
	}

	if c.UserMessage != nil {
		msg := c.UserMessage.Clone()
		clone.UserMessage = &msg
	}

	if c.Run != nil {
		clone.Run = c.Run.Clone()
	}

	if c.Metadata != nil {
		clone.Metadata = maps.Clone(c.Metadata)
	}

	return clone
}
