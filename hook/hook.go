package hook

import (
	"context"

	"github.com/hupe1980/agentcenter/core"
)

// PreHook runs before the model interaction of a turn.
//
// Blocking pre-hooks execute sequentially and may modify the hook
// context, in particular Context.UserMessage; the rewritten message is
// visible to subsequent blocking hooks and to the model call. An error
// from a blocking pre-hook aborts the turn before any model call.
//
// Non-blocking pre-hooks execute in background tasks against a snapshot
// copy of the context; their modifications and errors are discarded.
type PreHook interface {
	// Name returns the unique hook name agents reference.
	Name() string

	// Blocking reports whether the hook runs synchronously with the turn.
	Blocking() bool

	// Before performs the hook logic against the provided context.
	Before(ctx context.Context, hctx *Context) error
}

// PostHook observes a completed, persisted run.
//
// Blocking post-hooks execute sequentially after persistence; their
// errors are logged but never surfaced to the caller. Non-blocking
// post-hooks execute in background tasks against a snapshot copy.
type PostHook interface {
	// Name returns the unique hook name agents reference.
	Name() string

	// Blocking reports whether the hook runs synchronously with the turn.
	Blocking() bool

	// After performs the hook logic against the provided context. The
	// context carries the persisted run in Context.Run.
	After(ctx context.Context, hctx *Context) error
}

// SummaryHook produces a replacement summary for messages dropped by
// history windowing. The returned string is injected into the next
// transcript's instructions and persisted onto the session.
type SummaryHook interface {
	// Name returns the unique hook name policies reference.
	Name() string

	// Summarize condenses the dropped messages into a summary string.
	Summarize(ctx context.Context, dropped []core.Message) (string, error)
}

// FunctionPreHook wraps a plain function as a PreHook.
//
// Example:
//
//	redact := hook.NewFunctionPreHook("redact_pii", true, func(ctx context.Context, hctx *hook.Context) error {
//	    hctx.UserMessage.Content = redactPII(hctx.UserMessage.Content)
//	    return nil
//	})
type FunctionPreHook struct {
	name     string
	blocking bool
	fn       func(ctx context.Context, hctx *Context) error
}

// NewFunctionPreHook creates a function-based pre-hook.
func NewFunctionPreHook(name string, blocking bool, fn func(ctx context.Context, hctx *Context) error) *FunctionPreHook {
	return &FunctionPreHook{
		name:     name,
		blocking: blocking,
		fn:       fn,
	}
}

// Name returns the hook name.
func (h *FunctionPreHook) Name() string { return h.name }

// Blocking reports whether the hook is synchronous with the turn.
func (h *FunctionPreHook) Blocking() bool { return h.blocking }

// Before calls the wrapped function.
func (h *FunctionPreHook) Before(ctx context.Context, hctx *Context) error {
	return h.fn(ctx, hctx)
}

// FunctionPostHook wraps a plain function as a PostHook.
type FunctionPostHook struct {
	name     string
	blocking bool
	fn       func(ctx context.Context, hctx *Context) error
}

// NewFunctionPostHook creates a function-based post-hook.
func NewFunctionPostHook(name string, blocking bool, fn func(ctx context.Context, hctx *Context) error) *FunctionPostHook {
	return &FunctionPostHook{
		name:     name,
		blocking: blocking,
		fn:       fn,
	}
}

// Name returns the hook name.
func (h *FunctionPostHook) Name() string { return h.name }

// Blocking reports whether the hook is synchronous with the turn.
func (h *FunctionPostHook) Blocking() bool { return h.blocking }

// After calls the wrapped function.
func (h *FunctionPostHook) After(ctx context.Context, hctx *Context) error {
	return h.fn(ctx, hctx)
}

// FunctionSummaryHook wraps a plain function as a SummaryHook.
type FunctionSummaryHook struct {
	name string
	fn   func(ctx context.Context, dropped []core.Message) (string, error)
}

// NewFunctionSummaryHook creates a function-based summary hook.
func NewFunctionSummaryHook(name string, fn func(ctx context.Context, dropped []core.Message) (string, error)) *FunctionSummaryHook {
	return &FunctionSummaryHook{
		name: name,
		fn:   fn,
	}
}

// Name returns the hook name.
func (h *FunctionSummaryHook) Name() string { return h.name }

// Summarize calls the wrapped function.
func (h *FunctionSummaryHook) Summarize(ctx context.Context, dropped []core.Message) (string, error) {
	return h.fn(ctx, dropped)
}
