package hook

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/hupe1980/agentcenter/core"
	"github.com/hupe1980/agentcenter/logging"
)

// TaskGroupOptions configures a TaskGroup.
type TaskGroupOptions struct {
	// Logger receives panic reports from background tasks.
	Logger logging.Logger
}

// TaskGroup tracks fire-and-forget background tasks so they can be
// drained or cancelled as a set. Non-blocking hooks run here: each task
// gets its own cancellable context, is removed from the set on
// completion, and has panics caught and logged rather than crashing the
// process.
type TaskGroup struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      conc.WaitGroup
	logger  logging.Logger
}

// NewTaskGroup creates an empty task group.
func NewTaskGroup(optFns ...func(o *TaskGroupOptions)) *TaskGroup {
	opts := TaskGroupOptions{
		Logger: logging.NewDefaultSlogLogger(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &TaskGroup{
		cancels: make(map[string]context.CancelFunc),
		logger:  logging.OrNoOp(opts.Logger),
	}
}

// Go schedules fn as a tracked background task and returns its generated
// id. The context passed to fn is independent of any turn context and is
// cancelled by CancelAll. The task removes itself from the set when fn
// returns.
func (g *TaskGroup) Go(name string, fn func(ctx context.Context)) string {
	id := core.NewID()
	ctx, cancel := context.WithCancel(context.Background())

	g.mu.Lock()
	g.cancels[id] = cancel
	g.mu.Unlock()

	g.wg.Go(func() {
		defer func() {
			cancel()

			g.mu.Lock()
			delete(g.cancels, id)
			g.mu.Unlock()
		}()

		var catcher panics.Catcher

		catcher.Try(func() { fn(ctx) })

		if recovered := catcher.Recovered(); recovered != nil {
			g.logger.Error("background task panicked", "task", name, "panic", recovered.String())
		}
	})

	return id
}

// Len returns the number of in-flight tasks.
func (g *TaskGroup) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.cancels)
}

// Wait blocks until all in-flight tasks have completed.
func (g *TaskGroup) Wait() {
	g.wg.Wait()
}

// WaitContext blocks until all in-flight tasks have completed or ctx is
// done, whichever comes first. It returns ctx.Err() when the deadline
// wins; tasks keep running in that case and may still be cancelled via
// CancelAll.
func (g *TaskGroup) WaitContext(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelAll cancels the contexts of all in-flight tasks. It does not
// wait for them to observe the cancellation; combine with Wait for a
// full stop.
func (g *TaskGroup) CancelAll() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, cancel := range g.cancels {
		cancel()
	}
}
