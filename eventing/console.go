package eventing

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// ConsoleObserverOptions configures a ConsoleObserver.
type ConsoleObserverOptions struct {
	// Output receives the rendered lines. Defaults to os.Stderr.
	Output io.Writer

	// DisableColor turns off ANSI colors regardless of terminal detection.
	DisableColor bool
}

// ConsoleObserver renders events as single human-readable lines, one per
// event, colored by lifecycle category. It is meant for interactive use and
// examples, not for machine consumption (use FileObserver for that).
type ConsoleObserver struct {
	mu   sync.Mutex
	out  io.Writer
	dim  *color.Color
	ok   *color.Color
	bad  *color.Color
	info *color.Color
	tool *color.Color
}

// NewConsoleObserver creates a console observer.
func NewConsoleObserver(optFns ...func(o *ConsoleObserverOptions)) *ConsoleObserver {
	opts := ConsoleObserverOptions{Output: os.Stderr}

	for _, fn := range optFns {
		fn(&opts)
	}

	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if opts.DisableColor {
			c.DisableColor()
		}

		return c
	}

	return &ConsoleObserver{
		out:  opts.Output,
		dim:  mk(color.Faint),
		ok:   mk(color.FgGreen),
		bad:  mk(color.FgRed),
		info: mk(color.FgCyan),
		tool: mk(color.FgYellow),
	}
}

// Observe renders the event.
func (c *ConsoleObserver) Observe(ev Event) {
	kind := Kind(ev)

	painter := c.info
	switch {
	case strings.HasSuffix(kind, ".failed"):
		painter = c.bad
	case kind == "execution.completed" || kind == "run.saved":
		painter = c.ok
	case strings.HasPrefix(kind, "tool."):
		painter = c.tool
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.dim.Fprintf(c.out, "%s ", ev.OccurredAt().Format(time.TimeOnly))
	painter.Fprintf(c.out, "%-26s", kind)
	fmt.Fprintf(c.out, " %s\n", c.describe(ev))
}

func (c *ConsoleObserver) describe(ev Event) string {
	switch e := ev.(type) {
	case ExecutionStarted:
		return fmt.Sprintf("agent=%s session=%s run=%s", e.AgentID, e.SessionID, e.RunID)
	case ExecutionCompleted:
		return fmt.Sprintf("agent=%s run=%s duration=%s", e.AgentID, e.RunID, e.Duration.Round(time.Millisecond))
	case ExecutionFailed:
		return fmt.Sprintf("agent=%s run=%s error=%v", e.AgentID, e.RunID, e.Err)
	case MCPServerDiscoveryStarted:
		return fmt.Sprintf("server=%s", e.Server)
	case MCPServerDiscovered:
		return fmt.Sprintf("server=%s tools=%d", e.Server, len(e.Tools))
	case MCPServerDiscoveryFailed:
		return fmt.Sprintf("server=%s error=%v", e.Server, e.Err)
	case TranscriptBuildStarted:
		return fmt.Sprintf("session=%s run=%s", e.SessionID, e.RunID)
	case TranscriptBuilt:
		return fmt.Sprintf("session=%s history=%d dropped=%d", e.SessionID, e.HistoryMessages, e.DroppedMessages)
	case ModelRequestSending:
		return fmt.Sprintf("model=%s request=%s messages=%d", e.Model, e.RequestID, e.Messages)
	case ModelResponseReceived:
		return fmt.Sprintf("model=%s request=%s tokens=%d", e.Model, e.RequestID, e.Usage.TotalTokens)
	case ToolExecutionStarted:
		return fmt.Sprintf("tool=%s execution=%s", e.Tool, e.ExecutionID)
	case ToolExecutionCompleted:
		if e.Err != nil {
			return fmt.Sprintf("tool=%s execution=%s error=%v", e.Tool, e.ExecutionID, e.Err)
		}

		return fmt.Sprintf("tool=%s execution=%s duration=%s", e.Tool, e.ExecutionID, e.Duration.Round(time.Millisecond))
	case SessionCreated:
		return fmt.Sprintf("session=%s agent=%s user=%s", e.SessionID, e.AgentID, e.UserID)
	case RunSaved:
		return fmt.Sprintf("run=%s session=%s messages=%d", e.RunID, e.SessionID, e.Messages)
	default:
		return ""
	}
}
