// Package transcript converts persisted conversation history plus agent
// instructions into the bounded input sent to a model.
//
// The builder flattens prior runs into chronological messages, folds
// system messages into the instructions text, omits prior tool results
// (only the final text/tool-call shape of earlier turns is replayed),
// applies the policy's history window, and injects the session's rolling
// summary. When windowing drops messages and a summarizer is available,
// the dropped messages are condensed into a fresh summary that the
// engine persists onto the session.
package transcript

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentcenter/core"
	"github.com/hupe1980/agentcenter/internal/util"
	"github.com/hupe1980/agentcenter/logging"
)

// Summarizer condenses dropped history into a replacement summary.
type Summarizer func(ctx context.Context, dropped []core.Message) (string, error)

// Input carries everything a single build needs.
type Input struct {
	// Agent supplies the static instructions template.
	Agent *core.Agent

	// History is the flattened prior conversation in chronological
	// order. Empty when the caller disabled history loading.
	History []core.Message

	// Summary is the session's persisted rolling summary, if any.
	Summary string

	// Data renders into the instructions template.
	Data map[string]any

	// Policy supplies the history-window caps and summary hook wiring.
	Policy core.ExecutionPolicy

	// Summarizer is invoked when windowing drops messages. Optional; a
	// nil summarizer means drops are silent.
	Summarizer Summarizer
}

// Transcript is the bounded model input produced by a build.
type Transcript struct {
	// Instructions is the leading system text: conversation summary (if
	// any), rendered agent instructions, and folded system messages.
	Instructions string

	// History is the windowed prior conversation to replay.
	History []core.Message

	// Summary is the summary produced by this build, empty when no
	// messages were dropped or no summarizer ran. The caller persists it
	// onto the session.
	Summary string

	// Dropped is the number of messages removed by windowing.
	Dropped int
}

// Options configure a Builder.
type Options struct {
	Logger logging.Logger
}

// Builder assembles transcripts. Safe for concurrent use.
type Builder struct {
	logger logging.Logger
}

// NewBuilder creates a transcript builder.
func NewBuilder(optFns ...func(o *Options)) *Builder {
	opts := Options{
		Logger: logging.NewDefaultSlogLogger(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Builder{logger: logging.OrNoOp(opts.Logger)}
}

// Build produces the transcript for one turn.
func (b *Builder) Build(ctx context.Context, in Input) (*Transcript, error) {
	instructions, err := util.RenderTemplate(in.Agent.Instructions, in.Data)
	if err != nil {
		return nil, fmt.Errorf("render instructions: %w", err)
	}

	var folded []string

	history := make([]core.Message, 0, len(in.History))

	for _, msg := range in.History {
		switch msg.Role {
		case core.RoleSystem:
			if msg.Content != "" {
				folded = append(folded, msg.Content)
			}
		case core.RoleTool:
			// prior tool results are not replayed
		default:
			history = append(history, msg)
		}
	}

	if len(folded) > 0 {
		instructions = strings.TrimSpace(instructions + "\n\n" + strings.Join(folded, "\n"))
	}

	var dropped []core.Message

	if max := in.Policy.MaxHistoryMessages; max > 0 && len(history) > max {
		dropped = append(dropped, history[:len(history)-max]...)
		history = history[len(history)-max:]
	}

	if budget := in.Policy.MaxHistoryTokens; budget > 0 {
		used := estimateTokens(instructions)
		for _, msg := range history {
			used += messageTokens(msg)
		}

		for used > budget && len(history) > 0 {
			used -= messageTokens(history[0])
			dropped = append(dropped, history[0])
			history = history[1:]
		}
	}

	summary := in.Summary

	var produced string

	if len(dropped) > 0 && in.Summarizer != nil {
		s, err := in.Summarizer(ctx, dropped)
		if err != nil {
			b.logger.Warn("history summarization failed", "error", err, "dropped", len(dropped))
		} else {
			summary = s
			produced = s
		}
	}

	if summary != "" {
		instructions = strings.TrimSpace(fmt.Sprintf("Conversation summary: %s\n\n%s", summary, instructions))
	}

	return &Transcript{
		Instructions: instructions,
		History:      history,
		Summary:      produced,
		Dropped:      len(dropped),
	}, nil
}

// estimateTokens approximates the token count of text as one token per
// four characters.
func estimateTokens(text string) int {
	return len(text) / 4
}

func messageTokens(msg core.Message) int {
	size := len(msg.Content)

	for _, call := range msg.ToolCalls {
		size += len(call.Name) + len(call.Arguments)
	}

	return size / 4
}
