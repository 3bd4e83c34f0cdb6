package eventing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/hupe1980/agentcenter"

// OTelObserverOptions configures an OTelObserver.
type OTelObserverOptions struct {
	// TracerProvider supplies the tracer. Defaults to the global provider,
	// so wiring an exporter via otel.SetTracerProvider is enough.
	TracerProvider trace.TracerProvider
}

// OTelObserver maps the event stream onto OpenTelemetry spans: one span per
// turn, one child span per model round trip and per tool execution, plus a
// span per MCP discovery. Correlation uses the run, request and execution
// ids carried by the events.
type OTelObserver struct {
	tracer trace.Tracer

	mu          sync.Mutex
	turns       map[string]trace.Span
	requests    map[string]trace.Span
	tools       map[string]trace.Span
	discoveries map[string]trace.Span
}

// NewOTelObserver creates an OpenTelemetry span observer.
func NewOTelObserver(optFns ...func(o *OTelObserverOptions)) *OTelObserver {
	opts := OTelObserverOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &OTelObserver{
		tracer:      tp.Tracer(instrumentationName),
		turns:       map[string]trace.Span{},
		requests:    map[string]trace.Span{},
		tools:       map[string]trace.Span{},
		discoveries: map[string]trace.Span{},
	}
}

// Observe translates the event into span lifecycle operations.
func (o *OTelObserver) Observe(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch e := ev.(type) {
	case ExecutionStarted:
		_, span := o.tracer.Start(context.Background(), "agent.turn", trace.WithAttributes(
			attribute.String("agent.id", e.AgentID),
			attribute.String("session.id", e.SessionID),
			attribute.String("run.id", e.RunID),
		))
		o.turns[e.RunID] = span

	case ExecutionCompleted:
		if span, ok := o.turns[e.RunID]; ok {
			span.SetStatus(codes.Ok, "")
			span.End()
			delete(o.turns, e.RunID)
		}

	case ExecutionFailed:
		if span, ok := o.turns[e.RunID]; ok {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, errString(e.Err))
			span.End()
			delete(o.turns, e.RunID)
		}

	case MCPServerDiscoveryStarted:
		_, span := o.tracer.Start(context.Background(), "mcp.discovery", trace.WithAttributes(
			attribute.String("mcp.server", e.Server),
		))
		o.discoveries[e.Server] = span

	case MCPServerDiscovered:
		if span, ok := o.discoveries[e.Server]; ok {
			span.SetAttributes(attribute.Int("mcp.tools", len(e.Tools)))
			span.SetStatus(codes.Ok, "")
			span.End()
			delete(o.discoveries, e.Server)
		}

	case MCPServerDiscoveryFailed:
		if span, ok := o.discoveries[e.Server]; ok {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, errString(e.Err))
			span.End()
			delete(o.discoveries, e.Server)
		}

	case ModelRequestSending:
		_, span := o.tracer.Start(o.turnContext(e.RunID), "model.call", trace.WithAttributes(
			attribute.String("model.name", e.Model),
			attribute.String("request.id", e.RequestID),
			attribute.Int("request.messages", e.Messages),
		))
		o.requests[e.RequestID] = span

	case ModelResponseReceived:
		if span, ok := o.requests[e.RequestID]; ok {
			span.SetAttributes(
				attribute.Int("usage.prompt_tokens", e.Usage.PromptTokens),
				attribute.Int("usage.completion_tokens", e.Usage.CompletionTokens),
				attribute.Int("usage.total_tokens", e.Usage.TotalTokens),
			)
			span.End()
			delete(o.requests, e.RequestID)
		}

	case ToolExecutionStarted:
		_, span := o.tracer.Start(o.turnContext(e.RunID), "tool.call", trace.WithAttributes(
			attribute.String("tool.name", e.Tool),
			attribute.String("tool.call_id", e.CallID),
		))
		o.tools[e.ExecutionID] = span

	case ToolExecutionCompleted:
		if span, ok := o.tools[e.ExecutionID]; ok {
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, errString(e.Err))
			}
			span.End()
			delete(o.tools, e.ExecutionID)
		}

	case TranscriptBuilt:
		if span, ok := o.turns[e.RunID]; ok {
			span.AddEvent("transcript.built", trace.WithAttributes(
				attribute.Int("history.messages", e.HistoryMessages),
				attribute.Int("history.dropped", e.DroppedMessages),
			))
		}

	case RunSaved:
		if span, ok := o.turns[e.RunID]; ok {
			span.AddEvent("run.saved", trace.WithAttributes(
				attribute.Int("run.messages", e.Messages),
			))
		}
	}
}

// turnContext parents child spans under the turn span when one is open.
// Callers must hold o.mu.
func (o *OTelObserver) turnContext(runID string) context.Context {
	if span, ok := o.turns[runID]; ok {
		return trace.ContextWithSpan(context.Background(), span)
	}

	return context.Background()
}
