package eventing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hupe1980/agentcenter/core"
)

func newRecordedObserver() (*OTelObserver, *tracetest.SpanRecorder) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	obs := NewOTelObserver(func(o *OTelObserverOptions) {
		o.TracerProvider = tp
	})

	return obs, sr
}

func TestOTelObserver_TurnSpanLifecycle(t *testing.T) {
	obs, sr := newRecordedObserver()

	obs.Observe(ExecutionStarted{Base: Now(), RunID: "r1", AgentID: "a1", SessionID: "s1"})
	obs.Observe(ModelRequestSending{Base: Now(), RunID: "r1", RequestID: "q1", Model: "gpt-test", Messages: 3})
	obs.Observe(ModelResponseReceived{Base: Now(), RunID: "r1", RequestID: "q1", Model: "gpt-test", Usage: core.Usage{TotalTokens: 5}})
	obs.Observe(ExecutionCompleted{Base: Now(), RunID: "r1", AgentID: "a1", SessionID: "s1", Duration: time.Second})

	spans := sr.Ended()
	require.Len(t, spans, 2)

	names := []string{spans[0].Name(), spans[1].Name()}
	assert.Contains(t, names, "model.call")
	assert.Contains(t, names, "agent.turn")

	// The model call must be parented under the turn span.
	var turn, call sdktrace.ReadOnlySpan
	for _, s := range spans {
		switch s.Name() {
		case "agent.turn":
			turn = s
		case "model.call":
			call = s
		}
	}
	require.NotNil(t, turn)
	require.NotNil(t, call)
	assert.Equal(t, turn.SpanContext().SpanID(), call.Parent().SpanID())
}

func TestOTelObserver_FailureRecordsError(t *testing.T) {
	obs, sr := newRecordedObserver()

	obs.Observe(ExecutionStarted{Base: Now(), RunID: "r1", AgentID: "a1", SessionID: "s1"})
	obs.Observe(ExecutionFailed{Base: Now(), RunID: "r1", AgentID: "a1", SessionID: "s1", Err: errors.New("boom")})

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "agent.turn", spans[0].Name())
	assert.NotEmpty(t, spans[0].Events(), "error should be recorded as a span event")
}

func TestOTelObserver_DiscoverySpan(t *testing.T) {
	obs, sr := newRecordedObserver()

	obs.Observe(MCPServerDiscoveryStarted{Base: Now(), Server: "search"})
	obs.Observe(MCPServerDiscovered{Base: Now(), Server: "search", Tools: []string{"a", "b"}})

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "mcp.discovery", spans[0].Name())
}

func TestOTelObserver_OrphanEventsIgnored(t *testing.T) {
	obs, sr := newRecordedObserver()

	// Events without a preceding start must not panic or leak spans.
	obs.Observe(ExecutionCompleted{Base: Now(), RunID: "missing"})
	obs.Observe(ModelResponseReceived{Base: Now(), RequestID: "missing"})
	obs.Observe(ToolExecutionCompleted{Base: Now(), ExecutionID: "missing"})

	assert.Empty(t, sr.Ended())
}
