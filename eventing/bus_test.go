package eventing

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcenter/core"
)

type recordingObserver struct {
	events []Event
}

func (r *recordingObserver) Observe(ev Event) {
	r.events = append(r.events, ev)
}

func TestBus_PublishInSubscriptionOrder(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.Subscribe(ObserverFunc(func(Event) { order = append(order, "first") }))
	bus.Subscribe(ObserverFunc(func(Event) { order = append(order, "second") }))

	bus.Publish(ExecutionStarted{Base: Now(), RunID: "r1"})

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestBus_ObserverPanicDoesNotPropagate(t *testing.T) {
	bus := NewBus()

	rec := &recordingObserver{}
	bus.Subscribe(ObserverFunc(func(Event) { panic("observer blew up") }))
	bus.Subscribe(rec)

	assert.NotPanics(t, func() {
		bus.Publish(RunSaved{Base: Now(), RunID: "r1", SessionID: "s1", Messages: 2})
	})

	// The panicking observer must not block later observers.
	require.Len(t, rec.events, 1)
	assert.Equal(t, "run.saved", Kind(rec.events[0]))
}

func TestBus_NilObserverAndEventIgnored(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(nil)

	assert.NotPanics(t, func() { bus.Publish(nil) })
}

func TestKind_CoversAllVariants(t *testing.T) {
	events := []Event{
		ExecutionStarted{},
		ExecutionCompleted{},
		ExecutionFailed{},
		MCPServerDiscoveryStarted{},
		MCPServerDiscovered{},
		MCPServerDiscoveryFailed{},
		TranscriptBuildStarted{},
		TranscriptBuilt{},
		ModelRequestSending{},
		ModelResponseReceived{},
		ToolExecutionStarted{},
		ToolExecutionCompleted{},
		SessionCreated{},
		RunSaved{},
	}

	seen := map[string]bool{}
	for _, ev := range events {
		kind := Kind(ev)
		assert.NotEqual(t, "unknown", kind)
		assert.False(t, seen[kind], "kind %s duplicated", kind)
		seen[kind] = true
	}
}

func TestFileObserver_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	obs := NewFileObserver(&buf)

	obs.Observe(ExecutionFailed{Base: Now(), RunID: "r1", AgentID: "a1", SessionID: "s1", Err: errors.New("boom")})
	obs.Observe(ModelResponseReceived{Base: Now(), RunID: "r1", RequestID: "q1", Model: "gpt-test", Usage: core.Usage{TotalTokens: 9}})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, "execution.failed", first["kind"])

	payload, ok := first["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "boom", payload["error"])

	var second map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "model.response.received", second["kind"])
}

func TestConsoleObserver_RendersWithoutPanic(t *testing.T) {
	var buf bytes.Buffer
	obs := NewConsoleObserver(func(o *ConsoleObserverOptions) {
		o.Output = &buf
		o.DisableColor = true
	})

	obs.Observe(ExecutionStarted{Base: Now(), RunID: "r1", AgentID: "a1", SessionID: "s1"})
	obs.Observe(ToolExecutionCompleted{Base: Now(), RunID: "r1", ExecutionID: "x1", Tool: "echo"})

	out := buf.String()
	assert.Contains(t, out, "execution.started")
	assert.Contains(t, out, "agent=a1")
	assert.Contains(t, out, "tool=echo")
}
