package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentcenter/core"
)

// MockOptions configure the mock client.
type MockOptions struct {
	// Name is reported as the model identifier on responses.
	Name string

	// Delay is slept (context-aware) before the first round of every
	// interaction. Useful for exercising timeouts.
	Delay time.Duration
}

type mockStep struct {
	content   string
	toolCalls []core.ToolCall
	err       error
}

// Mock is a scripted in-memory Client useful for tests and examples.
//
// Steps are queued with AddResponse, AddToolCalls and AddError and
// consumed in order; one interaction consumes steps until it reaches a
// plain response or an error, executing queued tool-call rounds through
// the request's ToolRunner on the way. When the script is exhausted the
// mock echoes the prompt.
type Mock struct {
	mu       sync.Mutex
	name     string
	delay    time.Duration
	script   []mockStep
	requests []Request
}

// NewMock creates a mock client.
func NewMock(optFns ...func(o *MockOptions)) *Mock {
	opts := MockOptions{
		Name: "mock-model",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Mock{
		name:  opts.Name,
		delay: opts.Delay,
	}
}

// AddResponse queues a plain text response step.
func (m *Mock) AddResponse(content string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.script = append(m.script, mockStep{content: content})

	return m
}

// AddToolCalls queues a tool-calling round. The next queued step answers
// the follow-up round after the tool results are fed back.
func (m *Mock) AddToolCalls(calls ...core.ToolCall) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.script = append(m.script, mockStep{toolCalls: calls})

	return m
}

// AddError queues a failing attempt.
func (m *Mock) AddError(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.script = append(m.script, mockStep{err: err})

	return m
}

// Requests returns the requests received so far, in arrival order.
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, len(m.requests))
	copy(out, m.requests)

	return out
}

func (m *Mock) pop(prompt core.Message) mockStep {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.script) == 0 {
		return mockStep{content: fmt.Sprintf("Mock response to: %s", prompt.Content)}
	}

	step := m.script[0]
	m.script = m.script[1:]

	return step
}

func (m *Mock) record(req Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
}

func (m *Mock) wait(ctx context.Context) error {
	if m.delay <= 0 {
		return nil
	}

	select {
	case <-time.After(m.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Respond implements Client.
func (m *Mock) Respond(ctx context.Context, req Request) (*Response, error) {
	m.record(req)

	if err := m.wait(ctx); err != nil {
		return nil, err
	}

	monitor := MonitorOrNoop(req.Monitor)

	var (
		messages []core.Message
		usage    core.Usage
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		step := m.pop(req.Prompt)
		if step.err != nil {
			return nil, step.err
		}

		requestID := core.NewID()
		monitor.RequestSending(requestID, m.name, len(req.History)+1+len(messages))

		roundUsage := core.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
		usage = usage.Add(roundUsage)
		monitor.ResponseReceived(requestID, m.name, roundUsage)

		if len(step.toolCalls) == 0 {
			messages = append(messages, core.NewAssistantMessage(step.content))

			return &Response{
				Content:  step.content,
				Messages: messages,
				Usage:    &usage,
				Model:    m.name,
			}, nil
		}

		if req.Runner == nil {
			return nil, fmt.Errorf("mock scripted tool calls but no tool runner provided")
		}

		messages = append(messages, core.NewToolCallMessage(step.toolCalls...))

		for _, call := range step.toolCalls {
			result, err := req.Runner.Run(ctx, call)
			if err != nil {
				result = fmt.Sprintf("Error: %s", err)
			}

			messages = append(messages, core.NewToolResultMessage(call.ID, call.Name, result))
		}
	}
}

// Stream implements Client. The final content is emitted rune by rune.
func (m *Mock) Stream(ctx context.Context, req Request) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream := NewStream(cancel)

	go func() {
		resp, err := m.Respond(ctx, req)
		if err != nil {
			stream.Finish(nil, err)
			return
		}

		for _, r := range resp.Content {
			if !stream.Send(ctx, string(r)) {
				stream.Finish(nil, ctx.Err())
				return
			}
		}

		stream.Finish(resp, nil)
	}()

	return stream, nil
}
