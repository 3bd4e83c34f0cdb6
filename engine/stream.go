package engine

import (
	"context"
	"sync"

	"github.com/hupe1980/agentcenter/core"
	"github.com/hupe1980/agentcenter/model"
)

// StreamTurn executes a turn like RunTurn but returns a cancellable
// stream of text deltas instead of blocking until the final response.
//
// Consuming the stream to exhaustion persists the run and fires post
// hooks exactly as RunTurn does; Close before exhaustion cancels the
// in-flight model call and skips persistence. The policy's retry budget
// covers only the stream initiation; once deltas flow, a transport
// failure ends the stream with that error.
func (e *Engine) StreamTurn(ctx context.Context, req TurnRequest) (*TurnStream, error) {
	t, err := e.beginTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	cancel := context.CancelFunc(func() {})

	if timeout := req.Policy.Timeout; timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	var (
		stream  *model.Stream
		lastErr error
	)

	for attempt := 0; attempt < req.Policy.Attempts(); attempt++ {
		stream, lastErr = t.client.Stream(callCtx, t.request)
		if lastErr == nil {
			break
		}

		if callCtx.Err() != nil {
			break
		}
	}

	if lastErr != nil {
		cancel()

		err := e.mapTimeout(ctx, req.Policy, lastErr)
		e.failTurn(t, err)

		return nil, err
	}

	return &TurnStream{
		engine: e,
		turn:   t,
		parent: ctx,
		cancel: cancel,
		stream: stream,
	}, nil
}

// TurnStream is the consumer surface of a streaming turn. It mirrors the
// iterator shape of the provider SDK streams:
//
//	stream, err := eng.StreamTurn(ctx, req)
//	if err != nil { ... }
//	defer stream.Close()
//
//	for stream.Next() {
//	    fmt.Print(stream.Current())
//	}
//
//	run, err := stream.Run()
type TurnStream struct {
	engine *Engine
	turn   *turn
	parent context.Context
	cancel context.CancelFunc
	stream *model.Stream

	once sync.Once
	run  *core.Run
	err  error
}

// Next advances to the next text delta. When the underlying interaction
// has finished, Next finalizes the turn (persistence, events, post
// hooks) and returns false.
func (s *TurnStream) Next() bool {
	if s.stream.Next() {
		return true
	}

	s.finalize()

	return false
}

// Current returns the delta most recently advanced to by Next.
func (s *TurnStream) Current() string { return s.stream.Current() }

// Err returns the error that terminated the stream or failed the
// finalization. Only meaningful after Next has returned false.
func (s *TurnStream) Err() error { return s.err }

// Run drains any remaining deltas and returns the persisted run. It
// fails with the stream's terminal error when the turn did not complete.
func (s *TurnStream) Run() (*core.Run, error) {
	for s.Next() { //nolint:revive // draining
	}

	if s.err != nil {
		return nil, s.err
	}

	return s.run, nil
}

// Close cancels the in-flight model call. Closing before the stream is
// exhausted abandons the turn: no run is persisted and the turn is
// reported as failed with the cancellation error. Close is idempotent
// and safe to defer alongside full consumption.
func (s *TurnStream) Close() error {
	s.cancel()
	_ = s.stream.Close()
	s.finalize()

	return nil
}

// finalize runs exactly once when the underlying stream has ended: on
// success it persists the run and fires post-hooks, on failure it emits
// ExecutionFailed.
func (s *TurnStream) finalize() {
	s.once.Do(func() {
		resp, err := s.stream.Response()
		if err != nil {
			s.err = s.engine.mapTimeout(s.parent, s.turn.req.Policy, err)
			s.engine.failTurn(s.turn, s.err)
			s.cancel()

			return
		}

		s.cancel()

		run, err := s.engine.completeTurn(s.parent, s.turn, resp)
		if err != nil {
			s.err = err
			s.engine.failTurn(s.turn, err)

			return
		}

		s.run = run
	})
}
