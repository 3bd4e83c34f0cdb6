package model

import (
	"context"
	"sync"
)

// Stream is a cancellable sequence of incremental text deltas ending in
// a final Response. Consumers iterate with Next/Current and may call
// Close at any time to cancel the underlying provider call:
//
//	stream, err := client.Stream(ctx, req)
//	if err != nil { ... }
//	defer stream.Close()
//
//	for stream.Next() {
//	    fmt.Print(stream.Current())
//	}
//
//	if err := stream.Err(); err != nil { ... }
//
//	resp, err := stream.Response()
//
// Producers (client adapters) drive the stream from a background
// goroutine via Send and must call Finish exactly once when done.
type Stream struct {
	deltas    chan string
	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once

	cur  string
	resp *Response
	err  error
}

// NewStream creates a stream whose Close cancels the provider call via
// the given cancel function.
func NewStream(cancel context.CancelFunc) *Stream {
	return &Stream{
		deltas: make(chan string, 32),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Send delivers one text delta to the consumer. It returns false when
// ctx is cancelled before the delta is accepted; producers should stop
// on false.
func (s *Stream) Send(ctx context.Context, delta string) bool {
	select {
	case s.deltas <- delta:
		return true
	case <-ctx.Done():
		return false
	}
}

// Finish completes the stream with the final response or the error that
// terminated it. Must be called exactly once by the producer.
func (s *Stream) Finish(resp *Response, err error) {
	s.resp = resp
	s.err = err

	close(s.deltas)
	close(s.done)
}

// Next advances to the next delta. It returns false when the stream has
// ended, either normally or with an error; check Err afterwards.
func (s *Stream) Next() bool {
	delta, ok := <-s.deltas

	if !ok {
		return false
	}

	s.cur = delta

	return true
}

// Current returns the delta most recently advanced to by Next.
func (s *Stream) Current() string { return s.cur }

// Err returns the error that terminated the stream, if any. Only valid
// after Next has returned false.
func (s *Stream) Err() error { return s.err }

// Response blocks until the producer has finished and returns the final
// response, or the error that terminated the stream.
func (s *Stream) Response() (*Response, error) {
	<-s.done

	if s.err != nil {
		return nil, s.err
	}

	return s.resp, nil
}

// Close cancels the underlying provider call. Consuming after Close
// drains whatever was produced before cancellation took effect. Close
// is idempotent and safe to defer alongside full consumption.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})

	return nil
}
