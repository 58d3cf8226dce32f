package retry

import (
	"context"
	"errors"
	"io"
)

// State is where a Stream is in its attempt sequence.
//
//	Idle → Attempting → Success
//	                  → Retrying → Attempting
//	                  → Exhausted
//	                  → Failed
type State int

const (
	StateIdle State = iota
	StateAttempting
	StateRetrying
	StateSuccess
	StateExhausted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateRetrying:
		return "retrying"
	case StateSuccess:
		return "success"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("retry: stream closed")

// Iterator is a single-pass pull source. Next returns io.EOF at a normal end.
type Iterator[T any] interface {
	Next() (T, error)
	Close() error
}

// OpenFunc issues the underlying request and returns its iterator.
type OpenFunc[T any] func(ctx context.Context) (Iterator[T], error)

// Stream presents one continuous sequence of items spanning as many attempts
// of an OpenFunc as the policy allows.
//
// A retried attempt starts over from scratch: items already handed out by a
// failed attempt are not retracted, and the next attempt may hand out the same
// items again. Deduplication is left to the consumer.
type Stream[T any] struct {
	ctx    context.Context
	policy Policy
	open   OpenFunc[T]

	cur     Iterator[T]
	attempt int
	state   State
	err     error
}

// NewStream returns a Stream that opens the first attempt lazily on Next.
func NewStream[T any](ctx context.Context, p Policy, open OpenFunc[T]) *Stream[T] {
	return &Stream[T]{
		ctx:    ctx,
		policy: p.withDefaults(),
		open:   open,
		state:  StateIdle,
	}
}

// Next returns the next item. It returns io.EOF once an attempt completes
// normally, or the terminal error once the stream has failed or exhausted its
// attempts.
func (s *Stream[T]) Next() (T, error) {
	var zero T

	for {
		switch s.state {
		case StateSuccess, StateExhausted, StateFailed:
			return zero, s.err

		case StateIdle, StateRetrying:
			if s.attempt >= s.policy.MaxAttempts {
				s.state = StateExhausted
				s.err = ErrAttemptsExhausted
				continue
			}

			s.state = StateAttempting
			s.attempt++
			it, err := s.open(s.ctx)
			if err != nil {
				s.fail(err)
				continue
			}
			s.cur = it

		case StateAttempting:
			v, err := s.cur.Next()
			if err == nil {
				return v, nil
			}

			_ = s.cur.Close()
			s.cur = nil

			if errors.Is(err, io.EOF) {
				s.state = StateSuccess
				s.err = io.EOF
				continue
			}
			s.fail(err)
		}
	}
}

// State reports the current position in the attempt sequence.
func (s *Stream[T]) State() State {
	return s.state
}

// Attempts reports how many attempts have been started.
func (s *Stream[T]) Attempts() int {
	return s.attempt
}

// Close releases the current attempt. Next returns ErrClosed afterwards unless
// the stream had already reached a terminal state.
func (s *Stream[T]) Close() error {
	var err error
	if s.cur != nil {
		err = s.cur.Close()
		s.cur = nil
	}

	switch s.state {
	case StateSuccess, StateExhausted, StateFailed:
	default:
		s.state = StateFailed
		s.err = ErrClosed
	}
	return err
}

func (s *Stream[T]) fail(err error) {
	state, terr := s.policy.backoff(s.ctx, err, s.attempt-1)
	s.state = state
	s.err = terr
}
