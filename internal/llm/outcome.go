package llm

import "errors"

// Outcome is the result of an oracle call: either a validated payload or the
// failure that prevented one. Callers pick their own fallback for failures.
type Outcome[T any] struct {
	value T
	err   error
}

// Success wraps a validated payload.
func Success[T any](v T) Outcome[T] {
	return Outcome[T]{value: v}
}

// Failure wraps the error that prevented a payload.
func Failure[T any](err error) Outcome[T] {
	if err == nil {
		err = errors.New("oracle failed without an error")
	}
	return Outcome[T]{err: err}
}

// OK reports whether the outcome carries a payload.
func (o Outcome[T]) OK() bool { return o.err == nil }

// Value returns the payload; it is the zero value for failures.
func (o Outcome[T]) Value() T { return o.value }

// Err returns the failure, or nil for a success.
func (o Outcome[T]) Err() error { return o.err }

// Or returns the payload, or fallback(err) for a failure.
func (o Outcome[T]) Or(fallback func(error) T) T {
	if o.err != nil {
		return fallback(o.err)
	}
	return o.value
}
