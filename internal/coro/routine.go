// internal/coro/routine.go

// Package coro provides resumable routines and the trampoline that flattens
// nested routines into one unit a scheduler can step.
//
// A routine is anything implementing Routine. It can be written as an explicit
// state machine (ResumeFunc) or as straight-line Go code that suspends through a
// Yielder (Func). Either way only one routine body executes at a time: the
// driver blocks while a body runs, and a body blocks while suspended.
package coro

import (
	"errors"
	"fmt"
)

// Routine is a resumable computation.
//
// Resume runs the routine up to its next suspension point. The first call starts
// it. On later calls a non-nil raise is delivered at the suspension point instead
// of in; the routine may handle it or return it.
//
// ok is false once the routine is exhausted. A non-nil err means the routine
// raised err and is finished.
type Routine interface {
	Resume(in any, raise error) (out Value, ok bool, err error)
}

// Closer is implemented by routines holding resources that must be released
// when they are abandoned before finishing.
type Closer interface {
	Close()
}

// ResumeFunc adapts a plain function to Routine, for hand-written state machines.
type ResumeFunc func(in any, raise error) (Value, bool, error)

func (f ResumeFunc) Resume(in any, raise error) (Value, bool, error) { return f(in, raise) }

// ErrNilRoutine is raised into a frame that delegates to a nil routine.
var ErrNilRoutine = errors.New("coro: delegate to nil routine")

// PanicError wraps a panic recovered from a routine body.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("coro: routine panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func closeRoutine(r Routine) {
	if c, ok := r.(Closer); ok {
		c.Close()
	}
}

// Steps returns a routine that emits each value in order and then finishes.
// Errors raised into it are returned unhandled.
func Steps(values ...Value) Routine {
	i := 0
	return ResumeFunc(func(_ any, raise error) (Value, bool, error) {
		if raise != nil {
			i = len(values)
			return Value{}, false, raise
		}
		if i >= len(values) {
			return Value{}, false, nil
		}
		v := values[i]
		i++
		return v, true, nil
	})
}
