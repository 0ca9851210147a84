// internal/coro/trampoline.go

package coro

import "runtime/debug"

// Trampoline flattens a routine and every routine it delegates to into one
// Routine. Seen from outside, nested delegations behave as if inlined: only Emit,
// Syscall and unwrapped Literal values ever leave it.
//
// The frame stack holds suspended parents; current is the innermost frame and
// is the only one that is ever resumed.
type Trampoline struct {
	current Routine
	stack   []Routine
	result  any
	done    bool
}

// NewTrampoline returns a trampoline rooted at r.
func NewTrampoline(r Routine) *Trampoline {
	return &Trampoline{current: r}
}

// Resume advances the innermost frame until something must be exposed to the
// caller. An error nobody on the stack handles is returned unmodified.
func (t *Trampoline) Resume(in any, raise error) (Value, bool, error) {
	if t.done {
		// nothing left to catch it
		return Value{}, false, raise
	}
	if t.current == nil {
		t.done = true
		return Value{}, false, ErrNilRoutine
	}

	for {
		out, ok, err := resumeFrame(t.current, in, raise)
		in, raise = nil, nil

		if err != nil {
			// the frame raised and is finished; its parent gets a chance to handle it
			if !t.pop() {
				t.finish(nil)
				return Value{}, false, err
			}
			raise = err
			continue
		}
		if !ok {
			if !t.pop() {
				t.finish(nil)
				return Value{}, false, nil
			}
			continue
		}

		switch out.Kind() {
		case KindDelegate:
			child := out.Routine()
			if child == nil {
				raise = ErrNilRoutine
				continue
			}
			t.stack = append(t.stack, t.current)
			t.current = child
		case KindReturn:
			closeRoutine(t.current)
			if !t.pop() {
				t.finish(out.Payload())
				return Value{}, false, nil
			}
			in = out.Payload()
		case KindLiteral:
			return out.Unwrap(), true, nil
		default:
			// emitted values and syscalls go to the driver
			return out, true, nil
		}
	}
}

// resumeFrame resumes r once. A panic finishes the frame with a *PanicError.
func resumeFrame(r Routine, in any, raise error) (out Value, ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, ok, err = Value{}, false, &PanicError{Value: p, Stack: debug.Stack()}
		}
	}()
	return r.Resume(in, raise)
}

// pop makes the parent frame current. It reports false when the stack is empty.
func (t *Trampoline) pop() bool {
	n := len(t.stack)
	if n == 0 {
		return false
	}
	t.current = t.stack[n-1]
	t.stack[n-1] = nil
	t.stack = t.stack[:n-1]
	return true
}

func (t *Trampoline) finish(result any) {
	t.done = true
	t.result = result
	t.current = nil
	t.stack = nil
}

// Done reports whether the outermost frame has finished.
func (t *Trampoline) Done() bool { return t.done }

// Result is the value the outermost frame returned, if any.
func (t *Trampoline) Result() any { return t.result }

// Depth is the number of live frames, including the current one.
func (t *Trampoline) Depth() int {
	if t.done || t.current == nil {
		return 0
	}
	return len(t.stack) + 1
}

// Close releases every live frame, innermost first.
func (t *Trampoline) Close() {
	if t.done {
		return
	}
	if t.current != nil {
		closeRoutine(t.current)
	}
	for i := len(t.stack) - 1; i >= 0; i-- {
		closeRoutine(t.stack[i])
	}
	t.finish(nil)
}
