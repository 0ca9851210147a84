// internal/coro/func.go

package coro

import (
	"runtime"
	"runtime/debug"
)

// Body is straight-line routine code. It suspends through y and finishes by
// returning: a nil error ends the frame with result, a non-nil error raises it
// into the enclosing frame.
type Body func(y *Yielder) (result any, err error)

// Func turns body into a Routine. The body runs on its own goroutine, but
// control is handed back and forth over unbuffered channels, so the body and the
// driver never run at the same time.
//
// Yielder methods must only be called from the body's goroutine.
func Func(body Body) Routine {
	return &gen{body: body}
}

type resumeMsg struct {
	in    any
	raise error
	stop  bool
}

type suspendMsg struct {
	out   Value
	err   error
	final bool
}

type gen struct {
	body    Body
	resume  chan resumeMsg
	suspend chan suspendMsg
	exited  chan struct{}
	started bool
	done    bool
}

// Yielder is the body's handle to its suspension points.
type Yielder struct {
	g        *gen
	stopping bool
}

// Suspend hands v to the driver and waits to be resumed. It returns the value
// the body was resumed with, or the error raised into it.
func (y *Yielder) Suspend(v Value) (any, error) {
	g := y.g
	g.suspend <- suspendMsg{out: v}
	msg := <-g.resume
	if msg.stop {
		y.stopping = true
		runtime.Goexit()
	}
	return msg.in, msg.raise
}

// Emit suspends with an ordinary value.
func (y *Yielder) Emit(v any) (any, error) { return y.Suspend(Emit(v)) }

// Delegate runs r inline and returns its result or the error it raised.
func (y *Yielder) Delegate(r Routine) (any, error) { return y.Suspend(Delegate(r)) }

// Sys issues a privileged request and returns what the driver delivered.
func (y *Yielder) Sys(s Syscall) (any, error) { return y.Suspend(Sys(s)) }

func (g *gen) Resume(in any, raise error) (Value, bool, error) {
	if g.done {
		return Value{}, false, raise
	}
	if !g.started {
		g.started = true
		if raise != nil {
			g.done = true
			return Value{}, false, raise
		}
		g.resume = make(chan resumeMsg)
		g.suspend = make(chan suspendMsg)
		g.exited = make(chan struct{})
		go g.run()
	} else {
		g.resume <- resumeMsg{in: in, raise: raise}
	}

	msg := <-g.suspend
	if msg.err != nil {
		g.done = true
		return Value{}, false, msg.err
	}
	if msg.final {
		// the body has returned; the frame ends with its result
		g.done = true
	}
	return msg.out, true, nil
}

// Close abandons a suspended body. Its deferred calls run before Close returns.
func (g *gen) Close() {
	if g.done || !g.started {
		g.done = true
		return
	}
	g.done = true
	g.resume <- resumeMsg{stop: true}
	<-g.exited
}

func (g *gen) run() {
	y := &Yielder{g: g}
	var msg suspendMsg
	defer func() {
		defer close(g.exited)
		if r := recover(); r != nil {
			msg = suspendMsg{err: &PanicError{Value: r, Stack: debug.Stack()}}
		}
		if y.stopping {
			return
		}
		g.suspend <- msg
	}()

	result, err := g.body(y)
	if err != nil {
		msg = suspendMsg{err: err}
		return
	}
	msg = suspendMsg{out: Return(result), final: true}
}
