// internal/sched/task.go

package sched

import "corosched/internal/coro"

// TaskID uniquely identifies a task in the scheduler. IDs are never reused.
type TaskID uint64

// Task drives one trampolined routine, one step at a time.
type Task struct {
	ID         TaskID
	body       *coro.Trampoline
	started    bool
	input      any   // value to resume with on the next step
	raise      error // error to raise on the next step; excludes input
	finished   bool
	erred      bool // an error already surfaced from Step once
	privileged bool

	result    any
	err       error
	watchers  []*watcher // notified when the task finishes or is cancelled
	afterStep func()     // one-shot hook run after the task's next step
	onDrop    []func()   // run when the task leaves the scheduler
}

// watcher is a completion callback that can be detached before it fires.
type watcher struct {
	fn     func(result any, err error)
	active bool
}

// newTask wraps routine in a trampoline.
func newTask(id TaskID, routine coro.Routine) *Task {
	return &Task{
		ID:   id,
		body: coro.NewTrampoline(routine),
	}
}

// Step advances the task exactly once and returns its suspension value.
// The first step starts the body; later steps resume it with the pending
// error if one is set, otherwise with the pending value.
func (t *Task) Step() (coro.Value, error) {
	in, raise := t.input, t.raise
	t.input, t.raise = nil, nil
	if !t.started {
		t.started = true
		in, raise = nil, nil
	}

	out, ok, err := t.body.Resume(in, raise)
	if !ok || err != nil {
		t.finished = true
	}
	return out, err
}

// Deliver sets the value the task is resumed with on its next step.
func (t *Task) Deliver(v any) {
	t.input = v
	t.raise = nil
}

// Fail sets the error raised into the task on its next step.
func (t *Task) Fail(err error) {
	t.raise = err
	t.input = nil
}

// Finished reports whether the task's body is exhausted.
func (t *Task) Finished() bool { return t.finished }

// Privileged reports whether this is the scheduler's own idle task.
func (t *Task) Privileged() bool { return t.privileged }

// Result is the task's final value and error. It is only meaningful once the
// task has left the scheduler.
func (t *Task) Result() (any, error) { return t.result, t.err }

// watch registers fn to run once when the task finishes or is cancelled.
func (t *Task) watch(fn func(result any, err error)) *watcher {
	w := &watcher{fn: fn, active: true}
	t.watchers = append(t.watchers, w)
	return w
}

// settle records the outcome, releases the body and notifies watchers.
func (t *Task) settle(result any, err error) {
	t.finished = true
	t.result, t.err = result, err
	t.body.Close()

	watchers := t.watchers
	t.watchers = nil
	for _, w := range watchers {
		if !w.active {
			continue
		}
		w.active = false
		w.fn(result, err)
	}
}
