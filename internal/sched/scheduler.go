// internal/sched/scheduler.go

package sched

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"slices"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/sets/linkedhashset"
	"github.com/emirpasic/gods/trees/redblacktree"

	"corosched/internal/coro"
)

// Scheduler runs tasks cooperatively on the goroutine that calls Run.
// None of its methods are safe for concurrent use; collaborators call them from
// syscalls, callbacks or task bodies, all of which run on the loop goroutine.
type Scheduler struct {
	cfg     Config
	clock   Clock
	poller  Poller
	virtual bool // clock only moves when the loop sleeps

	nextID TaskID
	tasks  map[TaskID]*Task   // live tasks, including the idle task
	ready  *linkedhashset.Set // FIFO of TaskIDs, each at most once

	nextTimer TimerID
	timers    *redblacktree.Tree // timerKey -> Action, earliest first
	timerKeys map[TimerID]timerKey

	readers   *treemap.Map // fd -> Action
	writers   *treemap.Map // fd -> Action
	externals []External

	idle     *Task
	stepping *Task // task whose body is executing right now
	steps    int64 // loop iterations so far
	abort    error // set when the loop must stop

	sinks []EventSink
}

// External is a collaborator doing work outside the loop, such as a pool of
// worker goroutines. The idle task asks it how long the loop may block and lets
// it hand finished work back.
type External interface {
	// Pending reports whether work is outstanding and how soon the loop should check back.
	Pending() (hint time.Duration, busy bool)
	// Collect runs on the loop goroutine and resumes the tasks whose work finished.
	Collect(s *Scheduler)
}

// Syscall is a privileged operation a task requests by suspending with
// coro.Sys. Its body runs synchronously inside the loop with the requesting
// task and the scheduler; it must eventually Deliver or Fail the task and
// Enqueue it, either right away or from a timer, waiter or watcher.
type Syscall struct {
	name string
	fn   func(t *Task, s *Scheduler)
}

// NewSyscall defines a syscall. The catalog in syscalls.go is built on it.
func NewSyscall(name string, fn func(t *Task, s *Scheduler)) *Syscall {
	return &Syscall{name: name, fn: fn}
}

func (c *Syscall) SyscallName() string { return c.name }

// New creates a new Scheduler instance with the given configuration.
func New(cfg Config) *Scheduler {
	cfg.sanitize()

	s := &Scheduler{
		cfg:       cfg,
		clock:     RealClock{},
		poller:    NewPoller(),
		tasks:     make(map[TaskID]*Task),
		ready:     linkedhashset.New(),
		timers:    newTimerTree(),
		timerKeys: make(map[TimerID]timerKey),
		readers:   newWaiterTable(),
		writers:   newWaiterTable(),
	}
	if cfg.Clock == ClockVirtual {
		s.clock = NewVirtualClock(time.Unix(0, 0).UTC())
		s.virtual = true
	}

	// the idle task goes first so it is ahead of every user task
	s.startIdle()
	return s
}

// SetClock replaces the loop clock. Must be called before anything is scheduled.
func (s *Scheduler) SetClock(c Clock) {
	s.clock = c
	_, s.virtual = c.(*VirtualClock)
}

// SetPoller replaces the readiness poller.
func (s *Scheduler) SetPoller(p Poller) { s.poller = p }

// AddSink subscribes a sink to scheduler events.
func (s *Scheduler) AddSink(sink EventSink) { s.sinks = append(s.sinks, sink) }

// AddExternal registers a collaborator whose outstanding work keeps the loop alive.
func (s *Scheduler) AddExternal(e External) { s.externals = append(s.externals, e) }

// EnableCSVLogging opens the given file path for CSV logging of events.
// Must be called before Run().
func (s *Scheduler) EnableCSVLogging(path string) error {
	sink, err := NewCSVSink(path)
	if err != nil {
		return err
	}
	s.AddSink(sink)
	return nil
}

// EnableTrace records every event to a msgpack trace at path.
func (s *Scheduler) EnableTrace(path string) error {
	sink, err := NewMsgpackSink(path)
	if err != nil {
		return err
	}
	s.AddSink(sink)
	return nil
}

// Close cancels every task still live, so suspended bodies unwind and run
// their deferred calls, then flushes and closes the sinks that hold files.
// It must not be called while Run is executing.
func (s *Scheduler) Close() error {
	s.release()

	var errs []error
	for _, sink := range s.sinks {
		if c, ok := sink.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// release cancels the live tasks in id order, the idle task included.
func (s *Scheduler) release() {
	ids := make([]TaskID, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		t, ok := s.tasks[id]
		if !ok {
			// cancelled along with another task
			continue
		}
		if t.privileged {
			s.drop(t)
			s.idle = nil
			t.settle(nil, ErrCancelled)
			continue
		}
		s.Cancel(id)
	}
}

// Now is the loop clock's current time.
func (s *Scheduler) Now() time.Time { return s.clock.Now() }

// Task returns a live task by id.
func (s *Scheduler) Task(id TaskID) (*Task, bool) {
	t, ok := s.tasks[id]
	return t, ok
}

// Len is the number of live user tasks.
func (s *Scheduler) Len() int {
	n := len(s.tasks)
	if s.idle != nil {
		n--
	}
	return n
}

// Submit wraps routine in a task, enqueues it and returns its id.
func (s *Scheduler) Submit(routine coro.Routine) TaskID {
	return s.spawn(routine).ID
}

func (s *Scheduler) spawn(routine coro.Routine) *Task {
	s.nextID++
	t := newTask(s.nextID, routine)
	s.tasks[t.ID] = t
	s.Enqueue(t)
	s.emit(StatusEvent{Kind: StatusSubmit, TaskID: t.ID})
	return t
}

func (s *Scheduler) startIdle() {
	t := s.spawn(&idleLoop{s: s})
	t.privileged = true
	s.idle = t
}

// Enqueue puts a live task at the tail of the ready queue. A task that is
// already queued keeps its place.
func (s *Scheduler) Enqueue(t *Task) {
	if t == nil || s.tasks[t.ID] != t {
		return
	}
	s.ready.Add(t.ID)
}

func (s *Scheduler) dequeue() (TaskID, bool) {
	it := s.ready.Iterator()
	if !it.Next() {
		return 0, false
	}
	id := it.Value().(TaskID)
	s.ready.Remove(id)
	return id, true
}

// Cancel removes a live task: it is never stepped again, its timers and waiter
// registrations are dropped and tasks waiting on it get ErrCancelled. It
// reports false for unknown ids and for the idle task.
func (s *Scheduler) Cancel(id TaskID) bool {
	t, ok := s.tasks[id]
	if !ok || t.privileged {
		return false
	}
	s.drop(t)
	s.emit(StatusEvent{Kind: StatusCancel, TaskID: id})
	if t == s.stepping {
		// its body is on the stack; settle once the step returns
		return true
	}
	t.settle(nil, ErrCancelled)
	return true
}

// drop removes every trace of t from the loop's bookkeeping.
func (s *Scheduler) drop(t *Task) {
	delete(s.tasks, t.ID)
	s.ready.Remove(t.ID)
	s.dropTimersFor(t)
	s.dropWaitersFor(t)

	hooks := t.onDrop
	t.onDrop = nil
	for _, hook := range hooks {
		hook()
	}
}

// Run steps ready tasks until the queue drains, ctx is done, or the error
// policy stops the loop. It returns ErrDeadlock if live tasks are left with
// nothing that could ever wake them.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.idle == nil {
		s.startIdle()
	}
	s.abort = nil

	for !s.ready.Empty() {
		// 1) check shutdown
		if err := ctx.Err(); err != nil {
			return err
		}

		// 2) dispatch next task; cancelled ids are skipped
		id, _ := s.dequeue()
		t, ok := s.tasks[id]
		if !ok {
			continue
		}
		s.steps++
		if !t.privileged {
			s.emit(StatusEvent{Kind: StatusDispatch, TaskID: id})
		}

		s.stepping = t
		out, err := t.Step()
		s.stepping = nil

		// 3) interpret what the step produced
		switch {
		case s.tasks[id] != t:
			// cancelled from inside its own step
			t.settle(nil, ErrCancelled)
		case err != nil:
			s.stepFailed(t, err)
		case out.Kind() == coro.KindSyscall:
			s.syscall(t, out.Syscall())
		case t.Finished():
			s.finish(t, t.body.Result(), nil)
		default:
			// plain cooperative round robin
			s.Enqueue(t)
		}
		if hook := t.afterStep; hook != nil {
			t.afterStep = nil
			hook()
		}

		if s.abort != nil {
			return s.abort
		}
	}
	return nil
}

// stepFailed handles an error that escaped every frame of t. The first time it
// is raised back into the task so top-level handling gets its turn; if it
// surfaces again the task is finished with it.
func (s *Scheduler) stepFailed(t *Task, err error) {
	if !t.erred {
		t.erred = true
		t.Fail(err)
		s.Enqueue(t)
		return
	}
	s.finish(t, nil, err)
	if s.cfg.ErrorPolicy == PolicyAbort {
		s.abort = fmt.Errorf("task %d: %w", t.ID, err)
	}
}

func (s *Scheduler) finish(t *Task, result any, err error) {
	s.drop(t)
	switch {
	case t.privileged:
		s.idle = nil
		s.emit(StatusEvent{Kind: StatusIdle, TaskID: t.ID, Detail: "nothing left to wait for"})
	case err != nil:
		s.emit(StatusEvent{Kind: StatusError, TaskID: t.ID, Detail: err.Error(), Err: err})
	default:
		s.emit(StatusEvent{Kind: StatusFinish, TaskID: t.ID, Detail: fmt.Sprintf("result=%v", result)})
	}
	t.settle(result, err)
}

// syscall runs a privileged request on behalf of t.
func (s *Scheduler) syscall(t *Task, sc coro.Syscall) {
	call, ok := sc.(*Syscall)
	if !ok || call == nil {
		t.Fail(fmt.Errorf("%w: %T", ErrBadSyscall, sc))
		s.Enqueue(t)
		return
	}
	s.emit(StatusEvent{Kind: StatusSyscall, TaskID: t.ID, Detail: call.name})

	defer func() {
		if r := recover(); r != nil {
			t.Fail(&coro.PanicError{Value: r, Stack: debug.Stack()})
			s.Enqueue(t)
		}
	}()
	call.fn(t, s)
}

func (s *Scheduler) emit(ev StatusEvent) {
	if len(s.sinks) == 0 {
		return
	}
	// per-step events are noisy; keep them for verbose runs only
	if !s.cfg.Verbose {
		switch ev.Kind {
		case StatusDispatch, StatusSyscall, StatusPoll:
			return
		}
	}
	if ev.Time.IsZero() {
		ev.Time = s.clock.Now()
	}
	ev.Step = s.steps
	for _, sink := range s.sinks {
		sink.Handle(ev)
	}
}
