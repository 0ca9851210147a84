// internal/sched/syscalls.go

package sched

import (
	"fmt"
	"time"

	"corosched/internal/coro"
)

// Every syscall below captures its inputs when it is built and runs once,
// synchronously, when the task suspends with it.

// GetTaskID resumes the caller with its own TaskID.
func GetTaskID() *Syscall {
	return NewSyscall("get_task_id", func(t *Task, s *Scheduler) {
		t.Deliver(t.ID)
		s.Enqueue(t)
	})
}

// Now resumes the caller with the loop clock's time.
func Now() *Syscall {
	return NewSyscall("now", func(t *Task, s *Scheduler) {
		t.Deliver(s.Now())
		s.Enqueue(t)
	})
}

// NewTask submits routine and resumes the caller with the new TaskID.
func NewTask(routine coro.Routine) *Syscall {
	return NewSyscall("new_task", func(t *Task, s *Scheduler) {
		t.Deliver(s.Submit(routine))
		s.Enqueue(t)
	})
}

// KillTask cancels id. The caller is resumed with true, or gets ErrUnknownTask.
func KillTask(id TaskID) *Syscall {
	return NewSyscall("kill_task", func(t *Task, s *Scheduler) {
		if s.Cancel(id) {
			t.Deliver(true)
		} else {
			t.Fail(fmt.Errorf("kill task %d: %w", id, ErrUnknownTask))
		}
		s.Enqueue(t)
	})
}

// WaitTask suspends the caller until id finishes and resumes it with that
// task's result or error. A cancelled target raises ErrCancelled.
func WaitTask(id TaskID) *Syscall {
	return NewSyscall("wait_task", func(t *Task, s *Scheduler) {
		target, ok := s.tasks[id]
		switch {
		case !ok || target.privileged:
			t.Fail(fmt.Errorf("wait task %d: %w", id, ErrUnknownTask))
			s.Enqueue(t)
		case target == t:
			t.Fail(fmt.Errorf("task %d waits on itself: %w", id, ErrDeadlock))
			s.Enqueue(t)
		default:
			target.watch(func(result any, err error) {
				if err != nil {
					t.Fail(err)
				} else {
					t.Deliver(result)
				}
				s.Enqueue(t)
			})
		}
	})
}

// ReadWait suspends the caller until fd is readable, then resumes it with fd.
func ReadWait(fd int) *Syscall {
	return NewSyscall("read_wait", func(t *Task, s *Scheduler) {
		t.Deliver(fd)
		if err := s.RegisterReader(fd, Wake(t)); err != nil {
			t.Fail(err)
			s.Enqueue(t)
		}
	})
}

// WriteWait suspends the caller until fd is writable, then resumes it with fd.
func WriteWait(fd int) *Syscall {
	return NewSyscall("write_wait", func(t *Task, s *Scheduler) {
		t.Deliver(fd)
		if err := s.RegisterWriter(fd, Wake(t)); err != nil {
			t.Fail(err)
			s.Enqueue(t)
		}
	})
}

// Sleep suspends the caller for d. A non-positive d just yields.
func Sleep(d time.Duration) *Syscall {
	return NewSyscall("sleep", func(t *Task, s *Scheduler) {
		t.Deliver(nil)
		if d <= 0 {
			s.Enqueue(t)
			return
		}
		s.After(d, Wake(t))
	})
}

// WaitFor runs routine as a new task and races it against timeout. The caller
// gets the task's result or error if it finishes first. Otherwise the task is
// cancelled and the caller gets ErrTimeout.
//
// Completion wins ties: if the task is already due to wake when the deadline
// fires, it gets one more step, and the timeout only applies if that step
// does not finish it. Cancelling the caller cancels the task as well.
func WaitFor(routine coro.Routine, timeout time.Duration) *Syscall {
	return NewSyscall("wait_for", func(t *Task, s *Scheduler) {
		inner := s.spawn(routine)

		var w *watcher
		expire := func() {
			if !w.active {
				return
			}
			if inner.erred && s.tasks[inner.ID] == inner {
				// its error is re-raised on the next step, which finishes it
				return
			}
			w.active = false
			s.Cancel(inner.ID)
			t.Fail(fmt.Errorf("wait for task %d: %w after %s", inner.ID, ErrTimeout, timeout))
			s.Enqueue(t)
		}
		timer := s.After(timeout, Callback(func() {
			if !w.active {
				return
			}
			if s.dueToWake(inner) {
				inner.afterStep = expire
				return
			}
			expire()
		}))
		w = inner.watch(func(result any, err error) {
			s.CancelTimer(timer)
			if err != nil {
				t.Fail(err)
			} else {
				t.Deliver(result)
			}
			s.Enqueue(t)
		})
		// nobody is left to receive the result once the caller is gone
		t.onDrop = append(t.onDrop, func() {
			if !w.active {
				return
			}
			w.active = false
			s.CancelTimer(timer)
			s.Cancel(inner.ID)
		})
	})
}
