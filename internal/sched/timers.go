// internal/sched/timers.go

package sched

import (
	"strconv"
	"time"

	"github.com/emirpasic/gods/trees/redblacktree"
)

// TimerID identifies a registered timer. It also orders timers that share a deadline.
type TimerID uint64

// Action is what the scheduler runs when a timer fires or a resource becomes
// ready: either re-enqueue a task or call a function.
type Action struct {
	task *Task
	fn   func()
}

// Wake re-enqueues t, provided it is still live.
func Wake(t *Task) Action { return Action{task: t} }

// Callback calls fn on the loop goroutine.
func Callback(fn func()) Action { return Action{fn: fn} }

// Task returns the task woken by the action, or nil for callbacks.
func (a Action) Task() *Task { return a.task }

// fire runs the action. Tasks that were cancelled or finished meanwhile are ignored.
func (s *Scheduler) fire(a Action) {
	switch {
	case a.task != nil:
		if s.tasks[a.task.ID] == a.task {
			s.Enqueue(a.task)
		}
	case a.fn != nil:
		a.fn()
	}
}

// RegisterTimer schedules a to fire at the given instant of the loop clock.
// Timers fire in ascending deadline order; equal deadlines fire in registration order.
func (s *Scheduler) RegisterTimer(at time.Time, a Action) TimerID {
	s.nextTimer++
	id := s.nextTimer
	key := timerKey{at: at, id: id}
	s.timers.Put(key, a)
	s.timerKeys[id] = key
	return id
}

// After schedules a to fire d from now.
func (s *Scheduler) After(d time.Duration, a Action) TimerID {
	return s.RegisterTimer(s.clock.Now().Add(d), a)
}

// CancelTimer removes a pending timer. It reports false if the timer already
// fired or was cancelled.
func (s *Scheduler) CancelTimer(id TimerID) bool {
	key, ok := s.timerKeys[id]
	if !ok {
		return false
	}
	s.timers.Remove(key)
	delete(s.timerKeys, id)
	return true
}

// PendingTimers is the number of timers that have not fired yet.
func (s *Scheduler) PendingTimers() int { return s.timers.Size() }

// nextDeadline returns the earliest pending deadline.
func (s *Scheduler) nextDeadline() (time.Time, bool) {
	node := s.timers.Left()
	if node == nil {
		return time.Time{}, false
	}
	return node.Key.(timerKey).at, true
}

// fireDueTimers pops and fires every timer whose deadline has passed, earliest
// first. A callback may register new timers; those due now fire in this pass too.
func (s *Scheduler) fireDueTimers() int {
	fired := 0
	for {
		node := s.timers.Left()
		if node == nil {
			return fired
		}
		key := node.Key.(timerKey)
		if key.at.After(s.clock.Now()) {
			return fired
		}
		a := node.Value.(Action)
		s.timers.Remove(key)
		delete(s.timerKeys, key.id)
		fired++

		var id TaskID
		if a.task != nil {
			id = a.task.ID
		}
		s.emit(StatusEvent{Kind: StatusTimer, TaskID: id, Detail: "timer " + key.String()})
		s.fire(a)
	}
}

// dueToWake reports whether t is queued or has a timer that is already due.
func (s *Scheduler) dueToWake(t *Task) bool {
	if s.ready.Contains(t.ID) {
		return true
	}
	now := s.clock.Now()
	it := s.timers.Iterator()
	for it.Next() {
		if it.Key().(timerKey).at.After(now) {
			return false
		}
		if it.Value().(Action).task == t {
			return true
		}
	}
	return false
}

// dropTimersFor removes the timers that would wake t.
func (s *Scheduler) dropTimersFor(t *Task) {
	var stale []timerKey
	it := s.timers.Iterator()
	for it.Next() {
		if a := it.Value().(Action); a.task == t {
			stale = append(stale, it.Key().(timerKey))
		}
	}
	for _, key := range stale {
		s.timers.Remove(key)
		delete(s.timerKeys, key.id)
	}
}

// timerKey is used as a key in the red-black tree.
type timerKey struct {
	at time.Time
	id TimerID
}

func (k timerKey) String() string {
	return "#" + strconv.FormatUint(uint64(k.id), 10)
}

func newTimerTree() *redblacktree.Tree {
	return redblacktree.NewWith(timerCmp)
}

// timerCmp orders timer keys by deadline, then by registration.
func timerCmp(a, b any) int {
	ka, kb := a.(timerKey), b.(timerKey)
	switch {
	case ka.at.Before(kb.at):
		return -1
	case ka.at.After(kb.at):
		return 1
	case ka.id < kb.id:
		return -1
	case ka.id > kb.id:
		return 1
	default:
		return 0
	}
}
