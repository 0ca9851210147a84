// internal/sched/idle.go

package sched

import (
	"fmt"
	"time"

	"corosched/internal/coro"
)

// idleLoop is the privileged task that folds blocking waits into the loop.
// Every time it is stepped it waits at most as long as nothing else could run,
// polls once, fires due timers and suspends again. It finishes when nothing
// could ever need the loop again.
type idleLoop struct {
	s *Scheduler
}

func (l *idleLoop) Resume(any, error) (coro.Value, bool, error) {
	s := l.s
	s.collect()

	if s.quiescent() {
		return coro.Value{}, false, nil
	}
	budget, ok := s.waitBudget()
	if !ok {
		s.abort = fmt.Errorf("%w: %d live tasks", ErrDeadlock, s.Len())
		return coro.Value{}, false, nil
	}

	s.poll(budget)
	s.fireDueTimers()
	s.collect()
	return coro.Emit(nil), true, nil
}

// quiescent reports that no user task is live and nothing is pending that
// could create one.
func (s *Scheduler) quiescent() bool {
	if s.Len() > 0 || s.timers.Size() > 0 || s.Waiting() > 0 {
		return false
	}
	_, busy := s.externalHint()
	return !busy
}

// waitBudget is how long the next poll may block: zero when other tasks are
// ready, otherwise until the nearest timer, tightened by external hints.
// A negative budget means wait until a descriptor is ready. ok is false when
// nothing at all could wake the loop.
func (s *Scheduler) waitBudget() (budget time.Duration, ok bool) {
	if !s.ready.Empty() {
		return 0, true
	}

	budget = -1
	if at, has := s.nextDeadline(); has {
		budget = max(at.Sub(s.clock.Now()), 0)
	}
	if hint, busy := s.externalHint(); busy {
		if budget < 0 || hint < budget {
			budget = max(hint, 0)
		}
	}
	if budget < 0 && s.Waiting() == 0 {
		return 0, false
	}
	return budget, true
}

// poll performs one readiness check with the given budget and runs the
// actions of every ready descriptor.
func (s *Scheduler) poll(budget time.Duration) {
	reads, writes := fds(s.readers), fds(s.writers)

	if len(reads)+len(writes) == 0 {
		switch {
		case budget <= 0:
		case s.virtual:
			s.clock.Sleep(budget)
		default:
			s.clock.Sleep(s.clamp(budget))
		}
		return
	}

	timeout := s.clamp(budget)
	if s.virtual && budget >= 0 {
		// real descriptors are only checked; time itself is virtual
		timeout = 0
	}

	readyReads, readyWrites, err := s.poller.Poll(reads, writes, timeout)
	if err != nil {
		// every waiter is woken and finds the problem on its own descriptor
		s.emit(StatusEvent{Kind: StatusError, Detail: err.Error(), Err: err})
		readyReads, readyWrites = reads, writes
	}
	if s.virtual && budget > 0 && len(readyReads)+len(readyWrites) == 0 {
		s.clock.Sleep(budget)
	}

	s.emit(StatusEvent{Kind: StatusPoll, Detail: fmt.Sprintf("budget=%s readable=%v writable=%v", budget, readyReads, readyWrites)})
	for _, fd := range readyReads {
		s.consume(s.readers, fd)
	}
	for _, fd := range readyWrites {
		s.consume(s.writers, fd)
	}
}

// clamp bounds a real blocking wait by max_poll_ms so Run notices ctx promptly.
func (s *Scheduler) clamp(d time.Duration) time.Duration {
	limit := s.cfg.maxPoll()
	if limit <= 0 {
		return d
	}
	if d < 0 || d > limit {
		return limit
	}
	return d
}

func (s *Scheduler) externalHint() (hint time.Duration, busy bool) {
	hint = -1
	for _, e := range s.externals {
		h, b := e.Pending()
		if !b {
			continue
		}
		busy = true
		if hint < 0 || h < hint {
			hint = h
		}
	}
	return hint, busy
}

func (s *Scheduler) collect() {
	for _, e := range s.externals {
		e.Collect(s)
	}
}
