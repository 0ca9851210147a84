// internal/sched/waiters.go

package sched

import (
	"fmt"

	"fortio.org/safecast"
	"github.com/emirpasic/gods/maps/treemap"
)

// FD extracts the descriptor of an *os.File or anything else exposing Fd.
func FD(f interface{ Fd() uintptr }) (int, error) {
	fd, err := safecast.Conv[int](f.Fd())
	if err != nil {
		return -1, fmt.Errorf("descriptor out of range: %w", err)
	}
	return fd, nil
}

// RegisterReader arranges for a to run once fd is readable. A resource has at
// most one pending reader.
func (s *Scheduler) RegisterReader(fd int, a Action) error {
	return register(s.readers, fd, a)
}

// RegisterWriter arranges for a to run once fd is writable. A resource has at
// most one pending writer.
func (s *Scheduler) RegisterWriter(fd int, a Action) error {
	return register(s.writers, fd, a)
}

// UnregisterReader drops the pending reader of fd, reporting whether there was one.
func (s *Scheduler) UnregisterReader(fd int) bool { return unregister(s.readers, fd) }

// UnregisterWriter drops the pending writer of fd, reporting whether there was one.
func (s *Scheduler) UnregisterWriter(fd int) bool { return unregister(s.writers, fd) }

// Waiting is the number of pending reader and writer registrations.
func (s *Scheduler) Waiting() int { return s.readers.Size() + s.writers.Size() }

func register(m *treemap.Map, fd int, a Action) error {
	if fd < 0 {
		return fmt.Errorf("invalid descriptor %d", fd)
	}
	if _, busy := m.Get(fd); busy {
		return fmt.Errorf("fd %d: %w", fd, ErrResourceBusy)
	}
	m.Put(fd, a)
	return nil
}

func unregister(m *treemap.Map, fd int) bool {
	if _, ok := m.Get(fd); !ok {
		return false
	}
	m.Remove(fd)
	return true
}

// fds lists the registered descriptors in ascending order.
func fds(m *treemap.Map) []int {
	keys := m.Keys()
	out := make([]int, len(keys))
	for i, k := range keys {
		out[i] = k.(int)
	}
	return out
}

// consume removes the registration of fd and runs it.
func (s *Scheduler) consume(m *treemap.Map, fd int) {
	v, ok := m.Get(fd)
	if !ok {
		return
	}
	m.Remove(fd)
	s.fire(v.(Action))
}

// dropWaitersFor removes every registration that would wake t.
func (s *Scheduler) dropWaitersFor(t *Task) {
	for _, m := range []*treemap.Map{s.readers, s.writers} {
		var stale []int
		m.Each(func(k, v any) {
			if v.(Action).task == t {
				stale = append(stale, k.(int))
			}
		})
		for _, fd := range stale {
			m.Remove(fd)
		}
	}
}

func newWaiterTable() *treemap.Map {
	return treemap.NewWithIntComparator()
}
