//go:build unix

package sched

import (
	"fmt"
	"math"
	"sort"
	"time"

	"fortio.org/safecast"
	"golang.org/x/sys/unix"
)

const (
	readyRead  = unix.POLLIN | unix.POLLHUP | unix.POLLERR | unix.POLLNVAL
	readyWrite = unix.POLLOUT | unix.POLLHUP | unix.POLLERR | unix.POLLNVAL
)

// unixPoller waits with poll(2).
type unixPoller struct{}

// NewPoller returns the platform poller.
func NewPoller() Poller { return unixPoller{} }

func (unixPoller) Poll(reads, writes []int, timeout time.Duration) ([]int, []int, error) {
	events := make(map[int]int16, len(reads)+len(writes))
	for _, fd := range reads {
		events[fd] |= unix.POLLIN
	}
	for _, fd := range writes {
		events[fd] |= unix.POLLOUT
	}
	if len(events) == 0 {
		return nil, nil, nil
	}

	order := make([]int, 0, len(events))
	for fd := range events {
		order = append(order, fd)
	}
	sort.Ints(order)

	pfds := make([]unix.PollFd, 0, len(order))
	for _, fd := range order {
		fd32, err := safecast.Conv[int32](fd)
		if err != nil {
			return nil, nil, fmt.Errorf("poll: descriptor %d: %w", fd, err)
		}
		pfds = append(pfds, unix.PollFd{Fd: fd32, Events: events[fd]})
	}

	ms := pollTimeoutMS(timeout)
	for {
		n, err := unix.Poll(pfds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			return nil, nil, nil
		}
		break
	}

	var readyReads, readyWrites []int
	for i, pfd := range pfds {
		if pfd.Revents == 0 {
			continue
		}
		fd := order[i]
		if pfd.Events&unix.POLLIN != 0 && pfd.Revents&readyRead != 0 {
			readyReads = append(readyReads, fd)
		}
		if pfd.Events&unix.POLLOUT != 0 && pfd.Revents&readyWrite != 0 {
			readyWrites = append(readyWrites, fd)
		}
	}
	return readyReads, readyWrites, nil
}

// pollTimeoutMS rounds up so a sub-millisecond budget still sleeps instead of spinning.
func pollTimeoutMS(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := int64((timeout + time.Millisecond - 1) / time.Millisecond)
	out, err := safecast.Conv[int32](ms)
	if err != nil {
		return math.MaxInt32
	}
	return int(out)
}
