package sched

import "errors"

var (
	// ErrUnknownTask is returned when an operation names a task id that is not live.
	ErrUnknownTask = errors.New("sched: unknown task id")

	// ErrTimeout is raised into a task whose WaitFor deadline passed first.
	ErrTimeout = errors.New("sched: timed out")

	// ErrCancelled is raised into tasks waiting on a task that was cancelled.
	ErrCancelled = errors.New("sched: task cancelled")

	// ErrDeadlock is returned by Run when live tasks can never be woken again.
	ErrDeadlock = errors.New("sched: all tasks are blocked")

	// ErrResourceBusy is returned when a resource already has a waiter in that direction.
	ErrResourceBusy = errors.New("sched: resource already has a waiter")

	// ErrBadSyscall is raised into a task that suspended with a syscall this scheduler does not know.
	ErrBadSyscall = errors.New("sched: unsupported syscall")

	// ErrPollUnsupported is returned by pollers that cannot wait on descriptors on this platform.
	ErrPollUnsupported = errors.New("sched: readiness polling not supported")
)
