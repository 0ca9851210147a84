package sched

import "time"

// Poller performs one readiness check.
type Poller interface {
	// Poll waits up to timeout for any of reads to become readable or writes to
	// become writable. A negative timeout waits indefinitely. Ready descriptors
	// are returned in the order the underlying primitive reports them.
	Poll(reads, writes []int, timeout time.Duration) (readyReads, readyWrites []int, err error)
}
