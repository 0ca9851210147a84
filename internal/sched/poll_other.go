//go:build !unix

package sched

import "time"

type stubPoller struct{}

// NewPoller returns a poller that can only report that descriptors are unsupported.
func NewPoller() Poller { return stubPoller{} }

func (stubPoller) Poll(reads, writes []int, timeout time.Duration) ([]int, []int, error) {
	if len(reads)+len(writes) == 0 {
		return nil, nil, nil
	}
	return nil, nil, ErrPollUnsupported
}
