// Package offload runs blocking functions on worker goroutines on behalf of
// scheduler tasks. The loop never waits on the workers: it asks the pool how
// soon to check back, and the pool hands results back on the loop goroutine.
package offload

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"corosched/internal/sched"
)

// Work is a blocking function run off the loop.
type Work func(ctx context.Context) (any, error)

type job struct {
	task *sched.Task
	work Work
}

type completion struct {
	task   *sched.Task
	result any
	err    error
}

// Pool is a bounded set of workers and a sched.External.
type Pool struct {
	ctx  context.Context
	g    *errgroup.Group
	hint time.Duration

	backlog []job // loop goroutine only

	mu       sync.Mutex
	inflight int
	done     []completion
}

// New creates a pool running at most limit functions at once. hint is how long
// the loop may block before checking for finished work.
func New(ctx context.Context, limit int, hint time.Duration) *Pool {
	if limit <= 0 {
		limit = 1
	}
	if hint <= 0 {
		hint = 10 * time.Millisecond
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	return &Pool{ctx: gctx, g: g, hint: hint}
}

// Run is a syscall that runs work off the loop and resumes the caller with its
// result or error.
func (p *Pool) Run(work Work) *sched.Syscall {
	return sched.NewSyscall("offload", func(t *sched.Task, s *sched.Scheduler) {
		p.mu.Lock()
		p.inflight++
		p.mu.Unlock()
		p.backlog = append(p.backlog, job{task: t, work: work})
		p.start()
	})
}

// start hands as much of the backlog to workers as the limit allows.
func (p *Pool) start() {
	for len(p.backlog) > 0 {
		j := p.backlog[0]
		ok := p.g.TryGo(func() error {
			result, err := j.work(p.ctx)
			p.mu.Lock()
			p.done = append(p.done, completion{task: j.task, result: result, err: err})
			p.mu.Unlock()
			// errors belong to the task, not the group
			return nil
		})
		if !ok {
			return
		}
		p.backlog = p.backlog[1:]
	}
}

// Pending implements sched.External.
func (p *Pool) Pending() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.done) > 0 {
		return 0, true
	}
	return p.hint, p.inflight > 0
}

// Collect implements sched.External.
func (p *Pool) Collect(s *sched.Scheduler) {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.inflight -= len(done)
	p.mu.Unlock()

	for _, c := range done {
		if c.err != nil {
			c.task.Fail(c.err)
		} else {
			c.task.Deliver(c.result)
		}
		// cancelled tasks are ignored by Enqueue
		s.Enqueue(c.task)
	}
	p.start()
}

// Wait blocks until every started function has returned.
func (p *Pool) Wait() error {
	return p.g.Wait()
}
