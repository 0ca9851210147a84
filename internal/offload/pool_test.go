package offload

import (
	"context"
	"errors"
	"testing"
	"time"

	"corosched/internal/coro"
	"corosched/internal/sched"
)

func TestRunDeliversResult(t *testing.T) {
	s := sched.New(sched.DefaultConfig())
	p := New(context.Background(), 2, time.Millisecond)
	s.AddExternal(p)

	var got any
	s.Submit(coro.Func(func(y *coro.Yielder) (any, error) {
		v, err := y.Sys(p.Run(func(ctx context.Context) (any, error) {
			time.Sleep(5 * time.Millisecond)
			return "worked", nil
		}))
		got = v
		return nil, err
	}))

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got != "worked" {
		t.Fatalf("got %v", got)
	}
}

func TestRunRaisesWorkError(t *testing.T) {
	s := sched.New(sched.DefaultConfig())
	p := New(context.Background(), 1, time.Millisecond)
	s.AddExternal(p)

	boom := errors.New("boom")
	var got error
	s.Submit(coro.Func(func(y *coro.Yielder) (any, error) {
		_, got = y.Sys(p.Run(func(ctx context.Context) (any, error) {
			return nil, boom
		}))
		return nil, nil
	}))

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != boom {
		t.Fatalf("error = %v", got)
	}
}

func TestLimitQueuesBacklog(t *testing.T) {
	s := sched.New(sched.DefaultConfig())
	p := New(context.Background(), 1, time.Millisecond)
	s.AddExternal(p)

	running, peak := 0, 0
	gate := make(chan struct{}, 1)
	work := func(ctx context.Context) (any, error) {
		gate <- struct{}{}
		running++
		if running > peak {
			peak = running
		}
		time.Sleep(2 * time.Millisecond)
		running--
		<-gate
		return nil, nil
	}
	done := 0
	for i := 0; i < 3; i++ {
		s.Submit(coro.Func(func(y *coro.Yielder) (any, error) {
			if _, err := y.Sys(p.Run(work)); err != nil {
				return nil, err
			}
			done++
			return nil, nil
		}))
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if done != 3 {
		t.Fatalf("done = %d", done)
	}
	if peak != 1 {
		t.Fatalf("peak concurrency = %d", peak)
	}
}

func TestPendingHint(t *testing.T) {
	p := New(context.Background(), 0, 0)
	if _, busy := p.Pending(); busy {
		t.Fatalf("idle pool reports busy")
	}

	cfg := sched.DefaultConfig()
	cfg.Verbose = true
	s := sched.New(cfg)
	release := make(chan struct{})
	s.Submit(coro.Func(func(y *coro.Yielder) (any, error) {
		return y.Sys(p.Run(func(ctx context.Context) (any, error) {
			<-release
			return nil, nil
		}))
	}))
	s.AddExternal(p)

	// stop the loop once the work is in flight
	ctx, cancel := context.WithCancel(context.Background())
	s.AddSink(sched.EventFunc(func(ev sched.StatusEvent) {
		if ev.Kind == sched.StatusSyscall {
			cancel()
		}
	}))
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("run error = %v", err)
	}

	hint, busy := p.Pending()
	if !busy || hint != 10*time.Millisecond {
		t.Fatalf("pending = %v, %v", hint, busy)
	}
	close(release)
	if err := p.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if hint, busy := p.Pending(); !busy || hint != 0 {
		t.Fatalf("finished work not reported: %v, %v", hint, busy)
	}
}
