//go:build unix

package sched

import (
	"errors"
	"os"
	"testing"
	"time"

	"corosched/internal/coro"
)

func pipe(t *testing.T) (r, w *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return r, w
}

func mustFD(t *testing.T, f *os.File) int {
	t.Helper()
	fd, err := FD(f)
	if err != nil {
		t.Fatalf("fd: %v", err)
	}
	return fd
}

func TestPollerReportsReadiness(t *testing.T) {
	r, w := pipe(t)
	rfd, wfd := mustFD(t, r), mustFD(t, w)
	p := NewPoller()

	reads, writes, err := p.Poll([]int{rfd}, []int{wfd}, 0)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	mustEqual(t, len(reads), 0)
	mustEqual(t, writes, []int{wfd})

	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	reads, _, err = p.Poll([]int{rfd}, nil, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	mustEqual(t, reads, []int{rfd})
}

func TestPollTimeoutRoundsUp(t *testing.T) {
	mustEqual(t, pollTimeoutMS(-1), -1)
	mustEqual(t, pollTimeoutMS(0), 0)
	mustEqual(t, pollTimeoutMS(time.Nanosecond), 1)
	mustEqual(t, pollTimeoutMS(1500*time.Microsecond), 2)
	mustEqual(t, pollTimeoutMS(time.Second), 1000)
}

func TestReadWaitWakesOnData(t *testing.T) {
	r, w := pipe(t)
	rfd := mustFD(t, r)
	s := New(DefaultConfig())

	var got string
	var woke any
	s.Submit(coro.Func(func(y *coro.Yielder) (any, error) {
		fd, err := y.Sys(ReadWait(rfd))
		if err != nil {
			return nil, err
		}
		woke = fd
		buf := make([]byte, 16)
		n, err := r.Read(buf)
		got = string(buf[:n])
		return nil, err
	}))
	s.Submit(coro.Func(func(y *coro.Yielder) (any, error) {
		if _, err := y.Sys(Sleep(10 * time.Millisecond)); err != nil {
			return nil, err
		}
		_, err := w.Write([]byte("hello"))
		return nil, err
	}))

	mustRun(t, s)
	mustEqual(t, woke, rfd)
	mustEqual(t, got, "hello")
	mustEqual(t, s.Waiting(), 0)
}

func TestSecondReaderIsBusy(t *testing.T) {
	r, w := pipe(t)
	rfd, wfd := mustFD(t, r), mustFD(t, w)
	s := New(DefaultConfig())

	var busy error
	s.Submit(coro.Func(func(y *coro.Yielder) (any, error) {
		return y.Sys(ReadWait(rfd))
	}))
	s.Submit(coro.Func(func(y *coro.Yielder) (any, error) {
		_, busy = y.Sys(ReadWait(rfd))
		if _, err := y.Sys(WriteWait(wfd)); err != nil {
			return nil, err
		}
		_, err := w.Write([]byte("x"))
		return nil, err
	}))

	mustRun(t, s)
	if !errors.Is(busy, ErrResourceBusy) {
		t.Fatalf("error = %v", busy)
	}
}

func TestCancelledReaderIsUnregistered(t *testing.T) {
	r, _ := pipe(t)
	rfd := mustFD(t, r)
	s := New(DefaultConfig())

	reader := s.Submit(coro.Func(func(y *coro.Yielder) (any, error) {
		return y.Sys(ReadWait(rfd))
	}))
	s.Submit(coro.Func(func(y *coro.Yielder) (any, error) {
		return y.Sys(KillTask(reader))
	}))

	mustRun(t, s)
	mustEqual(t, s.Waiting(), 0)
}

func TestRegisterInvalidDescriptor(t *testing.T) {
	s := New(DefaultConfig())
	if err := s.RegisterReader(-1, Callback(func() {})); err == nil {
		t.Fatalf("negative descriptor accepted")
	}
	if err := s.RegisterWriter(3, Callback(func() {})); err != nil {
		t.Fatalf("register: %v", err)
	}
	mustEqual(t, s.UnregisterWriter(3), true)
	mustEqual(t, s.UnregisterWriter(3), false)
}
