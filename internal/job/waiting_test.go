package job

import (
	"context"
	"testing"
	"time"

	"corosched/internal/sched"
)

func virtualScheduler() *sched.Scheduler {
	cfg := sched.DefaultConfig()
	cfg.Clock = sched.ClockVirtual
	return sched.New(cfg)
}

func TestSleepWorkReportsElapsed(t *testing.T) {
	s := virtualScheduler()
	id := s.Submit(SleepWork(250))
	task, _ := s.Task(id)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	result, err := task.Result()
	if err != nil {
		t.Fatalf("sleep work: %v", err)
	}
	if result != 250*time.Millisecond {
		t.Fatalf("elapsed = %v", result)
	}
}

func TestCountersInterleave(t *testing.T) {
	s := virtualScheduler()
	var got []string
	report := func(s string) { got = append(got, s) }
	a := s.Submit(Counter("a", 2, report))
	s.Submit(Counter("b", 2, report))
	task, _ := s.Task(a)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{"a:0", "b:0", "a:1", "b:1"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if result, _ := task.Result(); result != 2 {
		t.Fatalf("result = %v", result)
	}
}
