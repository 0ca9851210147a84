package sched

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"corosched/internal/coro"
)

func mustEqual(t *testing.T, actual, expect interface{}) {
	t.Helper()
	if !reflect.DeepEqual(actual, expect) {
		t.Fatalf("%+v != %+v", actual, expect)
	}
}

func virtualConfig() Config {
	cfg := DefaultConfig()
	cfg.Clock = ClockVirtual
	return cfg
}

func mustRun(t *testing.T, s *Scheduler) {
	t.Helper()
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
}

// counter logs "name:i" for each unit and suspends after it.
func counter(name string, units int, log *[]string) coro.Routine {
	return coro.Func(func(y *coro.Yielder) (any, error) {
		for i := 0; i < units; i++ {
			*log = append(*log, fmt.Sprintf("%s:%d", name, i))
			if _, err := y.Emit(i); err != nil {
				return nil, err
			}
		}
		return units, nil
	})
}

// collect records every event the scheduler emits.
func collect(s *Scheduler) *[]StatusEvent {
	var events []StatusEvent
	s.AddSink(EventFunc(func(ev StatusEvent) { events = append(events, ev) }))
	return &events
}

func kinds(events []StatusEvent, kind StatusKind) []StatusEvent {
	var out []StatusEvent
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
