package job

import (
	"fmt"
	"time"

	"corosched/internal/coro"
	"corosched/internal/sched"
)

// SleepWork returns a routine that sleeps for the given duration on the loop
// clock and returns how long it actually slept.
func SleepWork(ms int64) coro.Routine {
	remaining := time.Duration(ms) * time.Millisecond
	return coro.Func(func(y *coro.Yielder) (any, error) {
		start, err := y.Sys(sched.Now())
		if err != nil {
			return nil, err
		}
		if _, err := y.Sys(sched.Sleep(remaining)); err != nil {
			return nil, err
		}
		end, err := y.Sys(sched.Now())
		if err != nil {
			return nil, err
		}
		return end.(time.Time).Sub(start.(time.Time)), nil
	})
}

// Counter returns a routine doing units of work, suspending after each one so
// other tasks get their turn. report receives "name:i" for every unit and the
// routine returns the number of units done.
func Counter(name string, units int, report func(string)) coro.Routine {
	return coro.Func(func(y *coro.Yielder) (any, error) {
		for i := 0; i < units; i++ {
			report(fmt.Sprintf("%s:%d", name, i))
			if _, err := y.Emit(i); err != nil {
				return i, err
			}
		}
		return units, nil
	})
}
