package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"corosched/internal/coro"
	"corosched/internal/job"
	"corosched/internal/offload"
	"corosched/internal/sched"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a demo workload and stream scheduler events",
	RunE:  runWorkload,
}

func init() {
	runCmd.Flags().Int("tasks", 3, "number of counting tasks")
	runCmd.Flags().Int("units", 3, "units of work per counting task")
	runCmd.Flags().Int64("sleep-ms", 100, "duration of the sleeping task")
	runCmd.Flags().Int64("timeout-ms", 50, "deadline of the timeout race (the raced task sleeps twice as long)")
	runCmd.Flags().Int("offload", 1, "number of blocking jobs run on worker goroutines")
	runCmd.Flags().String("csv", "", "also log events as CSV to this file")
	runCmd.Flags().String("trace", "", "also record events as a msgpack trace to this file")
}

func runWorkload(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	colorMode, _ := cmd.Root().PersistentFlags().GetString("color")
	tasks, _ := cmd.Flags().GetInt("tasks")
	units, _ := cmd.Flags().GetInt("units")
	sleepMS, _ := cmd.Flags().GetInt64("sleep-ms")
	timeoutMS, _ := cmd.Flags().GetInt64("timeout-ms")
	offloads, _ := cmd.Flags().GetInt("offload")
	csvPath, _ := cmd.Flags().GetString("csv")
	tracePath, _ := cmd.Flags().GetString("trace")

	// Read the configuration
	cfg, err := sched.LoadFile(configPath)
	if err != nil {
		return err
	}
	if csvPath != "" {
		cfg.CSVPath = csvPath
	}
	if tracePath != "" {
		cfg.TracePath = tracePath
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Loaded config: %+v\n", cfg)

	s := sched.New(cfg)
	s.AddSink(sched.NewConsoleSink(out, colorMode))
	if cfg.CSVPath != "" {
		if err := s.EnableCSVLogging(cfg.CSVPath); err != nil {
			return fmt.Errorf("csv log: %w", err)
		}
	}
	if cfg.TracePath != "" {
		if err := s.EnableTrace(cfg.TracePath); err != nil {
			return err
		}
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	pool := offload.New(ctx, 2, 5*time.Millisecond)
	s.AddExternal(pool)

	report := func(line string) { fmt.Fprintln(out, "  "+line) }
	for i := 0; i < tasks; i++ {
		s.Submit(job.Counter(fmt.Sprintf("counter-%d", i), units, report))
	}
	s.Submit(job.SleepWork(sleepMS))
	s.Submit(timeoutRace(timeoutMS, report))
	for i := 0; i < offloads; i++ {
		s.Submit(blockingJob(pool, i, time.Duration(sleepMS)*time.Millisecond, report))
	}

	runErr := s.Run(ctx)
	if err := pool.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// timeoutRace waits for a sleeper that outlives the deadline.
func timeoutRace(timeoutMS int64, report func(string)) coro.Routine {
	return coro.Func(func(y *coro.Yielder) (any, error) {
		deadline := time.Duration(timeoutMS) * time.Millisecond
		_, err := y.Sys(sched.WaitFor(job.SleepWork(2*timeoutMS), deadline))
		if errors.Is(err, sched.ErrTimeout) {
			report("race: " + err.Error())
			return "timed out", nil
		}
		return "finished", err
	})
}

func blockingJob(pool *offload.Pool, n int, d time.Duration, report func(string)) coro.Routine {
	return coro.Func(func(y *coro.Yielder) (any, error) {
		v, err := y.Sys(pool.Run(func(ctx context.Context) (any, error) {
			select {
			case <-time.After(d):
				return fmt.Sprintf("offload-%d done", n), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}))
		if err != nil {
			return nil, err
		}
		report(v.(string))
		return v, nil
	})
}
