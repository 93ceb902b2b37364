package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pcrguild/pcrdb-collector/internal/config"
	"github.com/pcrguild/pcrdb-collector/internal/scheduler"
)

// serveCmd drives the scheduler continuously, the long-running counterpart
// to run's one-shot dispatch. Not part of the distilled CLI surface, but
// the schedule file (§4.7/§6) needs a process to actually tick it.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, dispatching tasks on their configured cron expressions",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(envFile)
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := config.LoadSchedule(a.cfg.Crawler.ScheduleFile)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}

	sched, err := scheduler.New(a.taskFuncs(), entries, a.log)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	return nil
}
