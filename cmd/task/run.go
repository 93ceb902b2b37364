package main

import (
	"fmt"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pcrguild/pcrdb-collector/internal/metrics"
)

var runArgs []string

var runCmd = &cobra.Command{
	Use:   "run <task-name>",
	Short: "Run one registered task immediately",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringArrayVar(&runArgs, "args", nil, "task parameter as key=value, repeatable")
	rootCmd.AddCommand(runCmd)
}

// parseArgs turns a list of "key=value" flags into the loosely-typed params
// map the Python originals passed as **kwargs: a value that parses as an
// int64 becomes one, everything else stays a string.
func parseArgs(raw []string) (map[string]any, error) {
	params := make(map[string]any, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --args %q, want key=value", kv)
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			params[k] = n
		} else {
			params[k] = v
		}
	}
	return params, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	name := args[0]

	a, err := newApp(envFile)
	if err != nil {
		return err
	}
	defer a.close()

	tasks := a.taskFuncs()
	fn, ok := tasks[name]
	if !ok {
		names := make([]string, 0, len(tasks))
		for n := range tasks {
			names = append(names, n)
		}
		sort.Strings(names)
		return fmt.Errorf("unknown task %q, known tasks: %s", name, strings.Join(names, ", "))
	}

	params, err := parseArgs(runArgs)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, runErr := fn(ctx, params); runErr != nil {
		metrics.TaskRuns.WithLabelValues(name, "failed").Inc()
		return fmt.Errorf("task %s failed: %w", name, runErr)
	}

	metrics.TaskRuns.WithLabelValues(name, "success").Inc()
	a.log.Infof("task %s completed", name)
	return nil
}
