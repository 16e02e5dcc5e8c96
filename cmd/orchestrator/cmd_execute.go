package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignite/outreach-orchestrator/internal/worker"
)

var executeAll bool

var executeCmd = &cobra.Command{
	Use:   "execute [campaign-id]",
	Short: "Run one campaign, or every runnable campaign with --all",
	Long: `Runs campaign executions in the foreground and prints the results as JSON.

A run holds the campaign lock until the campaign pauses, aborts or runs out
of leads. If another worker holds the lock the result is LOCKED.

Examples:
  orchestrator execute 3f0c2a1e-...
  orchestrator execute --all`,
	Args: func(cmd *cobra.Command, args []string) error {
		if executeAll && len(args) > 0 {
			return fmt.Errorf("--all does not take a campaign id")
		}
		if !executeAll && len(args) != 1 {
			return fmt.Errorf("expected exactly one campaign id")
		}
		return nil
	},
	RunE: runExecute,
}

func init() {
	executeCmd.Flags().BoolVar(&executeAll, "all", false, "Execute every RUNNING and QUEUED campaign in turn")
}

func runExecute(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.runner(ctx)
	if err != nil {
		return err
	}

	var results []worker.ExecutionResult
	if executeAll {
		results, err = runner.ExecuteRunnable(ctx)
	} else {
		results = []worker.ExecutionResult{runner.Execute(ctx, args[0])}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(results); encErr != nil {
		return encErr
	}
	if err != nil {
		return err
	}
	return failedRuns(results)
}

// failedRuns reports an error when any run ended in ERROR so the exit code
// reflects it. LOCKED is not a failure.
func failedRuns(results []worker.ExecutionResult) error {
	failed := 0
	for _, r := range results {
		if r.Status == worker.RunError {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d executions failed", failed, len(results))
	}
	return nil
}
