package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"planforge/internal/executor"
	"planforge/internal/similarity"
	"planforge/internal/workspace"
)

var (
	showFormat string
	runVerbose bool
)

// decomposeCmd turns a natural-language request into a queued plan
var decomposeCmd = &cobra.Command{
	Use:   "decompose [request]",
	Short: "Decompose a request into a dependency-ordered task plan",
	Long: `Breaks a natural-language request into subtasks with categories,
priorities and dependencies, then queues the plan for execution.

A stored plan for a near-identical request is reused instead of
creating a duplicate. Related plans are reported either way.

Example:
  planforge decompose "1. Create login page 2. Create login API 3. Test login"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(workspaceDir)
		if err != nil {
			return err
		}
		defer eng.Close()

		res, err := eng.manager.CreatePlan(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}

		if res.Reused {
			fmt.Printf("Reusing existing plan %s (request matches %q)\n\n", res.Plan.ID, truncate(res.Plan.OriginalRequest, 60))
		} else {
			fmt.Printf("Created plan %s with %d tasks\n\n", res.Plan.ID, res.Plan.TotalTasks)
		}
		printPlan(res.Plan)
		printRelated(res.Matches, res.Plan.ID)
		return nil
	},
}

// queueCmd lists all plans in queue order
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List all plans in queue order",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(workspaceDir)
		if err != nil {
			return err
		}
		defer eng.Close()

		list, err := eng.manager.ListQueue()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}

		fmt.Printf("%-14s %-4s %-10s %-8s %s\n", "ID", "PRI", "STATUS", "TASKS", "NAME")
		for _, meta := range list {
			fmt.Printf("%-14s %-4d %-10s %3d/%-4d %s\n",
				meta.ID, meta.Priority, meta.Status,
				meta.CompletedTasks, meta.TotalTasks, truncate(meta.Name, 50))
		}
		return nil
	},
}

// showCmd prints one plan in full
var showCmd = &cobra.Command{
	Use:   "show [plan-id]",
	Short: "Show a plan's tasks, dependencies and progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(workspaceDir)
		if err != nil {
			return err
		}
		defer eng.Close()

		p, err := eng.manager.GetPlan(args[0])
		if err != nil {
			return err
		}

		switch showFormat {
		case "text":
			prog, err := eng.manager.GetProgress(args[0])
			if err != nil {
				return err
			}
			printPlan(p)
			printProgress(prog)
			return nil
		case "json", "yaml":
			out, err := marshalPlan(p, showFormat)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		default:
			return fmt.Errorf("unknown format %q (want text, json or yaml)", showFormat)
		}
	},
}

// runCmd executes a plan (or the next queued plan) to completion
var runCmd = &cobra.Command{
	Use:   "run [plan-id]",
	Short: "Execute a plan with bounded parallelism",
	Long: `Runs a plan's tasks in dependency order, at most max_parallel at a
time. Execution resumes from persisted task statuses, so a paused or
interrupted plan continues where it left off.

Without a plan id, the highest-priority queued plan runs.

Ctrl-C pauses the plan gracefully: in-flight tasks finish, pending
tasks stay pending.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var sink func(executor.Event)
		if runVerbose {
			sink = func(ev executor.Event) {
				fmt.Printf("  [%s] %s: %s\n", ev.TaskID, ev.Stage, ev.Message)
			}
		}
		eng, err := openEngine(workspaceDir, executor.WithEventSink(sink))
		if err != nil {
			return err
		}
		defer eng.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Keep the workspace snapshot fresh while tasks create files.
		watcher, err := workspace.NewWatcher(eng.gatherer)
		if err == nil {
			if err := watcher.Start(ctx); err == nil {
				defer watcher.Stop()
			}
		}

		planID := ""
		if len(args) == 1 {
			planID = args[0]
			err = eng.manager.RunPlan(ctx, planID)
		} else {
			planID, err = eng.manager.RunNext(ctx)
			if planID == "" && err == nil {
				fmt.Println("Queue is empty.")
				return nil
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintf(os.Stderr, "\nRun interrupted; plan %s paused. `planforge resume %s` to requeue.\n", planID, planID)
				return nil
			}
			return err
		}

		prog, perr := eng.manager.GetProgress(planID)
		if perr != nil {
			return perr
		}
		printProgress(prog)
		return nil
	},
}

func printRelated(matches []similarity.Match, selfID string) {
	shown := false
	for _, match := range matches {
		if match.PlanID == selfID {
			continue
		}
		if !shown {
			fmt.Println("\nRelated plans:")
			shown = true
		}
		fmt.Printf("  %s (score %.2f, shared: %s)\n", match.PlanID, match.Score, strings.Join(match.Shared, ", "))
	}
}

func init() {
	showCmd.Flags().StringVar(&showFormat, "format", "text", "Output format: text, json or yaml")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Stream per-action progress events")
}
