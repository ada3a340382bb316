package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"planforge/internal/logging"
)

var (
	// Global flags
	workspaceDir string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "planforge",
	Short: "planforge - offline-first task orchestration engine",
	Long: `planforge turns natural-language build requests into dependency-ordered
task plans and executes them against the workspace with bounded parallelism.

Decomposition is rule-based and fully offline; a completion oracle
(configure one in .planforge/config.json) refines plans when available
but is never required. All side effects are confined to the workspace
and audit-logged under .planforge/logs/.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		abs, err := filepath.Abs(workspaceDir)
		if err != nil {
			return fmt.Errorf("failed to resolve workspace: %w", err)
		}
		workspaceDir = abs
		return logging.Initialize(workspaceDir)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspaceDir, "workspace", "w", ".", "Workspace directory")

	rootCmd.AddCommand(decomposeCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(noteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
