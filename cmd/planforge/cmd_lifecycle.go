package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause [plan-id]",
	Short: "Pause a plan; in-flight tasks finish, nothing new dispatches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(workspaceDir)
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.manager.Pause(args[0]); err != nil {
			return err
		}
		fmt.Printf("Paused %s\n", args[0])
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [plan-id]",
	Short: "Requeue a paused plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(workspaceDir)
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.manager.Resume(args[0]); err != nil {
			return err
		}
		fmt.Printf("Requeued %s; `planforge run %s` to continue\n", args[0], args[0])
		return nil
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive [plan-id]",
	Short: "Archive a plan; archived plans never run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(workspaceDir)
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.manager.Archive(args[0]); err != nil {
			return err
		}
		fmt.Printf("Archived %s\n", args[0])
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [plan-id]",
	Short: "Delete a plan permanently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(workspaceDir)
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.manager.DeletePlan(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var noteCmd = &cobra.Command{
	Use:   "note [plan-id] [text]",
	Short: "Append a timestamped note to a plan",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(workspaceDir)
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.manager.AddNote(args[0], strings.Join(args[1:], " ")); err != nil {
			return err
		}
		fmt.Printf("Noted on %s\n", args[0])
		return nil
	},
}
