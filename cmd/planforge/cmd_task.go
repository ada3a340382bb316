package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"planforge/internal/executor"
	"planforge/internal/manager"
	"planforge/internal/plan"
)

var (
	taskDescription string
	taskCategory    string
	taskPriority    string
	taskComplexity  int
)

// taskCmd groups task-level edits
var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Add, remove or edit tasks inside a plan",
}

var taskAddCmd = &cobra.Command{
	Use:   "add [plan-id] [title]",
	Short: "Append a task to a plan",
	Long: `Appends a task with the next free id. Category is inferred from the
title unless --category is given.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(workspaceDir)
		if err != nil {
			return err
		}
		defer eng.Close()

		t := plan.SubTask{
			Title:       strings.Join(args[1:], " "),
			Description: taskDescription,
			Category:    plan.TaskCategory(taskCategory),
			Priority:    plan.TaskPriority(taskPriority),
		}
		added, err := eng.manager.AddTask(args[0], t)
		if err != nil {
			return err
		}
		fmt.Printf("Added %s to %s: %s [%s/%s]\n", added.ID, args[0], added.Title, added.Category, added.Priority)
		return nil
	},
}

var taskRemoveCmd = &cobra.Command{
	Use:   "remove [plan-id] [task-id]",
	Short: "Remove a task and strip it from dependency lists",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(workspaceDir)
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.manager.RemoveTask(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Removed %s from %s\n", args[1], args[0])
		return nil
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update [plan-id] [task-id]",
	Short: "Edit a task's title, description, category, priority, status or complexity",
	Long: `Edits the listed fields in place. Task ids and dependency lists are
managed by the engine and cannot be set here. Setting --status skipped
excludes the task from scheduling without removing it.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(workspaceDir)
		if err != nil {
			return err
		}
		defer eng.Close()

		var upd manager.TaskUpdate
		flags := cmd.Flags()
		if flags.Changed("title") {
			v, _ := flags.GetString("title")
			upd.Title = &v
		}
		if flags.Changed("description") {
			upd.Description = &taskDescription
		}
		if flags.Changed("category") {
			v := plan.TaskCategory(taskCategory)
			upd.Category = &v
		}
		if flags.Changed("priority") {
			v := plan.TaskPriority(taskPriority)
			upd.Priority = &v
		}
		if flags.Changed("status") {
			v, _ := flags.GetString("status")
			s := plan.TaskStatus(v)
			upd.Status = &s
		}
		if flags.Changed("complexity") {
			upd.EstimatedComplexity = &taskComplexity
		}

		if err := eng.manager.UpdateTask(args[0], args[1], upd); err != nil {
			return err
		}
		fmt.Printf("Updated %s in %s\n", args[1], args[0])
		return nil
	},
}

var taskRunCmd = &cobra.Command{
	Use:   "run [plan-id] [task-id]",
	Short: "Execute a single task immediately",
	Long: `Runs one task outside queue order, streaming its progress events.
Useful for retrying a failed task or forcing one through ahead of its
siblings. Dependency order is not enforced here.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sink := func(ev executor.Event) {
			fmt.Printf("  [%s] %s: %s\n", ev.TaskID, ev.Stage, ev.Message)
		}
		eng, err := openEngine(workspaceDir, executor.WithEventSink(sink))
		if err != nil {
			return err
		}
		defer eng.Close()

		t, err := eng.manager.RunTask(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Task %s: %s\n", t.ID, t.Status)
		if t.Error != "" {
			fmt.Printf("  %s\n", t.Error)
		}
		return nil
	},
}

// splitCmd moves a plan's tail into a child plan
var splitCmd = &cobra.Command{
	Use:   "split [plan-id] [task-id]",
	Short: "Split a plan into parent and child at the given task",
	Long: `Moves the tasks from task-id onward into a new child plan that
inherits the parent's priority and records its origin. The split point
cannot be the first task.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(workspaceDir)
		if err != nil {
			return err
		}
		defer eng.Close()

		child, err := eng.manager.Split(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Split %s: %d tasks moved to child plan %s\n\n", args[0], child.TotalTasks, child.ID)
		printPlan(child)
		return nil
	},
}

func init() {
	taskAddCmd.Flags().StringVar(&taskDescription, "description", "", "Task description")
	taskAddCmd.Flags().StringVar(&taskCategory, "category", "", "Task category (inferred from title when empty)")
	taskAddCmd.Flags().StringVar(&taskPriority, "priority", "", "Task priority: critical, high, medium or low")

	taskUpdateCmd.Flags().String("title", "", "New title")
	taskUpdateCmd.Flags().StringVar(&taskDescription, "description", "", "New description")
	taskUpdateCmd.Flags().StringVar(&taskCategory, "category", "", "New category")
	taskUpdateCmd.Flags().StringVar(&taskPriority, "priority", "", "New priority")
	taskUpdateCmd.Flags().String("status", "", "New status (e.g. skipped)")
	taskUpdateCmd.Flags().IntVar(&taskComplexity, "complexity", 0, "New estimated complexity (1-5)")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskRemoveCmd)
	taskCmd.AddCommand(taskUpdateCmd)
	taskCmd.AddCommand(taskRunCmd)
}
