package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"planforge/internal/plan"
)

func printPlan(p *plan.TaskPlan) {
	fmt.Printf("Plan %s\n", p.ID)
	if p.Summary != "" {
		fmt.Printf("  %s\n", p.Summary)
	}
	fmt.Printf("  Request: %s\n\n", truncate(p.OriginalRequest, 70))

	for _, t := range p.Tasks {
		fmt.Printf("  %s %-8s [%-13s/%-8s] %s\n",
			statusGlyph(t.Status), t.ID, t.Category, t.Priority, t.Title)
		if len(t.Dependencies) > 0 {
			fmt.Printf("      depends on: %s\n", strings.Join(t.Dependencies, ", "))
		}
		if t.Error != "" {
			fmt.Printf("      error: %s\n", t.Error)
		}
	}
}

func printProgress(prog *plan.Progress) {
	fmt.Printf("\nPlan %s: %s (%d/%d tasks", prog.PlanID, prog.Status, prog.CompletedTasks, prog.TotalTasks)
	if prog.CurrentPhase != "" {
		fmt.Printf(", phase %s", prog.CurrentPhase)
	}
	fmt.Printf(", %.0f%%)\n", prog.Overall*100)

	for status, n := range prog.ByStatus {
		if status != string(plan.TaskCompleted) && n > 0 {
			fmt.Printf("  %s: %d\n", status, n)
		}
	}
}

func statusGlyph(s plan.TaskStatus) string {
	switch s {
	case plan.TaskCompleted:
		return "✓"
	case plan.TaskFailed:
		return "✗"
	case plan.TaskInProgress:
		return "▸"
	case plan.TaskBlocked:
		return "⊘"
	case plan.TaskSkipped:
		return "-"
	default:
		return "·"
	}
}

// marshalPlan renders a plan as json or yaml. YAML goes through the JSON
// field names so both formats agree on keys.
func marshalPlan(p *plan.TaskPlan, format string) ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, err
	}
	if format == "json" {
		return append(data, '\n'), nil
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
