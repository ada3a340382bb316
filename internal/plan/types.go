// Package plan defines the task dependency data model shared by the
// decomposer, scheduler, executor and plan manager: plans, subtasks,
// metadata views and the status/priority/category vocabularies.
package plan

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus represents the lifecycle state of a subtask.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"     // Not started
	TaskInProgress TaskStatus = "in_progress" // Currently executing
	TaskCompleted  TaskStatus = "completed"   // Finished successfully
	TaskBlocked    TaskStatus = "blocked"     // Blocked by a failed dependency
	TaskFailed     TaskStatus = "failed"      // Finished with error
	TaskSkipped    TaskStatus = "skipped"     // Intentionally not run
)

// IsTerminal reports whether the status is final. Terminal statuses are
// never left in normal operation.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// IsValidTaskStatus checks whether s names a known task status.
func IsValidTaskStatus(s string) bool {
	switch TaskStatus(s) {
	case TaskPending, TaskInProgress, TaskCompleted, TaskBlocked, TaskFailed, TaskSkipped:
		return true
	}
	return false
}

// TaskCategory buckets a subtask into a build phase.
type TaskCategory string

const (
	CategoryAnalysis      TaskCategory = "analysis"
	CategoryDesign        TaskCategory = "design"
	CategoryFrontend      TaskCategory = "frontend"
	CategoryBackend       TaskCategory = "backend"
	CategoryIntegration   TaskCategory = "integration"
	CategoryTesting       TaskCategory = "testing"
	CategoryAssets        TaskCategory = "assets"
	CategoryDocumentation TaskCategory = "documentation"
	CategoryGeneral       TaskCategory = "general"
)

// CategoryOrder is the fixed phase ordering used for dependency assignment:
// a task in category C depends on the most recently emitted task of each
// earlier category in this order. CategoryGeneral deliberately has no slot;
// general tasks join wherever extraction found them.
var CategoryOrder = []TaskCategory{
	CategoryAnalysis,
	CategoryDesign,
	CategoryBackend,
	CategoryFrontend,
	CategoryAssets,
	CategoryIntegration,
	CategoryTesting,
	CategoryDocumentation,
}

// CategoryRank returns the position of c in CategoryOrder, or -1 when the
// category does not participate in phase ordering (general).
func CategoryRank(c TaskCategory) int {
	for i, cat := range CategoryOrder {
		if cat == c {
			return i
		}
	}
	return -1
}

// TaskPriority represents task priority levels.
type TaskPriority string

const (
	PriorityCritical TaskPriority = "critical"
	PriorityHigh     TaskPriority = "high"
	PriorityMedium   TaskPriority = "medium"
	PriorityLow      TaskPriority = "low"
)

// Rank returns the scheduling ordinal: lower sorts first.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// SubTask is one unit of work inside a plan.
type SubTask struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Category    TaskCategory `json:"category"`
	Priority    TaskPriority `json:"priority"`
	Status      TaskStatus   `json:"status"`

	// Dependencies holds ids of tasks in the same plan that must reach
	// completed before this task becomes schedulable.
	Dependencies []string `json:"dependencies,omitempty"`

	// EstimatedComplexity is 1-5; higher runs earlier among equal
	// priorities to front-load risk.
	EstimatedComplexity int `json:"estimated_complexity"`

	// Result and Error are populated exactly once, on terminal transition.
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	// Declared side-effect targets, used for post-hoc verification.
	FilesToCreate []string `json:"files_to_create,omitempty"`
	FilesToModify []string `json:"files_to_modify,omitempty"`
}

// DependsOn reports whether the task lists id as a direct dependency.
func (t *SubTask) DependsOn(id string) bool {
	for _, dep := range t.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// TaskPlan is one decomposition of one request.
type TaskPlan struct {
	ID              string    `json:"id"`
	OriginalRequest string    `json:"original_request"`
	Summary         string    `json:"summary"`
	CreatedAt       time.Time `json:"created_at"`
	CurrentPhase    string    `json:"current_phase,omitempty"`
	Tasks           []SubTask `json:"tasks"`

	// Derived counters. CompletedTasks must always equal the number of
	// tasks with status completed; call Recount after any mutation.
	TotalTasks     int `json:"total_tasks"`
	CompletedTasks int `json:"completed_tasks"`
}

// Task returns a pointer to the task with the given id, or nil.
func (p *TaskPlan) Task(id string) *SubTask {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// Recount refreshes the derived TotalTasks/CompletedTasks counters.
func (p *TaskPlan) Recount() {
	p.TotalTasks = len(p.Tasks)
	completed := 0
	for i := range p.Tasks {
		if p.Tasks[i].Status == TaskCompleted {
			completed++
		}
	}
	p.CompletedTasks = completed
}

// CompletedIDs returns the set of completed task ids.
func (p *TaskPlan) CompletedIDs() map[string]bool {
	done := make(map[string]bool)
	for i := range p.Tasks {
		if p.Tasks[i].Status == TaskCompleted {
			done[p.Tasks[i].ID] = true
		}
	}
	return done
}

// IsComplete reports whether every task has reached a terminal status.
func (p *TaskPlan) IsComplete() bool {
	for i := range p.Tasks {
		if !p.Tasks[i].Status.IsTerminal() && p.Tasks[i].Status != TaskBlocked {
			return false
		}
	}
	return len(p.Tasks) > 0
}

// Validate checks structural invariants: every dependency id exists in the
// plan and the dependency graph is acyclic. Returns *DependencyCycleError
// when a cycle is found.
func (p *TaskPlan) Validate() error {
	ids := make(map[string]bool, len(p.Tasks))
	for i := range p.Tasks {
		if p.Tasks[i].ID == "" {
			return fmt.Errorf("plan %s: task %d has empty id", p.ID, i)
		}
		if ids[p.Tasks[i].ID] {
			return fmt.Errorf("plan %s: duplicate task id %s", p.ID, p.Tasks[i].ID)
		}
		ids[p.Tasks[i].ID] = true
	}
	for i := range p.Tasks {
		for _, dep := range p.Tasks[i].Dependencies {
			if !ids[dep] {
				return fmt.Errorf("plan %s: task %s depends on unknown task %s", p.ID, p.Tasks[i].ID, dep)
			}
		}
	}
	return p.checkAcyclic()
}

// checkAcyclic runs a Kahn topological sort over the dependency edges.
func (p *TaskPlan) checkAcyclic() error {
	indegree := make(map[string]int, len(p.Tasks))
	dependents := make(map[string][]string, len(p.Tasks))
	for i := range p.Tasks {
		indegree[p.Tasks[i].ID] = len(p.Tasks[i].Dependencies)
		for _, dep := range p.Tasks[i].Dependencies {
			dependents[dep] = append(dependents[dep], p.Tasks[i].ID)
		}
	}

	queue := make([]string, 0, len(p.Tasks))
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(p.Tasks) {
		cyclic := make([]string, 0)
		for id, deg := range indegree {
			if deg > 0 {
				cyclic = append(cyclic, id)
			}
		}
		return &DependencyCycleError{PlanID: p.ID, TaskIDs: cyclic}
	}
	return nil
}

// PlanStatus represents the queue-facing lifecycle of a plan.
type PlanStatus string

const (
	PlanActive    PlanStatus = "active"
	PlanQueued    PlanStatus = "queued"
	PlanPaused    PlanStatus = "paused"
	PlanCompleted PlanStatus = "completed"
	PlanArchived  PlanStatus = "archived"
)

// ValidPlanStatuses lists every accepted plan status value.
var ValidPlanStatuses = []PlanStatus{
	PlanActive, PlanQueued, PlanPaused, PlanCompleted, PlanArchived,
}

// IsValidPlanStatus checks whether s names a known plan status.
func IsValidPlanStatus(s string) bool {
	for _, status := range ValidPlanStatuses {
		if string(status) == s {
			return true
		}
	}
	return false
}

// PlanMetadata is the lightweight queue-facing view of a plan, stored in a
// secondary index so listing the queue never deserializes full plans.
type PlanMetadata struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Status         PlanStatus `json:"status"`
	Priority       int        `json:"priority"` // 1-10, 1 highest
	TotalTasks     int        `json:"total_tasks"`
	CompletedTasks int        `json:"completed_tasks"`
	UserNotes      string     `json:"user_notes,omitempty"`
	ParentPlanID   string     `json:"parent_plan_id,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// MetadataFor synthesizes queue metadata from a full plan, preserving
// queue-only fields (status, priority, notes, parent) from prev when given.
func MetadataFor(p *TaskPlan, prev *PlanMetadata) PlanMetadata {
	meta := PlanMetadata{
		ID:        p.ID,
		Name:      p.Summary,
		Status:    PlanQueued,
		Priority:  5,
		UpdatedAt: time.Now(),
	}
	if meta.Name == "" {
		meta.Name = truncate(p.OriginalRequest, 80)
	}
	if prev != nil {
		meta.Status = prev.Status
		meta.Priority = prev.Priority
		meta.UserNotes = prev.UserNotes
		meta.ParentPlanID = prev.ParentPlanID
	}
	p.Recount()
	meta.TotalTasks = p.TotalTasks
	meta.CompletedTasks = p.CompletedTasks
	return meta
}

// Progress is a display snapshot of one plan.
type Progress struct {
	PlanID         string         `json:"plan_id"`
	Name           string         `json:"name"`
	Status         PlanStatus     `json:"status"`
	CurrentPhase   string         `json:"current_phase,omitempty"`
	TotalTasks     int            `json:"total_tasks"`
	CompletedTasks int            `json:"completed_tasks"`
	Overall        float64        `json:"overall_progress"` // 0.0-1.0
	ByStatus       map[string]int `json:"by_status"`
}

// ProgressFor builds a Progress snapshot from a plan and its metadata.
func ProgressFor(p *TaskPlan, meta PlanMetadata) Progress {
	byStatus := make(map[string]int)
	for i := range p.Tasks {
		byStatus[string(p.Tasks[i].Status)]++
	}
	p.Recount()
	overall := 0.0
	if p.TotalTasks > 0 {
		overall = float64(p.CompletedTasks) / float64(p.TotalTasks)
	}
	return Progress{
		PlanID:         p.ID,
		Name:           meta.Name,
		Status:         meta.Status,
		CurrentPhase:   p.CurrentPhase,
		TotalTasks:     p.TotalTasks,
		CompletedTasks: p.CompletedTasks,
		Overall:        overall,
		ByStatus:       byStatus,
	}
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
