// Package manager owns the plan lifecycle: creation with reuse detection,
// queue ordering, task-level edits, plan splitting, and the dispatch loop
// that drives execution. All mutations are write-through to the store.
package manager

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"planforge/internal/decomposer"
	"planforge/internal/executor"
	"planforge/internal/logging"
	"planforge/internal/plan"
	"planforge/internal/similarity"
	"planforge/internal/store"
)

// Manager coordinates plans between the store, decomposer and executor.
type Manager struct {
	store       *store.PlanStore
	decomposer  *decomposer.Decomposer
	executor    *executor.Executor
	maxParallel int

	mu      sync.Mutex
	paused  map[string]bool
	running map[string]context.CancelFunc
}

// New creates a manager. maxParallel <= 0 falls back to the scheduler
// default.
func New(st *store.PlanStore, dec *decomposer.Decomposer, exec *executor.Executor, maxParallel int) *Manager {
	if maxParallel <= 0 {
		maxParallel = plan.DefaultMaxParallel
	}
	return &Manager{
		store:       st,
		decomposer:  dec,
		executor:    exec,
		maxParallel: maxParallel,
		paused:      make(map[string]bool),
		running:     make(map[string]context.CancelFunc),
	}
}

// CreateResult reports plan creation, including the reuse decision.
type CreateResult struct {
	Plan    *plan.TaskPlan
	Reused  bool
	Matches []similarity.Match
}

// CreatePlan decomposes a request into a new queued plan. When a stored plan
// scores above the reuse threshold the stored plan is returned instead and
// no decomposition runs. Related (sub-threshold) matches are reported either
// way.
func (m *Manager) CreatePlan(ctx context.Context, request string) (*CreateResult, error) {
	summaries, err := m.store.ListSummaries()
	if err != nil {
		return nil, err
	}
	candidates := make([]similarity.Candidate, 0, len(summaries))
	for _, s := range summaries {
		candidates = append(candidates, similarity.Candidate{PlanID: s.ID, Request: s.OriginalRequest})
	}
	matches := similarity.Rank(request, candidates)

	if len(matches) > 0 && matches[0].Relation == similarity.RelationReuse {
		existing, err := m.store.LoadPlan(matches[0].PlanID)
		if err != nil {
			return nil, err
		}
		logging.Plan("reusing plan %s for request %q (score %.2f)", existing.ID, truncate(request, 60), matches[0].Score)
		return &CreateResult{Plan: existing, Reused: true, Matches: matches}, nil
	}

	p, err := m.decomposer.Decompose(ctx, request)
	if err != nil {
		return nil, err
	}
	if err := m.store.SavePlan(p, plan.MetadataFor(p, nil)); err != nil {
		return nil, err
	}
	logging.Plan("created plan %s with %d tasks", p.ID, p.TotalTasks)
	return &CreateResult{Plan: p, Matches: matches}, nil
}

// GetPlan loads a plan by id.
func (m *Manager) GetPlan(id string) (*plan.TaskPlan, error) {
	return m.store.LoadPlan(id)
}

// GetProgress builds a progress snapshot for one plan.
func (m *Manager) GetProgress(id string) (*plan.Progress, error) {
	p, err := m.store.LoadPlan(id)
	if err != nil {
		return nil, err
	}
	meta, err := m.store.LoadMetadata(id)
	if err != nil {
		return nil, err
	}
	prog := plan.ProgressFor(p, *meta)
	return &prog, nil
}

// ListQueue returns all plan metadata in queue order.
func (m *Manager) ListQueue() ([]plan.PlanMetadata, error) {
	return m.store.ListMetadata()
}

// SetStatus transitions a plan's queue status.
func (m *Manager) SetStatus(id string, status plan.PlanStatus) error {
	if !plan.IsValidPlanStatus(string(status)) {
		return fmt.Errorf("invalid plan status %q", status)
	}
	meta, err := m.store.LoadMetadata(id)
	if err != nil {
		return err
	}
	meta.Status = status
	if err := m.store.SaveMetadata(*meta); err != nil {
		return err
	}
	logging.Queue("plan %s status -> %s", id, status)
	return nil
}

// SetPriority updates queue priority (1 highest, 10 lowest).
func (m *Manager) SetPriority(id string, priority int) error {
	if priority < 1 || priority > 10 {
		return fmt.Errorf("priority must be 1-10, got %d", priority)
	}
	meta, err := m.store.LoadMetadata(id)
	if err != nil {
		return err
	}
	meta.Priority = priority
	return m.store.SaveMetadata(*meta)
}

// AddNote appends a user note to the plan's metadata.
func (m *Manager) AddNote(id, note string) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return fmt.Errorf("empty note")
	}
	meta, err := m.store.LoadMetadata(id)
	if err != nil {
		return err
	}
	if meta.UserNotes != "" {
		meta.UserNotes += "\n"
	}
	meta.UserNotes += fmt.Sprintf("[%s] %s", time.Now().Format("2006-01-02 15:04"), note)
	return m.store.SaveMetadata(*meta)
}

// Pause stops dispatching new tasks for the plan. In-flight tasks finish.
func (m *Manager) Pause(id string) error {
	m.mu.Lock()
	m.paused[id] = true
	m.mu.Unlock()
	return m.SetStatus(id, plan.PlanPaused)
}

// Resume re-queues a paused plan.
func (m *Manager) Resume(id string) error {
	m.mu.Lock()
	delete(m.paused, id)
	m.mu.Unlock()
	return m.SetStatus(id, plan.PlanQueued)
}

// Archive marks a plan archived; archived plans never run.
func (m *Manager) Archive(id string) error {
	return m.SetStatus(id, plan.PlanArchived)
}

// DeletePlan removes a plan permanently.
func (m *Manager) DeletePlan(id string) error {
	m.mu.Lock()
	if cancel, ok := m.running[id]; ok {
		cancel()
	}
	m.mu.Unlock()
	return m.store.DeletePlan(id)
}

// isPaused reports the runtime pause flag.
func (m *Manager) isPaused(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused[id]
}

// AddTask appends a task to the plan. The task gets the next free id;
// declared dependencies must already exist.
func (m *Manager) AddTask(planID string, t plan.SubTask) (*plan.SubTask, error) {
	p, meta, err := m.loadBoth(planID)
	if err != nil {
		return nil, err
	}

	t.ID = nextTaskID(p)
	t.Status = plan.TaskPending
	if t.Priority == "" {
		t.Priority = plan.PriorityMedium
	}
	if t.Category == "" {
		t.Category = decomposer.Categorize(t.Title)
	}
	p.Tasks = append(p.Tasks, t)

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := m.store.SavePlan(p, *meta); err != nil {
		return nil, err
	}
	logging.Plan("plan %s: added task %s (%s)", planID, t.ID, t.Title)
	return p.Task(t.ID), nil
}

// RemoveTask deletes a task and strips it from every dependency list.
func (m *Manager) RemoveTask(planID, taskID string) error {
	p, meta, err := m.loadBoth(planID)
	if err != nil {
		return err
	}
	if p.Task(taskID) == nil {
		return fmt.Errorf("plan %s has no task %s", planID, taskID)
	}

	kept := p.Tasks[:0]
	for _, t := range p.Tasks {
		if t.ID == taskID {
			continue
		}
		deps := t.Dependencies[:0]
		for _, dep := range t.Dependencies {
			if dep != taskID {
				deps = append(deps, dep)
			}
		}
		t.Dependencies = deps
		kept = append(kept, t)
	}
	p.Tasks = kept

	if err := m.store.SavePlan(p, *meta); err != nil {
		return err
	}
	logging.Plan("plan %s: removed task %s", planID, taskID)
	return nil
}

// TaskUpdate carries the editable task fields. Nil pointers leave the field
// untouched; ids and dependency lists are never editable this way. Status is
// editable so a task can be marked skipped by hand, but the value must be a
// known status.
type TaskUpdate struct {
	Title               *string
	Description         *string
	Category            *plan.TaskCategory
	Priority            *plan.TaskPriority
	Status              *plan.TaskStatus
	EstimatedComplexity *int
}

// UpdateTask applies a whitelisted edit to one task.
func (m *Manager) UpdateTask(planID, taskID string, upd TaskUpdate) error {
	p, meta, err := m.loadBoth(planID)
	if err != nil {
		return err
	}
	t := p.Task(taskID)
	if t == nil {
		return fmt.Errorf("plan %s has no task %s", planID, taskID)
	}

	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Category != nil {
		t.Category = *upd.Category
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
	}
	if upd.Status != nil {
		if !plan.IsValidTaskStatus(string(*upd.Status)) {
			return fmt.Errorf("invalid task status %q", *upd.Status)
		}
		t.Status = *upd.Status
	}
	if upd.EstimatedComplexity != nil {
		c := *upd.EstimatedComplexity
		if c < 1 || c > 5 {
			return fmt.Errorf("estimated complexity must be 1-5, got %d", c)
		}
		t.EstimatedComplexity = c
	}

	return m.store.SavePlan(p, *meta)
}

// Split moves the tasks from taskID onward into a new child plan. The split
// point must not be the first task. Dependencies crossing the boundary are
// dropped: the child starts from a clean slate, ordered by what remains.
func (m *Manager) Split(planID, taskID string) (*plan.TaskPlan, error) {
	p, meta, err := m.loadBoth(planID)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i := range p.Tasks {
		if p.Tasks[i].ID == taskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("plan %s has no task %s", planID, taskID)
	}
	if idx == 0 {
		return nil, fmt.Errorf("cannot split at the first task; the child would be the whole plan")
	}

	suffix := make([]plan.SubTask, len(p.Tasks[idx:]))
	copy(suffix, p.Tasks[idx:])

	// Remap child task ids and keep only intra-child dependencies.
	idMap := make(map[string]string, len(suffix))
	for i := range suffix {
		newID := fmt.Sprintf("task_%d", i+1)
		idMap[suffix[i].ID] = newID
		suffix[i].ID = newID
	}
	for i := range suffix {
		deps := make([]string, 0, len(suffix[i].Dependencies))
		for _, dep := range suffix[i].Dependencies {
			if mapped, ok := idMap[dep]; ok {
				deps = append(deps, mapped)
			}
		}
		if len(deps) == 0 {
			suffix[i].Dependencies = nil
		} else {
			suffix[i].Dependencies = deps
		}
	}

	child := &plan.TaskPlan{
		ID:              fmt.Sprintf("plan_%s", uuid.New().String()[:8]),
		OriginalRequest: p.OriginalRequest,
		Summary:         fmt.Sprintf("%s (continued)", p.Summary),
		CreatedAt:       time.Now(),
		Tasks:           suffix,
	}
	if err := child.Validate(); err != nil {
		return nil, err
	}

	childMeta := plan.MetadataFor(child, nil)
	childMeta.Priority = meta.Priority
	childMeta.ParentPlanID = p.ID

	// Parent keeps the prefix.
	p.Tasks = p.Tasks[:idx]

	if err := m.store.SavePlan(child, childMeta); err != nil {
		return nil, err
	}
	if err := m.store.SavePlan(p, *meta); err != nil {
		return nil, err
	}
	logging.Plan("split plan %s at %s into %s (%d tasks moved)", planID, taskID, child.ID, len(suffix))
	return child, nil
}

// NextFromQueue returns the plan that should run now: the active plan if one
// exists, otherwise the highest-priority queued plan, promoted to active.
func (m *Manager) NextFromQueue() (*plan.PlanMetadata, error) {
	list, err := m.store.ListMetadata()
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Status == plan.PlanActive {
			return &list[i], nil
		}
	}
	for i := range list {
		if list[i].Status == plan.PlanQueued {
			list[i].Status = plan.PlanActive
			if err := m.store.SaveMetadata(list[i]); err != nil {
				return nil, err
			}
			logging.Queue("promoted plan %s to active", list[i].ID)
			return &list[i], nil
		}
	}
	return nil, nil
}

func (m *Manager) loadBoth(planID string) (*plan.TaskPlan, *plan.PlanMetadata, error) {
	p, err := m.store.LoadPlan(planID)
	if err != nil {
		return nil, nil, err
	}
	meta, err := m.store.LoadMetadata(planID)
	if err != nil {
		return nil, nil, err
	}
	return p, meta, nil
}

func nextTaskID(p *plan.TaskPlan) string {
	for n := len(p.Tasks) + 1; ; n++ {
		id := fmt.Sprintf("task_%d", n)
		if p.Task(id) == nil {
			return id
		}
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
