package plan

import (
	"sort"

	"planforge/internal/logging"
)

// NextReady computes the subset of tasks that can be dispatched right now:
// pending tasks whose dependencies are all completed, ordered by priority
// then descending complexity, capped at maxParallel minus the number of
// tasks already in progress.
//
// NextReady never mutates the plan. Callers must transition a returned task
// to in_progress (and persist that transition) before executing it, so two
// schedulers cannot double-dispatch the same task.
//
// When the plan is incomplete but nothing is ready and nothing is running,
// NextReady returns a *PlanDeadlockError.
func NextReady(p *TaskPlan, maxParallel int) ([]*SubTask, error) {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}

	done := p.CompletedIDs()
	inProgress := 0
	ready := make([]*SubTask, 0)

	for i := range p.Tasks {
		t := &p.Tasks[i]
		switch t.Status {
		case TaskInProgress:
			inProgress++
		case TaskPending:
			if depsSatisfied(t, done) {
				ready = append(ready, t)
			}
		}
	}

	if len(ready) == 0 && inProgress == 0 && !p.IsComplete() {
		remaining := 0
		for i := range p.Tasks {
			if !p.Tasks[i].Status.IsTerminal() {
				remaining++
			}
		}
		if remaining > 0 {
			logging.ScheduleWarn("plan %s deadlocked with %d remaining tasks", p.ID, remaining)
			return nil, &PlanDeadlockError{PlanID: p.ID, Remaining: remaining}
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		ri, rj := ready[i].Priority.Rank(), ready[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		// Higher complexity first, to front-load risk.
		return ready[i].EstimatedComplexity > ready[j].EstimatedComplexity
	})

	slots := maxParallel - inProgress
	if slots < 0 {
		slots = 0
	}
	if len(ready) > slots {
		ready = ready[:slots]
	}

	logging.ScheduleDebug("plan %s: %d ready, %d in progress, %d slots", p.ID, len(ready), inProgress, slots)
	return ready, nil
}

// DefaultMaxParallel is the per-plan worker pool size when none is configured.
const DefaultMaxParallel = 3

func depsSatisfied(t *SubTask, done map[string]bool) bool {
	for _, dep := range t.Dependencies {
		if !done[dep] {
			return false
		}
	}
	return true
}

// MarkBlockedDependents walks the plan and flips to blocked every pending
// task that transitively depends on a failed or skipped task. Failed tasks
// are never retried automatically; their dependents are reported as blocked
// rather than left pending forever.
func MarkBlockedDependents(p *TaskPlan) []string {
	dead := make(map[string]bool)
	for i := range p.Tasks {
		if p.Tasks[i].Status == TaskFailed || p.Tasks[i].Status == TaskSkipped {
			dead[p.Tasks[i].ID] = true
		}
	}
	if len(dead) == 0 {
		return nil
	}

	blocked := make([]string, 0)
	// Propagate until fixpoint: a task blocked this round blocks its own
	// dependents next round.
	for changed := true; changed; {
		changed = false
		for i := range p.Tasks {
			t := &p.Tasks[i]
			if t.Status != TaskPending {
				continue
			}
			for _, dep := range t.Dependencies {
				if dead[dep] {
					t.Status = TaskBlocked
					dead[t.ID] = true
					blocked = append(blocked, t.ID)
					changed = true
					break
				}
			}
		}
	}

	if len(blocked) > 0 {
		logging.Schedule("plan %s: %d tasks blocked by failed dependencies", p.ID, len(blocked))
	}
	return blocked
}
