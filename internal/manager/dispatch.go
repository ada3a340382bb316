package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"planforge/internal/logging"
	"planforge/internal/plan"
)

// repollInterval is how often the dispatch loop re-evaluates readiness when
// nothing new can be dispatched.
const repollInterval = 200 * time.Millisecond

// RunPlan executes a plan to completion with bounded parallelism. Task
// transitions are persisted write-through: a task is saved as in_progress
// before its goroutine starts and saved again on its terminal transition, so
// a crash never loses more than the in-flight work.
//
// Cancellation is graceful: in-flight tasks finish, pending tasks stay
// pending, and the plan is saved as paused.
func (m *Manager) RunPlan(ctx context.Context, planID string) error {
	if m.executor == nil {
		return fmt.Errorf("no executor configured")
	}

	m.mu.Lock()
	if _, already := m.running[planID]; already {
		m.mu.Unlock()
		return fmt.Errorf("plan %s is already running", planID)
	}
	ctx, cancel := context.WithCancel(ctx)
	m.running[planID] = cancel
	m.mu.Unlock()

	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.running, planID)
		m.mu.Unlock()
	}()

	p, meta, err := m.loadBoth(planID)
	if err != nil {
		return err
	}
	meta.Status = plan.PlanActive
	if err := m.store.SavePlan(p, *meta); err != nil {
		return err
	}
	logging.Schedule("running plan %s (%d tasks, maxParallel=%d)", planID, p.TotalTasks, m.maxParallel)

	// In-flight tasks run on copies; results flow back through done and are
	// merged under the loop's single writer.
	done := make(chan plan.SubTask, m.maxParallel)
	inFlight := 0

	var workers errgroup.Group
	workers.SetLimit(m.maxParallel)
	defer workers.Wait()

	// Execution survives run cancellation so in-flight tasks can finish.
	execCtx := context.WithoutCancel(ctx)

	drain := func(block bool) error {
	loop:
		for inFlight > 0 {
			if block {
				finished := <-done
				inFlight--
				m.mergeResult(p, finished)
				continue
			}
			select {
			case finished := <-done:
				inFlight--
				m.mergeResult(p, finished)
			default:
				break loop
			}
		}
		plan.MarkBlockedDependents(p)
		return m.store.SavePlan(p, *meta)
	}

	for {
		select {
		case <-ctx.Done():
			logging.Schedule("plan %s: run cancelled, letting %d in-flight tasks finish", planID, inFlight)
			if err := drain(true); err != nil {
				return err
			}
			meta.Status = plan.PlanPaused
			if err := m.store.SavePlan(p, *meta); err != nil {
				return err
			}
			return ctx.Err()
		default:
		}

		if err := drain(false); err != nil {
			return err
		}

		if m.isPaused(planID) {
			if inFlight > 0 {
				time.Sleep(repollInterval)
				continue
			}
			meta.Status = plan.PlanPaused
			if err := m.store.SavePlan(p, *meta); err != nil {
				return err
			}
			logging.Schedule("plan %s paused", planID)
			return nil
		}

		if p.IsComplete() {
			failed, blocked := 0, 0
			for i := range p.Tasks {
				switch p.Tasks[i].Status {
				case plan.TaskFailed:
					failed++
				case plan.TaskBlocked:
					blocked++
				}
			}
			// A run that ends with failed or blocked tasks must not read as
			// a completed plan; it pauses and waits for intervention.
			if failed > 0 || blocked > 0 {
				meta.Status = plan.PlanPaused
				if err := m.store.SavePlan(p, *meta); err != nil {
					return err
				}
				logging.ScheduleWarn("plan %s finished with %d failed and %d blocked tasks; paused for intervention", planID, failed, blocked)
				return nil
			}
			meta.Status = plan.PlanCompleted
			if err := m.store.SavePlan(p, *meta); err != nil {
				return err
			}
			logging.Schedule("plan %s completed (%d/%d tasks)", planID, p.CompletedTasks, p.TotalTasks)
			return nil
		}

		ready, err := plan.NextReady(p, m.maxParallel)
		if err != nil {
			var deadlock *plan.PlanDeadlockError
			if errors.As(err, &deadlock) {
				meta.Status = plan.PlanPaused
				if saveErr := m.store.SavePlan(p, *meta); saveErr != nil {
					return saveErr
				}
			}
			return err
		}

		if len(ready) == 0 {
			time.Sleep(repollInterval)
			continue
		}

		for _, t := range ready {
			t.Status = plan.TaskInProgress
			p.CurrentPhase = string(t.Category)
		}
		if err := m.store.SavePlan(p, *meta); err != nil {
			return err
		}

		for _, t := range ready {
			task := *t // worker owns the copy
			inFlight++
			workers.Go(func() error {
				m.executor.Execute(execCtx, &task)
				done <- task
				return nil
			})
		}
	}
}

// mergeResult copies an executed task's terminal fields back into the plan.
func (m *Manager) mergeResult(p *plan.TaskPlan, finished plan.SubTask) {
	t := p.Task(finished.ID)
	if t == nil {
		return
	}
	t.Status = finished.Status
	t.Result = finished.Result
	t.Error = finished.Error
	logging.Schedule("plan %s: task %s -> %s", p.ID, t.ID, t.Status)
}

// RunTask executes one task immediately, outside queue and dependency order.
// Retrying a failed task or forcing one through ahead of its siblings is the
// caller's call; incomplete dependencies are logged, not enforced. The task
// transition is persisted write-through like a dispatched run.
func (m *Manager) RunTask(ctx context.Context, planID, taskID string) (*plan.SubTask, error) {
	if m.executor == nil {
		return nil, fmt.Errorf("no executor configured")
	}

	m.mu.Lock()
	if _, already := m.running[planID]; already {
		m.mu.Unlock()
		return nil, fmt.Errorf("plan %s is already running", planID)
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.running[planID] = cancel
	m.mu.Unlock()

	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.running, planID)
		m.mu.Unlock()
	}()

	p, meta, err := m.loadBoth(planID)
	if err != nil {
		return nil, err
	}
	t := p.Task(taskID)
	if t == nil {
		return nil, fmt.Errorf("plan %s has no task %s", planID, taskID)
	}
	switch t.Status {
	case plan.TaskInProgress:
		return nil, fmt.Errorf("task %s is already in progress", taskID)
	case plan.TaskCompleted:
		return nil, fmt.Errorf("task %s is already completed", taskID)
	}
	completed := p.CompletedIDs()
	for _, dep := range t.Dependencies {
		if !completed[dep] {
			logging.ScheduleWarn("plan %s: running %s with incomplete dependency %s", planID, taskID, dep)
		}
	}

	t.Status = plan.TaskInProgress
	t.Error = ""
	p.CurrentPhase = string(t.Category)
	if err := m.store.SavePlan(p, *meta); err != nil {
		return nil, err
	}

	m.executor.Execute(runCtx, t)
	plan.MarkBlockedDependents(p)
	if err := m.store.SavePlan(p, *meta); err != nil {
		return nil, err
	}
	logging.Schedule("plan %s: task %s -> %s (single-task run)", planID, taskID, t.Status)
	return t, nil
}

// Stop cancels a running plan's dispatch loop. No-op when the plan is not
// running.
func (m *Manager) Stop(planID string) {
	m.mu.Lock()
	cancel, ok := m.running[planID]
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// RunNext pulls the next plan from the queue and runs it. Returns the plan
// id that ran, or "" when the queue is empty.
func (m *Manager) RunNext(ctx context.Context) (string, error) {
	meta, err := m.NextFromQueue()
	if err != nil {
		return "", err
	}
	if meta == nil {
		return "", nil
	}
	return meta.ID, m.RunPlan(ctx, meta.ID)
}
