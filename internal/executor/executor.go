// Package executor runs one task at a time inside the sandbox. Every action
// is performed and then independently verified against the filesystem:
// an action that reports success but fails verification leaves the task
// unverified, and an unverified task is never marked completed.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"planforge/internal/logging"
	"planforge/internal/plan"
	"planforge/internal/sandbox"
	"planforge/internal/workspace"
)

// Stage labels a progress event.
type Stage string

const (
	StageStart   Stage = "start"
	StagePlanned Stage = "planned"
	StageAction  Stage = "action"
	StageVerify  Stage = "verify"
	StageDone    Stage = "done"
)

// Event is a progress notification streamed during execution.
type Event struct {
	TaskID    string    `json:"task_id"`
	Stage     Stage     `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// StepResult reports one action's outcome. Success and Verified are
// independent: Success records whether the perform call went through,
// Verified records whether the post-condition check confirmed it.
type StepResult struct {
	Action   Action `json:"action"`
	Success  bool   `json:"success"`
	Verified bool   `json:"verified"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`

	// Command steps record the observed exit for verification; modify steps
	// record the target's hash before the edit.
	ExitCode int    `json:"exit_code,omitempty"`
	TimedOut bool   `json:"timed_out,omitempty"`
	PreHash  string `json:"pre_hash,omitempty"`
}

// TaskResult aggregates a task's steps. Success means every step performed
// without error; Verified means every performed step also passed independent
// verification. Both must hold for the task to complete.
type TaskResult struct {
	TaskID   string       `json:"task_id"`
	Success  bool         `json:"success"`
	Verified bool         `json:"verified"`
	Steps    []StepResult `json:"steps"`
	Summary  string       `json:"summary"`
	Duration time.Duration `json:"duration"`
}

// Executor performs tasks.
type Executor struct {
	sandbox  *sandbox.Sandbox
	gatherer *workspace.Gatherer
	events   func(Event)
	audit    func(sandbox.AuditEvent)
}

// Option configures an Executor.
type Option func(*Executor)

// WithEventSink streams progress events to the given callback. The callback
// must not block.
func WithEventSink(sink func(Event)) Option {
	return func(e *Executor) { e.events = sink }
}

// WithAuditSink records every verification outcome to the audit log, so the
// full untruncated error trail survives the per-task summary.
func WithAuditSink(sink func(sandbox.AuditEvent)) Option {
	return func(e *Executor) { e.audit = sink }
}

// New creates an executor over a sandbox. The gatherer is optional and only
// feeds analysis actions.
func New(sb *sandbox.Sandbox, gatherer *workspace.Gatherer, opts ...Option) *Executor {
	e := &Executor{sandbox: sb, gatherer: gatherer}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) emit(taskID string, stage Stage, format string, args ...interface{}) {
	if e.events == nil {
		return
	}
	e.events(Event{
		TaskID:    taskID,
		Stage:     stage,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	})
}

// Execute runs every derived action for the task sequentially, continuing
// past individual failures so later actions still get their chance. It
// mutates the task's Status, Result and Error before returning.
func (e *Executor) Execute(ctx context.Context, t *plan.SubTask) *TaskResult {
	timer := logging.StartTimer(logging.CategoryExec, "Execute "+t.ID)
	start := time.Now()

	logging.Exec("executing task %s: %s", t.ID, t.Title)
	e.emit(t.ID, StageStart, "starting: %s", t.Title)

	actions := DeriveActions(t)
	e.emit(t.ID, StagePlanned, "%d actions planned", len(actions))
	result := &TaskResult{TaskID: t.ID, Success: true, Verified: true}

	for _, action := range actions {
		if ctx.Err() != nil {
			result.Success = false
			result.Verified = false
			result.Steps = append(result.Steps, StepResult{
				Action: action, Error: ctx.Err().Error(),
			})
			break
		}

		e.emit(t.ID, StageAction, "%s", action.Description)
		step := e.perform(ctx, t, action)
		if step.Success {
			e.emit(t.ID, StageVerify, "verifying %s", action.Description)
			e.verify(t, action, &step)
			e.auditVerify(t.ID, step)
		}
		result.Steps = append(result.Steps, step)

		if !step.Success {
			result.Success = false
			result.Verified = false
			logging.ExecWarn("task %s: action failed: %s: %s", t.ID, action.Description, step.Error)
			continue
		}
		if !step.Verified {
			result.Verified = false
			logging.ExecWarn("task %s: verification failed: %s: %s", t.ID, action.Description, step.Error)
		}
	}

	result.Duration = time.Since(start)
	result.Summary = summarizeSteps(result.Steps)
	applyToTask(t, result)

	e.emit(t.ID, StageDone, "%s: success=%v verified=%v", t.Title, result.Success, result.Verified)
	timer.StopWithThreshold(30 * time.Second)
	return result
}

// perform executes one action. Success here means only that the attempt went
// through; whether it actually changed the world is verify's call.
func (e *Executor) perform(ctx context.Context, t *plan.SubTask, action Action) StepResult {
	step := StepResult{Action: action}

	switch action.Type {
	case ActionCreateFile:
		res, err := e.sandbox.WriteFile(t.ID, action.Target, action.Content)
		if err != nil {
			step.Error = err.Error()
			return step
		}
		step.Success = true
		step.Output = fmt.Sprintf("wrote %s (%d bytes)", res.Path, res.Size)

	case ActionModifyFile:
		// Content generation for existing files is out of the executor's
		// hands; the step records the target's current hash so verification
		// can tell whether an edit actually landed.
		if hash, err := e.sandbox.FileHash(action.Target); err == nil {
			step.PreHash = hash
		}
		step.Success = true
		step.Output = fmt.Sprintf("edit required in %s: %s", action.Target, t.Description)

	case ActionRunCommand:
		res, err := e.sandbox.RunCommand(ctx, t.ID, action.Command)
		if err != nil {
			step.Error = err.Error()
			return step
		}
		// The command ran; its exit code is verification's concern.
		step.Success = true
		step.Output = res.Output
		step.ExitCode = res.ExitCode
		step.TimedOut = res.TimedOut

	case ActionAnalyze:
		summary, err := e.analyze()
		if err != nil {
			step.Error = err.Error()
			return step
		}
		step.Success = true
		step.Output = summary

	case ActionManual:
		// Nothing to perform; the step exists so verification can flag the
		// task as needing a human.
		step.Success = true
		step.Output = action.Description
	}

	return step
}

// verify checks a successful step against the filesystem, independently of
// what the action itself reported.
func (e *Executor) verify(t *plan.SubTask, action Action, step *StepResult) {
	switch action.Type {
	case ActionCreateFile:
		hash, err := e.sandbox.FileHash(action.Target)
		if err != nil {
			step.Error = (&plan.VerificationMismatchError{
				Action: string(action.Type), Target: action.Target,
				Detail: "file missing after write",
			}).Error()
			return
		}
		if hash != sandbox.Hash(action.Content) {
			step.Error = (&plan.VerificationMismatchError{
				Action: string(action.Type), Target: action.Target,
				Detail: "content hash mismatch",
			}).Error()
			return
		}
		step.Verified = true

	case ActionModifyFile:
		hash, err := e.sandbox.FileHash(action.Target)
		if err != nil {
			step.Error = (&plan.VerificationMismatchError{
				Action: string(action.Type), Target: action.Target,
				Detail: "target file does not exist",
			}).Error()
			return
		}
		if hash == step.PreHash {
			step.Error = (&plan.VerificationMismatchError{
				Action: string(action.Type), Target: action.Target,
				Detail: "file content unchanged, edit has not been made",
			}).Error()
			return
		}
		step.Verified = true

	case ActionRunCommand:
		if step.TimedOut {
			step.Error = (&plan.VerificationMismatchError{
				Action: string(action.Type), Target: action.Command,
				Detail: "command timed out",
			}).Error()
			return
		}
		if step.ExitCode != action.ExpectedExit {
			step.Error = (&plan.VerificationMismatchError{
				Action: string(action.Type), Target: action.Command,
				Detail: fmt.Sprintf("exit code %d, want %d: %s", step.ExitCode, action.ExpectedExit, truncate(step.Output, 120)),
			}).Error()
			return
		}
		step.Verified = true

	case ActionAnalyze:
		step.Verified = step.Output != ""
		if !step.Verified {
			step.Error = "analysis produced no findings"
		}

	case ActionManual:
		// A human has to do this one; it must never read as done on its own.
		step.Error = "requires manual completion"
	}
}

// auditVerify appends a verification outcome to the audit log with the full
// untruncated error. success=true, verified=false lands here too.
func (e *Executor) auditVerify(taskID string, step StepResult) {
	if e.audit == nil {
		return
	}
	e.audit(sandbox.AuditEvent{
		Type:      sandbox.OpVerify,
		Timestamp: time.Now(),
		TaskID:    taskID,
		Path:      step.Action.Target,
		Command:   step.Action.Command,
		ExitCode:  step.ExitCode,
		Success:   step.Verified,
		Error:     step.Error,
	})
}

func (e *Executor) analyze() (string, error) {
	if e.gatherer == nil {
		return "", fmt.Errorf("no workspace to analyze")
	}
	wctx, err := e.gatherer.Gather()
	if err != nil {
		return "", err
	}
	return wctx.Summary(), nil
}

// applyToTask writes the outcome back onto the task. Completed requires both
// success and verification; anything less is failed, carrying every step
// error joined together. The task field is a truncated display summary; the
// audit log keeps the full record.
func applyToTask(t *plan.SubTask, result *TaskResult) {
	if result.Success && result.Verified {
		t.Status = plan.TaskCompleted
		t.Result = result.Summary
		t.Error = ""
		return
	}
	t.Status = plan.TaskFailed
	t.Result = result.Summary
	errs := make([]string, 0, len(result.Steps))
	for _, step := range result.Steps {
		if step.Error != "" {
			errs = append(errs, step.Error)
		}
	}
	t.Error = truncate(strings.Join(errs, "; "), 200)
	if t.Error == "" {
		t.Error = "task failed without a recorded error"
	}
}

func summarizeSteps(steps []StepResult) string {
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		status := "ok"
		switch {
		case !s.Success:
			status = "failed"
		case !s.Verified:
			status = "unverified"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", s.Action.Description, status))
	}
	return strings.Join(parts, "; ")
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
