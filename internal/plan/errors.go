package plan

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPlanNotFound is returned by the store when no plan exists for an id.
var ErrPlanNotFound = errors.New("plan not found")

// DecompositionError means both oracle-assisted and rule-based extraction
// produced zero tasks. Fatal to the decomposition call, not to the engine.
type DecompositionError struct {
	Request string
	Reason  string
}

func (e *DecompositionError) Error() string {
	return fmt.Sprintf("decomposition produced no tasks for %q: %s", truncate(e.Request, 60), e.Reason)
}

// DependencyCycleError reports a cycle in a plan's dependency graph. Plans
// are acyclic by construction, so hitting this means the plan is rejected,
// never silently scheduled.
type DependencyCycleError struct {
	PlanID  string
	TaskIDs []string
}

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("plan %s: dependency cycle involving tasks [%s]", e.PlanID, strings.Join(e.TaskIDs, ", "))
}

// PathNotAllowedError is a sandbox policy violation: the target path is
// outside every allow-listed root. Always rejected before execution.
type PathNotAllowedError struct {
	Path string
}

func (e *PathNotAllowedError) Error() string {
	return fmt.Sprintf("path not allowed: %s", e.Path)
}

// CommandBlockedError is a sandbox policy violation: the command matched a
// deny-listed destructive pattern. Always rejected before execution.
type CommandBlockedError struct {
	Command string
	Pattern string
}

func (e *CommandBlockedError) Error() string {
	return fmt.Sprintf("command blocked by policy (matched %q): %s", e.Pattern, truncate(e.Command, 80))
}

// VerificationMismatchError records an action whose self-reported success
// disagreed with independent verification. Surfaced as a warning on the
// task; never crashes the scheduler.
type VerificationMismatchError struct {
	Action string
	Target string
	Detail string
}

func (e *VerificationMismatchError) Error() string {
	return fmt.Sprintf("%s on %s reported success but verification failed: %s", e.Action, e.Target, e.Detail)
}

// PlanDeadlockError means an incomplete plan has no ready and no in-progress
// tasks. Should be unreachable for decomposer-built plans; surfaced to the
// caller for manual intervention when it is not.
type PlanDeadlockError struct {
	PlanID    string
	Remaining int
}

func (e *PlanDeadlockError) Error() string {
	return fmt.Sprintf("plan %s deadlocked: %d tasks remaining, none ready, none in progress", e.PlanID, e.Remaining)
}
