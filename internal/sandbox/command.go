package sandbox

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"planforge/internal/logging"
)

// CommandResult reports a completed command run. A nonzero exit code is a
// result, not an error; errors are reserved for policy rejections and
// failures to start.
type CommandResult struct {
	Command  string        `json:"command"`
	Output   string        `json:"output"` // combined stdout+stderr
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// Success reports whether the command exited zero without timing out.
func (r *CommandResult) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// RunCommand executes a command line through the shell after deny-list
// screening. The sandbox timeout applies unless the context carries an
// earlier deadline.
func (s *Sandbox) RunCommand(ctx context.Context, taskID, command string) (*CommandResult, error) {
	if err := s.CheckCommand(command); err != nil {
		s.emit(AuditEvent{Type: OpCommand, TaskID: taskID, Command: command, Success: false, Error: err.Error()})
		return nil, err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.commandTimeout)
		defer cancel()
	}

	logging.Sandbox("running command for task %s: %s", taskID, command)
	start := time.Now()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = s.roots[0]
	output, err := cmd.CombinedOutput()

	result := &CommandResult{
		Command:  command,
		Output:   strings.TrimSpace(string(output)),
		Duration: time.Since(start),
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		result.ExitCode = -1
	case err != nil:
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Failed to start at all.
			s.emit(AuditEvent{Type: OpCommand, TaskID: taskID, Command: command, Success: false, Error: err.Error()})
			return nil, err
		}
	}

	s.emit(AuditEvent{
		Type: OpCommand, TaskID: taskID, Command: command,
		ExitCode: result.ExitCode, Success: result.Success(),
	})
	logging.SandboxDebug("command exit=%d timed_out=%v in %v", result.ExitCode, result.TimedOut, result.Duration)
	return result, nil
}
