// Package sandbox confines every side effect a task executes: file writes
// stay inside allow-listed roots, commands are screened against a deny-list
// of destructive patterns, and every operation emits an audit event. Policy
// violations are rejected before execution, never after.
package sandbox

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"planforge/internal/logging"
	"planforge/internal/plan"
)

// OpType labels an audited operation.
type OpType string

const (
	OpWrite   OpType = "write"
	OpRead    OpType = "read"
	OpCommand OpType = "command"
	OpVerify  OpType = "verify"
)

// AuditEvent records one sandboxed operation, successful or not.
type AuditEvent struct {
	Type      OpType    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	TaskID    string    `json:"task_id,omitempty"`
	Path      string    `json:"path,omitempty"`
	Command   string    `json:"command,omitempty"`
	OldHash   string    `json:"old_hash,omitempty"`
	NewHash   string    `json:"new_hash,omitempty"`
	ExitCode  int       `json:"exit_code,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// deniedPatterns block commands regardless of allow-listed paths. Substring
// match on the normalized command line.
var deniedPatterns = []string{
	"rm -rf /",
	"rm -fr /",
	"mkfs",
	"format c:",
	"dd if=",
	"> /dev/sd",
	":(){",
	"shutdown",
	"reboot",
	"del /s",
	"rd /s",
	"git push --force",
}

// DefaultCommandTimeout bounds a single command run.
const DefaultCommandTimeout = 60 * time.Second

// Sandbox enforces path and command policy for one workspace.
type Sandbox struct {
	roots          []string
	commandTimeout time.Duration
	auditCallback  func(AuditEvent)
}

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithExtraRoot allow-lists an additional directory beyond the workspace.
func WithExtraRoot(root string) Option {
	return func(s *Sandbox) {
		if abs, err := filepath.Abs(root); err == nil {
			s.roots = append(s.roots, abs)
		}
	}
}

// WithCommandTimeout overrides the default per-command timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(s *Sandbox) {
		if d > 0 {
			s.commandTimeout = d
		}
	}
}

// WithAuditCallback registers the audit sink.
func WithAuditCallback(cb func(AuditEvent)) Option {
	return func(s *Sandbox) { s.auditCallback = cb }
}

// New creates a sandbox rooted at the workspace directory.
func New(workspaceRoot string, opts ...Option) (*Sandbox, error) {
	abs, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	s := &Sandbox{
		roots:          []string{abs},
		commandTimeout: DefaultCommandTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the primary allow-listed root.
func (s *Sandbox) Root() string {
	return s.roots[0]
}

// ResolvePath resolves a path against the workspace root and verifies it
// falls inside an allow-listed root. Traversal out of every root fails with
// *plan.PathNotAllowedError.
func (s *Sandbox) ResolvePath(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.roots[0], path)
	}
	abs = filepath.Clean(abs)

	for _, root := range s.roots {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		if rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..") {
			return abs, nil
		}
	}
	logging.SandboxWarn("path rejected: %s", path)
	return "", &plan.PathNotAllowedError{Path: path}
}

// CheckCommand screens a command line against the deny-list. Returns
// *plan.CommandBlockedError on a match.
func (s *Sandbox) CheckCommand(command string) error {
	normalized := strings.ToLower(strings.Join(strings.Fields(command), " "))
	for _, pattern := range deniedPatterns {
		if strings.Contains(normalized, pattern) {
			logging.SandboxWarn("command blocked: %q matched %q", command, pattern)
			return &plan.CommandBlockedError{Command: command, Pattern: pattern}
		}
	}
	return nil
}

func (s *Sandbox) emit(event AuditEvent) {
	if s.auditCallback != nil {
		event.Timestamp = time.Now()
		s.auditCallback(event)
	}
}

// Hash returns the sha256 hex digest of content.
func Hash(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}
