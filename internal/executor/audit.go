package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"planforge/internal/logging"
	"planforge/internal/sandbox"
)

// AuditLog appends sandbox events to a JSONL file, one event per line. It is
// the durable record of every side effect; task.Error holds only the
// truncated summary.
type AuditLog struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// OpenAuditLog opens (or creates) the audit log under the state directory.
func OpenAuditLog(stateDir string) (*AuditLog, error) {
	logsDir := filepath.Join(stateDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs dir: %w", err)
	}
	path := filepath.Join(logsDir, "audit.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &AuditLog{f: f, path: path}, nil
}

// Append writes one event. Audit failures are logged, never propagated:
// auditing must not fail the operation it records.
func (a *AuditLog) Append(event sandbox.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	line, err := json.Marshal(event)
	if err != nil {
		logging.ExecError("audit marshal failed: %v", err)
		return
	}
	if _, err := a.f.Write(append(line, '\n')); err != nil {
		logging.ExecError("audit write failed: %v", err)
	}
}

// Path returns the log file location.
func (a *AuditLog) Path() string {
	return a.path
}

// Close flushes and closes the log file.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.f.Close()
}
