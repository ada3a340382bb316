package sandbox

import (
	"fmt"
	"os"
	"path/filepath"

	"planforge/internal/logging"
)

// FileResult reports a completed file operation.
type FileResult struct {
	Path    string `json:"path"` // resolved absolute path
	Created bool   `json:"created"`
	OldHash string `json:"old_hash,omitempty"`
	NewHash string `json:"new_hash,omitempty"`
	Size    int    `json:"size"`
}

// WriteFile writes content inside the sandbox, creating parent directories
// as needed. The returned hashes let callers verify the write independently.
func (s *Sandbox) WriteFile(taskID, path string, content []byte) (*FileResult, error) {
	abs, err := s.ResolvePath(path)
	if err != nil {
		s.emit(AuditEvent{Type: OpWrite, TaskID: taskID, Path: path, Success: false, Error: err.Error()})
		return nil, err
	}

	oldHash := ""
	created := true
	if existing, err := os.ReadFile(abs); err == nil {
		oldHash = Hash(existing)
		created = false
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		s.emit(AuditEvent{Type: OpWrite, TaskID: taskID, Path: abs, Success: false, Error: err.Error()})
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.WriteFile(abs, content, 0644); err != nil {
		s.emit(AuditEvent{Type: OpWrite, TaskID: taskID, Path: abs, Success: false, Error: err.Error()})
		return nil, fmt.Errorf("failed to write %s: %w", abs, err)
	}

	newHash := Hash(content)
	s.emit(AuditEvent{Type: OpWrite, TaskID: taskID, Path: abs, OldHash: oldHash, NewHash: newHash, Success: true})
	logging.SandboxDebug("wrote %s (%d bytes, created=%v)", abs, len(content), created)

	return &FileResult{Path: abs, Created: created, OldHash: oldHash, NewHash: newHash, Size: len(content)}, nil
}

// ReadFile reads a file inside the sandbox.
func (s *Sandbox) ReadFile(taskID, path string) ([]byte, error) {
	abs, err := s.ResolvePath(path)
	if err != nil {
		s.emit(AuditEvent{Type: OpRead, TaskID: taskID, Path: path, Success: false, Error: err.Error()})
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		s.emit(AuditEvent{Type: OpRead, TaskID: taskID, Path: abs, Success: false, Error: err.Error()})
		return nil, fmt.Errorf("failed to read %s: %w", abs, err)
	}
	s.emit(AuditEvent{Type: OpRead, TaskID: taskID, Path: abs, NewHash: Hash(data), Success: true})
	return data, nil
}

// FileExists reports whether the path exists inside the sandbox. Policy
// violations read as nonexistent.
func (s *Sandbox) FileExists(path string) bool {
	abs, err := s.ResolvePath(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && !info.IsDir()
}

// FileHash returns the sha256 of the file at path, or an error if it cannot
// be read.
func (s *Sandbox) FileHash(path string) (string, error) {
	abs, err := s.ResolvePath(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", abs, err)
	}
	return Hash(data), nil
}
