// Package store provides durable persistence for plans and their queue
// metadata, backed by a single SQLite database under the workspace dot-dir.
//
// Layout: a plans table holding the full TaskPlan as self-describing JSON,
// plus a plan_metadata index table so queue listings never deserialize full
// plans. Saves are write-through: both rows are updated in one transaction
// after every task status transition.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"planforge/internal/logging"
	"planforge/internal/plan"
)

// PlanStore persists plans in SQLite.
type PlanStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewPlanStore initializes the SQLite database at the given path.
func NewPlanStore(path string) (*PlanStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewPlanStore")
	defer timer.Stop()

	logging.Store("initializing plan store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &PlanStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.StoreDebug("plan store schema ready")
	return s, nil
}

// initialize creates the required tables.
func (s *PlanStore) initialize() error {
	plansTable := `
	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		original_request TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	metadataTable := `
	CREATE TABLE IF NOT EXISTS plan_metadata (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 5,
		total_tasks INTEGER NOT NULL DEFAULT 0,
		completed_tasks INTEGER NOT NULL DEFAULT 0,
		user_notes TEXT NOT NULL DEFAULT '',
		parent_plan_id TEXT NOT NULL DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_plan_metadata_status ON plan_metadata(status);
	CREATE INDEX IF NOT EXISTS idx_plan_metadata_priority ON plan_metadata(priority);
	`

	for _, stmt := range []string{plansTable, metadataTable} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

// SavePlan writes the full plan and its synchronized metadata row in one
// transaction. Metadata counters are refreshed from the plan before saving.
func (s *PlanStore) SavePlan(p *plan.TaskPlan, meta plan.PlanMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.Recount()
	meta.TotalTasks = p.TotalTasks
	meta.CompletedTasks = p.CompletedTasks
	meta.UpdatedAt = time.Now()

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal plan %s: %w", p.ID, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO plans (id, original_request, data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			original_request = excluded.original_request,
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`, p.ID, p.OriginalRequest, string(data)); err != nil {
		return fmt.Errorf("failed to save plan %s: %w", p.ID, err)
	}

	if err := upsertMetadata(tx, meta); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit plan %s: %w", p.ID, err)
	}

	logging.StoreDebug("saved plan %s (%d/%d tasks complete)", p.ID, meta.CompletedTasks, meta.TotalTasks)
	return nil
}

func upsertMetadata(tx *sql.Tx, meta plan.PlanMetadata) error {
	if _, err := tx.Exec(`
		INSERT INTO plan_metadata (id, name, status, priority, total_tasks, completed_tasks, user_notes, parent_plan_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			priority = excluded.priority,
			total_tasks = excluded.total_tasks,
			completed_tasks = excluded.completed_tasks,
			user_notes = excluded.user_notes,
			parent_plan_id = excluded.parent_plan_id,
			updated_at = CURRENT_TIMESTAMP
	`, meta.ID, meta.Name, string(meta.Status), meta.Priority, meta.TotalTasks,
		meta.CompletedTasks, meta.UserNotes, meta.ParentPlanID); err != nil {
		return fmt.Errorf("failed to save metadata %s: %w", meta.ID, err)
	}
	return nil
}

// SaveMetadata updates the queue-facing row alone (status/priority/notes
// edits that do not touch the task list).
func (s *PlanStore) SaveMetadata(meta plan.PlanMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := upsertMetadata(tx, meta); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadPlan fetches a full plan by id. Returns plan.ErrPlanNotFound when the
// id is unknown.
func (s *PlanStore) LoadPlan(id string) (*plan.TaskPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRow(`SELECT data FROM plans WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("plan %s: %w", id, plan.ErrPlanNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", id, err)
	}

	var p plan.TaskPlan
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to decode plan %s: %w", id, err)
	}
	return &p, nil
}

// LoadMetadata fetches the queue row for one plan.
func (s *PlanStore) LoadMetadata(id string) (*plan.PlanMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadMetadataLocked(id)
}

func (s *PlanStore) loadMetadataLocked(id string) (*plan.PlanMetadata, error) {
	row := s.db.QueryRow(`
		SELECT id, name, status, priority, total_tasks, completed_tasks, user_notes, parent_plan_id, updated_at
		FROM plan_metadata WHERE id = ?
	`, id)
	meta, err := scanMetadata(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("metadata %s: %w", id, plan.ErrPlanNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata %s: %w", id, err)
	}
	return meta, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMetadata(row rowScanner) (*plan.PlanMetadata, error) {
	var meta plan.PlanMetadata
	var status string
	var updatedAt time.Time
	if err := row.Scan(&meta.ID, &meta.Name, &status, &meta.Priority, &meta.TotalTasks,
		&meta.CompletedTasks, &meta.UserNotes, &meta.ParentPlanID, &updatedAt); err != nil {
		return nil, err
	}
	meta.Status = plan.PlanStatus(status)
	meta.UpdatedAt = updatedAt
	return &meta, nil
}

// ListMetadata returns every queue row ordered by priority then recency.
// Orphaned metadata (no matching plan row) is pruned before listing.
func (s *PlanStore) ListMetadata() ([]plan.PlanMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pruneOrphansLocked(); err != nil {
		logging.StoreError("orphan prune failed: %v", err)
	}

	rows, err := s.db.Query(`
		SELECT id, name, status, priority, total_tasks, completed_tasks, user_notes, parent_plan_id, updated_at
		FROM plan_metadata
		ORDER BY priority ASC, updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}
	defer rows.Close()

	out := make([]plan.PlanMetadata, 0)
	for rows.Next() {
		meta, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		out = append(out, *meta)
	}
	return out, rows.Err()
}

// pruneOrphansLocked removes metadata rows whose plan record is gone.
func (s *PlanStore) pruneOrphansLocked() error {
	res, err := s.db.Exec(`DELETE FROM plan_metadata WHERE id NOT IN (SELECT id FROM plans)`)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		logging.Store("pruned %d orphaned metadata rows", n)
	}
	return nil
}

// PlanSummary pairs a plan id with its original request text, for similarity
// scoring without full deserialization.
type PlanSummary struct {
	ID              string
	OriginalRequest string
}

// ListSummaries returns id + original request for every stored plan.
func (s *PlanStore) ListSummaries() ([]PlanSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, original_request FROM plans ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	out := make([]PlanSummary, 0)
	for rows.Next() {
		var ps PlanSummary
		if err := rows.Scan(&ps.ID, &ps.OriginalRequest); err != nil {
			return nil, fmt.Errorf("failed to scan plan summary: %w", err)
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// DeletePlan removes the plan and its metadata.
func (s *PlanStore) DeletePlan(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM plans WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete plan %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM plan_metadata WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete metadata %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of %s: %w", id, err)
	}

	logging.Store("deleted plan %s", id)
	return nil
}

// Path returns the database file path.
func (s *PlanStore) Path() string {
	return s.dbPath
}

// Close releases the database handle.
func (s *PlanStore) Close() error {
	return s.db.Close()
}
