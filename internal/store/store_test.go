package store

import (
	"errors"
	"path/filepath"
	"testing"

	"planforge/internal/plan"
)

func testStore(t *testing.T) *PlanStore {
	t.Helper()
	s, err := NewPlanStore(filepath.Join(t.TempDir(), "plans.db"))
	if err != nil {
		t.Fatalf("NewPlanStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func samplePlan(id string) *plan.TaskPlan {
	return &plan.TaskPlan{
		ID:              id,
		OriginalRequest: "create a login page",
		Summary:         "Login page",
		Tasks: []plan.SubTask{
			{ID: "t1", Title: "Design login form", Status: plan.TaskCompleted, Category: plan.CategoryDesign},
			{ID: "t2", Title: "Build login form", Status: plan.TaskPending, Category: plan.CategoryFrontend, Dependencies: []string{"t1"}},
		},
	}
}

func TestSaveAndLoadPlan_RoundTrip(t *testing.T) {
	s := testStore(t)

	p := samplePlan("plan_rt")
	meta := plan.MetadataFor(p, nil)
	if err := s.SavePlan(p, meta); err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}

	loaded, err := s.LoadPlan("plan_rt")
	if err != nil {
		t.Fatalf("LoadPlan failed: %v", err)
	}
	if loaded.OriginalRequest != p.OriginalRequest {
		t.Errorf("OriginalRequest = %q, want %q", loaded.OriginalRequest, p.OriginalRequest)
	}
	if len(loaded.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(loaded.Tasks))
	}
	if loaded.Tasks[1].Dependencies[0] != "t1" {
		t.Error("dependencies not preserved")
	}
	if loaded.TotalTasks != 2 || loaded.CompletedTasks != 1 {
		t.Errorf("counters = %d/%d, want 1/2", loaded.CompletedTasks, loaded.TotalTasks)
	}
}

func TestSavePlan_SyncsMetadataCounters(t *testing.T) {
	s := testStore(t)

	p := samplePlan("plan_sync")
	meta := plan.MetadataFor(p, nil)
	// Stale counters must be refreshed from the plan on save.
	meta.TotalTasks = 99
	meta.CompletedTasks = 99
	if err := s.SavePlan(p, meta); err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}

	got, err := s.LoadMetadata("plan_sync")
	if err != nil {
		t.Fatalf("LoadMetadata failed: %v", err)
	}
	if got.TotalTasks != 2 || got.CompletedTasks != 1 {
		t.Errorf("counters = %d/%d, want 1/2", got.CompletedTasks, got.TotalTasks)
	}
	if got.Status != plan.PlanQueued {
		t.Errorf("new plan status = %s, want queued", got.Status)
	}
}

func TestLoadPlan_NotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.LoadPlan("nope")
	if !errors.Is(err, plan.ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
}

func TestSavePlan_OverwriteIsWriteThrough(t *testing.T) {
	s := testStore(t)

	p := samplePlan("plan_ow")
	meta := plan.MetadataFor(p, nil)
	if err := s.SavePlan(p, meta); err != nil {
		t.Fatalf("first SavePlan failed: %v", err)
	}

	p.Tasks[1].Status = plan.TaskCompleted
	p.Tasks[1].Result = "login form built"
	if err := s.SavePlan(p, meta); err != nil {
		t.Fatalf("second SavePlan failed: %v", err)
	}

	loaded, err := s.LoadPlan("plan_ow")
	if err != nil {
		t.Fatalf("LoadPlan failed: %v", err)
	}
	if loaded.Tasks[1].Status != plan.TaskCompleted {
		t.Error("task transition not persisted")
	}
	if loaded.CompletedTasks != 2 {
		t.Errorf("CompletedTasks = %d, want 2", loaded.CompletedTasks)
	}
}

func TestListMetadata_QueueOrder(t *testing.T) {
	s := testStore(t)

	for _, tc := range []struct {
		id       string
		priority int
	}{
		{"plan_low", 8},
		{"plan_top", 1},
		{"plan_mid", 5},
	} {
		p := samplePlan(tc.id)
		meta := plan.MetadataFor(p, nil)
		meta.Priority = tc.priority
		if err := s.SavePlan(p, meta); err != nil {
			t.Fatalf("SavePlan(%s) failed: %v", tc.id, err)
		}
	}

	list, err := s.ListMetadata()
	if err != nil {
		t.Fatalf("ListMetadata failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(list))
	}
	want := []string{"plan_top", "plan_mid", "plan_low"}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, list[i].ID, id)
		}
	}
}

func TestListMetadata_PrunesOrphans(t *testing.T) {
	s := testStore(t)

	p := samplePlan("plan_keep")
	if err := s.SavePlan(p, plan.MetadataFor(p, nil)); err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}
	// Metadata row with no backing plan.
	if err := s.SaveMetadata(plan.PlanMetadata{ID: "plan_ghost", Name: "ghost", Status: plan.PlanQueued, Priority: 5}); err != nil {
		t.Fatalf("SaveMetadata failed: %v", err)
	}

	list, err := s.ListMetadata()
	if err != nil {
		t.Fatalf("ListMetadata failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != "plan_keep" {
		t.Fatalf("orphan not pruned: %+v", list)
	}
}

func TestDeletePlan_RemovesBothRows(t *testing.T) {
	s := testStore(t)

	p := samplePlan("plan_del")
	if err := s.SavePlan(p, plan.MetadataFor(p, nil)); err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}
	if err := s.DeletePlan("plan_del"); err != nil {
		t.Fatalf("DeletePlan failed: %v", err)
	}
	if _, err := s.LoadPlan("plan_del"); !errors.Is(err, plan.ErrPlanNotFound) {
		t.Error("plan row survived delete")
	}
	if _, err := s.LoadMetadata("plan_del"); !errors.Is(err, plan.ErrPlanNotFound) {
		t.Error("metadata row survived delete")
	}
}

func TestListSummaries(t *testing.T) {
	s := testStore(t)

	p := samplePlan("plan_sum")
	if err := s.SavePlan(p, plan.MetadataFor(p, nil)); err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}

	sums, err := s.ListSummaries()
	if err != nil {
		t.Fatalf("ListSummaries failed: %v", err)
	}
	if len(sums) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(sums))
	}
	if sums[0].OriginalRequest != "create a login page" {
		t.Errorf("OriginalRequest = %q", sums[0].OriginalRequest)
	}
}

func TestStore_ReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plans.db")

	s, err := NewPlanStore(path)
	if err != nil {
		t.Fatalf("NewPlanStore failed: %v", err)
	}
	p := samplePlan("plan_reopen")
	if err := s.SavePlan(p, plan.MetadataFor(p, nil)); err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}
	s.Close()

	s2, err := NewPlanStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()
	if _, err := s2.LoadPlan("plan_reopen"); err != nil {
		t.Fatalf("plan lost across reopen: %v", err)
	}
}
