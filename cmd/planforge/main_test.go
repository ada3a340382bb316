package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"planforge/internal/manager"
	"planforge/internal/plan"
)

// testEngine opens the full stack over a scratch workspace with the oracle
// forced offline.
func testEngine(t *testing.T) (*engine, string) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("PLANFORGE_MAX_PARALLEL", "")

	root := t.TempDir()
	eng, err := openEngine(root)
	if err != nil {
		t.Fatalf("openEngine failed: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng, root
}

func TestEngine_LoginScenarioEndToEnd(t *testing.T) {
	eng, root := testEngine(t)

	res, err := eng.manager.CreatePlan(context.Background(),
		"Build login:\n1. Create login page\n2. Create login API\n3. Test login")
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	p := res.Plan

	// Rule-based decomposition orders phases analysis -> backend -> frontend
	// -> testing, so the page depends on the API.
	var api, page *plan.SubTask
	for i := range p.Tasks {
		switch p.Tasks[i].Title {
		case "Create login API":
			api = &p.Tasks[i]
		case "Create login page":
			page = &p.Tasks[i]
		}
	}
	if api == nil || page == nil {
		t.Fatalf("expected api and page tasks, got %+v", p.Tasks)
	}
	if api.Category != plan.CategoryBackend || page.Category != plan.CategoryFrontend {
		t.Errorf("categories = %s/%s", api.Category, page.Category)
	}
	if !page.DependsOn(api.ID) {
		t.Error("page must depend on the API task")
	}

	if err := eng.manager.RunPlan(context.Background(), p.ID); err != nil {
		t.Fatalf("RunPlan failed: %v", err)
	}

	// Everything automatable completes; "Test login" has no derivable
	// action, so it waits for a human and the plan pauses instead of
	// claiming success.
	mid, _ := eng.manager.GetPlan(p.ID)
	var testTask *plan.SubTask
	for i := range mid.Tasks {
		task := &mid.Tasks[i]
		if task.Category == plan.CategoryTesting {
			testTask = task
			continue
		}
		if task.Status != plan.TaskCompleted {
			t.Errorf("task %s (%s) = %s", task.ID, task.Title, task.Status)
		}
	}
	if testTask == nil || testTask.Status != plan.TaskFailed {
		t.Fatalf("testing task = %+v, want failed pending manual completion", testTask)
	}
	prog, _ := eng.manager.GetProgress(p.ID)
	if prog.Status != plan.PlanPaused {
		t.Errorf("plan status = %s, want paused", prog.Status)
	}

	// The frontend task leaves a real artifact and the sandbox audit-logs it.
	if _, err := os.Stat(filepath.Join(root, "create_login_page.html")); err != nil {
		t.Errorf("page artifact missing: %v", err)
	}
	audit, err := os.ReadFile(filepath.Join(root, ".planforge", "logs", "audit.jsonl"))
	if err != nil {
		t.Fatalf("audit log missing: %v", err)
	}
	if !strings.Contains(string(audit), page.ID) {
		t.Error("audit log does not record the page write")
	}

	// Recording the manual test result lets the plan finish for real.
	done := plan.TaskCompleted
	if err := eng.manager.UpdateTask(p.ID, testTask.ID, manager.TaskUpdate{Status: &done}); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if err := eng.manager.RunPlan(context.Background(), p.ID); err != nil {
		t.Fatalf("second RunPlan failed: %v", err)
	}
	prog, _ = eng.manager.GetProgress(p.ID)
	if prog.Status != plan.PlanCompleted {
		t.Errorf("plan status = %s, want completed", prog.Status)
	}
}

func TestEngine_ReuseAcrossReopen(t *testing.T) {
	eng, root := testEngine(t)
	res, err := eng.manager.CreatePlan(context.Background(), "create a settings page")
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	eng.Close()

	reopened, err := openEngine(root)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	t.Cleanup(reopened.Close)

	again, err := reopened.manager.CreatePlan(context.Background(), "create the settings page")
	if err != nil {
		t.Fatalf("second CreatePlan failed: %v", err)
	}
	if !again.Reused || again.Plan.ID != res.Plan.ID {
		t.Errorf("expected reuse of %s, got %+v", res.Plan.ID, again)
	}
}

func TestMarshalPlan(t *testing.T) {
	p := &plan.TaskPlan{
		ID:              "plan_x",
		OriginalRequest: "do things",
		Tasks: []plan.SubTask{
			{ID: "task_1", Title: "First", Category: plan.CategoryGeneral, Priority: plan.PriorityMedium, Status: plan.TaskPending},
		},
		TotalTasks: 1,
	}

	jsonOut, err := marshalPlan(p, "json")
	if err != nil {
		t.Fatalf("json marshal failed: %v", err)
	}
	if !strings.Contains(string(jsonOut), `"original_request"`) {
		t.Errorf("json output missing field: %s", jsonOut)
	}

	yamlOut, err := marshalPlan(p, "yaml")
	if err != nil {
		t.Fatalf("yaml marshal failed: %v", err)
	}
	// YAML keys come from the JSON tags, not Go field names.
	if !strings.Contains(string(yamlOut), "original_request:") {
		t.Errorf("yaml output missing field: %s", yamlOut)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("line one\nline two", 50); strings.Contains(got, "\n") {
		t.Errorf("newlines must flatten: %q", got)
	}
	if got := truncate("abcdef", 3); got != "abc..." {
		t.Errorf("truncate = %q", got)
	}
}
