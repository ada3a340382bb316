package decomposer

import (
	"context"
	"errors"
	"testing"

	"planforge/internal/plan"
)

// mockOracle returns a canned response or error.
type mockOracle struct {
	response string
	err      error
	calls    int
}

func (m *mockOracle) Complete(ctx context.Context, prompt string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func taskByTitle(p *plan.TaskPlan, title string) *plan.SubTask {
	for i := range p.Tasks {
		if p.Tasks[i].Title == title {
			return &p.Tasks[i]
		}
	}
	return nil
}

func TestExtractTasks_NumberedList(t *testing.T) {
	tasks := ExtractTasks("1. Create login page\n2. Create login API\n3. Test login")
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d: %+v", len(tasks), tasks)
	}
	want := []string{"Create login page", "Create login API", "Test login"}
	for i, w := range want {
		if tasks[i].Title != w {
			t.Errorf("task %d title = %q, want %q", i, tasks[i].Title, w)
		}
	}
}

func TestExtractTasks_Bullets(t *testing.T) {
	tasks := ExtractTasks("- add search endpoint\n- style the results list")
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
}

func TestExtractTasks_PagePattern(t *testing.T) {
	tasks := ExtractTasks("the app needs a settings page and a profile view")
	titles := make(map[string]bool)
	for _, task := range tasks {
		titles[task.Title] = true
	}
	if !titles["Create settings page"] {
		t.Errorf("settings page not extracted: %v", titles)
	}
	if !titles["Create profile view"] {
		t.Errorf("profile view not extracted: %v", titles)
	}
}

func TestExtractTasks_FeatureClause(t *testing.T) {
	tasks := ExtractTasks("feature: export reports as CSV")
	if len(tasks) == 0 {
		t.Fatal("expected at least one task")
	}
	if tasks[0].Title != "export reports as CSV" {
		t.Errorf("title = %q", tasks[0].Title)
	}
}

func TestExtractTasks_FallbackSingleTask(t *testing.T) {
	tasks := ExtractTasks("refactor the billing module")
	if len(tasks) != 1 {
		t.Fatalf("unstructured request should yield 1 task, got %d", len(tasks))
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		title string
		want  plan.TaskCategory
	}{
		{"Create login API endpoint", plan.CategoryBackend},
		{"Create login page", plan.CategoryFrontend},
		{"Test login flow", plan.CategoryTesting},
		{"Design the database schema", plan.CategoryDesign},
		{"Analyze current auth flow", plan.CategoryAnalysis},
		{"Deploy to staging", plan.CategoryIntegration},
		{"Add app icon", plan.CategoryAssets},
		{"Update README", plan.CategoryDocumentation},
		{"Do the thing", plan.CategoryGeneral},
	}
	for _, tt := range tests {
		if got := Categorize(tt.title); got != tt.want {
			t.Errorf("Categorize(%q) = %s, want %s", tt.title, got, tt.want)
		}
	}
}

func TestDecompose_RulesOnly(t *testing.T) {
	d := New(nil, nil)
	p, err := d.Decompose(context.Background(), "Build login:\n1. Create login page\n2. Create login API\n3. Test login")
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("plan invalid: %v", err)
	}

	// Build-style request without an analysis task gets one injected first.
	if len(p.Tasks) != 4 {
		t.Fatalf("expected 4 tasks (analysis injected), got %d", len(p.Tasks))
	}
	if p.Tasks[0].Category != plan.CategoryAnalysis {
		t.Errorf("first task category = %s, want analysis", p.Tasks[0].Category)
	}
	if p.Tasks[len(p.Tasks)-1].Category != plan.CategoryTesting {
		t.Errorf("last task category = %s, want testing", p.Tasks[len(p.Tasks)-1].Category)
	}

	// Category chain: the frontend task depends on the backend task.
	page := taskByTitle(p, "Create login page")
	api := taskByTitle(p, "Create login API")
	if page == nil || api == nil {
		t.Fatal("expected page and API tasks")
	}
	if !page.DependsOn(api.ID) {
		t.Errorf("frontend task must depend on backend task, deps = %v", page.Dependencies)
	}
	if !api.DependsOn(p.Tasks[0].ID) {
		t.Errorf("backend task must depend on analysis, deps = %v", api.Dependencies)
	}
}

func TestDecompose_OracleMerge(t *testing.T) {
	mock := &mockOracle{response: "```json\n" + `{
		"summary": "Login feature",
		"tasks": [
			{"title": "Create login page", "description": "Form with email and password", "category": "frontend", "priority": "high", "estimated_complexity": 3, "files_to_create": ["src/login.html"]},
			{"title": "Add session storage", "description": "Persist tokens", "category": "backend", "priority": "medium", "estimated_complexity": 2}
		]
	}` + "\n```"}

	d := New(mock, nil)
	p, err := d.Decompose(context.Background(), "Build login:\n1. Create login page\n2. Test login")
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if mock.calls != 1 {
		t.Errorf("oracle called %d times, want 1", mock.calls)
	}

	// Same title from both paths: the oracle version wins.
	page := taskByTitle(p, "Create login page")
	if page == nil {
		t.Fatal("login page task missing")
	}
	if page.Description != "Form with email and password" {
		t.Errorf("oracle description lost: %q", page.Description)
	}
	if len(page.FilesToCreate) != 1 || page.FilesToCreate[0] != "src/login.html" {
		t.Errorf("oracle file targets lost: %v", page.FilesToCreate)
	}

	// Rule-only tasks survive the merge.
	if taskByTitle(p, "Test login") == nil {
		t.Error("rule-extracted task dropped")
	}
	if taskByTitle(p, "Add session storage") == nil {
		t.Error("oracle-only task dropped")
	}
}

func TestDecompose_OracleFailureFallsBack(t *testing.T) {
	d := New(&mockOracle{err: errors.New("quota exceeded")}, nil)
	p, err := d.Decompose(context.Background(), "1. Create login page\n2. Test login")
	if err != nil {
		t.Fatalf("oracle failure must not fail decomposition: %v", err)
	}
	if len(p.Tasks) == 0 {
		t.Fatal("rule-based fallback produced no tasks")
	}
}

func TestDecompose_OracleGarbageFallsBack(t *testing.T) {
	d := New(&mockOracle{response: "I cannot help with that."}, nil)
	p, err := d.Decompose(context.Background(), "1. Create login page")
	if err != nil {
		t.Fatalf("unparseable oracle output must not fail decomposition: %v", err)
	}
	if taskByTitle(p, "Create login page") == nil {
		t.Error("rule task missing after oracle garbage")
	}
}

func TestDecompose_EmptyRequest(t *testing.T) {
	d := New(nil, nil)
	_, err := d.Decompose(context.Background(), "   ")
	if err == nil {
		t.Fatal("expected error for empty request")
	}
	var derr *plan.DecompositionError
	if !errors.As(err, &derr) {
		t.Fatalf("expected *DecompositionError, got %T", err)
	}
}

func TestDecompose_PlanIsAcyclic(t *testing.T) {
	d := New(nil, nil)
	p, err := d.Decompose(context.Background(), "Build a dashboard:\n1. Design layout\n2. Create data API\n3. Create dashboard page\n4. Add chart assets\n5. Integrate with auth\n6. Test dashboard\n7. Document usage")
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("plan must be acyclic and well formed: %v", err)
	}
	// Phase ordering holds across the whole plan.
	lastRank := -1
	for _, task := range p.Tasks {
		r := plan.CategoryRank(task.Category)
		if r < 0 {
			continue
		}
		if r < lastRank {
			t.Errorf("task %q (%s) out of phase order", task.Title, task.Category)
		}
		lastRank = r
	}
}

func TestCleanJSONResponse(t *testing.T) {
	in := "```json\n{\"summary\": \"x\"}\n```"
	if got := cleanJSONResponse(in); got != `{"summary": "x"}` {
		t.Errorf("cleanJSONResponse = %q", got)
	}
}
