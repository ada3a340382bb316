// Package decomposer turns a natural-language request into a validated task
// plan. Two extraction paths run per request: an oracle proposal when one is
// configured, and rule-based extraction that always runs. Their outputs are
// merged by title, normalized, and chained into a dependency DAG.
package decomposer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"planforge/internal/logging"
	"planforge/internal/oracle"
	"planforge/internal/plan"
	"planforge/internal/workspace"
)

// Decomposer builds task plans from requests.
type Decomposer struct {
	oracle   oracle.Client
	gatherer *workspace.Gatherer
}

// New creates a decomposer. The oracle may be a NopClient; the gatherer may
// be nil when no workspace context is available.
func New(client oracle.Client, gatherer *workspace.Gatherer) *Decomposer {
	if client == nil {
		client = oracle.NopClient{}
	}
	return &Decomposer{oracle: client, gatherer: gatherer}
}

// Decompose produces a validated plan for the request. The oracle path is
// best-effort: any oracle failure silently downgrades to rule-based
// extraction alone. Only zero tasks from both paths is an error.
func (d *Decomposer) Decompose(ctx context.Context, request string) (*plan.TaskPlan, error) {
	timer := logging.StartTimer(logging.CategoryDecompose, "Decompose")
	defer timer.StopWithInfo()

	request = strings.TrimSpace(request)
	if request == "" {
		return nil, &plan.DecompositionError{Request: request, Reason: "empty request"}
	}

	logging.Decompose("decomposing request: %q", truncate(request, 120))

	oracleTasks := d.oracleProposal(ctx, request)
	ruleTasks := ExtractTasks(request)
	logging.DecomposeDebug("oracle proposed %d tasks, rules extracted %d", len(oracleTasks), len(ruleTasks))

	tasks := mergeByTitle(oracleTasks, ruleTasks)
	if len(tasks) == 0 {
		return nil, &plan.DecompositionError{Request: request, Reason: "no extractable tasks"}
	}

	tasks = normalize(request, tasks)
	assignIDs(tasks)
	assignDependencies(tasks)

	p := &plan.TaskPlan{
		ID:              fmt.Sprintf("plan_%s", uuid.New().String()[:8]),
		OriginalRequest: request,
		Summary:         summarize(request),
		CreatedAt:       time.Now(),
		Tasks:           tasks,
	}
	p.Recount()

	if err := p.Validate(); err != nil {
		return nil, err
	}

	logging.Decompose("plan %s: %d tasks", p.ID, p.TotalTasks)
	return p, nil
}

// rawPlan is the oracle's proposed plan structure.
type rawPlan struct {
	Summary string    `json:"summary"`
	Tasks   []rawTask `json:"tasks"`
}

type rawTask struct {
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	Category            string   `json:"category"`
	Priority            string   `json:"priority"`
	EstimatedComplexity int      `json:"estimated_complexity"`
	FilesToCreate       []string `json:"files_to_create"`
	FilesToModify       []string `json:"files_to_modify"`
}

// oracleProposal asks the oracle for a task breakdown. Returns nil on any
// failure; callers must not distinguish "no oracle" from "oracle failed".
func (d *Decomposer) oracleProposal(ctx context.Context, request string) []plan.SubTask {
	var wsSummary string
	if d.gatherer != nil {
		if wctx, err := d.gatherer.Gather(); err == nil {
			wsSummary = wctx.Summary()
		}
	}

	prompt := buildPrompt(request, wsSummary)
	resp, err := d.oracle.Complete(ctx, prompt)
	if err != nil {
		logging.DecomposeDebug("oracle unavailable, using rules only: %v", err)
		return nil
	}

	var raw rawPlan
	if err := json.Unmarshal([]byte(cleanJSONResponse(resp)), &raw); err != nil {
		logging.DecomposeWarn("oracle returned unparseable plan, using rules only: %v", err)
		return nil
	}

	tasks := make([]plan.SubTask, 0, len(raw.Tasks))
	for _, rt := range raw.Tasks {
		title := strings.TrimSpace(rt.Title)
		if title == "" {
			continue
		}
		tasks = append(tasks, plan.SubTask{
			Title:               title,
			Description:         strings.TrimSpace(rt.Description),
			Category:            normalizeCategory(rt.Category),
			Priority:            normalizePriority(rt.Priority),
			Status:              plan.TaskPending,
			EstimatedComplexity: clampComplexity(rt.EstimatedComplexity),
			FilesToCreate:       rt.FilesToCreate,
			FilesToModify:       rt.FilesToModify,
		})
	}
	return tasks
}

func buildPrompt(request, wsSummary string) string {
	var b strings.Builder
	b.WriteString("You are a project planning expert. Break this request into concrete subtasks.\n\n")
	fmt.Fprintf(&b, "REQUEST: %s\n\n", request)
	if wsSummary != "" {
		b.WriteString("WORKSPACE:\n")
		b.WriteString(wsSummary)
		b.WriteString("\n")
	}
	b.WriteString(`Categories: analysis, design, backend, frontend, assets, integration, testing, documentation, general
Priorities: critical, high, medium, low
Complexity: 1-5

Output JSON:
{
  "summary": "short plan title",
  "tasks": [
    {
      "title": "Specific task title",
      "description": "What to do and why",
      "category": "backend",
      "priority": "high",
      "estimated_complexity": 3,
      "files_to_create": ["src/login.js"],
      "files_to_modify": []
    }
  ]
}

Output ONLY valid JSON:`)
	return b.String()
}

// mergeByTitle combines both extraction paths, deduplicating on
// case-insensitive title. Oracle tasks win: they carry richer descriptions
// and file targets.
func mergeByTitle(oracleTasks, ruleTasks []plan.SubTask) []plan.SubTask {
	merged := make([]plan.SubTask, 0, len(oracleTasks)+len(ruleTasks))
	seen := make(map[string]bool)
	for _, t := range oracleTasks {
		key := strings.ToLower(strings.TrimSpace(t.Title))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, t)
	}
	for _, t := range ruleTasks {
		key := strings.ToLower(strings.TrimSpace(t.Title))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, t)
	}
	return merged
}

// buildVerbs trigger the analysis-first / testing-last normalization.
var buildVerbs = []string{"build", "create", "develop", "implement", "make", "add"}

// normalize injects a leading analysis task and a trailing testing task for
// build-style requests that lack them, then orders tasks by category phase.
func normalize(request string, tasks []plan.SubTask) []plan.SubTask {
	if !hasBuildVerb(request) || len(tasks) == 0 {
		return sortByPhase(tasks)
	}

	hasAnalysis := false
	hasTesting := false
	for _, t := range tasks {
		switch t.Category {
		case plan.CategoryAnalysis:
			hasAnalysis = true
		case plan.CategoryTesting:
			hasTesting = true
		}
	}

	if !hasAnalysis {
		tasks = append([]plan.SubTask{{
			Title:               "Analyze requirements and existing code",
			Description:         fmt.Sprintf("Review the workspace and clarify what %q requires before building.", truncate(request, 80)),
			Category:            plan.CategoryAnalysis,
			Priority:            plan.PriorityHigh,
			Status:              plan.TaskPending,
			EstimatedComplexity: 1,
		}}, tasks...)
	}
	if !hasTesting {
		tasks = append(tasks, plan.SubTask{
			Title:               "Test the implemented functionality",
			Description:         "Exercise the new behavior end to end and confirm the request is satisfied.",
			Category:            plan.CategoryTesting,
			Priority:            plan.PriorityHigh,
			Status:              plan.TaskPending,
			EstimatedComplexity: 2,
		})
	}

	return sortByPhase(tasks)
}

func hasBuildVerb(request string) bool {
	lower := strings.ToLower(request)
	for _, v := range buildVerbs {
		if containsWord(lower, v) {
			return true
		}
	}
	return false
}

// sortByPhase stable-sorts tasks by category phase rank. General tasks keep
// their extraction order relative to everything else.
func sortByPhase(tasks []plan.SubTask) []plan.SubTask {
	out := make([]plan.SubTask, len(tasks))
	copy(out, tasks)
	// Insertion sort keeps this dependency-free and stable; plans are small.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && phaseLess(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func phaseLess(a, b plan.SubTask) bool {
	ra, rb := plan.CategoryRank(a.Category), plan.CategoryRank(b.Category)
	if ra < 0 || rb < 0 {
		return false // general tasks never reorder
	}
	return ra < rb
}

func assignIDs(tasks []plan.SubTask) {
	for i := range tasks {
		tasks[i].ID = fmt.Sprintf("task_%d", i+1)
		tasks[i].Status = plan.TaskPending
		tasks[i].Dependencies = nil
	}
}

// assignDependencies chains tasks by category phase: each task depends on
// the most recent task of every earlier phase seen so far. General tasks
// take no phase dependencies and contribute none.
func assignDependencies(tasks []plan.SubTask) {
	lastByCategory := make(map[plan.TaskCategory]string)
	for i := range tasks {
		t := &tasks[i]
		rank := plan.CategoryRank(t.Category)
		if rank >= 0 {
			for _, cat := range plan.CategoryOrder[:rank] {
				if id, ok := lastByCategory[cat]; ok {
					t.Dependencies = append(t.Dependencies, id)
				}
			}
			lastByCategory[t.Category] = t.ID
		}
	}
}

func summarize(request string) string {
	return truncate(request, 80)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// cleanJSONResponse removes markdown code fences from a JSON response.
func cleanJSONResponse(resp string) string {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	return strings.TrimSpace(resp)
}
