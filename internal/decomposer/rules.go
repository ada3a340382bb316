package decomposer

import (
	"fmt"
	"regexp"
	"strings"

	"planforge/internal/plan"
)

// Rule-based extraction. Always runs, with or without an oracle, so a plan
// can be produced fully offline.

var (
	numberedItemRe = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+(.+)$`)
	bulletItemRe   = regexp.MustCompile(`(?m)^\s*[-*•]\s+(.+)$`)
	pagePatternRe  = regexp.MustCompile(`(?i)\b([a-z][a-z0-9_-]*)\s+(page|screen|view)\b`)
	featureLineRe  = regexp.MustCompile(`(?i)(?:feature|functionality):[ \t]*([^\n]+)`)
)

// ExtractTasks derives tasks from the request text alone: explicit list
// items first, then named UI surfaces and feature clauses. A request with no
// recognizable structure becomes one general task.
func ExtractTasks(request string) []plan.SubTask {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil
	}

	titles := make([]string, 0)
	seen := make(map[string]bool)
	add := func(title string) {
		title = strings.TrimSpace(strings.TrimRight(title, ".;,"))
		if title == "" {
			return
		}
		key := strings.ToLower(title)
		if seen[key] {
			return
		}
		seen[key] = true
		titles = append(titles, title)
	}

	for _, m := range numberedItemRe.FindAllStringSubmatch(request, -1) {
		add(m[1])
	}
	for _, m := range bulletItemRe.FindAllStringSubmatch(request, -1) {
		add(m[1])
	}
	for _, m := range featureLineRe.FindAllStringSubmatch(request, -1) {
		add(m[1])
	}

	// Named UI surfaces become explicit frontend tasks even when buried in
	// prose ("...with a settings page and a profile view").
	for _, m := range pagePatternRe.FindAllStringSubmatch(request, -1) {
		add(fmt.Sprintf("Create %s %s", strings.ToLower(m[1]), strings.ToLower(m[2])))
	}

	if len(titles) == 0 {
		add(request)
	}

	tasks := make([]plan.SubTask, 0, len(titles))
	for _, title := range titles {
		tasks = append(tasks, plan.SubTask{
			Title:               title,
			Description:         title,
			Category:            Categorize(title),
			Priority:            inferPriority(title),
			Status:              plan.TaskPending,
			EstimatedComplexity: estimateComplexity(title),
		})
	}
	return tasks
}

// categoryKeywords maps signal words to categories, checked in order so the
// more specific buckets win over general ones.
var categoryKeywords = []struct {
	category plan.TaskCategory
	words    []string
}{
	{plan.CategoryTesting, []string{"test", "tests", "verify", "validation", "qa"}},
	{plan.CategoryDocumentation, []string{"document", "documentation", "readme", "docs", "changelog"}},
	{plan.CategoryAnalysis, []string{"analyze", "analysis", "research", "investigate", "review", "audit"}},
	{plan.CategoryDesign, []string{"design", "wireframe", "mockup", "architecture", "schema"}},
	{plan.CategoryAssets, []string{"icon", "image", "logo", "asset", "assets", "font", "illustration"}},
	{plan.CategoryIntegration, []string{"integrate", "integration", "deploy", "wire", "connect", "pipeline", "release"}},
	{plan.CategoryFrontend, []string{"page", "screen", "view", "form", "button", "component", "frontend", "css", "style", "layout"}},
	{plan.CategoryBackend, []string{"api", "endpoint", "server", "database", "backend", "auth", "service", "migration", "query", "handler"}},
}

// Categorize buckets a task title by keyword.
func Categorize(title string) plan.TaskCategory {
	lower := strings.ToLower(title)
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if containsWord(lower, w) {
				return ck.category
			}
		}
	}
	return plan.CategoryGeneral
}

func inferPriority(title string) plan.TaskPriority {
	lower := strings.ToLower(title)
	switch {
	case containsWord(lower, "urgent") || containsWord(lower, "critical") || strings.Contains(lower, "asap"):
		return plan.PriorityCritical
	case containsWord(lower, "important") || containsWord(lower, "must"):
		return plan.PriorityHigh
	case containsWord(lower, "optional") || containsWord(lower, "nice") || containsWord(lower, "later"):
		return plan.PriorityLow
	default:
		return plan.PriorityMedium
	}
}

// estimateComplexity is a coarse 1-5 guess from the title alone; the oracle
// path supplies better numbers when available.
func estimateComplexity(title string) int {
	score := 2
	if len(strings.Fields(title)) > 8 {
		score++
	}
	switch Categorize(title) {
	case plan.CategoryBackend, plan.CategoryIntegration:
		score++
	case plan.CategoryDocumentation, plan.CategoryAssets:
		score--
	}
	return clampComplexity(score)
}

func clampComplexity(c int) int {
	if c < 1 {
		return 1
	}
	if c > 5 {
		return 5
	}
	return c
}

// containsWord reports whether lower contains w as a whole word.
func containsWord(lower, w string) bool {
	idx := 0
	for {
		i := strings.Index(lower[idx:], w)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(w)
		beforeOK := start == 0 || !isWordByte(lower[start-1])
		afterOK := end == len(lower) || !isWordByte(lower[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func normalizeCategory(s string) plan.TaskCategory {
	switch plan.TaskCategory(strings.ToLower(strings.TrimSpace(s))) {
	case plan.CategoryAnalysis:
		return plan.CategoryAnalysis
	case plan.CategoryDesign:
		return plan.CategoryDesign
	case plan.CategoryFrontend:
		return plan.CategoryFrontend
	case plan.CategoryBackend:
		return plan.CategoryBackend
	case plan.CategoryIntegration:
		return plan.CategoryIntegration
	case plan.CategoryTesting:
		return plan.CategoryTesting
	case plan.CategoryAssets:
		return plan.CategoryAssets
	case plan.CategoryDocumentation:
		return plan.CategoryDocumentation
	default:
		return plan.CategoryGeneral
	}
}

func normalizePriority(s string) plan.TaskPriority {
	switch plan.TaskPriority(strings.ToLower(strings.TrimSpace(s))) {
	case plan.PriorityCritical:
		return plan.PriorityCritical
	case plan.PriorityHigh:
		return plan.PriorityHigh
	case plan.PriorityLow:
		return plan.PriorityLow
	default:
		return plan.PriorityMedium
	}
}
