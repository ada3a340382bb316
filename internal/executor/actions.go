package executor

import (
	"fmt"
	"path"
	"strings"

	"planforge/internal/plan"
)

// ActionType enumerates what the executor can do for a task.
type ActionType string

const (
	ActionCreateFile ActionType = "create_file" // write a new file from a template
	ActionModifyFile ActionType = "modify_file" // existing file, needs a human edit
	ActionRunCommand ActionType = "run_command" // shell command inside the sandbox
	ActionAnalyze    ActionType = "analyze"     // inspect the workspace, record findings
	ActionManual     ActionType = "manual"      // no derivable side effect
)

// Action is one executable step derived from a task.
type Action struct {
	Type        ActionType `json:"type"`
	Target      string     `json:"target,omitempty"`  // file path for file actions
	Command     string     `json:"command,omitempty"` // for run_command
	Content     []byte     `json:"-"`                 // for create_file
	Description string     `json:"description"`

	// ExpectedExit is the exit code a run_command action must produce to
	// verify. Zero unless the task declares otherwise.
	ExpectedExit int `json:"expected_exit,omitempty"`
}

// commandPrefixes introduce an explicit backtick-quoted command in a task
// description ("run `go test ./...`").
var commandPrefixes = []string{"run ", "execute "}

// DeriveActions maps a task onto concrete steps. Declared file targets win;
// category heuristics fill in when the task declares nothing.
func DeriveActions(t *plan.SubTask) []Action {
	actions := make([]Action, 0, len(t.FilesToCreate)+len(t.FilesToModify)+1)

	for _, f := range t.FilesToCreate {
		actions = append(actions, Action{
			Type:        ActionCreateFile,
			Target:      f,
			Content:     templateFor(f, t),
			Description: fmt.Sprintf("create %s", f),
		})
	}
	for _, f := range t.FilesToModify {
		actions = append(actions, Action{
			Type:        ActionModifyFile,
			Target:      f,
			Description: fmt.Sprintf("modify %s", f),
		})
	}

	if cmd := explicitCommand(t); cmd != "" {
		actions = append(actions, Action{
			Type:        ActionRunCommand,
			Command:     cmd,
			Description: fmt.Sprintf("run %q", cmd),
		})
	}

	if len(actions) > 0 {
		return actions
	}

	// Nothing declared: fall back on the category. Frontend and backend
	// tasks yield a starter artifact; anything else needs a human.
	switch t.Category {
	case plan.CategoryAnalysis:
		return []Action{{Type: ActionAnalyze, Description: "inspect workspace and record findings"}}
	case plan.CategoryFrontend:
		return []Action{deriveFileAction(t, ".html")}
	case plan.CategoryBackend:
		return []Action{deriveFileAction(t, ".js")}
	default:
		return []Action{{Type: ActionManual, Description: "no derivable side effect, requires manual completion"}}
	}
}

func deriveFileAction(t *plan.SubTask, ext string) Action {
	target := slugFileName(t.Title, ext)
	return Action{
		Type:        ActionCreateFile,
		Target:      target,
		Content:     templateFor(target, t),
		Description: fmt.Sprintf("create %s", target),
	}
}

// explicitCommand pulls a command out of the description when the task spells
// one in backticks after "run" or "execute".
func explicitCommand(t *plan.SubTask) string {
	desc := t.Description
	lower := strings.ToLower(desc)
	for _, prefix := range commandPrefixes {
		i := strings.Index(lower, prefix+"`")
		if i < 0 {
			continue
		}
		rest := desc[i+len(prefix)+1:]
		if j := strings.Index(rest, "`"); j > 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	return ""
}

// slugFileName builds a safe relative filename from a task title.
func slugFileName(title, ext string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return '_'
		default:
			return -1
		}
	}, slug)
	slug = strings.Trim(slug, "_")
	if slug == "" {
		slug = "task"
	}
	return slug + ext
}

// templateFor produces starter content for a created file, keyed by
// extension. Deliberately minimal; the point is a verifiable artifact, not
// generated code.
func templateFor(file string, t *plan.SubTask) []byte {
	header := fmt.Sprintf("%s\n\n%s", t.Title, t.Description)
	switch strings.ToLower(path.Ext(file)) {
	case ".html":
		return []byte(fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <title>%s</title>
</head>
<body>
  <!-- %s -->
</body>
</html>
`, t.Title, t.Description))
	case ".js", ".ts":
		return []byte(fmt.Sprintf("// %s\n// %s\n", t.Title, t.Description))
	case ".go":
		return []byte(fmt.Sprintf("// %s\n// %s\npackage main\n", t.Title, t.Description))
	case ".py":
		return []byte(fmt.Sprintf("# %s\n# %s\n", t.Title, t.Description))
	case ".css":
		return []byte(fmt.Sprintf("/* %s */\n", t.Title))
	case ".md":
		return []byte(fmt.Sprintf("# %s\n\n%s\n", t.Title, t.Description))
	default:
		return []byte(header + "\n")
	}
}
