// Package workspace inspects the project directory a plan will execute in:
// what kind of project it is, which files already exist, and where the
// engine's own state lives. Results feed the decomposer's prompts and the
// executor's create-vs-modify decisions.
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"planforge/internal/logging"
)

// StateDirName is the engine's dot-directory inside the workspace.
const StateDirName = ".planforge"

// maxTrackedFiles caps the file inventory so huge monorepos do not balloon
// prompts or memory. Detection still sees every path; only the stored list
// is capped.
const maxTrackedFiles = 2000

// ProjectType classifies the workspace by its marker files.
type ProjectType string

const (
	ProjectNode    ProjectType = "node"
	ProjectGo      ProjectType = "go"
	ProjectRust    ProjectType = "rust"
	ProjectPython  ProjectType = "python"
	ProjectJava    ProjectType = "java"
	ProjectUnknown ProjectType = "unknown"
)

// markerFiles maps detection files to project types, in priority order.
var markerFiles = []struct {
	name string
	typ  ProjectType
}{
	{"package.json", ProjectNode},
	{"go.mod", ProjectGo},
	{"Cargo.toml", ProjectRust},
	{"pyproject.toml", ProjectPython},
	{"requirements.txt", ProjectPython},
	{"pom.xml", ProjectJava},
	{"build.gradle", ProjectJava},
}

// skipDirs are never descended into during a scan.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
	".venv":        true,
	StateDirName:   true,
}

// Context is a snapshot of the workspace at gather time.
type Context struct {
	Root        string      `json:"root"`
	ProjectType ProjectType `json:"project_type"`
	Markers     []string    `json:"markers,omitempty"`
	FileCount   int         `json:"file_count"`
	Files       []string    `json:"files"` // relative paths, capped
	GatheredAt  time.Time   `json:"gathered_at"`

	paths map[string]bool
}

// HasPath reports whether the given workspace-relative path existed at
// gather time.
func (c *Context) HasPath(rel string) bool {
	return c.paths[filepath.ToSlash(rel)]
}

// Summary renders a compact description for inclusion in oracle prompts.
func (c *Context) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project type: %s\n", c.ProjectType)
	fmt.Fprintf(&b, "Files: %d\n", c.FileCount)
	if len(c.Markers) > 0 {
		fmt.Fprintf(&b, "Markers: %s\n", strings.Join(c.Markers, ", "))
	}
	show := c.Files
	if len(show) > 50 {
		show = show[:50]
	}
	for _, f := range show {
		fmt.Fprintf(&b, "  %s\n", f)
	}
	if len(c.Files) > 50 {
		fmt.Fprintf(&b, "  ... and %d more\n", len(c.Files)-50)
	}
	return b.String()
}

// Gatherer scans a workspace and caches the result until invalidated.
type Gatherer struct {
	root string

	mu     sync.Mutex
	cached *Context
	dirty  bool
}

// NewGatherer creates a gatherer rooted at the given directory.
func NewGatherer(root string) *Gatherer {
	return &Gatherer{root: root, dirty: true}
}

// Root returns the workspace root.
func (g *Gatherer) Root() string {
	return g.root
}

// Gather returns the current workspace context, rescanning only when the
// cache has been invalidated.
func (g *Gatherer) Gather() (*Context, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cached != nil && !g.dirty {
		return g.cached, nil
	}

	timer := logging.StartTimer(logging.CategoryWorkspace, "Gather")
	defer timer.StopWithThreshold(2 * time.Second)

	ctx, err := scan(g.root)
	if err != nil {
		return nil, err
	}
	g.cached = ctx
	g.dirty = false
	logging.Workspace("gathered context: type=%s files=%d", ctx.ProjectType, ctx.FileCount)
	return ctx, nil
}

// Invalidate marks the cache stale. The next Gather rescans.
func (g *Gatherer) Invalidate() {
	g.mu.Lock()
	g.dirty = true
	g.mu.Unlock()
	logging.WorkspaceDebug("context cache invalidated")
}

func scan(root string) (*Context, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", root)
	}

	ctx := &Context{
		Root:        root,
		ProjectType: ProjectUnknown,
		GatheredAt:  time.Now(),
		paths:       make(map[string]bool),
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			logging.WorkspaceDebug("skipping unreadable path %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		ctx.paths[rel] = true
		ctx.FileCount++
		if len(ctx.Files) < maxTrackedFiles {
			ctx.Files = append(ctx.Files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("workspace scan failed: %w", err)
	}
	sort.Strings(ctx.Files)

	// Project type: first marker wins; all found markers are recorded.
	for _, m := range markerFiles {
		if ctx.paths[m.name] {
			ctx.Markers = append(ctx.Markers, m.name)
			if ctx.ProjectType == ProjectUnknown {
				ctx.ProjectType = m.typ
			}
		}
	}

	return ctx, nil
}

// StateDir returns (and creates) the engine state directory for a workspace.
func StateDir(root string) (string, error) {
	dir := filepath.Join(root, StateDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create state dir: %w", err)
	}
	return dir, nil
}
