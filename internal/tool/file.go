package tool

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sghr/warden/internal/model"
	"github.com/sghr/warden/internal/policy"
)

const (
	searchMatchLimit   = 200
	searchLineMaxChars = 300
)

// FileTool performs read/write/search operations confined to a root
// directory. Path containment is re-checked here at execution time; the
// policy engine's verdict is not trusted to have covered the final path.
type FileTool struct {
	root string
}

// NewFileTool creates a file tool rooted at rootDir.
func NewFileTool(rootDir string) *FileTool {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		abs = filepath.Clean(rootDir)
	}
	return &FileTool{root: abs}
}

// Run dispatches on the "op" argument: read, write, or search.
func (t *FileTool) Run(args map[string]any) model.ActionResult {
	op := strings.ToLower(stringArg(args, "op"))
	switch op {
	case "read":
		return t.read(stringArg(args, "path"))
	case "write":
		return t.write(stringArg(args, "path"), stringArg(args, "content"))
	case "search":
		glob := stringArg(args, "glob")
		if glob == "" {
			glob = "*"
		}
		return t.search(stringArg(args, "pattern"), glob)
	default:
		return model.Failure(model.ErrTypeInvalidArgs, fmt.Sprintf("unknown file op: %q", op))
	}
}

func (t *FileTool) resolve(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	resolved, ok := policy.ResolveUnder(t.root, rel)
	if !ok {
		return "", fmt.Errorf("path escapes root: %s", resolved)
	}
	return resolved, nil
}

func (t *FileTool) read(rel string) model.ActionResult {
	path, err := t.resolve(rel)
	if err != nil {
		return model.Failure(model.ErrTypeRead, err.Error())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Failure(model.ErrTypeRead, err.Error())
	}
	return model.ActionResult{OK: true, Stdout: string(data), Artifacts: []string{path}}
}

func (t *FileTool) write(rel, content string) model.ActionResult {
	path, err := t.resolve(rel)
	if err != nil {
		return model.Failure(model.ErrTypeWrite, err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return model.Failure(model.ErrTypeWrite, err.Error())
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return model.Failure(model.ErrTypeWrite, err.Error())
	}
	return model.ActionResult{
		OK:        true,
		Stdout:    fmt.Sprintf("Wrote %d chars", len(content)),
		Artifacts: []string{path},
	}
}

func (t *FileTool) search(pattern, glob string) model.ActionResult {
	if pattern == "" {
		return model.Failure(model.ErrTypeInvalidArgs, "pattern is required")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return model.Failure(model.ErrTypeInvalidArgs, fmt.Sprintf("bad pattern: %v", err))
	}

	matches := make([]map[string]any, 0)
	walkErr := filepath.WalkDir(t.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil // unreadable entries are skipped, not fatal
		}
		if ok, _ := filepath.Match(glob, d.Name()); !ok {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		for idx, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				if len(line) > searchLineMaxChars {
					line = line[:searchLineMaxChars]
				}
				matches = append(matches, map[string]any{
					"path":    path,
					"line":    idx + 1,
					"content": line,
				})
				if len(matches) >= searchMatchLimit {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return model.Failure(model.ErrTypeSearch, walkErr.Error())
	}

	return model.ActionResult{
		OK:      true,
		Payload: map[string]any{"matches": matches},
		Stdout:  fmt.Sprintf("%d matches", len(matches)),
	}
}
