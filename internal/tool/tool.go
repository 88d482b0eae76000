// Package tool implements the local capabilities a run may exercise: root-
// confined file I/O, allowlisted shell execution, and web search. Tools never
// return Go errors to the step loop; every failure is mapped into an
// ActionResult with an error-type tag.
package tool

import (
	"fmt"

	"github.com/sghr/warden/internal/model"
)

// Tool executes one action synchronously. Implementations must not panic;
// the Runner additionally recovers panics at the dispatch boundary.
type Tool interface {
	Run(args map[string]any) model.ActionResult
}

// Runner dispatches execution by tool name. The set of tools is closed; an
// unknown name yields an unknown_tool failure rather than an error.
type Runner struct {
	file  Tool
	shell Tool
	web   Tool
}

// NewRunner wires the three capability implementations.
func NewRunner(file, shell, web Tool) *Runner {
	return &Runner{file: file, shell: shell, web: web}
}

// Execute runs the named tool. Panics escaping a tool are converted into an
// exception-tagged failure so the step loop never needs tool-specific
// recovery.
func (r *Runner) Execute(name model.ToolName, args map[string]any) (result model.ActionResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = model.Failure(model.ErrTypeException, fmt.Sprintf("tool panic: %v", rec))
		}
	}()

	switch name {
	case model.ToolFile:
		return r.file.Run(args)
	case model.ToolShell:
		return r.shell.Run(args)
	case model.ToolWeb:
		return r.web.Run(args)
	default:
		return model.Failure(model.ErrTypeUnknownTool, string(name))
	}
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func intArg(args map[string]any, key string, fallback int) int {
	if args == nil {
		return fallback
	}
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		// JSON numbers decode as float64.
		return int(v)
	default:
		return fallback
	}
}
