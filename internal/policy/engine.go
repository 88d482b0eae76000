// Package policy evaluates action proposals against the configured authorization
// boundary: a shell command allowlist plus destructive-pattern denials, and a
// root directory that confines all file actions.
package policy

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sghr/warden/internal/model"
)

// blockedShellPatterns are non-negotiable denials. A command matching any of
// them is rejected even when its first token is allowlisted.
var blockedShellPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-rf\b`),
	regexp.MustCompile(`\bdel\s+/[sq]\b`),
	regexp.MustCompile(`\bformat\b`),
	regexp.MustCompile(`\bshutdown\b`),
	regexp.MustCompile(`\breboot\b`),
	regexp.MustCompile(`\bmkfs\b`),
}

// Engine is a pure verdict function over proposals. It performs no I/O and
// never mutates its inputs.
type Engine struct {
	root      string
	allowlist map[string]bool
}

// NewEngine builds an engine confining file actions to rootDir and shell
// actions to the given allowlist. rootDir is cleaned to an absolute path;
// allowlist entries are matched case-insensitively.
func NewEngine(rootDir string, allowedShellCommands []string) *Engine {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		abs = filepath.Clean(rootDir)
	}
	allow := make(map[string]bool, len(allowedShellCommands))
	for _, cmd := range allowedShellCommands {
		allow[strings.ToLower(cmd)] = true
	}
	return &Engine{root: abs, allowlist: allow}
}

// Root returns the configured containment root.
func (e *Engine) Root() string {
	return e.root
}

// Evaluate returns the verdict for a single proposal.
func (e *Engine) Evaluate(p model.ActionProposal) model.PolicyDecision {
	switch p.Tool {
	case model.ToolShell:
		return e.evaluateShell(p)
	case model.ToolFile:
		return e.evaluateFile(p)
	case model.ToolWeb:
		if p.Risk == model.RiskHigh {
			return model.PolicyDecision{
				Status: model.PolicyNeedsExtraConfirm,
				Reason: "High-risk web action requires extra confirmation.",
			}
		}
		return model.PolicyDecision{Status: model.PolicyAllow, Reason: "Allowed web action."}
	default:
		return model.PolicyDecision{Status: model.PolicyDeny, Reason: "Unknown tool."}
	}
}

func (e *Engine) evaluateShell(p model.ActionProposal) model.PolicyDecision {
	command := strings.TrimSpace(stringArg(p.Args, "command"))
	if command == "" {
		return model.PolicyDecision{Status: model.PolicyDeny, Reason: "Shell command is empty."}
	}

	token := strings.ToLower(strings.Fields(command)[0])
	if !e.allowlist[token] {
		return model.PolicyDecision{
			Status: model.PolicyDeny,
			Reason: fmt.Sprintf("Shell command %q is not in allowlist.", token),
		}
	}

	lowered := strings.ToLower(command)
	for _, pattern := range blockedShellPatterns {
		if pattern.MatchString(lowered) {
			return model.PolicyDecision{
				Status: model.PolicyDeny,
				Reason: fmt.Sprintf("Blocked shell pattern matched: %s", pattern.String()),
			}
		}
	}

	if p.Risk == model.RiskHigh {
		return model.PolicyDecision{
			Status: model.PolicyNeedsExtraConfirm,
			Reason: "High-risk shell action requires extra confirmation.",
		}
	}
	return model.PolicyDecision{Status: model.PolicyAllow, Reason: "Allowed shell action."}
}

func (e *Engine) evaluateFile(p model.ActionProposal) model.PolicyDecision {
	rel := stringArg(p.Args, "path")
	if rel == "" {
		return model.PolicyDecision{Status: model.PolicyDeny, Reason: "File action missing path."}
	}

	resolved, ok := ResolveUnder(e.root, rel)
	if !ok {
		return model.PolicyDecision{
			Status: model.PolicyDeny,
			Reason: fmt.Sprintf("Path out of scope: %s", resolved),
		}
	}

	if p.Risk == model.RiskHigh {
		return model.PolicyDecision{
			Status: model.PolicyNeedsExtraConfirm,
			Reason: "High-risk file action requires extra confirmation.",
		}
	}
	return model.PolicyDecision{Status: model.PolicyAllow, Reason: "Allowed file action."}
}

// ResolveUnder joins rel onto root and reports whether the cleaned result is
// still a descendant of root. This is the sole authorization boundary for
// filesystem actions; traversal via ".." or absolute overrides fails it.
func ResolveUnder(root, rel string) (string, bool) {
	// Windows-style separators in oracle-supplied paths must not smuggle a
	// traversal past the check on other platforms.
	rel = strings.ReplaceAll(rel, `\`, string(filepath.Separator))
	// An absolute path replaces the root at join time rather than nesting
	// under it, so it stays in scope only when it already lies under root.
	joined := rel
	if !filepath.IsAbs(rel) {
		joined = filepath.Join(root, rel)
	}
	resolved, err := filepath.Abs(joined)
	if err != nil {
		return joined, false
	}
	if resolved == root {
		return resolved, true
	}
	return resolved, strings.HasPrefix(resolved, root+string(filepath.Separator))
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
