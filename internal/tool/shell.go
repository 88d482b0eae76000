package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sghr/warden/internal/model"
)

const (
	// DefaultShellTimeout bounds a single command execution.
	DefaultShellTimeout = 30 * time.Second
	outputTailChars     = 8000
)

// ShellTool executes allowlisted commands in a fixed working directory. The
// allowlist is re-checked here at execution time; a proposal that slipped
// past the policy engine still cannot run an unlisted command.
type ShellTool struct {
	cwd       string
	allowlist map[string]bool
	timeout   time.Duration
}

// NewShellTool creates a shell tool running commands in cwd, restricted to
// allowedCommands (matched case-insensitively on the first token).
func NewShellTool(cwd string, allowedCommands []string, timeout time.Duration) *ShellTool {
	if timeout <= 0 {
		timeout = DefaultShellTimeout
	}
	allow := make(map[string]bool, len(allowedCommands))
	for _, c := range allowedCommands {
		allow[strings.ToLower(c)] = true
	}
	return &ShellTool{cwd: cwd, allowlist: allow, timeout: timeout}
}

// Run executes the "command" argument. An optional "timeout_seconds"
// argument overrides the configured per-call timeout.
func (t *ShellTool) Run(args map[string]any) model.ActionResult {
	command := strings.TrimSpace(stringArg(args, "command"))
	if command == "" {
		return model.Failure(model.ErrTypeInvalidArgs, "Empty command")
	}

	parts := splitCommand(command)
	if len(parts) == 0 {
		return model.Failure(model.ErrTypeInvalidArgs, "Empty command")
	}
	token := strings.ToLower(parts[0])
	if !t.allowlist[token] {
		return model.Failure(model.ErrTypePolicyDenied, fmt.Sprintf("Command %q not allowed", token))
	}

	timeout := t.timeout
	if secs := intArg(args, "timeout_seconds", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = t.cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return model.Failure(model.ErrTypeTimeout, "Command timed out")
	}

	returncode := 0
	if cmd.ProcessState != nil {
		returncode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// The command never ran (not found, permission, ...).
			return model.Failure(model.ErrTypeShell, err.Error())
		}
	}

	return model.ActionResult{
		OK:      err == nil,
		Stdout:  tailString(stdout.String(), outputTailChars),
		Stderr:  tailString(stderr.String(), outputTailChars),
		Payload: map[string]any{"returncode": returncode},
	}
}

// splitCommand splits a command line into argv words. Quoted spans (single or
// double) stay one word with the quotes removed, so arguments like
// `python -c "print(1)"` survive the split. A dangling quote runs to the end
// of the line. No shell is involved; this is splitting only, not expansion.
func splitCommand(s string) []string {
	var words []string
	var cur strings.Builder
	var quote rune
	inWord := false

	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t' || r == '\n':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words
}

func tailString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
