// Package model defines the data structures shared between warden's policy
// engine, step loop, tools, and run manager.
package model

import "fmt"

// ToolName identifies one of the local capabilities an oracle may target.
type ToolName string

const (
	ToolFile  ToolName = "file"
	ToolShell ToolName = "shell"
	ToolWeb   ToolName = "web"
)

var validTools = map[ToolName]bool{
	ToolFile:  true,
	ToolShell: true,
	ToolWeb:   true,
}

// Valid reports whether the tool name is one of the known capabilities.
func (t ToolName) Valid() bool {
	return validTools[t]
}

// RiskLevel is the oracle's self-assessed risk for a proposed action.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

var validRiskLevels = map[RiskLevel]bool{
	RiskLow:    true,
	RiskMedium: true,
	RiskHigh:   true,
}

// ActionProposal is a single concrete tool invocation request emitted by the
// oracle. Immutable once issued.
type ActionProposal struct {
	Tool   ToolName       `json:"tool_name"`
	Reason string         `json:"reason"`
	Args   map[string]any `json:"args"`
	Risk   RiskLevel      `json:"risk_level"`
}

// Validate checks structural well-formedness and defaults the risk level to
// medium when the oracle omitted it.
func (p *ActionProposal) Validate() error {
	if !p.Tool.Valid() {
		return fmt.Errorf("unknown tool name: %q", p.Tool)
	}
	if p.Reason == "" {
		return fmt.Errorf("proposal reason must be non-empty")
	}
	if p.Risk == "" {
		p.Risk = RiskMedium
	}
	if !validRiskLevels[p.Risk] {
		return fmt.Errorf("unknown risk level: %q", p.Risk)
	}
	if p.Args == nil {
		p.Args = map[string]any{}
	}
	return nil
}

// Error type tags carried by ActionResult. The retryable subset is consulted
// by the step loop's retry policy; everything else fails the attempt outright.
const (
	ErrTypeTimeout      = "timeout"
	ErrTypeWeb          = "web_error"
	ErrTypeShell        = "shell_error"
	ErrTypeException    = "exception"
	ErrTypeInvalidArgs  = "invalid_args"
	ErrTypePolicyDenied = "policy_denied"
	ErrTypeUnknownTool  = "unknown_tool"
	ErrTypeRead         = "read_error"
	ErrTypeWrite        = "write_error"
	ErrTypeSearch       = "search_error"
)

var retryableErrTypes = map[string]bool{
	ErrTypeTimeout:   true,
	ErrTypeWeb:       true,
	ErrTypeShell:     true,
	ErrTypeException: true,
}

// IsRetryableErrType reports whether a failed execution carrying the given
// error tag may be re-attempted.
func IsRetryableErrType(tag string) bool {
	return retryableErrTypes[tag]
}

// ActionResult is the outcome of one tool execution.
type ActionResult struct {
	OK        bool           `json:"ok"`
	Payload   map[string]any `json:"payload,omitempty"`
	Stdout    string         `json:"stdout"`
	Stderr    string         `json:"stderr"`
	Artifacts []string       `json:"artifacts,omitempty"`
	ErrorType string         `json:"error_type,omitempty"`
}

// Failure builds a failed ActionResult with the given tag and stderr text.
func Failure(tag, stderr string) ActionResult {
	return ActionResult{OK: false, ErrorType: tag, Stderr: stderr}
}
