package model

import "strings"

// DecisionKind discriminates the oracle's per-step output.
type DecisionKind string

const (
	DecisionAction DecisionKind = "action"
	DecisionFinal  DecisionKind = "final"
)

// AgentDecision is exactly one oracle output per step: either a proposed
// action or a final textual response.
type AgentDecision struct {
	Kind          DecisionKind    `json:"kind"`
	Action        *ActionProposal `json:"action,omitempty"`
	FinalResponse string          `json:"final_response,omitempty"`
}

// FinalDecision wraps a text into a terminal decision. The oracle contract
// uses this to absorb transport and parse failures.
func FinalDecision(text string) AgentDecision {
	return AgentDecision{Kind: DecisionFinal, FinalResponse: text}
}

// PolicyStatus is the policy engine's verdict for a proposal.
type PolicyStatus string

const (
	PolicyAllow             PolicyStatus = "allow"
	PolicyDeny              PolicyStatus = "deny"
	PolicyNeedsExtraConfirm PolicyStatus = "needs_extra_confirmation"
)

// PolicyDecision pairs a verdict with its human-readable reason.
type PolicyDecision struct {
	Status PolicyStatus `json:"status"`
	Reason string       `json:"reason"`
}

// ApprovalStage distinguishes the mandatory first approval from the extra
// confirmation requested for high-risk or strict-mode steps.
type ApprovalStage string

const (
	StageInitial ApprovalStage = "initial"
	StageExtra   ApprovalStage = "extra"
)

// ApprovalDecision is the human answer obtained through an approval gate.
type ApprovalDecision string

const (
	ApprovalYes        ApprovalDecision = "yes"
	ApprovalNo         ApprovalDecision = "no"
	ApprovalAlwaysDeny ApprovalDecision = "always_deny"
)

// ParseApprovalDecision maps a raw answer string to a decision. Anything that
// is not an explicit approval or always-deny counts as a denial.
func ParseApprovalDecision(raw string) ApprovalDecision {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "y", "yes":
		return ApprovalYes
	case "ad":
		return ApprovalAlwaysDeny
	default:
		return ApprovalNo
	}
}

// ValidApprovalAnswer reports whether raw is one of the answers the approve
// endpoint accepts (y/n/ad/yes/no).
func ValidApprovalAnswer(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "y", "yes", "n", "no", "ad":
		return true
	default:
		return false
	}
}

// PendingApproval exists only while a run is suspended awaiting a decision.
// Exactly one per run at a time.
type PendingApproval struct {
	RequestID string         `json:"request_id"`
	Tool      ToolName       `json:"tool_name"`
	Reason    string         `json:"reason"`
	Args      map[string]any `json:"args"`
	Stage     ApprovalStage  `json:"stage"`
}
