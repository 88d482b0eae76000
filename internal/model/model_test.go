package model

import "testing"

func TestToolNameValid(t *testing.T) {
	tests := []struct {
		name  ToolName
		valid bool
	}{
		{ToolFile, true},
		{ToolShell, true},
		{ToolWeb, true},
		{ToolName("db"), false},
		{ToolName(""), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			if got := tt.name.Valid(); got != tt.valid {
				t.Errorf("Valid(%q) = %v, want %v", tt.name, got, tt.valid)
			}
		})
	}
}

func TestProposalValidate(t *testing.T) {
	p := ActionProposal{Tool: ToolShell, Reason: "list files"}
	if err := p.Validate(); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
	if p.Risk != RiskMedium {
		t.Errorf("risk should default to medium, got %q", p.Risk)
	}
	if p.Args == nil {
		t.Error("args should default to an empty map")
	}
}

func TestProposalValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		p    ActionProposal
	}{
		{"unknown tool", ActionProposal{Tool: "db", Reason: "x"}},
		{"empty reason", ActionProposal{Tool: ToolFile}},
		{"bad risk", ActionProposal{Tool: ToolWeb, Reason: "x", Risk: "extreme"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.p.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestIsRetryableErrType(t *testing.T) {
	tests := []struct {
		tag       string
		retryable bool
	}{
		{ErrTypeTimeout, true},
		{ErrTypeWeb, true},
		{ErrTypeShell, true},
		{ErrTypeException, true},
		{ErrTypeInvalidArgs, false},
		{ErrTypePolicyDenied, false},
		{ErrTypeUnknownTool, false},
		{ErrTypeRead, false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			if got := IsRetryableErrType(tt.tag); got != tt.retryable {
				t.Errorf("IsRetryableErrType(%q) = %v, want %v", tt.tag, got, tt.retryable)
			}
		})
	}
}

func TestParseApprovalDecision(t *testing.T) {
	tests := []struct {
		raw  string
		want ApprovalDecision
	}{
		{"y", ApprovalYes},
		{"yes", ApprovalYes},
		{"YES", ApprovalYes},
		{" y \n", ApprovalYes},
		{"ad", ApprovalAlwaysDeny},
		{"n", ApprovalNo},
		{"no", ApprovalNo},
		{"", ApprovalNo},
		{"maybe", ApprovalNo},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ParseApprovalDecision(tt.raw); got != tt.want {
				t.Errorf("ParseApprovalDecision(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestValidApprovalAnswer(t *testing.T) {
	for _, ok := range []string{"y", "n", "ad", "yes", "no", "Y", " no "} {
		if !ValidApprovalAnswer(ok) {
			t.Errorf("ValidApprovalAnswer(%q) = false, want true", ok)
		}
	}
	for _, bad := range []string{"", "always", "deny", "yess"} {
		if ValidApprovalAnswer(bad) {
			t.Errorf("ValidApprovalAnswer(%q) = true, want false", bad)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status   RunStatus
		terminal bool
	}{
		{StatusRunning, false},
		{StatusWaitingApproval, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := IsTerminal(tt.status); got != tt.terminal {
				t.Errorf("IsTerminal(%q) = %v, want %v", tt.status, got, tt.terminal)
			}
		})
	}
}
