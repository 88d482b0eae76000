// Package orchestrator drives one run: it turns each oracle decision into a
// policy verdict, an approval outcome, and a tool execution, recording every
// step in the session transcript and the audit log.
package orchestrator

import (
	"fmt"
	"log"

	"github.com/sghr/warden/internal/approval"
	"github.com/sghr/warden/internal/events"
	"github.com/sghr/warden/internal/model"
	"github.com/sghr/warden/internal/oracle"
	"github.com/sghr/warden/internal/policy"
	"github.com/sghr/warden/internal/session"
	"github.com/sghr/warden/internal/tool"
)

const (
	DefaultMaxSteps   = 20
	DefaultMaxRetries = 1

	// ApprovalModeStrict forces the extra confirmation stage on every step.
	ApprovalModeStrict = "strict"
	ApprovalModeNormal = "normal"

	extraConfirmationReason = "Extra confirmation required for high-risk/strict mode."
)

// RunConfig bounds a single run.
type RunConfig struct {
	MaxSteps     int
	MaxRetries   int
	ApprovalMode string // strict|normal
	TeamMode     bool
}

// Orchestrator executes the step loop for one run. It is not safe for
// concurrent use; the always-deny set accumulates across the steps of the
// run that owns it.
type Orchestrator struct {
	decider oracle.Decider
	policy  *policy.Engine
	runner  *tool.Runner
	audit   *events.AuditLogger
	logger  *log.Logger

	alwaysDeny map[model.ToolName]bool
}

// New builds an orchestrator for one run. audit may be nil (no audit trail)
// and logger may be nil (no diagnostics).
func New(decider oracle.Decider, pol *policy.Engine, runner *tool.Runner, audit *events.AuditLogger, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		decider:    decider,
		policy:     pol,
		runner:     runner,
		audit:      audit,
		logger:     logger,
		alwaysDeny: make(map[model.ToolName]bool),
	}
}

// Run executes the step loop until the oracle produces a final response or
// the step budget is exhausted, and returns the run's terminal text. The
// approval gate may block the calling goroutine for as long as its variant
// allows.
func (o *Orchestrator) Run(sess *session.State, cfg RunConfig, gate approval.Gate) string {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	sess.AddMessage("user", sess.Goal)

	for step := 1; step <= cfg.MaxSteps; step++ {
		decision, metrics := o.decider.Decide(sess.Goal, sess.PromptContext(), cfg.TeamMode)
		sess.AddEvent("model_metrics", metrics)
		o.audit.LogBestEffort(step, "model_metrics", metrics)

		if decision.Kind == model.DecisionFinal {
			finalText := decision.FinalResponse
			if finalText == "" {
				finalText = "No final response."
			}
			sess.AddMessage("assistant", finalText)
			sess.AddEvent("final", map[string]any{"text": finalText})
			o.audit.LogBestEffort(step, "final", map[string]any{"text": finalText})
			return finalText
		}

		proposal := decision.Action
		if proposal == nil {
			// Protocol violation: the oracle claimed an action without one.
			msg := "Model returned action kind without action payload."
			sess.AddEvent("error", map[string]any{"msg": msg})
			o.audit.LogBestEffort(step, "error", map[string]any{"msg": msg})
			o.logf("protocol violation at step %d: %s", step, msg)
			return msg
		}

		if o.alwaysDeny[proposal.Tool] {
			denyMsg := fmt.Sprintf("Tool '%s' is always denied for this session.", proposal.Tool)
			sess.AddEvent("approval_denied", map[string]any{"reason": denyMsg})
			o.audit.LogBestEffort(step, "approval_denied", map[string]any{"reason": denyMsg})
			continue
		}

		verdict := o.policy.Evaluate(*proposal)
		verdictData := map[string]any{"status": string(verdict.Status), "reason": verdict.Reason}
		sess.AddEvent("policy", verdictData)
		o.audit.LogBestEffort(step, "policy", verdictData)
		if verdict.Status == model.PolicyDeny {
			continue
		}

		// Every non-denied proposal requires an initial approval, even
		// low-risk ones.
		if !o.approve(gate, proposal.Tool, proposal.Reason, proposal.Args, model.StageInitial) {
			sess.AddEvent("approval_denied", map[string]any{"tool": string(proposal.Tool)})
			o.audit.LogBestEffort(step, "approval_denied", map[string]any{"tool": string(proposal.Tool)})
			continue
		}

		if verdict.Status == model.PolicyNeedsExtraConfirm ||
			proposal.Risk == model.RiskHigh ||
			cfg.ApprovalMode == ApprovalModeStrict {
			if !o.approve(gate, proposal.Tool, extraConfirmationReason, proposal.Args, model.StageExtra) {
				sess.AddEvent("approval_denied_extra", map[string]any{"tool": string(proposal.Tool)})
				o.audit.LogBestEffort(step, "approval_denied_extra", map[string]any{"tool": string(proposal.Tool)})
				continue
			}
		}

		result := o.executeWithRetries(proposal.Tool, proposal.Args, cfg.MaxRetries)
		resultData := map[string]any{"tool": string(proposal.Tool), "result": result}
		sess.AddEvent("tool_result", resultData)
		o.audit.LogBestEffort(step, "tool_result", resultData)
	}

	msg := fmt.Sprintf("Stopped: reached max_steps=%d.", cfg.MaxSteps)
	sess.AddEvent("stopped", map[string]any{"reason": msg})
	o.audit.LogBestEffort(cfg.MaxSteps, "stopped", map[string]any{"reason": msg})
	return msg
}

// approve asks the gate for one answer. An always-deny answer vetoes the
// tool for the remainder of the run and counts as a denial of this step.
func (o *Orchestrator) approve(gate approval.Gate, tool model.ToolName, reason string, args map[string]any, stage model.ApprovalStage) bool {
	decision := gate.Request(tool, reason, args, stage)
	if decision == model.ApprovalAlwaysDeny {
		o.alwaysDeny[tool] = true
		return false
	}
	return decision == model.ApprovalYes
}

// executeWithRetries runs the tool once, then re-executes while the result
// is a retryable failure and retry budget remains. Non-retryable failures
// return after the first attempt without consuming budget. Re-attempts are
// immediate; there is no backoff.
func (o *Orchestrator) executeWithRetries(name model.ToolName, args map[string]any, maxRetries int) model.ActionResult {
	last := o.runner.Execute(name, args)
	for retries := 0; !last.OK && retries < maxRetries && model.IsRetryableErrType(last.ErrorType); retries++ {
		last = o.runner.Execute(name, args)
	}
	return last
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.logger != nil {
		o.logger.Printf(format, args...)
	}
}
