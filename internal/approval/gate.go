// Package approval abstracts the human handshake that gates every non-denied
// proposal: ask someone for a yes/no/always-deny answer and wait for it.
//
// Two realizations exist. ConsoleGate blocks on a line-oriented input source
// and serves the local CLI. The remote realization lives in the manager
// package, where the asking and the answering happen on different goroutines.
package approval

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sghr/warden/internal/model"
)

// Gate obtains a human decision for a proposed action. Request may block the
// calling goroutine; implementations bound the wait themselves and must not
// fail — an unanswerable request resolves to a denial.
type Gate interface {
	Request(tool model.ToolName, reason string, args map[string]any, stage model.ApprovalStage) model.ApprovalDecision
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(tool model.ToolName, reason string, args map[string]any, stage model.ApprovalStage) model.ApprovalDecision

func (f GateFunc) Request(tool model.ToolName, reason string, args map[string]any, stage model.ApprovalStage) model.ApprovalDecision {
	return f(tool, reason, args, stage)
}

// ConsoleGate prompts a human through out and reads one answer line from in.
type ConsoleGate struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewConsoleGate creates a gate reading answers from in and writing prompts
// to out.
func NewConsoleGate(in io.Reader, out io.Writer) *ConsoleGate {
	return &ConsoleGate{scanner: bufio.NewScanner(in), out: out}
}

// Request prints the proposed action and interprets one input line:
// y/yes approves, ad means always-deny, anything else (including EOF or a
// read failure) denies.
func (g *ConsoleGate) Request(tool model.ToolName, reason string, args map[string]any, stage model.ApprovalStage) model.ApprovalDecision {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		argsJSON = []byte("{}")
	}

	fmt.Fprintf(g.out, "\nProposed action\n- tool: %s\n- reason: %s\n- args: %s\n", tool, reason, argsJSON)
	if stage == model.StageExtra {
		fmt.Fprint(g.out, "(extra confirmation) ")
	}
	fmt.Fprint(g.out, "Approve? [y]es / [n]o / [ad] always deny this tool: ")

	if !g.scanner.Scan() {
		return model.ApprovalNo
	}
	return model.ParseApprovalDecision(g.scanner.Text())
}
