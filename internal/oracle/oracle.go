// Package oracle is the boundary to the external reasoning component that
// produces one decision per step. The contract shields the step loop from
// provider specifics: Decide always returns a well-formed decision, absorbing
// transport and parse failures into final decisions carrying a diagnostic.
package oracle

import "github.com/sghr/warden/internal/model"

// Decider produces exactly one decision per step, plus a metrics map
// (latency, token usage, model identity) recorded regardless of outcome.
//
// Implementations must never fail: on any transport or parse error they
// substitute a final decision describing the problem.
type Decider interface {
	Decide(goal, contextJSON string, teamMode bool) (model.AgentDecision, map[string]any)
}
