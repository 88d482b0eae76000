package oracle

import "fmt"

// systemPrompt pins the oracle to the one-decision-per-step JSON protocol.
const systemPrompt = `You are a safe task automation agent.
You must respond with JSON only.
Decide one of:
1) {"kind":"action","action":{"tool_name":"file|shell|web","reason":"...","args":{...},"risk_level":"low|medium|high"}}
2) {"kind":"final","final_response":"..."}

Rules:
- Propose exactly one action per step.
- Keep action args concrete and minimal.
- Use risk_level=high for potentially destructive commands.
- Never propose out-of-scope system changes.`

// buildUserPrompt renders the per-step prompt. Team mode only changes the
// framing line; it never changes control flow.
func buildUserPrompt(goal, contextJSON string, teamMode bool) string {
	modeLine := "Reason directly."
	if teamMode {
		modeLine = "Use an internal planner/executor/reviewer perspective before finalizing one action."
	}
	return fmt.Sprintf("Goal:\n%s\n\nContext:\n%s\n\n%s\nReturn strict JSON only.", goal, contextJSON, modeLine)
}
