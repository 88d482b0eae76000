package model

// RunStatus is the lifecycle state of a managed run.
type RunStatus string

const (
	StatusRunning         RunStatus = "running"
	StatusWaitingApproval RunStatus = "waiting_approval"
	StatusCompleted       RunStatus = "completed"
	StatusFailed          RunStatus = "failed"
)

var terminalRunStatuses = map[RunStatus]bool{
	StatusCompleted: true,
	StatusFailed:    true,
}

// IsTerminal reports whether a run in this status will never transition again.
func IsTerminal(s RunStatus) bool {
	return terminalRunStatuses[s]
}
