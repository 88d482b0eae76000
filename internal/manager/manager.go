// Package manager owns the concurrent runs of the managed mode. Each run is
// driven by one dedicated worker goroutine; external callers interact with it
// only through create/snapshot/events/approve, never with the worker directly.
package manager

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sghr/warden/internal/approval"
	"github.com/sghr/warden/internal/events"
	"github.com/sghr/warden/internal/model"
	"github.com/sghr/warden/internal/oracle"
	"github.com/sghr/warden/internal/orchestrator"
	"github.com/sghr/warden/internal/policy"
	"github.com/sghr/warden/internal/session"
	"github.com/sghr/warden/internal/tool"
)

// DefaultApprovalTimeout bounds how long a worker waits for a remote approval
// answer before auto-denying.
const DefaultApprovalTimeout = time.Hour

// RunRequest is the caller-supplied description of a run. Zero-valued
// optional fields fall back to the daemon configuration.
type RunRequest struct {
	Goal         string `json:"goal"`
	Cwd          string `json:"cwd"`
	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model,omitempty"`
	MaxSteps     int    `json:"max_steps,omitempty"`
	MaxRetries   int    `json:"max_retries,omitempty"`
	ApprovalMode string `json:"approval_mode,omitempty"`
	TeamMode     bool   `json:"team_mode,omitempty"`
}

// Snapshot is a point-in-time copy of a run's externally visible state.
type Snapshot struct {
	RunID      string                 `json:"run_id"`
	Status     model.RunStatus        `json:"status"`
	Goal       string                 `json:"goal"`
	Cwd        string                 `json:"cwd"`
	FinalText  string                 `json:"final_text"`
	Error      string                 `json:"error"`
	Pending    *model.PendingApproval `json:"pending"`
	EventCount int                    `json:"event_count"`
}

// runState is the only mutable state shared between a worker and the
// request-handling goroutines. Every field below mu is guarded by it.
type runState struct {
	runID string
	req   RunRequest

	mu        sync.Mutex
	status    model.RunStatus
	finalText string
	err       string
	sess      *session.State
	pending   *model.PendingApproval
	// answer carries the approval answer from Approve to the suspended
	// worker. 1-buffered and recreated per pending request.
	answer chan string
	events []map[string]any
}

// DeciderFactory builds the oracle client for one run.
type DeciderFactory func(provider, modelName string) (oracle.Decider, error)

// Deps carries the manager's collaborators. Zero-valued fields get defaults.
type Deps struct {
	Config model.Config
	Logger *log.Logger
	Bus    *events.Bus
	// AuditDir receives the per-run agent_run_<id>.jsonl files.
	AuditDir        string
	NewDecider      DeciderFactory
	ApprovalTimeout time.Duration
}

// Manager owns the run registry. The registry lock guards only
// insertion/lookup; each run's state has its own mutex.
type Manager struct {
	mu   sync.Mutex
	runs map[string]*runState

	cfg             model.Config
	logger          *log.Logger
	bus             *events.Bus
	auditDir        string
	newDecider      DeciderFactory
	approvalTimeout time.Duration
}

// New creates a manager. A nil NewDecider uses the real oracle client.
func New(deps Deps) *Manager {
	if deps.NewDecider == nil {
		deps.NewDecider = func(provider, modelName string) (oracle.Decider, error) {
			return oracle.NewClient(provider, modelName)
		}
	}
	if deps.ApprovalTimeout <= 0 {
		deps.ApprovalTimeout = DefaultApprovalTimeout
	}
	if deps.Logger == nil {
		deps.Logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Manager{
		runs:            make(map[string]*runState),
		cfg:             deps.Config,
		logger:          deps.Logger,
		bus:             deps.Bus,
		auditDir:        deps.AuditDir,
		newDecider:      deps.NewDecider,
		approvalTimeout: deps.ApprovalTimeout,
	}
}

// CreateRun validates the request, registers a run and spawns its worker.
// It returns as soon as the run is registered.
func (m *Manager) CreateRun(req RunRequest) (*Snapshot, error) {
	if strings.TrimSpace(req.Goal) == "" {
		return nil, fmt.Errorf("goal must be non-empty")
	}
	if req.Cwd == "" {
		req.Cwd = "."
	}

	runID, err := model.GenerateID(model.IDTypeRun)
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	st := &runState{
		runID:  runID,
		req:    req,
		status: model.StatusRunning,
	}

	m.mu.Lock()
	m.runs[runID] = st
	m.mu.Unlock()

	m.publish(events.BusRunCreated, runID, map[string]any{"goal": req.Goal})
	go m.runWorker(st)

	return m.Snapshot(runID), nil
}

func (m *Manager) get(runID string) *runState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[runID]
}

// UpdateConfig swaps the daemon configuration used by runs created after the
// call. In-flight runs keep the configuration they started with.
func (m *Manager) UpdateConfig(cfg model.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

func (m *Manager) config() model.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Snapshot returns a copy of the run's visible state, or nil if unknown.
func (m *Manager) Snapshot(runID string) *Snapshot {
	st := m.get(runID)
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	var pending *model.PendingApproval
	if st.pending != nil {
		p := *st.pending
		pending = &p
	}
	return &Snapshot{
		RunID:      st.runID,
		Status:     st.status,
		Goal:       st.req.Goal,
		Cwd:        st.req.Cwd,
		FinalText:  st.finalText,
		Error:      st.err,
		Pending:    pending,
		EventCount: len(st.events),
	}
}

// ListRuns returns a snapshot per registered run, sorted by run ID.
func (m *Manager) ListRuns() []*Snapshot {
	m.mu.Lock()
	ids := make([]string, 0, len(m.runs))
	for id := range m.runs {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Strings(ids)
	out := make([]*Snapshot, 0, len(ids))
	for _, id := range ids {
		if snap := m.Snapshot(id); snap != nil {
			out = append(out, snap)
		}
	}
	return out
}

// Events returns an ordered copy of the run's event mirror, or nil if the
// run is unknown.
func (m *Manager) Events(runID string) []map[string]any {
	st := m.get(runID)
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]map[string]any, len(st.events))
	copy(out, st.events)
	return out
}

// Approve deposits an approval answer for the run's currently pending
// request. It returns false, leaving the run untouched, when the run is
// unknown or requestID does not match the pending request; stale or replayed
// approvals can never resolve a newer request.
func (m *Manager) Approve(runID, requestID, decision string) bool {
	st := m.get(runID)
	if st == nil {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.pending == nil || st.pending.RequestID != requestID {
		return false
	}

	ans := strings.ToLower(strings.TrimSpace(decision))
	st.status = model.StatusRunning
	st.events = append(st.events, map[string]any{"type": "approval_received", "decision": ans})

	// Last answer wins: drain a not-yet-consumed previous answer so the
	// buffered send below cannot block while the lock is held.
	select {
	case <-st.answer:
	default:
	}
	st.answer <- ans
	return true
}

// runWorker drives one run to a terminal state. Any panic or setup failure
// marks the run failed; the manager keeps serving other runs.
func (m *Manager) runWorker(st *runState) {
	defer func() {
		if r := recover(); r != nil {
			m.fail(st, fmt.Sprintf("worker panic: %v", r))
		}
	}()

	cwd, err := filepath.Abs(st.req.Cwd)
	if err != nil {
		m.fail(st, fmt.Sprintf("resolve cwd: %v", err))
		return
	}
	if info, err := os.Stat(cwd); err != nil || !info.IsDir() {
		m.fail(st, fmt.Sprintf("cwd is not a directory: %s", cwd))
		return
	}

	cfg := m.config()
	provider := firstNonEmpty(st.req.Provider, cfg.Provider, oracle.ProviderAnthropic)
	modelName := firstNonEmpty(st.req.Model, cfg.Model, oracle.DefaultModelFor(provider))
	maxSteps := firstPositive(st.req.MaxSteps, cfg.Run.MaxSteps, orchestrator.DefaultMaxSteps)
	maxRetries := firstPositive(st.req.MaxRetries, cfg.Run.MaxRetries, orchestrator.DefaultMaxRetries)
	approvalMode := firstNonEmpty(st.req.ApprovalMode, cfg.Run.ApprovalMode, orchestrator.ApprovalModeNormal)
	allowedShell := cfg.Shell.AllowedCommands
	shellTimeout := time.Duration(cfg.Shell.TimeoutSec) * time.Second
	webMaxResults := cfg.Web.MaxResults

	decider, err := m.newDecider(provider, modelName)
	if err != nil {
		m.fail(st, fmt.Sprintf("model client: %v", err))
		return
	}

	sess := session.New(st.req.Goal, cwd)
	st.mu.Lock()
	st.sess = sess
	st.mu.Unlock()

	var audit *events.AuditLogger
	if m.auditDir != "" {
		auditPath := filepath.Join(m.auditDir, fmt.Sprintf("agent_run_%s.jsonl", st.runID))
		audit, err = events.NewAuditLogger(auditPath, events.DefaultMaxLogSize, m.logger)
		if err != nil {
			m.logger.Printf("run %s: audit log unavailable: %v", st.runID, err)
			audit = nil
		} else {
			defer audit.Close()
		}
	}

	runner := tool.NewRunner(
		tool.NewFileTool(cwd),
		tool.NewShellTool(cwd, allowedShell, shellTimeout),
		tool.NewWebTool(webMaxResults),
	)
	orch := orchestrator.New(decider, policy.NewEngine(cwd, allowedShell), runner, audit, m.logger)

	gate := approval.GateFunc(func(toolName model.ToolName, reason string, args map[string]any, stage model.ApprovalStage) model.ApprovalDecision {
		return m.waitApproval(st, toolName, reason, args, stage)
	})

	final := orch.Run(sess, orchestrator.RunConfig{
		MaxSteps:     maxSteps,
		MaxRetries:   maxRetries,
		ApprovalMode: approvalMode,
		TeamMode:     st.req.TeamMode,
	}, gate)

	st.mu.Lock()
	st.finalText = final
	st.status = model.StatusCompleted
	st.pending = nil
	st.events = append(st.events, map[string]any{"type": "completed", "final_text": final})
	st.mu.Unlock()

	m.publish(events.BusRunCompleted, st.runID, map[string]any{"final_text": final})
}

// waitApproval registers a pending request and suspends the worker until an
// answer is deposited or the timeout elapses. On timeout the run is restored
// to running with no pending request and the step is denied; a run is never
// left permanently stuck.
func (m *Manager) waitApproval(st *runState, toolName model.ToolName, reason string, args map[string]any, stage model.ApprovalStage) model.ApprovalDecision {
	pending := &model.PendingApproval{
		RequestID: uuid.NewString(),
		Tool:      toolName,
		Reason:    reason,
		Args:      args,
		Stage:     stage,
	}
	answer := make(chan string, 1)

	st.mu.Lock()
	st.pending = pending
	st.answer = answer
	st.status = model.StatusWaitingApproval
	st.events = append(st.events, map[string]any{"type": "approval_requested", "pending": pending})
	st.mu.Unlock()

	m.publish(events.BusRunWaitingApproval, st.runID, map[string]any{
		"tool":       string(toolName),
		"stage":      string(stage),
		"request_id": pending.RequestID,
	})

	timer := time.NewTimer(m.approvalTimeout)
	defer timer.Stop()

	select {
	case raw := <-answer:
		st.mu.Lock()
		st.pending = nil
		st.answer = nil
		st.mu.Unlock()
		return model.ParseApprovalDecision(raw)
	case <-timer.C:
		st.mu.Lock()
		// An answer may have been deposited between the timer firing and
		// acquiring the lock; honor it over the timeout.
		select {
		case raw := <-answer:
			st.pending = nil
			st.answer = nil
			st.mu.Unlock()
			return model.ParseApprovalDecision(raw)
		default:
		}
		st.events = append(st.events, map[string]any{"type": "approval_timeout", "request_id": pending.RequestID})
		st.pending = nil
		st.answer = nil
		st.status = model.StatusRunning
		st.mu.Unlock()
		return model.ApprovalNo
	}
}

func (m *Manager) fail(st *runState, errText string) {
	st.mu.Lock()
	st.status = model.StatusFailed
	st.err = errText
	st.pending = nil
	st.events = append(st.events, map[string]any{"type": "failed", "error": errText})
	st.mu.Unlock()

	m.logger.Printf("run %s failed: %s", st.runID, errText)
	m.publish(events.BusRunFailed, st.runID, map[string]any{"error": errText})
}

func (m *Manager) publish(eventType events.BusEventType, runID string, data map[string]any) {
	if m.bus != nil {
		m.bus.Publish(eventType, runID, data)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
