package engine

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInternal marks internal-consistency violations: a corrupted plan, an
// active-step pointer referencing nothing, a backwards status transition.
// These are programming errors and abort the task instance; they are never
// absorbed into a step failure.
var ErrInternal = errors.New("internal consistency violation")

// StepStatus is the lifecycle of one step. Transitions are monotonic:
// pending -> in_progress -> completed|failed, never backwards.
type StepStatus string

const (
	StatusPending    StepStatus = "pending"
	StatusInProgress StepStatus = "in_progress"
	StatusCompleted  StepStatus = "completed"
	StatusFailed     StepStatus = "failed"
)

func (s StepStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Failure reason codes recorded on a failed step.
const (
	ReasonIterationLimit   = "iteration_limit_exceeded"
	ReasonModelUnreachable = "model_unreachable"
	ReasonDenied           = "authorization_denied"
	ReasonCancelled        = "cancelled"
)

// Step is one isolated sub-task. Its History is local to the step and is
// destroyed when the summarizer concludes it; after that only the Analysis
// and the report in the global history remain.
type Step struct {
	ID          int
	Name        string
	Description string
	Hint        string

	History    *History
	Analysis   string
	FailReason string
	Status     StepStatus

	retried bool
}

func NewStep(id int, name, description, hint string) *Step {
	return &Step{
		ID:          id,
		Name:        name,
		Description: description,
		Hint:        hint,
		History:     NewHistory(),
		Status:      StatusPending,
	}
}

// Transition enforces the monotonic status machine.
func (s *Step) Transition(to StepStatus) error {
	ok := false
	switch to {
	case StatusInProgress:
		ok = s.Status == StatusPending
	case StatusCompleted, StatusFailed:
		ok = s.Status == StatusInProgress
	}
	if !ok {
		return fmt.Errorf("%w: step %d cannot move %s -> %s", ErrInternal, s.ID, s.Status, to)
	}
	s.Status = to
	return nil
}

// ToolCalls derives the step's proposed calls by filtering its history.
// Nil once the history has been destroyed.
func (s *Step) ToolCalls() []ToolCall {
	if s.History == nil || s.History.Destroyed() {
		return nil
	}
	var calls []ToolCall
	for _, msg := range s.History.Messages() {
		if msg.Role == RoleAssistant {
			calls = append(calls, msg.ToolCalls...)
		}
	}
	return calls
}

// ToolResults derives the step's recorded results by filtering its history.
func (s *Step) ToolResults() []ToolResult {
	if s.History == nil || s.History.Destroyed() {
		return nil
	}
	var results []ToolResult
	for _, msg := range s.History.Messages() {
		if msg.Role == RoleTool {
			results = append(results, ToolResult{
				CallID:  msg.CallID,
				Name:    msg.Name,
				Kind:    msg.Kind,
				Content: msg.Content,
			})
		}
	}
	return results
}

// ExecutionMode gates side-effecting tool calls.
type ExecutionMode string

const (
	// ModeGuarded requires an explicit authorization decision per batch.
	ModeGuarded ExecutionMode = "guarded"
	// ModeAutonomous authorizes every batch immediately.
	ModeAutonomous ExecutionMode = "autonomous"
)

func ParseMode(s string) (ExecutionMode, bool) {
	switch ExecutionMode(s) {
	case ModeGuarded:
		return ModeGuarded, true
	case ModeAutonomous:
		return ModeAutonomous, true
	}
	return "", false
}

// TaskPhase is the coarse state of the whole task.
type TaskPhase string

const (
	PhasePlanning  TaskPhase = "planning"
	PhaseExecuting TaskPhase = "executing"
	PhaseDone      TaskPhase = "done"
)

// CallBatch is one model turn's worth of proposed tool calls, authorized or
// denied as a unit.
type CallBatch struct {
	ID     string
	StepID int
	Calls  []ToolCall
}

// GlobalState is the single task-wide state record. The global history is
// the only thing visible across step boundaries.
type GlobalState struct {
	TaskID  string
	Goal    string
	History *History
	Plan    []*Step
	Phase   TaskPhase
	Failed  bool

	// ActiveStepID is -1 when no step is in progress.
	ActiveStepID int

	// Pending holds the batch currently awaiting execution or
	// authorization; nil once resolved.
	Pending *CallBatch

	modeMu sync.Mutex
	mode   ExecutionMode
}

func NewGlobalState(taskID, goal string, mode ExecutionMode) *GlobalState {
	return &GlobalState{
		TaskID:       taskID,
		Goal:         goal,
		History:      NewHistory(),
		Phase:        PhasePlanning,
		ActiveStepID: -1,
		mode:         mode,
	}
}

// Mode is safe to read while a user command mutates it. A mode change never
// retroactively affects a batch already authorized.
func (g *GlobalState) Mode() ExecutionMode {
	g.modeMu.Lock()
	defer g.modeMu.Unlock()
	return g.mode
}

// SetMode is invoked by explicit user command only, never by the control
// loop.
func (g *GlobalState) SetMode(mode ExecutionMode) {
	g.modeMu.Lock()
	g.mode = mode
	g.modeMu.Unlock()
}

// ActiveStep resolves the active pointer. A pointer referencing no step is
// a corrupted plan and surfaces as ErrInternal.
func (g *GlobalState) ActiveStep() (*Step, error) {
	if g.ActiveStepID < 0 {
		return nil, nil
	}
	for _, step := range g.Plan {
		if step.ID == g.ActiveStepID {
			return step, nil
		}
	}
	return nil, fmt.Errorf("%w: active step %d not found in plan", ErrInternal, g.ActiveStepID)
}

// CheckInvariants verifies the plan-order invariant: at most one step in
// progress, and it matches the active pointer.
func (g *GlobalState) CheckInvariants() error {
	inProgress := 0
	for _, step := range g.Plan {
		if step.Status == StatusInProgress {
			inProgress++
			if step.ID != g.ActiveStepID {
				return fmt.Errorf("%w: step %d in progress but active pointer is %d", ErrInternal, step.ID, g.ActiveStepID)
			}
		}
	}
	if inProgress > 1 {
		return fmt.Errorf("%w: %d steps in progress", ErrInternal, inProgress)
	}
	return nil
}
