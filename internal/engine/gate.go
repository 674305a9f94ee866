package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rahul/stride/internal/governance"
	"github.com/rahul/stride/internal/observability"
)

// Decision is the outcome of an authorization request. Batches are decided
// atomically; partial approval is not a supported mode.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
)

// Authorizer is the external authorization collaborator (console prompt,
// chat gateway, UI button). The returned channel resolves once, possibly
// much later; human latency is expected.
type Authorizer interface {
	RequestAuthorization(ctx context.Context, batch CallBatch) (<-chan Decision, error)
}

// Checkpoint captures a suspended guarded wait so it can survive a process
// restart: the pending batch, the step awaiting it, and the mode it was
// suspended under.
type Checkpoint struct {
	TaskID string
	StepID int
	Mode   ExecutionMode
	Batch  CallBatch
}

// CheckpointStore persists suspended gate state. Optional; a nil store
// means guarded waits do not survive restarts.
type CheckpointStore interface {
	SaveCheckpoint(cp Checkpoint) error
	ClearCheckpoint(taskID string) error
}

// Outcome is what the gate resolved a batch to.
type Outcome struct {
	Decision Decision
	Reason   string
}

// Gate enforces the execution-mode security policy before any tool runs.
// Every batch passes the governance pre-screen first; autonomous mode then
// authorizes immediately while guarded mode suspends until the external
// collaborator decides.
type Gate struct {
	Policy      governance.PolicyEngine
	Auth        Authorizer
	Checkpoints CheckpointStore
	Log         *observability.Logger

	// OnSuspend is notified when a guarded batch starts waiting, so the
	// presentation layer can surface the pending calls.
	OnSuspend func(batch CallBatch)
}

func NewGate(policy governance.PolicyEngine, auth Authorizer) *Gate {
	return &Gate{Policy: policy, Auth: auth}
}

// NewCallBatch assigns a batch identity to one turn's proposed calls.
func NewCallBatch(stepID int, calls []ToolCall) CallBatch {
	return CallBatch{
		ID:     "batch_" + uuid.NewString(),
		StepID: stepID,
		Calls:  calls,
	}
}

// Authorize resolves one batch under the current mode. A cancelled wait
// returns ctx.Err(); the caller records the cancellation as synthetic
// results so the step stays well defined.
func (g *Gate) Authorize(ctx context.Context, state *GlobalState, batch CallBatch) (Outcome, error) {
	if len(batch.Calls) == 0 {
		return Outcome{Decision: DecisionApprove, Reason: "empty batch"}, nil
	}

	if g.Policy != nil {
		reqs := make([]governance.Request, 0, len(batch.Calls))
		for _, call := range batch.Calls {
			reqs = append(reqs, governance.Request{
				Tool:      call.Name,
				Arguments: call.Arguments,
				TaskID:    state.TaskID,
			})
		}
		res, err := governance.EvaluateBatch(ctx, g.Policy, reqs)
		if err != nil {
			return Outcome{}, fmt.Errorf("policy evaluation: %w", err)
		}
		if g.Log != nil {
			for _, call := range batch.Calls {
				g.Log.LogPolicyCheck(state.TaskID, call.Name, string(res.Effect), res.Reason)
			}
		}
		if res.Effect == governance.EffectDeny {
			return Outcome{Decision: DecisionDeny, Reason: res.Reason}, nil
		}
	}

	// The mode is sampled once per batch; a later mode switch never
	// retroactively affects this batch.
	mode := state.Mode()
	if mode == ModeAutonomous {
		return Outcome{Decision: DecisionApprove, Reason: "autonomous mode"}, nil
	}

	if g.Auth == nil {
		return Outcome{}, fmt.Errorf("%w: guarded mode without an authorizer", ErrInternal)
	}

	if g.Checkpoints != nil {
		cp := Checkpoint{TaskID: state.TaskID, StepID: batch.StepID, Mode: mode, Batch: batch}
		if err := g.Checkpoints.SaveCheckpoint(cp); err != nil {
			return Outcome{}, fmt.Errorf("save gate checkpoint: %w", err)
		}
	}
	if g.OnSuspend != nil {
		g.OnSuspend(batch)
	}

	ch, err := g.Auth.RequestAuthorization(ctx, batch)
	if err != nil {
		return Outcome{}, fmt.Errorf("request authorization: %w", err)
	}

	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case decision := <-ch:
		if g.Checkpoints != nil {
			if err := g.Checkpoints.ClearCheckpoint(state.TaskID); err != nil {
				return Outcome{}, fmt.Errorf("clear gate checkpoint: %w", err)
			}
		}
		reason := "approved by operator"
		if decision == DecisionDeny {
			reason = "denied by operator"
		}
		return Outcome{Decision: decision, Reason: reason}, nil
	}
}

// DeniedResults fabricates one denied record per call in the batch so the
// analyzer can react to the denial. None of these ever reach the invoker.
func DeniedResults(batch CallBatch, reason string) []ToolResult {
	results := make([]ToolResult, 0, len(batch.Calls))
	for _, call := range batch.Calls {
		results = append(results, ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			Kind:    ResultDenied,
			Content: "Tool call denied: " + reason,
		})
	}
	return results
}

// CancelledResults mirrors DeniedResults for a cancelled suspension point.
func CancelledResults(batch CallBatch) []ToolResult {
	results := make([]ToolResult, 0, len(batch.Calls))
	for _, call := range batch.Calls {
		results = append(results, ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			Kind:    ResultCancelled,
			Content: "Tool call cancelled before execution",
		})
	}
	return results
}
