package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rahul/stride/internal/observability"
	"github.com/rahul/stride/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

// StepRuntime drives one step from pending to a terminal state. All model
// context comes from the step-local history, never the global one: the
// model inside a step sees nothing about sibling steps except what the
// summarizer folded into its description.
type StepRuntime struct {
	Model    llms.Model
	Registry *tools.Registry
	Gate     *Gate
	Invoker  *Invoker
	Analyzer Analyzer
	Prompts  *PromptManager
	Log      *observability.Logger

	// MaxIterations caps model/tool turns per step; exceeding it forces
	// a failure with reason iteration_limit_exceeded.
	MaxIterations int

	// MaxModelRetries bounds retries of a failed model call before the
	// step fails with reason model_unreachable.
	MaxModelRetries int
}

const (
	defaultMaxIterations   = 8
	defaultMaxModelRetries = 2
)

// Run executes the step's full turn loop. It returns an error only for
// cancellation and internal-consistency violations; every ordinary failure
// mode concludes the step as failed instead.
func (r *StepRuntime) Run(ctx context.Context, state *GlobalState, step *Step) error {
	if err := r.start(step); err != nil {
		return err
	}

	maxIterations := r.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}

	denied := false
	for iteration := 0; ; iteration++ {
		if iteration >= maxIterations {
			return r.fail(step, ReasonIterationLimit,
				fmt.Sprintf("step exceeded the %d-iteration cap", maxIterations))
		}

		assistant, calls, err := r.callModel(ctx, state, step)
		if err != nil {
			if ctx.Err() != nil {
				// A cancelled model call leaves the history exactly as it
				// was before the call.
				return err
			}
			return r.fail(step, ReasonModelUnreachable, err.Error())
		}
		step.History.Append(assistant)

		denied = false
		if len(calls) > 0 {
			wasDenied, err := r.resolveCalls(ctx, state, step, calls)
			if err != nil {
				return err
			}
			denied = wasDenied
		}
		// With no calls the step is treated as self-reporting complete and
		// goes straight to the analyzer.

		verdict, err := r.analyze(ctx, step)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return r.fail(step, ReasonModelUnreachable, err.Error())
		}

		switch verdict.Outcome {
		case VerdictContinue:
			continue
		case VerdictComplete:
			step.Analysis = verdict.Analysis
			if err := step.Transition(StatusCompleted); err != nil {
				return err
			}
			r.logStatus(state, step, "")
			return nil
		case VerdictFail:
			reason := ""
			if denied {
				reason = ReasonDenied
			}
			return r.fail(step, reason, verdict.Analysis)
		default:
			return fmt.Errorf("%w: analyzer returned unknown outcome %q", ErrInternal, verdict.Outcome)
		}
	}
}

// start seeds the step-local history with the single system record stating
// the sub-task, and moves the step in progress.
func (r *StepRuntime) start(step *Step) error {
	if err := step.Transition(StatusInProgress); err != nil {
		return err
	}
	seed := r.Prompts.StepPrompt() + "\n\nSub-task: " + step.Description
	if step.Hint != "" {
		seed += "\nHint: " + step.Hint
	}
	step.History.Append(SystemMessage(seed))
	return nil
}

// resolveCalls routes one batch through the gate and, if authorized, the
// invoker, then resumes the step with the results appended in call order.
// The bool reports whether the batch was denied.
func (r *StepRuntime) resolveCalls(ctx context.Context, state *GlobalState, step *Step, calls []ToolCall) (bool, error) {
	batch := NewCallBatch(step.ID, calls)
	state.Pending = &batch

	outcome, err := r.Gate.Authorize(ctx, state, batch)
	if err != nil {
		// The batch is transient; never leave it pending past this call.
		state.Pending = nil
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Record the cancellation explicitly so the step is left in a
			// well-defined, resumable state rather than a torn write.
			r.resume(step, CancelledResults(batch))
		}
		return false, err
	}

	var results []ToolResult
	if outcome.Decision == DecisionDeny {
		results = DeniedResults(batch, outcome.Reason)
	} else {
		results = r.Invoker.InvokeBatch(ctx, state.TaskID, batch)
	}
	if r.Log != nil {
		r.Log.LogGate(state.TaskID, batch.ID, string(outcome.Decision), outcome.Reason)
	}

	r.resume(step, results)
	state.Pending = nil
	return outcome.Decision == DecisionDeny, nil
}

// resume appends tool results to the step history, each referencing the
// call it answers.
func (r *StepRuntime) resume(step *Step, results []ToolResult) {
	for _, res := range results {
		step.History.Append(ToolResultMessage(res))
	}
}

// callModel issues one model call over the step-local history, retrying a
// bounded number of times. The history is only mutated by the caller, on
// success.
func (r *StepRuntime) callModel(ctx context.Context, state *GlobalState, step *Step) (Message, []ToolCall, error) {
	messages := step.History.ToLLM()
	defs := toolDefinitions(r.Registry)
	maxRetries := r.MaxModelRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxModelRetries
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Message{}, nil, err
		}

		resp, err := r.Model.GenerateContent(ctx, messages, llms.WithTools(defs))
		if err != nil {
			if ctx.Err() != nil {
				return Message{}, nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("model returned no choices")
			continue
		}
		choice := resp.Choices[0]

		calls := make([]ToolCall, 0, len(choice.ToolCalls))
		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			id := tc.ID
			if id == "" {
				id = NewCallID()
			}
			calls = append(calls, ToolCall{
				ID:        id,
				Name:      tc.FunctionCall.Name,
				Arguments: tc.FunctionCall.Arguments,
			})
		}

		if r.Log != nil {
			stepID := strconv.Itoa(step.ID)
			r.Log.LogLLM(state.TaskID, stepID, len(messages), choice.Content, calls)
			if prompt, completion, ok := tokenUsage(choice.GenerationInfo); ok {
				r.Log.LogCost(state.TaskID, stepID, prompt, completion, "")
			}
		}

		return AssistantMessage(choice.Content, calls...), calls, nil
	}

	return Message{}, nil, fmt.Errorf("model unreachable after %d attempts: %w", maxRetries+1, lastErr)
}

func (r *StepRuntime) analyze(ctx context.Context, step *Step) (Verdict, error) {
	maxRetries := r.MaxModelRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxModelRetries
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Verdict{}, err
		}
		verdict, err := r.Analyzer.Analyze(ctx, step)
		if err != nil {
			if ctx.Err() != nil {
				return Verdict{}, ctx.Err()
			}
			lastErr = err
			continue
		}
		return verdict, nil
	}
	return Verdict{}, fmt.Errorf("analyzer unreachable after %d attempts: %w", maxRetries+1, lastErr)
}

func (r *StepRuntime) fail(step *Step, reason, analysis string) error {
	step.FailReason = reason
	step.Analysis = strings.TrimSpace(analysis)
	if step.Analysis == "" {
		step.Analysis = reason
	}
	if err := step.Transition(StatusFailed); err != nil {
		return err
	}
	r.logStatus(nil, step, reason)
	return nil
}

func (r *StepRuntime) logStatus(state *GlobalState, step *Step, detail string) {
	if r.Log == nil {
		return
	}
	taskID := ""
	if state != nil {
		taskID = state.TaskID
	}
	r.Log.LogStep(taskID, strconv.Itoa(step.ID), string(step.Status), detail)
}

// tokenUsage pulls token counts out of provider generation info when the
// provider reports them.
func tokenUsage(info map[string]any) (prompt, completion int, ok bool) {
	if info == nil {
		return 0, 0, false
	}
	prompt, pok := asInt(info["PromptTokens"])
	completion, cok := asInt(info["CompletionTokens"])
	return prompt, completion, pok || cok
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// toolDefinitions exposes the registry to the model collaborator.
func toolDefinitions(registry *tools.Registry) []llms.Tool {
	if registry == nil {
		return nil
	}
	var defs []llms.Tool
	for _, t := range registry.All() {
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
