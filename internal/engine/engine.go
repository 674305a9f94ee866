package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rahul/stride/internal/governance"
	"github.com/rahul/stride/internal/observability"
	"github.com/rahul/stride/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

// Options are the engine policy knobs.
type Options struct {
	Mode              ExecutionMode
	HaltOnStepFailure bool
	RetryFailedStep   bool
	MaxStepIterations int
	MaxModelRetries   int
}

func DefaultOptions() Options {
	return Options{
		Mode:              ModeGuarded,
		MaxStepIterations: defaultMaxIterations,
		MaxModelRetries:   defaultMaxModelRetries,
	}
}

// Callbacks is the presentation feed: a read-only stream of global-history
// appends, status transitions, and pending batches. Front-ends observe
// through these and mutate engine state only via the two sanctioned
// commands (mode switch, authorization decision).
type Callbacks struct {
	OnTaskStart            func(state *GlobalState)
	OnPlanCreated          func(goal string, steps []*Step)
	OnStepStart            func(step *Step)
	OnStepConcluded        func(step *Step, report Message)
	OnPendingAuthorization func(batch CallBatch)
	OnTaskDone             func(state *GlobalState)
}

// Engine wires the planner, controller, step runtime, gate, invoker,
// analyzer and summarizer into the full task loop.
type Engine struct {
	Model    llms.Model
	Registry *tools.Registry
	Policy   governance.PolicyEngine
	Auth     Authorizer
	Prompts  *PromptManager
	Log      *observability.Logger

	// Sink and Checkpoints are optional durability collaborators.
	Sink        HistorySink
	Checkpoints CheckpointStore

	// CompactionHook is forwarded to the controller; see Controller.
	CompactionHook func(*History)

	Options   Options
	Callbacks Callbacks
}

func New(model llms.Model, registry *tools.Registry, policy governance.PolicyEngine, auth Authorizer, prompts *PromptManager, log *observability.Logger) *Engine {
	return &Engine{
		Model:    model,
		Registry: registry,
		Policy:   policy,
		Auth:     auth,
		Prompts:  prompts,
		Log:      log,
		Options:  DefaultOptions(),
	}
}

// RunTask plans the goal with the model and executes the plan to
// completion.
func (e *Engine) RunTask(ctx context.Context, goal string) (*GlobalState, error) {
	planner := NewModelPlanner(e.Model, e.Prompts, e.Registry)
	return e.run(ctx, goal, planner)
}

// RunTemplate executes a pre-defined plan, skipping model decomposition.
func (e *Engine) RunTemplate(ctx context.Context, tpl *Template) (*GlobalState, error) {
	goal := tpl.Goal
	if goal == "" {
		goal = tpl.Name
	}
	return e.run(ctx, goal, &TemplatePlanner{Template: tpl})
}

func (e *Engine) run(ctx context.Context, goal string, planner Planner) (*GlobalState, error) {
	state := NewGlobalState("task_"+uuid.NewString(), goal, e.Options.Mode)
	if e.Callbacks.OnTaskStart != nil {
		e.Callbacks.OnTaskStart(state)
	}
	if err := e.appendGlobal(state, UserMessage(goal)); err != nil {
		return state, err
	}

	steps, err := planner.Plan(ctx, goal)
	if err != nil {
		return state, fmt.Errorf("plan goal: %w", err)
	}

	summarizer := NewSummarizer(e.Sink)
	controller := NewController(state, summarizer)
	controller.HaltOnStepFailure = e.Options.HaltOnStepFailure
	controller.RetryFailedStep = e.Options.RetryFailedStep
	controller.CompactionHook = e.CompactionHook
	if err := controller.SetPlan(steps); err != nil {
		return state, err
	}

	gate := NewGate(e.Policy, e.Auth)
	gate.Checkpoints = e.Checkpoints
	gate.Log = e.Log
	gate.OnSuspend = e.Callbacks.OnPendingAuthorization

	runtime := &StepRuntime{
		Model:           e.Model,
		Registry:        e.Registry,
		Gate:            gate,
		Invoker:         NewInvoker(e.Registry, e.Log),
		Analyzer:        NewModelAnalyzer(e.Model, e.Prompts),
		Prompts:         e.Prompts,
		Log:             e.Log,
		MaxIterations:   e.Options.MaxStepIterations,
		MaxModelRetries: e.Options.MaxModelRetries,
	}

	if e.Log != nil {
		descriptions := make([]string, 0, len(steps))
		for _, step := range steps {
			descriptions = append(descriptions, step.Description)
		}
		e.Log.LogPlan(state.TaskID, descriptions)
	}
	if e.Callbacks.OnPlanCreated != nil {
		e.Callbacks.OnPlanCreated(goal, steps)
	}

	for !controller.Done() {
		step, err := controller.Activate()
		if err != nil {
			return state, err
		}
		if step == nil {
			break
		}
		if e.Callbacks.OnStepStart != nil {
			e.Callbacks.OnStepStart(step)
		}

		if err := runtime.Run(ctx, state, step); err != nil {
			// Cancellation or an internal-consistency violation; the step
			// history is intact either way.
			return state, err
		}

		report, err := controller.Advance()
		if err != nil {
			return state, err
		}
		if e.Callbacks.OnStepConcluded != nil {
			e.Callbacks.OnStepConcluded(step, report)
		}
		if err := state.CheckInvariants(); err != nil {
			return state, err
		}
	}

	state.Phase = PhaseDone
	if e.Callbacks.OnTaskDone != nil {
		e.Callbacks.OnTaskDone(state)
	}
	return state, nil
}

func (e *Engine) appendGlobal(state *GlobalState, msg Message) error {
	state.History.Append(msg)
	if e.Sink != nil {
		if err := e.Sink.AppendGlobal(state.TaskID, msg); err != nil {
			// Same policy as the summarizer: the in-memory record stands,
			// storage trouble surfaces to the caller.
			return fmt.Errorf("persist goal: %w", err)
		}
	}
	return nil
}
