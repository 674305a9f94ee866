package engine

import (
	"fmt"
)

// Controller sequences the plan: it activates pending steps in order,
// concludes terminal ones through the summarizer, and decides overall task
// completion. A failed step does not halt the plan unless configured to.
type Controller struct {
	state      *GlobalState
	summarizer *Summarizer

	// HaltOnStepFailure moves the task to done(failed) instead of
	// advancing past a failed step.
	HaltOnStepFailure bool

	// RetryFailedStep re-queues a failed step exactly once, as a fresh
	// attempt with a new id. Replanning is the only unbounded retry path.
	RetryFailedStep bool

	// CompactionHook, when set, runs after each report append so a
	// deployment can compress the in-memory global history. The durable
	// record in the store is unaffected.
	CompactionHook func(*History)
}

func NewController(state *GlobalState, summarizer *Summarizer) *Controller {
	return &Controller{state: state, summarizer: summarizer}
}

// SetPlan installs the planner's output and moves the task to executing.
func (c *Controller) SetPlan(steps []*Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("%w: empty plan", ErrInternal)
	}
	c.state.Plan = steps
	c.state.Phase = PhaseExecuting
	return nil
}

// CurrentStep returns the active step, or nil when none is in progress.
func (c *Controller) CurrentStep() (*Step, error) {
	return c.state.ActiveStep()
}

// Activate points the active-step reference at the next pending step.
// Returns nil when the plan is exhausted, in which case the task is done.
func (c *Controller) Activate() (*Step, error) {
	if len(c.state.Plan) == 0 {
		return nil, fmt.Errorf("%w: activate with empty plan", ErrInternal)
	}
	if active, err := c.state.ActiveStep(); err != nil {
		return nil, err
	} else if active != nil {
		return nil, fmt.Errorf("%w: step %d still active", ErrInternal, active.ID)
	}
	for _, step := range c.state.Plan {
		if step.Status == StatusPending {
			c.state.ActiveStepID = step.ID
			return step, nil
		}
	}
	c.state.Phase = PhaseDone
	return nil, nil
}

// Advance concludes the just-finished active step: marks are already
// terminal at this point, so it summarizes, clears the pointer, and applies
// the failure policy. Fatal only on internal-consistency violations.
func (c *Controller) Advance() (Message, error) {
	step, err := c.state.ActiveStep()
	if err != nil {
		return Message{}, err
	}
	if step == nil {
		return Message{}, fmt.Errorf("%w: advance with no active step", ErrInternal)
	}
	if !step.Status.Terminal() {
		return Message{}, fmt.Errorf("%w: advance on non-terminal step %d (%s)", ErrInternal, step.ID, step.Status)
	}

	if step.Status == StatusFailed && c.RetryFailedStep && !step.retried {
		step.retried = true
		c.requeue(step)
	}

	report, err := c.summarizer.Conclude(c.state, step)
	if err != nil {
		return Message{}, err
	}
	if c.CompactionHook != nil {
		c.CompactionHook(c.state.History)
	}

	c.state.ActiveStepID = -1

	if step.Status == StatusFailed && c.HaltOnStepFailure {
		c.state.Phase = PhaseDone
		c.state.Failed = true
	}
	return report, nil
}

// requeue inserts a fresh attempt directly after the failed step. Ids are
// never reused, so the attempt gets the next free one; the original stays
// terminal.
func (c *Controller) requeue(failed *Step) {
	nextID := 0
	for _, step := range c.state.Plan {
		if step.ID >= nextID {
			nextID = step.ID + 1
		}
	}
	attempt := NewStep(nextID, failed.Name, failed.Description, failed.Hint)
	attempt.retried = true

	for i, step := range c.state.Plan {
		if step.ID == failed.ID {
			rest := append([]*Step{attempt}, c.state.Plan[i+1:]...)
			c.state.Plan = append(c.state.Plan[:i+1:i+1], rest...)
			return
		}
	}
}

// Done reports whether the task has reached its terminal phase.
func (c *Controller) Done() bool {
	return c.state.Phase == PhaseDone
}
