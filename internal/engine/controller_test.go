package engine

import (
	"errors"
	"testing"
)

func newTestController(steps ...*Step) (*Controller, *GlobalState) {
	state := NewGlobalState("task_1", "goal", ModeGuarded)
	c := NewController(state, NewSummarizer(nil))
	if len(steps) > 0 {
		if err := c.SetPlan(steps); err != nil {
			panic(err)
		}
	}
	return c, state
}

func finish(t *testing.T, step *Step, status StepStatus) {
	t.Helper()
	if err := step.Transition(StatusInProgress); err != nil {
		t.Fatal(err)
	}
	if err := step.Transition(status); err != nil {
		t.Fatal(err)
	}
}

func TestSetPlanRejectsEmpty(t *testing.T) {
	c, _ := newTestController()
	if err := c.SetPlan(nil); !errors.Is(err, ErrInternal) {
		t.Fatalf("empty plan should be ErrInternal, got %v", err)
	}
}

func TestActivateInOrder(t *testing.T) {
	a := NewStep(0, "", "first", "")
	b := NewStep(1, "", "second", "")
	c, state := newTestController(a, b)

	step, err := c.Activate()
	if err != nil {
		t.Fatal(err)
	}
	if step != a {
		t.Fatalf("Activate returned step %d, want 0", step.ID)
	}
	if state.ActiveStepID != 0 {
		t.Errorf("ActiveStepID = %d", state.ActiveStepID)
	}

	// Activating again with a step still active is a corruption.
	if _, err := c.Activate(); !errors.Is(err, ErrInternal) {
		t.Fatalf("double Activate should be ErrInternal, got %v", err)
	}
}

func TestAdvanceThroughPlan(t *testing.T) {
	a := NewStep(0, "", "first", "")
	b := NewStep(1, "", "second", "")
	c, state := newTestController(a, b)

	for _, want := range []*Step{a, b} {
		step, err := c.Activate()
		if err != nil {
			t.Fatal(err)
		}
		if step != want {
			t.Fatalf("activated step %d, want %d", step.ID, want.ID)
		}
		finish(t, step, StatusCompleted)
		if _, err := c.Advance(); err != nil {
			t.Fatal(err)
		}
	}

	step, err := c.Activate()
	if err != nil {
		t.Fatal(err)
	}
	if step != nil {
		t.Fatalf("exhausted plan returned step %d", step.ID)
	}
	if !c.Done() {
		t.Error("task should be done after the plan is exhausted")
	}
	if state.History.Len() != 2 {
		t.Errorf("global history has %d reports, want 2", state.History.Len())
	}
}

func TestAdvanceRequiresTerminalStep(t *testing.T) {
	a := NewStep(0, "", "first", "")
	c, _ := newTestController(a)

	if _, err := c.Advance(); !errors.Is(err, ErrInternal) {
		t.Fatalf("Advance with no active step should be ErrInternal, got %v", err)
	}

	if _, err := c.Activate(); err != nil {
		t.Fatal(err)
	}
	if err := a.Transition(StatusInProgress); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Advance(); !errors.Is(err, ErrInternal) {
		t.Fatalf("Advance on non-terminal step should be ErrInternal, got %v", err)
	}
}

func TestFailedStepDoesNotHaltByDefault(t *testing.T) {
	a := NewStep(0, "", "first", "")
	b := NewStep(1, "", "second", "")
	c, state := newTestController(a, b)

	step, _ := c.Activate()
	finish(t, step, StatusFailed)
	if _, err := c.Advance(); err != nil {
		t.Fatal(err)
	}

	if c.Done() {
		t.Fatal("task halted on step failure without HaltOnStepFailure")
	}
	next, err := c.Activate()
	if err != nil {
		t.Fatal(err)
	}
	if next != b {
		t.Errorf("next step = %v, want the second step", next)
	}
	if state.Failed {
		t.Error("Failed should not be set when the plan continues")
	}
}

func TestHaltOnStepFailure(t *testing.T) {
	a := NewStep(0, "", "first", "")
	b := NewStep(1, "", "second", "")
	c, state := newTestController(a, b)
	c.HaltOnStepFailure = true

	step, _ := c.Activate()
	finish(t, step, StatusFailed)
	if _, err := c.Advance(); err != nil {
		t.Fatal(err)
	}

	if !c.Done() {
		t.Error("task should halt on failure")
	}
	if !state.Failed {
		t.Error("Failed should be set")
	}
	if b.Status != StatusPending {
		t.Errorf("unreached step mutated to %s", b.Status)
	}
}

func TestRetryFailedStepRequeuesOnce(t *testing.T) {
	a := NewStep(0, "", "flaky", "")
	b := NewStep(1, "", "second", "")
	c, state := newTestController(a, b)
	c.RetryFailedStep = true

	step, _ := c.Activate()
	finish(t, step, StatusFailed)
	if _, err := c.Advance(); err != nil {
		t.Fatal(err)
	}

	if len(state.Plan) != 3 {
		t.Fatalf("plan has %d steps after requeue, want 3", len(state.Plan))
	}
	attempt := state.Plan[1]
	if attempt.Description != "flaky" {
		t.Errorf("requeued attempt description = %q", attempt.Description)
	}
	if attempt.ID != 2 {
		t.Errorf("requeued attempt reused id %d", attempt.ID)
	}

	// The attempt runs next, before the second step.
	next, err := c.Activate()
	if err != nil {
		t.Fatal(err)
	}
	if next != attempt {
		t.Fatalf("next activated step is %d, want the fresh attempt", next.ID)
	}

	// A failed attempt is not requeued again.
	finish(t, next, StatusFailed)
	if _, err := c.Advance(); err != nil {
		t.Fatal(err)
	}
	if len(state.Plan) != 3 {
		t.Errorf("second failure requeued again: plan has %d steps", len(state.Plan))
	}
}

func TestCompactionHookRuns(t *testing.T) {
	a := NewStep(0, "", "first", "")
	c, _ := newTestController(a)
	ran := 0
	c.CompactionHook = func(h *History) { ran++ }

	step, _ := c.Activate()
	finish(t, step, StatusCompleted)
	if _, err := c.Advance(); err != nil {
		t.Fatal(err)
	}
	if ran != 1 {
		t.Errorf("compaction hook ran %d times, want 1", ran)
	}
}
