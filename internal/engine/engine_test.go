package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rahul/stride/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

func newTestEngine(model llms.Model, auth Authorizer) *Engine {
	registry := tools.NewRegistry()
	registry.Register(&echoTool{name: "system"})
	eng := New(model, registry, nil, auth, NewPromptManager(""), nil)
	return eng
}

func TestRunTaskEndToEnd(t *testing.T) {
	model := &fakeModel{script: []*llms.ContentResponse{
		// planner
		planResponse("inspect disk usage", "report the findings"),
		// step 1: tool turn, then complete
		toolCallResponse(fnCall("c1", "system", `{"action":"disk_usage"}`)),
		verdictResponse("complete", "disk is at 42%"),
		// step 2: plain answer, then complete
		textResponse("Disk usage is healthy at 42%."),
		verdictResponse("complete", "findings reported"),
	}}
	eng := newTestEngine(model, nil)
	eng.Options.Mode = ModeAutonomous
	sink := &memorySink{}
	eng.Sink = sink

	var started, concluded int
	eng.Callbacks.OnStepStart = func(step *Step) { started++ }
	eng.Callbacks.OnStepConcluded = func(step *Step, report Message) { concluded++ }

	state, err := eng.RunTask(context.Background(), "check the disk")
	if err != nil {
		t.Fatalf("RunTask failed: %v", err)
	}

	if state.Phase != PhaseDone {
		t.Errorf("phase = %s", state.Phase)
	}
	if state.Failed {
		t.Error("task marked failed")
	}
	if started != 2 || concluded != 2 {
		t.Errorf("callbacks: started=%d concluded=%d", started, concluded)
	}

	// Global history: the goal plus one report per step.
	if state.History.Len() != 3 {
		t.Fatalf("global history has %d records, want 3", state.History.Len())
	}
	if len(sink.records) != 3 {
		t.Errorf("sink has %d records, want 3", len(sink.records))
	}

	for _, step := range state.Plan {
		if step.Status != StatusCompleted {
			t.Errorf("step %d status = %s", step.ID, step.Status)
		}
		if !step.History.Destroyed() {
			t.Errorf("step %d history survived its conclusion", step.ID)
		}
	}
}

func TestRunTaskGuardedDenialHalts(t *testing.T) {
	model := &fakeModel{script: []*llms.ContentResponse{
		planResponse("wipe the cache directory"),
		toolCallResponse(fnCall("c1", "system", `{"action":"disk_usage"}`)),
		verdictResponse("fail", "the operator did not authorize the calls"),
	}}
	eng := newTestEngine(model, &scriptedAuthorizer{decision: DecisionDeny})
	eng.Options.HaltOnStepFailure = true

	var pending []CallBatch
	eng.Callbacks.OnPendingAuthorization = func(b CallBatch) { pending = append(pending, b) }

	state, err := eng.RunTask(context.Background(), "wipe the cache")
	if err != nil {
		t.Fatalf("RunTask failed: %v", err)
	}

	if !state.Failed {
		t.Error("task should be marked failed")
	}
	if state.Phase != PhaseDone {
		t.Errorf("phase = %s", state.Phase)
	}
	if len(pending) != 1 {
		t.Errorf("OnPendingAuthorization ran %d times, want 1", len(pending))
	}

	step := state.Plan[0]
	if step.Status != StatusFailed || step.FailReason != ReasonDenied {
		t.Errorf("step = %s/%s", step.Status, step.FailReason)
	}

	// The report in the global history reflects the denial.
	last, ok := state.History.Last(RoleAssistant)
	if !ok || !strings.Contains(last.Content, ReasonDenied) {
		t.Errorf("report = %q", last.Content)
	}
}

func TestRunTemplateSkipsPlanner(t *testing.T) {
	model := &fakeModel{script: []*llms.ContentResponse{
		// No planner call: straight to the single step.
		textResponse("Checked."),
		verdictResponse("complete", "done"),
	}}
	eng := newTestEngine(model, nil)
	eng.Options.Mode = ModeAutonomous

	tpl := &Template{
		Name:  "quick check",
		Steps: []TemplateStep{{Name: "check", Goal: "verify the service responds"}},
	}
	state, err := eng.RunTemplate(context.Background(), tpl)
	if err != nil {
		t.Fatalf("RunTemplate failed: %v", err)
	}
	if state.Goal != "quick check" {
		t.Errorf("goal = %q", state.Goal)
	}
	if state.Plan[0].Status != StatusCompleted {
		t.Errorf("step status = %s", state.Plan[0].Status)
	}
}

func TestRunTaskPlannerFailureSurfaces(t *testing.T) {
	model := &fakeModel{script: []*llms.ContentResponse{nil}}
	eng := newTestEngine(model, nil)

	if _, err := eng.RunTask(context.Background(), "goal"); err == nil {
		t.Fatal("planner outage should surface as an error")
	}
}

// failingSink refuses every append, simulating storage trouble.
type failingSink struct{}

func (failingSink) AppendGlobal(taskID string, msg Message) error {
	return fmt.Errorf("disk full")
}

func TestRunTaskSurfacesGoalPersistError(t *testing.T) {
	model := &fakeModel{}
	eng := newTestEngine(model, nil)
	eng.Sink = failingSink{}

	state, err := eng.RunTask(context.Background(), "any goal")
	if err == nil || !strings.Contains(err.Error(), "persist goal") {
		t.Fatalf("err = %v, want a persist goal error", err)
	}
	// The in-memory record stands even when storage failed.
	if state.History.Len() != 1 {
		t.Errorf("global history has %d records, want 1", state.History.Len())
	}
}
