package engine

import (
	"context"
	"testing"

	"github.com/tmc/langchaingo/llms"
)

func TestModelPlannerStructuredPlan(t *testing.T) {
	model := &fakeModel{script: []*llms.ContentResponse{
		planResponse("find the log directory", "measure its size", "report the result"),
	}}
	p := NewModelPlanner(model, NewPromptManager(""), nil)

	steps, err := p.Plan(context.Background(), "how big are the logs?")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(steps))
	}
	for i, step := range steps {
		if step.ID != i {
			t.Errorf("step %d has id %d", i, step.ID)
		}
		if step.Status != StatusPending {
			t.Errorf("step %d status = %s", i, step.Status)
		}
	}
	if steps[1].Description != "measure its size" {
		t.Errorf("step 1 = %q", steps[1].Description)
	}
}

func TestModelPlannerNumberedListFallback(t *testing.T) {
	model := &fakeModel{script: []*llms.ContentResponse{
		textResponse("1. check the disk\n2. free some space\n3. verify"),
	}}
	p := NewModelPlanner(model, NewPromptManager(""), nil)

	steps, err := p.Plan(context.Background(), "clean up the disk")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(steps))
	}
	if steps[0].Description != "check the disk" {
		t.Errorf("step 0 = %q", steps[0].Description)
	}
}

func TestModelPlannerRejectsEmptyGoal(t *testing.T) {
	p := NewModelPlanner(&fakeModel{}, NewPromptManager(""), nil)
	if _, err := p.Plan(context.Background(), "   "); err == nil {
		t.Fatal("empty goal should fail")
	}
}

func TestModelPlannerRejectsUnusableReply(t *testing.T) {
	model := &fakeModel{script: []*llms.ContentResponse{
		textResponse("I cannot plan this."),
	}}
	p := NewModelPlanner(model, NewPromptManager(""), nil)
	if _, err := p.Plan(context.Background(), "goal"); err == nil {
		t.Fatal("reply with no steps should fail")
	}
}

func TestParseNumberedSteps(t *testing.T) {
	steps := parseNumberedSteps("intro text\n1) alpha\n- beta\n* gamma\nnot a step")
	if len(steps) != 3 {
		t.Fatalf("got %d steps", len(steps))
	}
	want := []string{"alpha", "beta", "gamma"}
	for i, w := range want {
		if steps[i].Description != w {
			t.Errorf("step %d = %q, want %q", i, steps[i].Description, w)
		}
	}
}

func TestTemplatePlanner(t *testing.T) {
	tpl := &Template{
		Name: "disk check",
		Steps: []TemplateStep{
			{Name: "inspect", Goal: "report disk usage", Hint: "use the system tool"},
			{Name: "summarize", Goal: "summarize the findings"},
		},
	}
	p := &TemplatePlanner{Template: tpl}

	steps, err := p.Plan(context.Background(), "disk check")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("got %d steps", len(steps))
	}
	if steps[0].Hint != "use the system tool" {
		t.Errorf("hint = %q", steps[0].Hint)
	}

	p = &TemplatePlanner{Template: &Template{Steps: []TemplateStep{{Name: "empty"}}}}
	if _, err := p.Plan(context.Background(), "x"); err == nil {
		t.Error("step without goal should fail")
	}
}
