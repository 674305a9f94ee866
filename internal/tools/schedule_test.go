package tools

import (
	"context"
	"strings"
	"testing"
)

type fakeScheduleStore struct {
	goals   []string
	cleared bool
}

func (f *fakeScheduleStore) AddGoal(goal string, intervalSeconds int) error {
	f.goals = append(f.goals, goal)
	return nil
}

func (f *fakeScheduleStore) ClearGoals() error {
	f.cleared = true
	return nil
}

func TestScheduleToolAdd(t *testing.T) {
	store := &fakeScheduleStore{}
	tool := NewScheduleTool(store)

	out, err := tool.Execute(context.Background(), `{"action":"add","goal":"rotate the logs","interval_seconds":3600}`)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out, "3600") {
		t.Errorf("output = %q", out)
	}
	if len(store.goals) != 1 || store.goals[0] != "rotate the logs" {
		t.Errorf("stored goals = %v", store.goals)
	}

	out, err = tool.Execute(context.Background(), `{"action":"add","goal":"cleanup"}`)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "one-shot") {
		t.Errorf("zero-interval output = %q", out)
	}
}

func TestScheduleToolValidation(t *testing.T) {
	tool := NewScheduleTool(&fakeScheduleStore{})

	out, err := tool.Execute(context.Background(), `{"action":"add"}`)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "goal is required") {
		t.Errorf("output = %q", out)
	}

	if _, err := tool.Execute(context.Background(), `not json`); err == nil {
		t.Error("invalid input should error")
	}
}

func TestScheduleToolClear(t *testing.T) {
	store := &fakeScheduleStore{}
	tool := NewScheduleTool(store)

	if _, err := tool.Execute(context.Background(), `{"action":"clear"}`); err != nil {
		t.Fatal(err)
	}
	if !store.cleared {
		t.Error("ClearGoals was not called")
	}
}
