package store

import (
	"path/filepath"
	"testing"

	"github.com/rahul/stride/internal/engine"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "stride.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHistoryRoundTrip(t *testing.T) {
	s := newTestStore(t)

	msgs := []engine.Message{
		engine.UserMessage("check the disk"),
		engine.AssistantMessage("✅ Step 1 completed: disk is at 42%"),
	}
	for _, m := range msgs {
		if err := s.AppendGlobal("task_1", m); err != nil {
			t.Fatalf("AppendGlobal failed: %v", err)
		}
	}
	// A different task's records must not bleed in.
	if err := s.AppendGlobal("task_2", engine.UserMessage("other")); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetHistory("task_1")
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].Role != engine.RoleUser || got[0].Content != "check the disk" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Role != engine.RoleAssistant {
		t.Errorf("got[1] = %+v", got[1])
	}
}

func TestGoalLifecycle(t *testing.T) {
	s := newTestStore(t)

	if err := s.AddGoal("rotate the logs", 60); err != nil {
		t.Fatalf("AddGoal failed: %v", err)
	}
	if err := s.AddGoal("one-shot cleanup", 0); err != nil {
		t.Fatal(err)
	}

	// Both goals were seeded with an old last_run, so both are due.
	due, err := s.DueGoals()
	if err != nil {
		t.Fatalf("DueGoals failed: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("got %d due goals, want 2", len(due))
	}

	// After a run, the repeating goal is no longer due within its
	// interval.
	if err := s.MarkGoalRun(due[0].ID); err != nil {
		t.Fatalf("MarkGoalRun failed: %v", err)
	}
	if err := s.DeleteGoal(due[1].ID); err != nil {
		t.Fatalf("DeleteGoal failed: %v", err)
	}

	due, err = s.DueGoals()
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 0 {
		t.Errorf("got %d due goals after run+delete, want 0", len(due))
	}

	if err := s.AddGoal("another", 0); err != nil {
		t.Fatal(err)
	}
	if err := s.ClearGoals(); err != nil {
		t.Fatalf("ClearGoals failed: %v", err)
	}
	due, _ = s.DueGoals()
	if len(due) != 0 {
		t.Errorf("goals survived ClearGoals: %v", due)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := newTestStore(t)

	cp := engine.Checkpoint{
		TaskID: "task_1",
		StepID: 2,
		Mode:   engine.ModeGuarded,
		Batch: engine.CallBatch{
			ID:     "batch_1",
			StepID: 2,
			Calls: []engine.ToolCall{
				{ID: "c1", Name: "shell", Arguments: `{"command":"df -h"}`},
			},
		},
	}
	if err := s.SaveCheckpoint(cp); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	got, err := s.LoadCheckpoints()
	if err != nil {
		t.Fatalf("LoadCheckpoints failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d checkpoints, want 1", len(got))
	}
	if got[0].Mode != engine.ModeGuarded || got[0].Batch.ID != "batch_1" {
		t.Errorf("checkpoint = %+v", got[0])
	}
	if len(got[0].Batch.Calls) != 1 || got[0].Batch.Calls[0].Name != "shell" {
		t.Errorf("batch calls = %+v", got[0].Batch.Calls)
	}

	// Saving again for the same task replaces, not duplicates.
	cp.StepID = 3
	if err := s.SaveCheckpoint(cp); err != nil {
		t.Fatal(err)
	}
	got, _ = s.LoadCheckpoints()
	if len(got) != 1 || got[0].StepID != 3 {
		t.Errorf("after re-save: %+v", got)
	}

	if err := s.ClearCheckpoint("task_1"); err != nil {
		t.Fatalf("ClearCheckpoint failed: %v", err)
	}
	got, _ = s.LoadCheckpoints()
	if len(got) != 0 {
		t.Errorf("checkpoint survived clear: %+v", got)
	}
}
