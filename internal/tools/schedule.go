package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// ScheduleStore persists goals to run later. Implemented by the sqlite store.
type ScheduleStore interface {
	AddGoal(goal string, intervalSeconds int) error
	ClearGoals() error
}

type ScheduleTool struct {
	store ScheduleStore
}

func NewScheduleTool(store ScheduleStore) *ScheduleTool {
	return &ScheduleTool{store: store}
}

func (s *ScheduleTool) Name() string {
	return "schedule"
}

func (s *ScheduleTool) Description() string {
	return "Schedule a goal to run later or repeatedly. Actions: 'add' (goal + interval_seconds, 0 for one-shot), 'clear' (remove all scheduled goals)."
}

func (s *ScheduleTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"add", "clear"},
				"description": "The operation to perform.",
			},
			"goal": map[string]any{
				"type":        "string",
				"description": "The goal to execute when the schedule fires.",
			},
			"interval_seconds": map[string]any{
				"type":        "integer",
				"description": "Repeat interval in seconds. 0 means run once and delete.",
			},
		},
		"required": []string{"action"},
	}
}

func (s *ScheduleTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Action          string `json:"action"`
		Goal            string `json:"goal"`
		IntervalSeconds int    `json:"interval_seconds"`
	}

	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	switch args.Action {
	case "add":
		if args.Goal == "" {
			return "A goal is required to schedule.", nil
		}
		if args.IntervalSeconds < 0 {
			return "interval_seconds must be zero or positive.", nil
		}
		if err := s.store.AddGoal(args.Goal, args.IntervalSeconds); err != nil {
			return "", fmt.Errorf("failed to save scheduled goal: %v", err)
		}
		if args.IntervalSeconds == 0 {
			return fmt.Sprintf("Scheduled one-shot goal: %s", args.Goal), nil
		}
		return fmt.Sprintf("Scheduled goal every %d seconds: %s", args.IntervalSeconds, args.Goal), nil
	case "clear":
		if err := s.store.ClearGoals(); err != nil {
			return "", fmt.Errorf("failed to clear scheduled goals: %v", err)
		}
		return "All scheduled goals cleared.", nil
	default:
		return "Invalid action. Use 'add' or 'clear'.", nil
	}
}
