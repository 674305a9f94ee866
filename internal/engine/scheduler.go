package engine

import (
	"context"
	"log"
	"time"
)

// ScheduledGoal is a goal queued for future execution.
type ScheduledGoal struct {
	ID              int
	Goal            string
	IntervalSeconds int
}

// GoalStore supplies due goals. Implemented by the sqlite store.
type GoalStore interface {
	DueGoals() ([]ScheduledGoal, error)
	MarkGoalRun(id int) error
	DeleteGoal(id int) error
}

// Scheduler runs stored goals through the engine as they come due.
// Scheduled runs use the engine's configured mode; scheduling a goal does
// not bypass the gate.
type Scheduler struct {
	Engine *Engine
	Store  GoalStore

	// Notify delivers the outcome of a scheduled run to the user, when a
	// front-end is attached.
	Notify func(text string)
}

func NewScheduler(engine *Engine, store GoalStore) *Scheduler {
	return &Scheduler{Engine: engine, Store: store}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	log.Println("Goal scheduler started...")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollAndExecute(ctx)
		}
	}
}

func (s *Scheduler) pollAndExecute(ctx context.Context) {
	goals, err := s.Store.DueGoals()
	if err != nil {
		log.Printf("Error polling scheduled goals: %v", err)
		return
	}

	for _, goal := range goals {
		log.Printf("Executing scheduled goal %d: %s", goal.ID, goal.Goal)

		state, err := s.Engine.RunTask(ctx, goal.Goal)
		if err != nil {
			log.Printf("Error executing scheduled goal %d: %v", goal.ID, err)
			continue
		}

		if err := s.Store.MarkGoalRun(goal.ID); err != nil {
			log.Printf("Error updating last run for goal %d: %v", goal.ID, err)
		}

		// One-shot goals are removed once they ran.
		if goal.IntervalSeconds == 0 {
			if err := s.Store.DeleteGoal(goal.ID); err != nil {
				log.Printf("Error deleting one-shot goal %d: %v", goal.ID, err)
			}
		}

		if s.Notify != nil {
			if last, ok := state.History.Last(RoleAssistant); ok {
				s.Notify("⏰ Scheduled goal finished\n\n" + last.Content)
			}
		}
	}
}
