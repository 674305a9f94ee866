package store

import (
	"database/sql"
	"encoding/json"

	_ "github.com/glebarez/go-sqlite"

	"github.com/rahul/stride/internal/engine"
)

// Store persists everything that must survive a restart: the global history
// mirror, scheduled goals, and suspended gate checkpoints. Step histories
// are deliberately never written here.
type Store struct {
	DB *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT,
			role TEXT,
			payload TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS goals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			goal TEXT,
			interval_seconds INTEGER,
			last_run DATETIME,
			status TEXT DEFAULT 'active'
		);`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			task_id TEXT PRIMARY KEY,
			step_id INTEGER,
			mode TEXT,
			batch TEXT
		);`,
	}
	for _, q := range queries {
		_, err = db.Exec(q)
		if err != nil {
			return nil, err
		}
	}

	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// AppendGlobal mirrors one global-history record to disk.
func (s *Store) AppendGlobal(taskID string, msg engine.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	query := `INSERT INTO messages (task_id, role, payload) VALUES (?, ?, ?)`
	_, err = s.DB.Exec(query, taskID, string(msg.Role), string(payload))
	return err
}

// GetHistory returns the persisted global history of a task in
// chronological order.
func (s *Store) GetHistory(taskID string) ([]engine.Message, error) {
	query := `SELECT payload FROM messages WHERE task_id = ? ORDER BY id ASC`
	rows, err := s.DB.Query(query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []engine.Message
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var msg engine.Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, err
		}
		history = append(history, msg)
	}
	return history, rows.Err()
}

// AddGoal stores a goal to run later. A zero interval means run once.
func (s *Store) AddGoal(goal string, intervalSeconds int) error {
	query := `INSERT INTO goals (goal, interval_seconds, last_run) VALUES (?, ?, datetime('now', '-365 days'))`
	_, err := s.DB.Exec(query, goal, intervalSeconds)
	return err
}

func (s *Store) ClearGoals() error {
	_, err := s.DB.Exec(`DELETE FROM goals`)
	return err
}

// DueGoals returns the active goals whose interval has elapsed since their
// last run.
func (s *Store) DueGoals() ([]engine.ScheduledGoal, error) {
	query := `
		SELECT id, goal, interval_seconds
		FROM goals
		WHERE status = 'active'
		AND (last_run IS NULL OR (julianday('now') - julianday(last_run)) * 86400 >= interval_seconds)`
	rows, err := s.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []engine.ScheduledGoal
	for rows.Next() {
		var g engine.ScheduledGoal
		if err := rows.Scan(&g.ID, &g.Goal, &g.IntervalSeconds); err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (s *Store) MarkGoalRun(id int) error {
	query := `UPDATE goals SET last_run = datetime('now') WHERE id = ?`
	_, err := s.DB.Exec(query, id)
	return err
}

func (s *Store) DeleteGoal(id int) error {
	_, err := s.DB.Exec(`DELETE FROM goals WHERE id = ?`, id)
	return err
}

// SaveCheckpoint records a suspended guarded wait. One checkpoint per task:
// a task can only ever be suspended on a single batch.
func (s *Store) SaveCheckpoint(cp engine.Checkpoint) error {
	batch, err := json.Marshal(cp.Batch)
	if err != nil {
		return err
	}
	query := `INSERT INTO checkpoints (task_id, step_id, mode, batch) VALUES (?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET step_id = excluded.step_id, mode = excluded.mode, batch = excluded.batch`
	_, err = s.DB.Exec(query, cp.TaskID, cp.StepID, string(cp.Mode), string(batch))
	return err
}

func (s *Store) ClearCheckpoint(taskID string) error {
	_, err := s.DB.Exec(`DELETE FROM checkpoints WHERE task_id = ?`, taskID)
	return err
}

// LoadCheckpoints returns any suspended waits left over from a previous
// run, for surfacing at startup.
func (s *Store) LoadCheckpoints() ([]engine.Checkpoint, error) {
	rows, err := s.DB.Query(`SELECT task_id, step_id, mode, batch FROM checkpoints`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cps []engine.Checkpoint
	for rows.Next() {
		var cp engine.Checkpoint
		var mode, batch string
		if err := rows.Scan(&cp.TaskID, &cp.StepID, &mode, &batch); err != nil {
			return nil, err
		}
		cp.Mode = engine.ExecutionMode(mode)
		if err := json.Unmarshal([]byte(batch), &cp.Batch); err != nil {
			return nil, err
		}
		cps = append(cps, cp)
	}
	return cps, rows.Err()
}
