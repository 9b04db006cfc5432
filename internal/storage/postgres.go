package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/models"
	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/storage"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Names of the partial unique indexes backing the admission invariants.
// A 23505 on one of these is an admission conflict, not a generic failure.
const (
	openRoomDateConstraint  = "tasks_open_room_date_key"
	runningWorkerConstraint = "tasks_running_worker_key"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

type PostgresStore struct {
	db DBInterface
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &PostgresStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *PostgresStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// translateUniqueViolation maps constraint violations on the admission
// indexes to their sentinel errors; anything else passes through.
func translateUniqueViolation(err error) error {
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		switch pqErr.Constraint {
		case openRoomDateConstraint:
			return storage.ErrDuplicateOpenTask
		case runningWorkerConstraint:
			return storage.ErrWorkerBusy
		}
	}
	return err
}

// SaveTask inserts a new task row.
func (s *PostgresStore) SaveTask(t models.Task) error {
	_, err := s.db.Exec(`
		INSERT INTO tasks (
			id, room_id, assigned_worker_id, scheduled_date, kind, capacity_code,
			time_limit_minutes, status, started_at, pause_started_at, last_pause_ended_at,
			total_pause_minutes, finished_at, actual_minutes, difference_minutes,
			issue_flag, issue_ref, front_desk_notes, worker_notes, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		t.ID, t.RoomID, t.AssignedWorkerID, t.ScheduledDate, t.Kind, t.CapacityCode,
		t.TimeLimitMinutes, t.Status, t.StartedAt, t.PauseStartedAt, t.LastPauseEndedAt,
		t.TotalPauseMinutes, t.FinishedAt, t.ActualMinutes, t.DifferenceMinutes,
		t.IssueFlag, t.IssueRef, t.FrontDeskNotes, t.WorkerNotes, t.Version, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return translateUniqueViolation(err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *PostgresStore) GetTask(id string) (models.Task, error) {
	var task models.Task
	err := s.db.Get(&task, "SELECT * FROM tasks WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.Task{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// UpdateTaskState writes status and timing fields under an optimistic version
// check; the version bump and the field writes commit atomically.
func (s *PostgresStore) UpdateTaskState(t models.Task, expectedVersion int64) (models.Task, error) {
	res, err := s.db.Exec(`
		UPDATE tasks
		SET assigned_worker_id = $2,
		    status = $3,
		    started_at = $4,
		    pause_started_at = $5,
		    last_pause_ended_at = $6,
		    total_pause_minutes = $7,
		    finished_at = $8,
		    actual_minutes = $9,
		    difference_minutes = $10,
		    issue_flag = $11,
		    issue_ref = $12,
		    version = version + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND version = $13`,
		t.ID, t.AssignedWorkerID, t.Status, t.StartedAt, t.PauseStartedAt,
		t.LastPauseEndedAt, t.TotalPauseMinutes, t.FinishedAt, t.ActualMinutes,
		t.DifferenceMinutes, t.IssueFlag, t.IssueRef, expectedVersion)
	if err != nil {
		return models.Task{}, translateUniqueViolation(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Task{}, err
	}
	if affected == 0 {
		// Distinguish a stale version from a missing row.
		if _, getErr := s.GetTask(t.ID); getErr != nil {
			return models.Task{}, getErr
		}
		return models.Task{}, storage.ErrVersionConflict
	}
	return s.GetTask(t.ID)
}

// UpdateTaskDetails applies a narrow field-level edit. Status and timing
// columns are never part of the SET list, so a concurrently committed
// transition cannot be clobbered by a detail edit.
func (s *PostgresStore) UpdateTaskDetails(id string, d storage.TaskDetails) (models.Task, error) {
	set := "version = version + 1, updated_at = CURRENT_TIMESTAMP"
	args := []interface{}{id}
	n := 1
	addArg := func(col string, val interface{}) {
		n++
		set += fmt.Sprintf(", %s = $%d", col, n)
		args = append(args, val)
	}
	if d.Reassign {
		addArg("assigned_worker_id", d.AssignedWorkerID)
	}
	if d.OverrideLimit {
		addArg("time_limit_minutes", d.TimeLimitMinutes)
	}
	if d.FrontDeskNotes != nil {
		addArg("front_desk_notes", *d.FrontDeskNotes)
	}
	if d.WorkerNotes != nil {
		addArg("worker_notes", *d.WorkerNotes)
	}
	res, err := s.db.Exec("UPDATE tasks SET "+set+" WHERE id = $1", args...)
	if err != nil {
		return models.Task{}, translateUniqueViolation(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Task{}, err
	}
	if affected == 0 {
		return models.Task{}, storage.ErrNotFound
	}
	return s.GetTask(id)
}

// FindOpenTask returns the open task occupying the (room, date) slot.
func (s *PostgresStore) FindOpenTask(roomID string, date time.Time) (models.Task, error) {
	var task models.Task
	err := s.db.Get(&task, `
		SELECT * FROM tasks
		WHERE room_id = $1 AND scheduled_date = $2::date
		AND status IN ('QUEUED', 'RUNNING', 'PAUSED', 'NEEDS_REPAIR')`,
		roomID, date)
	if err == sql.ErrNoRows {
		return models.Task{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// FindRunningTask returns the RUNNING task assigned to the worker.
func (s *PostgresStore) FindRunningTask(workerID string) (models.Task, error) {
	var task models.Task
	err := s.db.Get(&task, `
		SELECT * FROM tasks
		WHERE assigned_worker_id = $1 AND status = 'RUNNING'`,
		workerID)
	if err == sql.ErrNoRows {
		return models.Task{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// ListTasksByDate returns the board for a calendar date.
func (s *PostgresStore) ListTasksByDate(date time.Time) ([]models.Task, error) {
	tasks := []models.Task{}
	err := s.db.Select(&tasks, `
		SELECT * FROM tasks WHERE scheduled_date = $1::date ORDER BY room_id, created_at`,
		date)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListTasksByWorker returns all tasks assigned to a worker.
func (s *PostgresStore) ListTasksByWorker(workerID string) ([]models.Task, error) {
	tasks := []models.Task{}
	err := s.db.Select(&tasks, `
		SELECT * FROM tasks WHERE assigned_worker_id = $1 ORDER BY scheduled_date, created_at`,
		workerID)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// SaveTransition appends a transition audit record.
func (s *PostgresStore) SaveTransition(rec models.TransitionRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO task_transitions (task_id, actor, from_status, to_status, occurred_at, message)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.TaskID, rec.Actor, rec.FromStatus, rec.ToStatus, rec.OccurredAt, rec.Message)
	return err
}

// ListTransitions returns the transition history of a task, oldest first.
func (s *PostgresStore) ListTransitions(taskID string) ([]models.TransitionRecord, error) {
	recs := []models.TransitionRecord{}
	err := s.db.Select(&recs, `
		SELECT * FROM task_transitions WHERE task_id = $1 ORDER BY id`,
		taskID)
	if err != nil {
		return nil, err
	}
	return recs, nil
}
