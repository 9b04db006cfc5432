package storage

import (
	"time"

	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/models"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when the referenced task does not exist.
	ErrNotFound = errors.New("task not found")
	// ErrVersionConflict is returned when a versioned update observes a stale version.
	ErrVersionConflict = errors.New("task version conflict")
	// ErrDuplicateOpenTask is returned when an open task already exists for the room and date.
	ErrDuplicateOpenTask = errors.New("open task already exists for room and date")
	// ErrWorkerBusy is returned when the worker already has a RUNNING task.
	ErrWorkerBusy = errors.New("worker already has a running task")
)

// TaskDetails describes a narrow front-desk edit that never touches status or
// timing fields. Nullable targets carry an explicit apply flag so "set to
// null" can be told apart from "leave unchanged".
type TaskDetails struct {
	Reassign         bool    // apply AssignedWorkerID (possibly nil)
	AssignedWorkerID *string // nil unassigns
	OverrideLimit    bool    // apply TimeLimitMinutes (possibly nil)
	TimeLimitMinutes *int    // nil removes the limit
	FrontDeskNotes   *string // nil leaves unchanged
	WorkerNotes      *string // nil leaves unchanged
}

// Store defines the durable record of tasks and their transition history.
//
// Implementations must enforce the two admission invariants with uniqueness
// constraints (at most one open task per (room, date); at most one RUNNING
// task per worker) and surface violations as ErrDuplicateOpenTask and
// ErrWorkerBusy, so that check-then-write races between separate processes
// are closed at the store.
type Store interface {
	// Transaction control. Begin returns a Store scoped to the transaction.
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// SaveTask inserts a new task.
	SaveTask(t models.Task) error
	// GetTask retrieves a task by ID.
	GetTask(id string) (models.Task, error)
	// UpdateTaskState writes the status and timing fields of t, provided the
	// stored version still equals expectedVersion, and bumps the version.
	// Returns ErrVersionConflict when another writer got there first.
	UpdateTaskState(t models.Task, expectedVersion int64) (models.Task, error)
	// UpdateTaskDetails applies a field-level edit that does not touch status
	// or timing fields, and bumps the version.
	UpdateTaskDetails(id string, d TaskDetails) (models.Task, error)

	// FindOpenTask returns the open task for the room and date, or ErrNotFound.
	FindOpenTask(roomID string, date time.Time) (models.Task, error)
	// FindRunningTask returns the RUNNING task assigned to the worker, or ErrNotFound.
	FindRunningTask(workerID string) (models.Task, error)
	// ListTasksByDate returns all tasks scheduled for the date.
	ListTasksByDate(date time.Time) ([]models.Task, error)
	// ListTasksByWorker returns all tasks assigned to the worker.
	ListTasksByWorker(workerID string) ([]models.Task, error)

	// SaveTransition appends a transition audit record.
	SaveTransition(rec models.TransitionRecord) error
	// ListTransitions returns the transition history of a task, oldest first.
	ListTransitions(taskID string) ([]models.TransitionRecord, error)
}
