package models

import "time"

type TaskStatus string

const (
	QueuedTaskStatus      TaskStatus = "QUEUED"
	RunningTaskStatus     TaskStatus = "RUNNING"
	PausedTaskStatus      TaskStatus = "PAUSED"
	FinishedTaskStatus    TaskStatus = "FINISHED"
	NeedsRepairTaskStatus TaskStatus = "NEEDS_REPAIR"
)

// OpenTaskStatuses are the statuses of a task that still occupies its
// (room, scheduled date) slot. Everything except FINISHED.
var OpenTaskStatuses = []TaskStatus{
	QueuedTaskStatus,
	RunningTaskStatus,
	PausedTaskStatus,
	NeedsRepairTaskStatus,
}

// IsOpen reports whether the status counts against the one-open-task-per-room/day rule.
func (s TaskStatus) IsOpen() bool {
	return s != FinishedTaskStatus
}

type TaskKind string

const (
	DepartureCleanTaskKind TaskKind = "DEPARTURE_CLEAN"
	ArrivalCleanTaskKind   TaskKind = "ARRIVAL_CLEAN"
	RefreshTaskKind        TaskKind = "REFRESH"
	GeneralTaskKind        TaskKind = "GENERAL"
	StandardTaskKind       TaskKind = "STANDARD"
	TransitTaskKind        TaskKind = "TRANSIT"
)

// Valid reports whether k is one of the known task kinds.
func (k TaskKind) Valid() bool {
	switch k {
	case DepartureCleanTaskKind, ArrivalCleanTaskKind, RefreshTaskKind,
		GeneralTaskKind, StandardTaskKind, TransitTaskKind:
		return true
	}
	return false
}

// CapacityCode describes the occupancy configuration of a room. It is used
// only as a lookup key for time limits, never computed from.
type CapacityCode string

const (
	SingleCapacity CapacityCode = "SINGLE"
	DoubleCapacity CapacityCode = "DOUBLE"
	TwinCapacity   CapacityCode = "TWIN"
	SuiteCapacity  CapacityCode = "SUITE"
	FamilyCapacity CapacityCode = "FAMILY"
)

// Valid reports whether c is one of the known capacity codes.
func (c CapacityCode) Valid() bool {
	switch c {
	case SingleCapacity, DoubleCapacity, TwinCapacity, SuiteCapacity, FamilyCapacity:
		return true
	}
	return false
}

// Task represents a single unit of housekeeping work in a room on a given day.
//
// Timing fields follow the accumulated-pause scheme: PauseStartedAt is set
// only while the task is PAUSED and marks the current pause interval;
// TotalPauseMinutes accumulates every closed interval. ActualMinutes and
// DifferenceMinutes are derived on finish and are null before that.
type Task struct {
	ID                string       `json:"id" db:"id"`                                           // Unique identifier (UUID)
	RoomID            string       `json:"room_id" db:"room_id"`                                 // Physical room (external entity)
	AssignedWorkerID  *string      `json:"assigned_worker_id,omitempty" db:"assigned_worker_id"` // Nullable; unassigned tasks are valid
	ScheduledDate     time.Time    `json:"scheduled_date" db:"scheduled_date"`                   // Calendar date (midnight UTC)
	Kind              TaskKind     `json:"kind" db:"kind"`                                       // Work type
	CapacityCode      CapacityCode `json:"capacity_code,omitempty" db:"capacity_code"`           // Lookup key for the time limit
	TimeLimitMinutes  *int         `json:"time_limit_minutes,omitempty" db:"time_limit_minutes"` // Resolved at creation/edit; may be absent
	Status            TaskStatus   `json:"status" db:"status"`
	StartedAt         *time.Time   `json:"started_at,omitempty" db:"started_at"`                   // Set when the task enters RUNNING
	PauseStartedAt    *time.Time   `json:"pause_started_at,omitempty" db:"pause_started_at"`       // Non-null iff status == PAUSED
	LastPauseEndedAt  *time.Time   `json:"last_pause_ended_at,omitempty" db:"last_pause_ended_at"` // Informational
	TotalPauseMinutes int          `json:"total_pause_minutes" db:"total_pause_minutes"`           // Cumulative closed-pause duration
	FinishedAt        *time.Time   `json:"finished_at,omitempty" db:"finished_at"`                 // Set on FINISHED
	ActualMinutes     *int         `json:"actual_minutes,omitempty" db:"actual_minutes"`           // Derived; non-null iff FINISHED
	DifferenceMinutes *int         `json:"difference_minutes,omitempty" db:"difference_minutes"`   // ActualMinutes - TimeLimitMinutes
	IssueFlag         bool         `json:"issue_flag" db:"issue_flag"`
	IssueRef          *string      `json:"issue_ref,omitempty" db:"issue_ref"` // Opaque external issue reference
	FrontDeskNotes    string       `json:"front_desk_notes,omitempty" db:"front_desk_notes"`
	WorkerNotes       string       `json:"worker_notes,omitempty" db:"worker_notes"`
	Version           int64        `json:"version" db:"version"` // Bumped on every committed mutation
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at" db:"updated_at"`
}

// AssignedTo reports whether the task is assigned to the given worker.
func (t Task) AssignedTo(workerID string) bool {
	return t.AssignedWorkerID != nil && *t.AssignedWorkerID == workerID
}

// Open reports whether the task still occupies its room/day slot.
func (t Task) Open() bool {
	return t.Status.IsOpen()
}
