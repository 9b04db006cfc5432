package models

import "time"

// TransitionRecord tracks the history of task status changes for auditing.
type TransitionRecord struct {
	ID         int64      `json:"id" db:"id"`                     // Auto-incremented record ID
	TaskID     string     `json:"task_id" db:"task_id"`           // Task being logged
	Actor      string     `json:"actor" db:"actor"`               // Caller identity (worker or front-desk)
	FromStatus TaskStatus `json:"from_status" db:"from_status"`   // Status before the transition
	ToStatus   TaskStatus `json:"to_status" db:"to_status"`       // Status after the transition
	OccurredAt time.Time  `json:"occurred_at" db:"occurred_at"`   // Timestamp of the transition
	Message    string     `json:"message,omitempty" db:"message"` // Details (e.g., issue reference)
}
