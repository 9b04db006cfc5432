package service

import "github.com/pkg/errors"

var (
	// ErrInvalidTransition is returned when the requested operation is not
	// legal from the task's current status. The caller should re-read the
	// task and decide what to do next.
	ErrInvalidTransition = errors.New("invalid task transition")
	// ErrTaskAssigned is returned when a worker tries to start a task that
	// is assigned to somebody else. Reassignment is a front-desk edit, not
	// a lifecycle transition.
	ErrTaskAssigned = errors.New("task is assigned to another worker")
)
