package service

import "github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/models"

// validTransitions defines the allowed status transitions of the lifecycle
// operations. Format: from_status -> []to_statuses.
//
// The state machine follows this flow:
//
//	Queued → Running (start)
//	NeedsRepair → Running (start; timing is reset)
//	Running → Paused (pause), Finished (finish)
//	Paused → Running (resume), Finished (finish)
//	any non-Finished → NeedsRepair (flag-issue with force-repair)
//
// FINISHED is terminal: no operation re-opens it.
var validTransitions = map[models.TaskStatus][]models.TaskStatus{
	models.QueuedTaskStatus:      {models.RunningTaskStatus, models.NeedsRepairTaskStatus},
	models.RunningTaskStatus:     {models.PausedTaskStatus, models.FinishedTaskStatus, models.NeedsRepairTaskStatus},
	models.PausedTaskStatus:      {models.RunningTaskStatus, models.FinishedTaskStatus, models.NeedsRepairTaskStatus},
	models.NeedsRepairTaskStatus: {models.RunningTaskStatus},
}

// isValidTransition checks if a transition from one status to another is
// allowed. Returns false for same-status transitions and for any transition
// out of a terminal status.
func isValidTransition(from, to models.TaskStatus) bool {
	if from == to {
		return false
	}
	for _, target := range validTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}
