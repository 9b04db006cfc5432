package service

import (
	"time"

	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/storage"
	"github.com/pkg/errors"
)

// AdmissionGuard enforces the two uniqueness invariants before a write:
// at most one open task per (room, date) and at most one RUNNING task per
// worker.
//
// These checks are the fast path. They are inherently racy under concurrent
// callers from separate processes, so the store closes the same races with
// uniqueness constraints; a constraint violation surfaces as the same
// sentinel error as a guard rejection.
type AdmissionGuard struct{}

// CheckRoomDateOpen fails with ErrDuplicateOpenTask when an open task
// already occupies the (room, date) slot.
func (AdmissionGuard) CheckRoomDateOpen(st storage.Store, roomID string, date time.Time) error {
	existing, err := st.FindOpenTask(roomID, date)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "check open task for room %s", roomID)
	}
	return errors.Wrapf(storage.ErrDuplicateOpenTask,
		"task %s is open for room %s on %s", existing.ID, roomID, date.Format("2006-01-02"))
}

// CheckWorkerIdle fails with ErrWorkerBusy when the worker already has a
// RUNNING task.
func (AdmissionGuard) CheckWorkerIdle(st storage.Store, workerID string) error {
	existing, err := st.FindRunningTask(workerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "check running task for worker %s", workerID)
	}
	return errors.Wrapf(storage.ErrWorkerBusy,
		"worker %s is running task %s", workerID, existing.ID)
}
