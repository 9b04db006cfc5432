package service

import (
	"sync"
	"time"

	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/clock"
	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/models"
	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/storage"
	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/timeacct"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Logger defines the logging interface for TaskService
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// CreateTaskParams carries a front-desk admission request.
type CreateTaskParams struct {
	RoomID           string
	RoomGroup        string // lookup key for the time-limit configuration
	ScheduledDate    time.Time
	Kind             models.TaskKind
	CapacityCode     models.CapacityCode
	AssignedWorkerID *string
	FrontDeskNotes   string
}

// TaskService is the task lifecycle engine. Every mutation is atomic:
// validate → compute → commit → notify. Operations on the same task are
// serialized by a per-task mutex; across processes the store's version check
// and uniqueness constraints are authoritative.
type TaskService struct {
	store    storage.Store
	clk      clock.Clock
	guard    AdmissionGuard
	notifier *ChangeNotifier
	limits   LimitResolver
	logger   Logger

	mu        sync.Mutex
	taskLocks map[string]*sync.Mutex
}

func NewTaskService(store storage.Store, clk clock.Clock, limits LimitResolver, logger Logger) *TaskService {
	return &TaskService{
		store:     store,
		clk:       clk,
		notifier:  NewChangeNotifier(logger),
		limits:    limits,
		logger:    logger,
		taskLocks: make(map[string]*sync.Mutex),
	}
}

// Notifier exposes the change fan-out for subscribers.
func (s *TaskService) Notifier() *ChangeNotifier {
	return s.notifier
}

// Close shuts down the notification fan-out.
func (s *TaskService) Close() {
	s.notifier.Close()
}

// lockTask serializes in-process callers per task id. The returned func
// releases the lock.
func (s *TaskService) lockTask(id string) func() {
	s.mu.Lock()
	l, ok := s.taskLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.taskLocks[id] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *TaskService) rollback(txStore storage.Store) {
	if err := txStore.Rollback(); err != nil {
		s.logger.Errorf("Failed to rollback: %v", err)
	}
}

// dateOnly normalizes a timestamp to its calendar date at midnight UTC.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Create admits a new task in status QUEUED. The time limit is resolved from
// the (roomGroup, kind, capacity) configuration; absence of a limit is fine.
// Fails with ErrDuplicateOpenTask when an open task already occupies the
// (room, date) slot.
func (s *TaskService) Create(actor string, p CreateTaskParams) (models.Task, error) {
	if p.RoomID == "" {
		return models.Task{}, errors.New("room id cannot be empty")
	}
	if !p.Kind.Valid() {
		return models.Task{}, errors.Errorf("unknown task kind %q", p.Kind)
	}
	if p.CapacityCode != "" && !p.CapacityCode.Valid() {
		return models.Task{}, errors.Errorf("unknown capacity code %q", p.CapacityCode)
	}
	now := s.clk.Now()
	date := dateOnly(p.ScheduledDate)

	txStore, err := s.store.Begin()
	if err != nil {
		return models.Task{}, errors.Wrap(err, "failed to begin transaction")
	}
	if err := s.guard.CheckRoomDateOpen(txStore, p.RoomID, date); err != nil {
		s.rollback(txStore)
		return models.Task{}, err
	}
	task := models.Task{
		ID:               uuid.NewString(),
		RoomID:           p.RoomID,
		AssignedWorkerID: p.AssignedWorkerID,
		ScheduledDate:    date,
		Kind:             p.Kind,
		CapacityCode:     p.CapacityCode,
		TimeLimitMinutes: s.limits.TimeLimit(p.RoomGroup, p.Kind, p.CapacityCode),
		Status:           models.QueuedTaskStatus,
		FrontDeskNotes:   p.FrontDeskNotes,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	// The store's uniqueness constraint closes the check-then-create race;
	// a violation is the same conflict as the guard rejection above.
	if err := txStore.SaveTask(task); err != nil {
		s.rollback(txStore)
		return models.Task{}, err
	}
	if err := txStore.Commit(); err != nil {
		return models.Task{}, errors.Wrap(err, "failed to commit")
	}
	s.notifier.Publish(task)
	s.logger.Infof("Created task %s for room %s on %s (actor %s)", task.ID, p.RoomID, date.Format("2006-01-02"), actor)
	return task, nil
}

// Start moves a QUEUED or NEEDS_REPAIR task to RUNNING for the given worker.
// Re-issuing start on a task the same worker is already running is a no-op
// success, so a timed-out caller can retry safely. A restart after repair
// discards all prior timing.
func (s *TaskService) Start(taskID, workerID string) (models.Task, error) {
	unlock := s.lockTask(taskID)
	defer unlock()
	now := s.clk.Now()

	txStore, err := s.store.Begin()
	if err != nil {
		return models.Task{}, errors.Wrap(err, "failed to begin transaction")
	}
	t, err := txStore.GetTask(taskID)
	if err != nil {
		s.rollback(txStore)
		return models.Task{}, err
	}
	if t.Status == models.RunningTaskStatus && t.AssignedTo(workerID) {
		// Idempotent retry: already running for this worker.
		s.rollback(txStore)
		return t, nil
	}
	if !isValidTransition(t.Status, models.RunningTaskStatus) || t.Status == models.PausedTaskStatus {
		s.rollback(txStore)
		return models.Task{}, errors.Wrapf(ErrInvalidTransition, "cannot start task %s in status %s", taskID, t.Status)
	}
	if t.AssignedWorkerID != nil && !t.AssignedTo(workerID) {
		s.rollback(txStore)
		return models.Task{}, errors.Wrapf(ErrTaskAssigned, "task %s belongs to worker %s", taskID, *t.AssignedWorkerID)
	}
	if err := s.guard.CheckWorkerIdle(txStore, workerID); err != nil {
		s.rollback(txStore)
		return models.Task{}, err
	}

	from := t.Status
	t.AssignedWorkerID = &workerID
	t.Status = models.RunningTaskStatus
	t.StartedAt = &now
	t.PauseStartedAt = nil
	t.LastPauseEndedAt = nil
	t.TotalPauseMinutes = 0
	t.FinishedAt = nil
	t.ActualMinutes = nil
	t.DifferenceMinutes = nil
	updated, err := s.commitTransition(txStore, t, from, workerID, now, "")
	if err != nil {
		return models.Task{}, err
	}
	s.logger.Infof("Started task %s for worker %s", taskID, workerID)
	return updated, nil
}

// Pause moves a RUNNING task to PAUSED and opens a pause interval.
func (s *TaskService) Pause(taskID, actor string) (models.Task, error) {
	unlock := s.lockTask(taskID)
	defer unlock()
	now := s.clk.Now()

	txStore, err := s.store.Begin()
	if err != nil {
		return models.Task{}, errors.Wrap(err, "failed to begin transaction")
	}
	t, err := txStore.GetTask(taskID)
	if err != nil {
		s.rollback(txStore)
		return models.Task{}, err
	}
	if t.Status != models.RunningTaskStatus {
		s.rollback(txStore)
		return models.Task{}, errors.Wrapf(ErrInvalidTransition, "cannot pause task %s in status %s", taskID, t.Status)
	}

	from := t.Status
	t.Status = models.PausedTaskStatus
	t.PauseStartedAt = &now
	updated, err := s.commitTransition(txStore, t, from, actor, now, "")
	if err != nil {
		return models.Task{}, err
	}
	s.logger.Infof("Paused task %s", taskID)
	return updated, nil
}

// Resume closes the current pause interval and moves the task back to
// RUNNING. The closed interval is added to the accumulated pause minutes.
func (s *TaskService) Resume(taskID, workerID string) (models.Task, error) {
	unlock := s.lockTask(taskID)
	defer unlock()
	now := s.clk.Now()

	txStore, err := s.store.Begin()
	if err != nil {
		return models.Task{}, errors.Wrap(err, "failed to begin transaction")
	}
	t, err := txStore.GetTask(taskID)
	if err != nil {
		s.rollback(txStore)
		return models.Task{}, err
	}
	if t.Status != models.PausedTaskStatus || t.PauseStartedAt == nil {
		s.rollback(txStore)
		return models.Task{}, errors.Wrapf(ErrInvalidTransition, "cannot resume task %s in status %s", taskID, t.Status)
	}
	if t.AssignedWorkerID != nil && !t.AssignedTo(workerID) {
		s.rollback(txStore)
		return models.Task{}, errors.Wrapf(ErrTaskAssigned, "task %s belongs to worker %s", taskID, *t.AssignedWorkerID)
	}
	if err := s.guard.CheckWorkerIdle(txStore, workerID); err != nil {
		s.rollback(txStore)
		return models.Task{}, err
	}

	from := t.Status
	t.TotalPauseMinutes += timeacct.ClosePause(*t.PauseStartedAt, now)
	t.PauseStartedAt = nil
	t.LastPauseEndedAt = &now
	t.Status = models.RunningTaskStatus
	updated, err := s.commitTransition(txStore, t, from, workerID, now, "")
	if err != nil {
		return models.Task{}, err
	}
	s.logger.Infof("Resumed task %s for worker %s", taskID, workerID)
	return updated, nil
}

// Finish closes the task. A finish from PAUSED first closes the pending
// pause interval exactly as resume would, without passing through RUNNING.
// The derived actual and difference minutes commit atomically with the
// status change.
func (s *TaskService) Finish(taskID, actor string) (models.Task, error) {
	unlock := s.lockTask(taskID)
	defer unlock()
	now := s.clk.Now()

	txStore, err := s.store.Begin()
	if err != nil {
		return models.Task{}, errors.Wrap(err, "failed to begin transaction")
	}
	t, err := txStore.GetTask(taskID)
	if err != nil {
		s.rollback(txStore)
		return models.Task{}, err
	}
	if t.Status != models.RunningTaskStatus && t.Status != models.PausedTaskStatus {
		s.rollback(txStore)
		return models.Task{}, errors.Wrapf(ErrInvalidTransition, "cannot finish task %s in status %s", taskID, t.Status)
	}

	from := t.Status
	if t.Status == models.PausedTaskStatus && t.PauseStartedAt != nil {
		t.TotalPauseMinutes += timeacct.ClosePause(*t.PauseStartedAt, now)
		t.PauseStartedAt = nil
		t.LastPauseEndedAt = &now
	}
	actual, diff := timeacct.Finalize(*t.StartedAt, t.TotalPauseMinutes, now, t.TimeLimitMinutes)
	t.Status = models.FinishedTaskStatus
	t.FinishedAt = &now
	t.ActualMinutes = &actual
	t.DifferenceMinutes = diff
	updated, err := s.commitTransition(txStore, t, from, actor, now, "")
	if err != nil {
		return models.Task{}, err
	}
	s.logger.Infof("Finished task %s: actual %d minutes", taskID, actual)
	return updated, nil
}

// FlagIssue marks the task as having an issue and stores the opaque external
// reference. With forceRepair the task additionally moves to NEEDS_REPAIR;
// a pending pause interval is closed first so the pause bookkeeping stays
// coherent. Callable from any non-FINISHED status.
func (s *TaskService) FlagIssue(taskID, actor, issueRef string, forceRepair bool) (models.Task, error) {
	unlock := s.lockTask(taskID)
	defer unlock()
	now := s.clk.Now()

	txStore, err := s.store.Begin()
	if err != nil {
		return models.Task{}, errors.Wrap(err, "failed to begin transaction")
	}
	t, err := txStore.GetTask(taskID)
	if err != nil {
		s.rollback(txStore)
		return models.Task{}, err
	}
	if t.Status == models.FinishedTaskStatus {
		s.rollback(txStore)
		return models.Task{}, errors.Wrapf(ErrInvalidTransition, "cannot flag issue on finished task %s", taskID)
	}

	from := t.Status
	t.IssueFlag = true
	if issueRef != "" {
		t.IssueRef = &issueRef
	}
	if forceRepair && t.Status != models.NeedsRepairTaskStatus {
		if t.Status == models.PausedTaskStatus && t.PauseStartedAt != nil {
			t.TotalPauseMinutes += timeacct.ClosePause(*t.PauseStartedAt, now)
			t.PauseStartedAt = nil
			t.LastPauseEndedAt = &now
		}
		t.Status = models.NeedsRepairTaskStatus
	}
	updated, err := s.commitTransition(txStore, t, from, actor, now, "issue flagged: "+issueRef)
	if err != nil {
		return models.Task{}, err
	}
	s.logger.Infof("Flagged issue on task %s (ref %s, repair %t)", taskID, issueRef, forceRepair)
	return updated, nil
}

// commitTransition performs the shared tail of every lifecycle operation:
// versioned state write, audit record, commit, then notify.
func (s *TaskService) commitTransition(txStore storage.Store, t models.Task, from models.TaskStatus, actor string, now time.Time, message string) (models.Task, error) {
	updated, err := txStore.UpdateTaskState(t, t.Version)
	if err != nil {
		s.rollback(txStore)
		return models.Task{}, err
	}
	if err := txStore.SaveTransition(models.TransitionRecord{
		TaskID:     t.ID,
		Actor:      actor,
		FromStatus: from,
		ToStatus:   updated.Status,
		OccurredAt: now,
		Message:    message,
	}); err != nil {
		s.rollback(txStore)
		return models.Task{}, errors.Wrapf(err, "failed to record transition for task %s", t.ID)
	}
	if err := txStore.Commit(); err != nil {
		return models.Task{}, errors.Wrap(err, "failed to commit")
	}
	// Notify only after the commit; the snapshot carries the committed version.
	s.notifier.Publish(updated)
	return updated, nil
}

// UpdateDetails applies a narrow front-desk edit (notes, reassignment, limit
// override). It never touches status or timing fields, so it cannot clobber
// a concurrently committed transition; it still bumps the version and
// publishes the committed snapshot.
func (s *TaskService) UpdateDetails(taskID, actor string, d storage.TaskDetails) (models.Task, error) {
	unlock := s.lockTask(taskID)
	defer unlock()

	txStore, err := s.store.Begin()
	if err != nil {
		return models.Task{}, errors.Wrap(err, "failed to begin transaction")
	}
	updated, err := txStore.UpdateTaskDetails(taskID, d)
	if err != nil {
		s.rollback(txStore)
		return models.Task{}, err
	}
	if err := txStore.Commit(); err != nil {
		return models.Task{}, errors.Wrap(err, "failed to commit")
	}
	s.notifier.Publish(updated)
	s.logger.Infof("Updated details of task %s (actor %s)", taskID, actor)
	return updated, nil
}

// GetTask fetches a task by id.
func (s *TaskService) GetTask(taskID string) (models.Task, error) {
	return s.store.GetTask(taskID)
}

// ListBoard returns all tasks scheduled for a calendar date.
func (s *TaskService) ListBoard(date time.Time) ([]models.Task, error) {
	return s.store.ListTasksByDate(dateOnly(date))
}

// ListWorkerTasks returns all tasks assigned to a worker.
func (s *TaskService) ListWorkerTasks(workerID string) ([]models.Task, error) {
	return s.store.ListTasksByWorker(workerID)
}

// ListTransitions returns the audit history of a task, oldest first.
func (s *TaskService) ListTransitions(taskID string) ([]models.TransitionRecord, error) {
	return s.store.ListTransitions(taskID)
}
