package storage

import (
	"sync"
	"time"

	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/models"
	"github.com/pkg/errors"
)

// mockStore implements Store with in-memory storage. Writes apply
// immediately; Begin/Commit/Rollback are no-ops. It enforces the same
// admission uniqueness rules as the Postgres store so engine tests exercise
// the constraint paths without a database.
type mockStore struct {
	mu          sync.Mutex
	tasks       map[string]models.Task
	transitions []models.TransitionRecord
	nextRecID   int64
}

// NewMockStore returns an empty in-memory Store.
func NewMockStore() Store {
	return &mockStore{tasks: make(map[string]models.Task)}
}

func (m *mockStore) Begin() (Store, error) { return m, nil }
func (m *mockStore) Commit() error         { return nil }
func (m *mockStore) Rollback() error       { return nil }
func (m *mockStore) Close() error          { return nil }

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// checkConstraints enforces the partial-uniqueness rules, ignoring the task
// with the given id (the row being written).
func (m *mockStore) checkConstraints(t models.Task) error {
	for _, other := range m.tasks {
		if other.ID == t.ID {
			continue
		}
		if t.Status.IsOpen() && other.Status.IsOpen() &&
			other.RoomID == t.RoomID && sameDate(other.ScheduledDate, t.ScheduledDate) {
			return ErrDuplicateOpenTask
		}
		if t.Status == models.RunningTaskStatus && other.Status == models.RunningTaskStatus &&
			t.AssignedWorkerID != nil && other.AssignedWorkerID != nil &&
			*t.AssignedWorkerID == *other.AssignedWorkerID {
			return ErrWorkerBusy
		}
	}
	return nil
}

func (m *mockStore) SaveTask(t models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; ok {
		return errors.Errorf("task %s already exists", t.ID)
	}
	if err := m.checkConstraints(t); err != nil {
		return err
	}
	if t.Version == 0 {
		t.Version = 1
	}
	m.tasks[t.ID] = t
	return nil
}

func (m *mockStore) GetTask(id string) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	return t, nil
}

func (m *mockStore) UpdateTaskState(t models.Task, expectedVersion int64) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tasks[t.ID]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	if stored.Version != expectedVersion {
		return models.Task{}, ErrVersionConflict
	}
	if err := m.checkConstraints(t); err != nil {
		return models.Task{}, err
	}
	t.Version = expectedVersion + 1
	t.UpdatedAt = time.Now().UTC()
	m.tasks[t.ID] = t
	return t, nil
}

func (m *mockStore) UpdateTaskDetails(id string, d TaskDetails) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	if d.Reassign {
		t.AssignedWorkerID = d.AssignedWorkerID
	}
	if d.OverrideLimit {
		t.TimeLimitMinutes = d.TimeLimitMinutes
	}
	if d.FrontDeskNotes != nil {
		t.FrontDeskNotes = *d.FrontDeskNotes
	}
	if d.WorkerNotes != nil {
		t.WorkerNotes = *d.WorkerNotes
	}
	if err := m.checkConstraints(t); err != nil {
		return models.Task{}, err
	}
	t.Version++
	t.UpdatedAt = time.Now().UTC()
	m.tasks[id] = t
	return t, nil
}

func (m *mockStore) FindOpenTask(roomID string, date time.Time) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.RoomID == roomID && sameDate(t.ScheduledDate, date) && t.Status.IsOpen() {
			return t, nil
		}
	}
	return models.Task{}, ErrNotFound
}

func (m *mockStore) FindRunningTask(workerID string) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.Status == models.RunningTaskStatus && t.AssignedTo(workerID) {
			return t, nil
		}
	}
	return models.Task{}, ErrNotFound
}

func (m *mockStore) ListTasksByDate(date time.Time) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tasks []models.Task
	for _, t := range m.tasks {
		if sameDate(t.ScheduledDate, date) {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

func (m *mockStore) ListTasksByWorker(workerID string) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tasks []models.Task
	for _, t := range m.tasks {
		if t.AssignedTo(workerID) {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

func (m *mockStore) SaveTransition(rec models.TransitionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRecID++
	rec.ID = m.nextRecID
	m.transitions = append(m.transitions, rec)
	return nil
}

func (m *mockStore) ListTransitions(taskID string) ([]models.TransitionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var recs []models.TransitionRecord
	for _, rec := range m.transitions {
		if rec.TaskID == taskID {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}
