package service_test

import (
	"sync"
	"testing"
	"time"

	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/clock"
	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/models"
	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/service"
	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logger struct{}

func (l logger) Infof(format string, args ...interface{}) {
	// no-op
}

func (l logger) Errorf(format string, args ...interface{}) {
	// no-op
}

var testDay = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

func newService() (*service.TaskService, *clock.Mock) {
	clk := clock.NewMock(testDay.Add(10 * time.Hour)) // 10:00 on the test day
	limits := service.StaticLimits{
		{RoomGroup: "main", Kind: models.DepartureCleanTaskKind, Capacity: models.DoubleCapacity}: 45,
	}
	return service.NewTaskService(storage.NewMockStore(), clk, limits, logger{}), clk
}

func createTask(t *testing.T, svc *service.TaskService, roomID string) models.Task {
	t.Helper()
	task, err := svc.Create("front-desk", service.CreateTaskParams{
		RoomID:        roomID,
		RoomGroup:     "main",
		ScheduledDate: testDay,
		Kind:          models.DepartureCleanTaskKind,
		CapacityCode:  models.DoubleCapacity,
	})
	require.NoError(t, err)
	return task
}

func TestCreateTask(t *testing.T) {
	t.Run("ResolvesTimeLimit", func(t *testing.T) {
		svc, _ := newService()
		task := createTask(t, svc, "101")
		assert.Equal(t, models.QueuedTaskStatus, task.Status)
		assert.Equal(t, int64(1), task.Version)
		if assert.NotNil(t, task.TimeLimitMinutes) {
			assert.Equal(t, 45, *task.TimeLimitMinutes)
		}
	})

	t.Run("NoLimitConfigured", func(t *testing.T) {
		svc, _ := newService()
		task, err := svc.Create("front-desk", service.CreateTaskParams{
			RoomID:        "102",
			RoomGroup:     "annex", // not in the limit table
			ScheduledDate: testDay,
			Kind:          models.RefreshTaskKind,
		})
		assert.NoError(t, err)
		assert.Nil(t, task.TimeLimitMinutes)
	})

	t.Run("RejectsUnknownKind", func(t *testing.T) {
		svc, _ := newService()
		_, err := svc.Create("front-desk", service.CreateTaskParams{
			RoomID:        "103",
			ScheduledDate: testDay,
			Kind:          "MOP_THE_ROOF",
		})
		assert.Error(t, err)
	})

	t.Run("DuplicateOpenTask", func(t *testing.T) {
		svc, _ := newService()
		createTask(t, svc, "104")
		_, err := svc.Create("front-desk", service.CreateTaskParams{
			RoomID:        "104",
			RoomGroup:     "main",
			ScheduledDate: testDay,
			Kind:          models.RefreshTaskKind,
		})
		assert.ErrorIs(t, err, storage.ErrDuplicateOpenTask)
	})

	t.Run("SameRoomDifferentDateIsFine", func(t *testing.T) {
		svc, _ := newService()
		createTask(t, svc, "105")
		_, err := svc.Create("front-desk", service.CreateTaskParams{
			RoomID:        "105",
			RoomGroup:     "main",
			ScheduledDate: testDay.AddDate(0, 0, 1),
			Kind:          models.DepartureCleanTaskKind,
		})
		assert.NoError(t, err)
	})

	t.Run("FinishedTaskFreesTheSlot", func(t *testing.T) {
		svc, clk := newService()
		task := createTask(t, svc, "106")
		_, err := svc.Start(task.ID, "maria")
		require.NoError(t, err)
		clk.Advance(10 * time.Minute)
		_, err = svc.Finish(task.ID, "maria")
		require.NoError(t, err)

		_, err = svc.Create("front-desk", service.CreateTaskParams{
			RoomID:        "106",
			RoomGroup:     "main",
			ScheduledDate: testDay,
			Kind:          models.RefreshTaskKind,
		})
		assert.NoError(t, err)
	})
}

func TestStartTask(t *testing.T) {
	t.Run("FromQueued", func(t *testing.T) {
		svc, clk := newService()
		task := createTask(t, svc, "201")
		started, err := svc.Start(task.ID, "maria")
		require.NoError(t, err)
		assert.Equal(t, models.RunningTaskStatus, started.Status)
		require.NotNil(t, started.StartedAt)
		assert.Equal(t, clk.Now(), started.StartedAt.UTC())
		assert.True(t, started.AssignedTo("maria"))
		assert.Equal(t, 0, started.TotalPauseMinutes)
		assert.Greater(t, started.Version, task.Version)
	})

	t.Run("IdempotentForSameWorker", func(t *testing.T) {
		svc, _ := newService()
		task := createTask(t, svc, "202")
		first, err := svc.Start(task.ID, "maria")
		require.NoError(t, err)
		second, err := svc.Start(task.ID, "maria")
		assert.NoError(t, err)
		assert.Equal(t, first.Version, second.Version)
		assert.Equal(t, first.StartedAt, second.StartedAt)
	})

	t.Run("AssignedToAnotherWorker", func(t *testing.T) {
		svc, _ := newService()
		petra := "petra"
		task, err := svc.Create("front-desk", service.CreateTaskParams{
			RoomID:           "203",
			RoomGroup:        "main",
			ScheduledDate:    testDay,
			Kind:             models.StandardTaskKind,
			AssignedWorkerID: &petra,
		})
		require.NoError(t, err)
		_, err = svc.Start(task.ID, "maria")
		assert.ErrorIs(t, err, service.ErrTaskAssigned)
	})

	t.Run("WorkerBusy", func(t *testing.T) {
		svc, _ := newService()
		first := createTask(t, svc, "204")
		second := createTask(t, svc, "205")
		_, err := svc.Start(first.ID, "maria")
		require.NoError(t, err)
		_, err = svc.Start(second.ID, "maria")
		assert.ErrorIs(t, err, storage.ErrWorkerBusy)
	})

	t.Run("InvalidFromPaused", func(t *testing.T) {
		svc, _ := newService()
		task := createTask(t, svc, "206")
		_, err := svc.Start(task.ID, "maria")
		require.NoError(t, err)
		_, err = svc.Pause(task.ID, "maria")
		require.NoError(t, err)
		_, err = svc.Start(task.ID, "maria")
		assert.ErrorIs(t, err, service.ErrInvalidTransition)
	})

	t.Run("InvalidFromFinished", func(t *testing.T) {
		svc, _ := newService()
		task := createTask(t, svc, "207")
		_, err := svc.Start(task.ID, "maria")
		require.NoError(t, err)
		_, err = svc.Finish(task.ID, "maria")
		require.NoError(t, err)
		_, err = svc.Start(task.ID, "maria")
		assert.ErrorIs(t, err, service.ErrInvalidTransition)
	})

	t.Run("NotFound", func(t *testing.T) {
		svc, _ := newService()
		_, err := svc.Start("no-such-task", "maria")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ConcurrentStartsOneWorker", func(t *testing.T) {
		// Exactly one of two concurrent starts for the same worker may win.
		svc, _ := newService()
		first := createTask(t, svc, "208")
		second := createTask(t, svc, "209")

		errs := make(chan error, 2)
		var wg sync.WaitGroup
		for _, id := range []string{first.ID, second.ID} {
			wg.Add(1)
			go func(taskID string) {
				defer wg.Done()
				_, err := svc.Start(taskID, "maria")
				errs <- err
			}(id)
		}
		wg.Wait()
		close(errs)

		var successes, busies int
		for err := range errs {
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, storage.ErrWorkerBusy):
				busies++
			}
		}
		assert.Equal(t, 1, successes)
		assert.Equal(t, 1, busies)
	})
}

func TestPauseResume(t *testing.T) {
	t.Run("PauseOnlyFromRunning", func(t *testing.T) {
		svc, _ := newService()
		task := createTask(t, svc, "301")
		_, err := svc.Pause(task.ID, "maria")
		assert.ErrorIs(t, err, service.ErrInvalidTransition)
	})

	t.Run("ResumeOnlyFromPaused", func(t *testing.T) {
		svc, _ := newService()
		task := createTask(t, svc, "302")
		_, err := svc.Start(task.ID, "maria")
		require.NoError(t, err)
		_, err = svc.Resume(task.ID, "maria")
		assert.ErrorIs(t, err, service.ErrInvalidTransition)
	})

	t.Run("AccumulatesPauseAcrossCycles", func(t *testing.T) {
		svc, clk := newService()
		task := createTask(t, svc, "303")
		_, err := svc.Start(task.ID, "maria")
		require.NoError(t, err)

		// Three pause/resume cycles of 15, 7 and 1 minutes.
		total := 0
		for _, minutes := range []int{15, 7, 1} {
			clk.Advance(5 * time.Minute)
			paused, err := svc.Pause(task.ID, "maria")
			require.NoError(t, err)
			require.NotNil(t, paused.PauseStartedAt)

			clk.Advance(time.Duration(minutes) * time.Minute)
			resumed, err := svc.Resume(task.ID, "maria")
			require.NoError(t, err)
			total += minutes
			assert.Equal(t, total, resumed.TotalPauseMinutes)
			assert.Nil(t, resumed.PauseStartedAt)
			require.NotNil(t, resumed.LastPauseEndedAt)
			assert.Equal(t, clk.Now(), resumed.LastPauseEndedAt.UTC())
		}
	})

	t.Run("ResumeBlockedWhileWorkerRunsAnotherTask", func(t *testing.T) {
		svc, _ := newService()
		first := createTask(t, svc, "304")
		second := createTask(t, svc, "305")
		_, err := svc.Start(first.ID, "maria")
		require.NoError(t, err)
		_, err = svc.Pause(first.ID, "maria")
		require.NoError(t, err)
		// Paused task does not hold the worker slot.
		_, err = svc.Start(second.ID, "maria")
		require.NoError(t, err)

		_, err = svc.Resume(first.ID, "maria")
		assert.ErrorIs(t, err, storage.ErrWorkerBusy)
	})
}

func TestFinishTask(t *testing.T) {
	t.Run("WorkedExample", func(t *testing.T) {
		// Start 10:00, pause 10:20-10:35, finish 11:05, limit 45:
		// actual = 65 - 15 = 50, difference = +5.
		svc, clk := newService()
		task := createTask(t, svc, "401")
		_, err := svc.Start(task.ID, "maria")
		require.NoError(t, err)
		clk.Advance(20 * time.Minute)
		_, err = svc.Pause(task.ID, "maria")
		require.NoError(t, err)
		clk.Advance(15 * time.Minute)
		_, err = svc.Resume(task.ID, "maria")
		require.NoError(t, err)
		clk.Advance(30 * time.Minute)

		finished, err := svc.Finish(task.ID, "maria")
		require.NoError(t, err)
		assert.Equal(t, models.FinishedTaskStatus, finished.Status)
		assert.Equal(t, 15, finished.TotalPauseMinutes)
		require.NotNil(t, finished.ActualMinutes)
		assert.Equal(t, 50, *finished.ActualMinutes)
		require.NotNil(t, finished.DifferenceMinutes)
		assert.Equal(t, 5, *finished.DifferenceMinutes)
		require.NotNil(t, finished.FinishedAt)
		assert.Equal(t, clk.Now(), finished.FinishedAt.UTC())
	})

	t.Run("FromPausedClosesPendingPause", func(t *testing.T) {
		svc, clk := newService()
		task := createTask(t, svc, "402")
		_, err := svc.Start(task.ID, "maria")
		require.NoError(t, err)
		clk.Advance(20 * time.Minute)
		_, err = svc.Pause(task.ID, "maria")
		require.NoError(t, err)
		clk.Advance(10 * time.Minute)

		finished, err := svc.Finish(task.ID, "maria")
		require.NoError(t, err)
		assert.Equal(t, 10, finished.TotalPauseMinutes)
		assert.Nil(t, finished.PauseStartedAt)
		require.NotNil(t, finished.ActualMinutes)
		assert.Equal(t, 20, *finished.ActualMinutes)
	})

	t.Run("InvalidFromQueued", func(t *testing.T) {
		svc, _ := newService()
		task := createTask(t, svc, "403")
		_, err := svc.Finish(task.ID, "maria")
		assert.ErrorIs(t, err, service.ErrInvalidTransition)
	})

	t.Run("InvalidWhenAlreadyFinished", func(t *testing.T) {
		svc, _ := newService()
		task := createTask(t, svc, "404")
		_, err := svc.Start(task.ID, "maria")
		require.NoError(t, err)
		_, err = svc.Finish(task.ID, "maria")
		require.NoError(t, err)
		_, err = svc.Finish(task.ID, "maria")
		assert.ErrorIs(t, err, service.ErrInvalidTransition)
	})

	t.Run("FreesTheWorkerSlot", func(t *testing.T) {
		svc, _ := newService()
		first := createTask(t, svc, "405")
		second := createTask(t, svc, "406")
		_, err := svc.Start(first.ID, "maria")
		require.NoError(t, err)
		_, err = svc.Finish(first.ID, "maria")
		require.NoError(t, err)
		_, err = svc.Start(second.ID, "maria")
		assert.NoError(t, err)
	})
}

func TestFlagIssue(t *testing.T) {
	t.Run("DecoupledKeepsStatus", func(t *testing.T) {
		svc, _ := newService()
		task := createTask(t, svc, "501")
		_, err := svc.Start(task.ID, "maria")
		require.NoError(t, err)
		flagged, err := svc.FlagIssue(task.ID, "maria", "ISSUE-17", false)
		require.NoError(t, err)
		assert.Equal(t, models.RunningTaskStatus, flagged.Status)
		assert.True(t, flagged.IssueFlag)
		require.NotNil(t, flagged.IssueRef)
		assert.Equal(t, "ISSUE-17", *flagged.IssueRef)
	})

	t.Run("ForceRepairChangesStatus", func(t *testing.T) {
		svc, _ := newService()
		task := createTask(t, svc, "502")
		_, err := svc.Start(task.ID, "maria")
		require.NoError(t, err)
		flagged, err := svc.FlagIssue(task.ID, "maria", "ISSUE-18", true)
		require.NoError(t, err)
		assert.Equal(t, models.NeedsRepairTaskStatus, flagged.Status)
	})

	t.Run("ForceRepairFromPausedClosesPause", func(t *testing.T) {
		svc, clk := newService()
		task := createTask(t, svc, "503")
		_, err := svc.Start(task.ID, "maria")
		require.NoError(t, err)
		clk.Advance(5 * time.Minute)
		_, err = svc.Pause(task.ID, "maria")
		require.NoError(t, err)
		clk.Advance(8 * time.Minute)
		flagged, err := svc.FlagIssue(task.ID, "front-desk", "ISSUE-19", true)
		require.NoError(t, err)
		assert.Equal(t, models.NeedsRepairTaskStatus, flagged.Status)
		assert.Nil(t, flagged.PauseStartedAt)
		assert.Equal(t, 8, flagged.TotalPauseMinutes)
	})

	t.Run("InvalidOnFinished", func(t *testing.T) {
		svc, _ := newService()
		task := createTask(t, svc, "504")
		_, err := svc.Start(task.ID, "maria")
		require.NoError(t, err)
		_, err = svc.Finish(task.ID, "maria")
		require.NoError(t, err)
		_, err = svc.FlagIssue(task.ID, "maria", "ISSUE-20", false)
		assert.ErrorIs(t, err, service.ErrInvalidTransition)
	})

	t.Run("RestartAfterRepairResetsTiming", func(t *testing.T) {
		svc, clk := newService()
		task := createTask(t, svc, "505")
		_, err := svc.Start(task.ID, "maria")
		require.NoError(t, err)
		clk.Advance(10 * time.Minute)
		_, err = svc.Pause(task.ID, "maria")
		require.NoError(t, err)
		clk.Advance(10 * time.Minute)
		_, err = svc.FlagIssue(task.ID, "maria", "ISSUE-21", true)
		require.NoError(t, err)

		clk.Advance(2 * time.Hour)
		restarted, err := svc.Start(task.ID, "maria")
		require.NoError(t, err)
		assert.Equal(t, models.RunningTaskStatus, restarted.Status)
		assert.Equal(t, 0, restarted.TotalPauseMinutes)
		assert.Equal(t, clk.Now(), restarted.StartedAt.UTC())
		assert.Nil(t, restarted.ActualMinutes)
		assert.Nil(t, restarted.DifferenceMinutes)
	})
}

func TestUpdateDetails(t *testing.T) {
	t.Run("NotesDoNotTouchState", func(t *testing.T) {
		svc, _ := newService()
		task := createTask(t, svc, "601")
		_, err := svc.Start(task.ID, "maria")
		require.NoError(t, err)

		notes := "guest requested late clean"
		updated, err := svc.UpdateDetails(task.ID, "front-desk", storage.TaskDetails{FrontDeskNotes: &notes})
		require.NoError(t, err)
		assert.Equal(t, models.RunningTaskStatus, updated.Status)
		assert.Equal(t, notes, updated.FrontDeskNotes)
		assert.NotNil(t, updated.StartedAt)
	})

	t.Run("BumpsVersion", func(t *testing.T) {
		svc, _ := newService()
		task := createTask(t, svc, "602")
		notes := "vip"
		updated, err := svc.UpdateDetails(task.ID, "front-desk", storage.TaskDetails{FrontDeskNotes: &notes})
		require.NoError(t, err)
		assert.Equal(t, task.Version+1, updated.Version)
	})

	t.Run("ReassignOntoBusyWorkerConflicts", func(t *testing.T) {
		svc, _ := newService()
		first := createTask(t, svc, "603")
		second := createTask(t, svc, "604")
		_, err := svc.Start(first.ID, "maria")
		require.NoError(t, err)
		_, err = svc.Start(second.ID, "petra")
		require.NoError(t, err)

		maria := "maria"
		_, err = svc.UpdateDetails(second.ID, "front-desk", storage.TaskDetails{
			Reassign:         true,
			AssignedWorkerID: &maria,
		})
		assert.ErrorIs(t, err, storage.ErrWorkerBusy)
	})

	t.Run("LimitOverride", func(t *testing.T) {
		svc, _ := newService()
		task := createTask(t, svc, "605")
		limit := 60
		updated, err := svc.UpdateDetails(task.ID, "front-desk", storage.TaskDetails{
			OverrideLimit:    true,
			TimeLimitMinutes: &limit,
		})
		require.NoError(t, err)
		require.NotNil(t, updated.TimeLimitMinutes)
		assert.Equal(t, 60, *updated.TimeLimitMinutes)
	})
}

func TestConcurrentCreateSameRoomDate(t *testing.T) {
	// Exactly one of two concurrent creates for the same (room, date) wins.
	svc, _ := newService()

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create("front-desk", service.CreateTaskParams{
				RoomID:        "701",
				RoomGroup:     "main",
				ScheduledDate: testDay,
				Kind:          models.DepartureCleanTaskKind,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var successes, duplicates int
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, storage.ErrDuplicateOpenTask):
			duplicates++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, duplicates)
}

func TestTransitionAudit(t *testing.T) {
	svc, clk := newService()
	task := createTask(t, svc, "801")
	_, err := svc.Start(task.ID, "maria")
	require.NoError(t, err)
	clk.Advance(5 * time.Minute)
	_, err = svc.Pause(task.ID, "maria")
	require.NoError(t, err)
	clk.Advance(5 * time.Minute)
	_, err = svc.Resume(task.ID, "maria")
	require.NoError(t, err)
	_, err = svc.Finish(task.ID, "maria")
	require.NoError(t, err)

	recs, err := svc.ListTransitions(task.ID)
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, models.QueuedTaskStatus, recs[0].FromStatus)
	assert.Equal(t, models.RunningTaskStatus, recs[0].ToStatus)
	assert.Equal(t, models.PausedTaskStatus, recs[1].ToStatus)
	assert.Equal(t, models.RunningTaskStatus, recs[2].ToStatus)
	assert.Equal(t, models.FinishedTaskStatus, recs[3].ToStatus)
	for _, rec := range recs {
		assert.Equal(t, "maria", rec.Actor)
	}
}
