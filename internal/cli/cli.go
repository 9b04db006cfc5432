package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/internal/log"
	internal_storage "github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/internal/storage"
	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/clock"
	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/models"
	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/service"
	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/storage"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

func SetupCLI(rootCmd *cobra.Command) {
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new task for a room and date",
		Run: func(cmd *cobra.Command, args []string) {
			svc, store := initService(cmd)
			defer store.Close()
			roomID, _ := cmd.Flags().GetString("room")
			roomGroup, _ := cmd.Flags().GetString("group")
			dateStr, _ := cmd.Flags().GetString("date")
			kind, _ := cmd.Flags().GetString("kind")
			capacity, _ := cmd.Flags().GetString("capacity")
			workerID, _ := cmd.Flags().GetString("worker")
			notes, _ := cmd.Flags().GetString("notes")
			actor, _ := cmd.Flags().GetString("actor")

			date, err := time.Parse(dateLayout, dateStr)
			if err != nil {
				fail("invalid --date: %v", err)
			}
			params := service.CreateTaskParams{
				RoomID:         roomID,
				RoomGroup:      roomGroup,
				ScheduledDate:  date,
				Kind:           models.TaskKind(kind),
				CapacityCode:   models.CapacityCode(capacity),
				FrontDeskNotes: notes,
			}
			if workerID != "" {
				params.AssignedWorkerID = &workerID
			}
			task, err := svc.Create(actor, params)
			if err != nil {
				fail("failed to create task: %v", err)
			}
			fmt.Fprintf(os.Stdout, "Created task %s for room %s on %s\n", task.ID, task.RoomID, dateStr)
		},
	}
	createCmd.Flags().String("room", "", "Room ID (required)")
	createCmd.Flags().String("group", "", "Room group for the time-limit lookup")
	createCmd.Flags().String("date", time.Now().UTC().Format(dateLayout), "Scheduled date (YYYY-MM-DD)")
	createCmd.Flags().String("kind", string(models.StandardTaskKind), "Task kind")
	createCmd.Flags().String("capacity", "", "Capacity code")
	createCmd.Flags().String("worker", "", "Assigned worker ID (optional)")
	createCmd.Flags().String("notes", "", "Front-desk notes")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks for a date or a worker",
		Run: func(cmd *cobra.Command, args []string) {
			svc, store := initService(cmd)
			defer store.Close()
			workerID, _ := cmd.Flags().GetString("worker")
			dateStr, _ := cmd.Flags().GetString("date")

			var tasks []models.Task
			var err error
			if workerID != "" {
				tasks, err = svc.ListWorkerTasks(workerID)
			} else {
				var date time.Time
				date, err = time.Parse(dateLayout, dateStr)
				if err != nil {
					fail("invalid --date: %v", err)
				}
				tasks, err = svc.ListBoard(date)
			}
			if err != nil {
				fail("failed to list tasks: %v", err)
			}
			if len(tasks) == 0 {
				fmt.Fprintf(os.Stdout, "No tasks found.\n")
				return
			}
			for _, t := range tasks {
				worker := "-"
				if t.AssignedWorkerID != nil {
					worker = *t.AssignedWorkerID
				}
				fmt.Fprintf(os.Stdout, "- ID: %s, Room: %s, Kind: %s, Status: %s, Worker: %s\n",
					t.ID, t.RoomID, t.Kind, t.Status, worker)
			}
		},
	}
	listCmd.Flags().String("worker", "", "List tasks assigned to this worker")
	listCmd.Flags().String("date", time.Now().UTC().Format(dateLayout), "List tasks for this date (YYYY-MM-DD)")

	showCmd := &cobra.Command{
		Use:   "show [task-id]",
		Short: "Show a task and its transition history",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, store := initService(cmd)
			defer store.Close()
			task, err := svc.GetTask(args[0])
			if err != nil {
				fail("failed to get task: %v", err)
			}
			printTask(task)
			recs, err := svc.ListTransitions(args[0])
			if err != nil {
				fail("failed to get transitions: %v", err)
			}
			for _, rec := range recs {
				fmt.Fprintf(os.Stdout, "  %s  %s -> %s (by %s)\n",
					rec.OccurredAt.Format(time.RFC3339), rec.FromStatus, rec.ToStatus, rec.Actor)
			}
		},
	}

	startCmd := &cobra.Command{
		Use:   "start [task-id]",
		Short: "Start a task for a worker",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, store := initService(cmd)
			defer store.Close()
			workerID := requiredFlag(cmd, "worker")
			task, err := svc.Start(args[0], workerID)
			if err != nil {
				fail("failed to start task: %v", err)
			}
			fmt.Fprintf(os.Stdout, "Task %s is %s for worker %s\n", task.ID, task.Status, workerID)
		},
	}
	startCmd.Flags().String("worker", "", "Worker ID (required)")

	pauseCmd := &cobra.Command{
		Use:   "pause [task-id]",
		Short: "Pause a running task",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, store := initService(cmd)
			defer store.Close()
			actor, _ := cmd.Flags().GetString("actor")
			task, err := svc.Pause(args[0], actor)
			if err != nil {
				fail("failed to pause task: %v", err)
			}
			fmt.Fprintf(os.Stdout, "Task %s is %s\n", task.ID, task.Status)
		},
	}

	resumeCmd := &cobra.Command{
		Use:   "resume [task-id]",
		Short: "Resume a paused task",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, store := initService(cmd)
			defer store.Close()
			workerID := requiredFlag(cmd, "worker")
			task, err := svc.Resume(args[0], workerID)
			if err != nil {
				fail("failed to resume task: %v", err)
			}
			fmt.Fprintf(os.Stdout, "Task %s is %s (total pause %d min)\n", task.ID, task.Status, task.TotalPauseMinutes)
		},
	}
	resumeCmd.Flags().String("worker", "", "Worker ID (required)")

	finishCmd := &cobra.Command{
		Use:   "finish [task-id]",
		Short: "Finish a running or paused task",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, store := initService(cmd)
			defer store.Close()
			actor, _ := cmd.Flags().GetString("actor")
			task, err := svc.Finish(args[0], actor)
			if err != nil {
				fail("failed to finish task: %v", err)
			}
			diff := "n/a"
			if task.DifferenceMinutes != nil {
				diff = fmt.Sprintf("%+d", *task.DifferenceMinutes)
			}
			fmt.Fprintf(os.Stdout, "Task %s finished: actual %d min, difference %s\n",
				task.ID, *task.ActualMinutes, diff)
		},
	}

	flagIssueCmd := &cobra.Command{
		Use:   "flag-issue [task-id]",
		Short: "Flag an issue on a task",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, store := initService(cmd)
			defer store.Close()
			actor, _ := cmd.Flags().GetString("actor")
			ref, _ := cmd.Flags().GetString("ref")
			forceRepair, _ := cmd.Flags().GetBool("force-repair")
			task, err := svc.FlagIssue(args[0], actor, ref, forceRepair)
			if err != nil {
				fail("failed to flag issue: %v", err)
			}
			fmt.Fprintf(os.Stdout, "Task %s flagged (status %s)\n", task.ID, task.Status)
		},
	}
	flagIssueCmd.Flags().String("ref", "", "External issue reference")
	flagIssueCmd.Flags().Bool("force-repair", false, "Also move the task to NEEDS_REPAIR")

	editCmd := &cobra.Command{
		Use:   "edit [task-id]",
		Short: "Edit task details (reassignment, notes, limit override)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, store := initService(cmd)
			defer store.Close()
			actor, _ := cmd.Flags().GetString("actor")
			var d storage.TaskDetails
			if cmd.Flags().Changed("worker") {
				workerID, _ := cmd.Flags().GetString("worker")
				d.Reassign = true
				if workerID != "" {
					d.AssignedWorkerID = &workerID
				}
			}
			if cmd.Flags().Changed("limit") {
				limit, _ := cmd.Flags().GetInt("limit")
				d.OverrideLimit = true
				if limit >= 0 {
					d.TimeLimitMinutes = &limit
				}
			}
			if cmd.Flags().Changed("notes") {
				notes, _ := cmd.Flags().GetString("notes")
				d.FrontDeskNotes = &notes
			}
			task, err := svc.UpdateDetails(args[0], actor, d)
			if err != nil {
				fail("failed to edit task: %v", err)
			}
			fmt.Fprintf(os.Stdout, "Task %s updated (version %d)\n", task.ID, task.Version)
		},
	}
	editCmd.Flags().String("worker", "", "Reassign to worker (empty unassigns)")
	editCmd.Flags().Int("limit", -1, "Override time limit in minutes (negative removes it)")
	editCmd.Flags().String("notes", "", "Front-desk notes")

	for _, c := range []*cobra.Command{createCmd, listCmd, showCmd, startCmd, pauseCmd, resumeCmd, finishCmd, flagIssueCmd, editCmd} {
		if c.Flags().Lookup("actor") == nil {
			c.Flags().String("actor", "front-desk", "Caller identity recorded in the audit trail")
		}
		rootCmd.AddCommand(c)
	}
}

func printTask(t models.Task) {
	worker := "-"
	if t.AssignedWorkerID != nil {
		worker = *t.AssignedWorkerID
	}
	fmt.Fprintf(os.Stdout, "Task %s\n  Room: %s  Date: %s  Kind: %s\n  Status: %s  Worker: %s  Pause total: %d min\n",
		t.ID, t.RoomID, t.ScheduledDate.Format(dateLayout), t.Kind, t.Status, worker, t.TotalPauseMinutes)
	if t.ActualMinutes != nil {
		fmt.Fprintf(os.Stdout, "  Actual: %d min\n", *t.ActualMinutes)
	}
}

func requiredFlag(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		fail("--%s is required", name)
	}
	return v
}

func fail(format string, args ...interface{}) {
	log.GetLogger().Errorf(format, args...)
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func initService(cmd *cobra.Command) (*service.TaskService, *internal_storage.PostgresStore) {
	dbConnStr, err := cmd.Flags().GetString("db")
	if err != nil {
		fail("error retrieving db flag: %v", err)
	}
	store := initStore(dbConnStr)
	svc := service.NewTaskService(store, clock.RealClock{}, service.NoLimits{}, log.GetLogger())
	return svc, store
}

func initStore(dbConnStr string) *internal_storage.PostgresStore {
	store, err := internal_storage.InitStore(dbConnStr)
	if err != nil {
		fail("failed to initialize store: %v", err)
	}
	return store
}
