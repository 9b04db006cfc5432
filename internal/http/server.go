package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/internal/log"
	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/models"
	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/service"
	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/storage"
	"github.com/pkg/errors"
)

const dateLayout = "2006-01-02"

// callerHeader carries the caller identity on every mutating request.
// Authorization itself is enforced upstream; the engine only needs the identity.
const callerHeader = "X-Caller-ID"

// StartServer wires the task service to an HTTP listener.
func StartServer(port string, svc *service.TaskService) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/tasks", TasksHandler(svc))
	mux.HandleFunc("/tasks/", TaskByIDHandler(svc))
	mux.HandleFunc("/watch", WatchHandler(svc))

	log.GetLogger().Infof("Starting suitesync server on :%s", port)
	return http.ListenAndServe(":"+port, mux)
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "suitesync server is running")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}

// writeError maps the engine's error taxonomy to HTTP statuses. Admission
// conflicts are legitimate concurrent-use outcomes, so they come back as 409
// with a message the UI can show as "someone already ...".
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, storage.ErrWorkerBusy),
		errors.Is(err, storage.ErrDuplicateOpenTask),
		errors.Is(err, storage.ErrVersionConflict),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrTaskAssigned):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(callerHeader)
	if id == "" {
		http.Error(w, "missing "+callerHeader+" header", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

type createTaskRequest struct {
	RoomID           string  `json:"room_id"`
	RoomGroup        string  `json:"room_group"`
	ScheduledDate    string  `json:"scheduled_date"`
	Kind             string  `json:"kind"`
	CapacityCode     string  `json:"capacity_code"`
	AssignedWorkerID *string `json:"assigned_worker_id"`
	FrontDeskNotes   string  `json:"front_desk_notes"`
}

// TasksHandler serves the task collection: list by date or worker, create.
func TasksHandler(svc *service.TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			listTasksHTTP(w, r, svc)
		case http.MethodPost:
			createTaskHTTP(w, r, svc)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func createTaskHTTP(w http.ResponseWriter, r *http.Request, svc *service.TaskService) {
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	date, err := time.Parse(dateLayout, req.ScheduledDate)
	if err != nil {
		http.Error(w, "invalid scheduled_date: "+err.Error(), http.StatusBadRequest)
		return
	}
	task, err := svc.Create(actor, service.CreateTaskParams{
		RoomID:           req.RoomID,
		RoomGroup:        req.RoomGroup,
		ScheduledDate:    date,
		Kind:             models.TaskKind(req.Kind),
		CapacityCode:     models.CapacityCode(req.CapacityCode),
		AssignedWorkerID: req.AssignedWorkerID,
		FrontDeskNotes:   req.FrontDeskNotes,
	})
	if err != nil {
		log.GetLogger().Errorf("Failed to create task: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func listTasksHTTP(w http.ResponseWriter, r *http.Request, svc *service.TaskService) {
	if workerID := r.URL.Query().Get("worker"); workerID != "" {
		tasks, err := svc.ListWorkerTasks(workerID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tasks)
		return
	}
	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		http.Error(w, "missing 'date' or 'worker' query parameter", http.StatusBadRequest)
		return
	}
	date, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		http.Error(w, "invalid date: "+err.Error(), http.StatusBadRequest)
		return
	}
	tasks, err := svc.ListBoard(date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

type actionRequest struct {
	WorkerID    string `json:"worker_id"`
	IssueRef    string `json:"issue_ref"`
	ForceRepair bool   `json:"force_repair"`
}

type detailsRequest struct {
	Reassign         bool    `json:"reassign"`
	AssignedWorkerID *string `json:"assigned_worker_id"`
	OverrideLimit    bool    `json:"override_limit"`
	TimeLimitMinutes *int    `json:"time_limit_minutes"`
	FrontDeskNotes   *string `json:"front_desk_notes"`
	WorkerNotes      *string `json:"worker_notes"`
}

// TaskByIDHandler serves a single task: fetch, detail edits and the
// lifecycle actions (/start, /pause, /resume, /finish, /issue) plus the
// transition history (/transitions).
func TaskByIDHandler(svc *service.TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/tasks/")
		parts := strings.SplitN(rest, "/", 2)
		taskID := parts[0]
		if taskID == "" {
			http.Error(w, "missing task id", http.StatusBadRequest)
			return
		}
		action := ""
		if len(parts) == 2 {
			action = parts[1]
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			task, err := svc.GetTask(taskID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, task)
		case action == "" && r.Method == http.MethodPatch:
			updateDetailsHTTP(w, r, svc, taskID)
		case action == "transitions" && r.Method == http.MethodGet:
			recs, err := svc.ListTransitions(taskID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, recs)
		case r.Method == http.MethodPost:
			taskActionHTTP(w, r, svc, taskID, action)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func taskActionHTTP(w http.ResponseWriter, r *http.Request, svc *service.TaskService, taskID, action string) {
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	var req actionRequest
	if r.Body != nil {
		// Body is optional for pause/finish; ignore decode errors on empty bodies.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	workerID := req.WorkerID
	if workerID == "" {
		workerID = actor
	}

	var task models.Task
	var err error
	switch action {
	case "start":
		task, err = svc.Start(taskID, workerID)
	case "pause":
		task, err = svc.Pause(taskID, actor)
	case "resume":
		task, err = svc.Resume(taskID, workerID)
	case "finish":
		task, err = svc.Finish(taskID, actor)
	case "issue":
		task, err = svc.FlagIssue(taskID, actor, req.IssueRef, req.ForceRepair)
	default:
		http.Error(w, "unknown action "+action, http.StatusNotFound)
		return
	}
	if err != nil {
		log.GetLogger().Errorf("Task %s action %s failed: %v", taskID, action, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func updateDetailsHTTP(w http.ResponseWriter, r *http.Request, svc *service.TaskService, taskID string) {
	actor, ok := caller(w, r)
	if !ok {
		return
	}
	var req detailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	task, err := svc.UpdateDetails(taskID, actor, storage.TaskDetails{
		Reassign:         req.Reassign,
		AssignedWorkerID: req.AssignedWorkerID,
		OverrideLimit:    req.OverrideLimit,
		TimeLimitMinutes: req.TimeLimitMinutes,
		FrontDeskNotes:   req.FrontDeskNotes,
		WorkerNotes:      req.WorkerNotes,
	})
	if err != nil {
		log.GetLogger().Errorf("Failed to update task %s details: %v", taskID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// WatchHandler streams committed task snapshots for a partition over SSE.
// The first event is the full current partition so a (re)connecting client
// reconciles by re-fetch instead of replaying missed notifications.
func WatchHandler(svc *service.TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		var partition service.Partition
		var initial []models.Task
		var err error
		if workerID := r.URL.Query().Get("worker"); workerID != "" {
			partition = service.WorkerPartition(workerID)
			initial, err = svc.ListWorkerTasks(workerID)
		} else if dateStr := r.URL.Query().Get("date"); dateStr != "" {
			var date time.Time
			date, err = time.Parse(dateLayout, dateStr)
			if err != nil {
				http.Error(w, "invalid date: "+err.Error(), http.StatusBadRequest)
				return
			}
			partition = service.DatePartition(date)
			initial, err = svc.ListBoard(date)
		} else {
			http.Error(w, "missing 'date' or 'worker' query parameter", http.StatusBadRequest)
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}

		// Subscribe before sending the initial snapshot so no committed
		// mutation falls in between; duplicates are harmless under the
		// strictly-increasing-version apply rule.
		sub := svc.Notifier().Subscribe(partition)
		defer sub.Close()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)

		send := func(t models.Task) bool {
			data, err := json.Marshal(t)
			if err != nil {
				log.GetLogger().Errorf("Failed to marshal snapshot: %v", err)
				return false
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return false
			}
			flusher.Flush()
			return true
		}

		for _, t := range initial {
			if !send(t) {
				return
			}
		}
		for {
			select {
			case <-r.Context().Done():
				return
			case t, ok := <-sub.Updates():
				if !ok {
					return
				}
				if !send(t) {
					return
				}
			}
		}
	}
}
