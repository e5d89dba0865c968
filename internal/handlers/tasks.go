package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"media-assistant/internal/middleware"
	"media-assistant/internal/tasks"
)

// ListTasks returns the status of every registered task.
func (h *Handlers) ListTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSONStatusCode(w, http.StatusOK, h.tasks.Status())
}

// RunTaskResponse reports a task start request.
type RunTaskResponse struct {
	Task    string `json:"task"`
	RunID   string `json:"runId"`
	Started bool   `json:"started"`
}

// RunTask starts a task in the background. A task that is already running
// is not started again; the response then carries the current run id.
func (h *Handlers) RunTask(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	runID, started, err := h.tasks.Start(name)
	if errors.Is(err, tasks.ErrUnknownTask) {
		writeJSONError(w, "Unknown task", http.StatusNotFound)
		return
	}
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set(middleware.RunIDHeader, runID)
	code := http.StatusAccepted
	if !started {
		code = http.StatusOK
	}
	writeJSONStatusCode(w, code, RunTaskResponse{Task: name, RunID: runID, Started: started})
}

// CancelTask cancels the running instance of a task.
func (h *Handlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	cancelled, err := h.tasks.Cancel(name)
	if errors.Is(err, tasks.ErrUnknownTask) {
		writeJSONError(w, "Unknown task", http.StatusNotFound)
		return
	}
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONStatusCode(w, http.StatusOK, map[string]interface{}{"task": name, "cancelled": cancelled})
}
