package handlers

import (
	"net/http"
	"runtime"

	"media-assistant/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status            string `json:"status"`
	Ready             bool   `json:"ready"`
	Version           string `json:"version"`
	Uptime            string `json:"uptime"`
	Indexing          bool   `json:"indexing"`
	LastIndexed       string `json:"lastIndexed,omitempty"`
	InitialIndexError string `json:"initialIndexError,omitempty"`
	ItemsIndexed      int64  `json:"itemsIndexed"`
	RunningTasks      int    `json:"runningTasks"`

	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	hs := h.indexer.GetHealthStatus()

	response := HealthResponse{
		Status:       statusStarting,
		Ready:        hs.Ready,
		Version:      startup.Version,
		Uptime:       hs.Uptime,
		Indexing:     hs.Indexing,
		ItemsIndexed: hs.ItemsIndexed,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if hs.Ready {
		response.Status = statusHealthy
	}
	if !hs.LastIndexed.IsZero() {
		response.LastIndexed = hs.LastIndexed.Format("2006-01-02T15:04:05Z07:00")
	}
	if hs.InitialIndexError != "" {
		response.InitialIndexError = hs.InitialIndexError
		response.Status = statusDegraded
	}
	if h.tasks != nil {
		for _, st := range h.tasks.Status() {
			if st.Running {
				response.RunningTasks++
			}
		}
	}

	code := http.StatusOK
	if !hs.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSONStatusCode(w, code, response)
}

// ReadinessCheck returns 200 only once the initial index has completed.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.indexer.GetHealthStatus().Ready {
		writeJSONStatusCode(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSONStatusCode(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}
