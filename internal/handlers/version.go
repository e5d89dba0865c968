package handlers

import (
	"net/http"

	"media-assistant/internal/startup"
)

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSONStatusCode(w, http.StatusOK, startup.GetBuildInfo())
}
