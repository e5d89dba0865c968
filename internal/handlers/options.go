package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"media-assistant/internal/logging"
	"media-assistant/internal/options"
	"media-assistant/internal/scope"
)

// GetOptions returns the current options document.
func (h *Handlers) GetOptions(w http.ResponseWriter, _ *http.Request) {
	writeJSONStatusCode(w, http.StatusOK, h.opts.Current())
}

// PutOptions validates and saves a complete options document. Listeners
// (library sync, scope refresh, timeout policy) run before the response.
func (h *Handlers) PutOptions(w http.ResponseWriter, r *http.Request) {
	var next options.Options
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&next); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := h.opts.Save(r.Context(), next)
	switch {
	case errors.Is(err, options.ErrInvalidOptions):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, options.ErrNotApplied):
		logging.Warn("%v", err)
	case err != nil:
		logging.Error("Failed to save options: %v", err)
		writeJSONError(w, "Failed to save options", http.StatusInternalServerError)
		return
	}
	writeJSONStatusCode(w, http.StatusOK, h.opts.Current())
}

// ScopeResponse is the published scope of one pipeline.
type ScopeResponse struct {
	Pipeline    string            `json:"pipeline"`
	Description string            `json:"description"`
	Resolution  *scope.Resolution `json:"resolution"`
}

// GetScope returns the scope every pipeline currently selects from.
func (h *Handlers) GetScope(w http.ResponseWriter, _ *http.Request) {
	pipelines := h.selection.Pipelines()
	out := make([]ScopeResponse, 0, len(pipelines))
	for _, p := range pipelines {
		res := p.Scope().Load()
		out = append(out, ScopeResponse{
			Pipeline:    p.Name,
			Description: res.Description(),
			Resolution:  res,
		})
	}
	writeJSONStatusCode(w, http.StatusOK, out)
}

// GetLibraries returns the libraries known to the index.
func (h *Handlers) GetLibraries(w http.ResponseWriter, r *http.Request) {
	libs, err := h.index.Libraries(r.Context())
	if err != nil {
		logging.Error("Failed to list libraries: %v", err)
		writeJSONError(w, "Failed to list libraries", http.StatusInternalServerError)
		return
	}
	writeJSONStatusCode(w, http.StatusOK, libs)
}
