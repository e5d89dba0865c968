package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"media-assistant/internal/library"
	"media-assistant/internal/logging"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Encoding errors are logged since the status line is already sent.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONStatusCode writes v with the given status code.
func writeJSONStatusCode(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONStatusCode(w, statusCode, map[string]string{"error": message})
}

// itemFromPath loads the item named by the {id} route variable. It writes
// the error response and returns false when the item cannot be loaded.
func (h *Handlers) itemFromPath(w http.ResponseWriter, r *http.Request) (library.Item, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, "Invalid item id", http.StatusBadRequest)
		return library.Item{}, false
	}
	item, err := h.index.GetItem(r.Context(), id)
	if errors.Is(err, library.ErrNotFound) {
		writeJSONError(w, "Item not found", http.StatusNotFound)
		return library.Item{}, false
	}
	if err != nil {
		logging.Error("Failed to load item %d: %v", id, err)
		writeJSONError(w, "Failed to load item", http.StatusInternalServerError)
		return library.Item{}, false
	}
	return item, true
}
