package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"media-assistant/internal/logging"
)

// AddFavorite marks an item as a favorite of a user.
func (h *Handlers) AddFavorite(w http.ResponseWriter, r *http.Request) {
	h.setFavorite(w, r, true)
}

// RemoveFavorite clears a user's favorite flag on an item.
func (h *Handlers) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	h.setFavorite(w, r, false)
}

func (h *Handlers) setFavorite(w http.ResponseWriter, r *http.Request, favorite bool) {
	user := strings.TrimSpace(mux.Vars(r)["user"])
	if user == "" {
		writeJSONError(w, "User is required", http.StatusBadRequest)
		return
	}
	item, ok := h.itemFromPath(w, r)
	if !ok {
		return
	}

	if err := h.favorites.SetFavorite(r.Context(), user, item.ID, favorite); err != nil {
		logging.Error("Failed to update favorite %d for %s: %v", item.ID, user, err)
		writeJSONError(w, "Failed to update favorite", http.StatusInternalServerError)
		return
	}
	writeJSONStatusCode(w, http.StatusOK, map[string]interface{}{
		"user":     user,
		"itemId":   item.ID,
		"favorite": favorite,
	})
}
