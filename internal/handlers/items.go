package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gorilla/mux"

	"media-assistant/internal/filesystem"
	"media-assistant/internal/fingerprint"
	"media-assistant/internal/logging"
	"media-assistant/internal/selection"
	"media-assistant/internal/tasks"
)

// itemActions maps the on-demand item routes to their pipelines.
var itemActions = map[string]string{
	"fingerprint": selection.FingerprintPipelineName,
	"thumbnail":   selection.ThumbnailPipelineName,
	"subtitles":   selection.SubtitlePipelineName,
	"mediainfo":   selection.MediaInfoPipelineName,
}

// ProcessItemResponse reports an on-demand pipeline run.
type ProcessItemResponse struct {
	ItemID   int64  `json:"itemId"`
	Pipeline string `json:"pipeline"`
	Selected int    `json:"selected"`
}

// ProcessItem runs one pipeline for a single item and waits for it. An item
// the pipeline considers done or permanently failed is not processed and
// reports zero selected items.
func (h *Handlers) ProcessItem(w http.ResponseWriter, r *http.Request) {
	pipeline, ok := itemActions[mux.Vars(r)["action"]]
	if !ok {
		writeJSONError(w, "Unknown action", http.StatusNotFound)
		return
	}
	item, ok := h.itemFromPath(w, r)
	if !ok {
		return
	}

	selected, err := h.jobs.ProcessItem(r.Context(), pipeline, item)
	switch {
	case errors.Is(err, tasks.ErrUnknownTask):
		writeJSONError(w, fmt.Sprintf("%s is not available", pipeline), http.StatusServiceUnavailable)
		return
	case errors.Is(err, context.Canceled):
		writeJSONError(w, "Request cancelled", http.StatusRequestTimeout)
		return
	case err != nil:
		logging.Error("%s on demand failed for %s: %v", pipeline, item.Path, err)
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONStatusCode(w, http.StatusOK, ProcessItemResponse{ItemID: item.ID, Pipeline: pipeline, Selected: selected})
}

// ClearIntroRequest names the series and seasons whose markers are removed.
type ClearIntroRequest struct {
	IDs string `json:"ids"`
}

// ClearIntroResponse summarizes a marker clear.
type ClearIntroResponse struct {
	Shows    int   `json:"shows"`
	Episodes int   `json:"episodes"`
	Markers  int64 `json:"markers"`
}

// ClearIntro removes intro and credits markers from every episode of the
// listed series and seasons.
func (h *Handlers) ClearIntro(w http.ResponseWriter, r *http.Request) {
	var req ClearIntroRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.IDs) == "" {
		writeJSONError(w, "ids is required", http.StatusBadRequest)
		return
	}

	res, err := fingerprint.ClearIntroMarkers(r.Context(), h.markers, h.expander, req.IDs, nil)
	if err != nil {
		logging.Error("Clearing intro markers failed: %v", err)
		writeJSONError(w, "Failed to clear markers", http.StatusInternalServerError)
		return
	}
	writeJSONStatusCode(w, http.StatusOK, ClearIntroResponse{
		Shows:    len(res.Shows),
		Episodes: res.Episodes,
		Markers:  res.Markers,
	})
}

// TriggerReindex starts a library scan in the background.
func (h *Handlers) TriggerReindex(w http.ResponseWriter, _ *http.Request) {
	h.indexer.TriggerIndex()
	writeJSONStatusCode(w, http.StatusAccepted, map[string]string{"status": "started"})
}

var chapterImageName = regexp.MustCompile(`^chapter_\d{2}\.jpg$`)

// ListChapterImages returns the URLs of an item's chapter images.
func (h *Handlers) ListChapterImages(w http.ResponseWriter, r *http.Request) {
	if h.images == nil {
		writeJSONError(w, "Video thumbnails are disabled", http.StatusNotFound)
		return
	}
	item, ok := h.itemFromPath(w, r)
	if !ok {
		return
	}
	paths, err := h.images.Images(item.ID)
	if err != nil {
		logging.Error("Failed to list chapter images of %d: %v", item.ID, err)
		writeJSONError(w, "Failed to list chapter images", http.StatusInternalServerError)
		return
	}
	urls := make([]string, 0, len(paths))
	for _, p := range paths {
		urls = append(urls, fmt.Sprintf("/api/items/%d/images/%s", item.ID, filepath.Base(p)))
	}
	writeJSONStatusCode(w, http.StatusOK, urls)
}

// GetChapterImage serves one chapter image.
func (h *Handlers) GetChapterImage(w http.ResponseWriter, r *http.Request) {
	if h.images == nil {
		http.NotFound(w, r)
		return
	}
	name := mux.Vars(r)["file"]
	if !chapterImageName.MatchString(name) {
		http.NotFound(w, r)
		return
	}
	item, ok := h.itemFromPath(w, r)
	if !ok {
		return
	}

	path := filepath.Join(h.images.ItemDir(item.ID), name)
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, "Failed to read image", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, name, info.ModTime(), f)
}
