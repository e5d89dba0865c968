package handlers

import (
	"github.com/gorilla/mux"
)

// Router builds the API router.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/options", h.GetOptions).Methods("GET")
	api.HandleFunc("/options", h.PutOptions).Methods("PUT")
	api.HandleFunc("/scope", h.GetScope).Methods("GET")
	api.HandleFunc("/libraries", h.GetLibraries).Methods("GET")

	api.HandleFunc("/users/{user}/favorites/{id:[0-9]+}", h.AddFavorite).Methods("POST")
	api.HandleFunc("/users/{user}/favorites/{id:[0-9]+}", h.RemoveFavorite).Methods("DELETE")

	api.HandleFunc("/tasks", h.ListTasks).Methods("GET")
	api.HandleFunc("/tasks/{name}/run", h.RunTask).Methods("POST")
	api.HandleFunc("/tasks/{name}/cancel", h.CancelTask).Methods("POST")

	api.HandleFunc("/items/{id:[0-9]+}/images", h.ListChapterImages).Methods("GET")
	api.HandleFunc("/items/{id:[0-9]+}/images/{file}", h.GetChapterImage).Methods("GET")
	api.HandleFunc("/items/{id:[0-9]+}/{action}", h.ProcessItem).Methods("POST")

	api.HandleFunc("/intro/clear", h.ClearIntro).Methods("POST")
	api.HandleFunc("/reindex", h.TriggerReindex).Methods("POST")

	return r
}
