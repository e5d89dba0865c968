package handlers

import (
	"fmt"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-assistant/internal/logging"
)

// MetricsRouter serves /metrics and /health on the metrics port.
func (h *Handlers) MetricsRouter() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog:          promErrorLog{},
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})).Methods("GET")
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	return r
}

// promErrorLog routes promhttp gather errors to the application log.
type promErrorLog struct{}

func (promErrorLog) Println(v ...interface{}) {
	logging.Error("metrics - %s", fmt.Sprint(v...))
}
