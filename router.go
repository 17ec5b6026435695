package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/studysensors/sensors/hub"
)

func newRouter(h *hub.Hub, events http.Handler, gatherer prometheus.Gatherer) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	// Expose the registered metrics via HTTP.
	router.Handle("/metrics", promhttp.HandlerFor(
		gatherer,
		promhttp.HandlerOpts{
			// Opt into OpenMetrics to support exemplars.
			EnableOpenMetrics: true,
		},
	))

	router.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("OK"))
		})
		r.Get("/position", func(w http.ResponseWriter, r *http.Request) {
			fix, ok := h.LastFix()
			if !ok {
				http.Error(w, "no position yet", http.StatusNotFound)
				return
			}
			writeJSON(w, fix)
		})
		r.Get("/steps", func(w http.ResponseWriter, r *http.Request) {
			steps, ok := h.LastSteps()
			if !ok {
				http.Error(w, "no step reading yet", http.StatusNotFound)
				return
			}
			writeJSON(w, steps)
		})
		r.Get("/capabilities", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, h.Capabilities())
		})
	})

	router.Handle("/ws/events", events)

	return router
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("failed to write response: %s", err)
	}
}
