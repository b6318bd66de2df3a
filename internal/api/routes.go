package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	logx "agentdeck/pkg/logx"
)

// NewRouter wires all routes with the request-logging middleware.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(h.log))

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/jobs", h.listJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/refresh", h.refreshJobs).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}/toggle", h.toggleJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}/run", h.runJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}/logs", h.jobLogs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/customization", h.getCustomization).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/customization", h.putCustomization).Methods(http.MethodPut)
	api.HandleFunc("/jobs/{id}/customization", h.deleteCustomization).Methods(http.MethodDelete)
	api.HandleFunc("/settings", h.getSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", h.putSettings).Methods(http.MethodPut)
	api.HandleFunc("/visible", h.windowVisible).Methods(http.MethodPost)

	return r
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(log logx.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			log.Debug("request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", rw.status),
				logx.Duration("took", time.Since(start)))
		})
	}
}
