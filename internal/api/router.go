package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/seclens/rotograph/internal/api/handlers"
	"github.com/seclens/rotograph/pkg/logger"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	runs *handlers.RunsHandler,
	graph *handlers.GraphHandler,
	explain *handlers.ExplainHandler,
	stream *handlers.StreamHub,
	log *logger.Logger,
) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// API v1
	api := r.PathPrefix("/api").Subrouter()

	// Run orchestration
	api.HandleFunc("/runs", runs.StartRun).Methods("POST")
	api.HandleFunc("/runs/{id}", runs.GetRun).Methods("GET")

	// Scores
	api.HandleFunc("/scores/{ticker}", runs.GetScores).Methods("GET")

	// Rotation graph
	api.HandleFunc("/graph/{ticker}/neighborhood", graph.GetNeighborhood).Methods("GET")

	// Edge explanations
	api.HandleFunc("/explain", explain.Explain).Methods("POST")
	api.HandleFunc("/explain/{id}", explain.GetExplanation).Methods("GET")

	// Live edge stream
	api.HandleFunc("/stream", stream.Serve).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "rotograph-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
