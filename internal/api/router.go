package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/wonny/ibbridge/internal/api/handlers"
	"github.com/wonny/ibbridge/pkg/logger"
)

// NewRouter creates and configures the HTTP router
// SSOT: routes are declared in this function only
func NewRouter(bridge *handlers.BridgeHandler, health *handlers.HealthHandler, origins []string, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", health.Health).Methods("GET")

	// Orders
	r.HandleFunc("/buy_order", bridge.BuyOrder).Methods("POST")
	r.HandleFunc("/sell_order", bridge.SellOrder).Methods("POST")
	r.HandleFunc("/buy_trailing", bridge.BuyTrailing).Methods("POST")
	r.HandleFunc("/buy_bracket", bridge.BuyBracket).Methods("POST")
	r.HandleFunc("/orders", bridge.Orders).Methods("GET")

	// Lookups
	r.HandleFunc("/atm_option", bridge.ATMOption).Methods("GET")
	r.HandleFunc("/net_liquidation", bridge.NetLiquidation).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(notFound)

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(r)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "error",
		"message": "no route for " + r.Method + " " + r.URL.Path,
	})
}

// statusRecorder captures the status code for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
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
						"status":  "error",
						"message": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
