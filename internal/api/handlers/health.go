package handlers

import (
	"net/http"

	"github.com/wonny/ibbridge/internal/scheduler"
)

// ConnectionStatus reports broker connectivity
type ConnectionStatus interface {
	IsConnected() bool
}

// JobStats reports scheduler statistics
type JobStats interface {
	GetJobStats() map[string]scheduler.JobStats
}

// HealthHandler serves the health endpoint
type HealthHandler struct {
	conn ConnectionStatus
	jobs JobStats
}

// NewHealthHandler creates a health handler; jobs may be nil
func NewHealthHandler(conn ConnectionStatus, jobs JobStats) *HealthHandler {
	return &HealthHandler{conn: conn, jobs: jobs}
}

// Health returns process and broker status
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	jobs := map[string]scheduler.JobStats{}
	if h.jobs != nil {
		jobs = h.jobs.GetJobStats()
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   "ibbridge",
		"connected": h.conn.IsConnected(),
		"jobs":      jobs,
	})
}
