package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/poisonednumber/scanner-map/internal/database"
)

// HealthResponse reports liveness of the database and pipeline components.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

// Checker reports a component's health as "ok" or any other string
// describing the problem.
type Checker interface {
	Check() string
}

type HealthHandler struct {
	db        *database.DB
	checks    map[string]Checker
	version   string
	startTime time.Time
}

func NewHealthHandler(db *database.DB, version string, startTime time.Time, checks map[string]Checker) *HealthHandler {
	return &HealthHandler{db: db, checks: checks, version: version, startTime: startTime}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.HealthCheck(r.Context()); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	for name, c := range h.checks {
		result := c.Check()
		checks[name] = result
		if result != "ok" && status == "healthy" {
			status = "degraded"
		}
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(resp)
}
