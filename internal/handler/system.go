package handler

import (
	"context"
	"net/http"
	"time"
)

// Check is one dependency probed by the readiness endpoint.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type SystemHandler struct {
	service   string
	checks    []Check
	logger    Logger
	startTime time.Time
}

func NewSystemHandler(service string, checks []Check, log Logger) *SystemHandler {
	return &SystemHandler{service: service, checks: checks, logger: log, startTime: time.Now()}
}

type ServiceStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // operational, degraded, outage
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"service":        h.service,
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready pings every dependency; any outage makes the service not ready.
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	ready := true
	services := make([]ServiceStatus, 0, len(h.checks))
	for _, c := range h.checks {
		start := time.Now()
		err := c.Ping(ctx)
		st := ServiceStatus{Name: c.Name, Status: "operational", LatencyMs: time.Since(start).Milliseconds()}
		if err != nil {
			ready = false
			st.Status = "outage"
			st.Error = err.Error()
			h.logger.Error("Readiness check failed", map[string]interface{}{
				"dependency": c.Name,
				"error":      err.Error(),
			})
		} else if st.LatencyMs > 200 {
			st.Status = "degraded"
		}
		services = append(services, st)
	}

	status, label := http.StatusOK, "ready"
	if !ready {
		status, label = http.StatusServiceUnavailable, "not ready"
	}
	respondJSON(w, status, map[string]interface{}{
		"status":   label,
		"service":  h.service,
		"services": services,
	})
}
