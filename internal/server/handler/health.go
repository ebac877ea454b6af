package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// checkTimeout bounds each dependency check so a hung backend cannot hang
// the health endpoint.
const checkTimeout = 2 * time.Second

// HealthHandler serves the health-check endpoint, checking each registered
// backing dependency.
type HealthHandler struct {
	checks map[string]func(context.Context) error
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided dependency
// checks, keyed by dependency name.
func NewHealthHandler(checks map[string]func(context.Context) error, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

// HealthCheck reports overall and per-dependency status. Any failing
// dependency turns the response into a 503 so load balancers stop routing
// to this instance.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	overall := "ok"
	deps := make(map[string]string, len(h.checks))

	for name, check := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			h.logger.WarnContext(r.Context(), "health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			deps[name] = err.Error()
			overall = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	writeJSON(w, status, map[string]any{
		"status":       overall,
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
