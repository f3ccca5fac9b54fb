package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"go-auth-service/internal/model"
	"go-auth-service/internal/service"
)

const readinessTimeout = 2 * time.Second

type HealthHandler struct {
	version string
	checks  map[string]service.Pinger
}

// NewHealthHandler takes the dependencies /ready must reach, keyed by the name
// reported in the response.
func NewHealthHandler(version string, checks map[string]service.Pinger) *HealthHandler {
	return &HealthHandler{version: version, checks: checks}
}

func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, model.HealthStatus{Status: "ok", Version: h.version}, nil)
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := model.HealthStatus{Status: "ready", Checks: map[string]string{}, Version: h.version}
	code := http.StatusOK
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			status.Checks[name] = "unavailable"
			status.Status = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Checks[name] = "ok"
	}

	writeSuccess(w, code, status, nil)
}
