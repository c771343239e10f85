package handlers

import (
	"context"
	"net/http"

	"github.com/hugh/reconsole/internal/api/dto"
)

// BackendChecker reports the scan backend's health.
type BackendChecker interface {
	Health(ctx context.Context) (*dto.HealthResponse, error)
}

type HealthHandler struct {
	backend BackendChecker
	version string
}

func NewHealthHandler(backend BackendChecker, version string) *HealthHandler {
	return &HealthHandler{backend: backend, version: version}
}

type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version,omitempty"`
	Services map[string]string `json:"services"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	services := make(map[string]string)
	status := "healthy"

	// Check the scan backend
	if h.backend != nil {
		resp, err := h.backend.Health(r.Context())
		if err != nil || resp.Status != "healthy" {
			services["backend"] = "unhealthy"
			status = "unhealthy"
		} else {
			services["backend"] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, HealthResponse{
		Status:   status,
		Version:  h.version,
		Services: services,
	})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	// Simple readiness check
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
