package handlers

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 5 * time.Second

// HealthChecker reports on the user databases.
type HealthChecker interface {
	HealthCheck(ctx context.Context) map[string]error
	IDs() []string
}

// Pinger is any backing service with a liveness probe, such as the corrections store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	databases HealthChecker
	store     Pinger
}

// NewHealthHandler creates a new health handler. store may be nil when corrections live in memory.
func NewHealthHandler(databases HealthChecker, store Pinger) *HealthHandler {
	return &HealthHandler{databases: databases, store: store}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Store     string            `json:"store,omitempty"`
	Databases map[string]string `json:"databases"`
}

// Health handles GET /health. The service stays up while any user database answers;
// it reports 503 only when the corrections store or every user database is down.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Databases: map[string]string{}}
	statusCode := http.StatusOK

	if h.store != nil {
		resp.Store = "ok"
		if err := h.store.Ping(ctx); err != nil {
			resp.Store = err.Error()
			resp.Status = "unavailable"
			statusCode = http.StatusServiceUnavailable
		}
	}

	ids := h.databases.IDs()
	failures := h.databases.HealthCheck(ctx)
	for _, id := range ids {
		resp.Databases[id] = "ok"
		if err, failed := failures[id]; failed {
			resp.Databases[id] = err.Error()
		}
	}
	if len(failures) > 0 && statusCode == http.StatusOK {
		resp.Status = "degraded"
		if len(failures) == len(ids) {
			resp.Status = "unavailable"
			statusCode = http.StatusServiceUnavailable
		}
	}

	respondWithJSON(w, statusCode, resp)
}
