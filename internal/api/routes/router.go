package routes

import (
	"net/http"

	"github.com/zatekoja/databaseguru/backend/internal/api/handlers"
	"github.com/zatekoja/databaseguru/backend/internal/api/middleware"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	queryHandler      *handlers.QueryHandler
	correctionHandler *handlers.CorrectionHandler
	healthHandler     *handlers.HealthHandler

	allowedOrigins []string
}

// NewRouter creates a new router
func NewRouter(
	queryHandler *handlers.QueryHandler,
	correctionHandler *handlers.CorrectionHandler,
	healthHandler *handlers.HealthHandler,
) *Router {
	return &Router{
		mux:               http.NewServeMux(),
		queryHandler:      queryHandler,
		correctionHandler: correctionHandler,
		healthHandler:     healthHandler,
	}
}

// WithAllowedOrigins restricts cross-origin requests. By default any origin is allowed.
func (r *Router) WithAllowedOrigins(origins []string) *Router {
	r.allowedOrigins = origins
	return r
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", r.healthHandler.Health)

	// Query endpoints
	r.mux.HandleFunc("POST /api/v1/query", r.queryHandler.RunQuery)
	r.mux.HandleFunc("POST /api/v1/verify", r.queryHandler.VerifyResult)
	r.mux.HandleFunc("GET /api/v1/connections", r.queryHandler.ListConnections)
	r.mux.HandleFunc("GET /api/v1/connections/{id}/schema", r.queryHandler.GetSchema)

	// Learned correction endpoints
	r.mux.HandleFunc("GET /api/v1/corrections", r.correctionHandler.ListCorrections)
	r.mux.HandleFunc("DELETE /api/v1/corrections", r.correctionHandler.ResetCorrections)
	r.mux.HandleFunc("GET /api/v1/corrections/stats", r.correctionHandler.GetStats)
	r.mux.HandleFunc("DELETE /api/v1/corrections/{id}", r.correctionHandler.DeleteCorrection)

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(handler)
	handler = middleware.Compression(handler)

	// CORS wraps everything so preflight requests never reach the handlers
	handler = middleware.CORS(r.allowedOrigins)(handler)

	return handler
}
