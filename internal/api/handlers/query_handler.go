package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/zatekoja/databaseguru/backend/internal/application/services"
	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
)

const maxQueryBodyBytes = 1 << 20

// QueryRunner defines the query operations used by the handler.
type QueryRunner interface {
	Run(ctx context.Context, in services.RunInput) ([]entities.DatabaseQueryResult, error)
	Connections() []entities.ConnectionSpec
	Schema(ctx context.Context, id string, refresh bool) (*entities.Schema, error)
	VerifyResult(ctx context.Context, in services.VerifyInput) (entities.VerificationResult, error)
}

// QueryHandler handles question and SQL execution requests.
type QueryHandler struct {
	service QueryRunner
	limiter *RateLimiter
}

// NewQueryHandler creates a new query handler. limiter may be nil.
func NewQueryHandler(service QueryRunner, limiter *RateLimiter) *QueryHandler {
	return &QueryHandler{
		service: service,
		limiter: limiter,
	}
}

type queryRequest struct {
	Question      string                      `json:"question"`
	ConnectionIDs []string                    `json:"connection_ids"`
	SQL           map[string]string           `json:"sql"`
	Schemas       map[string]*entities.Schema `json:"schemas"`
	Schema        *entities.Schema            `json:"schema"`
	AllowWrite    bool                        `json:"allow_write"`
	MaxRetries    int                         `json:"max_retries"`
}

type queryResponse struct {
	Results   []entities.DatabaseQueryResult `json:"results"`
	Count     int                            `json:"count"`
	Succeeded int                            `json:"succeeded"`
}

// RunQuery handles POST /api/v1/query
func (h *QueryHandler) RunQuery(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil {
		allowed, retryAfter := h.limiter.Allow(r.Context(), "query:rate:"+clientIP(r))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxQueryBodyBytes)
	var payload queryRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	results, err := h.service.Run(r.Context(), services.RunInput{
		Question:      payload.Question,
		ConnectionIDs: payload.ConnectionIDs,
		SQL:           payload.SQL,
		Schemas:       payload.Schemas,
		SharedSchema:  payload.Schema,
		AllowWrite:    payload.AllowWrite,
		MaxRetries:    payload.MaxRetries,
	})
	if err != nil {
		respondWithAppError(w, err, "failed to run query")
		return
	}

	succeeded := 0
	for _, res := range results {
		if res.Succeeded {
			succeeded++
		}
	}
	respondWithJSON(w, http.StatusOK, queryResponse{
		Results:   results,
		Count:     len(results),
		Succeeded: succeeded,
	})
}

// ListConnections handles GET /api/v1/connections
func (h *QueryHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	conns := h.service.Connections()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"connections": conns,
		"count":       len(conns),
	})
}

// GetSchema handles GET /api/v1/connections/{id}/schema
func (h *QueryHandler) GetSchema(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "connection ID is required")
		return
	}

	refresh := r.URL.Query().Get("refresh") == "true"
	schema, err := h.service.Schema(r.Context(), id, refresh)
	if err != nil {
		respondWithAppError(w, err, "failed to load schema")
		return
	}
	respondWithJSON(w, http.StatusOK, schema)
}

type verifyRequest struct {
	Question     string               `json:"question"`
	SQL          string               `json:"sql"`
	Result       *entities.ExecResult `json:"result"`
	Schema       *entities.Schema     `json:"schema"`
	DatabaseKind string               `json:"database_kind"`
	ConnectionID string               `json:"connection_id"`
}

// VerifyResult handles POST /api/v1/verify
func (h *QueryHandler) VerifyResult(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxQueryBodyBytes)
	var payload verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	verdict, err := h.service.VerifyResult(r.Context(), services.VerifyInput{
		Question:     payload.Question,
		SQL:          payload.SQL,
		Result:       payload.Result,
		Schema:       payload.Schema,
		DatabaseKind: payload.DatabaseKind,
		ConnectionID: payload.ConnectionID,
	})
	if err != nil {
		respondWithAppError(w, err, "failed to verify result")
		return
	}
	respondWithJSON(w, http.StatusOK, verdict)
}
