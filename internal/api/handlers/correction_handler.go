package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/domain/repositories"
)

const (
	defaultCorrectionPageSize = 50
	maxCorrectionPageSize     = 500
)

// CorrectionManager defines the learned correction operations used by the handler.
type CorrectionManager interface {
	ListLearnedCorrections(ctx context.Context, filter repositories.CorrectionFilter) ([]*entities.LearnedCorrection, error)
	ResetLearnedCorrections(ctx context.Context) (int, error)
	DeleteLearnedCorrection(ctx context.Context, id string) error
	LearningStats(ctx context.Context) (*entities.CorrectionStats, error)
}

// CorrectionHandler exposes the learned corrections store.
type CorrectionHandler struct {
	service CorrectionManager
}

// NewCorrectionHandler creates a new correction handler
func NewCorrectionHandler(service CorrectionManager) *CorrectionHandler {
	return &CorrectionHandler{service: service}
}

// ListCorrections handles GET /api/v1/corrections
func (h *CorrectionHandler) ListCorrections(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repositories.CorrectionFilter{
		ErrorKind:    entities.ErrorKind(strings.ToUpper(strings.TrimSpace(q.Get("error_kind")))),
		DatabaseKind: strings.ToLower(strings.TrimSpace(q.Get("database_kind"))),
		Limit:        defaultCorrectionPageSize,
	}

	if raw := q.Get("min_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "min_confidence must be a number")
			return
		}
		filter.MinConfidence = v
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxCorrectionPageSize {
			respondWithError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		filter.Limit = v
	}
	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			respondWithError(w, http.StatusBadRequest, "offset must not be negative")
			return
		}
		filter.Offset = v
	}

	corrections, err := h.service.ListLearnedCorrections(r.Context(), filter)
	if err != nil {
		respondWithAppError(w, err, "failed to list corrections")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"corrections": corrections,
		"count":       len(corrections),
	})
}

// ResetCorrections handles DELETE /api/v1/corrections
func (h *CorrectionHandler) ResetCorrections(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.ResetLearnedCorrections(r.Context())
	if err != nil {
		respondWithAppError(w, err, "failed to reset corrections")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// DeleteCorrection handles DELETE /api/v1/corrections/{id}
func (h *CorrectionHandler) DeleteCorrection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "correction ID is required")
		return
	}

	if err := h.service.DeleteLearnedCorrection(r.Context(), id); err != nil {
		respondWithAppError(w, err, "failed to delete correction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStats handles GET /api/v1/corrections/stats
func (h *CorrectionHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.LearningStats(r.Context())
	if err != nil {
		respondWithAppError(w, err, "failed to load correction stats")
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}
