package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/zatekoja/databaseguru/backend/pkg/errors"
)

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// respondWithAppError maps an application error to its HTTP status. Messages of internal
// and external failures are not echoed to the client.
func respondWithAppError(w http.ResponseWriter, err error, fallback string) {
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		log.Error().Err(err).Msg(fallback)
		respondWithError(w, http.StatusInternalServerError, fallback)
		return
	}

	switch appErr.Type {
	case apperrors.ErrorTypeValidation, apperrors.ErrorTypeContract:
		respondWithError(w, http.StatusBadRequest, appErr.Message)
	case apperrors.ErrorTypeNotFound:
		respondWithError(w, http.StatusNotFound, appErr.Message)
	case apperrors.ErrorTypeConflict:
		respondWithError(w, http.StatusConflict, appErr.Message)
	case apperrors.ErrorTypeExternal:
		log.Error().Err(err).Msg(fallback)
		respondWithError(w, http.StatusBadGateway, fallback)
	default:
		log.Error().Err(err).Msg(fallback)
		respondWithError(w, http.StatusInternalServerError, fallback)
	}
}
