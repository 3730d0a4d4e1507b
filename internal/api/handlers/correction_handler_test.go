package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/databaseguru/backend/internal/api/handlers"
	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/databaseguru/backend/pkg/errors"
)

type mockCorrectionService struct {
	mock.Mock
}

func (m *mockCorrectionService) ListLearnedCorrections(ctx context.Context, filter repositories.CorrectionFilter) ([]*entities.LearnedCorrection, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.LearnedCorrection), args.Error(1)
}

func (m *mockCorrectionService) ResetLearnedCorrections(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockCorrectionService) DeleteLearnedCorrection(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockCorrectionService) LearningStats(ctx context.Context) (*entities.CorrectionStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.CorrectionStats), args.Error(1)
}

// serve routes through a mux so path values are populated.
func serve(h *handlers.CorrectionHandler, method, target string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/corrections", h.ListCorrections)
	mux.HandleFunc("DELETE /api/v1/corrections", h.ResetCorrections)
	mux.HandleFunc("GET /api/v1/corrections/stats", h.GetStats)
	mux.HandleFunc("DELETE /api/v1/corrections/{id}", h.DeleteCorrection)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestCorrectionHandler_ListCorrections(t *testing.T) {
	service := new(mockCorrectionService)
	service.On("ListLearnedCorrections", mock.Anything, repositories.CorrectionFilter{
		ErrorKind:     entities.ErrorKindTableNotFound,
		DatabaseKind:  "postgres",
		MinConfidence: 0.5,
		Limit:         10,
		Offset:        20,
	}).Return([]*entities.LearnedCorrection{{ID: "c1", ErrorKind: entities.ErrorKindTableNotFound}}, nil)
	handler := handlers.NewCorrectionHandler(service)

	w := serve(handler, http.MethodGet, "/api/v1/corrections?error_kind=table_not_found&database_kind=Postgres&min_confidence=0.5&limit=10&offset=20")

	assert.Equal(t, http.StatusOK, w.Code)
	var response struct {
		Corrections []entities.LearnedCorrection `json:"corrections"`
		Count       int                          `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, 1, response.Count)
	assert.Equal(t, "c1", response.Corrections[0].ID)
	service.AssertExpectations(t)
}

func TestCorrectionHandler_ListCorrections_BadQuery(t *testing.T) {
	service := new(mockCorrectionService)
	handler := handlers.NewCorrectionHandler(service)

	for _, target := range []string{
		"/api/v1/corrections?min_confidence=high",
		"/api/v1/corrections?limit=0",
		"/api/v1/corrections?limit=abc",
		"/api/v1/corrections?offset=-1",
	} {
		w := serve(handler, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
	service.AssertNotCalled(t, "ListLearnedCorrections", mock.Anything, mock.Anything)
}

func TestCorrectionHandler_ListCorrections_ValidationFromService(t *testing.T) {
	service := new(mockCorrectionService)
	service.On("ListLearnedCorrections", mock.Anything, mock.Anything).
		Return(nil, apperrors.NewValidationError(`unknown error kind "BOGUS"`))
	handler := handlers.NewCorrectionHandler(service)

	w := serve(handler, http.MethodGet, "/api/v1/corrections?error_kind=bogus")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown error kind")
}

func TestCorrectionHandler_ResetCorrections(t *testing.T) {
	service := new(mockCorrectionService)
	service.On("ResetLearnedCorrections", mock.Anything).Return(4, nil)
	handler := handlers.NewCorrectionHandler(service)

	w := serve(handler, http.MethodDelete, "/api/v1/corrections")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":4}`, w.Body.String())
}

func TestCorrectionHandler_DeleteCorrection(t *testing.T) {
	service := new(mockCorrectionService)
	service.On("DeleteLearnedCorrection", mock.Anything, "c1").Return(nil)
	service.On("DeleteLearnedCorrection", mock.Anything, "missing").Return(apperrors.NewNotFoundError("correction not found"))
	handler := handlers.NewCorrectionHandler(service)

	assert.Equal(t, http.StatusNoContent, serve(handler, http.MethodDelete, "/api/v1/corrections/c1").Code)
	assert.Equal(t, http.StatusNotFound, serve(handler, http.MethodDelete, "/api/v1/corrections/missing").Code)
}

func TestCorrectionHandler_GetStats(t *testing.T) {
	service := new(mockCorrectionService)
	service.On("LearningStats", mock.Anything).Return(&entities.CorrectionStats{
		Total:             3,
		ByErrorKind:       map[entities.ErrorKind]int{entities.ErrorKindSyntax: 3},
		AverageConfidence: 0.6,
	}, nil)
	handler := handlers.NewCorrectionHandler(service)

	w := serve(handler, http.MethodGet, "/api/v1/corrections/stats")

	assert.Equal(t, http.StatusOK, w.Code)
	var stats entities.CorrectionStats
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.ByErrorKind[entities.ErrorKindSyntax])
}
