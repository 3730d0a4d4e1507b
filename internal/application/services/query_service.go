package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/domain/providers"
	"github.com/zatekoja/databaseguru/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/databaseguru/backend/pkg/errors"
)

// QueryPlanner writes one statement per relevant database in a single model call.
type QueryPlanner interface {
	PlanAcross(ctx context.Context, question string, schemas []NamedSchema) (map[string]string, error)
}

// RunInput is a question or a set of statements addressed to one or more connections.
type RunInput struct {
	Question      string
	ConnectionIDs []string
	// SQL holds supplied statements keyed by connection ID.
	SQL map[string]string
	// Schemas overrides introspection per connection ID; SharedSchema applies to the rest.
	Schemas      map[string]*entities.Schema
	SharedSchema *entities.Schema
	AllowWrite   bool
	MaxRetries   int
}

// QueryServiceConfig holds the service-wide policy.
type QueryServiceConfig struct {
	AllowWrite bool
}

// QueryService is the entry point used by the API: it resolves connections and schemas,
// plans multi-database questions and exposes learned correction management.
type QueryService struct {
	registry    providers.ConnectionRegistry
	schemas     providers.SchemaProvider
	planner     QueryPlanner
	coordinator *MultiDBCoordinator
	memory      *CorrectionMemory
	verifier    *ResultVerifier
	cfg         QueryServiceConfig
}

// VerifyInput is an already executed result submitted for auditing.
type VerifyInput struct {
	Question     string
	SQL          string
	Result       *entities.ExecResult
	Schema       *entities.Schema
	DatabaseKind string
	// ConnectionID enables read-only diagnostic probes against that connection.
	ConnectionID string
}

type schemaInvalidator interface {
	Invalidate(ctx context.Context, conn providers.Connection) error
}

// NewQueryService creates a new query service. schemas and planner may be nil.
func NewQueryService(
	registry providers.ConnectionRegistry,
	schemas providers.SchemaProvider,
	planner QueryPlanner,
	coordinator *MultiDBCoordinator,
	memory *CorrectionMemory,
	cfg QueryServiceConfig,
) *QueryService {
	return &QueryService{
		registry:    registry,
		schemas:     schemas,
		planner:     planner,
		coordinator: coordinator,
		memory:      memory,
		verifier:    NewResultVerifier(VerifierConfig{}),
		cfg:         cfg,
	}
}

// SetVerifier replaces the verifier used by VerifyResult
func (s *QueryService) SetVerifier(verifier *ResultVerifier) {
	if verifier != nil {
		s.verifier = verifier
	}
}

// Run answers in against every requested connection and returns one result per connection.
// Only invalid input is an error; database failures are reported inside the results.
func (s *QueryService) Run(ctx context.Context, in RunInput) ([]entities.DatabaseQueryResult, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" && len(in.SQL) == 0 {
		return nil, apperrors.NewValidationError("question or sql is required")
	}
	if in.MaxRetries < 0 {
		return nil, apperrors.NewValidationError("max_retries must not be negative")
	}
	if in.AllowWrite && !s.cfg.AllowWrite {
		return nil, apperrors.NewValidationError("write statements are disabled on this server")
	}

	conns, err := s.resolve(in)
	if err != nil {
		return nil, err
	}

	targets := make([]Target, len(conns))
	named := make([]NamedSchema, len(conns))
	for i, conn := range conns {
		schema := s.schemaFor(ctx, conn, in)
		targets[i] = Target{
			Connection: conn,
			SQL:        strings.TrimSpace(in.SQL[conn.ID()]),
			Schema:     schema,
			AllowWrite: in.AllowWrite,
			MaxRetries: in.MaxRetries,
		}
		named[i] = NamedSchema{ConnectionID: conn.ID(), DatabaseKind: conn.Kind(), Schema: schema}
	}

	if question != "" && len(conns) > 1 && s.planner != nil && len(in.SQL) == 0 {
		s.plan(ctx, question, named, targets)
	}

	return s.coordinator.ExecuteAcross(ctx, question, targets), nil
}

// resolve returns the requested connections, defaulting to the supplied statements' connections
// and then to every registered connection.
func (s *QueryService) resolve(in RunInput) ([]providers.Connection, error) {
	ids := in.ConnectionIDs
	if len(ids) == 0 && len(in.SQL) > 0 {
		for _, conn := range s.registry.List() {
			if _, ok := in.SQL[conn.ID()]; ok {
				ids = append(ids, conn.ID())
			}
		}
		for id := range in.SQL {
			if _, ok := s.registry.Get(id); !ok {
				return nil, apperrors.NewValidationError(fmt.Sprintf("unknown connection %q", id))
			}
		}
	}
	if len(ids) == 0 {
		conns := s.registry.List()
		if len(conns) == 0 {
			return nil, apperrors.NewValidationError("no database connections are configured")
		}
		return conns, nil
	}

	seen := make(map[string]struct{}, len(ids))
	conns := make([]providers.Connection, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		conn, ok := s.registry.Get(id)
		if !ok {
			return nil, apperrors.NewValidationError(fmt.Sprintf("unknown connection %q", id))
		}
		conns = append(conns, conn)
	}
	for id := range in.SQL {
		if _, ok := seen[id]; !ok {
			return nil, apperrors.NewValidationError(fmt.Sprintf("sql supplied for connection %q which is not requested", id))
		}
	}
	return conns, nil
}

func (s *QueryService) schemaFor(ctx context.Context, conn providers.Connection, in RunInput) *entities.Schema {
	if schema, ok := in.Schemas[conn.ID()]; ok && schema != nil {
		return schema
	}
	if in.SharedSchema != nil {
		return in.SharedSchema
	}
	if s.schemas == nil {
		return &entities.Schema{}
	}
	schema, err := s.schemas.GetSchema(ctx, conn)
	if err != nil {
		log.Warn().Err(err).Str("connection_id", conn.ID()).Msg("schema unavailable, continuing without it")
		return &entities.Schema{}
	}
	return schema
}

// plan asks for all statements at once. Connections the model skipped generate their own SQL.
func (s *QueryService) plan(ctx context.Context, question string, named []NamedSchema, targets []Target) {
	planned, err := s.planner.PlanAcross(ctx, question, named)
	if err != nil {
		log.Warn().Err(err).Msg("multi-database planning failed, generating per connection")
		return
	}
	for i := range targets {
		if sql, ok := planned[targets[i].Connection.ID()]; ok {
			targets[i].SQL = sql
			targets[i].Planned = true
		}
	}
	log.Debug().Int("planned", len(planned)).Int("connections", len(targets)).Msg("planned multi-database question")
}

// ListLearnedCorrections returns stored corrections matching filter
func (s *QueryService) ListLearnedCorrections(ctx context.Context, filter repositories.CorrectionFilter) ([]*entities.LearnedCorrection, error) {
	if filter.ErrorKind != "" && !filter.ErrorKind.IsValid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown error kind %q", filter.ErrorKind))
	}
	if filter.MinConfidence < 0 || filter.MinConfidence > 1 {
		return nil, apperrors.NewValidationError("min_confidence must be between 0 and 1")
	}
	return s.memory.List(ctx, filter)
}

// ResetLearnedCorrections removes every learned correction and returns how many were removed
func (s *QueryService) ResetLearnedCorrections(ctx context.Context) (int, error) {
	return s.memory.Reset(ctx)
}

// DeleteLearnedCorrection removes one learned correction
func (s *QueryService) DeleteLearnedCorrection(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.NewValidationError("correction id is required")
	}
	return s.memory.Delete(ctx, id)
}

// LearningStats summarises the learned corrections store
func (s *QueryService) LearningStats(ctx context.Context) (*entities.CorrectionStats, error) {
	return s.memory.Stats(ctx)
}

// Connections lists the configured connections
func (s *QueryService) Connections() []entities.ConnectionSpec {
	conns := s.registry.List()
	out := make([]entities.ConnectionSpec, 0, len(conns))
	for _, c := range conns {
		spec := entities.ConnectionSpec{ID: c.ID(), Kind: c.Kind()}
		if am, ok := c.(providers.AccessModeReporter); ok {
			spec.ReadOnly = am.ReadOnly()
		}
		out = append(out, spec)
	}
	return out
}

// Schema returns the schema of one connection. refresh drops any cached copy first.
func (s *QueryService) Schema(ctx context.Context, id string, refresh bool) (*entities.Schema, error) {
	conn, ok := s.registry.Get(id)
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("connection %q not found", id))
	}
	if s.schemas == nil {
		return nil, apperrors.NewInternalError("schema introspection is not configured", nil)
	}
	if refresh {
		if inv, ok := s.schemas.(schemaInvalidator); ok {
			if err := inv.Invalidate(ctx, conn); err != nil {
				log.Warn().Err(err).Str("connection_id", id).Msg("failed to invalidate cached schema")
			}
		}
	}
	return s.schemas.GetSchema(ctx, conn)
}

// VerifyResult audits a result the caller already has without executing the statement again
func (s *QueryService) VerifyResult(ctx context.Context, in VerifyInput) (entities.VerificationResult, error) {
	if strings.TrimSpace(in.SQL) == "" {
		return entities.VerificationResult{}, apperrors.NewValidationError("sql is required")
	}
	if in.Result == nil {
		return entities.VerificationResult{}, apperrors.NewValidationError("result is required")
	}

	var conn providers.Connection
	if in.ConnectionID != "" {
		c, ok := s.registry.Get(in.ConnectionID)
		if !ok {
			return entities.VerificationResult{}, apperrors.NewValidationError(fmt.Sprintf("unknown connection %q", in.ConnectionID))
		}
		conn = c
		if in.DatabaseKind == "" {
			in.DatabaseKind = c.Kind()
		}
	}

	result := *in.Result
	if result.RowCount == 0 && len(result.Rows) > 0 {
		result.RowCount = len(result.Rows)
	}
	schema := in.Schema
	if schema == nil {
		schema = &entities.Schema{}
	}
	return s.verifier.Verify(ctx, in.Question, in.SQL, &result, schema, in.DatabaseKind, conn), nil
}
