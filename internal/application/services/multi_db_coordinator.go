package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/domain/providers"
	"github.com/zatekoja/databaseguru/backend/internal/infrastructure/observability"
)

// Target is one connection's share of a multi-database question. Exactly one of Connection
// and Sync is set.
type Target struct {
	Connection providers.Connection
	Sync       providers.SyncConnection
	SQL        string
	Planned    bool
	Schema     *entities.Schema
	AllowWrite bool
	MaxRetries int
	Timeout    time.Duration
}

// SyncWrapper adapts a synchronous driver so it can run next to native connections.
type SyncWrapper func(providers.SyncConnection) providers.Connection

// MultiDBCoordinator fans a question out to several connections and gathers one result per connection.
type MultiDBCoordinator struct {
	orchestrator *RetryOrchestrator
	wrapSync     SyncWrapper
}

// NewMultiDBCoordinator creates a new coordinator. wrapSync may be nil when no target is synchronous.
func NewMultiDBCoordinator(orchestrator *RetryOrchestrator, wrapSync SyncWrapper) *MultiDBCoordinator {
	return &MultiDBCoordinator{orchestrator: orchestrator, wrapSync: wrapSync}
}

// ExecuteAcross runs every target concurrently and returns their results in input order.
// A failing, panicking or timed out connection never affects its siblings.
func (c *MultiDBCoordinator) ExecuteAcross(ctx context.Context, question string, targets []Target) []entities.DatabaseQueryResult {
	ctx, span := observability.StartSpan(ctx, "coordinator.execute_across", attribute.Int("connections", len(targets)))
	defer span.End()

	start := time.Now()
	results := make([]entities.DatabaseQueryResult, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t Target) {
			defer wg.Done()
			results[i] = c.runTarget(ctx, question, t)
		}(i, t)
	}
	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Succeeded {
			succeeded++
		}
	}
	span.SetAttributes(attribute.Int("succeeded", succeeded))
	log.Info().
		Int("connections", len(targets)).
		Int("succeeded", succeeded).
		Dur("duration", time.Since(start)).
		Msg("multi-database execution finished")
	return results
}

func (c *MultiDBCoordinator) runTarget(ctx context.Context, question string, t Target) (result entities.DatabaseQueryResult) {
	conn := c.connection(t)
	if conn == nil {
		if t.Sync != nil {
			return targetFailure(t.Sync.ID(), t.Sync.Kind(), t, "synchronous connection without a worker pool")
		}
		return targetFailure("", "", t, "no connection for target")
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("connection_id", conn.ID()).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("connection run panicked")
			result = targetFailure(conn.ID(), conn.Kind(), t, fmt.Sprintf("internal error: %v", r))
		}
	}()

	return c.orchestrator.Run(ctx, RunRequest{
		Question:   question,
		SQL:        t.SQL,
		Planned:    t.Planned,
		Connection: conn,
		Schema:     t.Schema,
		AllowWrite: t.AllowWrite,
		MaxRetries: t.MaxRetries,
		Timeout:    t.Timeout,
	})
}

func (c *MultiDBCoordinator) connection(t Target) providers.Connection {
	if t.Connection != nil {
		return t.Connection
	}
	if t.Sync != nil && c.wrapSync != nil {
		return c.wrapSync(t.Sync)
	}
	return nil
}

func targetFailure(id, kind string, t Target, errText string) entities.DatabaseQueryResult {
	strategy := entities.StrategyGenerated
	if t.SQL != "" && !t.Planned {
		strategy = entities.StrategySupplied
	}
	return entities.DatabaseQueryResult{
		ConnectionID:       id,
		DatabaseKind:       kind,
		SQL:                t.SQL,
		Succeeded:          false,
		Error:              errText,
		CorrectionAttempts: 1,
		AttemptHistory: []entities.CorrectionAttempt{{
			AttemptNumber: 1,
			SQL:           t.SQL,
			Error:         errText,
			ErrorKind:     entities.ErrorKindUnknown,
			Strategy:      strategy,
		}},
	}
}
