package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/domain/repositories"
	"github.com/zatekoja/databaseguru/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/databaseguru/backend/pkg/errors"
)

const correctionsTable = "learned_corrections"

const correctionsSchema = `
CREATE TABLE IF NOT EXISTS learned_corrections (
	id              TEXT PRIMARY KEY,
	merge_key       TEXT NOT NULL UNIQUE,
	error_kind      TEXT NOT NULL,
	error_pattern   TEXT NOT NULL,
	database_kind   TEXT NOT NULL,
	original_sql    TEXT NOT NULL,
	original_error  TEXT NOT NULL,
	corrected_sql   TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	table_pattern   TEXT,
	column_pattern  TEXT,
	times_applied   INTEGER NOT NULL DEFAULT 1,
	times_failed    INTEGER NOT NULL DEFAULT 0,
	success_rate    DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	confidence      DOUBLE PRECISION NOT NULL DEFAULT 0.7,
	learned_at      TIMESTAMPTZ NOT NULL,
	last_applied_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_learned_corrections_lookup
	ON learned_corrections (error_kind, database_kind, confidence DESC, times_applied DESC);
`

var correctionColumns = []interface{}{
	"id", "error_kind", "error_pattern", "database_kind", "original_sql", "original_error",
	"corrected_sql", "description", "table_pattern", "column_pattern", "times_applied",
	"times_failed", "success_rate", "confidence", "learned_at", "last_applied_at",
}

// CorrectionAdapter implements the CorrectionRepository interface on PostgreSQL
type CorrectionAdapter struct {
	client *postgres.Client
	db     *goqu.Database
	now    func() time.Time
}

// NewCorrectionAdapter creates a new learned correction adapter
func NewCorrectionAdapter(client *postgres.Client) *CorrectionAdapter {
	return &CorrectionAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// InitSchema creates the learned corrections table if it does not exist
func (a *CorrectionAdapter) InitSchema(ctx context.Context) error {
	if _, err := a.client.DB().ExecContext(ctx, correctionsSchema); err != nil {
		return apperrors.NewInternalError("failed to create learned corrections table", err)
	}
	return nil
}

// Upsert inserts the correction or merges it into the row sharing its merge key.
// The existing row is locked so concurrent merges never lose a times_applied increment.
func (a *CorrectionAdapter) Upsert(ctx context.Context, c *entities.LearnedCorrection) (*entities.LearnedCorrection, bool, error) {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return nil, false, apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	key := c.MergeKey()
	existing, err := a.lockByMergeKey(ctx, tx, key)
	if err != nil {
		return nil, false, err
	}

	if existing == nil {
		query, args, err := a.db.Insert(correctionsTable).
			Rows(insertRecord(c, key)).
			OnConflict(goqu.DoNothing()).
			ToSQL()
		if err != nil {
			return nil, false, apperrors.NewInternalError("failed to build insert query", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, false, apperrors.NewInternalError("failed to insert learned correction", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			if err := tx.Commit(); err != nil {
				return nil, false, apperrors.NewInternalError("failed to commit learned correction", err)
			}
			return clone(c), false, nil
		}

		// A concurrent learner inserted the same key first; merge into its row.
		existing, err = a.lockByMergeKey(ctx, tx, key)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, apperrors.NewConflictError("learned correction vanished during merge")
		}
	}

	existing.Score = existing.Score.ApplySuccess()
	existing.CorrectedSQL = c.CorrectedSQL
	applied := a.now()
	existing.LastAppliedAt = &applied

	if err := a.updateScore(ctx, tx, existing, goqu.Record{"corrected_sql": existing.CorrectedSQL}); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, apperrors.NewInternalError("failed to commit learned correction merge", err)
	}
	return existing, true, nil
}

// FindCandidates returns matchable corrections for the query, best first
func (a *CorrectionAdapter) FindCandidates(ctx context.Context, q repositories.CandidateQuery) ([]*entities.LearnedCorrection, error) {
	ds := a.db.From(correctionsTable).Select(correctionColumns...).Where(
		goqu.Ex{
			"error_kind":    string(q.ErrorKind),
			"database_kind": q.DatabaseKind,
		},
		goqu.C("confidence").Gte(q.MinConfidence),
	)
	if q.TablePattern != "" {
		ds = ds.Where(goqu.Or(goqu.C("table_pattern").Eq(q.TablePattern), goqu.C("table_pattern").IsNull()))
	}
	if q.ColumnPattern != "" {
		ds = ds.Where(goqu.Or(goqu.C("column_pattern").Eq(q.ColumnPattern), goqu.C("column_pattern").IsNull()))
	}
	ds = ds.Order(goqu.C("confidence").Desc(), goqu.C("times_applied").Desc(), goqu.C("learned_at").Desc())
	if q.Limit > 0 {
		ds = ds.Limit(uint(q.Limit))
	}
	return a.query(ctx, ds)
}

// RecordOutcome applies a reuse outcome to the correction's score under a row lock
func (a *CorrectionAdapter) RecordOutcome(ctx context.Context, id string, succeeded bool) (*entities.LearnedCorrection, error) {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query, args, err := a.db.From(correctionsTable).Select(correctionColumns...).
		Where(goqu.Ex{"id": id}).
		ForUpdate(exp.Wait).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}
	c, err := scanCorrection(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("learned correction with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get learned correction", err)
	}

	if succeeded {
		c.Score = c.Score.ApplySuccess()
	} else {
		c.Score = c.Score.ApplyFailure()
	}
	applied := a.now()
	c.LastAppliedAt = &applied

	if err := a.updateScore(ctx, tx, c, nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewInternalError("failed to commit correction outcome", err)
	}
	return c, nil
}

// GetByID retrieves a correction by ID
func (a *CorrectionAdapter) GetByID(ctx context.Context, id string) (*entities.LearnedCorrection, error) {
	query, args, err := a.db.From(correctionsTable).Select(correctionColumns...).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	c, err := scanCorrection(a.client.DB().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("learned correction with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get learned correction", err)
	}
	return c, nil
}

// List retrieves corrections with filters
func (a *CorrectionAdapter) List(ctx context.Context, filter repositories.CorrectionFilter) ([]*entities.LearnedCorrection, error) {
	ds := a.db.From(correctionsTable).Select(correctionColumns...)
	if filter.ErrorKind != "" {
		ds = ds.Where(goqu.Ex{"error_kind": string(filter.ErrorKind)})
	}
	if filter.DatabaseKind != "" {
		ds = ds.Where(goqu.Ex{"database_kind": filter.DatabaseKind})
	}
	if filter.MinConfidence > 0 {
		ds = ds.Where(goqu.C("confidence").Gte(filter.MinConfidence))
	}
	ds = ds.Order(goqu.C("confidence").Desc(), goqu.C("times_applied").Desc(), goqu.C("learned_at").Desc())
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}
	return a.query(ctx, ds)
}

// Delete deletes a correction
func (a *CorrectionAdapter) Delete(ctx context.Context, id string) error {
	query, args, err := a.db.Delete(correctionsTable).Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}

	res, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to delete learned correction", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("learned correction with id %s not found", id))
	}
	return nil
}

// DeleteAll removes every correction
func (a *CorrectionAdapter) DeleteAll(ctx context.Context) (int, error) {
	query, args, err := a.db.Delete(correctionsTable).ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build delete query", err)
	}

	res, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to delete learned corrections", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (a *CorrectionAdapter) lockByMergeKey(ctx context.Context, tx *sql.Tx, key string) (*entities.LearnedCorrection, error) {
	query, args, err := a.db.From(correctionsTable).Select(correctionColumns...).
		Where(goqu.Ex{"merge_key": key}).
		ForUpdate(exp.Wait).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	c, err := scanCorrection(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to lock learned correction", err)
	}
	return c, nil
}

func (a *CorrectionAdapter) updateScore(ctx context.Context, tx *sql.Tx, c *entities.LearnedCorrection, extra goqu.Record) error {
	record := goqu.Record{
		"times_applied":   c.Score.TimesApplied(),
		"times_failed":    c.Score.TimesFailed(),
		"success_rate":    c.Score.SuccessRate(),
		"confidence":      c.Score.Confidence(),
		"last_applied_at": nullableTime(c.LastAppliedAt),
	}
	for k, v := range extra {
		record[k] = v
	}

	query, args, err := a.db.Update(correctionsTable).Set(record).Where(goqu.Ex{"id": c.ID}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to update learned correction", err)
	}
	return nil
}

func (a *CorrectionAdapter) query(ctx context.Context, ds *goqu.SelectDataset) ([]*entities.LearnedCorrection, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query learned corrections", err)
	}
	defer rows.Close()

	var out []*entities.LearnedCorrection
	for rows.Next() {
		c, err := scanCorrection(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan learned correction", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate learned corrections", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCorrection(row rowScanner) (*entities.LearnedCorrection, error) {
	var (
		c                           entities.LearnedCorrection
		errorKind                   string
		tablePattern, columnPattern sql.NullString
		timesApplied, timesFailed   int
		successRate, confidence     float64
		lastApplied                 sql.NullTime
	)
	err := row.Scan(
		&c.ID, &errorKind, &c.ErrorPattern, &c.DatabaseKind, &c.OriginalSQL, &c.OriginalError,
		&c.CorrectedSQL, &c.Description, &tablePattern, &columnPattern, &timesApplied,
		&timesFailed, &successRate, &confidence, &c.LearnedAt, &lastApplied,
	)
	if err != nil {
		return nil, err
	}

	c.ErrorKind = entities.ErrorKind(errorKind)
	c.TablePattern = tablePattern.String
	c.ColumnPattern = columnPattern.String
	c.Score = entities.RestoreCorrectionScore(timesApplied, timesFailed, successRate, confidence)
	if lastApplied.Valid {
		t := lastApplied.Time
		c.LastAppliedAt = &t
	}
	return &c, nil
}

func insertRecord(c *entities.LearnedCorrection, mergeKey string) goqu.Record {
	return goqu.Record{
		"id":              c.ID,
		"merge_key":       mergeKey,
		"error_kind":      string(c.ErrorKind),
		"error_pattern":   c.ErrorPattern,
		"database_kind":   c.DatabaseKind,
		"original_sql":    c.OriginalSQL,
		"original_error":  c.OriginalError,
		"corrected_sql":   c.CorrectedSQL,
		"description":     c.Description,
		"table_pattern":   nullable(c.TablePattern),
		"column_pattern":  nullable(c.ColumnPattern),
		"times_applied":   c.Score.TimesApplied(),
		"times_failed":    c.Score.TimesFailed(),
		"success_rate":    c.Score.SuccessRate(),
		"confidence":      c.Score.Confidence(),
		"learned_at":      c.LearnedAt,
		"last_applied_at": nullableTime(c.LastAppliedAt),
	}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
