package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/domain/providers"
	"github.com/zatekoja/databaseguru/backend/internal/infrastructure/observability"
)

const (
	// DefaultMaxRetries is the attempt budget of one run.
	DefaultMaxRetries = 3
	// DefaultQueryTimeout bounds one connection's run.
	DefaultQueryTimeout = 30 * time.Second
	// DefaultMaxRows caps the rows a connection returns.
	DefaultMaxRows = 1000
)

type runState int

const (
	stateGenerating runState = iota
	stateExecuting
	stateCorrecting
	stateVerifying
	stateDone
	stateExhausted
)

func (s runState) String() string {
	switch s {
	case stateGenerating:
		return "GENERATING"
	case stateExecuting:
		return "EXECUTING"
	case stateCorrecting:
		return "CORRECTING"
	case stateVerifying:
		return "VERIFYING"
	case stateDone:
		return "DONE"
	case stateExhausted:
		return "EXHAUSTED"
	}
	return "UNKNOWN"
}

// OrchestratorConfig holds the defaults of a run.
type OrchestratorConfig struct {
	MaxRetries     int
	MaxRows        int
	QueryTimeout   time.Duration
	CandidateLimit int
}

// RunRequest is one connection's share of a question.
type RunRequest struct {
	Question   string
	SQL        string
	Planned    bool
	Connection providers.Connection
	Schema     *entities.Schema
	AllowWrite bool
	MaxRetries int
	Timeout    time.Duration
}

// RetryOrchestrator drives the bounded generate, execute, correct and verify loop of one connection.
type RetryOrchestrator struct {
	generator  providers.SQLGenerator
	corrector  providers.ModelCorrector
	classifier *ErrorClassifier
	fixer      *QuickFixer
	memory     *CorrectionMemory
	verifier   *ResultVerifier
	guard      *SQLGuard
	cfg        OrchestratorConfig
}

// NewRetryOrchestrator creates a new retry orchestrator
func NewRetryOrchestrator(
	generator providers.SQLGenerator,
	corrector providers.ModelCorrector,
	classifier *ErrorClassifier,
	fixer *QuickFixer,
	memory *CorrectionMemory,
	verifier *ResultVerifier,
	guard *SQLGuard,
	cfg OrchestratorConfig,
) *RetryOrchestrator {
	if classifier == nil {
		classifier = NewErrorClassifier()
	}
	if fixer == nil {
		fixer = NewQuickFixer(classifier)
	}
	if verifier == nil {
		verifier = NewResultVerifier(VerifierConfig{})
	}
	if guard == nil {
		guard = NewSQLGuard()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultCandidateLimit
	}
	return &RetryOrchestrator{
		generator:  generator,
		corrector:  corrector,
		classifier: classifier,
		fixer:      fixer,
		memory:     memory,
		verifier:   verifier,
		guard:      guard,
		cfg:        cfg,
	}
}

// failure is the most recent execution failure, the input of every correction strategy.
type failure struct {
	sql       string
	errorText string
	kind      entities.ErrorKind
	rejected  bool
}

// run is the mutable state of one Run call. It never escapes the call.
type run struct {
	req      RunRequest
	conn     providers.Connection
	schema   *entities.Schema
	budget   int
	started  time.Time
	history  []entities.CorrectionAttempt
	tried    map[string]struct{}
	sql      string
	strategy entities.CorrectionStrategy

	triedCandidates map[string]struct{}

	candidateID   string
	lastFailure   *failure
	correctedFrom *failure
	genHints      string
	exec          *entities.ExecResult
	flagged       *entities.DatabaseQueryResult
	lastError     string
}

// Run executes one connection's question or SQL until it succeeds, the budget is spent, or the
// timeout fires. It never returns an error: every outcome is a DatabaseQueryResult.
func (o *RetryOrchestrator) Run(ctx context.Context, req RunRequest) entities.DatabaseQueryResult {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = o.cfg.QueryTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "orchestrator.run",
		attribute.String("connection.id", req.Connection.ID()),
		attribute.String("database.kind", req.Connection.Kind()),
	)
	defer span.End()

	r := &run{
		req:     req,
		conn:    req.Connection,
		schema:  req.Schema,
		budget:  req.MaxRetries,
		started: time.Now(),
		tried:   make(map[string]struct{}),

		triedCandidates: make(map[string]struct{}),
	}
	if r.budget <= 0 {
		r.budget = o.cfg.MaxRetries
	}
	if r.schema == nil {
		r.schema = &entities.Schema{}
	}

	if err := r.schema.Validate(); err != nil {
		r.strategy = entities.StrategySupplied
		if req.SQL == "" {
			r.strategy = entities.StrategyGenerated
		}
		o.record(ctx, r, entities.CorrectionAttempt{
			SQL:       req.SQL,
			Error:     "invalid schema: " + err.Error(),
			ErrorKind: entities.ErrorKindUnknown,
		})
		r.lastError = "invalid schema: " + err.Error()
		return o.failed(r)
	}

	state := stateGenerating
	r.strategy = entities.StrategyGenerated
	if strings.TrimSpace(req.SQL) != "" {
		state = stateExecuting
		r.sql = req.SQL
		if !req.Planned {
			r.strategy = entities.StrategySupplied
		}
	}

	for {
		switch state {
		case stateDone:
			if r.flagged != nil {
				return r.finishFlagged()
			}
			return o.succeeded(r, nil)
		case stateExhausted:
			if r.flagged != nil {
				return r.finishFlagged()
			}
			if ctx.Err() != nil {
				return o.timedOut(r)
			}
			return o.failed(r)
		}

		if ctx.Err() != nil {
			return o.timedOut(r)
		}
		log.Debug().
			Str("connection_id", r.conn.ID()).
			Str("state", state.String()).
			Int("attempt", len(r.history)+1).
			Msg("orchestrator transition")

		switch state {
		case stateGenerating:
			state = o.generate(ctx, r)
		case stateExecuting:
			state = o.execute(ctx, r)
		case stateCorrecting:
			state = o.correct(ctx, r)
		case stateVerifying:
			state = o.verify(ctx, r)
		}
	}
}

func (o *RetryOrchestrator) generate(ctx context.Context, r *run) runState {
	if !r.hasBudget() {
		return stateExhausted
	}

	var (
		sql string
		err error
	)
	switch {
	case strings.TrimSpace(r.req.Question) != "" && o.generator != nil:
		sql, err = o.generator.Generate(ctx, r.req.Question, r.schema, r.conn.Kind(), r.genHints)
	case r.strategy == entities.StrategyVerification && o.corrector != nil:
		sql, err = o.corrector.ProposeFix(ctx, r.sql, "the result looked wrong", r.schema, r.genHints)
	case r.flagged != nil:
		return stateDone
	default:
		o.record(ctx, r, entities.CorrectionAttempt{
			Error:     "no question or SQL to execute",
			ErrorKind: entities.ErrorKindUnknown,
		})
		r.lastError = "no question or SQL to execute"
		return stateExhausted
	}
	if err != nil {
		if ctx.Err() != nil {
			return stateExhausted
		}
		o.record(ctx, r, entities.CorrectionAttempt{
			Error:     "sql generation failed: " + err.Error(),
			ErrorKind: entities.ErrorKindUnknown,
		})
		r.lastError = err.Error()
		return stateGenerating
	}

	if r.wasTried(sql) {
		if r.flagged != nil {
			return stateDone
		}
		o.record(ctx, r, entities.CorrectionAttempt{
			SQL:       sql,
			Error:     "generated a statement that was already tried",
			ErrorKind: entities.ErrorKindUnknown,
		})
		return stateGenerating
	}

	r.sql = sql
	return stateExecuting
}

func (o *RetryOrchestrator) execute(ctx context.Context, r *run) runState {
	if !r.hasBudget() {
		return stateExhausted
	}
	r.markTried(r.sql)

	if err := o.guard.Check(r.sql, r.req.AllowWrite); err != nil {
		o.record(ctx, r, entities.CorrectionAttempt{
			SQL:       r.sql,
			Error:     err.Error(),
			ErrorKind: entities.ErrorKindPermissionDenied,
		})
		r.lastError = err.Error()
		r.lastFailure = &failure{sql: r.sql, errorText: err.Error(), kind: entities.ErrorKindPermissionDenied, rejected: true}
		o.settleCandidate(ctx, r, false)
		return stateCorrecting
	}

	start := time.Now()
	res, err := r.conn.Execute(ctx, r.sql, o.cfg.MaxRows)
	elapsed := time.Since(start)
	observability.RecordQueryMetric(ctx, r.conn.Kind(), elapsed, err)

	if err != nil {
		if ctx.Err() != nil {
			o.record(ctx, r, entities.CorrectionAttempt{
				SQL:       r.sql,
				Error:     entities.TimeoutError,
				ErrorKind: entities.ErrorKindTimeout,
				ElapsedMs: millis(elapsed),
			})
			return stateExhausted
		}
		kind := o.classifier.Classify(err.Error())
		o.record(ctx, r, entities.CorrectionAttempt{
			SQL:       r.sql,
			Error:     err.Error(),
			ErrorKind: kind,
			ElapsedMs: millis(elapsed),
		})
		r.lastError = err.Error()
		r.lastFailure = &failure{sql: r.sql, errorText: err.Error(), kind: kind}
		o.settleCandidate(ctx, r, false)

		log.Info().
			Str("connection_id", r.conn.ID()).
			Int("attempt", len(r.history)).
			Str("error_kind", string(kind)).
			Str("strategy", string(r.strategy)).
			Msg("query attempt failed")
		return stateCorrecting
	}

	rowCount := res.RowCount
	o.record(ctx, r, entities.CorrectionAttempt{
		SQL:       r.sql,
		Succeeded: true,
		ElapsedMs: millis(elapsed),
		RowCount:  &rowCount,
	})
	r.exec = res
	o.settleCandidate(ctx, r, true)
	return stateVerifying
}

// correct picks the next statement after a failure: quick fix, then learned corrections, then the model.
func (o *RetryOrchestrator) correct(ctx context.Context, r *run) runState {
	if !r.hasBudget() {
		return stateExhausted
	}
	f := r.lastFailure

	var candidates []*entities.LearnedCorrection
	if !f.rejected {
		fix := o.fixer.QuickFix(f.sql, f.kind, f.errorText, r.schema)
		if fix.Succeeded && !r.wasTried(fix.FixedSQL) {
			r.useCorrection(fix.FixedSQL, entities.StrategyQuickFix, "", f)
			log.Info().
				Str("connection_id", r.conn.ID()).
				Str("original", fix.Original).
				Str("replacement", fix.Replacement).
				Float64("confidence", fix.Confidence).
				Msg("applying quick fix")
			return stateExecuting
		}

		if o.memory != nil {
			candidates = o.memory.FindCandidates(ctx, f.kind, f.errorText, r.conn.Kind(), o.cfg.CandidateLimit)
			for _, c := range candidates {
				if _, used := r.triedCandidates[c.ID]; used {
					continue
				}
				r.triedCandidates[c.ID] = struct{}{}
				fixed, ok := o.memory.Apply(c, f.sql)
				if !ok || r.wasTried(fixed) {
					continue
				}
				r.useCorrection(fixed, entities.StrategyLearned, c.ID, f)
				log.Info().
					Str("connection_id", r.conn.ID()).
					Str("correction_id", c.ID).
					Float64("confidence", c.Score.Confidence()).
					Msg("applying learned correction")
				return stateExecuting
			}
		}
	}

	if o.corrector == nil {
		return stateExhausted
	}
	hints := o.modelHints(r, f, candidates)
	fixed, err := o.corrector.ProposeFix(ctx, f.sql, f.errorText, r.schema, hints)
	if err != nil {
		if ctx.Err() != nil {
			return stateExhausted
		}
		o.record(ctx, r, entities.CorrectionAttempt{
			SQL:       f.sql,
			Error:     "model correction failed: " + err.Error(),
			ErrorKind: entities.ErrorKindUnknown,
		})
		r.lastError = err.Error()
		return stateCorrecting
	}
	if r.wasTried(fixed) {
		r.strategy = entities.StrategyModel
		o.record(ctx, r, entities.CorrectionAttempt{
			SQL:       fixed,
			Error:     "model proposed a statement that was already tried",
			ErrorKind: f.kind,
		})
		return stateCorrecting
	}
	r.useCorrection(fixed, entities.StrategyModel, "", f)
	return stateExecuting
}

func (o *RetryOrchestrator) verify(ctx context.Context, r *run) runState {
	verdict := o.verifier.Verify(ctx, r.req.Question, r.sql, r.exec, r.schema, r.conn.Kind(), r.conn)

	switch verdict.Severity() {
	case entities.SeverityEscalate:
		flagged := o.succeeded(r, &verdict)
		r.flagged = &flagged
		o.learn(ctx, r)
		if !r.hasBudget() {
			log.Info().
				Str("connection_id", r.conn.ID()).
				Str("issue_kind", string(verdict.IssueKind)).
				Msg("suspicious result kept, attempt budget spent")
			return stateDone
		}
		r.genHints = o.verifier.ImprovementHints(verdict) + "\nPrevious SQL: " + r.sql
		r.strategy = entities.StrategyVerification
		r.candidateID = ""
		r.correctedFrom = nil
		log.Info().
			Str("connection_id", r.conn.ID()).
			Str("issue_kind", string(verdict.IssueKind)).
			Float64("confidence", verdict.Confidence).
			Msg("suspicious result, regenerating")
		return stateGenerating
	case entities.SeverityWarning:
		result := o.succeeded(r, &verdict)
		r.flagged = &result
	default:
		r.flagged = nil
	}
	o.learn(ctx, r)
	return stateDone
}

// learn stores a model-produced fix of an execution failure.
func (o *RetryOrchestrator) learn(ctx context.Context, r *run) {
	if o.memory == nil || r.strategy != entities.StrategyModel || r.correctedFrom == nil {
		return
	}
	f := r.correctedFrom
	r.correctedFrom = nil
	if f.rejected {
		return
	}
	if _, err := o.memory.Learn(ctx, f.kind, f.sql, f.errorText, r.sql, r.conn.Kind()); err != nil {
		log.Warn().Err(err).Str("connection_id", r.conn.ID()).Msg("failed to learn correction")
	}
}

func (o *RetryOrchestrator) settleCandidate(ctx context.Context, r *run, succeeded bool) {
	if r.candidateID == "" || o.memory == nil {
		return
	}
	id := r.candidateID
	r.candidateID = ""
	if err := o.memory.RecordOutcome(ctx, id, succeeded); err != nil {
		log.Warn().Err(err).Str("correction_id", id).Msg("failed to record correction outcome")
	}
}

func (o *RetryOrchestrator) modelHints(r *run, f *failure, candidates []*entities.LearnedCorrection) string {
	var hints []string
	if f.rejected {
		hints = append(hints, "The statement was rejected before execution: "+f.errorText)
		if !r.req.AllowWrite {
			hints = append(hints, "Only a single read-only SELECT statement is allowed.")
		}
		return strings.Join(hints, "\n")
	}

	ec := o.classifier.ExtractContext(f.errorText, f.kind)
	if hint := o.classifier.FixHint(f.kind, ec); hint != "" {
		hints = append(hints, hint)
	}
	if matches := o.fixer.Suggestions(f.sql, f.kind, f.errorText, r.schema); len(matches) > 0 {
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, fmt.Sprintf("%s (%.2f)", m.Name, m.Score))
		}
		hints = append(hints, fmt.Sprintf("Closest schema names to %q: %s", ec.Identifier, strings.Join(names, ", ")))
	}
	for _, c := range candidates {
		hints = append(hints, fmt.Sprintf("A similar error was previously fixed (%s): %s -> %s", c.Description, c.OriginalSQL, c.CorrectedSQL))
	}
	return strings.Join(hints, "\n")
}

func (o *RetryOrchestrator) record(ctx context.Context, r *run, a entities.CorrectionAttempt) {
	a.AttemptNumber = len(r.history) + 1
	a.Strategy = r.strategy
	r.history = append(r.history, a)
	observability.RecordCorrectionAttempt(ctx, string(a.Strategy), a.Succeeded)
}

func (o *RetryOrchestrator) succeeded(r *run, verdict *entities.VerificationResult) entities.DatabaseQueryResult {
	rowCount := r.exec.RowCount
	result := entities.DatabaseQueryResult{
		ConnectionID:       r.conn.ID(),
		DatabaseKind:       r.conn.Kind(),
		SQL:                r.sql,
		Succeeded:          true,
		Columns:            r.exec.Columns,
		Rows:               r.exec.Rows,
		RowCount:           &rowCount,
		Truncated:          r.exec.Truncated,
		ElapsedMs:          millis(time.Since(r.started)),
		CorrectionAttempts: len(r.history),
		AttemptHistory:     append([]entities.CorrectionAttempt(nil), r.history...),
	}
	if verdict != nil {
		result.Warnings = []entities.VerificationWarning{verdict.AsWarning()}
	}
	return result
}

func (o *RetryOrchestrator) failed(r *run) entities.DatabaseQueryResult {
	errText := r.lastError
	if errText == "" {
		errText = "attempt budget exhausted"
	}
	return entities.DatabaseQueryResult{
		ConnectionID:       r.conn.ID(),
		DatabaseKind:       r.conn.Kind(),
		SQL:                r.lastSQL(),
		Succeeded:          false,
		ElapsedMs:          millis(time.Since(r.started)),
		Error:              errText,
		CorrectionAttempts: len(r.history),
		AttemptHistory:     append([]entities.CorrectionAttempt(nil), r.history...),
	}
}

func (o *RetryOrchestrator) timedOut(r *run) entities.DatabaseQueryResult {
	if r.flagged != nil {
		return r.finishFlagged()
	}
	if len(r.history) == 0 {
		o.record(context.Background(), r, entities.CorrectionAttempt{
			SQL:       r.sql,
			Error:     entities.TimeoutError,
			ErrorKind: entities.ErrorKindTimeout,
		})
	}
	result := o.failed(r)
	result.Error = entities.TimeoutError
	return result
}

// finishFlagged returns the kept suspicious result with the attempts made after it.
func (r *run) finishFlagged() entities.DatabaseQueryResult {
	result := *r.flagged
	result.ElapsedMs = millis(time.Since(r.started))
	result.CorrectionAttempts = len(r.history)
	result.AttemptHistory = append([]entities.CorrectionAttempt(nil), r.history...)
	return result
}

func (r *run) hasBudget() bool {
	return len(r.history) < r.budget
}

func (r *run) wasTried(sql string) bool {
	_, ok := r.tried[normalizeSQL(sql)]
	return ok
}

func (r *run) markTried(sql string) {
	r.tried[normalizeSQL(sql)] = struct{}{}
}

func (r *run) useCorrection(sql string, strategy entities.CorrectionStrategy, candidateID string, from *failure) {
	r.sql = sql
	r.strategy = strategy
	r.candidateID = candidateID
	r.correctedFrom = from
}

func (r *run) lastSQL() string {
	for i := len(r.history) - 1; i >= 0; i-- {
		if r.history[i].SQL != "" {
			return r.history[i].SQL
		}
	}
	return r.sql
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
