package evaluation

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/databaseguru/backend/internal/application/services"
	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
)

// QueryRunner is the part of the query service the runner drives.
type QueryRunner interface {
	Run(ctx context.Context, in services.RunInput) ([]entities.DatabaseQueryResult, error)
}

// Runner runs evaluation across a set of golden cases.
type Runner struct {
	service QueryRunner
}

func NewRunner(svc QueryRunner) *Runner {
	return &Runner{service: svc}
}

// Run executes the cases in order. Learning carries over between cases, so ordering matters
// when a later case repeats an earlier mistake.
func (r *Runner) Run(ctx context.Context, cases []GoldenCase) (*EvalSummary, error) {
	summary := &EvalSummary{
		TotalCases:   len(cases),
		ByDifficulty: make(map[Difficulty]*GroupSummary),
		ByErrorKind:  make(map[entities.ErrorKind]*GroupSummary),
	}

	for _, gc := range cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		in := services.RunInput{
			Question:      gc.Question,
			ConnectionIDs: []string{gc.ConnectionID},
		}
		if gc.SQL != "" {
			in.SQL = map[string]string{gc.ConnectionID: gc.SQL}
		}

		start := time.Now()
		results, err := r.service.Run(ctx, in)
		duration := time.Since(start)

		res := EvalResult{CaseID: gc.ID, Difficulty: gc.Difficulty, Latency: duration}
		switch {
		case err != nil:
			res.Error = err.Error()
		case len(results) == 1:
			res = scoreResult(gc, results[0], duration)
		}
		log.Debug().
			Str("case_id", gc.ID).
			Bool("passed", res.Passed).
			Int("attempts", res.Attempts).
			Dur("duration", duration).
			Msg("evaluated case")

		summary.Results = append(summary.Results, res)
	}

	finalizeSummary(summary)
	return summary, nil
}

func scoreResult(gc GoldenCase, qr entities.DatabaseQueryResult, latency time.Duration) EvalResult {
	res := EvalResult{
		CaseID:     gc.ID,
		Difficulty: gc.Difficulty,
		Succeeded:  qr.Succeeded,
		Attempts:   len(qr.AttemptHistory),
		Flagged:    len(qr.Warnings) > 0,
		Error:      qr.Error,
		Latency:    latency,
	}
	if n := len(qr.AttemptHistory); n > 0 {
		first := qr.AttemptHistory[0]
		res.FirstTry = first.Succeeded
		res.FirstErrorKind = first.ErrorKind
		res.FinalStrategy = qr.AttemptHistory[n-1].Strategy
	}

	res.Passed = qr.Succeeded != gc.ExpectFailure
	if gc.MaxAttempts > 0 && res.Attempts > gc.MaxAttempts {
		res.Passed = false
	}
	return res
}

func finalizeSummary(s *EvalSummary) {
	succeeded, firstTry := 0, 0
	var latency time.Duration
	for _, res := range s.Results {
		latency += res.Latency
		if res.Passed {
			s.Passed++
		}
		if res.Succeeded {
			succeeded++
		}
		if res.FirstTry {
			firstTry++
		}
		if res.Flagged {
			s.FlaggedCount++
		}

		addToGroup(s.ByDifficulty, res.Difficulty, res)
		if res.FirstErrorKind != "" {
			addToGroup(s.ByErrorKind, res.FirstErrorKind, res)
		}
	}

	n := len(s.Results)
	s.PassRate = Rate(s.Passed, n)
	s.SuccessRate = Rate(succeeded, n)
	s.FirstTryRate = Rate(firstTry, n)
	s.RepairRate = RepairRate(s.Results)
	s.AvgAttempts = AverageAttempts(s.Results)
	if n > 0 {
		s.AvgLatency = latency / time.Duration(n)
	}

	averageGroups(s.ByDifficulty)
	averageGroups(s.ByErrorKind)
}

func addToGroup[K comparable](groups map[K]*GroupSummary, key K, res EvalResult) {
	g, ok := groups[key]
	if !ok {
		g = &GroupSummary{}
		groups[key] = g
	}
	g.Count++
	g.AvgAttempts += float64(res.Attempts)
	if res.Passed {
		g.Passed++
	}
}

func averageGroups[K comparable](groups map[K]*GroupSummary) {
	for _, g := range groups {
		if g.Count > 0 {
			g.AvgAttempts /= float64(g.Count)
		}
	}
}
