package evaluation

import (
	"math"
	"testing"
)

const floatTolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

func TestRate(t *testing.T) {
	if got := Rate(1, 4); !almostEqual(got, 0.25) {
		t.Errorf("expected 0.25, got %f", got)
	}
	if got := Rate(3, 0); got != 0 {
		t.Errorf("expected 0 for empty total, got %f", got)
	}
}

func TestRepairRate_MixedResults(t *testing.T) {
	results := []EvalResult{
		{Attempts: 1, FirstTry: true, Succeeded: true},
		{Attempts: 2, Succeeded: true},
		{Attempts: 3, Succeeded: false},
		{Attempts: 2, Succeeded: true},
	}
	// 2 of 3 runs that failed first were repaired
	if got := RepairRate(results); !almostEqual(got, 2.0/3.0) {
		t.Errorf("expected 0.667, got %f", got)
	}
}

func TestRepairRate_AllFirstTry(t *testing.T) {
	results := []EvalResult{{Attempts: 1, FirstTry: true, Succeeded: true}}
	if got := RepairRate(results); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
}

func TestRepairRate_IgnoresRunsWithoutAttempts(t *testing.T) {
	results := []EvalResult{{Attempts: 0, Error: "unknown connection"}, {Attempts: 2, Succeeded: true}}
	if got := RepairRate(results); !almostEqual(got, 1.0) {
		t.Errorf("expected 1.0, got %f", got)
	}
}

func TestAverageAttempts(t *testing.T) {
	results := []EvalResult{{Attempts: 1}, {Attempts: 2}, {Attempts: 3}}
	if got := AverageAttempts(results); !almostEqual(got, 2.0) {
		t.Errorf("expected 2.0, got %f", got)
	}
	if got := AverageAttempts(nil); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
}

func TestThresholds_Check(t *testing.T) {
	summary := &EvalSummary{PassRate: 0.7, RepairRate: 0.5, AvgAttempts: 1.8}

	if v := (Thresholds{}).Check(summary); len(v) != 0 {
		t.Errorf("expected no violations for zero thresholds, got %v", v)
	}
	if v := (Thresholds{MinPassRate: 0.6, MaxAvgAttempts: 2}).Check(summary); len(v) != 0 {
		t.Errorf("expected no violations, got %v", v)
	}
	v := Thresholds{MinPassRate: 0.9, MinRepairRate: 0.8, MaxAvgAttempts: 1.5}.Check(summary)
	if len(v) != 3 {
		t.Errorf("expected 3 violations, got %v", v)
	}
}
