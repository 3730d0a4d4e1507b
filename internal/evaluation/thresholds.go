package evaluation

import "fmt"

// Thresholds are the quality gates an evaluation run must meet.
type Thresholds struct {
	MinPassRate    float64
	MinRepairRate  float64
	MaxAvgAttempts float64
}

// Check returns one message per gate the summary misses. A zero gate is not checked.
func (t Thresholds) Check(s *EvalSummary) []string {
	var violations []string
	if t.MinPassRate > 0 && s.PassRate < t.MinPassRate {
		violations = append(violations, fmt.Sprintf("pass rate %.2f below %.2f", s.PassRate, t.MinPassRate))
	}
	if t.MinRepairRate > 0 && s.RepairRate < t.MinRepairRate {
		violations = append(violations, fmt.Sprintf("repair rate %.2f below %.2f", s.RepairRate, t.MinRepairRate))
	}
	if t.MaxAvgAttempts > 0 && s.AvgAttempts > t.MaxAvgAttempts {
		violations = append(violations, fmt.Sprintf("average attempts %.2f above %.2f", s.AvgAttempts, t.MaxAvgAttempts))
	}
	return violations
}
