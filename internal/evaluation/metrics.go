package evaluation

// Rate returns part/total, or 0 when total is 0.
func Rate(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total)
}

// RepairRate computes the fraction of runs whose first attempt failed and that still ended
// successfully. Returns 0.0 when every run succeeded first time.
func RepairRate(results []EvalResult) float64 {
	failedFirst, repaired := 0, 0
	for _, r := range results {
		if r.FirstTry || r.Attempts == 0 {
			continue
		}
		failedFirst++
		if r.Succeeded {
			repaired++
		}
	}
	return Rate(repaired, failedFirst)
}

// AverageAttempts computes the mean number of attempts across results.
func AverageAttempts(results []EvalResult) float64 {
	total := 0
	for _, r := range results {
		total += r.Attempts
	}
	return Rate(total, len(results))
}
