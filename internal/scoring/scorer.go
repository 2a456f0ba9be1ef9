package scoring

import (
	"math"

	"github.com/ZanzyTHEbar/karma-passport/internal/features"
)

var (
	lowRiskThreshold    float64 = 75
	mediumRiskThreshold float64 = 50

	loanMultiplier float64 = 10
	maxLoanLimit   float64 = 1000

	// raw input ceilings used to rescale agent scores to percentages
	workFrequencyCeiling float64 = 20
	repaymentOffset      float64 = 10
	repaymentSpan        float64 = 20

	tasksPerWorkUnit float64 = 3
	earningsPerTask  float64 = 75
)

// RiskCategory maps a karma score onto one of three fixed tiers
func RiskCategory(score float64) Risk {
	if score >= lowRiskThreshold {
		return RiskLow
	}
	if score >= mediumRiskThreshold {
		return RiskMedium
	}
	return RiskHigh
}

// LoanLimit scales a 0-100 score onto a 0-1000 loan, truncated
func LoanLimit(score float64) int {
	return int(clip(score*loanMultiplier, 0, maxLoanLimit))
}

// ComputeAgentScores derives the four cosmetic UI sub-scores from raw inputs.
// They never feed back into the model.
func ComputeAgentScores(r features.Record) AgentScores {
	workFrequency := r.WorkFrequency / workFrequencyCeiling * 100
	taskSuccess := r.TaskSuccessRate * 100
	repayment := (r.RepaymentHistory - r.DefaultHistory + repaymentOffset) / repaymentSpan * 100

	return AgentScores{
		WorkFrequencyAgent:    percent(workFrequency),
		TaskSuccessRateAgent:  percent(taskSuccess),
		RepaymentHistoryAgent: percent(repayment),
		ActivityAgent:         percent(r.PlatformActivityScore),
	}
}

// ComputeSummary builds the summary cards shown above the score gauge
func ComputeSummary(r features.Record) Summary {
	tasks := truncate(r.WorkFrequency * tasksPerWorkUnit)
	streak := truncate(r.ProfileAge)
	if streak < 1 {
		streak = 1
	}

	return Summary{
		TasksCompleted:   tasks,
		TotalEarnings:    round(float64(tasks)*earningsPerTask, 2),
		ActiveStreakDays: streak,
		AverageRating:    r.CompanyRating,
	}
}

// Interpret turns a raw model output into the full dashboard response.
// Risk and loan limit use the unrounded score.
func Interpret(score float64, r features.Record) Result {
	return Result{
		KarmaScore:   round(score, 2),
		RiskCategory: RiskCategory(score),
		LoanLimit:    LoanLimit(score),
		AgentScores:  ComputeAgentScores(r),
		Summary:      ComputeSummary(r),
	}
}

func percent(x float64) float64 {
	return round(clip(x, 0, 100), 1)
}

// round uses half-to-even ties on the scaled value
func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.RoundToEven(x*p) / p
}

// truncate drops the fraction and saturates at the int range, where a plain
// conversion is implementation defined.
func truncate(x float64) int {
	switch {
	case math.IsNaN(x):
		return 0
	case x >= math.MaxInt:
		return math.MaxInt
	case x <= math.MinInt:
		return math.MinInt
	}
	return int(x)
}

func clip(x, lo, hi float64) float64 {
	if x < lo || math.IsNaN(x) {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
