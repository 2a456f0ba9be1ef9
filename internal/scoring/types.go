package scoring

// Risk is the dashboard risk tier derived from the karma score
type Risk string

const (
	RiskLow    Risk = "Low Risk"
	RiskMedium Risk = "Medium Risk"
	RiskHigh   Risk = "High Risk"
)

type AgentScores struct {
	WorkFrequencyAgent    float64 `json:"work_frequency_agent"`
	TaskSuccessRateAgent  float64 `json:"task_success_rate_agent"`
	RepaymentHistoryAgent float64 `json:"repayment_history_agent"`
	ActivityAgent         float64 `json:"activity_agent"`
}

type Summary struct {
	TasksCompleted   int     `json:"tasks_completed"`
	TotalEarnings    float64 `json:"total_earnings"`
	ActiveStreakDays int     `json:"active_streak_days"`
	AverageRating    float64 `json:"average_rating"`
}

// Result is everything the dashboard renders for one prediction
type Result struct {
	KarmaScore   float64     `json:"karma_score"`
	RiskCategory Risk        `json:"risk_category"`
	LoanLimit    int         `json:"loan_limit"`
	AgentScores  AgentScores `json:"agent_scores"`
	Summary      Summary     `json:"summary"`
}
