package models

import "github.com/shopspring/decimal"

// Insight is a single human-readable observation derived from a transaction
// batch.
type Insight struct {
	Type       string                 `json:"type"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	Confidence float64                `json:"confidence"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// ExpenseTrend captures the month-over-month change in total expenses.
type ExpenseTrend struct {
	ChangePercent float64         `json:"change_percent"`
	Direction     string          `json:"direction"` // "up" or "down"
	CurrentMonth  decimal.Decimal `json:"current_month"`
	PreviousMonth decimal.Decimal `json:"previous_month"`
}

// SpendingMomentum compares a short moving average of daily spending against
// a longer one to describe near-term direction.
type SpendingMomentum struct {
	ShortTermAvg decimal.Decimal `json:"short_term_avg"`
	LongTermAvg  decimal.Decimal `json:"long_term_avg"`
	Direction    string          `json:"direction"` // "up", "down" or "flat"
}

// Trends groups the trend readings computed for a batch.
type Trends struct {
	ExpenseTrend     *ExpenseTrend     `json:"expense_trend,omitempty"`
	SpendingMomentum *SpendingMomentum `json:"spending_momentum,omitempty"`
}

// Recommendation is an actionable suggestion derived from spending patterns.
type Recommendation struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
	Action   string `json:"action"`
}

// InsightReport is the full response of the insight generation pipeline.
type InsightReport struct {
	Insights        []Insight        `json:"insights"`
	Trends          Trends           `json:"trends"`
	Anomalies       []AnomalyRecord  `json:"anomalies"`
	Recommendations []Recommendation `json:"recommendations"`
}
