package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fintrack/insight-engine/internal/ml"
	"github.com/fintrack/insight-engine/internal/models"
)

const (
	momentumShortWindow = 7
	momentumLongWindow  = 14

	// Recommendation thresholds, as fractions/percentages of spending.
	topCategoryShare  = 0.3
	targetSavingsRate = 20.0
)

// InsightService derives spending insights, trends and recommendations from
// a transaction batch. The heavy lifting (category prediction, anomaly
// detection) is delegated to the model service; everything here is
// aggregation over the batch itself.
type InsightService struct {
	modelService *ml.ModelService
	logger       *logrus.Logger
}

// NewInsightService builds an insight service.
func NewInsightService(modelService *ml.ModelService, logger *logrus.Logger) *InsightService {
	return &InsightService{modelService: modelService, logger: logger}
}

// GenerateInsights produces the full insight report for one batch.
func (s *InsightService) GenerateInsights(ctx context.Context, batch []models.Transaction) (*models.InsightReport, error) {
	s.logger.WithField("batch_size", len(batch)).Info("generating insights")

	anomalies, err := s.modelService.DetectAnomalies(batch)
	if err != nil {
		return nil, err
	}

	trends := s.detectTrends(batch)
	return &models.InsightReport{
		Insights:        s.basicInsights(batch),
		Trends:          trends,
		Anomalies:       anomalies,
		Recommendations: s.recommendations(batch, trends),
	}, nil
}

func sumByType(batch []models.Transaction, txType string) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range batch {
		if tx.Type == txType {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

// categoryTotals sums expense amounts per category and returns the top
// category deterministically (largest total, ties by name).
func categoryTotals(batch []models.Transaction) (map[string]decimal.Decimal, string) {
	totals := make(map[string]decimal.Decimal)
	for _, tx := range batch {
		if !tx.IsExpense() || tx.Category == "" {
			continue
		}
		totals[tx.Category] = totals[tx.Category].Add(tx.Amount)
	}

	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)

	top := ""
	for _, name := range names {
		if top == "" || totals[name].GreaterThan(totals[top]) {
			top = name
		}
	}
	return totals, top
}

func (s *InsightService) basicInsights(batch []models.Transaction) []models.Insight {
	insights := []models.Insight{}
	if len(batch) == 0 {
		return insights
	}

	totalSpent := sumByType(batch, models.TransactionTypeExpense)
	totalIncome := sumByType(batch, models.TransactionTypeIncome)
	insights = append(insights, models.Insight{
		Type:       "summary",
		Title:      "Financial Overview",
		Message:    fmt.Sprintf("You've spent $%s and earned $%s", totalSpent.StringFixed(2), totalIncome.StringFixed(2)),
		Confidence: 0.95,
		Data: map[string]interface{}{
			"total_spent":  totalSpent,
			"total_income": totalIncome,
			"net_savings":  totalIncome.Sub(totalSpent),
		},
	})

	totals, top := categoryTotals(batch)
	if top != "" {
		insights = append(insights, models.Insight{
			Type:       "spending_pattern",
			Title:      "Top Spending Category",
			Message:    fmt.Sprintf("Your highest spending is in %s ($%s)", top, totals[top].StringFixed(2)),
			Confidence: 0.85,
			Data: map[string]interface{}{
				"category": top,
				"amount":   totals[top],
			},
		})
	}
	return insights
}

func monthKey(t time.Time) string { return t.Format("2006-01") }
func dayKey(t time.Time) string   { return t.Format("2006-01-02") }

func (s *InsightService) detectTrends(batch []models.Transaction) models.Trends {
	trends := models.Trends{}
	if len(batch) < 2 {
		return trends
	}

	// Month-over-month expense change.
	monthly := make(map[string]decimal.Decimal)
	for _, tx := range batch {
		if tx.IsExpense() {
			monthly[monthKey(tx.Date)] = monthly[monthKey(tx.Date)].Add(tx.Amount)
		}
	}
	months := make([]string, 0, len(monthly))
	for m := range monthly {
		months = append(months, m)
	}
	sort.Strings(months)
	if len(months) >= 2 {
		current := monthly[months[len(months)-1]]
		previous := monthly[months[len(months)-2]]
		if !previous.IsZero() {
			change, _ := current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).Float64()
			direction := "down"
			if change > 0 {
				direction = "up"
			}
			trends.ExpenseTrend = &models.ExpenseTrend{
				ChangePercent: change,
				Direction:     direction,
				CurrentMonth:  current,
				PreviousMonth: previous,
			}
		}
	}

	trends.SpendingMomentum = s.spendingMomentum(batch)
	return trends
}

// spendingMomentum compares a short SMA of daily expense totals against a
// longer one. Needs at least momentumLongWindow days of expense history.
func (s *InsightService) spendingMomentum(batch []models.Transaction) *models.SpendingMomentum {
	daily := make(map[string]decimal.Decimal)
	for _, tx := range batch {
		if tx.IsExpense() {
			daily[dayKey(tx.Date)] = daily[dayKey(tx.Date)].Add(tx.Amount)
		}
	}
	if len(daily) < momentumLongWindow {
		return nil
	}

	days := make([]string, 0, len(daily))
	for d := range daily {
		days = append(days, d)
	}
	sort.Strings(days)

	series := make([]float64, len(days))
	for i, d := range days {
		series[i], _ = daily[d].Float64()
	}

	shortSma := trend.NewSmaWithPeriod[float64](momentumShortWindow)
	longSma := trend.NewSmaWithPeriod[float64](momentumLongWindow)
	short := helper.ChanToSlice(shortSma.Compute(helper.SliceToChan(series)))
	long := helper.ChanToSlice(longSma.Compute(helper.SliceToChan(series)))
	if len(short) == 0 || len(long) == 0 {
		return nil
	}

	shortAvg := decimal.NewFromFloat(short[len(short)-1])
	longAvg := decimal.NewFromFloat(long[len(long)-1])
	direction := "flat"
	switch {
	case shortAvg.GreaterThan(longAvg):
		direction = "up"
	case shortAvg.LessThan(longAvg):
		direction = "down"
	}
	return &models.SpendingMomentum{
		ShortTermAvg: shortAvg,
		LongTermAvg:  longAvg,
		Direction:    direction,
	}
}

func (s *InsightService) recommendations(batch []models.Transaction, trends models.Trends) []models.Recommendation {
	recs := []models.Recommendation{}
	if len(batch) == 0 {
		return recs
	}

	totals, top := categoryTotals(batch)
	totalExpenses := sumByType(batch, models.TransactionTypeExpense)
	if top != "" && totalExpenses.IsPositive() {
		share, _ := totals[top].Div(totalExpenses).Float64()
		if share > topCategoryShare {
			recs = append(recs, models.Recommendation{
				Type:     "spending_reduction",
				Title:    "Reduce High Spending",
				Message:  fmt.Sprintf("Consider reducing spending in %s which accounts for %.1f%% of your expenses", top, share*100),
				Priority: "high",
				Action:   fmt.Sprintf("Set a budget for %s", top),
			})
		}
	}

	income := sumByType(batch, models.TransactionTypeIncome)
	if income.IsPositive() {
		rate, _ := income.Sub(totalExpenses).Div(income).Mul(decimal.NewFromInt(100)).Float64()
		if rate < targetSavingsRate {
			recs = append(recs, models.Recommendation{
				Type:     "savings_boost",
				Title:    "Increase Savings",
				Message:  fmt.Sprintf("Your savings rate is %.1f%%. Aim for 20%% to build your financial safety net.", rate),
				Priority: "medium",
				Action:   "Review discretionary spending",
			})
		}
	}
	return recs
}
