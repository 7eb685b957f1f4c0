package ml

import (
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/fintrack/insight-engine/internal/models"
)

// Canonical feature layout. The schema of a fitted builder is the
// intersection of this list with the columns actually derivable from the
// training batch; absent features are omitted, never invented.
var baseFeatureColumns = []string{
	"amount",
	"day_of_week",
	"day_of_month",
	"month",
	"is_weekend",
	"amount_log",
	"amount_zscore",
}

const merchantCountColumn = "merchant_count"

// detectorFeatureColumns is the fixed numeric subset the anomaly detector
// trains on.
var detectorFeatureColumns = []string{
	"amount",
	"amount_log",
	"amount_zscore",
	"day_of_week",
	"day_of_month",
}

// FeatureTable is the ephemeral matrix produced for one batch. Rows are in
// batch order and keyed by transaction id.
type FeatureTable struct {
	Schema []string
	Rows   [][]float64
	IDs    []string
}

// FeatureBuilder turns transaction batches into numeric feature rows. Fit
// learns the text vocabulary and records the batch amount statistics;
// Transform reuses both so that inference never depends on the size of the
// incoming batch.
type FeatureBuilder struct {
	Vectorizer      *TfidfVectorizer // nil when the training batch had no descriptions
	AmountMean      float64
	AmountStd       float64
	HasMerchant     bool
	Schema          []string
	MaxTextFeatures int
	Fitted          bool

	logger *logrus.Logger
}

// NewFeatureBuilder builds an unfitted feature builder.
func NewFeatureBuilder(maxTextFeatures int, logger *logrus.Logger) *FeatureBuilder {
	return &FeatureBuilder{MaxTextFeatures: maxTextFeatures, logger: logger}
}

// SetLogger re-attaches a logger, needed after the builder is restored from
// a persisted bundle (loggers are not serialized).
func (b *FeatureBuilder) SetLogger(logger *logrus.Logger) { b.logger = logger }

func (b *FeatureBuilder) warnf(format string, args ...interface{}) {
	if b.logger != nil {
		b.logger.Warnf(format, args...)
	}
}

func validateBatch(batch []models.Transaction) error {
	for _, tx := range batch {
		if tx.Date.IsZero() {
			return NewDataError("transaction %q has no parseable date", tx.ID)
		}
		amount := tx.Amount.InexactFloat64()
		if math.IsNaN(amount) || math.IsInf(amount, 0) {
			return NewDataError("transaction %q has a non-finite amount", tx.ID)
		}
	}
	return nil
}

// dayOfWeek returns 0 for Monday through 6 for Sunday.
func dayOfWeek(tx models.Transaction) int {
	return (int(tx.Date.Weekday()) + 6) % 7
}

func amountLog(amount float64) float64 {
	v := math.Log1p(amount)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func zScore(amount, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return (amount - mean) / std
}

// amountStats computes the batch mean and sample standard deviation. Batches
// with fewer than 2 rows or zero variance report std 0, which zScore treats
// as "emit 0".
func amountStats(batch []models.Transaction) (mean, std float64) {
	if len(batch) == 0 {
		return 0, 0
	}
	amounts := make([]float64, len(batch))
	for i, tx := range batch {
		amounts[i] = tx.Amount.InexactFloat64()
	}
	mean = stat.Mean(amounts, nil)
	if len(amounts) < 2 {
		return mean, 0
	}
	std = stat.StdDev(amounts, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}

func merchantCounts(batch []models.Transaction) map[string]int {
	counts := make(map[string]int)
	for _, tx := range batch {
		if tx.Merchant != "" {
			counts[tx.Merchant]++
		}
	}
	return counts
}

// Fit learns the vocabulary and batch statistics from a training batch and
// returns its feature table.
func (b *FeatureBuilder) Fit(batch []models.Transaction) (*FeatureTable, error) {
	if err := validateBatch(batch); err != nil {
		return nil, err
	}

	b.AmountMean, b.AmountStd = amountStats(batch)

	hasText := false
	for _, tx := range batch {
		if tx.Description != "" {
			hasText = true
			break
		}
	}
	if hasText {
		b.Vectorizer = NewTfidfVectorizer(b.MaxTextFeatures)
		b.Vectorizer.Fit(descriptions(batch))
	} else {
		b.Vectorizer = nil
	}

	b.HasMerchant = false
	for _, tx := range batch {
		if tx.Merchant != "" {
			b.HasMerchant = true
			break
		}
	}

	schema := make([]string, 0, len(baseFeatureColumns)+1)
	schema = append(schema, baseFeatureColumns...)
	if b.HasMerchant {
		schema = append(schema, merchantCountColumn)
	}
	if b.Vectorizer != nil {
		for _, term := range b.Vectorizer.Terms {
			schema = append(schema, "tfidf_"+term)
		}
	}
	b.Schema = schema
	b.Fitted = true

	return b.assemble(batch)
}

// Transform produces feature rows for a batch using the fitted vocabulary
// and the training-batch amount statistics. Columns the batch cannot supply
// are zero-filled with a warning rather than silently diverging from the
// trained layout.
func (b *FeatureBuilder) Transform(batch []models.Transaction) (*FeatureTable, error) {
	if !b.Fitted {
		return nil, ErrNotTrained
	}
	if err := validateBatch(batch); err != nil {
		return nil, err
	}
	return b.assemble(batch)
}

func descriptions(batch []models.Transaction) []string {
	docs := make([]string, len(batch))
	for i, tx := range batch {
		docs[i] = tx.Description
	}
	return docs
}

func (b *FeatureBuilder) assemble(batch []models.Transaction) (*FeatureTable, error) {
	var tfidfRows [][]float64
	if b.Vectorizer != nil {
		tfidfRows = b.Vectorizer.Transform(descriptions(batch))
	}

	var counts map[string]int
	if b.HasMerchant {
		counts = merchantCounts(batch)
		if len(counts) == 0 && len(batch) > 0 {
			b.warnf("feature schema expects %s but batch has no merchant values; zero-filling", merchantCountColumn)
		}
	}

	table := &FeatureTable{
		Schema: b.Schema,
		Rows:   make([][]float64, len(batch)),
		IDs:    make([]string, len(batch)),
	}
	for i, tx := range batch {
		amount := tx.Amount.InexactFloat64()
		row := make([]float64, 0, len(b.Schema))
		row = append(row,
			amount,
			float64(dayOfWeek(tx)),
			float64(tx.Date.Day()),
			float64(int(tx.Date.Month())),
			boolToFloat(dayOfWeek(tx) >= 5),
			amountLog(amount),
			zScore(amount, b.AmountMean, b.AmountStd),
		)
		if b.HasMerchant {
			row = append(row, float64(counts[tx.Merchant]))
		}
		if len(tfidfRows) > 0 {
			row = append(row, tfidfRows[i]...)
		}
		table.Rows[i] = row
		table.IDs[i] = tx.ID
	}
	return table, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// detectorRow derives the fixed numeric feature set the anomaly detector
// consumes, z-scoring against the statistics captured at detector training
// time.
func detectorRow(tx models.Transaction, mean, std float64) []float64 {
	amount := tx.Amount.InexactFloat64()
	return []float64{
		amount,
		amountLog(amount),
		zScore(amount, mean, std),
		float64(dayOfWeek(tx)),
		float64(tx.Date.Day()),
	}
}
