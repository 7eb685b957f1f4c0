package ml

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/insight-engine/internal/models"
)

func tx(id string, amount float64, txType, category string, date time.Time) models.Transaction {
	return models.Transaction{
		ID:       id,
		Amount:   decimal.NewFromFloat(amount),
		Type:     txType,
		Category: category,
		Date:     date,
	}
}

func columnIndex(t *testing.T, schema []string, name string) int {
	t.Helper()
	for i, col := range schema {
		if col == name {
			return i
		}
	}
	t.Fatalf("column %q not in schema %v", name, schema)
	return -1
}

func TestFeatureBuilder_CalendarDecomposition(t *testing.T) {
	// 2024-01-06 is a Saturday.
	saturday := time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC)
	batch := []models.Transaction{tx("t1", 25, models.TransactionTypeExpense, "food", saturday)}

	b := NewFeatureBuilder(100, nil)
	table, err := b.Fit(batch)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	row := table.Rows[0]
	assert.Equal(t, 5.0, row[columnIndex(t, table.Schema, "day_of_week")])
	assert.Equal(t, 6.0, row[columnIndex(t, table.Schema, "day_of_month")])
	assert.Equal(t, 1.0, row[columnIndex(t, table.Schema, "month")])
	assert.Equal(t, 1.0, row[columnIndex(t, table.Schema, "is_weekend")])
}

func TestFeatureBuilder_MondayIsNotWeekend(t *testing.T) {
	monday := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	batch := []models.Transaction{tx("t1", 25, models.TransactionTypeExpense, "food", monday)}

	b := NewFeatureBuilder(100, nil)
	table, err := b.Fit(batch)
	require.NoError(t, err)

	row := table.Rows[0]
	assert.Equal(t, 0.0, row[columnIndex(t, table.Schema, "day_of_week")])
	assert.Equal(t, 0.0, row[columnIndex(t, table.Schema, "is_weekend")])
}

func TestFeatureBuilder_ZeroDateFailsBatch(t *testing.T) {
	batch := []models.Transaction{
		tx("good", 10, models.TransactionTypeExpense, "food", time.Now()),
		{ID: "bad", Amount: decimal.NewFromInt(5), Type: models.TransactionTypeExpense},
	}

	b := NewFeatureBuilder(100, nil)
	_, err := b.Fit(batch)
	require.Error(t, err)
	assert.True(t, IsDataError(err))
}

func TestFeatureBuilder_ZeroVarianceZScore(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	batch := []models.Transaction{
		tx("t1", 50, models.TransactionTypeExpense, "food", date),
		tx("t2", 50, models.TransactionTypeExpense, "food", date),
		tx("t3", 50, models.TransactionTypeExpense, "food", date),
	}

	b := NewFeatureBuilder(100, nil)
	table, err := b.Fit(batch)
	require.NoError(t, err)

	zi := columnIndex(t, table.Schema, "amount_zscore")
	for _, row := range table.Rows {
		assert.Zero(t, row[zi], "zero-variance batches must emit 0, not NaN")
	}
}

func TestFeatureBuilder_SingleRowZScoreIsZero(t *testing.T) {
	batch := []models.Transaction{tx("t1", 50, models.TransactionTypeExpense, "food", time.Now())}

	b := NewFeatureBuilder(100, nil)
	table, err := b.Fit(batch)
	require.NoError(t, err)
	assert.Zero(t, table.Rows[0][columnIndex(t, table.Schema, "amount_zscore")])
}

func TestFeatureBuilder_TransformUsesTrainingStats(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	train := []models.Transaction{
		tx("t1", 10, models.TransactionTypeExpense, "food", date),
		tx("t2", 20, models.TransactionTypeExpense, "food", date),
		tx("t3", 30, models.TransactionTypeExpense, "food", date),
	}

	b := NewFeatureBuilder(100, nil)
	_, err := b.Fit(train)
	require.NoError(t, err)
	require.Equal(t, 20.0, b.AmountMean)

	// A single-row transform batch must be scored against the training
	// statistics, not degrade to a batch-of-one z-score of 0.
	table, err := b.Transform([]models.Transaction{tx("t4", 30, models.TransactionTypeExpense, "", date)})
	require.NoError(t, err)
	z := table.Rows[0][columnIndex(t, table.Schema, "amount_zscore")]
	assert.InDelta(t, 1.0, z, 1e-9)
}

func TestFeatureBuilder_MissingDescriptionsSkipTextFeatures(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	batch := []models.Transaction{
		tx("t1", 10, models.TransactionTypeExpense, "food", date),
		tx("t2", 20, models.TransactionTypeExpense, "food", date),
	}

	b := NewFeatureBuilder(100, nil)
	table, err := b.Fit(batch)
	require.NoError(t, err)

	for _, col := range table.Schema {
		assert.NotContains(t, col, "tfidf_")
	}
	assert.Nil(t, b.Vectorizer)
}

func TestFeatureBuilder_TextFeatureCap(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	batch := make([]models.Transaction, 0, 120)
	for i := 0; i < 120; i++ {
		txn := tx("t", 10, models.TransactionTypeExpense, "food", date)
		txn.ID = txn.ID + string(rune('a'+i%26))
		txn.Description = uniqueWords(i)
		batch = append(batch, txn)
	}

	b := NewFeatureBuilder(100, nil)
	table, err := b.Fit(batch)
	require.NoError(t, err)

	tfidf := 0
	for _, col := range table.Schema {
		if len(col) > 6 && col[:6] == "tfidf_" {
			tfidf++
		}
	}
	assert.LessOrEqual(t, tfidf, 100)
}

func uniqueWords(i int) string {
	words := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot"}
	return words[i%len(words)] + "shop" + string(rune('a'+i%26)) + string(rune('a'+(i/26)%26))
}

func TestFeatureBuilder_MerchantFrequency(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	batch := []models.Transaction{
		tx("t1", 10, models.TransactionTypeExpense, "food", date),
		tx("t2", 20, models.TransactionTypeExpense, "food", date),
		tx("t3", 30, models.TransactionTypeExpense, "food", date),
	}
	batch[0].Merchant = "acme"
	batch[1].Merchant = "acme"
	batch[2].Merchant = "globex"

	b := NewFeatureBuilder(100, nil)
	table, err := b.Fit(batch)
	require.NoError(t, err)

	mi := columnIndex(t, table.Schema, "merchant_count")
	assert.Equal(t, 2.0, table.Rows[0][mi])
	assert.Equal(t, 2.0, table.Rows[1][mi])
	assert.Equal(t, 1.0, table.Rows[2][mi])
}

func TestFeatureBuilder_SchemaZeroFillsMissingMerchant(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	train := []models.Transaction{
		tx("t1", 10, models.TransactionTypeExpense, "food", date),
		tx("t2", 20, models.TransactionTypeExpense, "food", date),
	}
	train[0].Merchant = "acme"
	train[1].Merchant = "acme"

	b := NewFeatureBuilder(100, nil)
	_, err := b.Fit(train)
	require.NoError(t, err)

	// Inference batch without merchants keeps the trained layout, zero-filled.
	table, err := b.Transform([]models.Transaction{tx("t3", 15, models.TransactionTypeExpense, "", date)})
	require.NoError(t, err)
	mi := columnIndex(t, table.Schema, "merchant_count")
	assert.Zero(t, table.Rows[0][mi])
}

func TestFeatureBuilder_TransformBeforeFit(t *testing.T) {
	b := NewFeatureBuilder(100, nil)
	_, err := b.Transform([]models.Transaction{tx("t1", 10, models.TransactionTypeExpense, "", time.Now())})
	assert.ErrorIs(t, err, ErrNotTrained)
}

func TestDetectorRow_Layout(t *testing.T) {
	date := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC) // Saturday
	row := detectorRow(tx("t1", 100, models.TransactionTypeExpense, "food", date), 50, 25)

	require.Len(t, row, len(detectorFeatureColumns))
	assert.Equal(t, 100.0, row[0])
	assert.InDelta(t, 4.6151, row[1], 1e-3) // ln(101)
	assert.InDelta(t, 2.0, row[2], 1e-9)    // (100-50)/25
	assert.Equal(t, 5.0, row[3])
	assert.Equal(t, 6.0, row[4])
}
