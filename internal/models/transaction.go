package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types supported by the insight engine.
const (
	TransactionTypeIncome  = "income"
	TransactionTypeExpense = "expense"
)

// Transaction represents a single personal-finance transaction as received
// from the tracker backend. Category is required for training batches and
// may be empty for inference.
type Transaction struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
	Category    string          `json:"category,omitempty"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description,omitempty"`
	Merchant    string          `json:"merchant,omitempty"`
}

// IsExpense reports whether the transaction is an expense.
func (t Transaction) IsExpense() bool {
	return t.Type == TransactionTypeExpense
}

// IsIncome reports whether the transaction is an income entry.
func (t Transaction) IsIncome() bool {
	return t.Type == TransactionTypeIncome
}

// ValidType reports whether the transaction type is one of the supported
// values.
func (t Transaction) ValidType() bool {
	return t.Type == TransactionTypeIncome || t.Type == TransactionTypeExpense
}

// AnomalyRecord describes one expense transaction flagged as an outlier by
// the anomaly detector.
type AnomalyRecord struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Category      string          `json:"category"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description"`
	Confidence    float64         `json:"confidence"`
	Reason        string          `json:"reason"`
}
