package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintrack/insight-engine/internal/ml"
	"github.com/fintrack/insight-engine/internal/models"
)

// TransactionRequest is the wire form of a transaction. Dates arrive as
// strings and are parsed strictly; a date the service cannot parse fails the
// request rather than being guessed at.
type TransactionRequest struct {
	ID          string          `json:"id" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type" binding:"required"`
	Category    string          `json:"category"`
	Date        string          `json:"date" binding:"required"`
	Description string          `json:"description"`
	Merchant    string          `json:"merchant"`
}

var dateLayouts = []string{time.RFC3339, "2006-01-02"}

func parseDate(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// ToTransaction validates and converts the request into the domain model.
func (r TransactionRequest) ToTransaction() (models.Transaction, error) {
	tx := models.Transaction{
		ID:          r.ID,
		Amount:      r.Amount,
		Type:        r.Type,
		Category:    r.Category,
		Description: r.Description,
		Merchant:    r.Merchant,
	}
	if !tx.ValidType() {
		return models.Transaction{}, ml.NewDataError("transaction %q has unknown type %q", r.ID, r.Type)
	}
	date, err := parseDate(r.Date)
	if err != nil {
		return models.Transaction{}, ml.NewDataError("transaction %q has unparseable date %q", r.ID, r.Date)
	}
	tx.Date = date
	return tx, nil
}

// ToBatch converts a request batch, failing the whole batch on the first
// malformed row.
func ToBatch(reqs []TransactionRequest) ([]models.Transaction, error) {
	batch := make([]models.Transaction, len(reqs))
	for i, r := range reqs {
		tx, err := r.ToTransaction()
		if err != nil {
			return nil, err
		}
		batch[i] = tx
	}
	return batch, nil
}
