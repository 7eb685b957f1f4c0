package ml

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fintrack/insight-engine/internal/config"
	"github.com/fintrack/insight-engine/internal/models"
)

// Training preconditions. Batches below these floors return false instead of
// fitting a model on noise.
const (
	minClassifierRows = 10
	minCategoryLabels = 2
	minDetectorRows   = 20
	minExpenseRows    = 10
)

// Reported anomalies carry a fixed confidence; the detector's raw score is
// not surfaced.
const (
	anomalyConfidence = 0.8
	anomalyReason     = "Unusual spending pattern detected"
)

// ModelStatus reports which sub-models are currently trained.
type ModelStatus struct {
	ClassifierTrained bool   `json:"classifier_trained"`
	DetectorTrained   bool   `json:"detector_trained"`
	IsTrained         bool   `json:"is_trained"`
	BundleID          string `json:"bundle_id,omitempty"`
}

// ModelService owns the single live model bundle. Training builds fresh
// state off to the side and swaps it in under the write lock only once
// complete, so readers never observe a classifier paired with an encoder
// from a different training run.
type ModelService struct {
	cfg    config.MLConfig
	logger *logrus.Logger
	store  *Store

	mu     sync.RWMutex
	bundle *Bundle
}

// NewModelService builds a service with an empty bundle.
func NewModelService(cfg config.MLConfig, logger *logrus.Logger) *ModelService {
	return &ModelService{
		cfg:    cfg,
		logger: logger,
		store:  NewStore(logger),
		bundle: &Bundle{},
	}
}

// TrainModels fits the category classifier and the anomaly detector
// independently over one batch; one model's failure does not block the
// other. It returns true if at least one model trained in this call. A
// sub-model that fails its preconditions leaves its previously trained
// state untouched. Malformed input surfaces as a DataError; the whole call
// runs under a bounded training budget.
func (s *ModelService) TrainModels(ctx context.Context, batch []models.Transaction) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TrainingBudget())
	defer cancel()

	classifier, err := s.trainClassifier(ctx, batch)
	if err != nil {
		if IsDataError(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return false, err
		}
		s.logger.WithError(err).Info("category classifier not trained")
	}

	detector, err := s.trainDetector(ctx, batch)
	if err != nil {
		if IsDataError(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return false, err
		}
		s.logger.WithError(err).Info("anomaly detector not trained")
	}

	trained := classifier != nil || detector != nil

	s.mu.Lock()
	next := &Bundle{
		Classifier: s.bundle.Classifier,
		Detector:   s.bundle.Detector,
		BundleID:   s.bundle.BundleID,
	}
	if classifier != nil {
		next.Classifier = classifier
	}
	if detector != nil {
		next.Detector = detector
	}
	if trained {
		next.BundleID = uuid.NewString()
	}
	next.IsTrained = next.Classifier != nil || next.Detector != nil
	s.bundle = next
	s.mu.Unlock()

	if trained {
		s.logger.WithFields(logrus.Fields{
			"bundle_id":          next.BundleID,
			"classifier_trained": classifier != nil,
			"detector_trained":   detector != nil,
			"batch_size":         len(batch),
		}).Info("model training completed")
	}
	return trained, nil
}

func (s *ModelService) trainClassifier(ctx context.Context, batch []models.Transaction) (*ClassifierState, error) {
	if len(batch) < minClassifierRows {
		return nil, fmt.Errorf("%w: classifier needs at least %d rows, got %d", ErrInsufficientData, minClassifierRows, len(batch))
	}

	categories := make([]string, len(batch))
	distinct := make(map[string]struct{})
	for i, tx := range batch {
		if tx.Category == "" {
			return nil, NewDataError("transaction %q has no category; required for training", tx.ID)
		}
		categories[i] = tx.Category
		distinct[tx.Category] = struct{}{}
	}
	if len(distinct) < minCategoryLabels {
		return nil, fmt.Errorf("%w: classifier needs at least %d distinct categories, got %d", ErrInsufficientData, minCategoryLabels, len(distinct))
	}

	builder := NewFeatureBuilder(s.cfg.MaxTextFeatures, s.logger)
	table, err := builder.Fit(batch)
	if err != nil {
		return nil, err
	}

	encoder := &LabelEncoder{}
	encoder.Fit(categories)
	labels, ok := encoder.EncodeAll(categories)
	if !ok {
		return nil, fmt.Errorf("label encoder lost a category during fit")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	forest := NewRandomForest(s.cfg.ClassifierTrees, s.cfg.ClassifierMaxDepth, s.cfg.RandomSeed)
	forest.Fit(table.Rows, labels, len(encoder.Classes))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &ClassifierState{Forest: forest, Encoder: encoder, Builder: builder}, nil
}

func (s *ModelService) trainDetector(ctx context.Context, batch []models.Transaction) (*DetectorState, error) {
	if len(batch) < minDetectorRows {
		return nil, fmt.Errorf("%w: detector needs at least %d rows, got %d", ErrInsufficientData, minDetectorRows, len(batch))
	}
	if err := validateBatch(batch); err != nil {
		return nil, err
	}

	// Amount statistics come from the full batch, expense filtering happens
	// after feature derivation.
	mean, std := amountStats(batch)

	expenses := filterExpenses(batch)
	if len(expenses) < minExpenseRows {
		return nil, fmt.Errorf("%w: detector needs at least %d expense rows, got %d", ErrInsufficientData, minExpenseRows, len(expenses))
	}

	rows := make([][]float64, len(expenses))
	for i, tx := range expenses {
		rows[i] = detectorRow(tx, mean, std)
	}

	scaler := &StandardScaler{}
	scaled := scaler.FitTransform(rows)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	forest := NewIsolationForest(s.cfg.DetectorTrees, s.cfg.Contamination, s.cfg.RandomSeed)
	forest.Fit(scaled)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &DetectorState{Forest: forest, Scaler: scaler, AmountMean: mean, AmountStd: std}, nil
}

func filterExpenses(batch []models.Transaction) []models.Transaction {
	expenses := make([]models.Transaction, 0, len(batch))
	for _, tx := range batch {
		if tx.IsExpense() {
			expenses = append(expenses, tx)
		}
	}
	return expenses
}

// PredictCategory predicts the spending category of one transaction using
// the fitted vocabulary and training-batch statistics. It returns
// ErrNotTrained before training and a DataError for malformed input; any
// other internal failure is logged and returned, never a panic.
func (s *ModelService) PredictCategory(tx models.Transaction) (string, error) {
	s.mu.RLock()
	cs := s.bundle.Classifier
	s.mu.RUnlock()

	if cs == nil {
		return "", ErrNotTrained
	}

	table, err := cs.Builder.Transform([]models.Transaction{tx})
	if err != nil {
		if !IsDataError(err) {
			s.logger.WithError(err).WithField("transaction_id", tx.ID).Error("category prediction failed")
		}
		return "", err
	}

	class := cs.Forest.Predict(table.Rows[0])
	label, ok := cs.Encoder.Decode(class)
	if !ok {
		err := fmt.Errorf("classifier predicted unknown class id %d", class)
		s.logger.WithError(err).WithField("transaction_id", tx.ID).Error("category prediction failed")
		return "", err
	}
	return label, nil
}

// DetectAnomalies scores the expense rows of a batch and returns one record
// per flagged outlier. An untrained detector yields an empty result, not an
// error. Flagged model indices map back through the expense-only row
// ordering, not the original batch ordering.
func (s *ModelService) DetectAnomalies(batch []models.Transaction) ([]models.AnomalyRecord, error) {
	s.mu.RLock()
	ds := s.bundle.Detector
	s.mu.RUnlock()

	records := []models.AnomalyRecord{}
	if ds == nil {
		return records, nil
	}
	if err := validateBatch(batch); err != nil {
		return nil, err
	}

	expenses := filterExpenses(batch)
	if len(expenses) == 0 {
		return records, nil
	}

	rows := make([][]float64, len(expenses))
	for i, tx := range expenses {
		rows[i] = detectorRow(tx, ds.AmountMean, ds.AmountStd)
	}
	scaled := ds.Scaler.Transform(rows)

	for i, row := range scaled {
		if !ds.Forest.IsOutlier(row) {
			continue
		}
		tx := expenses[i]
		records = append(records, models.AnomalyRecord{
			TransactionID: tx.ID,
			Amount:        tx.Amount,
			Category:      tx.Category,
			Date:          tx.Date,
			Description:   tx.Description,
			Confidence:    anomalyConfidence,
			Reason:        anomalyReason,
		})
	}
	return records, nil
}

// SaveModels persists the current bundle to path (the configured model path
// when path is empty). Saving an untrained bundle is a no-op.
func (s *ModelService) SaveModels(path string) error {
	if path == "" {
		path = s.cfg.ModelPath
	}
	s.mu.RLock()
	bundle := s.bundle
	s.mu.RUnlock()
	return s.store.Save(bundle, path)
}

// LoadModels replaces the in-memory bundle wholesale from a persisted blob.
// On any failure it returns false and the prior state stays live.
func (s *ModelService) LoadModels(path string) bool {
	if path == "" {
		path = s.cfg.ModelPath
	}
	bundle, err := s.store.Load(path)
	if err != nil {
		s.logger.WithError(err).WithField("path", path).Warn("model load failed; keeping current state")
		return false
	}
	bundle.attachLogger(s.logger)

	s.mu.Lock()
	s.bundle = bundle
	s.mu.Unlock()
	return true
}

// IsTrained reports whether at least one sub-model is trained.
func (s *ModelService) IsTrained() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bundle.IsTrained
}

// Status reports the trained state of both sub-models.
func (s *ModelService) Status() ModelStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ModelStatus{
		ClassifierTrained: s.bundle.Classifier != nil,
		DetectorTrained:   s.bundle.Detector != nil,
		IsTrained:         s.bundle.IsTrained,
		BundleID:          s.bundle.BundleID,
	}
}
