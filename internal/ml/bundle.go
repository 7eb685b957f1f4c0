package ml

import "github.com/sirupsen/logrus"

// ClassifierState carries everything the category classifier needs at
// inference time: the fitted forest, the bijective label encoder, and the
// feature builder whose vocabulary and amount statistics fitted it. The
// three are replaced together or not at all.
type ClassifierState struct {
	Forest  *RandomForest
	Encoder *LabelEncoder
	Builder *FeatureBuilder
}

// DetectorState carries the fitted anomaly detector together with its own
// standard scaler and the amount statistics captured at detector training
// time. The scaler is fitted here only and is separate from any scaler used
// elsewhere.
type DetectorState struct {
	Forest     *IsolationForest
	Scaler     *StandardScaler
	AmountMean float64
	AmountStd  float64
}

// Bundle is the complete trained state of the service: exactly one bundle is
// live per process, mutated only by training and replaced wholesale by a
// load. A nil sub-state means that model is untrained; the other keeps
// serving.
type Bundle struct {
	Classifier *ClassifierState
	Detector   *DetectorState
	IsTrained  bool
	BundleID   string
}

// attachLogger re-wires loggers into the sub-states; needed after a gob
// restore, which drops them.
func (b *Bundle) attachLogger(logger *logrus.Logger) {
	if b.Classifier != nil && b.Classifier.Builder != nil {
		b.Classifier.Builder.SetLogger(logger)
	}
}
