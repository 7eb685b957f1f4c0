package ml

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by training and inference operations. Callers can
// distinguish "not enough data" from "not yet trained" instead of observing
// only an empty result.
var (
	ErrInsufficientData = errors.New("ml: insufficient data to train")
	ErrNotTrained       = errors.New("ml: model not trained")
)

// DataError marks malformed input (unparseable dates, missing required
// fields). It always propagates to the caller as a hard failure; silently
// guessing around corrupt input is unsafe.
type DataError struct {
	msg string
}

func (e *DataError) Error() string { return "ml: " + e.msg }

// NewDataError builds a DataError with a formatted message.
func NewDataError(format string, args ...interface{}) *DataError {
	return &DataError{msg: fmt.Sprintf(format, args...)}
}

// IsDataError reports whether err is (or wraps) a DataError.
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}

// PersistenceError wraps failures while saving or loading the trained model
// bundle. A load failure leaves the in-memory bundle untouched.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ml: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
