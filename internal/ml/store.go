package ml

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// FormatVersion tags the persisted blob layout. Loads reject any other
// version instead of deserializing into a mismatched structure.
const FormatVersion = 1

// storeEnvelope wraps the bundle with enough metadata to detect stale or
// foreign blobs.
type storeEnvelope struct {
	FormatVersion int
	BundleID      string
	SavedAt       time.Time
	Bundle        *Bundle
}

// Store serializes and restores the full trained-state bundle as one atomic
// blob on disk.
type Store struct {
	logger *logrus.Logger
}

// NewStore builds a model store.
func NewStore(logger *logrus.Logger) *Store {
	return &Store{logger: logger}
}

// Save writes the bundle to path as a single blob via a temp file and
// rename, so a crash mid-write never leaves a truncated blob behind.
// Untrained bundles are not persisted.
func (s *Store) Save(bundle *Bundle, path string) error {
	if bundle == nil || !bundle.IsTrained {
		s.logger.Debug("skipping model save: bundle is untrained")
		return nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &PersistenceError{Op: "save models", Err: err}
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return &PersistenceError{Op: "save models", Err: err}
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	envelope := storeEnvelope{
		FormatVersion: FormatVersion,
		BundleID:      bundle.BundleID,
		SavedAt:       time.Now().UTC(),
		Bundle:        bundle,
	}
	if err := gob.NewEncoder(tmp).Encode(&envelope); err != nil {
		_ = tmp.Close()
		return &PersistenceError{Op: "save models", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &PersistenceError{Op: "save models", Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &PersistenceError{Op: "save models", Err: err}
	}

	s.logger.WithFields(logrus.Fields{
		"path":      path,
		"bundle_id": bundle.BundleID,
	}).Info("model bundle saved")
	return nil
}

// Load reads a bundle blob from path. The returned bundle is complete or the
// error is non-nil; callers keep their prior state on failure.
func (s *Store) Load(path string) (*Bundle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &PersistenceError{Op: "load models", Err: err}
	}
	defer func() {
		_ = file.Close()
	}()

	var envelope storeEnvelope
	if err := gob.NewDecoder(file).Decode(&envelope); err != nil {
		return nil, &PersistenceError{Op: "load models", Err: err}
	}
	if envelope.FormatVersion != FormatVersion {
		return nil, &PersistenceError{
			Op:  "load models",
			Err: fmt.Errorf("unsupported blob format version %d (want %d)", envelope.FormatVersion, FormatVersion),
		}
	}
	if envelope.Bundle == nil {
		return nil, &PersistenceError{Op: "load models", Err: fmt.Errorf("blob contains no bundle")}
	}

	s.logger.WithFields(logrus.Fields{
		"path":      path,
		"bundle_id": envelope.BundleID,
		"saved_at":  envelope.SavedAt,
	}).Info("model bundle loaded")
	return envelope.Bundle, nil
}
