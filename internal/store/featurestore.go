// Package store implements C2 (the Feature Store) and C3 (the Session
// Log). The Feature Store is a single JSON file guarded by the
// cross-process file lock; the Session Log is a narrow durable-record
// interface with SQLite, Postgres, and in-memory backends, grounded on
// internal/db's factory/sqlite/postgres split.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"pipeline/internal/errs"
	"pipeline/internal/filelock"
	"pipeline/internal/model"
)

// form records which of the two accepted JSON shapes the feature file was
// read in, so FeatureStore writes back the same shape.
type form int

const (
	formArray form = iota
	formWrapped
)

// FeatureStore owns the feature-list file. Every read and every
// read-modify-write cycle is wrapped in the cross-process file lock, since
// the file may be touched by collaborators outside this process (the
// detection wizard, the dashboard) between orchestrator runs.
type FeatureStore struct {
	path string
	lock *filelock.FileLock

	mu          sync.Mutex
	cachedForm  form
	haveCached  bool
	onContended func()
}

// NewFeatureStore builds a FeatureStore backed by the file at path.
// onContended, if non-nil, is called once per retried lock acquisition
// (wired to a metrics counter by the caller).
func NewFeatureStore(path string, onContended func()) *FeatureStore {
	return &FeatureStore{
		path:        path,
		lock:        filelock.New(path),
		onContended: onContended,
	}
}

// LoadFeatures returns the complete feature list.
func (s *FeatureStore) LoadFeatures(ctx context.Context) ([]model.Feature, error) {
	var features []model.Feature
	err := s.lock.WithLock(ctx, s.onContended, func() error {
		list, f, err := s.readLocked()
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.cachedForm, s.haveCached = f, true
		s.mu.Unlock()
		features = list
		return nil
	})
	return features, err
}

// GetFeature returns a single feature by id, or false if absent.
func (s *FeatureStore) GetFeature(ctx context.Context, id int) (model.Feature, bool, error) {
	features, err := s.LoadFeatures(ctx)
	if err != nil {
		return model.Feature{}, false, err
	}
	for _, f := range features {
		if f.ID == id {
			return f, true, nil
		}
	}
	return model.Feature{}, false, nil
}

// UpdateFeatureStatus sets a feature's status, clearing the failure fields
// when the new status is passed or open, and setting them when it is
// failed. progress, when non-empty, always overwrites the stored progress
// summary regardless of status.
func (s *FeatureStore) UpdateFeatureStatus(ctx context.Context, id int, status model.FeatureStatus, failureReason string, failureKind model.FailureKind, progress string) error {
	return s.lock.WithLock(ctx, s.onContended, func() error {
		features, f, err := s.readLocked()
		if err != nil {
			return err
		}

		idx := -1
		for i := range features {
			if features[i].ID == id {
				idx = i
				break
			}
		}
		if idx == -1 {
			return errs.NewFeatureNotFound(id)
		}

		features[idx].Status = status
		switch status {
		case model.FeaturePassed, model.FeatureOpen:
			features[idx].FailureReason = ""
			features[idx].FailureKind = ""
		case model.FeatureFailed:
			features[idx].FailureReason = failureReason
			features[idx].FailureKind = failureKind
		}
		if progress != "" {
			features[idx].Progress = progress
		}

		return s.writeLocked(features, f)
	})
}

// UpsertExternalFeatures merges externally-sourced candidates into the
// feature file: a candidate whose Category+Name already matches a stored
// feature is left untouched (the external system is a seed, not a source
// of truth for in-progress work), and every other candidate is appended
// with a freshly assigned ID. It returns how many were actually added.
func (s *FeatureStore) UpsertExternalFeatures(ctx context.Context, candidates []model.Feature) (int, error) {
	added := 0
	err := s.lock.WithLock(ctx, s.onContended, func() error {
		features, f, err := s.readLocked()
		if err != nil {
			return err
		}

		existing := make(map[string]bool, len(features))
		nextID := 0
		for _, feat := range features {
			existing[feat.Category+"\x00"+feat.Name] = true
			if feat.ID >= nextID {
				nextID = feat.ID + 1
			}
		}

		for _, c := range candidates {
			key := c.Category + "\x00" + c.Name
			if existing[key] {
				continue
			}
			existing[key] = true
			c.ID = nextID
			if c.Status == "" {
				c.Status = model.FeatureOpen
			}
			nextID++
			features = append(features, c)
			added++
		}

		if added == 0 {
			return nil
		}
		return s.writeLocked(features, f)
	})
	return added, err
}

func (s *FeatureStore) readLocked() ([]model.Feature, form, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, formArray, &errs.FeatureStoreError{Op: "read", Err: err}
	}

	var wrapped model.FeatureList
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Features != nil {
		return wrapped.Features, formWrapped, nil
	}

	var bare []model.Feature
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, formArray, nil
	}

	return nil, formArray, &errs.FeatureStoreError{Op: "parse", Err: fmt.Errorf("feature file is neither a bare array nor a {features:[...]} object")}
}

func (s *FeatureStore) writeLocked(features []model.Feature, f form) error {
	var (
		raw []byte
		err error
	)
	switch f {
	case formWrapped:
		raw, err = json.MarshalIndent(model.FeatureList{Features: features}, "", "  ")
	default:
		raw, err = json.MarshalIndent(features, "", "  ")
	}
	if err != nil {
		return &errs.FeatureStoreError{Op: "encode", Err: err}
	}
	raw = append(raw, '\n')
	if err := os.WriteFile(s.path, raw, 0644); err != nil {
		return &errs.FeatureStoreError{Op: "write", Err: err}
	}
	return nil
}
