package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeline/internal/model"
)

func TestFeatureStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.json")
	raw, _ := json.Marshal([]model.Feature{
		{ID: 1, Category: "core", Name: "first", Status: model.FeatureOpen},
		{ID: 2, Category: "core", Name: "second", Status: model.FeatureOpen},
	})
	require.NoError(t, os.WriteFile(path, raw, 0644))

	fs := NewFeatureStore(path, nil)
	ctx := context.Background()

	features, err := fs.LoadFeatures(ctx)
	require.NoError(t, err)
	assert.Len(t, features, 2)

	require.NoError(t, fs.UpdateFeatureStatus(ctx, 1, model.FeaturePassed, "", "", "done"))

	f, ok, err := fs.GetFeature(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.FeaturePassed, f.Status)
	assert.Equal(t, "done", f.Progress)
	assert.Empty(t, f.FailureReason)

	require.NoError(t, fs.UpdateFeatureStatus(ctx, 2, model.FeatureFailed, "boom", model.FailureImplementation, ""))
	f2, ok, err := fs.GetFeature(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "boom", f2.FailureReason)
	assert.Equal(t, model.FailureImplementation, f2.FailureKind)
}

func TestFeatureStoreNotFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"features":[]}`), 0644))

	fs := NewFeatureStore(path, nil)
	err := fs.UpdateFeatureStatus(context.Background(), 99, model.FeaturePassed, "", "", "")
	assert.Error(t, err)
}

func TestFeatureStorePreservesWrappedForm(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"features":[{"id":1,"category":"core","name":"x","status":"open"}]}`), 0644))

	fs := NewFeatureStore(path, nil)
	ctx := context.Background()
	_, err := fs.LoadFeatures(ctx)
	require.NoError(t, err)
	require.NoError(t, fs.UpdateFeatureStatus(ctx, 1, model.FeaturePassed, "", "", ""))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var wrapped model.FeatureList
	require.NoError(t, json.Unmarshal(raw, &wrapped))
	assert.Len(t, wrapped.Features, 1)
}

func TestMemorySessionLog(t *testing.T) {
	log := NewMemorySessionLog()
	ctx := context.Background()

	s := model.Session{ID: "s1", FeatureID: 1, Track: "main", Status: model.SessionRunning, StartedAt: time.Now()}
	require.NoError(t, log.CreateSession(ctx, s))

	status := model.SessionPassed
	finishedAt := time.Now()
	require.NoError(t, log.UpdateSession(ctx, "s1", SessionFields{Status: &status, FinishedAt: &finishedAt}))

	got, ok, err := log.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.SessionPassed, got.Status)

	latest, ok, err := log.GetLatestSessionForFeature(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "s1", latest.ID)

	count, err := log.GetSessionCount(ctx, SessionFilters{FeatureID: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, ok, err = log.GetLatestSessionForFeature(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)
}
