package featuresync

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeline/internal/model"
)

type fakeSource struct {
	name    string
	results [][]model.Feature
	calls   int
	errs    []error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context) ([]model.Feature, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	if idx < len(f.results) {
		return f.results[idx], nil
	}
	return nil, nil
}

type fakeUpserter struct {
	seen  [][]model.Feature
	added int
	err   error
}

func (f *fakeUpserter) UpsertExternalFeatures(ctx context.Context, candidates []model.Feature) (int, error) {
	f.seen = append(f.seen, candidates)
	if f.err != nil {
		return 0, f.err
	}
	return f.added, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPoller_PollsImmediatelyOnStart(t *testing.T) {
	src := &fakeSource{name: "jira", results: [][]model.Feature{{{Name: "a"}}}}
	up := &fakeUpserter{added: 1}
	p := NewPoller(src, up, time.Hour, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p.Start(ctx)

	assert.Equal(t, 1, src.calls)
	require.Len(t, up.seen, 1)
	assert.Equal(t, "a", up.seen[0][0].Name)
}

func TestPoller_FetchErrorDoesNotPanic(t *testing.T) {
	src := &fakeSource{name: "jira", errs: []error{assert.AnError}}
	up := &fakeUpserter{}
	p := NewPoller(src, up, time.Hour, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	p.Start(ctx)

	assert.Equal(t, 1, src.calls)
	assert.Empty(t, up.seen)
}

func TestPoller_EmptyFetchSkipsUpsert(t *testing.T) {
	src := &fakeSource{name: "jira", results: [][]model.Feature{{}}}
	up := &fakeUpserter{}
	p := NewPoller(src, up, time.Hour, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	p.Start(ctx)

	assert.Empty(t, up.seen)
}
