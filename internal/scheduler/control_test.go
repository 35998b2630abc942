package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeline/internal/model"
	"pipeline/internal/store"
)

type fakeSessionLog struct {
	sessions map[string]model.Session
	latest   map[int]model.Session
}

func newFakeSessionLog() *fakeSessionLog {
	return &fakeSessionLog{sessions: make(map[string]model.Session), latest: make(map[int]model.Session)}
}

func (f *fakeSessionLog) CreateSession(ctx context.Context, s model.Session) error {
	f.sessions[s.ID] = s
	f.latest[s.FeatureID] = s
	return nil
}

func (f *fakeSessionLog) UpdateSession(ctx context.Context, id string, fields store.SessionFields) error {
	s := f.sessions[id]
	if fields.Status != nil {
		s.Status = *fields.Status
	}
	if fields.Output != nil {
		s.Output = *fields.Output
	}
	if fields.Messages != nil {
		s.Messages = *fields.Messages
	}
	if fields.Error != nil {
		s.Error = *fields.Error
	}
	if fields.AgentUsed != nil {
		s.AgentUsed = *fields.AgentUsed
	}
	f.sessions[id] = s
	f.latest[s.FeatureID] = s
	return nil
}

func (f *fakeSessionLog) GetSession(ctx context.Context, id string) (model.Session, bool, error) {
	s, ok := f.sessions[id]
	return s, ok, nil
}

func (f *fakeSessionLog) GetLatestSessionForFeature(ctx context.Context, featureID int) (model.Session, bool, error) {
	s, ok := f.latest[featureID]
	return s, ok, nil
}

func (f *fakeSessionLog) GetSessions(ctx context.Context, filters store.SessionFilters, page store.Pagination) ([]model.Session, error) {
	return nil, nil
}

func (f *fakeSessionLog) GetSessionCount(ctx context.Context, filters store.SessionFilters) (int, error) {
	return 0, nil
}

func (f *fakeSessionLog) Close() error { return nil }

func TestBuildRetryContext_PrefersJoinedMessagesOverRawOutput(t *testing.T) {
	sessions := newFakeSessionLog()
	require.NoError(t, sessions.CreateSession(context.Background(), model.Session{
		ID:        "prev-1",
		FeatureID: 7,
		Output:    "raw output that should be ignored",
		Messages: []model.AgentMessage{
			{Content: "first message"},
			{Content: "second message"},
		},
	}))

	o := &Orchestrator{sessions: sessions}
	ctxStr, prevID := o.buildRetryContext(context.Background(), 7, "")

	assert.Equal(t, "prev-1", prevID)
	assert.Contains(t, ctxStr, "first message")
	assert.Contains(t, ctxStr, "second message")
	assert.NotContains(t, ctxStr, "raw output")
}

func TestBuildRetryContext_FallsBackToRawOutputWithoutMessages(t *testing.T) {
	sessions := newFakeSessionLog()
	require.NoError(t, sessions.CreateSession(context.Background(), model.Session{
		ID:        "prev-2",
		FeatureID: 9,
		Output:    "plain text output",
	}))

	o := &Orchestrator{sessions: sessions}
	ctxStr, prevID := o.buildRetryContext(context.Background(), 9, "")

	assert.Equal(t, "prev-2", prevID)
	assert.Contains(t, ctxStr, "plain text output")
}

func TestBuildRetryContext_PrependsOperatorNote(t *testing.T) {
	sessions := newFakeSessionLog()
	require.NoError(t, sessions.CreateSession(context.Background(), model.Session{ID: "prev-3", FeatureID: 1, Output: "tail"}))

	o := &Orchestrator{sessions: sessions}
	ctxStr, _ := o.buildRetryContext(context.Background(), 1, "try again with a smaller change")

	assert.Contains(t, ctxStr, "try again with a smaller change")
	assert.Contains(t, ctxStr, "tail")
}

func TestBuildRetryContext_NoPriorSessionReturnsJustNote(t *testing.T) {
	sessions := newFakeSessionLog()
	o := &Orchestrator{sessions: sessions}

	ctxStr, prevID := o.buildRetryContext(context.Background(), 404, "only this note")

	assert.Equal(t, "only this note", ctxStr)
	assert.Empty(t, prevID)
}

func TestLastChars_TruncatesFromTheEnd(t *testing.T) {
	assert.Equal(t, "cde", lastChars("abcde", 3))
	assert.Equal(t, "abcde", lastChars("abcde", 10))
}
