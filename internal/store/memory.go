package store

import (
	"context"
	"sort"
	"sync"

	"pipeline/internal/errs"
	"pipeline/internal/model"
)

// MemorySessionLog is an in-memory SessionLog, used by tests and by
// single-process runs that opt out of durable history.
type MemorySessionLog struct {
	mu       sync.Mutex
	sessions map[string]model.Session
	order    []string
}

// NewMemorySessionLog builds an empty in-memory session log.
func NewMemorySessionLog() *MemorySessionLog {
	return &MemorySessionLog{sessions: make(map[string]model.Session)}
}

func (m *MemorySessionLog) CreateSession(ctx context.Context, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; !exists {
		m.order = append(m.order, s.ID)
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *MemorySessionLog) UpdateSession(ctx context.Context, id string, fields SessionFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return &errs.FeatureStoreError{Op: "update_session", Err: errSessionNotFound(id)}
	}
	applyFields(&s, fields)
	m.sessions[id] = s
	return nil
}

func (m *MemorySessionLog) GetSession(ctx context.Context, id string) (model.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok, nil
}

func (m *MemorySessionLog) GetLatestSessionForFeature(ctx context.Context, featureID int) (model.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest model.Session
	found := false
	for _, id := range m.order {
		s := m.sessions[id]
		if s.FeatureID != featureID {
			continue
		}
		if !found || s.StartedAt.After(latest.StartedAt) {
			latest, found = s, true
		}
	}
	return latest, found, nil
}

func (m *MemorySessionLog) GetSessions(ctx context.Context, filters SessionFilters, page Pagination) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Session
	for _, id := range m.order {
		s := m.sessions[id]
		if matches(s, filters) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return paginate(out, page), nil
}

func (m *MemorySessionLog) GetSessionCount(ctx context.Context, filters SessionFilters) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, id := range m.order {
		if matches(m.sessions[id], filters) {
			count++
		}
	}
	return count, nil
}

func (m *MemorySessionLog) Close() error { return nil }

func matches(s model.Session, f SessionFilters) bool {
	if f.FeatureID != 0 && s.FeatureID != f.FeatureID {
		return false
	}
	if f.Track != "" && s.Track != f.Track {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}

func paginate(sessions []model.Session, page Pagination) []model.Session {
	if page.Offset >= len(sessions) {
		return nil
	}
	sessions = sessions[page.Offset:]
	if page.Limit > 0 && page.Limit < len(sessions) {
		sessions = sessions[:page.Limit]
	}
	return sessions
}

func applyFields(s *model.Session, f SessionFields) {
	if f.Status != nil {
		s.Status = *f.Status
	}
	if f.FinishedAt != nil {
		s.FinishedAt = f.FinishedAt
	}
	if f.Duration != nil {
		s.Duration = *f.Duration
	}
	if f.Output != nil {
		s.Output = *f.Output
	}
	if f.Messages != nil {
		s.Messages = *f.Messages
	}
	if f.Error != nil {
		s.Error = *f.Error
	}
	if f.AgentUsed != nil {
		s.AgentUsed = *f.AgentUsed
	}
}
