package store

import (
	"context"
	"time"

	"pipeline/internal/model"
)

// SessionFilters narrows GetSessions/GetSessionCount. Zero values mean
// "no filter" on that field.
type SessionFilters struct {
	FeatureID int
	Track     string
	Status    model.SessionStatus
}

// Pagination bounds a GetSessions call. Limit 0 means unbounded.
type Pagination struct {
	Limit  int
	Offset int
}

// SessionFields names the subset of a Session that UpdateSession may
// change; nil pointers leave the corresponding column untouched.
type SessionFields struct {
	Status       *model.SessionStatus
	FinishedAt   *time.Time
	Duration     *time.Duration
	Output       *string
	Messages     *[]model.AgentMessage
	Error        *string
	AgentUsed    *string
}

// SessionLog is C3: append-on-create, update-in-place, tolerant of
// concurrent creates and updates (single-writer serialization internally
// is acceptable; the memory and SQLite backends do it, while the Postgres
// backend leaves concurrent writes to the database).
type SessionLog interface {
	CreateSession(ctx context.Context, s model.Session) error
	UpdateSession(ctx context.Context, id string, fields SessionFields) error
	GetSession(ctx context.Context, id string) (model.Session, bool, error)
	GetLatestSessionForFeature(ctx context.Context, featureID int) (model.Session, bool, error)
	GetSessions(ctx context.Context, filters SessionFilters, page Pagination) ([]model.Session, error)
	GetSessionCount(ctx context.Context, filters SessionFilters) (int, error)
	Close() error
}
