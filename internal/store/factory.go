package store

import "fmt"

// SessionLogConfig selects and configures a SessionLog backend.
type SessionLogConfig struct {
	Driver           string // "sqlite" (default), "postgres", or "memory"
	SQLitePath       string
	PostgresDSN      string
}

// NewSessionLog builds the configured SessionLog backend. An empty Driver
// defaults to sqlite, matching the teacher's factory default.
func NewSessionLog(cfg SessionLogConfig) (SessionLog, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = ".pipeline-sessions.db"
		}
		return NewSQLiteSessionLog(path)
	case "postgres":
		return NewPostgresSessionLog(cfg.PostgresDSN)
	case "memory":
		return NewMemorySessionLog(), nil
	default:
		return nil, fmt.Errorf("store: unknown session log driver %q", cfg.Driver)
	}
}
