package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"pipeline/internal/model"
)

// SQLiteSessionLog implements SessionLog over modernc.org/sqlite, the pure
// Go driver the teacher already depends on. SQLite allows exactly one
// writer at a time, so the pool is pinned to a single connection rather
// than letting database/sql hand out concurrent writers that would just
// serialize on SQLITE_BUSY anyway.
type SQLiteSessionLog struct {
	db *sql.DB
}

// NewSQLiteSessionLog opens (creating if absent) the session database at
// path and applies its migration.
func NewSQLiteSessionLog(path string) (*SQLiteSessionLog, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite session log: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite session log: %w", err)
	}

	s := &SQLiteSessionLog{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite session log: %w", err)
	}
	return s, nil
}

func (s *SQLiteSessionLog) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		feature_id INTEGER NOT NULL,
		track TEXT NOT NULL,
		branch TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		duration_ns INTEGER NOT NULL DEFAULT 0,
		prompt TEXT NOT NULL,
		extra_context TEXT NOT NULL DEFAULT '',
		output TEXT NOT NULL DEFAULT '',
		messages TEXT NOT NULL DEFAULT '[]',
		error TEXT NOT NULL DEFAULT '',
		agent_used TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_feature ON sessions (feature_id, started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_sessions_track ON sessions (track, started_at DESC);`)
	return err
}

func (s *SQLiteSessionLog) CreateSession(ctx context.Context, sess model.Session) error {
	messages, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO sessions
		(id, feature_id, track, branch, status, started_at, prompt, extra_context, output, messages, error, agent_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.FeatureID, sess.Track, sess.Branch, string(sess.Status), sess.StartedAt,
		sess.Prompt, sess.ExtraContext, sess.Output, string(messages), sess.Error, sess.AgentUsed)
	return err
}

func (s *SQLiteSessionLog) UpdateSession(ctx context.Context, id string, fields SessionFields) error {
	sets, args := buildSQLUpdate(fields)
	if len(sets) == 0 {
		return nil
	}
	query := "UPDATE sessions SET " + joinAssignments(sets) + " WHERE id = ?"
	args = append(args, id)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errSessionNotFound(id)
	}
	return nil
}

func (s *SQLiteSessionLog) GetSession(ctx context.Context, id string) (model.Session, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, feature_id, track, branch, status, started_at, finished_at,
		duration_ns, prompt, extra_context, output, messages, error, agent_used FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return model.Session{}, false, nil
	}
	if err != nil {
		return model.Session{}, false, err
	}
	return sess, true, nil
}

func (s *SQLiteSessionLog) GetLatestSessionForFeature(ctx context.Context, featureID int) (model.Session, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, feature_id, track, branch, status, started_at, finished_at,
		duration_ns, prompt, extra_context, output, messages, error, agent_used FROM sessions
		WHERE feature_id = ? ORDER BY started_at DESC LIMIT 1`, featureID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return model.Session{}, false, nil
	}
	if err != nil {
		return model.Session{}, false, err
	}
	return sess, true, nil
}

func (s *SQLiteSessionLog) GetSessions(ctx context.Context, filters SessionFilters, page Pagination) ([]model.Session, error) {
	where, args := buildSQLWhere(filters)
	query := `SELECT id, feature_id, track, branch, status, started_at, finished_at,
		duration_ns, prompt, extra_context, output, messages, error, agent_used FROM sessions` + where +
		" ORDER BY started_at ASC"
	if page.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit, page.Offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteSessionLog) GetSessionCount(ctx context.Context, filters SessionFilters) (int, error) {
	where, args := buildSQLWhere(filters)
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions"+where, args...).Scan(&count)
	return count, err
}

func (s *SQLiteSessionLog) Close() error { return s.db.Close() }

// scanner abstracts *sql.Row and *sql.Rows, both of which expose Scan.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (model.Session, error) {
	var (
		sess       model.Session
		status     string
		startedAt  time.Time
		finishedAt sql.NullTime
		durationNS int64
		messages   string
	)
	if err := sc.Scan(&sess.ID, &sess.FeatureID, &sess.Track, &sess.Branch, &status, &startedAt,
		&finishedAt, &durationNS, &sess.Prompt, &sess.ExtraContext, &sess.Output, &messages,
		&sess.Error, &sess.AgentUsed); err != nil {
		return model.Session{}, err
	}
	sess.Status = model.SessionStatus(status)
	sess.StartedAt = startedAt
	sess.Duration = time.Duration(durationNS)
	if finishedAt.Valid {
		t := finishedAt.Time
		sess.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(messages), &sess.Messages); err != nil {
		return model.Session{}, fmt.Errorf("unmarshal messages: %w", err)
	}
	return sess, nil
}

func buildSQLUpdate(fields SessionFields) ([]string, []any) {
	var sets []string
	var args []any
	if fields.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*fields.Status))
	}
	if fields.FinishedAt != nil {
		sets = append(sets, "finished_at = ?")
		args = append(args, *fields.FinishedAt)
	}
	if fields.Duration != nil {
		sets = append(sets, "duration_ns = ?")
		args = append(args, int64(*fields.Duration))
	}
	if fields.Output != nil {
		sets = append(sets, "output = ?")
		args = append(args, *fields.Output)
	}
	if fields.Messages != nil {
		raw, _ := json.Marshal(*fields.Messages)
		sets = append(sets, "messages = ?")
		args = append(args, string(raw))
	}
	if fields.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *fields.Error)
	}
	if fields.AgentUsed != nil {
		sets = append(sets, "agent_used = ?")
		args = append(args, *fields.AgentUsed)
	}
	return sets, args
}

func buildSQLWhere(f SessionFilters) (string, []any) {
	var clauses []string
	var args []any
	if f.FeatureID != 0 {
		clauses = append(clauses, "feature_id = ?")
		args = append(args, f.FeatureID)
	}
	if f.Track != "" {
		clauses = append(clauses, "track = ?")
		args = append(args, f.Track)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	out := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		out += " AND " + c
	}
	return out, args
}

func joinAssignments(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}
