package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"pipeline/internal/model"
)

// PostgresSessionLog implements SessionLog over lib/pq, for deployments
// that already run a shared Postgres instance for other services and want
// session history there instead of a per-process SQLite file.
type PostgresSessionLog struct {
	db *sql.DB
}

// NewPostgresSessionLog opens a connection pool against dsn and applies
// its migration.
func NewPostgresSessionLog(dsn string) (*PostgresSessionLog, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres session log: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres session log: %w", err)
	}
	s := &PostgresSessionLog{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate postgres session log: %w", err)
	}
	return s, nil
}

func (s *PostgresSessionLog) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		feature_id INTEGER NOT NULL,
		track TEXT NOT NULL,
		branch TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		duration_ns BIGINT NOT NULL DEFAULT 0,
		prompt TEXT NOT NULL,
		extra_context TEXT NOT NULL DEFAULT '',
		output TEXT NOT NULL DEFAULT '',
		messages JSONB NOT NULL DEFAULT '[]',
		error TEXT NOT NULL DEFAULT '',
		agent_used TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_feature ON sessions (feature_id, started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_sessions_track ON sessions (track, started_at DESC);`)
	return err
}

func (s *PostgresSessionLog) CreateSession(ctx context.Context, sess model.Session) error {
	messages, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO sessions
		(id, feature_id, track, branch, status, started_at, prompt, extra_context, output, messages, error, agent_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sess.ID, sess.FeatureID, sess.Track, sess.Branch, string(sess.Status), sess.StartedAt,
		sess.Prompt, sess.ExtraContext, sess.Output, string(messages), sess.Error, sess.AgentUsed)
	return err
}

func (s *PostgresSessionLog) UpdateSession(ctx context.Context, id string, fields SessionFields) error {
	sets, args := buildPostgresUpdate(fields)
	if len(sets) == 0 {
		return nil
	}
	query := "UPDATE sessions SET " + joinAssignments(sets) + fmt.Sprintf(" WHERE id = $%d", len(args)+1)
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

func (s *PostgresSessionLog) GetSession(ctx context.Context, id string) (model.Session, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, feature_id, track, branch, status, started_at, finished_at,
		duration_ns, prompt, extra_context, output, messages, error, agent_used FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return model.Session{}, false, nil
	}
	if err != nil {
		return model.Session{}, false, err
	}
	return sess, true, nil
}

func (s *PostgresSessionLog) GetLatestSessionForFeature(ctx context.Context, featureID int) (model.Session, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, feature_id, track, branch, status, started_at, finished_at,
		duration_ns, prompt, extra_context, output, messages, error, agent_used FROM sessions
		WHERE feature_id = $1 ORDER BY started_at DESC LIMIT 1`, featureID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return model.Session{}, false, nil
	}
	if err != nil {
		return model.Session{}, false, err
	}
	return sess, true, nil
}

func (s *PostgresSessionLog) GetSessions(ctx context.Context, filters SessionFilters, page Pagination) ([]model.Session, error) {
	where, args := buildPostgresWhere(filters)
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

func (s *PostgresSessionLog) GetSessionCount(ctx context.Context, filters SessionFilters) (int, error) {
	where, args := buildPostgresWhere(filters)
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions"+where, args...).Scan(&count)
	return count, err
}

func (s *PostgresSessionLog) Close() error { return s.db.Close() }

func buildPostgresUpdate(fields SessionFields) ([]string, []any) {
	var sets []string
	var args []any
	next := func(clause string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf(clause, len(args)))
	}
	if fields.Status != nil {
		next("status = $%d", string(*fields.Status))
	}
	if fields.FinishedAt != nil {
		next("finished_at = $%d", *fields.FinishedAt)
	}
	if fields.Duration != nil {
		next("duration_ns = $%d", int64(*fields.Duration))
	}
	if fields.Output != nil {
		next("output = $%d", *fields.Output)
	}
	if fields.Messages != nil {
		raw, _ := json.Marshal(*fields.Messages)
		next("messages = $%d", string(raw))
	}
	if fields.Error != nil {
		next("error = $%d", *fields.Error)
	}
	if fields.AgentUsed != nil {
		next("agent_used = $%d", *fields.AgentUsed)
	}
	return sets, args
}

func buildPostgresWhere(f SessionFilters) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.FeatureID != 0 {
		add("feature_id = $%d", f.FeatureID)
	}
	if f.Track != "" {
		add("track = $%d", f.Track)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
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
