package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite journal: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// SQLiteDSNForFile builds a WAL-mode DSN for a database file.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite journal: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite journal: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			conv_id TEXT NOT NULL,
			request_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			trigger_type TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL DEFAULT '',
			terminal INTEGER NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL,
			content_hash TEXT NOT NULL,
			hash_algorithm TEXT NOT NULL DEFAULT 'sha256-canonical-json-v1',
			payload_yaml TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (conv_id, request_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS snapshots_by_conv ON snapshots(conv_id, created_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS snapshots_by_request ON snapshots(request_id, seq);`,
		`CREATE INDEX IF NOT EXISTS snapshots_terminal ON snapshots(terminal, created_at_ms DESC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite journal: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, e Entry) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite journal: db is nil")
	}
	if ctx == nil {
		return errors.New("sqlite journal: ctx is nil")
	}
	if err := validateEntry(&e); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots(
			conv_id, request_id, seq, trigger_type, outcome, terminal, created_at_ms, content_hash, hash_algorithm, payload_yaml
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conv_id, request_id, seq) DO UPDATE SET
			trigger_type = excluded.trigger_type,
			outcome = excluded.outcome,
			terminal = excluded.terminal,
			content_hash = excluded.content_hash,
			payload_yaml = excluded.payload_yaml
	`, e.ConvID, e.RequestID, e.Seq, e.Trigger, e.Outcome, boolToInt(e.Terminal), e.CreatedAtMs, e.ContentHash, ContentHashAlgorithmV1, e.Payload)
	if err != nil {
		return errors.Wrap(err, "sqlite journal: insert snapshot")
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, q Query) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite journal: db is nil")
	}
	if ctx == nil {
		return nil, errors.New("sqlite journal: ctx is nil")
	}
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	clauses := []string{}
	args := []any{}
	if v := strings.TrimSpace(q.ConvID); v != "" {
		clauses = append(clauses, "conv_id = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(q.RequestID); v != "" {
		clauses = append(clauses, "request_id = ?")
		args = append(args, v)
	}
	if q.TerminalOnly {
		clauses = append(clauses, "terminal = 1")
	}
	if q.SinceMs > 0 {
		clauses = append(clauses, "created_at_ms >= ?")
		args = append(args, q.SinceMs)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT conv_id, request_id, seq, trigger_type, outcome, terminal, created_at_ms, content_hash, payload_yaml
		FROM snapshots
		%s
		ORDER BY created_at_ms DESC, seq DESC
		LIMIT ?
	`, where)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite journal: query")
	}
	defer func() { _ = rows.Close() }()

	items := []Entry{}
	for rows.Next() {
		var (
			e        Entry
			terminal int
		)
		if err := rows.Scan(&e.ConvID, &e.RequestID, &e.Seq, &e.Trigger, &e.Outcome, &terminal, &e.CreatedAtMs, &e.ContentHash, &e.Payload); err != nil {
			return nil, errors.Wrap(err, "sqlite journal: scan snapshot")
		}
		e.Terminal = terminal != 0
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite journal: iterate snapshots")
	}
	return items, nil
}

func (s *SQLiteStore) Conversations(ctx context.Context, limit int) ([]ConversationSummary, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite journal: db is nil")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			s.conv_id,
			COUNT(DISTINCT s.request_id),
			COUNT(1),
			MIN(s.created_at_ms),
			MAX(s.created_at_ms),
			COALESCE((
				SELECT t.outcome FROM snapshots t
				WHERE t.conv_id = s.conv_id AND t.terminal = 1
				ORDER BY t.created_at_ms DESC, t.seq DESC
				LIMIT 1
			), ''),
			SUM(CASE WHEN s.terminal = 1 AND s.outcome IN ('server_error', 'transport_error') THEN 1 ELSE 0 END)
		FROM snapshots s
		GROUP BY s.conv_id
		ORDER BY MAX(s.created_at_ms) DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite journal: query conversations")
	}
	defer func() { _ = rows.Close() }()

	out := []ConversationSummary{}
	for rows.Next() {
		var cs ConversationSummary
		if err := rows.Scan(&cs.ConvID, &cs.Requests, &cs.Snapshots, &cs.FirstSeenMs, &cs.LastSeenMs, &cs.LastOutcome, &cs.FailedOutcome); err != nil {
			return nil, errors.Wrap(err, "sqlite journal: scan conversation")
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite journal: iterate conversations")
	}
	return out, nil
}

func validateEntry(e *Entry) error {
	if strings.TrimSpace(e.ConvID) == "" {
		return errors.New("journal: convID is empty")
	}
	if strings.TrimSpace(e.RequestID) == "" {
		e.RequestID = "local"
	}
	if e.Seq <= 0 {
		return errors.Errorf("journal: invalid seq %d", e.Seq)
	}
	if e.CreatedAtMs <= 0 {
		e.CreatedAtMs = time.Now().UnixMilli()
	}
	return nil
}

func validateQuery(q Query) error {
	if q.Recent {
		return nil
	}
	if strings.TrimSpace(q.ConvID) == "" && strings.TrimSpace(q.RequestID) == "" {
		return errors.New("journal: convID or requestID required")
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
