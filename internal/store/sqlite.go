package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	_ "modernc.org/sqlite"
)

const (
	maxFTSTokens    = 12
	recentChatLimit = 30
	retrieveLimit   = 12
)

// LocalStore is the embedded fallback fact store. It serves the same four
// actions as the remote endpoint, backed by SQLite with an FTS5 index over
// stored facts.
type LocalStore struct {
	db *sql.DB
}

func NewLocalStore(path string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &LocalStore{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *LocalStore) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *LocalStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_log_created ON chat_log(created_at)`,
		`CREATE TABLE IF NOT EXISTS facts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fact TEXT NOT NULL,
			entities TEXT NOT NULL DEFAULT '',
			topics TEXT NOT NULL DEFAULT '',
			importance INTEGER NOT NULL DEFAULT 5,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS facts_fts USING fts5(
			fact,
			entities,
			topics,
			content='facts',
			content_rowid='id',
			tokenize='unicode61'
		)`,
		`CREATE TRIGGER IF NOT EXISTS facts_ai AFTER INSERT ON facts BEGIN
			INSERT INTO facts_fts(rowid, fact, entities, topics) VALUES (new.id, new.fact, new.entities, new.topics);
		END`,
		`CREATE TRIGGER IF NOT EXISTS facts_ad AFTER DELETE ON facts BEGIN
			INSERT INTO facts_fts(facts_fts, rowid, fact, entities, topics) VALUES('delete', old.id, old.fact, old.entities, old.topics);
		END`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *LocalStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *LocalStore) RecentChat(ctx context.Context) ([]ChatRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT created_at, role, content FROM chat_log
		ORDER BY id DESC LIMIT ?
	`, recentChatLimit)
	if err != nil {
		return nil, fmt.Errorf("query chat log: %w", err)
	}
	defer rows.Close()

	out := make([]ChatRow, 0, recentChatLimit)
	for rows.Next() {
		var createdAt string
		var row ChatRow
		if err := rows.Scan(&createdAt, &row.Role, &row.Content); err != nil {
			return nil, fmt.Errorf("scan chat row: %w", err)
		}
		if ts, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
			row.Timestamp = ts
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat log: %w", err)
	}

	// Rows were fetched newest-first; callers expect chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *LocalStore) LogChat(ctx context.Context, role, content string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO chat_log (role, content) VALUES (?, ?)`, role, content); err != nil {
		return fmt.Errorf("insert chat log: %w", err)
	}
	return nil
}

func (s *LocalStore) Retrieve(ctx context.Context, keywords []string) (*RetrieveResult, error) {
	matchQuery := buildFTSMatchQuery(keywords)
	if matchQuery == "" {
		return &RetrieveResult{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.fact, f.entities, f.topics
		FROM facts f
		JOIN facts_fts ON f.id = facts_fts.rowid
		WHERE facts_fts MATCH ?
		ORDER BY bm25(facts_fts), f.importance DESC
		LIMIT ?
	`, matchQuery, retrieveLimit)
	if err != nil {
		return nil, fmt.Errorf("search facts: %w", err)
	}
	defer rows.Close()

	memories := make([]string, 0, retrieveLimit)
	for rows.Next() {
		var fact, entities, topics string
		if err := rows.Scan(&fact, &entities, &topics); err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}
		memories = append(memories, formatMemory(fact, entities, topics))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}

	return &RetrieveResult{Found: len(memories) > 0, Memories: memories}, nil
}

func (s *LocalStore) StoreAtomic(ctx context.Context, fact Fact) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO facts (fact, entities, topics, importance) VALUES (?, ?, ?, ?)
	`, fact.Fact, fact.Entities, fact.Topics, fact.Importance); err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

// FactCount reports how many facts are stored; used by status reporting.
func (s *LocalStore) FactCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count facts: %w", err)
	}
	return count, nil
}

func formatMemory(fact, entities, topics string) string {
	parts := []string{fact}
	if strings.TrimSpace(entities) != "" {
		parts = append(parts, "(entities: "+entities+")")
	}
	if strings.TrimSpace(topics) != "" {
		parts = append(parts, "(topics: "+topics+")")
	}
	return strings.Join(parts, " ")
}

func buildFTSMatchQuery(tokens []string) string {
	safe := sanitizeFTSTokens(tokens)
	if len(safe) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(safe))
	for _, token := range safe {
		quoted = append(quoted, `"`+token+`"`)
	}
	return strings.Join(quoted, " OR ")
}

func sanitizeFTSTokens(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}

	reserved := map[string]struct{}{
		"and":  {},
		"or":   {},
		"not":  {},
		"near": {},
	}

	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		normalized := normalizeFTSToken(token)
		for _, part := range strings.Fields(normalized) {
			if _, blocked := reserved[part]; blocked {
				continue
			}
			if _, exists := seen[part]; exists {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}

	if len(out) > maxFTSTokens {
		out = out[:maxFTSTokens]
	}
	return out
}

func normalizeFTSToken(token string) string {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteByte(' ')
	}
	return b.String()
}
