// Package sqlite implements the versioned document store on SQLite. Writes
// run the optimistic-concurrency check and the history append in a single
// transaction, so a committed Put is atomic and every prior version stays
// retrievable.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/scribeworks/scribe/internal/storage"
	"github.com/scribeworks/scribe/internal/types"
)

// SQLiteStore implements the storage.Store interface using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store
var _ storage.Store = (*SQLiteStore)(nil)

// New creates a new SQLite document store at path. The special value
// ":memory:" creates an in-memory database, useful for tests.
func New(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get returns the current version of the document
func (s *SQLiteStore) Get(ctx context.Context, id string) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, topics, confidence, status, source_questions,
		       created_at, updated_at, version
		FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return doc, nil
}

// Put commits a new version of the document. The version check and the
// history append happen in one transaction; if the stored version moved
// underneath the caller, the write fails with ErrVersionMismatch and nothing
// is changed.
func (s *SQLiteStore) Put(ctx context.Context, doc *types.Document, expectedVersion int) error {
	if err := doc.Validate(); err != nil {
		return types.Validation(fmt.Errorf("invalid document: %w", err))
	}
	if doc.Version != expectedVersion+1 {
		return types.Validation(fmt.Errorf(
			"document version %d must be expectedVersion+1 (%d)", doc.Version, expectedVersion+1))
	}

	topics, err := json.Marshal(doc.Topics)
	if err != nil {
		return fmt.Errorf("failed to marshal topics: %w", err)
	}
	questions, err := json.Marshal(doc.SourceQuestions)
	if err != nil {
		return fmt.Errorf("failed to marshal source questions: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentVersion int
	err = tx.QueryRowContext(ctx, `SELECT version FROM documents WHERE id = ?`, doc.ID).Scan(&currentVersion)
	if errors.Is(err, sql.ErrNoRows) {
		currentVersion = 0
	} else if err != nil {
		return fmt.Errorf("failed to read current version of %s: %w", doc.ID, err)
	}

	if currentVersion != expectedVersion {
		return fmt.Errorf("put %s: expected version %d, have %d: %w",
			doc.ID, expectedVersion, currentVersion, storage.ErrVersionMismatch)
	}

	if currentVersion == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (id, content, topics, confidence, status,
			                       source_questions, created_at, updated_at, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			doc.ID, doc.Content, string(topics), doc.Confidence, string(doc.Status),
			string(questions), doc.CreatedAt, doc.UpdatedAt, doc.Version)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE documents
			SET content = ?, topics = ?, confidence = ?, status = ?,
			    source_questions = ?, updated_at = ?, version = ?
			WHERE id = ?`,
			doc.Content, string(topics), doc.Confidence, string(doc.Status),
			string(questions), doc.UpdatedAt, doc.Version, doc.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", doc.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO document_history (id, version, content, topics, confidence,
		                              status, source_questions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Version, doc.Content, string(topics), doc.Confidence,
		string(doc.Status), string(questions), doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to append history for %s: %w", doc.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document %s: %w", doc.ID, err)
	}
	return nil
}

// History returns every committed version of the document, oldest first
func (s *SQLiteStore) History(ctx context.Context, id string) ([]*types.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, topics, confidence, status, source_questions,
		       created_at, updated_at, version
		FROM document_history WHERE id = ? ORDER BY version ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", id, err)
	}
	defer rows.Close()

	var out []*types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row for %s: %w", id, err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows for %s: %w", id, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("history %s: %w", id, storage.ErrNotFound)
	}
	return out, nil
}

// List returns current document versions matching the filter, ordered by id
func (s *SQLiteStore) List(ctx context.Context, filter storage.DocumentFilter) ([]*types.Document, error) {
	query := `
		SELECT id, content, topics, confidence, status, source_questions,
		       created_at, updated_at, version
		FROM documents WHERE confidence >= ?`
	args := []interface{}{filter.MinConfidence}

	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	query += ` ORDER BY id ASC`
	if filter.Limit > 0 && len(filter.Topics) == 0 {
		// Topic matching happens in Go; only push the limit down when no
		// topic filter could discard rows afterwards
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var out []*types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		if len(filter.Topics) > 0 && !hasAnyTopic(doc, filter.Topics) {
			continue
		}
		out = append(out, doc)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	return out, nil
}

// GetConfig reads a config value; returns empty string when unset
func (s *SQLiteStore) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read config %s: %w", key, err)
	}
	return value, nil
}

// SetConfig writes a config value
func (s *SQLiteStore) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner abstracts sql.Row and sql.Rows for scanDocument
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanDocument reads one document row
func scanDocument(row scanner) (*types.Document, error) {
	var doc types.Document
	var topics, questions, status string
	if err := row.Scan(&doc.ID, &doc.Content, &topics, &doc.Confidence, &status,
		&questions, &doc.CreatedAt, &doc.UpdatedAt, &doc.Version); err != nil {
		return nil, err
	}
	doc.Status = types.Status(status)
	if err := json.Unmarshal([]byte(topics), &doc.Topics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal topics: %w", err)
	}
	if err := json.Unmarshal([]byte(questions), &doc.SourceQuestions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal source questions: %w", err)
	}
	return &doc, nil
}

// hasAnyTopic reports whether the document carries at least one of the topics
func hasAnyTopic(doc *types.Document, topics []string) bool {
	for _, t := range topics {
		if doc.HasTopic(strings.TrimSpace(t)) {
			return true
		}
	}
	return false
}
