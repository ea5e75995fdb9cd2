// Package filestore provides a SQLite-backed metadata store for file
// attachments. It tracks each attachment's ingestion lifecycle
// (pending → processing → completed/failed) and records which embedding
// model produced its vectors, so retrieval can partition attachments into
// compatible groups. Chunk content and vectors live in the vector store;
// this package holds only metadata.
package filestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/docchat-go/internal/rag"
)

// ErrNotFound is returned when a file ID does not exist in the store.
var ErrNotFound = errors.New("filestore: file not found")

// Store persists file attachment metadata in a local SQLite database.
type Store struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the attachment metadata
// database. It resolves to ~/.docchat/files.db, creating the directory if
// needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("filestore: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docchat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("filestore: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "files.db"), nil
}

// Open opens (or creates) a Store at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*Store, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("filestore: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *Store) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS files (
    id              TEXT    PRIMARY KEY,
    conversation_id TEXT    NOT NULL,
    owner_id        TEXT    NOT NULL,
    filename        TEXT    NOT NULL,
    path            TEXT    NOT NULL,
    model_tag       TEXT    NOT NULL DEFAULT '',
    dimension       INTEGER NOT NULL DEFAULT 0,
    status          TEXT    NOT NULL CHECK(status IN ('pending','processing','completed','failed')),
    total_chunks    INTEGER NOT NULL DEFAULT 0,
    error           TEXT    NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL,  -- Unix timestamp (seconds)
    updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_conversation
    ON files (conversation_id, owner_id);
CREATE INDEX IF NOT EXISTS idx_files_status
    ON files (status, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("filestore: migrate: %w", err)
	}
	return nil
}

// Create inserts a new attachment in the pending state. The ref's Status and
// TotalChunks fields are ignored; a freshly created file is always pending
// with zero chunks.
func (s *Store) Create(ctx context.Context, ref rag.FileRef) error {
	const q = `
INSERT INTO files (id, conversation_id, owner_id, filename, path, model_tag, dimension, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, q,
		ref.ID, ref.ConversationID, ref.OwnerID, ref.Filename, ref.Path,
		ref.ModelTag, ref.Dimension, string(rag.StatusPending), now, now)
	if err != nil {
		return fmt.Errorf("filestore: create %s: %w", ref.ID, err)
	}
	return nil
}

// Get returns the attachment with the given ID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (rag.FileRef, error) {
	const q = `
SELECT id, conversation_id, owner_id, filename, path, model_tag, dimension, status, total_chunks
FROM   files WHERE id = ?`
	ref, err := scanRef(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return rag.FileRef{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return rag.FileRef{}, fmt.Errorf("filestore: get %s: %w", id, err)
	}
	return ref, nil
}

// ListByConversation returns all attachments for a conversation and owner,
// oldest-first. Retrieval filters this list down to completed files itself.
func (s *Store) ListByConversation(ctx context.Context, conversationID, ownerID string) ([]rag.FileRef, error) {
	const q = `
SELECT id, conversation_id, owner_id, filename, path, model_tag, dimension, status, total_chunks
FROM   files
WHERE  conversation_id = ? AND owner_id = ?
ORDER  BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, conversationID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("filestore: list: %w", err)
	}
	defer rows.Close()

	var refs []rag.FileRef
	for rows.Next() {
		ref, err := scanRef(rows)
		if err != nil {
			return nil, fmt.Errorf("filestore: list scan: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filestore: list rows: %w", err)
	}
	return refs, nil
}

// ClaimPending atomically moves the oldest pending attachment to processing
// and returns it. Returns ErrNotFound when no pending work exists. The
// single-statement UPDATE makes the claim safe against concurrent workers.
func (s *Store) ClaimPending(ctx context.Context) (rag.FileRef, error) {
	const q = `
UPDATE files SET status = 'processing', updated_at = ?
WHERE  id = (
    SELECT id FROM files WHERE status = 'pending' ORDER BY created_at ASC, id ASC LIMIT 1
)
RETURNING id, conversation_id, owner_id, filename, path, model_tag, dimension, status, total_chunks`

	ref, err := scanRef(s.db.QueryRowContext(ctx, q, time.Now().Unix()))
	if errors.Is(err, sql.ErrNoRows) {
		return rag.FileRef{}, ErrNotFound
	}
	if err != nil {
		return rag.FileRef{}, fmt.Errorf("filestore: claim pending: %w", err)
	}
	return ref, nil
}

// MarkCompleted records a successful ingestion: the embedding identity the
// vectors were written under and the chunk count.
func (s *Store) MarkCompleted(ctx context.Context, id, modelTag string, dimension, totalChunks int) error {
	const q = `
UPDATE files SET status = 'completed', model_tag = ?, dimension = ?, total_chunks = ?, error = '', updated_at = ?
WHERE  id = ?`
	res, err := s.db.ExecContext(ctx, q, modelTag, dimension, totalChunks, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("filestore: mark completed %s: %w", id, err)
	}
	return checkAffected(res, id)
}

// MarkFailed records a failed ingestion with its reason. Failed files stay
// visible so the caller can see why an attachment never entered retrieval.
func (s *Store) MarkFailed(ctx context.Context, id, reason string) error {
	const q = `UPDATE files SET status = 'failed', error = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, reason, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("filestore: mark failed %s: %w", id, err)
	}
	return checkAffected(res, id)
}

// FailureReason returns the recorded error for a failed attachment, or the
// empty string when none is recorded.
func (s *Store) FailureReason(ctx context.Context, id string) (string, error) {
	const q = `SELECT error FROM files WHERE id = ?`
	var reason string
	err := s.db.QueryRowContext(ctx, q, id).Scan(&reason)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("filestore: failure reason %s: %w", id, err)
	}
	return reason, nil
}

// Delete removes an attachment's metadata row. Callers are responsible for
// cascading the delete to the vector store backends first.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("filestore: delete %s: %w", id, err)
	}
	return checkAffected(res, id)
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("filestore: close: %w", err)
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRef reads one file row in the canonical column order.
func scanRef(row scanner) (rag.FileRef, error) {
	var ref rag.FileRef
	var status string
	err := row.Scan(&ref.ID, &ref.ConversationID, &ref.OwnerID, &ref.Filename,
		&ref.Path, &ref.ModelTag, &ref.Dimension, &status, &ref.TotalChunks)
	if err != nil {
		return rag.FileRef{}, err
	}
	ref.Status = rag.FileStatus(status)
	return ref, nil
}

// checkAffected converts a zero-row update into ErrNotFound.
func checkAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("filestore: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
