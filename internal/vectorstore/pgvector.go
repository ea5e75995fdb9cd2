package vectorstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/54b3r/docchat-go/internal/rag"
)

// PGVectorStore implements rag.VectorBackend on PostgreSQL with the pgvector
// extension. All tags share one table; every query filters on model_tag, so
// the distance operator only ever compares vectors from one embedding space.
type PGVectorStore struct {
	// db is the underlying connection pool.
	db *sql.DB
}

// OpenPGVector connects to PostgreSQL with the given DSN, enables the vector
// extension, and runs the schema migration.
func OpenPGVector(ctx context.Context, dsn string) (*PGVectorStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgvector: ping: %w", err)
	}

	s := &PGVectorStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the extension and schema if they do not already exist.
// The embedding column is dimension-less: rows from different model tags
// carry different vector lengths, and the model_tag filter on every query
// keeps the distance operator within one space.
func (s *PGVectorStore) migrate(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS document_chunks (
    chunk_id        TEXT PRIMARY KEY,
    file_id         TEXT    NOT NULL,
    conversation_id TEXT    NOT NULL,
    owner_id        TEXT    NOT NULL,
    filename        TEXT    NOT NULL,
    model_tag       TEXT    NOT NULL,
    dimension       INTEGER NOT NULL,
    chunk_index     INTEGER NOT NULL,
    total_chunks    INTEGER NOT NULL,
    content         TEXT    NOT NULL,
    embedding       vector  NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_document_chunks_conv
    ON document_chunks (conversation_id, owner_id, model_tag);
CREATE INDEX IF NOT EXISTS idx_document_chunks_file
    ON document_chunks (file_id);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("pgvector: migrate: %w", err)
	}
	return nil
}

// Name identifies this backend in logs and debug records.
func (s *PGVectorStore) Name() string { return "pgvector" }

// Upsert stores or updates a batch of chunks.
func (s *PGVectorStore) Upsert(ctx context.Context, chunks []rag.Chunk) error {
	const query = `
		INSERT INTO document_chunks
			(chunk_id, file_id, conversation_id, owner_id, filename,
			 model_tag, dimension, chunk_index, total_chunks, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (chunk_id) DO UPDATE SET
			content   = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			model_tag = EXCLUDED.model_tag,
			dimension = EXCLUDED.dimension
	`
	for _, c := range chunks {
		_, err := s.db.ExecContext(ctx, query,
			c.ID, c.FileID, c.ConversationID, c.OwnerID, c.Filename,
			c.ModelTag, c.Dimension, c.Index, c.TotalChunks, c.Text,
			pgvector.NewVector(c.Embedding),
		)
		if err != nil {
			return fmt.Errorf("pgvector: upsert chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

// filterClause renders the shared WHERE conditions for filter, appending the
// bound values to args. The returned clause starts at placeholder $1.
func filterClause(filter rag.Filter) (string, []interface{}) {
	clause := "conversation_id = $1 AND owner_id = $2 AND model_tag = $3"
	args := []interface{}{filter.ConversationID, filter.OwnerID, filter.ModelTag}
	if len(filter.FileIDs) > 0 {
		clause += fmt.Sprintf(" AND file_id = ANY($%d)", len(args)+1)
		args = append(args, pq.Array(filter.FileIDs))
	}
	return clause, args
}

// Query performs a cosine similarity search restricted by filter.
func (s *PGVectorStore) Query(ctx context.Context, embedding []float32, k int, filter rag.Filter) ([]rag.Result, error) {
	clause, args := filterClause(filter)
	query := fmt.Sprintf(`
		SELECT chunk_id, file_id, conversation_id, owner_id, filename,
		       model_tag, dimension, chunk_index, total_chunks, content,
		       embedding <=> $%d AS distance
		FROM document_chunks
		WHERE %s
		ORDER BY distance ASC
		LIMIT $%d`, len(args)+1, clause, len(args)+2)
	args = append(args, pgvector.NewVector(embedding), k)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: query: %w", err)
	}
	defer rows.Close()

	var results []rag.Result
	for rows.Next() {
		var r rag.Result
		var distance float64
		if err := rows.Scan(
			&r.ID, &r.FileID, &r.ConversationID, &r.OwnerID, &r.Filename,
			&r.ModelTag, &r.Dimension, &r.Index, &r.TotalChunks, &r.Text,
			&distance,
		); err != nil {
			return nil, fmt.Errorf("pgvector: query scan: %w", err)
		}
		r.Distance = float32(distance)
		// Cosine distance in [0, 2]; similarity is its complement.
		r.Score = float32(1 - distance)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: query rows: %w", err)
	}
	return results, nil
}

// FetchAll returns up to limit chunks matching filter ordered by position.
func (s *PGVectorStore) FetchAll(ctx context.Context, filter rag.Filter, limit int) ([]rag.Result, error) {
	clause, args := filterClause(filter)
	query := fmt.Sprintf(`
		SELECT chunk_id, file_id, conversation_id, owner_id, filename,
		       model_tag, dimension, chunk_index, total_chunks, content
		FROM document_chunks
		WHERE %s
		ORDER BY filename ASC, chunk_index ASC
		LIMIT $%d`, clause, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: fetch all: %w", err)
	}
	defer rows.Close()

	var results []rag.Result
	for rows.Next() {
		var r rag.Result
		if err := rows.Scan(
			&r.ID, &r.FileID, &r.ConversationID, &r.OwnerID, &r.Filename,
			&r.ModelTag, &r.Dimension, &r.Index, &r.TotalChunks, &r.Text,
		); err != nil {
			return nil, fmt.Errorf("pgvector: fetch all scan: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: fetch all rows: %w", err)
	}
	return results, nil
}

// DeleteFile removes every chunk belonging to the given file.
func (s *PGVectorStore) DeleteFile(ctx context.Context, fileID string) error {
	const query = `DELETE FROM document_chunks WHERE file_id = $1`
	if _, err := s.db.ExecContext(ctx, query, fileID); err != nil {
		return fmt.Errorf("pgvector: delete file %s: %w", fileID, err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *PGVectorStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("pgvector: close: %w", err)
	}
	return nil
}
