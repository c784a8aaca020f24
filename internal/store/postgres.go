package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abhisek/quizrag/internal/logger"
	"github.com/abhisek/quizrag/internal/vector"
)

// PostgresStore is a Store and EventRepo backed by PostgreSQL with the
// pgvector extension. Similarity is computed by the database.
type PostgresStore struct {
	pool *pgxpool.Pool
	dims int
}

// OpenPostgres connects to connString, enables pgvector and creates missing
// tables sized for dims-dimensional embeddings.
func OpenPostgres(ctx context.Context, connString string, dims int, log *logger.Logger) (*PostgresStore, error) {
	if log == nil {
		log = logger.Nop()
	}
	if dims <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", dims)
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	// Creating the extension needs elevated rights; it is often preinstalled.
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		log.Warn("could not create pgvector extension", "error", err.Error())
	}

	s := &PostgresStore{pool: pool, dims: dims}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("postgres store ready", "dims", dims)
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id BIGSERIAL PRIMARY KEY,
			subject TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id BIGSERIAL PRIMARY KEY,
			document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			text TEXT NOT NULL,
			vector vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dims),
		`CREATE INDEX IF NOT EXISTS chunks_document_id ON chunks(document_id)`,
		`CREATE TABLE IF NOT EXISTS llm_events (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			purpose TEXT NOT NULL,
			request_id TEXT NOT NULL DEFAULT '',
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			latency_ms BIGINT NOT NULL,
			success BOOLEAN NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			request_body TEXT NOT NULL DEFAULT '',
			response_body TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc Document) (Document, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO documents (subject, title, content) VALUES ($1, $2, $3) RETURNING id, created_at`,
		doc.Subject, doc.Title, doc.Content,
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id int64) (Document, error) {
	var d Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, subject, title, content, created_at FROM documents WHERE id = $1`, id,
	).Scan(&d.ID, &d.Subject, &d.Title, &d.Content, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %d: %w", id, err)
	}
	return d, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, subject string) ([]Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, subject, title, content, created_at FROM documents
		 WHERE $1 = '' OR subject = $1 ORDER BY id`, subject)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Subject, &d.Title, &d.Content, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InsertChunks(ctx context.Context, docID int64, chunks []NewChunk) ([]Chunk, error) {
	if err := validateChunks(chunks); err != nil {
		return nil, err
	}
	for i, c := range chunks {
		if len(c.Vector) != s.dims {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, want %d", ErrInvalidChunk, i, len(c.Vector), s.dims)
		}
	}
	if err := s.requireDocument(ctx, docID); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	out := make([]Chunk, 0, len(chunks))
	for i, c := range chunks {
		ch := Chunk{DocumentID: docID, Text: c.Text, Vector: c.Vector}
		err := tx.QueryRow(ctx,
			`INSERT INTO chunks (document_id, text, vector) VALUES ($1, $2, $3::vector) RETURNING id, created_at`,
			docID, c.Text, vector.Literal(c.Vector),
		).Scan(&ch.ID, &ch.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert chunk %d: %w", i, err)
		}
		out = append(out, ch)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit chunks: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ChunkCount(ctx context.Context, docID int64) (int, error) {
	if err := s.requireDocument(ctx, docID); err != nil {
		return 0, err
	}
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks WHERE document_id = $1`, docID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Search ranks in SQL with the pgvector cosine distance operator.
func (s *PostgresStore) Search(ctx context.Context, q SearchQuery) ([]ScoredChunk, error) {
	if err := s.requireDocument(ctx, q.DocumentID); err != nil {
		return nil, err
	}
	if q.TopK <= 0 {
		return []ScoredChunk{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, text, vector::text, created_at,
			1 - (vector <=> $1::vector) AS similarity
		FROM chunks
		WHERE document_id = $2
			AND 1 - (vector <=> $1::vector) > $3
		ORDER BY similarity DESC, id ASC
		LIMIT $4`,
		vector.Literal(q.Vector), q.DocumentID, q.Threshold, q.TopK,
	)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	out := []ScoredChunk{}
	for rows.Next() {
		var sc ScoredChunk
		var lit string
		if err := rows.Scan(&sc.ID, &sc.DocumentID, &sc.Text, &lit, &sc.CreatedAt, &sc.Similarity); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if sc.Vector, err = vector.ParseLiteral(lit); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", sc.ID, err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO llm_events (
			provider, model, purpose, request_id, input_tokens, output_tokens, latency_ms,
			success, error_message, request_body, response_body
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		data.Provider, data.Model, data.Purpose, data.RequestID, data.InputTokens, data.OutputTokens,
		data.LatencyMs, data.Success, data.ErrorMessage, data.RequestBody, data.ResponseBody,
	)
	if err != nil {
		return fmt.Errorf("save LLM request event: %w", err)
	}
	return nil
}

func (s *PostgresStore) LLMUsageByModel(ctx context.Context) ([]ModelUsage, error) {
	rows, err := s.pool.Query(ctx, `SELECT model, COUNT(*)::int,
			COUNT(*) FILTER (WHERE NOT success)::int,
			COALESCE(SUM(input_tokens), 0)::bigint, COALESCE(SUM(output_tokens), 0)::bigint,
			AVG(latency_ms)::float8
		FROM llm_events GROUP BY model ORDER BY model`)
	if err != nil {
		return nil, fmt.Errorf("query LLM usage: %w", err)
	}
	defer rows.Close()

	var out []ModelUsage
	for rows.Next() {
		var u ModelUsage
		if err := rows.Scan(&u.Model, &u.Requests, &u.Failures, &u.InputTokens, &u.OutputTokens, &u.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan LLM usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) requireDocument(ctx context.Context, id int64) error {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM documents WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup document %d: %w", id, err)
	}
	return nil
}
