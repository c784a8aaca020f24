// Package store persists documents and their embedded chunks and serves the
// similarity search the retrieval engine runs on.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("not found")

// Document is a unit of ingested source text.
type Document struct {
	ID        int64
	Subject   string
	Title     string
	Content   string
	CreatedAt time.Time
}

// Chunk is an immutable slice of a document's text with its embedding.
type Chunk struct {
	ID         int64
	DocumentID int64
	Text       string
	Vector     []float32
	CreatedAt  time.Time
}

// NewChunk is a chunk not yet assigned an ID.
type NewChunk struct {
	Text   string
	Vector []float32
}

// ScoredChunk pairs a chunk with its cosine similarity to a query.
type ScoredChunk struct {
	Chunk
	Similarity float64
}

// SearchQuery selects the chunks of one document most similar to Vector.
type SearchQuery struct {
	DocumentID int64
	Vector     []float32
	TopK       int
	Threshold  float64
}

// Store is the document/chunk repository.
//
// Search returns at most TopK chunks of the document whose similarity is
// strictly greater than Threshold, ordered by descending similarity with
// ties in insertion order. A missing document yields ErrNotFound; a document
// without matching chunks yields an empty slice.
type Store interface {
	CreateDocument(ctx context.Context, doc Document) (Document, error)
	GetDocument(ctx context.Context, id int64) (Document, error)
	ListDocuments(ctx context.Context, subject string) ([]Document, error)
	// DeleteDocument removes the document and all of its chunks.
	DeleteDocument(ctx context.Context, id int64) error

	InsertChunks(ctx context.Context, docID int64, chunks []NewChunk) ([]Chunk, error)
	ChunkCount(ctx context.Context, docID int64) (int, error)
	Search(ctx context.Context, q SearchQuery) ([]ScoredChunk, error)

	Close() error
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	RequestID    string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// ModelUsage aggregates recorded LLM requests for one model.
type ModelUsage struct {
	Model        string
	Requests     int
	Failures     int
	InputTokens  int64
	OutputTokens int64
	AvgLatencyMs float64
}

// EventRepo records LLM calls and reports usage over them.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// LLMUsageByModel returns per-model totals ordered by model name.
	LLMUsageByModel(ctx context.Context) ([]ModelUsage, error)
}

func validateChunks(chunks []NewChunk) error {
	for i, c := range chunks {
		if c.Text == "" {
			return fmt.Errorf("%w: empty text at index %d", ErrInvalidChunk, i)
		}
		if len(c.Vector) == 0 {
			return fmt.Errorf("%w: empty vector at index %d", ErrInvalidChunk, i)
		}
	}
	return nil
}

// ErrInvalidChunk is returned by InsertChunks for chunks without text or vector.
var ErrInvalidChunk = errors.New("invalid chunk")
