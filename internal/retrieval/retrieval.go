// Package retrieval finds the passages of a document most relevant to a query.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/abhisek/quizrag/internal/embedding"
	"github.com/abhisek/quizrag/internal/logger"
	"github.com/abhisek/quizrag/internal/store"
)

// ErrNoRelevantContent means no chunk cleared the similarity threshold.
// It is distinct from a missing document (store.ErrNotFound) and from any
// LLM failure.
var ErrNoRelevantContent = errors.New("no relevant content")

// Options are the process-wide retrieval defaults.
type Options struct {
	TopK      int
	Threshold float64
}

// DefaultOptions returns top 8 above similarity 0.1.
func DefaultOptions() Options {
	return Options{TopK: 8, Threshold: 0.1}
}

// Engine embeds query text and searches the chunk store.
type Engine struct {
	store    store.Store
	embedder embedding.Embedder
	opts     Options
	log      *logger.Logger
}

// New creates an Engine. A non-positive TopK falls back to DefaultOptions;
// Threshold is taken as given, since zero and negative values are valid
// cosine thresholds.
func New(st store.Store, emb embedding.Embedder, opts Options, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	def := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	return &Engine{store: st, embedder: emb, opts: opts, log: log}
}

// Options returns the engine defaults.
func (e *Engine) Options() Options { return e.opts }

// Retrieve embeds query and returns the best chunks of docID. topK <= 0 and
// a nil threshold use the engine defaults.
func (e *Engine) Retrieve(ctx context.Context, docID int64, query string, topK int, threshold *float64) ([]store.ScoredChunk, error) {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return e.Search(ctx, docID, vec, topK, threshold)
}

// Search returns at most topK chunks of docID with similarity strictly above
// threshold in descending similarity order. An empty result is reported as
// ErrNoRelevantContent.
func (e *Engine) Search(ctx context.Context, docID int64, vec []float32, topK int, thresholdOverride *float64) ([]store.ScoredChunk, error) {
	if topK <= 0 {
		topK = e.opts.TopK
	}
	threshold := e.opts.Threshold
	if thresholdOverride != nil {
		threshold = *thresholdOverride
	}
	if len(vec) != e.embedder.Dimensions() {
		return nil, fmt.Errorf("query vector has %d dimensions, want %d", len(vec), e.embedder.Dimensions())
	}

	start := time.Now()
	hits, err := e.store.Search(ctx, store.SearchQuery{
		DocumentID: docID,
		Vector:     vec,
		TopK:       topK,
		Threshold:  threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("search document %d: %w", docID, err)
	}
	hits = enforce(hits, topK, threshold)

	e.log.Debug("retrieval complete",
		"document_id", docID, "results", len(hits), "top_k", topK,
		"threshold", threshold, "elapsed_ms", time.Since(start).Milliseconds())

	if len(hits) == 0 {
		return nil, fmt.Errorf("document %d: %w", docID, ErrNoRelevantContent)
	}
	return hits, nil
}

// RetrieveMany runs Retrieve for every document and concatenates the hits,
// document by document. Documents with no relevant chunks are skipped; the
// call fails with ErrNoRelevantContent only when every document came up
// empty. A missing document fails the whole call.
func (e *Engine) RetrieveMany(ctx context.Context, docIDs []int64, query string, topK int, threshold *float64) ([]store.ScoredChunk, error) {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var all []store.ScoredChunk
	for _, id := range docIDs {
		hits, err := e.Search(ctx, id, vec, topK, threshold)
		if errors.Is(err, ErrNoRelevantContent) {
			continue
		}
		if err != nil {
			return nil, err
		}
		all = append(all, hits...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("documents %v: %w", docIDs, ErrNoRelevantContent)
	}
	return all, nil
}

// enforce re-applies the result contract so every backend honours it.
func enforce(hits []store.ScoredChunk, topK int, threshold float64) []store.ScoredChunk {
	kept := hits[:0:0]
	for _, h := range hits {
		if h.Similarity > threshold {
			kept = append(kept, h)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Similarity != kept[j].Similarity {
			return kept[i].Similarity > kept[j].Similarity
		}
		return kept[i].ID < kept[j].ID
	})
	if len(kept) > topK {
		kept = kept[:topK]
	}
	return kept
}
