package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/abhisek/quizrag/internal/vector"
)

// MemoryStore is an in-process Store and EventRepo. It is safe for
// concurrent use and is what tests and the offline mode run against.
type MemoryStore struct {
	mu        sync.RWMutex
	nextDoc   int64
	nextChunk int64
	docs      map[int64]Document
	chunks    map[int64][]Chunk
	events    []LLMRequestEventData
	now       func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[int64]Document),
		chunks: make(map[int64][]Chunk),
		now:    time.Now,
	}
}

func (m *MemoryStore) CreateDocument(_ context.Context, doc Document) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextDoc++
	doc.ID = m.nextDoc
	doc.CreatedAt = m.now().UTC()
	m.docs[doc.ID] = doc
	return doc, nil
}

func (m *MemoryStore) GetDocument(_ context.Context, id int64) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (m *MemoryStore) ListDocuments(_ context.Context, subject string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Document, 0, len(m.docs))
	for _, d := range m.docs {
		if subject != "" && d.Subject != subject {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	delete(m.chunks, id)
	return nil
}

func (m *MemoryStore) InsertChunks(_ context.Context, docID int64, chunks []NewChunk) ([]Chunk, error) {
	if err := validateChunks(chunks); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[docID]; !ok {
		return nil, ErrNotFound
	}
	now := m.now().UTC()
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		m.nextChunk++
		v := make([]float32, len(c.Vector))
		copy(v, c.Vector)
		out = append(out, Chunk{
			ID:         m.nextChunk,
			DocumentID: docID,
			Text:       c.Text,
			Vector:     v,
			CreatedAt:  now,
		})
	}
	m.chunks[docID] = append(m.chunks[docID], out...)
	return out, nil
}

func (m *MemoryStore) ChunkCount(_ context.Context, docID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.docs[docID]; !ok {
		return 0, ErrNotFound
	}
	return len(m.chunks[docID]), nil
}

func (m *MemoryStore) Search(ctx context.Context, q SearchQuery) ([]ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.docs[q.DocumentID]; !ok {
		return nil, ErrNotFound
	}
	return rankChunks(ctx, m.chunks[q.DocumentID], q)
}

func (m *MemoryStore) AppendLLMRequest(_ context.Context, data LLMRequestEventData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, data)
	return nil
}

func (m *MemoryStore) LLMUsageByModel(_ context.Context) ([]ModelUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byModel := make(map[string]*ModelUsage)
	latency := make(map[string]int64)
	for _, e := range m.events {
		u, ok := byModel[e.Model]
		if !ok {
			u = &ModelUsage{Model: e.Model}
			byModel[e.Model] = u
		}
		u.Requests++
		if !e.Success {
			u.Failures++
		}
		u.InputTokens += int64(e.InputTokens)
		u.OutputTokens += int64(e.OutputTokens)
		latency[e.Model] += e.LatencyMs
	}

	out := make([]ModelUsage, 0, len(byModel))
	for model, u := range byModel {
		u.AvgLatencyMs = float64(latency[model]) / float64(u.Requests)
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out, nil
}

// Events returns a copy of the recorded LLM request events.
func (m *MemoryStore) Events() []LLMRequestEventData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]LLMRequestEventData, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MemoryStore) Close() error { return nil }

// rankChunks scores chunks against the query vector in process. Chunk IDs
// are assigned in insertion order so they double as the tie-breaker.
func rankChunks(ctx context.Context, chunks []Chunk, q SearchQuery) ([]ScoredChunk, error) {
	byID := make(map[int64]Chunk, len(chunks))
	cands := make([]vector.Candidate, 0, len(chunks))
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		byID[c.ID] = c
		cands = append(cands, vector.Candidate{Seq: c.ID, Similarity: vector.Cosine(q.Vector, c.Vector)})
	}

	ranked := vector.Rank(cands, q.TopK, q.Threshold)
	out := make([]ScoredChunk, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, ScoredChunk{Chunk: byID[r.Seq], Similarity: r.Similarity})
	}
	return out, nil
}
