package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "quizrag.db"))
	require.NoError(t, err, "open test store")
	t.Cleanup(func() { s.Close() })
	return s
}

// lastSequence returns the highest recorded event sequence, 0 when empty.
func (s *SQLiteStore) lastSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM llm_events`).Scan(&seq)
	return seq.Int64, err
}

// storeImpl is implemented by every backend under test.
type storeImpl interface {
	Store
	EventRepo
}

func backends(t *testing.T) map[string]func(t *testing.T) storeImpl {
	t.Helper()
	return map[string]func(t *testing.T) storeImpl{
		"memory": func(t *testing.T) storeImpl { return NewMemoryStore() },
		"sqlite": func(t *testing.T) storeImpl { return openTestSQLite(t) },
	}
}

func TestPragmasApplied(t *testing.T) {
	s := openTestSQLite(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
	}

	for _, tt := range tests {
		var got string
		err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got)
		if err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestDocumentLifecycle(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			doc, err := s.CreateDocument(ctx, Document{Subject: "chinese", Title: "Lesson 1", Content: "text"})
			require.NoError(t, err)
			assert.NotZero(t, doc.ID)
			assert.False(t, doc.CreatedAt.IsZero())

			got, err := s.GetDocument(ctx, doc.ID)
			require.NoError(t, err)
			assert.Equal(t, "Lesson 1", got.Title)
			assert.Equal(t, "chinese", got.Subject)

			_, err = s.CreateDocument(ctx, Document{Subject: "math", Title: "Lesson 2", Content: "more"})
			require.NoError(t, err)

			all, err := s.ListDocuments(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 2)

			chinese, err := s.ListDocuments(ctx, "chinese")
			require.NoError(t, err)
			require.Len(t, chinese, 1)
			assert.Equal(t, doc.ID, chinese[0].ID)

			_, err = s.GetDocument(ctx, 9999)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDeleteCascadesChunks(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			doc, err := s.CreateDocument(ctx, Document{Subject: "s", Title: "t", Content: "c"})
			require.NoError(t, err)
			_, err = s.InsertChunks(ctx, doc.ID, []NewChunk{
				{Text: "a", Vector: []float32{1, 0}},
				{Text: "b", Vector: []float32{0, 1}},
			})
			require.NoError(t, err)

			n, err := s.ChunkCount(ctx, doc.ID)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			require.NoError(t, s.DeleteDocument(ctx, doc.ID))
			_, err = s.ChunkCount(ctx, doc.ID)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.DeleteDocument(ctx, doc.ID), ErrNotFound)
		})
	}
}

func TestSQLiteCascadeRemovesRows(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, Document{Subject: "s", Title: "t", Content: "c"})
	require.NoError(t, err)
	_, err = s.InsertChunks(ctx, doc.ID, []NewChunk{{Text: "a", Vector: []float32{1}}})
	require.NoError(t, err)
	require.NoError(t, s.DeleteDocument(ctx, doc.ID))

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&n))
	assert.Zero(t, n)
}

func TestInsertChunksValidation(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			_, err := s.InsertChunks(ctx, 42, []NewChunk{{Text: "a", Vector: []float32{1}}})
			assert.ErrorIs(t, err, ErrNotFound)

			doc, err := s.CreateDocument(ctx, Document{Subject: "s", Title: "t", Content: "c"})
			require.NoError(t, err)

			_, err = s.InsertChunks(ctx, doc.ID, []NewChunk{{Text: "", Vector: []float32{1}}})
			assert.ErrorIs(t, err, ErrInvalidChunk)
			_, err = s.InsertChunks(ctx, doc.ID, []NewChunk{{Text: "x"}})
			assert.ErrorIs(t, err, ErrInvalidChunk)
		})
	}
}

func TestSearchOrderingThresholdAndLimit(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			doc, err := s.CreateDocument(ctx, Document{Subject: "s", Title: "t", Content: "c"})
			require.NoError(t, err)
			other, err := s.CreateDocument(ctx, Document{Subject: "s", Title: "other", Content: "c"})
			require.NoError(t, err)

			inserted, err := s.InsertChunks(ctx, doc.ID, []NewChunk{
				{Text: "orthogonal", Vector: []float32{0, 1}},
				{Text: "exact", Vector: []float32{1, 0}},
				{Text: "close", Vector: []float32{1, 0.5}},
				{Text: "exact twin", Vector: []float32{2, 0}},
				{Text: "opposite", Vector: []float32{-1, 0}},
			})
			require.NoError(t, err)
			require.Len(t, inserted, 5)
			_, err = s.InsertChunks(ctx, other.ID, []NewChunk{{Text: "foreign", Vector: []float32{1, 0}}})
			require.NoError(t, err)

			got, err := s.Search(ctx, SearchQuery{DocumentID: doc.ID, Vector: []float32{1, 0}, TopK: 3, Threshold: 0.1})
			require.NoError(t, err)
			require.Len(t, got, 3)

			// Ties between "exact" and "exact twin" resolve by insertion order.
			assert.Equal(t, "exact", got[0].Text)
			assert.Equal(t, "exact twin", got[1].Text)
			assert.Equal(t, "close", got[2].Text)
			for i := range got {
				assert.Equal(t, doc.ID, got[i].DocumentID)
				assert.Greater(t, got[i].Similarity, 0.1)
				if i+1 < len(got) {
					assert.GreaterOrEqual(t, got[i].Similarity, got[i+1].Similarity)
				}
			}
			assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
			assert.Len(t, got[0].Vector, 2)
		})
	}
}

func TestSearchEmptyAndMissing(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			doc, err := s.CreateDocument(ctx, Document{Subject: "s", Title: "t", Content: "c"})
			require.NoError(t, err)

			got, err := s.Search(ctx, SearchQuery{DocumentID: doc.ID, Vector: []float32{1, 0}, TopK: 5, Threshold: 0.1})
			require.NoError(t, err)
			assert.Empty(t, got)

			_, err = s.InsertChunks(ctx, doc.ID, []NewChunk{{Text: "far", Vector: []float32{0, 1}}})
			require.NoError(t, err)
			got, err = s.Search(ctx, SearchQuery{DocumentID: doc.ID, Vector: []float32{1, 0}, TopK: 5, Threshold: 0.1})
			require.NoError(t, err)
			assert.Empty(t, got)

			_, err = s.Search(ctx, SearchQuery{DocumentID: 777, Vector: []float32{1, 0}, TopK: 5})
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestLLMUsageByModel(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			events := []LLMRequestEventData{
				{Provider: "anthropic", Model: "claude", Purpose: "quiz-generate", InputTokens: 100, OutputTokens: 50, LatencyMs: 200, Success: true},
				{Provider: "anthropic", Model: "claude", Purpose: "quiz-generate", InputTokens: 10, LatencyMs: 400, Success: false, ErrorMessage: "boom"},
				{Provider: "openai", Model: "gpt-4o-mini", Purpose: "quiz-prompt", InputTokens: 5, OutputTokens: 5, LatencyMs: 100, Success: true},
			}
			for _, e := range events {
				require.NoError(t, s.AppendLLMRequest(ctx, e))
			}

			usage, err := s.LLMUsageByModel(ctx)
			require.NoError(t, err)
			require.Len(t, usage, 2)

			assert.Equal(t, "claude", usage[0].Model)
			assert.Equal(t, 2, usage[0].Requests)
			assert.Equal(t, 1, usage[0].Failures)
			assert.Equal(t, int64(110), usage[0].InputTokens)
			assert.Equal(t, int64(50), usage[0].OutputTokens)
			assert.InDelta(t, 300.0, usage[0].AvgLatencyMs, 1e-9)

			assert.Equal(t, "gpt-4o-mini", usage[1].Model)
			assert.Equal(t, 1, usage[1].Requests)
		})
	}
}

func TestEventSequence(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	seq, err := s.lastSequence(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	for want := int64(1); want <= 3; want++ {
		require.NoError(t, s.AppendLLMRequest(ctx, LLMRequestEventData{
			Provider: "anthropic", Model: "claude-haiku-4-5-20251001", Purpose: "generate-basic", RequestID: "req-1",
		}))
		seq, err := s.lastSequence(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, seq)
	}
}

func TestDefaultDBPath_Env(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "nested", "q.db")
	t.Setenv("QUIZRAG_DB", p)

	got, err := DefaultDBPath()
	require.NoError(t, err)
	assert.Equal(t, p, got)

	info, err := os.Stat(filepath.Dir(p))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestVectorBlobRoundTrip(t *testing.T) {
	in := []float32{0.5, -1.25, 3}
	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
