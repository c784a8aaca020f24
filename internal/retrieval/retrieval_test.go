package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/quizrag/internal/embedding"
	"github.com/abhisek/quizrag/internal/store"
)

// fixedEmbedder maps known strings to fixed 2-d vectors.
type fixedEmbedder map[string][]float32

func (f fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f[text]; ok {
		return v, nil
	}
	return nil, errors.New("unknown text")
}
func (f fixedEmbedder) Dimensions() int { return 2 }
func (f fixedEmbedder) Model() string   { return "fixed" }

func ptr(v float64) *float64 { return &v }

func seed(t *testing.T, st store.Store, chunks ...store.NewChunk) int64 {
	t.Helper()
	doc, err := st.CreateDocument(context.Background(), store.Document{Subject: "science", Title: "t", Content: "c"})
	require.NoError(t, err)
	if len(chunks) > 0 {
		_, err = st.InsertChunks(context.Background(), doc.ID, chunks)
		require.NoError(t, err)
	}
	return doc.ID
}

func TestRetrieve_OrderThresholdLimit(t *testing.T) {
	st := store.NewMemoryStore()
	emb := fixedEmbedder{"cells": {1, 0}}
	docID := seed(t, st,
		store.NewChunk{Text: "unrelated", Vector: []float32{0, 1}},
		store.NewChunk{Text: "cells divide", Vector: []float32{1, 0.1}},
		store.NewChunk{Text: "cell wall", Vector: []float32{1, 0.6}},
		store.NewChunk{Text: "cell theory", Vector: []float32{1, 0}},
	)
	e := New(st, emb, Options{TopK: 2, Threshold: 0.1}, nil)

	hits, err := e.Retrieve(context.Background(), docID, "cells", 0, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "cell theory", hits[0].Text)
	assert.Equal(t, "cells divide", hits[1].Text)
	for i := range hits {
		assert.Greater(t, hits[i].Similarity, 0.1)
		if i+1 < len(hits) {
			assert.GreaterOrEqual(t, hits[i].Similarity, hits[i+1].Similarity)
		}
	}

	hits, err = e.Retrieve(context.Background(), docID, "cells", 10, ptr(0.1))
	require.NoError(t, err)
	assert.Len(t, hits, 3, "orthogonal chunk is at the threshold floor")
}

func TestRetrieve_NoRelevantContent(t *testing.T) {
	st := store.NewMemoryStore()
	emb := fixedEmbedder{"q": {1, 0}}
	docID := seed(t, st, store.NewChunk{Text: "far", Vector: []float32{-1, 0}})
	e := New(st, emb, DefaultOptions(), nil)

	hits, err := e.Retrieve(context.Background(), docID, "q", 0, nil)
	assert.Nil(t, hits)
	assert.ErrorIs(t, err, ErrNoRelevantContent)
	assert.False(t, errors.Is(err, store.ErrNotFound))

	emptyDoc := seed(t, st)
	_, err = e.Retrieve(context.Background(), emptyDoc, "q", 0, nil)
	assert.ErrorIs(t, err, ErrNoRelevantContent)
}

func TestRetrieve_MissingDocument(t *testing.T) {
	e := New(store.NewMemoryStore(), fixedEmbedder{"q": {1, 0}}, DefaultOptions(), nil)
	_, err := e.Retrieve(context.Background(), 404, "q", 0, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, errors.Is(err, ErrNoRelevantContent))
}

func TestRetrieve_ExplicitThreshold(t *testing.T) {
	st := store.NewMemoryStore()
	emb := fixedEmbedder{"q": {1, 0}}
	docID := seed(t, st,
		store.NewChunk{Text: "slightly opposed", Vector: []float32{-1, 9.95}},
		store.NewChunk{Text: "barely aligned", Vector: []float32{1, 10}},
	)
	e := New(st, emb, DefaultOptions(), nil)

	tests := []struct {
		name      string
		threshold *float64
		want      []string
	}{
		{"unset uses engine default", nil, nil},
		{"zero is honoured", ptr(0), []string{"barely aligned"}},
		{"negative is honoured", ptr(-0.2), []string{"barely aligned", "slightly opposed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := e.Retrieve(context.Background(), docID, "q", 0, tt.threshold)
			if tt.want == nil {
				assert.ErrorIs(t, err, ErrNoRelevantContent)
				return
			}
			require.NoError(t, err)
			var got []string
			for _, h := range hits {
				got = append(got, h.Text)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	st := store.NewMemoryStore()
	docID := seed(t, st, store.NewChunk{Text: "a", Vector: []float32{1, 0}})
	e := New(st, fixedEmbedder{}, DefaultOptions(), nil)
	_, err := e.Search(context.Background(), docID, []float32{1, 0, 0}, 5, ptr(0.1))
	assert.Error(t, err)
}

func TestRetrieveMany_SkipsEmptyDocuments(t *testing.T) {
	st := store.NewMemoryStore()
	emb := fixedEmbedder{"q": {1, 0}}
	empty := seed(t, st, store.NewChunk{Text: "far", Vector: []float32{-1, 0}})
	first := seed(t, st, store.NewChunk{Text: "first", Vector: []float32{1, 0}})
	second := seed(t, st,
		store.NewChunk{Text: "second a", Vector: []float32{1, 0.2}},
		store.NewChunk{Text: "second b", Vector: []float32{1, 0}},
	)
	e := New(st, emb, DefaultOptions(), nil)

	hits, err := e.RetrieveMany(context.Background(), []int64{empty, first, second}, "q", 5, ptr(0.1))
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, first, hits[0].DocumentID)
	assert.Equal(t, "second b", hits[1].Text)
	assert.Equal(t, "second a", hits[2].Text)

	_, err = e.RetrieveMany(context.Background(), []int64{empty}, "q", 5, ptr(0.1))
	assert.ErrorIs(t, err, ErrNoRelevantContent)

	_, err = e.RetrieveMany(context.Background(), []int64{first, 999}, "q", 5, ptr(0.1))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRetrieve_HashEmbedderSelfMatch(t *testing.T) {
	st := store.NewMemoryStore()
	emb := embedding.NewHashEmbedder(64)
	text := "光合作用發生在葉綠體中。"
	v, err := emb.Embed(context.Background(), text)
	require.NoError(t, err)
	docID := seed(t, st, store.NewChunk{Text: text, Vector: v})

	hits, err := New(st, emb, DefaultOptions(), nil).Retrieve(context.Background(), docID, text, 0, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
}

func TestEnforce(t *testing.T) {
	hits := []store.ScoredChunk{
		{Chunk: store.Chunk{ID: 3}, Similarity: 0.5},
		{Chunk: store.Chunk{ID: 1}, Similarity: 0.05},
		{Chunk: store.Chunk{ID: 2}, Similarity: 0.9},
		{Chunk: store.Chunk{ID: 4}, Similarity: 0.5},
	}
	got := enforce(hits, 2, 0.1)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
}
