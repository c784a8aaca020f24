package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration test; set QUIZRAG_TEST_DATABASE_URL to a database with pgvector.
func TestPostgresStore_Search(t *testing.T) {
	url := os.Getenv("QUIZRAG_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("QUIZRAG_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	s, err := OpenPostgres(ctx, url, 2, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	doc, err := s.CreateDocument(ctx, Document{Subject: "s", Title: "pg", Content: "c"})
	require.NoError(t, err)
	t.Cleanup(func() { s.DeleteDocument(context.Background(), doc.ID) })

	_, err = s.InsertChunks(ctx, doc.ID, []NewChunk{
		{Text: "orthogonal", Vector: []float32{0, 1}},
		{Text: "exact", Vector: []float32{1, 0}},
		{Text: "exact twin", Vector: []float32{2, 0}},
	})
	require.NoError(t, err)

	got, err := s.Search(ctx, SearchQuery{DocumentID: doc.ID, Vector: []float32{1, 0}, TopK: 5, Threshold: 0.1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "exact", got[0].Text)
	assert.Equal(t, "exact twin", got[1].Text)

	_, err = s.InsertChunks(ctx, doc.ID, []NewChunk{{Text: "bad", Vector: []float32{1, 2, 3}}})
	assert.ErrorIs(t, err, ErrInvalidChunk)

	_, err = s.GetDocument(ctx, -1)
	assert.ErrorIs(t, err, ErrNotFound)
}
