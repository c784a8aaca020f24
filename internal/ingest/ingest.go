// Package ingest turns raw text into stored, embedded chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/abhisek/quizrag/internal/chunker"
	"github.com/abhisek/quizrag/internal/embedding"
	"github.com/abhisek/quizrag/internal/logger"
	"github.com/abhisek/quizrag/internal/store"
)

// ErrEmptyText is returned for documents with no content to chunk.
var ErrEmptyText = errors.New("document text is empty")

// Options control chunk sizes.
type Options struct {
	ChunkSize       int
	UploadChunkSize int
	Overlap         int
}

// DefaultOptions returns 300-rune chunks for single documents and 500-rune
// blocks overlapping by 50 for bulk import.
func DefaultOptions() Options {
	return Options{
		ChunkSize:       chunker.DefaultMaxSize,
		UploadChunkSize: chunker.DefaultBlockSize,
		Overlap:         chunker.DefaultOverlap,
	}
}

// Ingester creates documents and their chunks.
type Ingester struct {
	store    store.Store
	embedder embedding.Embedder
	opts     Options
	log      *logger.Logger
}

// New creates an Ingester. Zero-valued options fall back to defaults.
func New(st store.Store, emb embedding.Embedder, opts Options, log *logger.Logger) *Ingester {
	if log == nil {
		log = logger.Nop()
	}
	def := DefaultOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.UploadChunkSize <= 0 {
		opts.UploadChunkSize = def.UploadChunkSize
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.UploadChunkSize {
		opts.Overlap = def.Overlap
	}
	return &Ingester{store: st, embedder: emb, opts: opts, log: log}
}

// Result reports one ingested document.
type Result struct {
	DocumentID int64         `json:"document_id"`
	Title      string        `json:"title"`
	Chunks     int           `json:"chunks"`
	Elapsed    time.Duration `json:"-"`
}

// CreateDocument stores the document, splits it into sentence-packed
// chunks, embeds each and persists them.
func (in *Ingester) CreateDocument(ctx context.Context, subject, title, text string) (Result, error) {
	pieces := chunker.Split(text, in.opts.ChunkSize)
	return in.create(ctx, subject, title, text, pieces)
}

// CreateDocumentBlocks is CreateDocument with overlapping fixed-size blocks,
// the layout used for bulk uploads.
func (in *Ingester) CreateDocumentBlocks(ctx context.Context, subject, title, text string) (Result, error) {
	blocks := chunker.SplitBlocks(text, in.opts.UploadChunkSize, in.opts.Overlap)
	pieces := make([]string, len(blocks))
	for i, b := range blocks {
		pieces[i] = b.Text
	}
	return in.create(ctx, subject, title, text, pieces)
}

func (in *Ingester) create(ctx context.Context, subject, title, text string, pieces []string) (Result, error) {
	start := time.Now()
	if strings.TrimSpace(text) == "" || len(pieces) == 0 {
		return Result{}, ErrEmptyText
	}

	// Embed before writing anything so a failing embedder leaves no
	// half-ingested document behind.
	vectors, err := embedding.EmbedBatch(ctx, in.embedder, pieces)
	if err != nil {
		return Result{}, err
	}

	doc, err := in.store.CreateDocument(ctx, store.Document{Subject: subject, Title: title, Content: text})
	if err != nil {
		return Result{}, fmt.Errorf("create document: %w", err)
	}

	chunks := make([]store.NewChunk, len(pieces))
	for i := range pieces {
		chunks[i] = store.NewChunk{Text: pieces[i], Vector: vectors[i]}
	}
	if _, err := in.store.InsertChunks(ctx, doc.ID, chunks); err != nil {
		if derr := in.store.DeleteDocument(ctx, doc.ID); derr != nil {
			in.log.Error("failed to remove partially ingested document", "document_id", doc.ID, "error", derr)
		}
		return Result{}, fmt.Errorf("insert chunks: %w", err)
	}

	res := Result{DocumentID: doc.ID, Title: title, Chunks: len(chunks), Elapsed: time.Since(start)}
	in.log.Info("document ingested",
		"document_id", doc.ID, "subject", subject, "title", title,
		"chunks", res.Chunks, "elapsed_ms", res.Elapsed.Milliseconds())
	return res, nil
}

// ImportReport summarises a directory import.
type ImportReport struct {
	Imported []Result `json:"imported"`
	Skipped  []string `json:"skipped"`
	Failed   []string `json:"failed"`
}

// ImportDir ingests every .txt and .md file in dir as a document of
// subject, titled by file name. Files already imported under the same
// subject and title are skipped; a failing file is recorded and the import
// continues.
func (in *Ingester) ImportDir(ctx context.Context, dir, subject string) (ImportReport, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ImportReport{}, fmt.Errorf("read import directory: %w", err)
	}
	existing, err := in.store.ListDocuments(ctx, subject)
	if err != nil {
		return ImportReport{}, fmt.Errorf("list documents: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, d := range existing {
		seen[d.Title] = true
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".txt", ".md":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var report ImportReport
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		title := strings.TrimSuffix(name, filepath.Ext(name))
		if seen[title] {
			in.log.Info("already imported, skipping", "file", name)
			report.Skipped = append(report.Skipped, name)
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			in.log.Warn("read failed", "file", name, "error", err)
			report.Failed = append(report.Failed, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		res, err := in.CreateDocumentBlocks(ctx, subject, title, string(content))
		if err != nil {
			in.log.Warn("import failed", "file", name, "error", err)
			report.Failed = append(report.Failed, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		seen[title] = true
		report.Imported = append(report.Imported, res)
	}

	in.log.Info("directory import complete",
		"dir", dir, "imported", len(report.Imported),
		"skipped", len(report.Skipped), "failed", len(report.Failed))
	return report, nil
}
