package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/quizrag/internal/ingest"
	"github.com/abhisek/quizrag/internal/logger"
	"github.com/abhisek/quizrag/internal/quizgen"
	"github.com/abhisek/quizrag/internal/retrieval"
	"github.com/abhisek/quizrag/internal/store"
)

func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// DocumentHandler serves ingestion and retrieval.
type DocumentHandler struct {
	log       *logger.Logger
	store     store.Store
	ingester  *ingest.Ingester
	retriever *retrieval.Engine
}

func NewDocumentHandler(log *logger.Logger, st store.Store, in *ingest.Ingester, r *retrieval.Engine) *DocumentHandler {
	return &DocumentHandler{
		log:       log.With("handler", "DocumentHandler"),
		store:     st,
		ingester:  in,
		retriever: r,
	}
}

type createDocumentRequest struct {
	Subject string `json:"subject"`
	Title   string `json:"title" binding:"required"`
	Content string `json:"content" binding:"required"`
	// Blocks selects overlapping fixed-size blocks instead of sentence
	// packing.
	Blocks bool `json:"blocks"`
}

// POST /api/documents
func (h *DocumentHandler) Create(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	create := h.ingester.CreateDocument
	if req.Blocks {
		create = h.ingester.CreateDocumentBlocks
	}
	res, err := create(c.Request.Context(), req.Subject, req.Title, req.Content)
	if errors.Is(err, ingest.ErrEmptyText) {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err != nil {
		h.log.Error("ingest failed", "title", req.Title, "error", err)
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type documentResponse struct {
	ID      int64  `json:"id"`
	Subject string `json:"subject"`
	Title   string `json:"title"`
	Chunks  int    `json:"chunks"`
}

// GET /api/documents?subject=
func (h *DocumentHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	docs, err := h.store.ListDocuments(ctx, c.Query("subject"))
	if err != nil {
		respondErr(c, err)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		n, err := h.store.ChunkCount(ctx, d.ID)
		if err != nil {
			respondErr(c, err)
			return
		}
		out = append(out, documentResponse{ID: d.ID, Subject: d.Subject, Title: d.Title, Chunks: n})
	}
	RespondOK(c, gin.H{"documents": out})
}

// GET /api/documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	doc, err := h.store.GetDocument(ctx, id)
	if err != nil {
		respondErr(c, fmt.Errorf("document %d: %w", id, err))
		return
	}
	n, err := h.store.ChunkCount(ctx, id)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, documentResponse{ID: doc.ID, Subject: doc.Subject, Title: doc.Title, Chunks: n})
}

// DELETE /api/documents/:id
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteDocument(c.Request.Context(), id); err != nil {
		respondErr(c, fmt.Errorf("document %d: %w", id, err))
		return
	}
	c.Status(http.StatusNoContent)
}

type searchHit struct {
	ChunkID    int64   `json:"chunk_id"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

// GET /api/documents/:id/search?q=&top_k=&threshold=
func (h *DocumentHandler) Search(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("query parameter q is required"))
		return
	}
	topK, err := queryInt(c, "top_k", 0)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	var threshold *float64
	if v := c.Query("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("threshold: %w", err))
			return
		}
		threshold = &f
	}

	hits, err := h.retriever.Retrieve(c.Request.Context(), id, q, topK, threshold)
	if err != nil {
		respondErr(c, err)
		return
	}
	out := make([]searchHit, len(hits))
	for i, hit := range hits {
		out[i] = searchHit{ChunkID: hit.ID, Text: hit.Text, Similarity: hit.Similarity}
	}
	RespondOK(c, gin.H{"document_id": id, "results": out})
}

// GenerateHandler exposes the generation entry points.
type GenerateHandler struct {
	log *logger.Logger
	svc *quizgen.Service
}

func NewGenerateHandler(log *logger.Logger, svc *quizgen.Service) *GenerateHandler {
	return &GenerateHandler{
		log: log.With("handler", "GenerateHandler"),
		svc: svc,
	}
}

// POST /api/generate
func (h *GenerateHandler) Basic(c *gin.Context) {
	handle(c, h.svc.GenerateBasic)
}

// POST /api/generate/single
func (h *GenerateHandler) Single(c *gin.Context) {
	handle(c, h.svc.GenerateSingle)
}

// POST /api/generate/template
func (h *GenerateHandler) Template(c *gin.Context) {
	handle(c, h.svc.GenerateFromTemplate)
}

// POST /api/generate/prompt
func (h *GenerateHandler) Prompt(c *gin.Context) {
	handle(c, h.svc.GenerateFromPrompt)
}

// POST /api/generate/template-enhanced
func (h *GenerateHandler) TemplateEnhanced(c *gin.Context) {
	handle(c, h.svc.GenerateTemplateEnhanced)
}

type batchRequest[T any] struct {
	Requests []T `json:"requests"`
}

// POST /api/generate/batch
func (h *GenerateHandler) Batch(c *gin.Context) {
	handleBatch(c, h.svc.BatchGenerate)
}

// POST /api/generate/single/batch
func (h *GenerateHandler) SingleBatch(c *gin.Context) {
	handleBatch(c, h.svc.BatchSingle)
}

// POST /api/generate/template/batch
func (h *GenerateHandler) TemplateBatch(c *gin.Context) {
	handleBatch(c, h.svc.BatchFromTemplate)
}

// POST /api/generate/prompt/batch
func (h *GenerateHandler) PromptBatch(c *gin.Context) {
	handleBatch(c, h.svc.BatchFromPrompt)
}

func handle[Req, Res any](c *gin.Context, fn func(ctx context.Context, req Req) (Res, error)) {
	var req Req
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := fn(c.Request.Context(), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, res)
}

func handleBatch[Req, Res any](c *gin.Context, fn func(ctx context.Context, reqs []Req) (Res, error)) {
	var body batchRequest[Req]
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := fn(c.Request.Context(), body.Requests)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, res)
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("invalid document id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
