package quizgen

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/quizrag/internal/llm"
	"github.com/abhisek/quizrag/internal/logger"
	"github.com/abhisek/quizrag/internal/recovery"
	"github.com/abhisek/quizrag/internal/retrieval"
	"github.com/abhisek/quizrag/internal/store"
	"github.com/abhisek/quizrag/internal/templates"
)

// Purpose labels attached to LLM calls, one per generation mode.
const (
	PurposeBasic            = "generate-basic"
	PurposeSingle           = "generate-single"
	PurposeTemplate         = "generate-template"
	PurposePrompt           = "generate-prompt"
	PurposeTemplateEnhanced = "generate-template-enhanced"
)

// queryHint is appended to the subject or type when a retrieval query is
// built from request fields rather than free text.
const queryHint = "題目 教材內容"

// promptSource marks questions that were generated from a caller's prompt
// rather than stored material.
const promptSource = "generated from caller prompt"

// Options tune the Service.
type Options struct {
	// MaxCount caps a single requested count.
	MaxCount int
	// MaxBatch caps the number of sub-requests in one batch.
	MaxBatch int
	// BatchConcurrency bounds concurrently running sub-requests.
	BatchConcurrency int
	// BasicContextChunks is how many retrieved chunks feed a basic prompt.
	BasicContextChunks int
	// SingleContextChunks is how many retrieved chunks feed a single-template prompt.
	SingleContextChunks int
	// SinglePerDocTopK is the per-document search limit in single-template mode.
	SinglePerDocTopK int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxCount:            50,
		MaxBatch:            20,
		BatchConcurrency:    4,
		BasicContextChunks:  5,
		SingleContextChunks: 8,
		SinglePerDocTopK:    5,
	}
}

// Service runs the generation pipeline: retrieve context, build a prompt,
// call the model, recover JSON, validate and assemble.
type Service struct {
	store     store.Store
	retriever *retrieval.Engine
	templates templates.Source
	llm       llm.Provider
	validator *Validator
	log       *logger.Logger
	opts      Options
}

// NewService wires a Service. Zero-valued options fall back to defaults.
func NewService(st store.Store, r *retrieval.Engine, tpls templates.Source, p llm.Provider, opts Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	def := DefaultOptions()
	if opts.MaxCount <= 0 {
		opts.MaxCount = def.MaxCount
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = def.MaxBatch
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = def.BatchConcurrency
	}
	if opts.BasicContextChunks <= 0 {
		opts.BasicContextChunks = def.BasicContextChunks
	}
	if opts.SingleContextChunks <= 0 {
		opts.SingleContextChunks = def.SingleContextChunks
	}
	if opts.SinglePerDocTopK <= 0 {
		opts.SinglePerDocTopK = def.SinglePerDocTopK
	}
	return &Service{
		store:     st,
		retriever: r,
		templates: tpls,
		llm:       p,
		validator: NewValidator(log),
		log:       log,
		opts:      opts,
	}
}

// Result is the common part of every generation response.
type Result struct {
	RequestID      string         `json:"request_id"`
	Items          []QuestionItem `json:"items"`
	Count          int            `json:"count"`
	Requested      int            `json:"requested"`
	Shortfall      int            `json:"shortfall"`
	Rejected       int            `json:"rejected"`
	Warning        string         `json:"warning,omitempty"`
	GenerationTime float64        `json:"generation_time"`
	Elapsed        time.Duration  `json:"-"`
}

// ItemCount reports how many questions the result carries.
func (r *Result) ItemCount() int { return len(r.Items) }

func (r *Result) add(a Assembly) {
	r.Items = append(r.Items, a.Items...)
	r.Count = len(r.Items)
	r.Requested += a.Requested
	r.Shortfall += a.Shortfall
	r.Rejected += len(a.Rejected)
	r.addWarning(a.Warning)
}

func (r *Result) addWarning(w string) {
	if w == "" {
		return
	}
	if r.Warning != "" {
		r.Warning += "; "
	}
	r.Warning += w
}

func (r *Result) finish(start time.Time) {
	r.Elapsed = time.Since(start)
	r.GenerationTime = r.Elapsed.Seconds()
	r.Count = len(r.Items)
}

func newResult() *Result {
	return &Result{RequestID: uuid.NewString(), Items: []QuestionItem{}}
}

// BasicRequest asks for per-type counts about a subject, grounded in one
// document.
type BasicRequest struct {
	Subject    string               `json:"subject"`
	DocumentID int64                `json:"document_id"`
	Types      map[QuestionType]int `json:"types"`
	Params     ModelParams          `json:"params"`
}

// GenerateBasic retrieves the document's passages most relevant to the
// subject and generates each requested type in canonical type order.
func (s *Service) GenerateBasic(ctx context.Context, req BasicRequest) (*Result, error) {
	start := time.Now()
	if err := s.checkCounts(req.Types); err != nil {
		return nil, err
	}
	if _, err := s.store.GetDocument(ctx, req.DocumentID); err != nil {
		return nil, fmt.Errorf("document %d: %w", req.DocumentID, err)
	}

	query := strings.TrimSpace(req.Subject + " " + queryHint)
	hits, err := s.retriever.Retrieve(ctx, req.DocumentID, query, 0, nil)
	if err != nil {
		return nil, err
	}
	hits = firstN(hits, s.opts.BasicContextChunks)
	material := numberedContext(hits)
	sources := chunkSources(hits)
	params := templates.Params{}.Resolve(req.Params.Temperature, req.Params.MaxTokens)

	res := newResult()
	var lastErr error
	for _, t := range AllTypes() {
		count := req.Types[t]
		if count <= 0 {
			continue
		}
		ask := count + Buffer
		a, err := s.run(ctx, call{
			purpose: PurposeBasic,
			qtype:   t,
			count:   count,
			prompt:  BuildBasic(req.Subject, material, t, ask),
			params:  params,
			topP:    req.Params.TopP,
			model:   req.Params.Model,
			sources: sources,
		})
		var none *ErrNoValidQuestions
		if errors.As(err, &none) {
			// Other types may still succeed; the loss is reported as shortfall.
			res.Requested += count
			res.Shortfall += count
			res.addWarning(none.Error())
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		res.add(a)
	}
	if len(res.Items) == 0 && lastErr != nil {
		return nil, lastErr
	}

	res.finish(start)
	s.log.Info("basic generation complete",
		"request_id", res.RequestID, "document_id", req.DocumentID,
		"items", res.Count, "requested", res.Requested, "elapsed_ms", res.Elapsed.Milliseconds())
	return res, nil
}

// SingleRequest generates one type from a template, using vector search
// over the listed documents for context.
type SingleRequest struct {
	TemplateID   int64        `json:"template_id"`
	DocumentIDs  []int64      `json:"document_ids"`
	QuestionType QuestionType `json:"question_type,omitempty"`
	Count        int          `json:"count"`
	Params       ModelParams  `json:"params"`
}

// SingleResult adds the template and type actually used.
type SingleResult struct {
	Result
	TemplateID   int64        `json:"template_id"`
	QuestionType QuestionType `json:"question_type"`
}

// GenerateSingle renders the template with the best chunks of the listed
// documents and generates Count questions of one type.
func (s *Service) GenerateSingle(ctx context.Context, req SingleRequest) (*SingleResult, error) {
	start := time.Now()
	if err := s.checkCount(req.Count); err != nil {
		return nil, err
	}
	if len(req.DocumentIDs) == 0 {
		return nil, invalidf("at least one document id is required")
	}
	tpl, err := s.templates.Get(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	t, err := pickType(req.QuestionType, tpl.QuestionType, SingleChoice)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("%s %s", t, queryHint)
	hits, err := s.retriever.RetrieveMany(ctx, req.DocumentIDs, query, s.opts.SinglePerDocTopK, nil)
	if err != nil {
		return nil, err
	}
	hits = firstN(hits, s.opts.SingleContextChunks)
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	rendered := templates.Render(tpl.Content, strings.Join(texts, "\n"))

	a, err := s.run(ctx, call{
		purpose: PurposeSingle,
		qtype:   t,
		count:   req.Count,
		prompt:  BuildTemplate(rendered, t, req.Count+Buffer),
		params:  tpl.Params.Resolve(req.Params.Temperature, req.Params.MaxTokens),
		topP:    req.Params.TopP,
		model:   req.Params.Model,
		sources: chunkSources(hits),
	})
	if err != nil {
		return nil, err
	}

	res := &SingleResult{Result: *newResult(), TemplateID: tpl.ID, QuestionType: t}
	res.add(a)
	res.finish(start)
	s.log.Info("single generation complete",
		"request_id", res.RequestID, "template_id", tpl.ID, "type", t,
		"items", res.Count, "elapsed_ms", res.Elapsed.Milliseconds())
	return res, nil
}

// TemplateRequest generates from a template over whole documents, without
// vector search.
type TemplateRequest struct {
	TemplateID  int64       `json:"template_id"`
	DocumentIDs []int64     `json:"document_ids"`
	Count       int         `json:"count"`
	Params      ModelParams `json:"params"`
}

// TemplateResult adds the template, the documents used and the question
// types the template text asks for.
type TemplateResult struct {
	Result
	TemplateID    int64    `json:"template_id"`
	TemplateName  string   `json:"template_name"`
	DocumentIDs   []int64  `json:"document_ids"`
	DetectedTypes []string `json:"detected_types"`
}

// GenerateFromTemplate substitutes the full content of every found document
// into the template. Missing documents are skipped; none found is
// store.ErrNotFound.
func (s *Service) GenerateFromTemplate(ctx context.Context, req TemplateRequest) (*TemplateResult, error) {
	start := time.Now()
	if err := s.checkCount(req.Count); err != nil {
		return nil, err
	}
	tpl, err := s.templates.Get(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}

	var docs []store.Document
	for _, id := range req.DocumentIDs {
		doc, err := s.store.GetDocument(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			s.log.Warn("template generation: document not found, skipping", "document_id", id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", id, err)
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("documents %v: %w", req.DocumentIDs, store.ErrNotFound)
	}

	parts := make([]string, len(docs))
	sources := make([]Source, len(docs))
	ids := make([]int64, len(docs))
	for i, d := range docs {
		parts[i] = fmt.Sprintf("Document: %s\nContent: %s", d.Title, d.Content)
		sources[i] = Source{DocumentID: d.ID, ChunkText: d.Content}
		ids[i] = d.ID
	}
	rendered := templates.Render(tpl.Content, strings.Join(parts, "\n\n"))

	a, err := s.run(ctx, call{
		purpose: PurposeTemplate,
		qtype:   Auto,
		count:   req.Count,
		prompt:  BuildTemplate(rendered, Auto, req.Count+Buffer),
		params:  tpl.Params.Resolve(req.Params.Temperature, req.Params.MaxTokens),
		topP:    req.Params.TopP,
		model:   req.Params.Model,
		sources: sources,
	})
	if err != nil {
		return nil, err
	}

	res := &TemplateResult{
		Result:        *newResult(),
		TemplateID:    tpl.ID,
		TemplateName:  tpl.Name,
		DocumentIDs:   ids,
		DetectedTypes: templates.DetectTypes(tpl.Content),
	}
	res.add(a)
	res.finish(start)
	s.log.Info("template generation complete",
		"request_id", res.RequestID, "template_id", tpl.ID, "documents", len(ids),
		"items", res.Count, "elapsed_ms", res.Elapsed.Milliseconds())
	return res, nil
}

// PromptRequest generates from a caller-written prompt.
type PromptRequest struct {
	Prompt       string       `json:"prompt"`
	QuestionType QuestionType `json:"question_type,omitempty"`
	Count        int          `json:"count"`
	Params       ModelParams  `json:"params"`
}

// PromptResult adds a preview of the prompt and the model used.
type PromptResult struct {
	Result
	PromptPreview string       `json:"prompt_preview"`
	QuestionType  QuestionType `json:"question_type"`
	Model         string       `json:"model"`
}

// GenerateFromPrompt sends the caller's prompt with only the format and
// count rules appended.
func (s *Service) GenerateFromPrompt(ctx context.Context, req PromptRequest) (*PromptResult, error) {
	start := time.Now()
	if err := s.checkCount(req.Count); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, invalidf("prompt is empty")
	}
	t, err := pickType(req.QuestionType, "", Auto)
	if err != nil {
		return nil, err
	}

	a, err := s.run(ctx, call{
		purpose: PurposePrompt,
		qtype:   t,
		count:   req.Count,
		prompt:  BuildPrompt(req.Prompt, t, req.Count+Buffer),
		params:  templates.Params{}.Resolve(req.Params.Temperature, req.Params.MaxTokens),
		topP:    req.Params.TopP,
		model:   req.Params.Model,
		sources: []Source{{ChunkText: promptSource}},
	})
	if err != nil {
		return nil, err
	}

	res := &PromptResult{
		Result:        *newResult(),
		PromptPreview: Excerpt(req.Prompt, ExcerptRunes),
		QuestionType:  t,
		Model:         s.modelFor(req.Params.Model),
	}
	res.add(a)
	res.finish(start)
	s.log.Info("prompt generation complete",
		"request_id", res.RequestID, "type", t,
		"items", res.Count, "elapsed_ms", res.Elapsed.Milliseconds())
	return res, nil
}

// InlineDocument is caller-supplied material for template-enhanced mode.
type InlineDocument struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Chapter string `json:"chapter,omitempty"`
	Content string `json:"content"`
}

// TemplateEnhancedRequest carries the template and the documents inline.
type TemplateEnhancedRequest struct {
	Template     templates.Template `json:"template"`
	Documents    []InlineDocument   `json:"documents"`
	QuestionType QuestionType       `json:"question_type,omitempty"`
	Count        int                `json:"count"`
	Params       ModelParams        `json:"params"`
}

// EnhancedResult reports the template, documents and resolved parameters.
type EnhancedResult struct {
	Result
	TemplateID   int64              `json:"template_id"`
	TemplateName string             `json:"template_name"`
	DocumentIDs  []int64            `json:"document_ids"`
	QuestionType QuestionType       `json:"question_type"`
	Params       templates.Resolved `json:"params"`
	Model        string             `json:"model"`
}

// GenerateTemplateEnhanced renders an inline template over inline documents.
// Template parameters win over request parameters, which win over defaults.
func (s *Service) GenerateTemplateEnhanced(ctx context.Context, req TemplateEnhancedRequest) (*EnhancedResult, error) {
	start := time.Now()
	if err := s.checkCount(req.Count); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Template.Content) == "" {
		return nil, invalidf("template content is empty")
	}
	if len(req.Documents) == 0 {
		return nil, invalidf("at least one document is required")
	}
	t, err := pickType(QuestionType(req.Template.QuestionType), string(req.QuestionType), SingleChoice)
	if err != nil {
		return nil, err
	}

	parts := make([]string, len(req.Documents))
	ids := make([]int64, len(req.Documents))
	for i, d := range req.Documents {
		var b strings.Builder
		fmt.Fprintf(&b, "=== %s ===\n", d.Title)
		if d.Chapter != "" {
			fmt.Fprintf(&b, "Chapter: %s\n", d.Chapter)
		}
		b.WriteString(d.Content)
		parts[i] = b.String()
		ids[i] = d.ID
	}
	combined := strings.Join(parts, "\n\n")
	params := req.Template.Params.Resolve(req.Params.Temperature, req.Params.MaxTokens)
	topP := params.TopP
	if req.Template.Params.TopP == nil && req.Params.TopP != nil {
		topP = *req.Params.TopP
	}

	a, err := s.run(ctx, call{
		purpose: PurposeTemplateEnhanced,
		qtype:   t,
		count:   req.Count,
		prompt:  BuildTemplate(templates.Render(req.Template.Content, combined), t, req.Count+Buffer),
		params:  params,
		topP:    &topP,
		model:   req.Params.Model,
		sources: []Source{{DocumentID: ids[0], ChunkText: combined}},
	})
	if err != nil {
		return nil, err
	}

	params.TopP = topP
	res := &EnhancedResult{
		Result:       *newResult(),
		TemplateID:   req.Template.ID,
		TemplateName: req.Template.Name,
		DocumentIDs:  ids,
		QuestionType: t,
		Params:       params,
		Model:        s.modelFor(req.Params.Model),
	}
	res.add(a)
	res.finish(start)
	s.log.Info("template-enhanced generation complete",
		"request_id", res.RequestID, "template_id", req.Template.ID, "type", t,
		"items", res.Count, "elapsed_ms", res.Elapsed.Milliseconds())
	return res, nil
}

// call is one prompt sent to the model and assembled.
type call struct {
	purpose string
	qtype   QuestionType
	count   int
	prompt  string
	params  templates.Resolved
	topP    *float64
	model   string
	sources []Source
}

func (s *Service) run(ctx context.Context, c call) (Assembly, error) {
	ask := c.count + Buffer
	req := llm.UserRequest(systemPrompt, c.prompt)
	req.MaxTokens = c.params.MaxTokens
	req.Temperature = c.params.Temperature
	if c.topP != nil {
		req.TopP = *c.topP
	}
	req.Model = c.model
	req.Meta = map[string]string{
		MetaQuestionType: string(c.qtype),
		MetaCount:        strconv.Itoa(ask),
	}

	resp, err := s.llm.Generate(llm.WithPurpose(ctx, c.purpose), req)
	var text string
	var truncated *llm.ErrMaxTokensExceeded
	switch {
	case errors.As(err, &truncated) && truncated.Content != "":
		s.log.Warn("LLM response truncated, recovering what arrived",
			"type", c.qtype, "raw_size", len(truncated.Content))
		text = truncated.Content
	case err != nil:
		return Assembly{}, fmt.Errorf("generate %s questions: %w", c.qtype, err)
	default:
		text = resp.Content
	}

	rec, err := recovery.Recover(text)
	if err != nil {
		s.log.Error("unrecoverable LLM response", "type", c.qtype, "raw_size", len(text))
		return Assembly{}, &ErrMalformedResponse{RawSize: len(text), Err: err}
	}
	s.log.Debug("LLM response recovered",
		"type", c.qtype, "strategy", rec.Strategy, "candidates", len(rec.Items))

	valid, rejects := s.validator.Validate(c.qtype, rec.Items)
	a, err := Assemble(c.qtype, c.count, valid, rejects, c.sources)
	if err != nil {
		s.log.Warn("no valid questions", "type", c.qtype, "error", err)
		return Assembly{}, err
	}
	if a.Shortfall > 0 {
		s.log.Warn("question shortfall", "type", c.qtype, "requested", c.count, "shortfall", a.Shortfall)
	}
	return a, nil
}

func (s *Service) modelFor(override string) string {
	if override != "" {
		return override
	}
	return s.llm.ModelID()
}

func (s *Service) checkCount(n int) error {
	if n <= 0 {
		return invalidf("count must be positive, got %d", n)
	}
	if n > s.opts.MaxCount {
		return invalidf("count %d exceeds the limit of %d", n, s.opts.MaxCount)
	}
	return nil
}

func (s *Service) checkCounts(types map[QuestionType]int) error {
	total := 0
	for t, n := range types {
		if !t.Valid() {
			return invalidf("unknown question type %q", t)
		}
		if n < 0 {
			return invalidf("count for %s is negative", t)
		}
		if n > s.opts.MaxCount {
			return invalidf("count %d for %s exceeds the limit of %d", n, t, s.opts.MaxCount)
		}
		total += n
	}
	if total == 0 {
		return invalidf("at least one question type needs a positive count")
	}
	return nil
}

// pickType returns the first non-empty of primary and secondary, parsed,
// or fallback.
func pickType(primary QuestionType, secondary string, fallback QuestionType) (QuestionType, error) {
	for _, s := range []string{string(primary), secondary} {
		if strings.TrimSpace(s) != "" {
			return ParseQuestionType(s)
		}
	}
	return fallback, nil
}

func firstN(hits []store.ScoredChunk, n int) []store.ScoredChunk {
	if len(hits) > n {
		return hits[:n]
	}
	return hits
}

func numberedContext(hits []store.ScoredChunk) string {
	lines := make([]string, len(hits))
	for i, h := range hits {
		lines[i] = fmt.Sprintf("%d. %s", i+1, h.Text)
	}
	return strings.Join(lines, "\n")
}

func chunkSources(hits []store.ScoredChunk) []Source {
	out := make([]Source, len(hits))
	for i, h := range hits {
		out[i] = Source{DocumentID: h.DocumentID, ChunkID: h.ID, ChunkText: h.Text}
	}
	return out
}
