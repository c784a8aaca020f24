package quizgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/quizrag/internal/embedding"
	"github.com/abhisek/quizrag/internal/llm"
	"github.com/abhisek/quizrag/internal/retrieval"
	"github.com/abhisek/quizrag/internal/store"
	"github.com/abhisek/quizrag/internal/templates"
)

type fixture struct {
	store *store.MemoryStore
	emb   *embedding.HashEmbedder
	tpls  *templates.MemorySource
	svc   *Service
}

func newFixture(t *testing.T, p llm.Provider) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	emb := embedding.NewHashEmbedder(0)
	tpls := templates.NewMemorySource(
		templates.Template{ID: 1, Name: "choice", Subject: "science", Content: "請根據以下內容出單選題：\n{{context}}", QuestionType: "single_choice"},
		templates.Template{ID: 2, Name: "review", Subject: "science", Content: "Review questions (true or false, matching):\n{context}"},
	)
	eng := retrieval.New(st, emb, retrieval.DefaultOptions(), nil)
	return &fixture{
		store: st,
		emb:   emb,
		tpls:  tpls,
		svc:   NewService(st, eng, tpls, p, Options{}, nil),
	}
}

// addDoc stores a document with one chunk whose vector matches query
// exactly, or points away from it when relevant is false.
func (f *fixture) addDoc(t *testing.T, query, text string, relevant bool) (store.Document, store.Chunk) {
	t.Helper()
	ctx := context.Background()
	doc, err := f.store.CreateDocument(ctx, store.Document{Subject: "science", Title: "Cells", Content: text})
	require.NoError(t, err)

	vec, err := f.emb.Embed(ctx, query)
	require.NoError(t, err)
	if !relevant {
		for i := range vec {
			vec[i] = -vec[i]
		}
	}
	chunks, err := f.store.InsertChunks(ctx, doc.ID, []store.NewChunk{{Text: text, Vector: vec}})
	require.NoError(t, err)
	return doc, chunks[0]
}

func basicQuery(subject string) string { return subject + " " + queryHint }

func choiceItems(n int) string {
	items := make([]map[string]any, n)
	for i := range items {
		items[i] = map[string]any{
			"prompt":      fmt.Sprintf("Which organelle makes energy? (%d)", i+1),
			"options":     []string{"A. Mitochondria", "B. Ribosome", "C. Nucleus", "D. Vacuole"},
			"answer":      "A",
			"explanation": "Mitochondria produce ATP.",
		}
	}
	b, _ := json.Marshal(items)
	return string(b)
}

func TestGenerateBasic_ThreeSingleChoiceFromOneChunk(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: choiceItems(5)})
	f := newFixture(t, mock)
	doc, chunk := f.addDoc(t, basicQuery("biology"), "Mitochondria produce ATP for the cell.", true)

	res, err := f.svc.GenerateBasic(context.Background(), BasicRequest{
		Subject:    "biology",
		DocumentID: doc.ID,
		Types:      map[QuestionType]int{SingleChoice: 3},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, 3, res.Requested)
	assert.Zero(t, res.Shortfall)
	assert.NotEmpty(t, res.RequestID)

	for _, it := range res.Items {
		assert.Equal(t, SingleChoice, it.Type)
		assert.GreaterOrEqual(t, len(it.Options), 2)
		assert.Equal(t, doc.ID, it.Source.DocumentID)
		assert.Equal(t, chunk.ID, it.Source.ChunkID)
	}

	require.Equal(t, 1, mock.CallCount())
	call := mock.Calls[0]
	assert.Equal(t, "5", call.Meta[MetaCount])
	assert.Equal(t, "single_choice", call.Meta[MetaQuestionType])
	assert.Equal(t, 2000, call.MaxTokens)
	assert.InDelta(t, 0.7, call.Temperature, 1e-9)
	assert.Contains(t, call.Messages[0].Content, "1. Mitochondria produce ATP for the cell.")
	assert.Contains(t, call.Messages[0].Content, "Generate exactly 5 question(s).")
}

func TestGenerateBasic_NoRelevantContent(t *testing.T) {
	mock := llm.NewMockProvider()
	f := newFixture(t, mock)
	doc, _ := f.addDoc(t, basicQuery("biology"), "Unrelated text.", false)

	res, err := f.svc.GenerateBasic(context.Background(), BasicRequest{
		Subject:    "biology",
		DocumentID: doc.ID,
		Types:      map[QuestionType]int{SingleChoice: 2},
	})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, retrieval.ErrNoRelevantContent)
	assert.Zero(t, mock.CallCount())
}

func TestGenerateBasic_DocumentNotFound(t *testing.T) {
	f := newFixture(t, llm.NewMockProvider())

	_, err := f.svc.GenerateBasic(context.Background(), BasicRequest{
		Subject:    "biology",
		DocumentID: 99,
		Types:      map[QuestionType]int{Cloze: 1},
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGenerateBasic_InvalidCounts(t *testing.T) {
	f := newFixture(t, llm.NewMockProvider())

	tests := map[string]map[QuestionType]int{
		"empty":    {},
		"all zero": {SingleChoice: 0, Cloze: 0},
		"negative": {Cloze: -1, SingleChoice: 2},
		"too many": {Cloze: 51},
		"unknown":  {QuestionType("essay"): 1},
	}
	for name, types := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.GenerateBasic(context.Background(), BasicRequest{DocumentID: 1, Types: types})
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestGenerateBasic_PerTypeCallsInCanonicalOrder(t *testing.T) {
	mock := llm.NewMockProvider(
		llm.MockResponse{Content: choiceItems(3)},
		llm.MockResponse{Content: `[{"prompt": "Cells are alive.", "answer": "true", "explanation": "Yes."}]`},
	)
	f := newFixture(t, mock)
	doc, _ := f.addDoc(t, basicQuery("biology"), "Cells are alive.", true)

	res, err := f.svc.GenerateBasic(context.Background(), BasicRequest{
		Subject:    "biology",
		DocumentID: doc.ID,
		Types:      map[QuestionType]int{TrueFalse: 2, SingleChoice: 1},
	})
	require.NoError(t, err)
	require.Equal(t, 2, mock.CallCount())
	assert.Equal(t, "single_choice", mock.Calls[0].Meta[MetaQuestionType])
	assert.Equal(t, "true_false", mock.Calls[1].Meta[MetaQuestionType])

	assert.Len(t, res.Items, 2)
	assert.Equal(t, 3, res.Requested)
	assert.Equal(t, 1, res.Shortfall)
	assert.Contains(t, res.Warning, "only 1 of 2")
}

func TestGenerateBasic_PartialValidation(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: `Here you go:
[
  {"prompt": "Statement one.", "answer": "TRUE", "explanation": "e"},
  {"prompt": "Statement two.", "answer": "maybe", "explanation": "e"},
  {"prompt": "Statement three.", "answer": false, "explanation": "e"}
]
Hope this helps.`})
	f := newFixture(t, mock)
	doc, _ := f.addDoc(t, basicQuery("physics"), "Statements.", true)

	res, err := f.svc.GenerateBasic(context.Background(), BasicRequest{
		Subject:    "physics",
		DocumentID: doc.ID,
		Types:      map[QuestionType]int{TrueFalse: 3},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "true", res.Items[0].Answer)
	assert.Equal(t, "false", res.Items[1].Answer)
	assert.Equal(t, 1, res.Shortfall)
	assert.Equal(t, 1, res.Rejected)
	assert.NotEmpty(t, res.Warning)
}

func TestGenerateBasic_MalformedResponse(t *testing.T) {
	raw := "I'm sorry, I can't produce questions for this material."
	f := newFixture(t, llm.NewMockProvider(llm.MockResponse{Content: raw}))
	doc, _ := f.addDoc(t, basicQuery("history"), "Text.", true)

	_, err := f.svc.GenerateBasic(context.Background(), BasicRequest{
		Subject:    "history",
		DocumentID: doc.ID,
		Types:      map[QuestionType]int{Cloze: 1},
	})
	var malformed *ErrMalformedResponse
	require.True(t, errors.As(err, &malformed), "got %v", err)
	assert.Equal(t, len(raw), malformed.RawSize)
}

func TestGenerateBasic_AllRejected(t *testing.T) {
	f := newFixture(t, llm.NewMockProvider(llm.MockResponse{
		Content: `[{"prompt": "p", "answer": "maybe", "explanation": "e"}]`,
	}))
	doc, _ := f.addDoc(t, basicQuery("history"), "Text.", true)

	res, err := f.svc.GenerateBasic(context.Background(), BasicRequest{
		Subject:    "history",
		DocumentID: doc.ID,
		Types:      map[QuestionType]int{TrueFalse: 1},
	})
	assert.Nil(t, res)
	var none *ErrNoValidQuestions
	require.True(t, errors.As(err, &none), "got %v", err)
	assert.Equal(t, 1, none.Candidates)
}

func TestGenerateBasic_ProviderFailure(t *testing.T) {
	f := newFixture(t, llm.NewMockProvider(llm.MockResponse{
		Err: &llm.ErrRetriesExhausted{Attempts: 3, Err: &llm.ErrTimeout{}},
	}))
	doc, _ := f.addDoc(t, basicQuery("history"), "Text.", true)

	_, err := f.svc.GenerateBasic(context.Background(), BasicRequest{
		Subject:    "history",
		DocumentID: doc.ID,
		Types:      map[QuestionType]int{Cloze: 1},
	})
	var exhausted *llm.ErrRetriesExhausted
	assert.True(t, errors.As(err, &exhausted))
	assert.False(t, errors.Is(err, retrieval.ErrNoRelevantContent))
}

func TestGenerateBasic_TruncatedResponseRecovered(t *testing.T) {
	partial := "```json\n[{\"prompt\": \"The ____ divides.\", \"answer\": \"cell\", \"explanation\": \"e\"}]\n```"
	f := newFixture(t, llm.NewMockProvider(llm.MockResponse{
		Err: &llm.ErrMaxTokensExceeded{Content: partial},
	}))
	doc, _ := f.addDoc(t, basicQuery("biology"), "The cell divides.", true)

	res, err := f.svc.GenerateBasic(context.Background(), BasicRequest{
		Subject:    "biology",
		DocumentID: doc.ID,
		Types:      map[QuestionType]int{Cloze: 1},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "cell", res.Items[0].Answer)
}

func TestGenerateSingle(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: "```json\n" + choiceItems(4) + "\n```"})
	f := newFixture(t, mock)
	doc, chunk := f.addDoc(t, "single_choice "+queryHint, "細胞是生命的基本單位。", true)

	temp := 0.3
	res, err := f.svc.GenerateSingle(context.Background(), SingleRequest{
		TemplateID:  1,
		DocumentIDs: []int64{doc.ID},
		Count:       2,
		Params:      ModelParams{Temperature: &temp, Model: "claude-test"},
	})
	require.NoError(t, err)
	assert.Equal(t, SingleChoice, res.QuestionType)
	assert.Equal(t, int64(1), res.TemplateID)
	require.Len(t, res.Items, 2)
	assert.Equal(t, chunk.ID, res.Items[0].Source.ChunkID)

	call := mock.Calls[0]
	assert.Contains(t, call.Messages[0].Content, "請根據以下內容出單選題：\n細胞是生命的基本單位。")
	assert.NotContains(t, call.Messages[0].Content, "{{context}}")
	assert.InDelta(t, 0.3, call.Temperature, 1e-9)
	assert.Equal(t, "claude-test", call.Model)
	assert.Equal(t, "4", call.Meta[MetaCount])
}

func TestGenerateSingle_TemplateNotFound(t *testing.T) {
	f := newFixture(t, llm.NewMockProvider())

	_, err := f.svc.GenerateSingle(context.Background(), SingleRequest{TemplateID: 42, DocumentIDs: []int64{1}, Count: 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGenerateFromTemplate(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: `{"questions": [
		{"type": "true_false", "prompt": "Cells divide.", "answer": "true", "explanation": "e"},
		{"type": "matching", "prompt": "Match.", "answer": "1-A", "explanation": "e", "left_items": ["ATP"], "right_items": ["energy"]}
	]}`})
	f := newFixture(t, mock)
	doc, _ := f.addDoc(t, "anything", "Cells divide by mitosis.", true)

	res, err := f.svc.GenerateFromTemplate(context.Background(), TemplateRequest{
		TemplateID:  2,
		DocumentIDs: []int64{doc.ID, 404},
		Count:       2,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{doc.ID}, res.DocumentIDs)
	assert.Equal(t, "review", res.TemplateName)
	assert.Contains(t, res.DetectedTypes, "true_false")
	assert.Contains(t, res.DetectedTypes, "matching")
	require.Len(t, res.Items, 2)
	assert.Equal(t, TrueFalse, res.Items[0].Type)
	assert.Equal(t, Matching, res.Items[1].Type)
	assert.Equal(t, doc.ID, res.Items[1].Source.DocumentID)
	assert.Zero(t, res.Items[1].Source.ChunkID)

	prompt := mock.Calls[0].Messages[0].Content
	assert.Contains(t, prompt, "Document: Cells\nContent: Cells divide by mitosis.")
	assert.Equal(t, "auto", mock.Calls[0].Meta[MetaQuestionType])
}

func TestGenerateFromTemplate_NoDocuments(t *testing.T) {
	f := newFixture(t, llm.NewMockProvider())

	_, err := f.svc.GenerateFromTemplate(context.Background(), TemplateRequest{TemplateID: 2, DocumentIDs: []int64{7, 8}, Count: 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGenerateFromPrompt(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: `[
		{"prompt": "List the noble gases.", "answer": ["He", "Ne", "Ar"], "explanation": "Group 18."}
	]`})
	f := newFixture(t, mock)
	prompt := strings.Repeat("Ask about chemistry. ", 20)

	res, err := f.svc.GenerateFromPrompt(context.Background(), PromptRequest{
		Prompt:       prompt,
		QuestionType: Enumeration,
		Count:        1,
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, []string{"He", "Ne", "Ar"}, res.Items[0].Answer)
	assert.Equal(t, promptSource, res.Items[0].Source.ChunkText)
	assert.Zero(t, res.Items[0].Source.DocumentID)
	assert.Equal(t, Excerpt(prompt, ExcerptRunes), res.PromptPreview)
	assert.Equal(t, "mock", res.Model)

	sent := mock.Calls[0].Messages[0].Content
	assert.True(t, strings.HasPrefix(sent, prompt))
	assert.NotContains(t, sent, "You are teaching")
}

func TestGenerateFromPrompt_Invalid(t *testing.T) {
	f := newFixture(t, llm.NewMockProvider())

	_, err := f.svc.GenerateFromPrompt(context.Background(), PromptRequest{Prompt: "  ", Count: 1})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.svc.GenerateFromPrompt(context.Background(), PromptRequest{Prompt: "x", Count: 0})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.svc.GenerateFromPrompt(context.Background(), PromptRequest{Prompt: "x", QuestionType: "essay", Count: 1})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestGenerateTemplateEnhanced_ParamPrecedence(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: `[
		{"prompt": "The ____ is the powerhouse.", "answer": "mitochondrion", "explanation": "e"},
		{"prompt": "The ____ holds DNA.", "answer": "nucleus", "explanation": "e"}
	]`})
	f := newFixture(t, mock)
	tplTemp := 0.2
	reqTemp := 0.9

	res, err := f.svc.GenerateTemplateEnhanced(context.Background(), TemplateEnhancedRequest{
		Template: templates.Template{
			ID:           5,
			Name:         "cloze drill",
			Content:      "Fill-in drill:\n{{context}}",
			QuestionType: "cloze",
			Params:       templates.Params{Temperature: &tplTemp},
		},
		Documents: []InlineDocument{
			{ID: 11, Title: "Cells", Chapter: "1", Content: "Mitochondria make ATP."},
			{ID: 12, Title: "DNA", Content: "The nucleus holds DNA."},
		},
		QuestionType: TrueFalse,
		Count:        3,
		Params:       ModelParams{Temperature: &reqTemp, MaxTokens: 1500},
	})
	require.NoError(t, err)
	assert.Equal(t, Cloze, res.QuestionType)
	assert.InDelta(t, 0.2, res.Params.Temperature, 1e-9)
	assert.Equal(t, 1500, res.Params.MaxTokens)
	assert.InDelta(t, 1.0, res.Params.TopP, 1e-9)
	assert.Equal(t, []int64{11, 12}, res.DocumentIDs)

	require.Len(t, res.Items, 2)
	assert.Equal(t, 1, res.Shortfall)
	assert.NotEmpty(t, res.Warning)
	for _, it := range res.Items {
		assert.Equal(t, int64(11), it.Source.DocumentID)
	}

	call := mock.Calls[0]
	assert.InDelta(t, 0.2, call.Temperature, 1e-9)
	assert.Equal(t, 1500, call.MaxTokens)
	assert.Contains(t, call.Messages[0].Content, "=== Cells ===\nChapter: 1\nMitochondria make ATP.\n\n=== DNA ===\nThe nucleus holds DNA.")
}

func TestGenerateFromPrompt_OfflineProviderMixed(t *testing.T) {
	f := newFixture(t, NewOfflineProvider())

	res, err := f.svc.GenerateFromPrompt(context.Background(), PromptRequest{
		Prompt:       "Photosynthesis turns light into chemical energy.",
		QuestionType: Mixed,
		Count:        8,
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 8)
	seen := map[QuestionType]bool{}
	for _, it := range res.Items {
		seen[it.Type] = true
	}
	assert.Len(t, seen, 8)
	assert.Equal(t, "offline", res.Model)
}

func TestGenerateBasic_OfflineProviderEveryType(t *testing.T) {
	for _, qt := range ConcreteTypes() {
		t.Run(string(qt), func(t *testing.T) {
			f := newFixture(t, NewOfflineProvider())
			doc, _ := f.addDoc(t, basicQuery("biology"), "Cells divide by mitosis.", true)

			res, err := f.svc.GenerateBasic(context.Background(), BasicRequest{
				Subject:    "biology",
				DocumentID: doc.ID,
				Types:      map[QuestionType]int{qt: 2},
			})
			require.NoError(t, err)
			assert.Len(t, res.Items, 2)
			assert.Zero(t, res.Rejected)
		})
	}
}

func TestGenerate_ContextCancelled(t *testing.T) {
	f := newFixture(t, llm.NewMockProvider(llm.MockResponse{Content: choiceItems(3)}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.GenerateFromPrompt(ctx, PromptRequest{Prompt: "x", Count: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
