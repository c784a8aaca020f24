package quizgen

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/abhisek/quizrag/internal/llm"
)

// Meta keys the service sets on every llm.Request.
const (
	MetaQuestionType = "question_type"
	MetaCount        = "count"
)

// OfflineProvider is a deterministic llm.Provider that answers with
// well-formed questions built from the prompt's own material. It backs the
// "mock" provider selection so the pipeline runs end to end without network
// access.
type OfflineProvider struct{}

// NewOfflineProvider returns an OfflineProvider.
func NewOfflineProvider() *OfflineProvider { return &OfflineProvider{} }

var _ llm.Provider = (*OfflineProvider)(nil)

func (o *OfflineProvider) ModelID() string { return "offline" }

func (o *OfflineProvider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := ParseQuestionType(req.Meta[MetaQuestionType])
	if err != nil {
		t = Auto
	}
	count, err := strconv.Atoi(req.Meta[MetaCount])
	if err != nil || count <= 0 {
		count = 1
	}

	var prompt string
	for _, m := range req.Messages {
		if m.Role == llm.RoleUser {
			prompt = m.Content
		}
	}
	facts := materialFacts(prompt)

	concrete := ConcreteTypes()
	items := make([]map[string]any, count)
	for i := range items {
		it := t
		if !t.IsConcrete() {
			it = concrete[i%len(concrete)]
		}
		items[i] = offlineItem(it, i, facts[i%len(facts)])
	}

	body, err := json.Marshal(items)
	if err != nil {
		return nil, &llm.ErrInvalidResponse{Err: err}
	}
	return &llm.Response{
		Content:    string(body),
		Model:      o.ModelID(),
		StopReason: "end",
		Usage: llm.Usage{
			InputTokens:  len([]rune(prompt)) / 4,
			OutputTokens: len(body) / 4,
			TotalTokens:  (len([]rune(prompt)) + len(body)) / 4,
		},
	}, nil
}

var materialRe = regexp.MustCompile(`(?s)<material>\s*(.*?)\s*</material>`)

// materialFacts picks short statements out of the prompt: the retrieved
// material when tagged, otherwise the prompt's non-empty lines.
func materialFacts(prompt string) []string {
	src := prompt
	if m := materialRe.FindStringSubmatch(prompt); m != nil {
		src = m[1]
	}
	var facts []string
	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		facts = append(facts, Excerpt(line, 80))
		if len(facts) == 8 {
			break
		}
	}
	if len(facts) == 0 {
		facts = []string{"the supplied material"}
	}
	return facts
}

func offlineItem(t QuestionType, i int, fact string) map[string]any {
	n := i + 1
	item := map[string]any{
		"type":        string(t),
		"explanation": fmt.Sprintf("Stated in the material: %s", fact),
	}
	switch t {
	case SingleChoice:
		item["prompt"] = fmt.Sprintf("Question %d: which statement appears in the material?", n)
		item["options"] = []string{"A. " + fact, "B. None of the material", "C. The opposite claim", "D. An unrelated claim"}
		item["answer"] = "A"
	case Cloze:
		item["prompt"] = fmt.Sprintf("Question %d: complete the statement: ____ (%d)", n, n)
		item["answer"] = fact
	case ShortAnswer:
		item["prompt"] = fmt.Sprintf("Question %d: summarise the point the material makes.", n)
		item["answer"] = fact
	case TrueFalse:
		item["prompt"] = fmt.Sprintf("Question %d: the material states: %s", n, fact)
		item["answer"] = "true"
	case Matching:
		item["prompt"] = fmt.Sprintf("Question %d: match each label to its content.", n)
		item["question_data"] = map[string]any{
			"left_items":  []string{"1", "2"},
			"right_items": []string{fact, "not in the material"},
		}
		item["answer"] = "1-A, 2-B"
	case Sequence:
		item["prompt"] = fmt.Sprintf("Question %d: put the steps in order.", n)
		item["items"] = []string{"read: " + fact, "state the claim", "check it"}
		item["answer"] = []string{"state the claim", "read: " + fact, "check it"}
	case Enumeration:
		item["prompt"] = fmt.Sprintf("Question %d: list the statements from the material.", n)
		item["answer"] = []string{fact}
	case SymbolIdentification:
		item["prompt"] = fmt.Sprintf("Question %d: identify what the symbol refers to.", n)
		item["symbols"] = []string{fmt.Sprintf("S%d", n)}
		item["answer"] = fact
	}
	return item
}
