package quizgen

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/abhisek/quizrag/internal/logger"
)

// Rejection records why one candidate was dropped.
type Rejection struct {
	Index  int          `json:"index"`
	Type   QuestionType `json:"type"`
	Reason string       `json:"reason"`
}

// Validator normalizes raw candidates and checks them against the
// structural contract of their question type. Validation is per item: a bad
// candidate never invalidates its siblings.
type Validator struct {
	log *logger.Logger
}

// NewValidator creates a Validator. A nil logger discards warnings.
func NewValidator(log *logger.Logger) *Validator {
	if log == nil {
		log = logger.Nop()
	}
	return &Validator{log: log}
}

// Validate returns the accepted questions in input order and a rejection for
// every dropped candidate. For mixed and auto requests the item's own "type"
// field selects the rule when it names a concrete type; otherwise only the
// base fields are checked.
func (v *Validator) Validate(t QuestionType, raw []map[string]any) ([]Question, []Rejection) {
	var valid []Question
	var rejects []Rejection
	for i, item := range raw {
		itemType := effectiveType(t, item)
		q, err := v.validateOne(itemType, item)
		if err != nil {
			rejects = append(rejects, Rejection{Index: i, Type: itemType, Reason: err.Error()})
			v.log.Warn("question rejected", "index", i, "type", itemType, "reason", err.Error())
			continue
		}
		valid = append(valid, q)
	}
	return valid, rejects
}

func effectiveType(requested QuestionType, item map[string]any) QuestionType {
	if requested.IsConcrete() {
		return requested
	}
	if s, ok := item["type"].(string); ok {
		if t, err := ParseQuestionType(s); err == nil && t.IsConcrete() {
			return t
		}
	}
	return requested
}

func (v *Validator) validateOne(t QuestionType, item map[string]any) (Question, error) {
	q := Question{
		Type:        t,
		Prompt:      scalarString(item["prompt"]),
		Explanation: scalarString(item["explanation"]),
	}
	if q.Prompt == "" {
		return Question{}, errors.New("missing prompt")
	}
	if q.Explanation == "" {
		return Question{}, errors.New("missing explanation")
	}

	q.Answer = normalizeAnswer(t, item["answer"])
	if isEmptyAnswer(q.Answer) {
		return Question{}, errors.New("missing answer")
	}

	doc := map[string]any{
		"prompt":      q.Prompt,
		"explanation": q.Explanation,
		"answer":      jsonValue(q.Answer),
	}

	switch t {
	case SingleChoice:
		q.Options = stringList(item["options"])
		doc["options"] = jsonValue(q.Options)
	case Matching:
		q.QuestionData = matchingData(item)
		if q.QuestionData != nil {
			doc["question_data"] = map[string]any{
				"left_items":  jsonValue(q.QuestionData.LeftItems),
				"right_items": jsonValue(q.QuestionData.RightItems),
			}
		}
	case Sequence:
		q.Items = stringList(item["items"])
		doc["items"] = jsonValue(q.Items)
	case SymbolIdentification:
		q.Symbols = stringList(item["symbols"])
		doc["symbols"] = jsonValue(q.Symbols)
	case TrueFalse, Cloze, ShortAnswer, Enumeration, Mixed, Auto:
	default:
		return Question{}, fmt.Errorf("unsupported question type %q", t)
	}

	sch, err := compiledSchema(t)
	if err != nil {
		return Question{}, fmt.Errorf("schema: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return Question{}, errors.New(schemaReason(err))
	}

	if d := q.QuestionData; d != nil && len(d.LeftItems) != len(d.RightItems) {
		v.log.Warn("matching columns differ in length",
			"left", len(d.LeftItems), "right", len(d.RightItems), "prompt", q.Prompt)
	}
	return q, nil
}

// normalizeAnswer lowercases true/false answers (accepting JSON booleans),
// keeps arrays as []string and trims scalar answers.
func normalizeAnswer(t QuestionType, v any) any {
	switch t {
	case TrueFalse:
		if b, ok := v.(bool); ok {
			return strconv.FormatBool(b)
		}
		return strings.ToLower(scalarString(v))
	case Sequence, Enumeration:
		if _, ok := v.([]any); ok {
			return stringList(v)
		}
		return scalarString(v)
	}
	if _, ok := v.([]any); ok {
		return stringList(v)
	}
	return scalarString(v)
}

func isEmptyAnswer(a any) bool {
	switch a := a.(type) {
	case string:
		return a == ""
	case []string:
		return len(a) == 0
	}
	return a == nil
}

// matchingData reads question_data, filling either column from a top-level
// left_items/right_items array when the nested one is absent.
func matchingData(item map[string]any) *MatchingData {
	var left, right []string
	if qd, ok := item["question_data"].(map[string]any); ok {
		left = stringList(qd["left_items"])
		right = stringList(qd["right_items"])
	}
	if len(left) == 0 {
		left = stringList(item["left_items"])
	}
	if len(right) == 0 {
		right = stringList(item["right_items"])
	}
	if left == nil && right == nil {
		return nil
	}
	return &MatchingData{LeftItems: left, RightItems: right}
}

// scalarString renders strings, numbers and booleans trimmed. Anything
// else is treated as absent.
func scalarString(v any) string {
	switch v := v.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// stringList coerces a JSON array to non-blank strings. Non-arrays yield nil.
func stringList(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s := scalarString(e); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// jsonValue converts normalized values to the decoded-JSON shapes the
// schema validator accepts.
func jsonValue(v any) any {
	switch v := v.(type) {
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case nil:
		return nil
	}
	return v
}

// schemaReason drops the schema URL header line and flattens the causes.
func schemaReason(err error) string {
	lines := strings.Split(strings.TrimSpace(err.Error()), "\n")
	if len(lines) == 1 {
		return lines[0]
	}
	causes := make([]string, 0, len(lines)-1)
	for _, l := range lines[1:] {
		if l = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "-")); l != "" {
			causes = append(causes, l)
		}
	}
	return strings.Join(causes, "; ")
}
