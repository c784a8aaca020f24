// Package quizgen turns retrieved context into validated quiz questions.
package quizgen

import (
	"fmt"
	"strings"
)

// QuestionType is the closed set of question shapes.
type QuestionType string

const (
	SingleChoice         QuestionType = "single_choice"
	Cloze                QuestionType = "cloze"
	ShortAnswer          QuestionType = "short_answer"
	TrueFalse            QuestionType = "true_false"
	Matching             QuestionType = "matching"
	Sequence             QuestionType = "sequence"
	Enumeration          QuestionType = "enumeration"
	SymbolIdentification QuestionType = "symbol_identification"
	Mixed                QuestionType = "mixed"
	Auto                 QuestionType = "auto"
)

// AllTypes returns every question type in canonical order.
func AllTypes() []QuestionType {
	return []QuestionType{
		SingleChoice, Cloze, ShortAnswer, TrueFalse, Matching,
		Sequence, Enumeration, SymbolIdentification, Mixed, Auto,
	}
}

// ConcreteTypes returns the types that carry their own shape.
func ConcreteTypes() []QuestionType {
	return AllTypes()[:8]
}

// ParseQuestionType accepts a type tag in any case and with surrounding
// space.
func ParseQuestionType(s string) (QuestionType, error) {
	t := QuestionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown question type %q", ErrInvalidRequest, s)
	}
	return t, nil
}

// Valid reports whether t is a member of the closed set.
func (t QuestionType) Valid() bool {
	switch t {
	case SingleChoice, Cloze, ShortAnswer, TrueFalse, Matching,
		Sequence, Enumeration, SymbolIdentification, Mixed, Auto:
		return true
	}
	return false
}

// IsConcrete is false for the generic mixed and auto tags.
func (t QuestionType) IsConcrete() bool {
	return t.Valid() && t != Mixed && t != Auto
}

func (t QuestionType) String() string { return string(t) }

// MatchingData holds the two columns of a matching question.
type MatchingData struct {
	LeftItems  []string `json:"left_items"`
	RightItems []string `json:"right_items"`
}

// Question is a candidate that passed validation. Answer is a string, or
// a []string for sequence and enumeration questions.
type Question struct {
	Type         QuestionType  `json:"type"`
	Prompt       string        `json:"prompt"`
	Options      []string      `json:"options,omitempty"`
	Answer       any           `json:"answer"`
	Explanation  string        `json:"explanation"`
	QuestionData *MatchingData `json:"question_data,omitempty"`
	Items        []string      `json:"items,omitempty"`
	Symbols      []string      `json:"symbols,omitempty"`
}

// Source attributes a question to the passage it was generated from.
// ChunkID is 0 when the question came from whole-document content.
type Source struct {
	DocumentID int64  `json:"document_id"`
	ChunkID    int64  `json:"chunk_id"`
	ChunkText  string `json:"chunk_text"`
}

// QuestionItem is a validated, attributed question handed to the caller.
type QuestionItem struct {
	Question
	Source Source `json:"source"`
}

// ModelParams are the caller's generation overrides.
type ModelParams struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Model       string   `json:"model,omitempty"`
}
