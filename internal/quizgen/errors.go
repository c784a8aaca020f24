package quizgen

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest marks a request that violates its own invariants, such
// as no positive counts or an unknown question type.
var ErrInvalidRequest = errors.New("invalid generation request")

// ErrMalformedResponse means the model answered with text no recovery
// strategy could turn into a list of questions.
type ErrMalformedResponse struct {
	RawSize int
	Err     error
}

func (e *ErrMalformedResponse) Error() string {
	return fmt.Sprintf("malformed LLM response (%d bytes): %v", e.RawSize, e.Err)
}

func (e *ErrMalformedResponse) Unwrap() error { return e.Err }

// ErrNoValidQuestions means every candidate was rejected. Reason summarises
// why; no placeholder questions are ever substituted.
type ErrNoValidQuestions struct {
	Type       QuestionType
	Candidates int
	Reason     string
}

func (e *ErrNoValidQuestions) Error() string {
	return fmt.Sprintf("no valid %s questions from %d candidates: %s", e.Type, e.Candidates, e.Reason)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
