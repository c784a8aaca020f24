package quizgen

import (
	"fmt"
	"sort"
	"strings"
)

// Buffer is how many extra candidates are requested to absorb validation
// loss.
const Buffer = 2

// ExcerptRunes bounds the chunk text attached to each question's source.
const ExcerptRunes = 200

// Assembly is the outcome of assembling one model response.
type Assembly struct {
	Items     []QuestionItem
	Requested int
	Shortfall int
	Warning   string
	Rejected  []Rejection
}

// Assemble truncates the validated questions to requested and attributes
// them to sources round-robin. Zero valid questions is an error carrying a
// diagnostic reason; fewer than requested is reported through Shortfall
// and Warning, never padded.
func Assemble(t QuestionType, requested int, valid []Question, rejects []Rejection, sources []Source) (Assembly, error) {
	if len(valid) == 0 {
		return Assembly{}, &ErrNoValidQuestions{
			Type:       t,
			Candidates: len(rejects),
			Reason:     rejectionSummary(rejects),
		}
	}
	if len(valid) > requested {
		valid = valid[:requested]
	}

	items := make([]QuestionItem, len(valid))
	for i, q := range valid {
		items[i] = QuestionItem{Question: q}
		if len(sources) > 0 {
			src := sources[i%len(sources)]
			src.ChunkText = Excerpt(src.ChunkText, ExcerptRunes)
			items[i].Source = src
		}
	}

	a := Assembly{Items: items, Requested: requested, Rejected: rejects}
	if len(items) < requested {
		a.Shortfall = requested - len(items)
		a.Warning = fmt.Sprintf("only %d of %d requested %s questions passed validation", len(items), requested, t)
	}
	return a, nil
}

// Excerpt returns the first n runes of s, marked with "..." when cut.
func Excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func rejectionSummary(rejects []Rejection) string {
	if len(rejects) == 0 {
		return "model returned no questions"
	}
	counts := make(map[string]int)
	for _, r := range rejects {
		counts[r.Reason]++
	}
	reasons := make([]string, 0, len(counts))
	for reason := range counts {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	parts := make([]string, len(reasons))
	for i, reason := range reasons {
		parts[i] = fmt.Sprintf("%s (x%d)", reason, counts[reason])
	}
	return "all candidates rejected: " + strings.Join(parts, "; ")
}
