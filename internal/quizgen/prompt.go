package quizgen

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an experienced educator who writes exam questions strictly from the supplied teaching material.

Rules:
- Every question must be answerable from the material alone.
- Every question has a prompt, an answer and an explanation.
- Respond with a JSON array only. No prose, no markdown fences.`

// formatInstruction is shared by every mode.
const formatInstruction = `Return a JSON array. Each element is an object with:
  "type": the question type,
  "prompt": the question text,
  "answer": the correct answer,
  "explanation": why the answer is correct,
plus the extra fields required by the question type.`

// typeHint describes the required shape of one question type. The switch is
// exhaustive over the closed set; a new type that is not added here panics
// in tests instead of silently producing an unshaped prompt.
func typeHint(t QuestionType) string {
	switch t {
	case SingleChoice:
		return `single_choice: include "options", an array of at least 2 (normally 4) strings such as "A. ...". "answer" is the text or letter of the correct option.`
	case Cloze:
		return `cloze: "prompt" contains a blank written as ____. "answer" is the missing text.`
	case ShortAnswer:
		return `short_answer: "answer" is a brief but complete sentence.`
	case TrueFalse:
		return `true_false: "prompt" is a statement. "answer" is exactly "true" or "false" in lowercase.`
	case Matching:
		return `matching: include "question_data" with "left_items" and "right_items", two non-empty arrays of strings of equal length. "answer" pairs them, e.g. "1-B, 2-A".`
	case Sequence:
		return `sequence: include "items", the steps in scrambled order. "answer" is an array with the same steps in the correct order.`
	case Enumeration:
		return `enumeration: "answer" is a non-empty array listing every expected element.`
	case SymbolIdentification:
		return `symbol_identification: include "symbols", a non-empty array of the symbols to identify. "answer" names what they represent.`
	case Mixed, Auto:
		return `mixed: vary the question types. Set "type" on every element to one of single_choice, cloze, short_answer, true_false, matching, sequence, enumeration, symbol_identification and include that type's extra fields.`
	}
	panic(fmt.Sprintf("quizgen: no prompt hint for question type %q", t))
}

// BuildBasic frames retrieved context with the subject for a plain
// subject-driven request.
func BuildBasic(subject, material string, t QuestionType, count int) string {
	var b strings.Builder
	if subject != "" {
		fmt.Fprintf(&b, "You are teaching %s.\n", subject)
	}
	b.WriteString("Using only the teaching material below, write ")
	fmt.Fprintf(&b, "%d %s question(s).\n\n", count, t)
	b.WriteString("<material>\n")
	b.WriteString(material)
	b.WriteString("\n</material>\n\n")
	writeTail(&b, t, count)
	return b.String()
}

// BuildTemplate appends the format rules to an already rendered template.
// The template text is used verbatim.
func BuildTemplate(rendered string, t QuestionType, count int) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(rendered, "\n"))
	b.WriteString("\n\n")
	writeTail(&b, t, count)
	return b.String()
}

// BuildPrompt appends the format rules to a caller's free-form prompt.
func BuildPrompt(prompt string, t QuestionType, count int) string {
	return BuildTemplate(prompt, t, count)
}

func writeTail(b *strings.Builder, t QuestionType, count int) {
	b.WriteString(formatInstruction)
	b.WriteString("\n\nQuestion type requirements:\n")
	b.WriteString(typeHint(t))
	fmt.Fprintf(b, "\n\nGenerate exactly %d question(s).", count)
}
