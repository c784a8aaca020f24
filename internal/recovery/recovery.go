// Package recovery extracts a list of JSON objects from free-form LLM text.
package recovery

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrUnrecoverable is returned when no strategy yields a list.
var ErrUnrecoverable = errors.New("no JSON list could be recovered from response")

// Strategy names the step that produced a Result.
type Strategy string

const (
	StrategyDirect  Strategy = "direct"
	StrategyFenced  Strategy = "fenced"
	StrategyBracket Strategy = "bracket"
	StrategyObjects Strategy = "objects"
)

// Result is the recovered list. Items holds only the JSON objects found;
// other array elements are dropped.
type Result struct {
	Items    []map[string]any
	Strategy Strategy
}

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \t]*\r?\n?(.*?)```")

// Recover tries, in order: parsing the whole text, parsing the contents of
// each fenced code block, the first balanced [...] span, and finally every
// balanced {...} span gathered into one list. A parsed object carrying a
// "questions" array is unwrapped; any other object counts as a list of one.
func Recover(text string) (Result, error) {
	text = strings.TrimSpace(strings.TrimPrefix(text, "\ufeff"))
	if text == "" {
		return Result{}, ErrUnrecoverable
	}

	if items, ok := parseList(text); ok {
		return Result{Items: items, Strategy: StrategyDirect}, nil
	}

	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		if items, ok := parseList(strings.TrimSpace(m[1])); ok {
			return Result{Items: items, Strategy: StrategyFenced}, nil
		}
	}

	objects := objectSpans(text)
	for i := 0; i < len(text); i++ {
		if text[i] != '[' || insideAny(objects, i) {
			continue
		}
		end, ok := balancedEnd(text, i)
		if !ok {
			continue
		}
		if items, ok := parseList(text[i : end+1]); ok {
			return Result{Items: items, Strategy: StrategyBracket}, nil
		}
	}

	if items, ok := collectObjects(text, objects); ok {
		return Result{Items: items, Strategy: StrategyObjects}, nil
	}

	return Result{}, ErrUnrecoverable
}

// parseList decodes s and shapes it into a list of objects.
func parseList(s string) ([]map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return asList(v)
}

func asList(v any) ([]map[string]any, bool) {
	switch t := v.(type) {
	case []any:
		items := make([]map[string]any, 0, len(t))
		for _, e := range t {
			if obj, ok := e.(map[string]any); ok {
				items = append(items, obj)
			}
		}
		// A non-empty array without a single object is not a question list.
		if len(t) > 0 && len(items) == 0 {
			return nil, false
		}
		return items, true
	case map[string]any:
		if qs, ok := t["questions"]; ok {
			return asList(qs)
		}
		return []map[string]any{t}, true
	}
	return nil, false
}

type span struct{ start, end int }

// objectSpans finds the balanced {...} spans not nested in an earlier one.
func objectSpans(text string) []span {
	var spans []span
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end, ok := balancedEnd(text, i)
		if !ok {
			continue
		}
		spans = append(spans, span{i, end})
		i = end
	}
	return spans
}

func insideAny(spans []span, i int) bool {
	for _, sp := range spans {
		if i > sp.start && i < sp.end {
			return true
		}
	}
	return false
}

// collectObjects parses every object span and flattens the results, so a
// {"questions": [...]} wrapper contributes its questions. Spans that fail to
// parse are skipped.
func collectObjects(text string, spans []span) ([]map[string]any, bool) {
	var items []map[string]any
	for _, sp := range spans {
		var obj map[string]any
		if err := json.Unmarshal([]byte(text[sp.start:sp.end+1]), &obj); err != nil {
			continue
		}
		if list, ok := asList(obj); ok {
			items = append(items, list...)
		}
	}
	return items, len(items) > 0
}

// balancedEnd returns the index of the bracket closing the one at start.
// Brackets inside JSON strings are ignored.
func balancedEnd(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i, true
			}
			if depth < 0 {
				return 0, false
			}
		}
	}
	return 0, false
}
