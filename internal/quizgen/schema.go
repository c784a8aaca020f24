package quizgen

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaCache caches compiled item schemas by question type.
var schemaCache sync.Map // map[QuestionType]*jsonschema.Schema

var nonEmptyString = map[string]any{"type": "string", "minLength": 1}

func stringArray(min int) map[string]any {
	return map[string]any{
		"type":     "array",
		"minItems": min,
		"items":    nonEmptyString,
	}
}

// itemSchema is the structural contract of one normalized item of type t.
// Generic types only carry the base fields.
func itemSchema(t QuestionType) map[string]any {
	props := map[string]any{
		"prompt":      nonEmptyString,
		"explanation": nonEmptyString,
		"answer": map[string]any{
			"oneOf": []any{nonEmptyString, stringArray(1)},
		},
	}
	required := []any{"prompt", "answer", "explanation"}

	switch t {
	case SingleChoice:
		props["options"] = stringArray(2)
		required = append(required, "options")
	case TrueFalse:
		props["answer"] = map[string]any{"enum": []any{"true", "false"}}
	case Matching:
		props["question_data"] = map[string]any{
			"type": "object",
			"properties": map[string]any{
				"left_items":  stringArray(1),
				"right_items": stringArray(1),
			},
			"required": []any{"left_items", "right_items"},
		}
		required = append(required, "question_data")
	case Sequence:
		props["items"] = stringArray(1)
		props["answer"] = stringArray(1)
		required = append(required, "items")
	case Enumeration:
		props["answer"] = stringArray(1)
	case SymbolIdentification:
		props["symbols"] = stringArray(1)
		required = append(required, "symbols")
	case Cloze, ShortAnswer, Mixed, Auto:
	default:
		panic(fmt.Sprintf("quizgen: no schema for question type %q", t))
	}

	return map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// compiledSchema returns a cached compiled schema or compiles and caches it.
func compiledSchema(t QuestionType) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(*jsonschema.Schema), nil
	}

	// The compiler wants a plain decoded JSON value.
	defBytes, err := json.Marshal(itemSchema(t))
	if err != nil {
		return nil, fmt.Errorf("marshal schema definition: %w", err)
	}
	var defParsed any
	if err := json.Unmarshal(defBytes, &defParsed); err != nil {
		return nil, fmt.Errorf("parse schema definition: %w", err)
	}

	c := jsonschema.NewCompiler()
	schemaURL := fmt.Sprintf("schema://question-%s.json", t)
	if err := c.AddResource(schemaURL, defParsed); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	schemaCache.Store(t, compiled)
	return compiled, nil
}
