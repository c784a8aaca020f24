// Package templates supplies prompt templates to the generator.
package templates

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/quizrag/internal/store"
)

// Params are optional generation overrides carried by a template.
type Params struct {
	Temperature      *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens        int      `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	TopP             *float64 `yaml:"top_p,omitempty" json:"top_p,omitempty"`
	FrequencyPenalty *float64 `yaml:"frequency_penalty,omitempty" json:"frequency_penalty,omitempty"`
}

// Resolved are fully defaulted generation parameters.
type Resolved struct {
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	TopP             float64 `json:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
}

// Resolve layers template params over request values over defaults
// (temperature 0.7, 2000 tokens, top_p 1.0, no frequency penalty).
func (p Params) Resolve(reqTemperature *float64, reqMaxTokens int) Resolved {
	r := Resolved{Temperature: 0.7, MaxTokens: 2000, TopP: 1.0}
	if reqTemperature != nil {
		r.Temperature = *reqTemperature
	}
	if reqMaxTokens > 0 {
		r.MaxTokens = reqMaxTokens
	}
	if p.Temperature != nil {
		r.Temperature = *p.Temperature
	}
	if p.MaxTokens > 0 {
		r.MaxTokens = p.MaxTokens
	}
	if p.TopP != nil {
		r.TopP = *p.TopP
	}
	if p.FrequencyPenalty != nil {
		r.FrequencyPenalty = *p.FrequencyPenalty
	}
	return r
}

// Template is an externally owned prompt skeleton. Content contains a
// {{context}} or {context} placeholder.
type Template struct {
	ID           int64  `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	Subject      string `yaml:"subject" json:"subject"`
	Content      string `yaml:"content" json:"content"`
	QuestionType string `yaml:"question_type,omitempty" json:"question_type,omitempty"`
	Params       Params `yaml:"params,omitempty" json:"params,omitempty"`
}

// Source looks templates up by ID. Missing templates wrap store.ErrNotFound.
type Source interface {
	Get(ctx context.Context, id int64) (Template, error)
	List(ctx context.Context) ([]Template, error)
}

// MemorySource is a Source over an in-memory set.
type MemorySource struct {
	mu   sync.RWMutex
	byID map[int64]Template
}

// NewMemorySource returns a MemorySource holding tpls.
func NewMemorySource(tpls ...Template) *MemorySource {
	m := &MemorySource{byID: make(map[int64]Template, len(tpls))}
	for _, t := range tpls {
		m.byID[t.ID] = t
	}
	return m
}

// Put adds or replaces a template.
func (m *MemorySource) Put(t Template) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[t.ID] = t
}

func (m *MemorySource) Get(_ context.Context, id int64) (Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.byID[id]
	if !ok {
		return Template{}, fmt.Errorf("template %d: %w", id, store.ErrNotFound)
	}
	return t, nil
}

func (m *MemorySource) List(_ context.Context) ([]Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Template, 0, len(m.byID))
	for _, t := range m.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LoadFile reads a YAML list of templates into a MemorySource. Templates
// without an ID are numbered by position, starting at 1.
func LoadFile(path string) (*MemorySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	var tpls []Template
	if err := yaml.Unmarshal(data, &tpls); err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", path, err)
	}

	seen := make(map[int64]bool, len(tpls))
	for i := range tpls {
		if tpls[i].ID == 0 {
			tpls[i].ID = int64(i + 1)
		}
		if seen[tpls[i].ID] {
			return nil, fmt.Errorf("parse templates %s: duplicate id %d", path, tpls[i].ID)
		}
		seen[tpls[i].ID] = true
		if !HasPlaceholder(tpls[i].Content) {
			return nil, fmt.Errorf("template %d (%s) has no context placeholder", tpls[i].ID, tpls[i].Name)
		}
	}
	return NewMemorySource(tpls...), nil
}

// Render substitutes material for every {{context}} and {context} placeholder.
func Render(content, material string) string {
	out := strings.ReplaceAll(content, "{{context}}", material)
	return strings.ReplaceAll(out, "{context}", material)
}

// HasPlaceholder reports whether content can receive context.
func HasPlaceholder(content string) bool {
	return strings.Contains(content, "{context}")
}

// typeKeywords maps question type tags to the phrases that announce them.
var typeKeywords = []struct {
	tag      string
	keywords []string
}{
	{"single_choice", []string{"單選", "選擇題", "single choice", "multiple choice", "single_choice"}},
	{"cloze", []string{"填空", "克漏字", "cloze", "fill in the blank", "fill-in-the-blank"}},
	{"short_answer", []string{"簡答", "問答", "short answer", "short_answer"}},
	{"true_false", []string{"是非", "對錯", "true/false", "true or false", "true_false"}},
	{"matching", []string{"配對", "連連看", "matching", "match the"}},
	{"sequence", []string{"排序", "順序", "sequence", "put in order", "correct order"}},
	{"enumeration", []string{"列舉", "enumerat", "list all"}},
	{"symbol_identification", []string{"符號", "symbol"}},
}

// DetectTypes returns the question type tags a template's wording asks
// for, in canonical order, or ["auto"] when none is recognised.
func DetectTypes(content string) []string {
	lower := strings.ToLower(content)
	var out []string
	for _, tk := range typeKeywords {
		for _, kw := range tk.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, tk.tag)
				break
			}
		}
	}
	if len(out) == 0 {
		return []string{"auto"}
	}
	return out
}
