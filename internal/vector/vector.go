// Package vector holds the similarity math shared by the in-process stores.
package vector

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Cosine returns the cosine similarity of a and b, i.e. 1 - cosine distance.
// Vectors of different length or with zero magnitude score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Candidate is one scored entry handed to Rank. Seq is the insertion order
// used to break similarity ties.
type Candidate struct {
	Seq        int64
	Similarity float64
}

// Rank keeps candidates whose similarity is strictly above threshold, orders
// them by descending similarity (ties by ascending Seq) and returns at most
// topK of them. topK <= 0 yields nothing.
func Rank(cands []Candidate, topK int, threshold float64) []Candidate {
	if topK <= 0 {
		return nil
	}
	kept := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if math.IsNaN(c.Similarity) || c.Similarity <= threshold {
			continue
		}
		kept = append(kept, c)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Similarity != kept[j].Similarity {
			return kept[i].Similarity > kept[j].Similarity
		}
		return kept[i].Seq < kept[j].Seq
	})
	if len(kept) > topK {
		kept = kept[:topK]
	}
	return kept
}

// Literal formats v as a pgvector text literal: "[0.100000,0.200000]".
func Literal(v []float32) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.6f", x)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// ParseLiteral is the inverse of Literal.
func ParseLiteral(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("vector literal must be bracketed: %q", truncate(s, 32))
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []float32{}, nil
	}
	fields := strings.Split(body, ",")
	out := make([]float32, len(fields))
	for i, f := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return nil, fmt.Errorf("vector component %d: %w", i, err)
		}
		out[i] = float32(x)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
