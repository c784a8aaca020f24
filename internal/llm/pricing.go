package llm

import "strings"

// Price is USD per million tokens.
type Price struct {
	Input  float64
	Output float64
}

// Cost is the USD cost of one call or an aggregate of calls.
func (p Price) Cost(inputTokens, outputTokens int) float64 {
	return (float64(inputTokens)*p.Input + float64(outputTokens)*p.Output) / 1e6
}

// LookupCost returns the price of model, or nil when it is unknown.
// OpenRouter IDs ("vendor/model") fall back to the bare model name.
func LookupCost(model string) *Price {
	if p, ok := prices[model]; ok {
		return &p
	}
	if _, bare, ok := strings.Cut(model, "/"); ok {
		bare = strings.TrimSuffix(bare, ":free")
		if p, ok := prices[bare]; ok {
			return &p
		}
	}
	return nil
}

// List prices, refreshed by hand.
var prices = map[string]Price{
	"claude-3-5-haiku-20241022":  {0.8, 4},
	"claude-3.5-haiku":           {0.8, 4},
	"claude-3-7-sonnet-20250219": {3, 15},
	"claude-haiku-4-5-20251001":  {1, 5},
	"claude-sonnet-4-20250514":   {3, 15},
	"claude-sonnet-4-5-20250929": {3, 15},

	"gpt-4o":       {2.5, 10},
	"gpt-4o-mini":  {0.15, 0.6},
	"gpt-4.1":      {2, 8},
	"gpt-4.1-mini": {0.4, 1.6},

	"gemini-2.0-flash":     {0.1, 0.4},
	"gemini-2.0-flash-exp": {0, 0},
	"gemini-2.0-pro":       {1.25, 10},
	"gemini-2.5-flash":     {0.3, 2.5},
	"gemini-2.5-pro":       {1.25, 10},

	"llama-3.1-70b-instruct": {0.4, 0.4},

	"mock": {0, 0},
}
