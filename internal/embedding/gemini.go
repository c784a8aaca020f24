package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini embeddings client.
type GeminiConfig struct {
	APIKey     string
	Model      string // Default: gemini-embedding-001
	Dimensions int
	BaseURL    string
}

// GeminiEmbedder calls the Gemini embedContent API. Truncated outputs are
// renormalised to unit length.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dims   int
}

// NewGeminiEmbedder creates a GeminiEmbedder.
func NewGeminiEmbedder(ctx context.Context, cfg GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-embedding-001"
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}

	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: model, dims: dims}, nil
}

func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dims := int32(g.dims)
	resp, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: %w", err)
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("gemini embeddings: empty response")
	}
	v := resp.Embeddings[0].Values
	if err := checkDims(len(v), g.dims); err != nil {
		return nil, err
	}
	normalize(v)
	return v, nil
}

func (g *GeminiEmbedder) Dimensions() int { return g.dims }

func (g *GeminiEmbedder) Model() string { return g.model }
