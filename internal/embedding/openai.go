package embedding

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI embeddings client.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string // Default: text-embedding-3-small
	Dimensions int
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dims   int
}

// NewOpenAIEmbedder creates an OpenAIEmbedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	model := openai.SmallEmbedding3
	if cfg.Model != "" {
		model = openai.EmbeddingModel(cfg.Model)
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}

	ocfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		ocfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{client: openai.NewClientWithConfig(ocfg), model: model, dims: dims}, nil
}

func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      o.model,
		Dimensions: o.dims,
	})
	if err != nil {
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return nil, fmt.Errorf("openai embeddings (status %d): %w", reqErr.HTTPStatusCode, err)
		}
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}
	v := resp.Data[0].Embedding
	if err := checkDims(len(v), o.dims); err != nil {
		return nil, err
	}
	return v, nil
}

func (o *OpenAIEmbedder) Dimensions() int { return o.dims }

func (o *OpenAIEmbedder) Model() string { return string(o.model) }
