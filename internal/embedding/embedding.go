// Package embedding maps text to fixed-length vectors for similarity search.
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/redis/go-redis/v9"

	"github.com/abhisek/quizrag/internal/logger"
)

// DefaultDimensions matches text-embedding-3-small and the hash embedder.
const DefaultDimensions = 1536

// Embedder turns text into a vector of exactly Dimensions() components.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	// Model names the embedding model; cache keys are scoped by it.
	Model() string
}

// EmbedBatch embeds texts in order, stopping at the first failure.
func EmbedBatch(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Config selects and configures an Embedder.
type Config struct {
	// Provider is "hash", "openai" or "gemini".
	Provider   string
	Dimensions int

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string

	// RedisURL enables the vector cache when set.
	RedisURL string
}

// New builds the configured Embedder, wrapped in a Redis cache when
// RedisURL is set.
func New(ctx context.Context, cfg Config, log *logger.Logger) (Embedder, error) {
	if log == nil {
		log = logger.Nop()
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}

	var e Embedder
	var err error
	switch cfg.Provider {
	case "", "hash":
		e = NewHashEmbedder(dims)
	case "openai":
		e, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL, Model: cfg.OpenAIModel, Dimensions: dims,
		})
	case "gemini":
		e, err = NewGeminiEmbedder(ctx, GeminiConfig{
			APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel, Dimensions: dims,
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s embedder: %w", cfg.Provider, err)
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, embedding cache disabled", "error", err.Error())
			rdb.Close()
		} else {
			e = NewCachedEmbedder(e, NewRedisCache(rdb, 0), log)
		}
	}

	log.Info("embedder ready", "model", e.Model(), "dims", e.Dimensions())
	return e, nil
}

// normalize scales v to unit length in place.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
}

func checkDims(got, want int) error {
	if got != want {
		return fmt.Errorf("embedding has %d dimensions, want %d", got, want)
	}
	return nil
}
