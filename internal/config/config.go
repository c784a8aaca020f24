// Package config loads process configuration once at startup.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/abhisek/quizrag/internal/embedding"
	"github.com/abhisek/quizrag/internal/ingest"
	"github.com/abhisek/quizrag/internal/llm"
	"github.com/abhisek/quizrag/internal/retrieval"
	"github.com/abhisek/quizrag/internal/store"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config is read-only after Load.
type Config struct {
	LLM       llm.Config
	Embedding embedding.Config
	Retrieval retrieval.Options
	Ingest    ingest.Options

	Store       string
	DBPath      string
	DatabaseURL string

	TemplatesPath string

	HTTPAddr       string
	CORSOrigins    []string
	RequestTimeout time.Duration
	LogMode        string
}

// Load reads an optional .env file (or the files named), then QUIZRAG_*
// environment variables over the defaults.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := Config{
		LLM: llm.ConfigFromEnv(),
		Embedding: embedding.Config{
			Provider:      env("QUIZRAG_EMBEDDER", "hash"),
			OpenAIAPIKey:  firstEnv("QUIZRAG_OPENAI_API_KEY", "OPENAI_API_KEY"),
			OpenAIBaseURL: os.Getenv("QUIZRAG_OPENAI_BASE_URL"),
			OpenAIModel:   os.Getenv("QUIZRAG_EMBEDDING_MODEL"),
			GeminiAPIKey:  firstEnv("QUIZRAG_GEMINI_API_KEY", "GEMINI_API_KEY"),
			GeminiModel:   os.Getenv("QUIZRAG_GEMINI_EMBEDDING_MODEL"),
			RedisURL:      os.Getenv("QUIZRAG_REDIS_URL"),
		},
		Store:         env("QUIZRAG_STORE", StoreSQLite),
		DBPath:        os.Getenv("QUIZRAG_DB"),
		DatabaseURL:   firstEnv("QUIZRAG_DATABASE_URL", "DATABASE_URL"),
		TemplatesPath: os.Getenv("QUIZRAG_TEMPLATES"),
		HTTPAddr:      env("QUIZRAG_HTTP_ADDR", ":8000"),
		CORSOrigins:   list(env("QUIZRAG_CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		LogMode:       env("QUIZRAG_LOG_MODE", "dev"),
	}

	var err error
	p := parser{}
	cfg.Embedding.Dimensions = p.intVar("QUIZRAG_EMBEDDING_DIM", embedding.DefaultDimensions)
	def := retrieval.DefaultOptions()
	cfg.Retrieval.TopK = p.intVar("QUIZRAG_RETRIEVAL_TOP_K", def.TopK)
	cfg.Retrieval.Threshold = p.floatVar("QUIZRAG_SIMILARITY_THRESHOLD", def.Threshold)
	idef := ingest.DefaultOptions()
	cfg.Ingest.ChunkSize = p.intVar("QUIZRAG_CHUNK_SIZE", idef.ChunkSize)
	cfg.Ingest.Overlap = p.intVar("QUIZRAG_CHUNK_OVERLAP", idef.Overlap)
	cfg.Ingest.UploadChunkSize = p.intVar("QUIZRAG_UPLOAD_CHUNK_SIZE", idef.UploadChunkSize)
	cfg.RequestTimeout = p.durationVar("QUIZRAG_REQUEST_TIMEOUT", 120*time.Second)
	if err = p.err(); err != nil {
		return Config{}, err
	}

	if cfg.Store == StoreSQLite && cfg.DBPath == "" {
		cfg.DBPath, err = store.DefaultDBPath()
		if err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// Validate checks the selected provider, embedder and store are usable.
func (c Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	switch c.Embedding.Provider {
	case "hash":
	case "openai":
		if c.Embedding.OpenAIAPIKey == "" {
			return fmt.Errorf("QUIZRAG_OPENAI_API_KEY is required for the openai embedder")
		}
	case "gemini":
		if c.Embedding.GeminiAPIKey == "" {
			return fmt.Errorf("QUIZRAG_GEMINI_API_KEY is required for the gemini embedder")
		}
	default:
		return fmt.Errorf("unknown embedder: %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("QUIZRAG_EMBEDDING_DIM must be positive")
	}
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("QUIZRAG_DB is required for the sqlite store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("QUIZRAG_DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store: %q", c.Store)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("QUIZRAG_RETRIEVAL_TOP_K must be positive")
	}
	if c.Retrieval.Threshold < -1 || c.Retrieval.Threshold >= 1 {
		return fmt.Errorf("QUIZRAG_SIMILARITY_THRESHOLD must be in [-1, 1)")
	}
	if c.Ingest.ChunkSize <= 0 || c.Ingest.UploadChunkSize <= 0 {
		return fmt.Errorf("chunk sizes must be positive")
	}
	if c.Ingest.Overlap < 0 || c.Ingest.Overlap >= c.Ingest.UploadChunkSize {
		return fmt.Errorf("QUIZRAG_CHUNK_OVERLAP must be in [0, QUIZRAG_UPLOAD_CHUNK_SIZE)")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("QUIZRAG_REQUEST_TIMEOUT must be positive")
	}
	return nil
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func list(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parser collects the first malformed value instead of silently falling
// back to the default.
type parser struct {
	first error
}

func (p *parser) fail(key, val string, err error) {
	if p.first == nil {
		p.first = fmt.Errorf("%s=%q: %w", key, val, err)
	}
}

func (p *parser) intVar(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return i
}

func (p *parser) floatVar(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

// durationVar accepts Go durations ("90s") or a bare number of seconds.
func (p *parser) durationVar(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func (p *parser) err() error { return p.first }
