package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/abhisek/quizrag/internal/config"
	"github.com/abhisek/quizrag/internal/embedding"
	"github.com/abhisek/quizrag/internal/ingest"
	"github.com/abhisek/quizrag/internal/llm"
	"github.com/abhisek/quizrag/internal/logger"
	"github.com/abhisek/quizrag/internal/quizgen"
	"github.com/abhisek/quizrag/internal/retrieval"
	"github.com/abhisek/quizrag/internal/store"
	"github.com/abhisek/quizrag/internal/templates"
)

// deps is everything a command needs, built once from configuration.
type deps struct {
	cfg       config.Config
	log       *logger.Logger
	store     store.Store
	embedder  embedding.Embedder
	retriever *retrieval.Engine
	ingester  *ingest.Ingester
	templates templates.Source
	provider  llm.Provider
	service   *quizgen.Service
}

func (d *deps) Close() {
	if c, ok := d.embedder.(io.Closer); ok {
		if err := c.Close(); err != nil {
			d.log.Warn("closing embedder", "error", err.Error())
		}
	}
	if d.store != nil {
		d.store.Close()
	}
	d.log.Sync()
}

// loadConfig reads configuration and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	var files []string
	if f, _ := cmd.Flags().GetString("env-file"); f != "" {
		files = append(files, f)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return config.Config{}, err
	}
	if s, _ := cmd.Flags().GetString("store"); s != "" {
		cfg.Store = s
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.DBPath = p
	}
	return cfg, nil
}

// openStore connects the configured backend.
func openStore(ctx context.Context, cfg config.Config, log *logger.Logger) (store.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return store.NewMemoryStore(), nil
	case config.StoreSQLite:
		s, err := store.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorePostgres:
		s, err := store.OpenPostgres(ctx, cfg.DatabaseURL, cfg.Embedding.Dimensions, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store: %q", cfg.Store)
	}
}

// openDeps builds the full dependency graph. With withLLM false the offline
// provider is used so commands that never generate work without API keys.
func openDeps(cmd *cobra.Command, withLLM bool) (*deps, error) {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if !withLLM {
		cfg.LLM.Provider = "mock"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	d := &deps{cfg: cfg, log: log}

	d.store, err = openStore(ctx, cfg, log)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	d.embedder, err = embedding.New(ctx, cfg.Embedding, log)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.retriever = retrieval.New(d.store, d.embedder, cfg.Retrieval, log)
	d.ingester = ingest.New(d.store, d.embedder, cfg.Ingest, log)

	if cfg.TemplatesPath != "" {
		src, err := templates.LoadFile(cfg.TemplatesPath)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.templates = src
	} else {
		d.templates = templates.NewMemorySource()
	}

	var events store.EventRepo
	if er, ok := d.store.(store.EventRepo); ok {
		events = er
	}
	d.provider, err = llm.NewProvider(ctx, cfg.LLM, llm.Deps{
		Events:  events,
		Log:     log,
		Offline: quizgen.NewOfflineProvider(),
	})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("LLM provider: %w", err)
	}

	d.service = quizgen.NewService(d.store, d.retriever, d.templates, d.provider, quizgen.DefaultOptions(), log)
	return d, nil
}
