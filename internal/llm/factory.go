package llm

import (
	"context"
	"fmt"

	"github.com/abhisek/quizrag/internal/logger"
	"github.com/abhisek/quizrag/internal/store"
)

// Deps are the collaborators wired around the base provider.
type Deps struct {
	// Events receives one record per call. Nil disables recording.
	Events store.EventRepo
	Log    *logger.Logger

	// Offline serves the "mock" backend. Nil means an empty MockProvider,
	// which fails every call.
	Offline Provider
}

// NewProvider builds the configured backend as
// caller → retry → logging → backend.
func NewProvider(ctx context.Context, cfg Config, deps Deps) (Provider, error) {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}

	base, err := newBackend(ctx, cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}
	deps.Log.Info("LLM provider ready", "provider", cfg.Provider, "model", base.ModelID())

	logged := WithLogging(base, cfg.Provider, deps.Events, deps.Log)
	return WithRetry(logged, cfg.Retry, WithRetryLogger(deps.Log)), nil
}

func newBackend(ctx context.Context, cfg Config, deps Deps) (Provider, error) {
	switch cfg.Provider {
	case BackendAnthropic:
		return NewAnthropicProvider(cfg.Anthropic)
	case BackendOpenAI:
		return NewOpenAIProvider(cfg.OpenAI)
	case BackendOpenRouter:
		return NewOpenRouterProvider(cfg.OpenRouter)
	case BackendGemini:
		return NewGeminiProvider(ctx, cfg.Gemini)
	case BackendMock:
		if deps.Offline != nil {
			return deps.Offline, nil
		}
		return NewMockProvider(), nil
	}
	return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
}
