package llm

import (
	"fmt"
	"os"
	"time"
)

// Backend names accepted in Config.Provider.
const (
	BackendAnthropic  = "anthropic"
	BackendOpenAI     = "openai"
	BackendGemini     = "gemini"
	BackendOpenRouter = "openrouter"
	BackendMock       = "mock"
)

// Endpoint is the connection info shared by every hosted backend.
type Endpoint struct {
	APIKey string
	// Model is a friendly alias or a provider model ID.
	Model string
	// BaseURL overrides the SDK default.
	BaseURL string
}

// Config selects a backend and how calls to it are retried.
type Config struct {
	Provider string

	Anthropic  Endpoint
	OpenAI     Endpoint
	Gemini     Endpoint
	OpenRouter Endpoint
	Retry      RetryConfig
}

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64

	// AttemptTimeout bounds a single attempt. Zero means the caller's
	// context is the only deadline.
	AttemptTimeout time.Duration
}

// DefaultRetryConfig is three attempts waiting 2s then 4s, capped at 8s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialWait:    2 * time.Second,
		MaxWait:        8 * time.Second,
		Multiplier:     2.0,
		AttemptTimeout: 60 * time.Second,
	}
}

func DefaultConfig() Config {
	return Config{
		Provider:   BackendAnthropic,
		Anthropic:  Endpoint{Model: "claude-3-7-sonnet-20250219"},
		OpenAI:     Endpoint{Model: "gpt-4o-mini"},
		Gemini:     Endpoint{Model: "gemini-flash"},
		OpenRouter: Endpoint{Model: "google/gemini-2.0-flash-exp", BaseURL: defaultOpenRouterBaseURL},
		Retry:      DefaultRetryConfig(),
	}
}

// envBinding lists, per backend, the variables consulted in order.
type envBinding struct {
	backend string
	key     []string
	model   []string
	baseURL []string
}

var envBindings = []envBinding{
	{BackendAnthropic, []string{"QUIZRAG_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"}, []string{"QUIZRAG_ANTHROPIC_MODEL", "QUIZRAG_LLM_MODEL"}, []string{"QUIZRAG_ANTHROPIC_BASE_URL"}},
	{BackendOpenAI, []string{"QUIZRAG_OPENAI_API_KEY", "OPENAI_API_KEY"}, []string{"QUIZRAG_OPENAI_MODEL"}, []string{"QUIZRAG_OPENAI_BASE_URL"}},
	{BackendGemini, []string{"QUIZRAG_GEMINI_API_KEY", "GEMINI_API_KEY"}, []string{"QUIZRAG_GEMINI_MODEL"}, []string{"QUIZRAG_GEMINI_BASE_URL"}},
	{BackendOpenRouter, []string{"QUIZRAG_OPENROUTER_API_KEY", "OPENROUTER_API_KEY"}, []string{"QUIZRAG_OPENROUTER_MODEL"}, []string{"QUIZRAG_OPENROUTER_BASE_URL"}},
}

// ConfigFromEnv overlays QUIZRAG_* (and the vendors' own) variables on
// DefaultConfig.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if p := os.Getenv("QUIZRAG_LLM_PROVIDER"); p != "" {
		cfg.Provider = p
	}
	for _, b := range envBindings {
		ep := cfg.endpoint(b.backend)
		if v := firstEnv(b.key...); v != "" {
			ep.APIKey = v
		}
		if v := firstEnv(b.model...); v != "" {
			ep.Model = v
		}
		if v := firstEnv(b.baseURL...); v != "" {
			ep.BaseURL = v
		}
	}
	return cfg
}

// endpoint returns the settings for a hosted backend, or nil.
func (c *Config) endpoint(backend string) *Endpoint {
	switch backend {
	case BackendAnthropic:
		return &c.Anthropic
	case BackendOpenAI:
		return &c.OpenAI
	case BackendGemini:
		return &c.Gemini
	case BackendOpenRouter:
		return &c.OpenRouter
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks that the selected backend is known and has a key.
func (c Config) Validate() error {
	if c.Provider != BackendMock {
		ep := c.endpoint(c.Provider)
		if ep == nil {
			return fmt.Errorf("unknown LLM provider: %q", c.Provider)
		}
		if ep.APIKey == "" {
			for _, b := range envBindings {
				if b.backend == c.Provider {
					return fmt.Errorf("%s is required for the %s provider", b.key[0], c.Provider)
				}
			}
		}
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}
	return nil
}
