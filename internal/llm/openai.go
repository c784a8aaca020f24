package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

var openaiAliases = map[string]string{
	"gpt-4o":      "gpt-4o",
	"gpt-4o-mini": "gpt-4o-mini",
}

// OpenAIProvider speaks the Chat Completions API. OpenRouter and other
// compatible gateways are served by the same type with a different base URL.
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	backend string
}

func NewOpenAIProvider(ep Endpoint) (*OpenAIProvider, error) {
	return newChatProvider(BackendOpenAI, ep, "")
}

// NewOpenRouterProvider targets OpenRouter, whose model IDs are
// vendor-prefixed ("google/gemini-2.0-flash-exp") and passed through as is.
func NewOpenRouterProvider(ep Endpoint) (*OpenAIProvider, error) {
	return newChatProvider(BackendOpenRouter, ep, defaultOpenRouterBaseURL)
}

func newChatProvider(backend string, ep Endpoint, defaultBaseURL string) (*OpenAIProvider, error) {
	if ep.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", backend)
	}
	cc := openai.DefaultConfig(ep.APIKey)
	switch {
	case ep.BaseURL != "":
		cc.BaseURL = ep.BaseURL
	case defaultBaseURL != "":
		cc.BaseURL = defaultBaseURL
	}
	model := ep.Model
	if backend == BackendOpenAI {
		model = resolveModel(model, openaiAliases)
	}
	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(cc),
		model:   model,
		backend: backend,
	}, nil
}

func (p *OpenAIProvider) ModelID() string { return p.model }

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	model := modelFor(req, p.model)
	if p.backend == BackendOpenAI {
		model = resolveModel(model, openaiAliases)
	}
	chat := openai.ChatCompletionRequest{
		Model:               model,
		Messages:            chatMessages(req),
		MaxCompletionTokens: req.MaxTokens,
		Temperature:         float32(req.Temperature),
		TopP:                float32(req.TopP),
	}

	resp, err := p.client.CreateChatCompletion(ctx, chat)
	if err != nil {
		return nil, p.mapError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ErrInvalidResponse{Err: fmt.Errorf("%s returned no choices", p.backend)}
	}

	choice := resp.Choices[0]
	stop := StopEnd
	if choice.FinishReason == openai.FinishReasonLength {
		stop = StopMaxTokens
	}
	return completion(p.backend, choice.Message.Content, stop, resp.Model, Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	})
}

func chatMessages(req Request) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func (p *OpenAIProvider) mapError(ctx context.Context, err error) error {
	if cerr := contextError(ctx, err); cerr != nil {
		return cerr
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, fmt.Errorf("%s: %w", p.backend, err))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, fmt.Errorf("%s: %w", p.backend, err))
	}
	return &ErrProviderUnavailable{Err: err}
}
