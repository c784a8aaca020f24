package llm

import (
	"context"
	"errors"
)

// Provider sends one prompt to a model and returns its raw text.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID is the model used when a Request does not override it.
	ModelID() string
}

// Request is a single completion call.
type Request struct {
	System string

	// Messages is the conversation. Question generation sends a single
	// user turn.
	Messages []Message

	MaxTokens int

	// Temperature and TopP are passed through when positive; zero leaves
	// the backend default.
	Temperature float64
	TopP        float64

	// Model overrides the provider's configured model for this request.
	Model string

	// Meta carries caller labels (question type, count) that hosted
	// backends ignore. The offline provider shapes its output from them.
	Meta map[string]string
}

type Message struct {
	Role    Role
	Content string
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Stop reasons reported in Response.StopReason.
const (
	StopEnd       = "end"
	StopMaxTokens = "max_tokens"
)

// Response is a completed call. Content is not guaranteed to be JSON.
type Response struct {
	Content    string
	Usage      Usage
	Model      string
	StopReason string
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// UserRequest is a convenience for the single-turn case.
func UserRequest(system, prompt string) Request {
	return Request{
		System:   system,
		Messages: []Message{{Role: RoleUser, Content: prompt}},
	}
}

func modelFor(req Request, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	return fallback
}

// resolveModel maps a friendly alias to a provider model ID; unknown names
// pass through unchanged.
func resolveModel(name string, aliases map[string]string) string {
	if id, ok := aliases[name]; ok {
		return id
	}
	return name
}

// completion normalises what every backend hands back. A truncated answer
// surfaces as *ErrMaxTokensExceeded carrying the partial text so the
// caller can still salvage complete items from it.
func completion(backend, content, stop, model string, u Usage) (*Response, error) {
	if stop == StopMaxTokens {
		return nil, &ErrMaxTokensExceeded{Content: content}
	}
	if content == "" {
		return nil, &ErrInvalidResponse{Err: errors.New("empty " + backend + " response")}
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return &Response{Content: content, Usage: u, Model: model, StopReason: StopEnd}, nil
}
