package llm

import (
	"context"
	"strings"
	"time"

	"github.com/abhisek/quizrag/internal/logger"
	"github.com/abhisek/quizrag/internal/store"
)

// LoggingProvider logs every call and records it in an EventRepo.
type LoggingProvider struct {
	inner   Provider
	backend string
	events  store.EventRepo
	log     *logger.Logger
}

// WithLogging wraps p. events may be nil.
func WithLogging(p Provider, backend string, events store.EventRepo, log *logger.Logger) Provider {
	if log == nil {
		log = logger.Nop()
	}
	return &LoggingProvider{inner: p, backend: backend, events: events, log: log}
}

func (l *LoggingProvider) ModelID() string { return l.inner.ModelID() }

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	labels := labelsFrom(ctx)
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)
	elapsed := time.Since(start).Milliseconds()

	ev := store.LLMRequestEventData{
		Provider:    l.backend,
		Model:       modelFor(req, l.inner.ModelID()),
		Purpose:     labels.purpose,
		RequestID:   labels.requestID,
		LatencyMs:   elapsed,
		Success:     err == nil,
		RequestBody: transcript(req),
	}
	if resp != nil {
		ev.InputTokens = resp.Usage.InputTokens
		ev.OutputTokens = resp.Usage.OutputTokens
		ev.ResponseBody = resp.Content
		if resp.Model != "" {
			ev.Model = resp.Model
		}
	}

	fields := []any{"purpose", ev.Purpose, "model", ev.Model, "latency_ms", elapsed}
	if ev.RequestID != "" {
		fields = append(fields, "request_id", ev.RequestID)
	}
	if err != nil {
		ev.ErrorMessage = err.Error()
		l.log.Warn("LLM call failed", append(fields, "error", err.Error())...)
	} else {
		l.log.Debug("LLM call completed", append(fields,
			"input_tokens", ev.InputTokens, "output_tokens", ev.OutputTokens,
			"response_bytes", len(ev.ResponseBody))...)
	}

	// A recording failure never fails the call.
	if l.events != nil {
		if rerr := l.events.AppendLLMRequest(ctx, ev); rerr != nil {
			l.log.Warn("failed to record LLM request event", "error", rerr.Error())
		}
	}
	return resp, err
}

// transcript renders req as "[role]\ncontent" blocks.
func transcript(req Request) string {
	var b strings.Builder
	block := func(role, content string) {
		b.WriteString("[" + role + "]\n")
		b.WriteString(content)
		b.WriteString("\n\n")
	}
	if req.System != "" {
		block("system", req.System)
	}
	for _, m := range req.Messages {
		block(string(m.Role), m.Content)
	}
	return b.String()
}
