package quizgen

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abhisek/quizrag/internal/logger"
)

// BatchEntry is the outcome of one sub-request, at its original position.
type BatchEntry[T any] struct {
	Index  int    `json:"index"`
	Result T      `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BatchResult aggregates a batch. A failed sub-request is reported in Errors
// and never affects its siblings.
type BatchResult[T any] struct {
	Results      []BatchEntry[T] `json:"results"`
	TotalItems   int             `json:"total_items"`
	SuccessCount int             `json:"success_count"`
	ErrorCount   int             `json:"error_count"`
	Errors       []string        `json:"errors"`
	TotalTime    float64         `json:"total_time"`
}

type itemCounter interface {
	ItemCount() int
}

// runBatch runs fn for every request concurrently. The errgroup is not
// bound to a derived context, so one failure cancels nothing; only the
// caller's ctx does. A panicking sub-request is reported as a failure.
func runBatch[Req any, Res itemCounter](ctx context.Context, log *logger.Logger, limit int, reqs []Req, fn func(context.Context, Req) (Res, error)) *BatchResult[Res] {
	start := time.Now()
	entries := make([]BatchEntry[Res], len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, req := range reqs {
		g.Go(func() error {
			entries[i].Index = i
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("panic: %v", r)
				}
			}()
			res, err := fn(ctx, req)
			if err != nil {
				errs[i] = err
				return nil
			}
			entries[i].Result = res
			return nil
		})
	}
	_ = g.Wait()

	out := &BatchResult[Res]{Results: entries, Errors: []string{}}
	for i, err := range errs {
		if err != nil {
			msg := fmt.Sprintf("request %d failed: %v", i+1, err)
			entries[i].Error = err.Error()
			out.Errors = append(out.Errors, msg)
			out.ErrorCount++
			log.Warn("batch sub-request failed", "index", i, "error", err)
			continue
		}
		out.SuccessCount++
		out.TotalItems += entries[i].Result.ItemCount()
	}
	out.TotalTime = time.Since(start).Seconds()
	log.Info("batch complete",
		"requests", len(reqs), "succeeded", out.SuccessCount,
		"failed", out.ErrorCount, "items", out.TotalItems)
	return out
}

func (s *Service) checkBatch(n int) error {
	if n == 0 {
		return invalidf("batch is empty")
	}
	if n > s.opts.MaxBatch {
		return invalidf("batch of %d exceeds the limit of %d", n, s.opts.MaxBatch)
	}
	return nil
}

// BatchGenerate runs basic requests concurrently.
func (s *Service) BatchGenerate(ctx context.Context, reqs []BasicRequest) (*BatchResult[*Result], error) {
	if err := s.checkBatch(len(reqs)); err != nil {
		return nil, err
	}
	return runBatch(ctx, s.log, s.opts.BatchConcurrency, reqs, s.GenerateBasic), nil
}

// BatchSingle runs single-template requests concurrently.
func (s *Service) BatchSingle(ctx context.Context, reqs []SingleRequest) (*BatchResult[*SingleResult], error) {
	if err := s.checkBatch(len(reqs)); err != nil {
		return nil, err
	}
	return runBatch(ctx, s.log, s.opts.BatchConcurrency, reqs, s.GenerateSingle), nil
}

// BatchFromTemplate runs template requests concurrently.
func (s *Service) BatchFromTemplate(ctx context.Context, reqs []TemplateRequest) (*BatchResult[*TemplateResult], error) {
	if err := s.checkBatch(len(reqs)); err != nil {
		return nil, err
	}
	return runBatch(ctx, s.log, s.opts.BatchConcurrency, reqs, s.GenerateFromTemplate), nil
}

// BatchFromPrompt runs prompt requests concurrently.
func (s *Service) BatchFromPrompt(ctx context.Context, reqs []PromptRequest) (*BatchResult[*PromptResult], error) {
	if err := s.checkBatch(len(reqs)); err != nil {
		return nil, err
	}
	return runBatch(ctx, s.log, s.opts.BatchConcurrency, reqs, s.GenerateFromPrompt), nil
}
