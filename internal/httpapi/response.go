package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/quizrag/internal/llm"
	"github.com/abhisek/quizrag/internal/quizgen"
	"github.com/abhisek/quizrag/internal/retrieval"
	"github.com/abhisek/quizrag/internal/store"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// classify maps pipeline errors to an HTTP status and error code.
func classify(err error) (int, string) {
	var (
		malformed *quizgen.ErrMalformedResponse
		none      *quizgen.ErrNoValidQuestions
		exhausted *llm.ErrRetriesExhausted
		rejected  *llm.ErrRequestRejected
		invalid   *llm.ErrInvalidResponse
		truncated *llm.ErrMaxTokensExceeded
		limited   *llm.ErrRateLimit
		down      *llm.ErrProviderUnavailable
		slow      *llm.ErrTimeout
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, quizgen.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, retrieval.ErrNoRelevantContent):
		return http.StatusUnprocessableEntity, "no_relevant_content"
	case errors.As(err, &malformed):
		return http.StatusBadGateway, "malformed_response"
	case errors.As(err, &none):
		return http.StatusBadGateway, "no_valid_questions"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &exhausted), errors.As(err, &limited), errors.As(err, &down), errors.As(err, &slow):
		return http.StatusBadGateway, "upstream_unavailable"
	case errors.As(err, &rejected), errors.As(err, &invalid), errors.As(err, &truncated):
		return http.StatusBadGateway, "upstream_error"
	}
	return http.StatusInternalServerError, "internal"
}

func respondErr(c *gin.Context, err error) {
	status, code := classify(err)
	RespondError(c, status, code, err)
}
