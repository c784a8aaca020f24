package store

import (
	"context"
	"fmt"
	"time"
)

// AppendLLMRequest records data with the next event sequence number. The
// number is derived in the same statement as the insert, so concurrent
// writers cannot observe or claim the same value.
func (s *SQLiteStore) AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO llm_events (
			sequence, timestamp, provider, model, purpose, request_id, input_tokens,
			output_tokens, latency_ms, success, error_message, request_body, response_body
		) SELECT COALESCE(MAX(sequence), 0) + 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		FROM llm_events`,
		time.Now().UTC(), data.Provider, data.Model, data.Purpose, data.RequestID,
		data.InputTokens, data.OutputTokens, data.LatencyMs, data.Success,
		data.ErrorMessage, data.RequestBody, data.ResponseBody,
	)
	if err != nil {
		return fmt.Errorf("save LLM request event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LLMUsageByModel(ctx context.Context) ([]ModelUsage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT model, COUNT(*),
			SUM(CASE WHEN success THEN 0 ELSE 1 END),
			SUM(input_tokens), SUM(output_tokens), AVG(latency_ms)
		FROM llm_events GROUP BY model ORDER BY model`)
	if err != nil {
		return nil, fmt.Errorf("query LLM usage: %w", err)
	}
	defer rows.Close()

	var out []ModelUsage
	for rows.Next() {
		var u ModelUsage
		if err := rows.Scan(&u.Model, &u.Requests, &u.Failures, &u.InputTokens, &u.OutputTokens, &u.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan LLM usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
