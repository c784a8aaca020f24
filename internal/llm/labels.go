package llm

import "context"

// callLabels annotate an LLM call for logging and the event record.
type callLabels struct {
	purpose   string
	requestID string
}

type labelsKey struct{}

func labelsFrom(ctx context.Context) callLabels {
	l, _ := ctx.Value(labelsKey{}).(callLabels)
	if l.purpose == "" {
		l.purpose = "unknown"
	}
	return l
}

// WithPurpose tags calls made under ctx with what they generate.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	l, _ := ctx.Value(labelsKey{}).(callLabels)
	l.purpose = purpose
	return context.WithValue(ctx, labelsKey{}, l)
}

// WithRequestID ties calls made under ctx to the inbound request that
// caused them.
func WithRequestID(ctx context.Context, id string) context.Context {
	l, _ := ctx.Value(labelsKey{}).(callLabels)
	l.requestID = id
	return context.WithValue(ctx, labelsKey{}, l)
}

// PurposeFrom returns the purpose set by WithPurpose, or "unknown".
func PurposeFrom(ctx context.Context) string {
	return labelsFrom(ctx).purpose
}
