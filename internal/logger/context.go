package logger

import "context"

type contextKey string

const TraceIDKey contextKey = "trace_id"
const ProblemIDKey contextKey = "problem_id"

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

func GetTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDKey).(string); ok {
		return id
	}
	return ""
}

func WithProblemID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ProblemIDKey, id)
}

func GetProblemID(ctx context.Context) string {
	if id, ok := ctx.Value(ProblemIDKey).(string); ok {
		return id
	}
	return ""
}
