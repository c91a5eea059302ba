package services

import "context"

type contextKey int

const (
	documentIDKey contextKey = iota
	taskIDKey
	stageKey
	requestIDKey
)

func withValue(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func valueOf(ctx context.Context, key contextKey) (string, bool) {
	v, _ := ctx.Value(key).(string)
	return v, v != ""
}

// WithDocumentID tags ctx with the document being processed. Blank ids are ignored.
func WithDocumentID(ctx context.Context, id string) context.Context {
	return withValue(ctx, documentIDKey, id)
}

func DocumentIDFromContext(ctx context.Context) (string, bool) { return valueOf(ctx, documentIDKey) }

// WithTaskID tags ctx with the task attempt being executed.
func WithTaskID(ctx context.Context, id string) context.Context {
	return withValue(ctx, taskIDKey, id)
}

func TaskIDFromContext(ctx context.Context) (string, bool) { return valueOf(ctx, taskIDKey) }

// WithStage tags ctx with extract, analyze or render.
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) { return valueOf(ctx, stageKey) }

// WithRequestID tags ctx with the HTTP request id set by the API middleware.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) { return valueOf(ctx, requestIDKey) }
