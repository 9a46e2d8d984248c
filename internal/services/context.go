package services

import "context"

type contextKey string

const (
	videoIDKey   contextKey = "video_id"
	stageKey     contextKey = "stage"
	qualityKey   contextKey = "quality"
	requestIDKey contextKey = "request_id"
)

// WithVideoID annotates context with the video identifier being processed.
func WithVideoID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, videoIDKey, id)
}

// VideoIDFromContext extracts the video identifier if present.
func VideoIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(videoIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(stageKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithQuality annotates context with the rendition label being encoded.
func WithQuality(ctx context.Context, label string) context.Context {
	if label == "" {
		return ctx
	}
	return context.WithValue(ctx, qualityKey, label)
}

// QualityFromContext returns the rendition label if present.
func QualityFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(qualityKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
