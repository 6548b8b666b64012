package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID identifies the download job a log line belongs to.
	FieldJobID = "job_id"
	// FieldAttempt is the 1-based downloader attempt number within a job.
	FieldAttempt = "attempt"
	// FieldRequestID carries the correlation id of the inbound request.
	FieldRequestID = "request_id"
	// FieldRequestType is the canonical request type being dispatched.
	FieldRequestType = "request_type"
	// FieldEventType classifies a log line for later filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests a next step to the operator.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"
)

type ctxKey int

const (
	jobIDKey ctxKey = iota
	requestIDKey
	requestTypeKey
)

// WithJobID tags ctx with a job identifier.
func WithJobID(ctx context.Context, jobID string) context.Context {
	if jobID == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, jobID)
}

// WithRequest tags ctx with the inbound request id and type.
func WithRequest(ctx context.Context, id, requestType string) context.Context {
	if id != "" {
		ctx = context.WithValue(ctx, requestIDKey, id)
	}
	if requestType != "" {
		ctx = context.WithValue(ctx, requestTypeKey, requestType)
	}
	return ctx
}

// JobIDFromContext returns the job id stored by WithJobID.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(jobIDKey).(string)
	return id, ok && id != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := JobIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJobID, id))
	}
	if rid, ok := ctx.Value(requestIDKey).(string); ok && rid != "" {
		fields = append(fields, slog.String(FieldRequestID, rid))
	}
	if rtype, ok := ctx.Value(requestTypeKey).(string); ok && rtype != "" {
		fields = append(fields, slog.String(FieldRequestType, rtype))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
