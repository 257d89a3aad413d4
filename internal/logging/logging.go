// Package logging provides the structured logger and request-scoped context keys.
package logging

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	TraceIDKey    contextKey = "trace_id"
	IdentityKey   contextKey = "identity"
	ProvenanceKey contextKey = "provenance"
)

// Logger wraps zerolog with request-context helpers.
type Logger struct {
	zl zerolog.Logger
}

// New creates a logger. Development mode uses the console writer; anything else
// emits JSON lines.
func New(service, environment string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var zl zerolog.Logger
	if environment == "development" {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		zl = zerolog.New(output).Level(zerolog.DebugLevel)
	} else {
		zl = zerolog.New(os.Stderr).Level(zerolog.InfoLevel)
	}

	zl = zl.With().Timestamp().Str("service", service).Logger()
	return &Logger{zl: zl}
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// WithContext enriches the logger with trace ID and identity from ctx. The raw
// signed payload is never logged; only the identity key and provenance are.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	zl := l.zl
	if traceID := GetTraceID(ctx); traceID != "" {
		zl = zl.With().Str("trace_id", traceID).Logger()
	}
	if identity := GetIdentity(ctx); identity != "" {
		zl = zl.With().Str("identity", identity).Logger()
	}
	if provenance := GetProvenance(ctx); provenance != "" {
		zl = zl.With().Str("provenance", provenance).Logger()
	}
	return &Logger{zl: zl}
}

// WithError attaches an error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

// WithFields attaches arbitrary structured fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{zl: l.zl.With().Fields(fields).Logger()}
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }
func (l *Logger) Fatal(msg string) { l.zl.Fatal().Msg(msg) }

// NewTraceID generates a fresh trace identifier.
func NewTraceID() string { return uuid.New().String() }

// WithTraceID stores the trace ID in ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID extracts the trace ID from ctx, or "".
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithIdentity stores the identity key and provenance in ctx.
func WithIdentity(ctx context.Context, key, provenance string) context.Context {
	ctx = context.WithValue(ctx, IdentityKey, key)
	return context.WithValue(ctx, ProvenanceKey, provenance)
}

// GetIdentity extracts the identity key from ctx, or "".
func GetIdentity(ctx context.Context) string {
	if v, ok := ctx.Value(IdentityKey).(string); ok {
		return v
	}
	return ""
}

// GetProvenance extracts the identity provenance from ctx, or "".
func GetProvenance(ctx context.Context) string {
	if v, ok := ctx.Value(ProvenanceKey).(string); ok {
		return v
	}
	return ""
}
