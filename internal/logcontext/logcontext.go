package logcontext

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

var fieldsKey ctxKey

// AppendCtx returns a context carrying attr in addition to any attrs the
// parent already carries. Handlers pick them up via Attrs, so values like
// a session or attempt ID follow every log line in scope.
func AppendCtx(parent context.Context, attr slog.Attr) context.Context {
	if parent == nil {
		parent = context.Background()
	}

	if existing, ok := parent.Value(fieldsKey).([]slog.Attr); ok {
		attrs := make([]slog.Attr, 0, len(existing)+1)
		attrs = append(attrs, existing...)
		attrs = append(attrs, attr)
		return context.WithValue(parent, fieldsKey, attrs)
	}

	return context.WithValue(parent, fieldsKey, []slog.Attr{attr})
}

// Attrs returns the attrs accumulated on ctx, if any.
func Attrs(ctx context.Context) []slog.Attr {
	if attrs, ok := ctx.Value(fieldsKey).([]slog.Attr); ok {
		return attrs
	}
	return nil
}
