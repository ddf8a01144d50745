package log

import "context"

type ctxKey struct{}

// WithContext returns a new context that carries the given Logger
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the Logger stored in ctx, or Nop if none is present
func FromContext(ctx context.Context) Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(Logger); ok && l != nil {
			return l
		}
	}
	return Nop()
}

// Enrich adds kv to the logger already in ctx and stores the result back.
func Enrich(ctx context.Context, kv ...any) (context.Context, Logger) {
	l := FromContext(ctx).With(kv...)
	return WithContext(ctx, l), l
}
