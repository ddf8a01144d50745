package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// TraceID echoes the active trace id so API clients can quote it when
// reporting a failed action. Nothing is set when tracing is off.
func TraceID(header string) Middleware {
	if header == "" {
		header = "X-Trace-Id"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				w.Header().Set(header, sc.TraceID().String())
			}
			next.ServeHTTP(w, r)
		})
	}
}
