package httpmw

import (
	"net/http"
	"runtime/debug"

	"github.com/keithlinneman/pageman/internal/log"
	"github.com/keithlinneman/pageman/internal/xerrors"
)

// Recover turns a handler panic into a 500 and an error log with the stack.
// onPanic, when set, runs once per recovered panic (metrics).
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func Recover(L log.Logger, onPanic func()) Middleware {
	if L == nil {
		L = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				if onPanic != nil {
					onPanic()
				}
				err := xerrors.Newf("panic: %v", v)
				L.Error(r.Context(), err, "httpserver panic recovered",
					"url.path", r.URL.Path,
					"http.request.method", r.Method,
					"request_id", RequestIDFromContext(r.Context()),
					"stack", string(debug.Stack()),
				)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
