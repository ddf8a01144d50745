package httpmw

import (
	"net/http"
	"strings"

	"filippo.io/csrf/gorilla"

	"github.com/keithlinneman/pageman/internal/log"
)

// CrossOriginOptions configures CrossOrigin.
type CrossOriginOptions struct {
	// Key authenticates legacy tokens; Fetch metadata does the real work.
	Key []byte
	// TrustedOrigins are host[:port] values allowed to post cross-origin.
	TrustedOrigins []string
	// OnReject is called for every refused request.
	OnReject func()
}

// CrossOrigin refuses browser-initiated cross-origin writes using Fetch
// metadata. Requests that carry a bearer credential are not ambient-credential
// requests and skip the check; CLI and script clients always send one.
func CrossOrigin(opts CrossOriginOptions) Middleware {
	reject := func(w http.ResponseWriter, r *http.Request) {
		if opts.OnReject != nil {
			opts.OnReject()
		}
		reason := "unknown"
		if err := csrf.FailureReason(r); err != nil {
			reason = err.Error()
		}
		log.FromContext(r.Context()).Warn(r.Context(), "cross-origin request rejected",
			"reason", reason,
			"origin", r.Header.Get("Origin"),
			"sec_fetch_site", r.Header.Get("Sec-Fetch-Site"),
		)
		http.Error(w, "cross-origin request rejected", http.StatusForbidden)
	}

	copts := []csrf.Option{csrf.ErrorHandler(http.HandlerFunc(reject))}
	if len(opts.TrustedOrigins) > 0 {
		copts = append(copts, csrf.TrustedOrigins(opts.TrustedOrigins))
	}
	protect := csrf.Protect(opts.Key, copts...)

	return func(next http.Handler) http.Handler {
		guarded := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasBearer(r) {
				r = csrf.UnsafeSkipCheck(r)
			}
			guarded.ServeHTTP(w, r)
		})
	}
}

func hasBearer(r *http.Request) bool {
	v := r.Header.Get("Authorization")
	return len(v) > 7 && strings.EqualFold(v[:7], "bearer ")
}
