package pagehttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/pageman/internal/dispatch"
	"github.com/keithlinneman/pageman/internal/httpmw"
	"github.com/keithlinneman/pageman/internal/log"
	"github.com/keithlinneman/pageman/internal/pages"
)

// Throttle budgets failed credentials per client IP.
type Throttle interface {
	Blocked(ip string) bool
	Fail(ip string)
}

type Options struct {
	Dispatcher *dispatch.Dispatcher
	Engine     *pages.Engine
	Lifecycle  *pages.Lifecycle
	Logger     log.Logger
	// Throttle is optional.
	Throttle Throttle
	// OnThrottled runs for each request refused by Throttle (metrics).
	OnThrottled func()
}

// API serves /api/*.
type API struct {
	disp        *dispatch.Dispatcher
	engine      *pages.Engine
	life        *pages.Lifecycle
	logger      log.Logger
	throttle    Throttle
	onThrottled func()
}

func NewAPI(opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &API{
		disp:        opts.Dispatcher,
		engine:      opts.Engine,
		life:        opts.Lifecycle,
		logger:      opts.Logger,
		throttle:    opts.Throttle,
		onThrottled: opts.OnThrottled,
	}
}

// RegisterRoutes attaches the action and REST endpoints.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(httpmw.Handler("api"), api.throttled)

		r.Post("/actions", api.HandleAction)

		r.Get("/pages", api.handleListPages)
		r.Post("/pages", api.handleCreatePage)
		r.Route("/pages/{page}", func(r chi.Router) {
			r.Get("/", api.handleState)
			r.Delete("/", api.handleDeletePage)
			r.Post("/secret", api.handleGenerateSecret)
			r.Delete("/secret", api.handleResetSecret)
			r.Get("/draft", api.handleReadDraft)
			r.Put("/draft", api.handleSaveDraft)
			r.Post("/draft/load", api.handleLoadDraft)
			r.Post("/publish", api.handlePublish)
			r.Get("/published", api.handleReadPublished)
			r.Get("/versions/{version}", api.handleReadVersion)
			r.Delete("/versions/{version}", api.handleDeleteVersion)
			r.Post("/versions/{version}/restore", api.handleRestore)
			r.Put("/versions/{version}/comment", api.handleEditComment)
		})
	})
}

// credential extracts the bearer secret. Anything else yields "".
func credential(r *http.Request) string {
	v := r.Header.Get("Authorization")
	if len(v) < 7 || !strings.EqualFold(v[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(v[7:])
}

// throttled refuses clients that spent their failed-credential budget.
func (api *API) throttled(next http.Handler) http.Handler {
	if api.throttle == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.throttle.Blocked(httpmw.ClientIPFromContext(r.Context())) {
			if api.onThrottled != nil {
				api.onThrottled()
			}
			w.Header().Set("Retry-After", "60")
			api.writeJSON(r.Context(), w, http.StatusTooManyRequests, errorBody{Error: "too many failed attempts"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps the error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pages.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, pages.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pages.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err and charges failed credentials to the client. Server-side
// failures are logged and reported without detail.
func (api *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		api.writeJSON(ctx, w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
		return
	}
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusForbidden:
		if api.throttle != nil {
			api.throttle.Fail(httpmw.ClientIPFromContext(ctx))
		}
		msg = "not authorized"
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		log.FromContext(ctx).Error(ctx, err, "request failed")
		msg = http.StatusText(status)
	}
	api.writeJSON(ctx, w, status, errorBody{Error: msg})
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}

func writeHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
