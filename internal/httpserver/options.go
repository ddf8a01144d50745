package httpserver

import (
	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/pageman/internal/health"
	"github.com/keithlinneman/pageman/internal/httpmw"
	"github.com/keithlinneman/pageman/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	// Routes mounts the API and published-page routes.
	Routes func(chi.Router)
	// PagePrefix selects the page Content-Security-Policy, e.g. "/p/".
	PagePrefix string

	Health    health.Probe
	Readiness health.Probe

	MaxBodyBytes int64
	ClientIP     httpmw.ClientIPOptions
	CrossOrigin  *httpmw.CrossOriginOptions

	// Optional middleware; nil slots are skipped.
	RateLimitMW httpmw.Middleware
	MetricsMW   httpmw.Middleware

	UseRecoverMW bool
	OnPanic      func()
}
