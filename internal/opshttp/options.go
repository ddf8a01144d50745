package opshttp

import (
	"net/http"

	"github.com/keithlinneman/pageman/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// OnPanic is called after a handler panic is recovered.
	OnPanic func()
	// AllowPublic disables the private-network guard.
	AllowPublic bool
}
