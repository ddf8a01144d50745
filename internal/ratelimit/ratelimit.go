package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/pageman/internal/httpmw"
)

// visitor is one client's bucket.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	// logged is set after the first denial; it resets with eviction.
	logged bool
}

// table maps client IPs to buckets and evicts idle ones.
type table struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	perSecond rate.Limit
	burst     int
	ttl       time.Duration
	now       func() time.Time
}

type Option func(*table)

// WithRate sets refill rate and bucket size. WithRate(10, 50) admits 50 at
// once, then 10 per second.
func WithRate(perSecond float64, burst int) Option {
	return func(t *table) {
		t.perSecond = rate.Limit(perSecond)
		t.burst = burst
	}
}

// WithTTL sets how long an idle IP is remembered.
func WithTTL(d time.Duration) Option {
	return func(t *table) {
		if d > 0 {
			t.ttl = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *table) {
		if now != nil {
			t.now = now
		}
	}
}

func newTable(ctx context.Context, perSecond float64, burst int, opts []Option) *table {
	t := &table{
		visitors:  make(map[string]*visitor),
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		ttl:       5 * time.Minute,
		now:       time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	go t.cleanup(ctx)
	return t
}

// visit returns ip's bucket, creating it on first sight. Callers hold mu.
func (t *table) visit(ip string, now time.Time) *visitor {
	v, ok := t.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(t.perSecond, t.burst)}
		t.visitors[ip] = v
	}
	v.lastSeen = now
	return v
}

func (t *table) cleanup(ctx context.Context) {
	ticker := time.NewTicker(t.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep(t.now())
		}
	}
}

func (t *table) sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ip, v := range t.visitors {
		if now.Sub(v.lastSeen) > t.ttl {
			delete(t.visitors, ip)
		}
	}
}

func (t *table) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.visitors)
}

// IPLimiter rejects requests above a per-IP rate with 429.
type IPLimiter struct {
	*table

	// OnFirstDenied runs once per visitor (logging); OnDenied on every
	// denial (metrics). Both run outside the lock.
	OnFirstDenied func(ip string)
	OnDenied      func(ip string)
}

// New starts an IPLimiter whose sweeper stops with ctx. Defaults to 10/s with
// a burst of 30.
func New(ctx context.Context, opts ...Option) *IPLimiter {
	return &IPLimiter{table: newTable(ctx, 10, 30, opts)}
}

func (l *IPLimiter) allow(ip string) bool {
	now := l.now()
	l.mu.Lock()
	v := l.visit(ip, now)
	allowed := v.limiter.AllowN(now, 1)
	first := !allowed && !v.logged
	if first {
		v.logged = true
	}
	l.mu.Unlock()

	if allowed {
		return true
	}
	if first && l.OnFirstDenied != nil {
		l.OnFirstDenied(ip)
	}
	if l.OnDenied != nil {
		l.OnDenied(ip)
	}
	return false
}

// Middleware keys on httpmw.ClientIPFromContext, so ClientIP must run first.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(httpmw.ClientIPFromContext(r.Context())) {
			tooMany(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tooMany(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Retry-After", "30")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"too many requests"}`))
}
