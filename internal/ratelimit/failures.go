package ratelimit

import "context"

// FailureThrottle budgets failed credential attempts per IP. Successful
// requests cost nothing; each failure takes a token, and an IP with an empty
// bucket is refused before its credential is even checked.
type FailureThrottle struct {
	*table
}

// NewFailureThrottle defaults to a burst of 10 failures refilling one per
// 6 seconds.
func NewFailureThrottle(ctx context.Context, opts ...Option) *FailureThrottle {
	return &FailureThrottle{table: newTable(ctx, 1.0/6, 10, opts)}
}

// Blocked reports whether ip has no failure budget left. It does not
// consume anything.
func (f *FailureThrottle) Blocked(ip string) bool {
	now := f.now()
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.visitors[ip]
	if !ok {
		return false
	}
	return v.limiter.TokensAt(now) < 1
}

// Fail charges one failed attempt to ip.
func (f *FailureThrottle) Fail(ip string) {
	now := f.now()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visit(ip, now).limiter.AllowN(now, 1)
}
