// Package ratelimit provides per-client-IP rate limiting with background
// eviction of idle entries.
//
// IPLimiter caps overall request rate. FailureThrottle caps failed credential
// attempts, so page secrets and the admin secret cannot be guessed at request
// rate.
//
// State is in memory and per instance. It does not protect against
// distributed attacks; use an upstream WAF or CDN for those.
package ratelimit
