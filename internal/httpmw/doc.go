// Package httpmw provides the HTTP middleware of the pageman API and site
// server.
//
// httpserver.NewHandler composes them outermost first: security headers,
// panic recovery, request id, client ip, rate limiting, tracing, metrics,
// request logger, cross-origin protection, body limit, access log and route
// annotation.
//
// Request bodies, credentials and query strings never reach the logs.
package httpmw
