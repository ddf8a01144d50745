// Package pagehttp exposes the page engine over HTTP: the form-compatible
// action endpoint, a REST API for scripts and the CLI, and the public
// published-page site.
//
// Credentials travel as "Authorization: Bearer <secret>". Every mutating
// request goes through dispatch, so authorization is decided before anything
// about the target page is revealed.
package pagehttp
