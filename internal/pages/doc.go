// Package pages is the page versioning and publishing engine.
//
// Each page owns a mutable draft, at most one published artifact, an
// append-only history of timestamped versions with optional comments, and two
// pointers recording which version the draft and the published artifact
// currently mirror. [Engine] drives the publishing state machine over a
// [Store]; [Lifecycle] creates pages, moves them to trash and manages their
// secrets over a [Catalog]. [FSStore] implements both on a plain directory
// tree laid out like this:
//
//	<root>/<page>/draft.html
//	<root>/<page>/index.html
//	<root>/<page>/<version>.html
//	<root>/<page>/<version>.comment
//	<root>/<page>/_published_state.txt
//	<root>/<page>/_draft_state.txt
//	<root>/<page>/pwd.secret
//	<trash>/<YYYY-MM-DD_HH-MM-SS>_<page>/
//
// Operations are stateless and take no locks. Pointer files are replaced
// whole, so concurrent writers race and the last rename wins.
package pages
