// Package auth decides what a presented credential may do.
//
// A credential is either the global admin secret, which grants every
// operation on every page, or a page secret, which grants content operations
// on that page only. The admin secret may be stored in plain form or as an
// argon2id hash and is loaded from a file or an SSM SecureString parameter;
// Watcher keeps it current when it is rotated at the source.
package auth
