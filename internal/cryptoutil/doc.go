// Package cryptoutil holds the secret handling primitives shared by the
// daemon and the CLI:
//   - constant-time comparison of secrets and digests
//   - argon2id hashing of the admin secret
//   - page secret generation backed by AWS KMS GenerateRandom
//   - SHA-256 digests for archived trash entries
package cryptoutil
