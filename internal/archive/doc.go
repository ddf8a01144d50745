// Package archive ships trashed page directories to S3 as tar.gz objects and
// pulls them back.
//
// Objects are stored at s3://{bucket}/{prefix}/{trash entry name}.tar.gz with
// the SHA-256 of the compressed bytes in the object metadata, which Fetch
// verifies before extracting anything.
package archive
