package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/pageman/internal/cryptoutil"
	"github.com/keithlinneman/pageman/internal/log"
	"github.com/keithlinneman/pageman/internal/pages"
	"github.com/keithlinneman/pageman/internal/xerrors"
)

const (
	metaSHA256    = "sha256"
	metaPage      = "page"
	metaDeletedAt = "deleted-at"
)

// s3API is the subset of the S3 API the archiver needs. Extracted as an
// interface to enable unit testing without live AWS credentials.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Options struct {
	Logger log.Logger

	// S3 location for archives: s3://{bucket}/{prefix}/{entry}.tar.gz
	Bucket string
	Prefix string

	AWSConfig aws.Config
}

// S3Archiver implements pages.TrashArchiver.
type S3Archiver struct {
	client s3API
	bucket string
	prefix string
	logger log.Logger
}

var _ pages.TrashArchiver = (*S3Archiver)(nil)

func New(opts Options) (*S3Archiver, error) {
	if opts.Bucket == "" {
		return nil, xerrors.New("archive bucket is required")
	}
	return newWithClient(s3.NewFromConfig(opts.AWSConfig), opts), nil
}

func newWithClient(client s3API, opts Options) *S3Archiver {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &S3Archiver{
		client: client,
		bucket: opts.Bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
		logger: opts.Logger,
	}
}

// Key returns the object key for a trash entry name.
func (a *S3Archiver) Key(entryName string) string {
	if a.prefix != "" {
		return fmt.Sprintf("%s/%s.tar.gz", a.prefix, entryName)
	}
	return entryName + ".tar.gz"
}

// Archive packs the trashed directory and uploads it.
func (a *S3Archiver) Archive(ctx context.Context, entry pages.TrashEntry) error {
	var buf bytes.Buffer
	hw := cryptoutil.NewHashingWriter(&buf)
	if err := writeTarGz(hw, entry.Path, entry.Name); err != nil {
		return xerrors.Wrapf(err, "pack trash entry %s", entry.Name)
	}
	if hw.Size() > maxArchiveSize {
		return xerrors.Newf("archive of %s exceeds max size (%d bytes, limit %d)", entry.Name, hw.Size(), maxArchiveSize)
	}

	key := a.Key(entry.Name)
	sum := hw.Sum()
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(hw.Size()),
		ContentType:   aws.String("application/gzip"),
		Metadata: map[string]string{
			metaSHA256:    sum,
			metaPage:      entry.Page,
			metaDeletedAt: entry.At.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return xerrors.Wrapf(err, "put S3 object s3://%s/%s", a.bucket, key)
	}

	a.logger.Info(ctx, "archived trash entry",
		"bucket", a.bucket,
		"key", key,
		"bytes", hw.Size(),
		"sha256", sum,
	)
	return nil
}

// Fetch downloads the archive of a trash entry, verifies its checksum and
// extracts it under dst, which must not already contain the entry.
func (a *S3Archiver) Fetch(ctx context.Context, entryName, dst string) error {
	key := a.Key(entryName)
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return xerrors.Wrapf(err, "get S3 object s3://%s/%s", a.bucket, key)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	hw := cryptoutil.NewHashingWriter(&buf)
	if _, err := io.Copy(hw, io.LimitReader(out.Body, maxArchiveSize+1)); err != nil {
		return xerrors.Wrap(err, "download archive")
	}
	if hw.Size() > maxArchiveSize {
		return xerrors.Newf("archive %s exceeds max size (limit %d)", key, maxArchiveSize)
	}

	want := out.Metadata[metaSHA256]
	if want == "" {
		return xerrors.Newf("archive %s has no %s metadata", key, metaSHA256)
	}
	if !cryptoutil.SecretEqual(hw.Sum(), want) {
		return xerrors.Newf("checksum mismatch: expected %s, got %s", want, hw.Sum())
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return xerrors.Wrapf(err, "create %s", dst)
	}
	if err := extractTarGz(&buf, dst); err != nil {
		return xerrors.Wrapf(err, "extract %s", key)
	}
	a.logger.Info(ctx, "fetched trash archive", "key", key, "dest", dst, "bytes", hw.Size())
	return nil
}
