package archive

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/keithlinneman/pageman/internal/pathutil"
	"github.com/keithlinneman/pageman/internal/xerrors"
)

const (
	// maxArchiveSize is the maximum size of a compressed archive.
	maxArchiveSize int64 = 50 * 1024 * 1024

	// maxSingleFile is the maximum size of a single file in an archive.
	maxSingleFile int64 = 10 * 1024 * 1024

	// maxTotalExtract is the maximum total size of extracted content.
	maxTotalExtract int64 = 100 * 1024 * 1024
)

// writeTarGz writes every regular file directly inside dir to w under
// root/<file>. Page directories are flat, so subdirectories and symlinks are
// skipped.
func writeTarGz(w io.Writer, dir, root string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return xerrors.Wrapf(err, "read %s", dir)
	}
	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)

	if err := tw.WriteHeader(&tar.Header{Name: root + "/", Typeflag: tar.TypeDir, Mode: 0o755}); err != nil {
		return xerrors.Wrap(err, "write root header")
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := addFile(tw, filepath.Join(dir, e.Name()), root+"/"+e.Name()); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return xerrors.Wrap(err, "close tar")
	}
	if err := gw.Close(); err != nil {
		return xerrors.Wrap(err, "close gzip")
	}
	return nil
}

func addFile(tw *tar.Writer, src, name string) error {
	f, err := os.Open(src)
	if err != nil {
		return xerrors.Wrapf(err, "open %s", src)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return xerrors.Wrapf(err, "stat %s", src)
	}
	if fi.Size() > maxSingleFile {
		return xerrors.Newf("file %s exceeds max size (%d > %d)", src, fi.Size(), maxSingleFile)
	}
	hdr, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return xerrors.Wrapf(err, "tar header for %s", src)
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return xerrors.Wrapf(err, "write header %s", name)
	}
	if _, err := io.Copy(tw, io.LimitReader(f, fi.Size())); err != nil {
		return xerrors.Wrapf(err, "write %s", name)
	}
	return nil
}

// extractTarGz unpacks r into dst, rejecting absolute paths, traversal and
// anything other than directories and regular files.
func extractTarGz(r io.Reader, dst string) error {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return xerrors.Wrap(err, "open gzip")
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	var total int64
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return xerrors.Wrap(err, "read tar header")
		}

		name := path.Clean(hdr.Name)
		if name == "." || name == "" {
			continue
		}
		if path.IsAbs(name) || pathutil.HasDotSegments(name) || strings.Contains(name, `\`) {
			return xerrors.Newf("unsafe path in archive: %s", hdr.Name)
		}
		target, err := pathutil.SafeJoin(dst, strings.Split(name, "/")...)
		if err != nil {
			return xerrors.Wrapf(err, "path %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return xerrors.Wrapf(err, "create %s", target)
			}
		case tar.TypeReg:
			if hdr.Size > maxSingleFile {
				return xerrors.Newf("file %s exceeds max size (%d > %d)", name, hdr.Size, maxSingleFile)
			}
			total += hdr.Size
			if total > maxTotalExtract {
				return xerrors.Newf("total extracted size exceeds limit (%d bytes)", maxTotalExtract)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return xerrors.Wrapf(err, "create %s", filepath.Dir(target))
			}
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		default:
			return xerrors.Newf("unsupported file type in archive: %s (type=%d)", name, hdr.Typeflag)
		}
	}
}

func writeFile(p string, r io.Reader, mode fs.FileMode) error {
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_EXCL, mode)
	if err != nil {
		return xerrors.Wrapf(err, "create %s", p)
	}
	n, err := io.Copy(f, io.LimitReader(r, maxSingleFile+1))
	cerr := f.Close()
	if err != nil {
		return xerrors.Wrapf(err, "write %s", p)
	}
	if cerr != nil {
		return xerrors.Wrapf(cerr, "close %s", p)
	}
	if n > maxSingleFile {
		return xerrors.Newf("file too large: %s (%d bytes)", p, n)
	}
	return nil
}
