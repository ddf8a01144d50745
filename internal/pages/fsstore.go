package pages

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keithlinneman/pageman/internal/pathutil"
	"github.com/keithlinneman/pageman/internal/xerrors"
)

const (
	draftFile          = "draft.html"
	publishedFile      = "index.html"
	publishedStateFile = "_published_state.txt"
	draftStateFile     = "_draft_state.txt"
	secretFile         = "pwd.secret"
	versionExt         = ".html"
	commentExt         = ".comment"

	filePerm = 0o644
	dirPerm  = 0o755
)

// FSStore keeps every page in its own directory under root and moves deleted
// pages under trash. It implements both Store and Catalog.
type FSStore struct {
	root  string
	trash string
}

var (
	_ Store   = (*FSStore)(nil)
	_ Catalog = (*FSStore)(nil)
)

// NewFSStore creates root and trash if needed.
func NewFSStore(root, trash string) (*FSStore, error) {
	if root == "" || trash == "" {
		return nil, xerrors.Markf(ErrInvalidInput, "content and trash directories are required")
	}
	for _, d := range []string{root, trash} {
		if err := os.MkdirAll(d, dirPerm); err != nil {
			return nil, asIO(xerrors.Wrapf(err, "create directory %s", d))
		}
	}
	return &FSStore{root: root, trash: trash}, nil
}

func (s *FSStore) Root() string  { return s.root }
func (s *FSStore) Trash() string { return s.trash }

// path resolves a file inside a page directory. file may be empty for the
// directory itself.
func (s *FSStore) path(page, file string) (string, error) {
	if err := checkName(page); err != nil {
		return "", err
	}
	elems := []string{page}
	if file != "" {
		elems = append(elems, file)
	}
	p, err := pathutil.SafeJoin(s.root, elems...)
	if err != nil {
		return "", xerrors.Mark(xerrors.Wrapf(err, "page %q", page), ErrInvalidInput)
	}
	return p, nil
}

func versionFile(id VersionID) string { return string(id) + versionExt }
func commentFile(id VersionID) string { return string(id) + commentExt }

func checkVersion(id VersionID) error {
	if !id.Valid() {
		return xerrors.Markf(ErrInvalidInput, "malformed version id %q", string(id))
	}
	return nil
}

func (s *FSStore) PageExists(ctx context.Context, page string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir, err := s.path(page, "")
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, asIO(xerrors.Wrapf(err, "stat page %s", page))
	}
	return fi.IsDir(), nil
}

func (s *FSStore) readFile(ctx context.Context, page, file string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	p, err := s.path(page, file)
	if err != nil {
		return nil, false, err
	}
	b, ok, err := readOptional(p)
	if err != nil {
		return nil, false, asIO(xerrors.Wrapf(err, "read %s/%s", page, file))
	}
	return b, ok, nil
}

func (s *FSStore) writeFile(ctx context.Context, page, file string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(page, file)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(p, data, filePerm); err != nil {
		return asIO(xerrors.Wrapf(err, "write %s/%s", page, file))
	}
	return nil
}

func (s *FSStore) removeFile(ctx context.Context, page, file string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(page, file)
	if err != nil {
		return err
	}
	if err := removeOptional(p); err != nil {
		return asIO(xerrors.Wrapf(err, "remove %s/%s", page, file))
	}
	return nil
}

// WriteDraft clears the pointer before replacing content, so a failure in
// between leaves the draft reported as dirty rather than as a stale version.
func (s *FSStore) WriteDraft(ctx context.Context, page string, content []byte) error {
	if err := s.ClearPointer(ctx, page, PointerDraft); err != nil {
		return err
	}
	return s.writeFile(ctx, page, draftFile, content)
}

func (s *FSStore) ReadDraft(ctx context.Context, page string) ([]byte, bool, error) {
	return s.readFile(ctx, page, draftFile)
}

func (s *FSStore) WritePublished(ctx context.Context, page string, content []byte) error {
	return s.writeFile(ctx, page, publishedFile, content)
}

func (s *FSStore) ReadPublished(ctx context.Context, page string) ([]byte, bool, error) {
	return s.readFile(ctx, page, publishedFile)
}

// CreateVersion stages content in a temp file and hard-links it to the first
// free id, falling back to -01..-99 suffixes when versions were already minted
// in the same second. The link fails if the name exists, so a version is never
// overwritten and never visible half written.
func (s *FSStore) CreateVersion(ctx context.Context, page string, content []byte, at time.Time) (VersionID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	base := NewVersionID(at)
	tmp, err := s.path(page, "."+string(base)+"."+uuid.NewString()+".tmp")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(tmp, content, filePerm); err != nil {
		_ = os.Remove(tmp)
		return "", asIO(xerrors.Wrapf(err, "stage version of %s", page))
	}
	defer os.Remove(tmp)

	for n := 0; n <= maxSuffix; n++ {
		id := base
		if n > 0 {
			id = base.WithSuffix(n)
		}
		p, err := s.path(page, versionFile(id))
		if err != nil {
			return "", err
		}
		err = os.Link(tmp, p)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", asIO(xerrors.Wrapf(err, "create version %s/%s", page, id))
		}
		// a comment left behind for a reused id must not attach to new content
		if err := s.removeFile(ctx, page, commentFile(id)); err != nil {
			return "", err
		}
		return id, nil
	}
	return "", asIO(xerrors.Newf("no free version id for %s at %s", page, base))
}

func (s *FSStore) ReadVersion(ctx context.Context, page string, id VersionID) ([]byte, bool, error) {
	if err := checkVersion(id); err != nil {
		return nil, false, err
	}
	return s.readFile(ctx, page, versionFile(id))
}

func (s *FSStore) HasVersion(ctx context.Context, page string, id VersionID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := checkVersion(id); err != nil {
		return false, err
	}
	p, err := s.path(page, versionFile(id))
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, asIO(xerrors.Wrapf(err, "stat version %s/%s", page, id))
	}
	return fi.Mode().IsRegular(), nil
}

func (s *FSStore) DeleteVersion(ctx context.Context, page string, id VersionID) error {
	if err := checkVersion(id); err != nil {
		return err
	}
	if err := s.removeFile(ctx, page, versionFile(id)); err != nil {
		return err
	}
	return s.removeFile(ctx, page, commentFile(id))
}

func (s *FSStore) ListVersions(ctx context.Context, page string) ([]VersionID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.path(page, "")
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, asIO(xerrors.Wrapf(err, "list versions of %s", page))
	}
	ids := make([]VersionID, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasSuffix(name, versionExt) {
			continue
		}
		if id := VersionID(strings.TrimSuffix(name, versionExt)); id.Valid() {
			ids = append(ids, id)
		}
	}
	sortNewestFirst(ids)
	return ids, nil
}

func (s *FSStore) WriteComment(ctx context.Context, page string, id VersionID, text string) error {
	if err := checkVersion(id); err != nil {
		return err
	}
	if text == "" {
		return s.removeFile(ctx, page, commentFile(id))
	}
	return s.writeFile(ctx, page, commentFile(id), []byte(text))
}

func (s *FSStore) ReadComment(ctx context.Context, page string, id VersionID) (string, bool, error) {
	if err := checkVersion(id); err != nil {
		return "", false, err
	}
	b, ok, err := s.readFile(ctx, page, commentFile(id))
	if err != nil || !ok {
		return "", false, err
	}
	return string(b), true, nil
}

// Catalog

func (s *FSStore) CreatePage(ctx context.Context, page string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir, err := s.path(page, "")
	if err != nil {
		return false, err
	}
	err = os.Mkdir(dir, dirPerm)
	if errors.Is(err, fs.ErrExist) {
		fi, serr := os.Stat(dir)
		if serr == nil && fi.IsDir() {
			return false, nil
		}
		return false, asIO(xerrors.Newf("page path %s exists and is not a directory", page))
	}
	if err != nil {
		return false, asIO(xerrors.Wrapf(err, "create page %s", page))
	}
	return true, nil
}

// TrashPage renames the page directory to <trash>/<stamp>_<page>, where stamp
// gains a -NN suffix if an entry with the same name already exists.
func (s *FSStore) TrashPage(ctx context.Context, page string, at time.Time) (TrashEntry, error) {
	if err := ctx.Err(); err != nil {
		return TrashEntry{}, err
	}
	src, err := s.path(page, "")
	if err != nil {
		return TrashEntry{}, err
	}
	stamp := NewVersionID(at)
	for n := 0; n <= maxSuffix; n++ {
		prefix := stamp
		if n > 0 {
			prefix = stamp.WithSuffix(n)
		}
		name := string(prefix) + "_" + page
		dst, err := pathutil.SafeJoin(s.trash, name)
		if err != nil {
			return TrashEntry{}, xerrors.Mark(err, ErrInvalidInput)
		}
		if _, err := os.Lstat(dst); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return TrashEntry{}, asIO(xerrors.Wrapf(err, "stat trash entry %s", name))
		}
		if err := os.Rename(src, dst); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return TrashEntry{}, xerrors.Markf(ErrNotFound, "page %q not found", page)
			}
			return TrashEntry{}, asIO(xerrors.Wrapf(err, "move page %s to trash", page))
		}
		return TrashEntry{Page: page, Name: name, Path: dst, At: at}, nil
	}
	return TrashEntry{}, asIO(xerrors.Newf("no free trash name for %s at %s", page, stamp))
}

// ListPages returns the sorted names of page directories. Entries whose name
// is not in sanitized form are ignored.
func (s *FSStore) ListPages(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, asIO(xerrors.Wrapf(err, "list pages"))
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && checkName(e.Name()) == nil {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// ReadSecret trims the stored value; a blank file counts as no secret.
func (s *FSStore) ReadSecret(ctx context.Context, page string) (string, bool, error) {
	b, ok, err := s.readFile(ctx, page, secretFile)
	if err != nil || !ok {
		return "", false, err
	}
	secret := strings.TrimSpace(string(b))
	return secret, secret != "", nil
}

func (s *FSStore) WriteSecret(ctx context.Context, page, secret string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(page, secretFile)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(p, []byte(secret), 0o600); err != nil {
		return asIO(xerrors.Wrapf(err, "write secret for %s", page))
	}
	return nil
}

func (s *FSStore) DeleteSecret(ctx context.Context, page string) error {
	return s.removeFile(ctx, page, secretFile)
}
