package pages

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/keithlinneman/pageman/internal/xerrors"
)

// Engine is the publishing state machine. It holds no per-page state; every
// call reads and writes the Store directly.
type Engine struct {
	store Store
	instr
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{store: store, instr: defaultInstr()}
	for _, o := range opts {
		o(&e.instr)
	}
	return e
}

// SourceRef selects what LoadToDraft copies: the published artifact or one
// historical version.
type SourceRef struct {
	Published bool
	Version   VersionID
}

func PublishedRef() SourceRef           { return SourceRef{Published: true} }
func VersionRef(id VersionID) SourceRef { return SourceRef{Version: id} }

func (r SourceRef) String() string {
	if r.Published {
		return publishedFile
	}
	return string(r.Version)
}

// ParseSourceRef accepts "index.html" or "published" for the published
// artifact, and otherwise a version id or version file name.
func ParseSourceRef(s string) (SourceRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SourceRef{}, xerrors.Markf(ErrInvalidInput, "source reference required")
	}
	switch strings.ToLower(path.Base(strings.ReplaceAll(s, `\`, "/"))) {
	case publishedFile, "published":
		return PublishedRef(), nil
	}
	id, err := ParseVersionID(s)
	if err != nil {
		return SourceRef{}, err
	}
	return VersionRef(id), nil
}

// DraftStatus summarises how the draft relates to the version history.
type DraftStatus string

const (
	DraftNone  DraftStatus = "none"
	DraftClean DraftStatus = "clean"
	DraftDirty DraftStatus = "dirty"
)

// PageState is the status-bar view of a page. Pointer fields are empty when
// the pointer is absent or names a version that no longer exists.
type PageState struct {
	Page             string      `json:"page"`
	Draft            DraftStatus `json:"draft"`
	HasPublished     bool        `json:"has_published"`
	DraftVersion     VersionID   `json:"draft_version,omitempty"`
	PublishedVersion VersionID   `json:"published_version,omitempty"`
	HasSecret        bool        `json:"has_secret"`
	Versions         int         `json:"versions"`
}

// VersionInfo is one history row.
type VersionInfo struct {
	ID         VersionID `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Comment    string    `json:"comment,omitempty"`
	HasComment bool      `json:"has_comment"`
	Published  bool      `json:"published"`
	Draft      bool      `json:"draft"`
}

func requireContent(content []byte) error {
	if content == nil {
		return xerrors.Markf(ErrInvalidInput, "content payload required")
	}
	return nil
}

func (e *Engine) requirePage(ctx context.Context, page string) error {
	if err := checkName(page); err != nil {
		return err
	}
	ok, err := e.store.PageExists(ctx, page)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.Markf(ErrNotFound, "page %q not found", page)
	}
	return nil
}

func (e *Engine) requireVersion(ctx context.Context, page string, id VersionID) error {
	if err := checkVersion(id); err != nil {
		return err
	}
	ok, err := e.store.HasVersion(ctx, page, id)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.Markf(ErrNotFound, "version %s of page %q not found", id, page)
	}
	return nil
}

// SaveDraft replaces the draft. The published artifact and pointer are left
// alone; the draft pointer is cleared.
func (e *Engine) SaveDraft(ctx context.Context, page string, content []byte) error {
	return e.run(ctx, "save_draft", page, func(ctx context.Context) ([]any, error) {
		if err := requireContent(content); err != nil {
			return nil, err
		}
		if err := e.requirePage(ctx, page); err != nil {
			return nil, err
		}
		return []any{"bytes", len(content)}, e.store.WriteDraft(ctx, page, content)
	})
}

// Publish snapshots content as a new version, makes it the published artifact
// and the draft, and points both pointers at the new version. comment is
// trimmed and attached when non-empty. A failure to create the version leaves
// the page untouched.
func (e *Engine) Publish(ctx context.Context, page string, content []byte, comment string) (VersionID, error) {
	var id VersionID
	err := e.run(ctx, "publish", page, func(ctx context.Context) ([]any, error) {
		if err := requireContent(content); err != nil {
			return nil, err
		}
		if err := e.requirePage(ctx, page); err != nil {
			return nil, err
		}
		v, err := e.store.CreateVersion(ctx, page, content, e.stamp())
		if err != nil {
			return nil, err
		}
		id = v
		e.obs.VersionCreated()
		kv := []any{"version", string(v), "bytes", len(content)}

		if c := strings.TrimSpace(comment); c != "" {
			if err := e.store.WriteComment(ctx, page, v, c); err != nil {
				return kv, err
			}
		}
		if err := e.publishContent(ctx, page, v, content); err != nil {
			return kv, err
		}
		if err := e.store.WriteDraft(ctx, page, content); err != nil {
			return kv, err
		}
		return kv, e.store.SetPointer(ctx, page, PointerDraft, v)
	})
	if err != nil {
		return id, err
	}
	return id, nil
}

// publishContent replaces the artifact before moving the pointer, so a failed
// write leaves both as they were. A failed pointer write after a successful
// artifact write leaves the pointer naming the previous version.
func (e *Engine) publishContent(ctx context.Context, page string, id VersionID, content []byte) error {
	if err := e.store.WritePublished(ctx, page, content); err != nil {
		return err
	}
	return e.store.SetPointer(ctx, page, PointerPublished, id)
}

// LoadToDraft copies a version or the published artifact into the draft
// without creating a version. The draft pointer follows the source: the
// version id, or whatever the published pointer holds.
func (e *Engine) LoadToDraft(ctx context.Context, page string, ref SourceRef) error {
	return e.run(ctx, "load_to_draft", page, func(ctx context.Context) ([]any, error) {
		kv := []any{"source", ref.String()}
		if err := e.requirePage(ctx, page); err != nil {
			return kv, err
		}

		var (
			content []byte
			pointer VersionID
			hasPtr  bool
		)
		if ref.Published {
			b, ok, err := e.store.ReadPublished(ctx, page)
			if err != nil {
				return kv, err
			}
			if !ok {
				return kv, xerrors.Markf(ErrNotFound, "page %q has no published content", page)
			}
			content = b
			pointer, hasPtr, err = e.livePointer(ctx, page, PointerPublished)
			if err != nil {
				return kv, err
			}
		} else {
			if err := checkVersion(ref.Version); err != nil {
				return kv, err
			}
			b, ok, err := e.store.ReadVersion(ctx, page, ref.Version)
			if err != nil {
				return kv, err
			}
			if !ok {
				return kv, xerrors.Markf(ErrNotFound, "version %s of page %q not found", ref.Version, page)
			}
			content, pointer, hasPtr = b, ref.Version, true
		}

		if err := e.store.WriteDraft(ctx, page, content); err != nil {
			return kv, err
		}
		if !hasPtr {
			return kv, nil
		}
		return append(kv, "draft_version", string(pointer)), e.store.SetPointer(ctx, page, PointerDraft, pointer)
	})
}

// RestoreToPublished makes a historical version the published artifact.
// Repeating it is a no-op in effect.
func (e *Engine) RestoreToPublished(ctx context.Context, page string, id VersionID) error {
	return e.run(ctx, "restore_to_published", page, func(ctx context.Context) ([]any, error) {
		kv := []any{"version", string(id)}
		if err := e.requirePage(ctx, page); err != nil {
			return kv, err
		}
		if err := checkVersion(id); err != nil {
			return kv, err
		}
		content, ok, err := e.store.ReadVersion(ctx, page, id)
		if err != nil {
			return kv, err
		}
		if !ok {
			return kv, xerrors.Markf(ErrNotFound, "version %s of page %q not found", id, page)
		}
		return kv, e.publishContent(ctx, page, id, content)
	})
}

// DeleteVersion clears every pointer naming id, then removes the version and
// its comment.
func (e *Engine) DeleteVersion(ctx context.Context, page string, id VersionID) error {
	return e.run(ctx, "delete_version", page, func(ctx context.Context) ([]any, error) {
		kv := []any{"version", string(id)}
		if err := e.requirePage(ctx, page); err != nil {
			return kv, err
		}
		if err := e.requireVersion(ctx, page, id); err != nil {
			return kv, err
		}
		for _, kind := range []PointerKind{PointerPublished, PointerDraft} {
			cur, ok, err := e.store.Pointer(ctx, page, kind)
			if err != nil {
				return kv, err
			}
			if ok && cur == id {
				if err := e.store.ClearPointer(ctx, page, kind); err != nil {
					return kv, err
				}
				kv = append(kv, "cleared_"+kind.String(), true)
			}
		}
		return kv, e.store.DeleteVersion(ctx, page, id)
	})
}

// EditComment sets the trimmed comment of a version, removing it when the
// trimmed text is empty.
func (e *Engine) EditComment(ctx context.Context, page string, id VersionID, text string) error {
	return e.run(ctx, "edit_comment", page, func(ctx context.Context) ([]any, error) {
		text = strings.TrimSpace(text)
		kv := []any{"version", string(id), "removed", text == ""}
		if err := e.requirePage(ctx, page); err != nil {
			return kv, err
		}
		if err := e.requireVersion(ctx, page, id); err != nil {
			return kv, err
		}
		return kv, e.store.WriteComment(ctx, page, id, text)
	})
}

// livePointer returns the pointer only if it names an existing version.
func (e *Engine) livePointer(ctx context.Context, page string, kind PointerKind) (VersionID, bool, error) {
	id, ok, err := e.store.Pointer(ctx, page, kind)
	if err != nil || !ok {
		return "", false, err
	}
	exists, err := e.store.HasVersion(ctx, page, id)
	if err != nil || !exists {
		return "", false, err
	}
	return id, true, nil
}

// State reports draft status, published presence and both pointers.
func (e *Engine) State(ctx context.Context, page string) (PageState, error) {
	if err := e.requirePage(ctx, page); err != nil {
		return PageState{}, err
	}
	st := PageState{Page: page, Draft: DraftNone}

	_, hasDraft, err := e.store.ReadDraft(ctx, page)
	if err != nil {
		return PageState{}, err
	}
	_, st.HasPublished, err = e.store.ReadPublished(ctx, page)
	if err != nil {
		return PageState{}, err
	}
	dp, hasDP, err := e.livePointer(ctx, page, PointerDraft)
	if err != nil {
		return PageState{}, err
	}
	pp, hasPP, err := e.livePointer(ctx, page, PointerPublished)
	if err != nil {
		return PageState{}, err
	}
	if hasDP {
		st.DraftVersion = dp
	}
	if hasPP {
		st.PublishedVersion = pp
	}
	switch {
	case !hasDraft:
		st.Draft = DraftNone
	case hasDP:
		st.Draft = DraftClean
	default:
		st.Draft = DraftDirty
	}

	ids, err := e.store.ListVersions(ctx, page)
	if err != nil {
		return PageState{}, err
	}
	st.Versions = len(ids)

	if _, st.HasSecret, err = e.store.ReadSecret(ctx, page); err != nil {
		return PageState{}, err
	}
	return st, nil
}

// History lists versions newest first with comments and pointer flags.
func (e *Engine) History(ctx context.Context, page string) ([]VersionInfo, error) {
	if err := e.requirePage(ctx, page); err != nil {
		return nil, err
	}
	ids, err := e.store.ListVersions(ctx, page)
	if err != nil {
		return nil, err
	}
	dp, _, err := e.store.Pointer(ctx, page, PointerDraft)
	if err != nil {
		return nil, err
	}
	pp, _, err := e.store.Pointer(ctx, page, PointerPublished)
	if err != nil {
		return nil, err
	}

	out := make([]VersionInfo, 0, len(ids))
	for _, id := range ids {
		vi := VersionInfo{ID: id, Published: id == pp, Draft: id == dp}
		if at, err := id.Time(time.UTC); err == nil {
			vi.CreatedAt = at.In(e.loc)
		}
		if vi.Comment, vi.HasComment, err = e.store.ReadComment(ctx, page, id); err != nil {
			return nil, err
		}
		out = append(out, vi)
	}
	return out, nil
}

func (e *Engine) ReadDraft(ctx context.Context, page string) ([]byte, error) {
	return e.readRequired(ctx, page, "draft", e.store.ReadDraft)
}

func (e *Engine) ReadPublished(ctx context.Context, page string) ([]byte, error) {
	return e.readRequired(ctx, page, "published content", e.store.ReadPublished)
}

func (e *Engine) ReadVersion(ctx context.Context, page string, id VersionID) ([]byte, error) {
	if err := checkVersion(id); err != nil {
		return nil, err
	}
	return e.readRequired(ctx, page, "version "+string(id), func(ctx context.Context, page string) ([]byte, bool, error) {
		return e.store.ReadVersion(ctx, page, id)
	})
}

func (e *Engine) readRequired(ctx context.Context, page, what string, read func(context.Context, string) ([]byte, bool, error)) ([]byte, error) {
	if err := e.requirePage(ctx, page); err != nil {
		return nil, err
	}
	b, ok, err := read(ctx, page)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, xerrors.Markf(ErrNotFound, "page %q has no %s", page, what)
	}
	return b, nil
}
