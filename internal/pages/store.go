package pages

import (
	"context"
	"time"
)

// PointerKind selects one of the two per-page pointers.
type PointerKind int

const (
	// PointerDraft names the version the draft currently equals.
	PointerDraft PointerKind = iota
	// PointerPublished names the version mirrored into the published artifact.
	PointerPublished
)

func (k PointerKind) String() string {
	switch k {
	case PointerDraft:
		return "draft"
	case PointerPublished:
		return "published"
	default:
		return "unknown"
	}
}

// Store holds the content and pointers of individual pages. Reads report
// absence with ok=false rather than an error. Write failures are ErrIO.
// Callers are expected to have checked that the page exists.
type Store interface {
	PageExists(ctx context.Context, page string) (bool, error)

	// WriteDraft replaces the draft and clears the draft pointer.
	WriteDraft(ctx context.Context, page string, content []byte) error
	ReadDraft(ctx context.Context, page string) ([]byte, bool, error)

	WritePublished(ctx context.Context, page string, content []byte) error
	ReadPublished(ctx context.Context, page string) ([]byte, bool, error)

	// CreateVersion stores content under a fresh id minted from at (in at's
	// location). It never
	// overwrites an existing version and never touches pointers.
	CreateVersion(ctx context.Context, page string, content []byte, at time.Time) (VersionID, error)
	ReadVersion(ctx context.Context, page string, id VersionID) ([]byte, bool, error)
	HasVersion(ctx context.Context, page string, id VersionID) (bool, error)
	// DeleteVersion removes content and comment. Absent versions are a no-op.
	DeleteVersion(ctx context.Context, page string, id VersionID) error
	// ListVersions returns ids newest first.
	ListVersions(ctx context.Context, page string) ([]VersionID, error)

	// WriteComment stores text, or removes the comment when text is empty.
	WriteComment(ctx context.Context, page string, id VersionID, text string) error
	ReadComment(ctx context.Context, page string, id VersionID) (string, bool, error)

	// Pointer reads a pointer. A malformed stored value reads as absent.
	Pointer(ctx context.Context, page string, kind PointerKind) (VersionID, bool, error)
	SetPointer(ctx context.Context, page string, kind PointerKind, id VersionID) error
	ClearPointer(ctx context.Context, page string, kind PointerKind) error

	// ReadSecret reports the page secret, for status only.
	ReadSecret(ctx context.Context, page string) (string, bool, error)
}

// TrashEntry describes a page directory moved out of the active set.
type TrashEntry struct {
	Page string    `json:"page"`
	Name string    `json:"name"`
	Path string    `json:"path"`
	At   time.Time `json:"deleted_at"`
}

// Catalog manages the set of pages and their secrets.
type Catalog interface {
	PageExists(ctx context.Context, page string) (bool, error)
	// CreatePage makes an empty page. created is false if it already existed.
	CreatePage(ctx context.Context, page string) (created bool, err error)
	// TrashPage relocates the page, prefixing its name with at formatted in
	// at's location.
	TrashPage(ctx context.Context, page string, at time.Time) (TrashEntry, error)
	ListPages(ctx context.Context) ([]string, error)

	ReadSecret(ctx context.Context, page string) (string, bool, error)
	WriteSecret(ctx context.Context, page, secret string) error
	// DeleteSecret is a no-op when no secret exists.
	DeleteSecret(ctx context.Context, page string) error
}
