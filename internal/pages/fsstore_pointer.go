package pages

import (
	"context"
	"strings"
)

func pointerFile(kind PointerKind) (string, bool) {
	switch kind {
	case PointerDraft:
		return draftStateFile, true
	case PointerPublished:
		return publishedStateFile, true
	default:
		return "", false
	}
}

func (s *FSStore) Pointer(ctx context.Context, page string, kind PointerKind) (VersionID, bool, error) {
	file, ok := pointerFile(kind)
	if !ok {
		return "", false, invalidPointer(kind)
	}
	b, ok, err := s.readFile(ctx, page, file)
	if err != nil || !ok {
		return "", false, err
	}
	id := VersionID(strings.TrimSpace(string(b)))
	if !id.Valid() {
		return "", false, nil
	}
	return id, true, nil
}

func (s *FSStore) SetPointer(ctx context.Context, page string, kind PointerKind, id VersionID) error {
	file, ok := pointerFile(kind)
	if !ok {
		return invalidPointer(kind)
	}
	if err := checkVersion(id); err != nil {
		return err
	}
	return s.writeFile(ctx, page, file, []byte(id))
}

func (s *FSStore) ClearPointer(ctx context.Context, page string, kind PointerKind) error {
	file, ok := pointerFile(kind)
	if !ok {
		return invalidPointer(kind)
	}
	return s.removeFile(ctx, page, file)
}
