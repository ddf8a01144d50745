// Package pathutil guards filesystem paths built from request input.
package pathutil

import (
	"errors"
	"path/filepath"
	"strings"
)

var ErrEscapesRoot = errors.New("path escapes root")

// HasDotSegments reports whether any path segment is "." or "..".
// Both separators are checked so Windows-style input cannot slip through.
func HasDotSegments(p string) bool {
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// SafeJoin joins elems onto root and fails if any element is empty, absolute,
// contains a separator or dot segment, or if the cleaned result leaves root.
func SafeJoin(root string, elems ...string) (string, error) {
	parts := make([]string, 0, len(elems)+1)
	parts = append(parts, root)
	for _, e := range elems {
		if e == "" || e == "." || e == ".." || strings.ContainsAny(e, `/\`) || filepath.IsAbs(e) {
			return "", ErrEscapesRoot
		}
		parts = append(parts, e)
	}
	p := filepath.Join(parts...)
	rel, err := filepath.Rel(filepath.Clean(root), p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrEscapesRoot
	}
	return p, nil
}
