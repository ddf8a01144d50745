package pages

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/keithlinneman/pageman/internal/xerrors"
)

// VersionID names one immutable snapshot: the creation time at second
// resolution, plus a two digit suffix when several versions of a page are
// minted within the same second. Plain string order is creation order.
type VersionID string

const (
	versionLayout = "2006-01-02_15-04-05"
	maxSuffix     = 99
)

var versionShape = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}(-\d{2})?$`)

// NewVersionID formats t in its own location; convert with t.In first to
// mint ids in another zone.
func NewVersionID(t time.Time) VersionID {
	return VersionID(t.Format(versionLayout))
}

// WithSuffix returns the n-th collision alternative of id (1..99).
func (v VersionID) WithSuffix(n int) VersionID {
	return VersionID(fmt.Sprintf("%s-%02d", v.base(), n))
}

func (v VersionID) base() string {
	s := string(v)
	if len(s) > len(versionLayout) {
		return s[:len(versionLayout)]
	}
	return s
}

func (v VersionID) String() string { return string(v) }

// Valid reports whether v has the version shape.
func (v VersionID) Valid() bool { return versionShape.MatchString(string(v)) }

// Time recovers the minting time, interpreting the id in loc.
func (v VersionID) Time(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if !v.Valid() {
		return time.Time{}, xerrors.Markf(ErrInvalidInput, "malformed version id %q", string(v))
	}
	return time.ParseInLocation(versionLayout, v.base(), loc)
}

// ParseVersionID accepts a bare id or a file reference such as
// "2024-05-01_10-00-00.html" or "page/2024-05-01_10-00-00.html".
func ParseVersionID(s string) (VersionID, error) {
	s = strings.TrimSpace(s)
	s = path.Base(strings.ReplaceAll(s, `\`, "/"))
	s = strings.TrimSuffix(s, ".html")
	v := VersionID(s)
	if !v.Valid() {
		return "", xerrors.Markf(ErrInvalidInput, "malformed version id %q", s)
	}
	return v, nil
}

// sortNewestFirst orders ids by descending creation.
func sortNewestFirst(ids []VersionID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
}
