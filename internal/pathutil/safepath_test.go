package pathutil

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestHasDotSegments(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/normal/path", false},
		{"/path/./here", true},
		{"/path/../up", true},
		{".", true},
		{"..", true},
		{"/...", false},
		{"/.hidden", false},
		{`a\..\b`, true},
		{"/path/to/.", true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := HasDotSegments(tt.path); got != tt.want {
				t.Errorf("HasDotSegments(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	got, err := SafeJoin(root, "home", "draft.html")
	if err != nil {
		t.Fatalf("SafeJoin: %v", err)
	}
	if want := filepath.Join(root, "home", "draft.html"); got != want {
		t.Fatalf("SafeJoin = %q, want %q", got, want)
	}

	bad := [][]string{
		{".."},
		{"home", ".."},
		{"../etc"},
		{"a/b"},
		{`a\b`},
		{""},
		{"."},
		{"/etc"},
	}
	for _, elems := range bad {
		if _, err := SafeJoin(root, elems...); !errors.Is(err, ErrEscapesRoot) {
			t.Errorf("SafeJoin(%q) err = %v, want ErrEscapesRoot", elems, err)
		}
	}
}

func FuzzSafeJoin(f *testing.F) {
	f.Add("home")
	f.Add("..")
	f.Add("a/../..")
	f.Add("...")
	f.Add(`..\x`)

	root := f.TempDir()
	f.Fuzz(func(t *testing.T, elem string) {
		p, err := SafeJoin(root, elem)
		if err != nil {
			return
		}
		// a successful join always stays strictly inside root
		if !strings.HasPrefix(p, filepath.Clean(root)+string(filepath.Separator)) {
			t.Fatalf("SafeJoin(%q) = %q escapes %q", elem, p, root)
		}
	})
}
