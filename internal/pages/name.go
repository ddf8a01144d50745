package pages

import (
	"strings"

	"github.com/keithlinneman/pageman/internal/xerrors"
)

// SanitizeName trims raw, turns spaces into '-', and drops every byte outside
// [A-Za-z0-9_-]. An empty result is ErrInvalidInput.
func SanitizeName(raw string) (string, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), " ", "-")
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; isNameByte(c) {
			b.WriteByte(c)
		}
	}
	if b.Len() == 0 {
		return "", xerrors.Markf(ErrInvalidInput, "page name %q is empty after sanitizing", raw)
	}
	return b.String(), nil
}

// checkName accepts only names that are already in sanitized form.
func checkName(page string) error {
	if page == "" {
		return xerrors.Markf(ErrInvalidInput, "page name required")
	}
	for i := 0; i < len(page); i++ {
		if !isNameByte(page[i]) {
			return xerrors.Markf(ErrInvalidInput, "page name %q has invalid characters", page)
		}
	}
	return nil
}

func isNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-'
}
