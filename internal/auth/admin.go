package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"strings"
	"sync/atomic"

	"github.com/keithlinneman/pageman/internal/cryptoutil"
	"github.com/keithlinneman/pageman/internal/xerrors"
)

// adminMatcher is one immutable admin secret, plain or hashed.
type adminMatcher struct {
	plain  string
	hashed *cryptoutil.Argon2Verifier
	source string

	// digest of the last credential that passed argon2 verification
	verified atomic.Pointer[[sha256.Size]byte]
}

func newAdminMatcher(secret string) (*adminMatcher, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, xerrors.New("admin secret is empty")
	}
	if !cryptoutil.IsArgon2Hash(secret) {
		return &adminMatcher{plain: secret}, nil
	}
	v, err := cryptoutil.NewArgon2Verifier(secret)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse admin secret hash")
	}
	return &adminMatcher{hashed: v, source: secret}, nil
}

func (m *adminMatcher) match(cred string) bool {
	if cred == "" {
		return false
	}
	if m.hashed == nil {
		return cryptoutil.SecretEqual(m.plain, cred)
	}
	sum := sha256.Sum256([]byte(cred))
	if last := m.verified.Load(); last != nil && subtle.ConstantTimeCompare(last[:], sum[:]) == 1 {
		return true
	}
	if !m.hashed.Verify(cred) {
		return false
	}
	m.verified.Store(&sum)
	return true
}

func (m *adminMatcher) fingerprint() string {
	if m.hashed != nil {
		return cryptoutil.SHA256Hex([]byte(m.source))
	}
	return cryptoutil.SHA256Hex([]byte(m.plain))
}

// AdminSecret holds the current admin secret and can be swapped at runtime.
// The zero value matches nothing.
type AdminSecret struct {
	active atomic.Pointer[adminMatcher]
}

// NewAdminSecret parses secret, which is either the token itself or an
// encoded argon2id hash of it.
func NewAdminSecret(secret string) (*AdminSecret, error) {
	a := &AdminSecret{}
	if err := a.Set(secret); err != nil {
		return nil, err
	}
	return a, nil
}

// Set replaces the admin secret. On error the previous secret stays active.
func (a *AdminSecret) Set(secret string) error {
	m, err := newAdminMatcher(secret)
	if err != nil {
		return err
	}
	a.active.Store(m)
	return nil
}

// Configured reports whether any admin secret is loaded.
func (a *AdminSecret) Configured() bool { return a.active.Load() != nil }

// Hashed reports whether the active secret is stored as an argon2id hash.
func (a *AdminSecret) Hashed() bool {
	m := a.active.Load()
	return m != nil && m.hashed != nil
}

// Matches compares cred with the admin secret in constant time.
func (a *AdminSecret) Matches(cred string) bool {
	m := a.active.Load()
	return m != nil && m.match(cred)
}

// IsAdmin has the shape expected by pages.WithAdminCheck.
func (a *AdminSecret) IsAdmin(_ context.Context, s string) bool { return a.Matches(s) }

// fingerprint identifies the stored form for change detection without
// keeping a second copy of the secret around.
func (a *AdminSecret) fingerprint() string {
	m := a.active.Load()
	if m == nil {
		return ""
	}
	return m.fingerprint()
}
