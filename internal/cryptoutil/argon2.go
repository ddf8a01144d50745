package cryptoutil

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/keithlinneman/pageman/internal/xerrors"
)

// argon2id parameters, m=19456 t=2 p=1.
const (
	Argon2Time    = 2
	Argon2Memory  = 19 * 1024
	Argon2Threads = 1
	Argon2KeyLen  = 32
	Argon2SaltLen = 16
)

const argon2Prefix = "$argon2id$"

// IsArgon2Hash reports whether s looks like an encoded argon2id hash.
func IsArgon2Hash(s string) bool { return strings.HasPrefix(s, argon2Prefix) }

// HashArgon2 returns input as $argon2id$v=19$m=19456,t=2,p=1$salt$hash.
func HashArgon2(input string) (string, error) {
	salt := make([]byte, Argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", xerrors.Wrap(err, "generate salt")
	}
	key := argon2.IDKey([]byte(input), salt, Argon2Time, Argon2Memory, Argon2Threads, Argon2KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, Argon2Memory, Argon2Time, Argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// argon2Params is a decoded hash, kept so that repeated verifications do not
// re-parse the encoding.
type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func parseArgon2(encoded string) (argon2Params, error) {
	var p argon2Params
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return p, xerrors.New("invalid argon2 hash format")
	}
	if parts[1] != "argon2id" {
		return p, xerrors.Newf("unsupported hash type %q", parts[1])
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, xerrors.Wrap(err, "parse argon2 version")
	}
	if version != argon2.Version {
		return p, xerrors.Newf("unsupported argon2 version %d", version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, xerrors.Wrap(err, "parse argon2 parameters")
	}
	if p.time == 0 || p.threads == 0 {
		return p, xerrors.New("argon2 parameters out of range")
	}
	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return p, xerrors.Wrap(err, "decode argon2 salt")
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return p, xerrors.Wrap(err, "decode argon2 hash")
	}
	if len(p.key) == 0 {
		return p, xerrors.New("empty argon2 hash")
	}
	return p, nil
}

func (p argon2Params) verify(input string) bool {
	got := argon2.IDKey([]byte(input), p.salt, p.time, p.memory, p.threads, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(got, p.key) == 1
}

// VerifyArgon2 checks input against an encoded argon2id hash.
func VerifyArgon2(input, encoded string) (bool, error) {
	p, err := parseArgon2(encoded)
	if err != nil {
		return false, err
	}
	return p.verify(input), nil
}

// Argon2Verifier checks candidates against one pre-parsed hash.
type Argon2Verifier struct{ p argon2Params }

func NewArgon2Verifier(encoded string) (*Argon2Verifier, error) {
	p, err := parseArgon2(encoded)
	if err != nil {
		return nil, err
	}
	return &Argon2Verifier{p: p}, nil
}

func (v *Argon2Verifier) Verify(input string) bool { return v.p.verify(input) }

// NeedsRehash reports whether encoded was produced with other parameters than
// the current defaults.
func NeedsRehash(encoded string) bool {
	p, err := parseArgon2(encoded)
	if err != nil {
		return true
	}
	return p.memory != Argon2Memory || p.time != Argon2Time || p.threads != Argon2Threads
}
