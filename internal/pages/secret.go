package pages

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/keithlinneman/pageman/internal/xerrors"
)

// SecretBytes is the entropy of a page secret; the encoded form is twice as
// many hex characters.
const SecretBytes = 8

// SecretGenerator produces new page secrets.
type SecretGenerator interface {
	GenerateSecret(ctx context.Context) (string, error)
}

// LocalSecrets draws page secrets from crypto/rand.
type LocalSecrets struct{}

func (LocalSecrets) GenerateSecret(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b := make([]byte, SecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", xerrors.Wrap(err, "read random bytes")
	}
	return hex.EncodeToString(b), nil
}
