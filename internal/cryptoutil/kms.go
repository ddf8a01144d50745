package cryptoutil

import (
	"context"
	"encoding/hex"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/keithlinneman/pageman/internal/xerrors"
)

// kmsRandomSource is the subset of the KMS API needed to draw random bytes.
// Extracted as an interface to enable unit testing without live AWS credentials.
type kmsRandomSource interface {
	GenerateRandom(ctx context.Context, params *kms.GenerateRandomInput, optFns ...func(*kms.Options)) (*kms.GenerateRandomOutput, error)
}

// KMSSecrets generates page secrets from KMS GenerateRandom, optionally
// within a custom key store.
type KMSSecrets struct {
	client        kmsRandomSource
	customStoreID string
	size          int32
}

// NewKMSSecrets returns a generator drawing size random bytes per secret.
// customStoreID may be empty.
func NewKMSSecrets(client *kms.Client, customStoreID string, size int) *KMSSecrets {
	return &KMSSecrets{client: client, customStoreID: customStoreID, size: int32(size)}
}

// GenerateSecret returns the random bytes hex encoded.
func (k *KMSSecrets) GenerateSecret(ctx context.Context) (string, error) {
	if k.client == nil {
		return "", xerrors.New("kms client is not configured")
	}
	if k.size <= 0 {
		return "", xerrors.Newf("invalid secret size %d", k.size)
	}
	in := &kms.GenerateRandomInput{NumberOfBytes: aws.Int32(k.size)}
	if k.customStoreID != "" {
		in.CustomKeyStoreId = aws.String(k.customStoreID)
	}
	out, err := k.client.GenerateRandom(ctx, in)
	if err != nil {
		return "", xerrors.Wrap(err, "kms generate random")
	}
	if len(out.Plaintext) != int(k.size) {
		return "", xerrors.Newf("kms returned %d random bytes, want %d", len(out.Plaintext), k.size)
	}
	return hex.EncodeToString(out.Plaintext), nil
}
